// Package scope carries SQL predicates pushed down to storage.
package scope

import "strings"

// QueryScope represents a SQL condition that can be added to a query.
// It carries a raw SQL predicate and its arguments for safe parameter binding.
type QueryScope struct {
	// Condition is the SQL WHERE clause condition (e.g., "submitter_id = ?")
	Condition string
	// Args contains the parameter values for placeholders in Condition
	Args []interface{}
}

// IsEmpty reports whether the scope carries no condition.
func (s QueryScope) IsEmpty() bool {
	return strings.TrimSpace(s.Condition) == ""
}

// And joins two scopes with AND, wrapping each side in parentheses.
func And(left, right QueryScope) QueryScope {
	return join("AND", left, right)
}

// Or joins two scopes with OR, wrapping each side in parentheses.
// An empty side matches everything, so the result is empty too.
func Or(left, right QueryScope) QueryScope {
	if left.IsEmpty() || right.IsEmpty() {
		return QueryScope{}
	}
	return join("OR", left, right)
}

func join(op string, left, right QueryScope) QueryScope {
	switch {
	case left.IsEmpty():
		return right
	case right.IsEmpty():
		return left
	}
	args := make([]interface{}, 0, len(left.Args)+len(right.Args))
	args = append(args, left.Args...)
	args = append(args, right.Args...)
	return QueryScope{
		Condition: "(" + left.Condition + ") " + op + " (" + right.Condition + ")",
		Args:      args,
	}
}
