package filter

import (
	"fmt"

	"github.com/nlstn/go-odata-forms/internal/scope"
)

// Dialect names understood by Scope.
const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
)

// Storage columns a pushed-down filter refers to. Timestamps are stored as
// Unix milliseconds in UTC.
const (
	ColumnSubmitterID = "submitter_id"
	ColumnCreatedAt   = "created_at"
	ColumnUpdatedAt   = "updated_at"
	ColumnReviewState = "review_state"
)

var fieldColumns = map[Field]string{
	FieldSubmitterID:    ColumnSubmitterID,
	FieldSubmissionDate: ColumnCreatedAt,
	FieldUpdatedAt:      ColumnUpdatedAt,
	FieldReviewState:    ColumnReviewState,
}

var nullableFields = map[Field]bool{
	FieldUpdatedAt:   true,
	FieldReviewState: true,
}

var sqlOperators = map[Operator]string{
	OpEqual:              "=",
	OpNotEqual:           "<>",
	OpLessThan:           "<",
	OpLessThanOrEqual:    "<=",
	OpGreaterThan:        ">",
	OpGreaterThanOrEqual: ">=",
}

var sqliteDateParts = map[Function]string{
	FuncYear:   "%Y",
	FuncMonth:  "%m",
	FuncDay:    "%d",
	FuncHour:   "%H",
	FuncMinute: "%M",
	FuncSecond: "%S",
}

var postgresDateParts = map[Function]string{
	FuncYear:   "YEAR",
	FuncMonth:  "MONTH",
	FuncDay:    "DAY",
	FuncHour:   "HOUR",
	FuncMinute: "MINUTE",
	FuncSecond: "SECOND",
}

// Scope renders the filter as a SQL condition for dialect. The condition has
// the same meaning as Match over rows stored with the column contract above.
func (f *Filter) Scope(dialect string) (scope.QueryScope, error) {
	if f == nil || f.root == nil {
		return scope.QueryScope{}, nil
	}
	if dialect != DialectSQLite && dialect != DialectPostgres {
		return scope.QueryScope{}, fmt.Errorf("filter pushdown is not supported for dialect %q", dialect)
	}
	return renderNode(f.root, dialect), nil
}

func renderNode(n node, dialect string) scope.QueryScope {
	switch v := n.(type) {
	case *logicalNode:
		left := renderNode(v.left, dialect)
		right := renderNode(v.right, dialect)
		if v.and {
			return scope.And(left, right)
		}
		return scope.Or(left, right)
	case *comparisonNode:
		return v.render(dialect)
	}
	return scope.QueryScope{}
}

func (n *comparisonNode) render(dialect string) scope.QueryScope {
	expr := fieldColumns[n.field]
	if n.function != "" {
		expr = datePartExpression(dialect, n.function, expr)
	}

	if n.literal.null {
		if n.op == OpEqual {
			return scope.QueryScope{Condition: expr + " IS NULL"}
		}
		return scope.QueryScope{Condition: expr + " IS NOT NULL"}
	}

	var arg interface{}
	switch n.literal.kind {
	case kindInt:
		arg = n.literal.i
	case kindTime:
		arg = n.literal.t.UnixMilli()
	default:
		arg = n.literal.s
	}

	condition := expr + " " + sqlOperators[n.op] + " ?"
	if n.op == OpNotEqual && nullableFields[n.field] {
		condition = "(" + condition + " OR " + expr + " IS NULL)"
	}
	return scope.QueryScope{Condition: condition, Args: []interface{}{arg}}
}

func datePartExpression(dialect string, fn Function, column string) string {
	if dialect == DialectPostgres {
		return fmt.Sprintf("CAST(FLOOR(EXTRACT(%s FROM to_timestamp(%s / 1000.0) AT TIME ZONE 'UTC')) AS INTEGER)", postgresDateParts[fn], column)
	}
	return fmt.Sprintf("CAST(strftime('%s', %s / 1000, 'unixepoch') AS INTEGER)", sqliteDateParts[fn], column)
}
