// Package filter parses and evaluates $filter expressions over submission
// system metadata.
package filter

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nlstn/go-odata-forms/internal/submission"
)

// Field identifies a filterable system property.
type Field string

const (
	FieldSubmitterID    Field = "__system/submitterId"
	FieldSubmissionDate Field = "__system/submissionDate"
	FieldUpdatedAt      Field = "__system/updatedAt"
	FieldReviewState    Field = "__system/reviewState"
)

type valueKind int

const (
	kindInt valueKind = iota
	kindTime
	kindString
)

var fieldKinds = map[Field]valueKind{
	FieldSubmitterID:    kindInt,
	FieldSubmissionDate: kindTime,
	FieldUpdatedAt:      kindTime,
	FieldReviewState:    kindString,
}

// Function is a date-part function applicable to timestamp fields.
type Function string

const (
	FuncYear   Function = "year"
	FuncMonth  Function = "month"
	FuncDay    Function = "day"
	FuncHour   Function = "hour"
	FuncMinute Function = "minute"
	FuncSecond Function = "second"
)

// Operator is a comparison operator.
type Operator string

const (
	OpEqual              Operator = "eq"
	OpNotEqual           Operator = "ne"
	OpLessThan           Operator = "lt"
	OpLessThanOrEqual    Operator = "le"
	OpGreaterThan        Operator = "gt"
	OpGreaterThanOrEqual Operator = "ge"
)

// flipped returns the operator with its operands swapped.
func (op Operator) flipped() Operator {
	switch op {
	case OpLessThan:
		return OpGreaterThan
	case OpLessThanOrEqual:
		return OpGreaterThanOrEqual
	case OpGreaterThan:
		return OpLessThan
	case OpGreaterThanOrEqual:
		return OpLessThanOrEqual
	default:
		return op
	}
}

// Error is a $filter parse or validation failure.
type Error struct {
	Expression string
	Message    string
}

func (e *Error) Error() string {
	return e.Message
}

// Filter is a validated $filter predicate. A nil *Filter matches everything.
type Filter struct {
	Raw  string
	root node
}

type node interface {
	match(sys *submission.System) bool
}

type logicalNode struct {
	and         bool
	left, right node
}

func (n *logicalNode) match(sys *submission.System) bool {
	if n.and {
		return n.left.match(sys) && n.right.match(sys)
	}
	return n.left.match(sys) || n.right.match(sys)
}

// comparisonNode compares a field (optionally wrapped in a date-part
// function) with a literal.
type comparisonNode struct {
	field    Field
	function Function
	op       Operator
	literal  literal
}

type literal struct {
	null bool
	kind valueKind
	i    int64
	t    time.Time
	s    string
}

// Parse parses and validates a $filter expression.
func Parse(input string) (*Filter, error) {
	if strings.TrimSpace(input) == "" {
		return nil, &Error{Expression: input, Message: "filter expression is empty"}
	}
	ast, err := filterParser.ParseString("$filter", input)
	if err != nil {
		return nil, &Error{Expression: input, Message: fmt.Sprintf("invalid filter syntax: %v", err)}
	}
	root, err := compileExpression(ast)
	if err != nil {
		return nil, &Error{Expression: input, Message: err.Error()}
	}
	return &Filter{Raw: input, root: root}, nil
}

// Match evaluates the filter against a submission's system metadata.
func (f *Filter) Match(sys *submission.System) bool {
	if f == nil || f.root == nil {
		return true
	}
	return f.root.match(sys)
}

func (f *Filter) String() string {
	if f == nil {
		return ""
	}
	return f.Raw
}

func compileExpression(ast *expressionAST) (node, error) {
	var result node
	for _, and := range ast.Or {
		n, err := compileAnd(and)
		if err != nil {
			return nil, err
		}
		if result == nil {
			result = n
		} else {
			result = &logicalNode{left: result, right: n}
		}
	}
	return result, nil
}

func compileAnd(ast *andAST) (node, error) {
	var result node
	for _, term := range ast.And {
		var (
			n   node
			err error
		)
		if term.Group != nil {
			n, err = compileExpression(term.Group)
		} else {
			n, err = compileComparison(term.Comparison)
		}
		if err != nil {
			return nil, err
		}
		if result == nil {
			result = n
		} else {
			result = &logicalNode{and: true, left: result, right: n}
		}
	}
	return result, nil
}

func compileComparison(ast *comparisonAST) (node, error) {
	op := Operator(ast.Op)
	left, right := ast.Left, ast.Right
	if !isFieldOperand(left) {
		if !isFieldOperand(right) {
			return nil, fmt.Errorf("comparison at column %d must reference a system field", ast.Pos.Column)
		}
		left, right = right, left
		op = op.flipped()
	}
	if isFieldOperand(right) {
		return nil, fmt.Errorf("comparison at column %d compares two fields", ast.Pos.Column)
	}

	n := &comparisonNode{op: op}
	path := left.Path
	if left.Call != nil {
		fn := Function(strings.ToLower(left.Call.Function))
		switch fn {
		case FuncYear, FuncMonth, FuncDay, FuncHour, FuncMinute, FuncSecond:
		default:
			return nil, fmt.Errorf("function '%s' is not supported", left.Call.Function)
		}
		if left.Call.Arg == nil || left.Call.Arg.Path == nil {
			return nil, fmt.Errorf("function '%s' requires a field argument", left.Call.Function)
		}
		n.function = fn
		path = left.Call.Arg.Path
	}

	n.field = Field(*path)
	kind, ok := fieldKinds[n.field]
	if !ok {
		return nil, fmt.Errorf("field '%s' is not supported in $filter", *path)
	}
	if n.function != "" {
		if kind != kindTime {
			return nil, fmt.Errorf("function '%s' requires a timestamp field, got '%s'", n.function, *path)
		}
		kind = kindInt
	}

	lit, err := compileLiteral(right, kind)
	if err != nil {
		return nil, fmt.Errorf("invalid value for '%s': %w", *path, err)
	}
	if lit.null && op != OpEqual && op != OpNotEqual {
		return nil, fmt.Errorf("operator '%s' cannot be applied to null", op)
	}
	n.literal = lit
	return n, nil
}

func isFieldOperand(op *operandAST) bool {
	return op != nil && (op.Path != nil || op.Call != nil)
}

func compileLiteral(op *operandAST, kind valueKind) (literal, error) {
	if op.Null {
		return literal{null: true, kind: kind}, nil
	}
	switch kind {
	case kindInt:
		if op.Number == nil {
			return literal{}, fmt.Errorf("expected an integer")
		}
		i, err := strconv.ParseInt(*op.Number, 10, 64)
		if err != nil {
			return literal{}, fmt.Errorf("expected an integer, got %s", *op.Number)
		}
		return literal{kind: kindInt, i: i}, nil
	case kindTime:
		if op.DateTime == nil {
			return literal{}, fmt.Errorf("expected a date or timestamp")
		}
		t, err := parseTimestamp(*op.DateTime)
		if err != nil {
			return literal{}, err
		}
		return literal{kind: kindTime, t: submission.Truncate(t)}, nil
	default:
		if op.String == nil {
			return literal{}, fmt.Errorf("expected a string")
		}
		return literal{kind: kindString, s: unquote(*op.String)}, nil
	}
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

func parseTimestamp(value string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("'%s' is not a valid timestamp", value)
}

func (n *comparisonNode) match(sys *submission.System) bool {
	switch n.literal.kind {
	case kindInt:
		v, ok := n.intValue(sys)
		if n.literal.null {
			return (n.op == OpEqual) == !ok
		}
		if !ok {
			return n.op == OpNotEqual
		}
		return compareOrdered(n.op, v, n.literal.i)
	case kindTime:
		v, ok := timeValue(n.field, sys)
		if n.literal.null {
			return (n.op == OpEqual) == !ok
		}
		if !ok {
			return n.op == OpNotEqual
		}
		return compareOrdered(n.op, v.UnixNano(), n.literal.t.UnixNano())
	default:
		var v *string
		if n.field == FieldReviewState {
			v = sys.ReviewState
		}
		if n.literal.null {
			return (n.op == OpEqual) == (v == nil)
		}
		if v == nil {
			return n.op == OpNotEqual
		}
		return compareOrdered(n.op, *v, n.literal.s)
	}
}

// intValue returns the integer the comparison inspects: the submitter id or a
// date part of a timestamp field.
func (n *comparisonNode) intValue(sys *submission.System) (int64, bool) {
	if n.function == "" {
		return sys.SubmitterID, true
	}
	t, ok := timeValue(n.field, sys)
	if !ok {
		return 0, false
	}
	return int64(datePart(n.function, t)), true
}

func timeValue(field Field, sys *submission.System) (time.Time, bool) {
	switch field {
	case FieldSubmissionDate:
		return submission.Truncate(sys.SubmissionDate), true
	case FieldUpdatedAt:
		if sys.UpdatedAt == nil {
			return time.Time{}, false
		}
		return submission.Truncate(*sys.UpdatedAt), true
	}
	return time.Time{}, false
}

func datePart(fn Function, t time.Time) int {
	t = t.UTC()
	switch fn {
	case FuncYear:
		return t.Year()
	case FuncMonth:
		return int(t.Month())
	case FuncDay:
		return t.Day()
	case FuncHour:
		return t.Hour()
	case FuncMinute:
		return t.Minute()
	default:
		return t.Second()
	}
}

func compareOrdered[T int64 | string](op Operator, a, b T) bool {
	switch op {
	case OpEqual:
		return a == b
	case OpNotEqual:
		return a != b
	case OpLessThan:
		return a < b
	case OpLessThanOrEqual:
		return a <= b
	case OpGreaterThan:
		return a > b
	default:
		return a >= b
	}
}
