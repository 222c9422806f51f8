package scope

import (
	"reflect"
	"testing"
)

func TestAnd(t *testing.T) {
	left := QueryScope{Condition: "a = ?", Args: []interface{}{1}}
	right := QueryScope{Condition: "b = ?", Args: []interface{}{2}}

	got := And(left, right)
	if got.Condition != "(a = ?) AND (b = ?)" {
		t.Errorf("Condition = %q, want %q", got.Condition, "(a = ?) AND (b = ?)")
	}
	if !reflect.DeepEqual(got.Args, []interface{}{1, 2}) {
		t.Errorf("Args = %v, want [1 2]", got.Args)
	}

	if got := And(QueryScope{}, right); !reflect.DeepEqual(got, right) {
		t.Errorf("And(empty, right) = %v, want %v", got, right)
	}
	if got := And(left, QueryScope{Condition: "  "}); !reflect.DeepEqual(got, left) {
		t.Errorf("And(left, blank) = %v, want %v", got, left)
	}
}

func TestOr(t *testing.T) {
	left := QueryScope{Condition: "a = ?", Args: []interface{}{1}}
	right := QueryScope{Condition: "b = ?", Args: []interface{}{2}}

	if got := Or(left, right); got.Condition != "(a = ?) OR (b = ?)" {
		t.Errorf("Condition = %q, want %q", got.Condition, "(a = ?) OR (b = ?)")
	}
	if got := Or(left, QueryScope{}); !got.IsEmpty() {
		t.Errorf("Or(left, empty) = %v, want empty", got)
	}
}
