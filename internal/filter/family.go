package filter

import (
	"fmt"
	"math"
	"reflect"
	"time"
)

// Family describes one primitive type: which catalog operators it admits and
// what a scalar of the type looks like.
type Family struct {
	Type      PrimitiveType
	operators []Operator
	allowed   map[Operator]bool
	noun      string
	scalar    func(v any) bool
}

func newFamily(t PrimitiveType, noun string, scalar func(any) bool, ops ...Operator) *Family {
	allowed := make(map[Operator]bool, len(ops))
	for _, op := range ops {
		allowed[op] = true
	}
	return &Family{Type: t, operators: ops, allowed: allowed, noun: noun, scalar: scalar}
}

var families = map[PrimitiveType]*Family{
	TypeString:  stringFamily,
	TypeNumber:  numberFamily,
	TypeBoolean: booleanFamily,
	TypeDate:    dateFamily,
}

// FamilyFor returns the descriptor for t.
func FamilyFor(t PrimitiveType) (*Family, bool) {
	f, ok := families[t]
	return f, ok
}

// Allows reports whether op is legal for the family.
func (f *Family) Allows(op Operator) bool {
	return f.allowed[op]
}

// Operators returns the legal operators in catalog order.
func (f *Family) Operators() []Operator {
	out := make([]Operator, len(f.operators))
	copy(out, f.operators)
	return out
}

// OperatorsOf returns the legal operators of the given arity.
func (f *Family) OperatorsOf(a Arity) []Operator {
	var out []Operator
	for _, op := range f.operators {
		if op.Arity() == a {
			out = append(out, op)
		}
	}
	return out
}

// IsScalar reports whether v is a single value of the family's type.
func (f *Family) IsScalar(v any) bool {
	return f.scalar(v)
}

// Check verifies that op is legal for the family and that value has the shape
// op requires. The returned error carries only the reason; callers add the path.
func (f *Family) Check(op Operator, value any) error {
	if !op.Valid() {
		return fmt.Errorf("unknown operator %q", op)
	}
	if !f.Allows(op) {
		return fmt.Errorf("operator %s is not allowed for %s filters", op, f.Type)
	}

	switch op.Arity() {
	case AritySingle:
		if isList(value) {
			return fmt.Errorf("operator %s requires a single %s, got array", op, f.noun)
		}
		if !f.scalar(value) {
			return fmt.Errorf("operator %s requires %s, got %s", op, f.noun, describeValue(value))
		}
	case ArityPair:
		items, ok := listItems(value)
		if !ok {
			return fmt.Errorf("operator %s requires an array of two %ss, got %s", op, f.Type, describeValue(value))
		}
		if len(items) != 2 {
			return fmt.Errorf("operator %s requires exactly two values, got %d", op, len(items))
		}
		for i, item := range items {
			if !f.scalar(item) {
				return fmt.Errorf("element %d of %s value must be %s, got %s", i, op, f.noun, describeValue(item))
			}
		}
	case ArityMulti:
		items, ok := listItems(value)
		if !ok {
			return fmt.Errorf("operator %s requires an array of %ss, got %s", op, f.Type, describeValue(value))
		}
		for i, item := range items {
			if !f.scalar(item) {
				return fmt.Errorf("element %d of %s value must be %s, got %s", i, op, f.noun, describeValue(item))
			}
		}
	}
	return nil
}

func isList(v any) bool {
	if v == nil {
		return false
	}
	switch reflect.TypeOf(v).Kind() {
	case reflect.Slice, reflect.Array:
		return true
	}
	return false
}

func listItems(v any) ([]any, bool) {
	if items, ok := v.([]any); ok {
		return items, true
	}
	if !isList(v) {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice && rv.IsNil() {
		return []any{}, true
	}
	items := make([]any, rv.Len())
	for i := range items {
		items[i] = rv.Index(i).Interface()
	}
	return items, true
}

func describeValue(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case time.Time:
		return "date"
	case map[string]any:
		return "object"
	}
	if f, ok := toFloat(v); ok {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return "non-finite number"
		}
		return "number"
	}
	if isList(v) {
		return "array"
	}
	return fmt.Sprintf("%T", v)
}
