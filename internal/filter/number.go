package filter

import (
	"encoding/json"
	"math"
)

var numberFamily = newFamily(TypeNumber, "a number", isNumber,
	OpEq, OpNe, OpGt, OpGte, OpLt, OpLte,
	OpBetween,
	OpIn, OpNin,
)

// isNumber accepts every Go numeric kind and json.Number. NaN and infinities
// have no JSON form and are rejected.
func isNumber(v any) bool {
	f, ok := toFloat(v)
	return ok && !math.IsNaN(f) && !math.IsInf(f, 0)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// ToNumber converts any accepted number value to float64.
func ToNumber(v any) (float64, bool) {
	if !isNumber(v) {
		return 0, false
	}
	return toFloat(v)
}

// NumberField builds leaves on a number field.
type NumberField string

func (f NumberField) leaf(op Operator, value any) *Leaf {
	return &Leaf{Field: string(f), Type: TypeNumber, Op: op, Value: value}
}

func (f NumberField) Eq(v float64) *Leaf  { return f.leaf(OpEq, v) }
func (f NumberField) Ne(v float64) *Leaf  { return f.leaf(OpNe, v) }
func (f NumberField) Gt(v float64) *Leaf  { return f.leaf(OpGt, v) }
func (f NumberField) Gte(v float64) *Leaf { return f.leaf(OpGte, v) }
func (f NumberField) Lt(v float64) *Leaf  { return f.leaf(OpLt, v) }
func (f NumberField) Lte(v float64) *Leaf { return f.leaf(OpLte, v) }

// Between matches values in the inclusive range [lo, hi].
func (f NumberField) Between(lo, hi float64) *Leaf {
	return f.leaf(OpBetween, []any{lo, hi})
}

func (f NumberField) In(values ...float64) *Leaf  { return f.leaf(OpIn, numberList(values)) }
func (f NumberField) Nin(values ...float64) *Leaf { return f.leaf(OpNin, numberList(values)) }

func numberList(values []float64) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
