package filter

import "time"

var dateFamily = newFamily(TypeDate, "a date", isDate,
	OpEq, OpNe, OpGt, OpGte, OpLt, OpLte,
	OpBetween,
	OpIn, OpNin,
)

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// isDate accepts a non-zero time.Time or an ISO-8601 string.
func isDate(v any) bool {
	_, ok := ToDate(v)
	return ok
}

// ParseDate parses the ISO-8601 forms accepted on the wire: RFC 3339 with or
// without fractional seconds, a zoneless date-time (read as UTC) or a bare date.
func ParseDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ToDate converts a date value, native or serialized, to time.Time.
func ToDate(v any) (time.Time, bool) {
	switch d := v.(type) {
	case time.Time:
		return d, !d.IsZero()
	case *time.Time:
		if d == nil || d.IsZero() {
			return time.Time{}, false
		}
		return *d, true
	case string:
		return ParseDate(d)
	}
	return time.Time{}, false
}

// DateField builds leaves on a date field.
type DateField string

func (f DateField) leaf(op Operator, value any) *Leaf {
	return &Leaf{Field: string(f), Type: TypeDate, Op: op, Value: value}
}

func (f DateField) Eq(v time.Time) *Leaf  { return f.leaf(OpEq, v) }
func (f DateField) Ne(v time.Time) *Leaf  { return f.leaf(OpNe, v) }
func (f DateField) Gt(v time.Time) *Leaf  { return f.leaf(OpGt, v) }
func (f DateField) Gte(v time.Time) *Leaf { return f.leaf(OpGte, v) }
func (f DateField) Lt(v time.Time) *Leaf  { return f.leaf(OpLt, v) }
func (f DateField) Lte(v time.Time) *Leaf { return f.leaf(OpLte, v) }

// Between matches instants in the inclusive range [from, to].
func (f DateField) Between(from, to time.Time) *Leaf {
	return f.leaf(OpBetween, []any{from, to})
}

func (f DateField) In(values ...time.Time) *Leaf  { return f.leaf(OpIn, dateList(values)) }
func (f DateField) Nin(values ...time.Time) *Leaf { return f.leaf(OpNin, dateList(values)) }

func dateList(values []time.Time) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
