package filter

var stringFamily = newFamily(TypeString, "a string", isString,
	OpEq, OpNe, OpContains, OpStartsWith, OpEndsWith,
	OpBetween,
	OpIn, OpNin,
)

func isString(v any) bool {
	_, ok := v.(string)
	return ok
}

// StringField builds leaves on a string field.
type StringField string

func (f StringField) leaf(op Operator, value any) *Leaf {
	return &Leaf{Field: string(f), Type: TypeString, Op: op, Value: value}
}

func (f StringField) Eq(v string) *Leaf         { return f.leaf(OpEq, v) }
func (f StringField) Ne(v string) *Leaf         { return f.leaf(OpNe, v) }
func (f StringField) Contains(v string) *Leaf   { return f.leaf(OpContains, v) }
func (f StringField) StartsWith(v string) *Leaf { return f.leaf(OpStartsWith, v) }
func (f StringField) EndsWith(v string) *Leaf   { return f.leaf(OpEndsWith, v) }

// Between matches values in the inclusive range [lo, hi].
func (f StringField) Between(lo, hi string) *Leaf {
	return f.leaf(OpBetween, []any{lo, hi})
}

func (f StringField) In(values ...string) *Leaf  { return f.leaf(OpIn, stringList(values)) }
func (f StringField) Nin(values ...string) *Leaf { return f.leaf(OpNin, stringList(values)) }

func stringList(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
