package filter

var booleanFamily = newFamily(TypeBoolean, "a boolean", isBool, OpEq, OpNe)

func isBool(v any) bool {
	_, ok := v.(bool)
	return ok
}

// BooleanField builds leaves on a boolean field.
type BooleanField string

func (f BooleanField) Eq(v bool) *Leaf {
	return &Leaf{Field: string(f), Type: TypeBoolean, Op: OpEq, Value: v}
}

func (f BooleanField) Ne(v bool) *Leaf {
	return &Leaf{Field: string(f), Type: TypeBoolean, Op: OpNe, Value: v}
}
