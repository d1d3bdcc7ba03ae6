package filter

// Operator is a comparison operator token as it appears on the wire.
type Operator string

const (
	OpEq         Operator = "eq"
	OpNe         Operator = "ne"
	OpGt         Operator = "gt"
	OpGte        Operator = "gte"
	OpLt         Operator = "lt"
	OpLte        Operator = "lte"
	OpContains   Operator = "contains"
	OpStartsWith Operator = "startsWith"
	OpEndsWith   Operator = "endsWith"
	OpBetween    Operator = "between"
	OpIn         Operator = "in"
	OpNin        Operator = "nin"
)

// Arity classifies how many values an operator takes.
type Arity int

const (
	ArityUnknown Arity = iota
	AritySingle
	ArityPair
	ArityMulti
)

func (a Arity) String() string {
	switch a {
	case AritySingle:
		return "single"
	case ArityPair:
		return "pair"
	case ArityMulti:
		return "multi"
	default:
		return "unknown"
	}
}

var catalog = []Operator{
	OpEq, OpNe, OpGt, OpGte, OpLt, OpLte,
	OpContains, OpStartsWith, OpEndsWith,
	OpBetween,
	OpIn, OpNin,
}

var operatorArity = map[Operator]Arity{
	OpEq:         AritySingle,
	OpNe:         AritySingle,
	OpGt:         AritySingle,
	OpGte:        AritySingle,
	OpLt:         AritySingle,
	OpLte:        AritySingle,
	OpContains:   AritySingle,
	OpStartsWith: AritySingle,
	OpEndsWith:   AritySingle,
	OpBetween:    ArityPair,
	OpIn:         ArityMulti,
	OpNin:        ArityMulti,
}

// Arity returns the arity class of the operator, or ArityUnknown for tokens
// outside the catalog.
func (o Operator) Arity() Arity {
	return operatorArity[o]
}

// Valid reports whether the operator is part of the catalog.
func (o Operator) Valid() bool {
	_, ok := operatorArity[o]
	return ok
}

// LookupOperator resolves a wire token to a catalog operator.
func LookupOperator(token string) (Operator, bool) {
	op := Operator(token)
	if !op.Valid() {
		return "", false
	}
	return op, true
}

// Operators returns every catalog operator in declaration order.
func Operators() []Operator {
	out := make([]Operator, len(catalog))
	copy(out, catalog)
	return out
}
