// Package filter defines storage-agnostic filter trees over named, typed entity
// fields and validates them against a model's declared shape.
//
// A tree is made of leaves (one predicate on one field), groups (and/or/not over
// child filters) and relations (a filter scoped to a named association). Trees are
// plain values: they are built once, validated once and handed read-only to a
// query executor, which alone interprets them.
package filter

// PrimitiveType is the value type a leaf compares against.
type PrimitiveType string

const (
	TypeString  PrimitiveType = "string"
	TypeNumber  PrimitiveType = "number"
	TypeBoolean PrimitiveType = "boolean"
	TypeDate    PrimitiveType = "date"
)

// Valid reports whether t is one of the four primitive types.
func (t PrimitiveType) Valid() bool {
	switch t {
	case TypeString, TypeNumber, TypeBoolean, TypeDate:
		return true
	}
	return false
}

// PrimitiveTypes lists the primitive types in a stable order.
func PrimitiveTypes() []PrimitiveType {
	return []PrimitiveType{TypeString, TypeNumber, TypeBoolean, TypeDate}
}

// Kind discriminates the three filter variants.
type Kind string

const (
	KindLeaf     Kind = "leaf"
	KindGroup    Kind = "group"
	KindRelation Kind = "relation"
)

// Filter is a node of a filter tree: *Leaf, *Group or *Relation.
type Filter interface {
	Kind() Kind
	isFilter()
}

// Leaf is an atomic predicate on a single field. The shape of Value depends on
// the arity of Op: a scalar, a two-element array for between, or an array for
// in and nin.
type Leaf struct {
	Field string
	Type  PrimitiveType
	Op    Operator
	Value any
}

func (*Leaf) Kind() Kind { return KindLeaf }
func (*Leaf) isFilter()  {}

// LogicalOp is a group connective.
type LogicalOp string

const (
	LogicalAnd LogicalOp = "and"
	LogicalOr  LogicalOp = "or"
	LogicalNot LogicalOp = "not"
)

// Valid reports whether op is and, or or not.
func (op LogicalOp) Valid() bool {
	switch op {
	case LogicalAnd, LogicalOr, LogicalNot:
		return true
	}
	return false
}

// Group combines child filters. Not takes a list like and/or and means the
// negation of the conjunction of its children: NOT (c1 AND c2 AND ...).
type Group struct {
	Op      LogicalOp
	Filters []Filter
}

func (*Group) Kind() Kind { return KindGroup }
func (*Group) isFilter()  {}

// And builds an and group.
func And(filters ...Filter) *Group {
	return &Group{Op: LogicalAnd, Filters: filters}
}

// Or builds an or group.
func Or(filters ...Filter) *Group {
	return &Group{Op: LogicalOr, Filters: filters}
}

// Not builds a not group over the conjunction of filters.
func Not(filters ...Filter) *Group {
	return &Group{Op: LogicalNot, Filters: filters}
}

// Relation scopes Filter to the association named Relationship. Cardinality of
// the association is left to the executor.
type Relation struct {
	Relationship string
	Filter       Filter
}

func (*Relation) Kind() Kind { return KindRelation }
func (*Relation) isFilter()  {}

// Related wraps inner under the named relationship.
func Related(relationship string, inner Filter) *Relation {
	return &Relation{Relationship: relationship, Filter: inner}
}
