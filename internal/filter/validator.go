package filter

import (
	"fmt"
	"slices"
)

// scope holds the legal references for one model context.
type scope struct {
	model             string
	fields            map[string]PrimitiveType
	fieldNames        []string
	relationships     map[string]string
	relationshipNames []string
}

func newScope(m *Model) scope {
	s := scope{
		model:         m.Name,
		fields:        make(map[string]PrimitiveType, len(m.Fields)),
		relationships: make(map[string]string, len(m.Relationships)),
	}
	for name, t := range m.Fields {
		s.fields[name] = t
	}
	for name, target := range m.Relationships {
		s.relationships[name] = target
	}
	s.fieldNames = sortedKeys(s.fields)
	s.relationshipNames = sortedKeys(s.relationships)
	return s
}

// ModelValidator checks that every field and relationship a filter references
// is declared on a model. It holds only sets computed at construction and is
// safe for concurrent use.
type ModelValidator struct {
	root scope
	opts options
}

// NewModelValidator precomputes the legal field and relationship sets of m.
func NewModelValidator(m *Model, opts ...Option) *ModelValidator {
	return &ModelValidator{root: newScope(m), opts: buildOptions(opts)}
}

// Fields returns the legal field names, sorted.
func (v *ModelValidator) Fields() []string {
	return append([]string(nil), v.root.fieldNames...)
}

// Relationships returns the legal relationship names, sorted.
func (v *ModelValidator) Relationships() []string {
	return append([]string(nil), v.root.relationshipNames...)
}

// Validate walks f and returns the first unknown field, unknown relationship or
// field type mismatch it finds.
func (v *ModelValidator) Validate(f Filter) error {
	return v.validate(f, rootPath, 1, v.root)
}

func (v *ModelValidator) validate(f Filter, path string, depth int, sc scope) error {
	if depth > v.opts.maxDepth {
		return structural(path, "nesting depth exceeds %d", v.opts.maxDepth)
	}

	switch n := f.(type) {
	case *Leaf:
		if n == nil {
			return structural(path, "filter is null")
		}
		declared, ok := sc.fields[n.Field]
		if !ok {
			return &UnknownFieldError{Path: path, Field: n.Field, Allowed: slices.Clone(sc.fieldNames)}
		}
		if n.Type.Valid() && declared != n.Type {
			return &FieldTypeMismatchError{Path: path, Field: n.Field, Declared: declared, Got: n.Type}
		}
		return nil

	case *Group:
		if n == nil {
			return structural(path, "filter is null")
		}
		for i, child := range n.Filters {
			if err := v.validate(child, childPath(path, i), depth+1, sc); err != nil {
				return err
			}
		}
		return nil

	case *Relation:
		if n == nil {
			return structural(path, "filter is null")
		}
		target, ok := sc.relationships[n.Relationship]
		if !ok {
			return &UnknownRelationshipError{Path: path, Relationship: n.Relationship, Allowed: slices.Clone(sc.relationshipNames)}
		}
		if err := checkRelationInner(n, path); err != nil {
			return err
		}
		inner := sc
		if v.opts.resolver != nil {
			related, ok := v.opts.resolver.ResolveModel(target)
			if !ok {
				return structural(path, "related model %q of relationship %s is not declared", target, n.Relationship)
			}
			inner = newScope(related)
		}
		return v.validate(n.Filter, innerPath(path), depth+1, inner)

	case nil:
		return structural(path, "filter is null")
	}

	return structural(path, "unsupported filter node %s", describeNode(f))
}

func describeNode(f Filter) string {
	return fmt.Sprintf("%T", f)
}
