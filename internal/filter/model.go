package filter

import (
	"fmt"
	"sort"
)

// Model is the declared shape a filter is validated against: filterable fields
// with their primitive types, and relationship names mapped to the name of the
// related model.
type Model struct {
	Name          string
	Fields        map[string]PrimitiveType
	Relationships map[string]string
}

// ModelResolver looks up a related model by name.
type ModelResolver interface {
	ResolveModel(name string) (*Model, bool)
}

// FieldsOfType returns the sorted names of fields declared with type t.
func FieldsOfType(fields map[string]PrimitiveType, t PrimitiveType) []string {
	var names []string
	for name, ft := range fields {
		if ft == t {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// FieldsOfType returns the sorted names of the model's fields of type t.
func (m *Model) FieldsOfType(t PrimitiveType) []string {
	return FieldsOfType(m.Fields, t)
}

// FieldNames returns every declared field name, sorted.
func (m *Model) FieldNames() []string {
	return sortedKeys(m.Fields)
}

// RelationshipNames returns every declared relationship name, sorted.
func (m *Model) RelationshipNames() []string {
	return sortedKeys(m.Relationships)
}

// Offerable groups the admissible field names by primitive type. Types with no
// fields map to an empty slice.
func (m *Model) Offerable() map[PrimitiveType][]string {
	out := make(map[PrimitiveType][]string, 4)
	for _, t := range PrimitiveTypes() {
		names := m.FieldsOfType(t)
		if names == nil {
			names = []string{}
		}
		out[t] = names
	}
	return out
}

func (m *Model) fieldOfType(name string, t PrimitiveType) error {
	declared, ok := m.Fields[name]
	if !ok {
		return &UnknownFieldError{Path: rootPath, Field: name, Allowed: m.FieldNames()}
	}
	if declared != t {
		return &FieldTypeMismatchError{Path: rootPath, Field: name, Declared: declared, Got: t}
	}
	return nil
}

// StringField returns a leaf builder for name if it is a declared string field.
func (m *Model) StringField(name string) (StringField, error) {
	if err := m.fieldOfType(name, TypeString); err != nil {
		return "", fmt.Errorf("model %s: %w", m.Name, err)
	}
	return StringField(name), nil
}

// NumberField returns a leaf builder for name if it is a declared number field.
func (m *Model) NumberField(name string) (NumberField, error) {
	if err := m.fieldOfType(name, TypeNumber); err != nil {
		return "", fmt.Errorf("model %s: %w", m.Name, err)
	}
	return NumberField(name), nil
}

// BooleanField returns a leaf builder for name if it is a declared boolean field.
func (m *Model) BooleanField(name string) (BooleanField, error) {
	if err := m.fieldOfType(name, TypeBoolean); err != nil {
		return "", fmt.Errorf("model %s: %w", m.Name, err)
	}
	return BooleanField(name), nil
}

// DateField returns a leaf builder for name if it is a declared date field.
func (m *Model) DateField(name string) (DateField, error) {
	if err := m.fieldOfType(name, TypeDate); err != nil {
		return "", fmt.Errorf("model %s: %w", m.Name, err)
	}
	return DateField(name), nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
