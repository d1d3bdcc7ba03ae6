package metadata

import (
	"fmt"

	"rocket-filter/internal/filter"
)

type Entity struct {
	Name       string     `json:"name"`
	Table      string     `json:"table"`
	PrimaryKey PrimaryKey `json:"primary_key"`
	SoftDelete bool       `json:"soft_delete"`
	Fields     []Field    `json:"fields"`
}

type PrimaryKey struct {
	Field     string `json:"field"`
	Type      string `json:"type"` // uuid, int, bigint, string
	Generated bool   `json:"generated"`
}

// GetField returns a pointer to the field with the given name, or nil.
func (e *Entity) GetField(name string) *Field {
	for i := range e.Fields {
		if e.Fields[i].Name == name {
			return &e.Fields[i]
		}
	}
	return nil
}

// HasField returns true if the entity has a field with the given name.
func (e *Entity) HasField(name string) bool {
	return e.GetField(name) != nil
}

// FieldNames returns all field names.
func (e *Entity) FieldNames() []string {
	names := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		names[i] = f.Name
	}
	return names
}

// FilterFields maps every filterable field to its primitive filter type.
// json and file fields are left out.
func (e *Entity) FilterFields() map[string]filter.PrimitiveType {
	fields := make(map[string]filter.PrimitiveType, len(e.Fields))
	for _, f := range e.Fields {
		if t, ok := f.FilterType(); ok {
			fields[f.Name] = t
		}
	}
	return fields
}

// BoolFields returns the names of boolean fields.
func (e *Entity) BoolFields() []string {
	var names []string
	for _, f := range e.Fields {
		if f.Type == "boolean" {
			names = append(names, f.Name)
		}
	}
	return names
}

// Validate checks the descriptor is usable for filtering and SQL generation.
func (e *Entity) Validate() error {
	if e.Name == "" {
		return fmt.Errorf("entity name is required")
	}
	if e.Table == "" {
		return fmt.Errorf("entity %s: table is required", e.Name)
	}
	if e.PrimaryKey.Field == "" {
		return fmt.Errorf("entity %s: primary_key.field is required", e.Name)
	}
	if !e.HasField(e.PrimaryKey.Field) {
		return fmt.Errorf("entity %s: primary key %s is not a declared field", e.Name, e.PrimaryKey.Field)
	}
	seen := make(map[string]bool, len(e.Fields))
	for _, f := range e.Fields {
		if f.Name == "" {
			return fmt.Errorf("entity %s: field name is required", e.Name)
		}
		if seen[f.Name] {
			return fmt.Errorf("entity %s: duplicate field %s", e.Name, f.Name)
		}
		seen[f.Name] = true
	}
	return nil
}
