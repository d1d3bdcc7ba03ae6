package metadata

import "rocket-filter/internal/filter"

type Field struct {
	Name      string   `json:"name"`
	Type      string   `json:"type"`
	Required  bool     `json:"required,omitempty"`
	Unique    bool     `json:"unique,omitempty"`
	Default   any      `json:"default,omitempty"`
	Nullable  bool     `json:"nullable,omitempty"`
	Enum      []string `json:"enum,omitempty"`
	Precision int      `json:"precision,omitempty"`
}

// FilterType returns the primitive filter type for this field's storage type.
// The second result is false for types that cannot be filtered (json, file).
func (f Field) FilterType() (filter.PrimitiveType, bool) {
	switch f.Type {
	case "string", "text", "uuid":
		return filter.TypeString, true
	case "int", "integer", "bigint", "decimal", "float":
		return filter.TypeNumber, true
	case "boolean":
		return filter.TypeBoolean, true
	case "timestamp", "date":
		return filter.TypeDate, true
	default:
		return "", false
	}
}
