package filter

import (
	"strconv"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// wireSchemaJSON describes the envelope of the wire form. Operator legality,
// value shapes, group emptiness and connectives are left to the Go checks so
// they report typed errors.
const wireSchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "definitions": {
    "filter": {
      "type": "object",
      "required": ["type"],
      "properties": {
        "type": {"type": "string"}
      },
      "if": {"properties": {"type": {"const": "group"}}},
      "then": {"$ref": "#/definitions/group"},
      "else": {
        "if": {"properties": {"type": {"const": "relation"}}},
        "then": {"$ref": "#/definitions/relation"},
        "else": {"$ref": "#/definitions/leaf"}
      }
    },
    "group": {
      "required": ["op", "filters"],
      "properties": {
        "op": {"type": "string"},
        "filters": {
          "type": "array",
          "items": {"$ref": "#/definitions/filter"}
        }
      }
    },
    "relation": {
      "required": ["relationship", "filter"],
      "properties": {
        "relationship": {"type": "string"},
        "filter": {"$ref": "#/definitions/filter"}
      }
    },
    "leaf": {
      "required": ["field", "op", "value"],
      "properties": {
        "field": {"type": "string"},
        "op": {"type": "string"}
      }
    }
  },
  "allOf": [{"$ref": "#/definitions/filter"}]
}`

// schemaRoot is how gojsonschema names the document root in error fields.
const schemaRoot = "(root)"

var wireSchema = mustCompileWireSchema()

func mustCompileWireSchema() *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(wireSchemaJSON))
	if err != nil {
		panic("filter: compile wire schema: " + err.Error())
	}
	return s
}

// wrapper errors that only say a subschema failed; the nested error is more
// useful to report.
var wireWrapperErrors = map[string]bool{
	"condition_then": true,
	"condition_else": true,
	"number_all_of":  true,
	"number_any_of":  true,
	"number_one_of":  true,
}

func checkWire(data []byte) error {
	result, err := wireSchema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return structural(rootPath, "malformed JSON: %v", err)
	}
	if result.Valid() {
		return nil
	}

	errs := result.Errors()
	pick := errs[0]
	for _, e := range errs {
		if !wireWrapperErrors[e.Type()] {
			pick = e
			break
		}
	}
	return &StructuralError{Path: wirePath(pick.Field()), Reason: pick.Description()}
}

// wirePath converts a gojsonschema field ("(root)", "filters.0.op") into the
// path notation used by this package ("$", "$.filters[0].op").
func wirePath(field string) string {
	if field == "" || field == schemaRoot {
		return rootPath
	}
	field = strings.TrimPrefix(field, schemaRoot+".")

	var b strings.Builder
	b.WriteString(rootPath)
	for _, seg := range strings.Split(field, ".") {
		if _, err := strconv.Atoi(seg); err == nil {
			b.WriteString("[" + seg + "]")
			continue
		}
		b.WriteString("." + seg)
	}
	return b.String()
}
