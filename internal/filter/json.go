package filter

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"reflect"
)

const (
	wireGroup    = "group"
	wireRelation = "relation"
)

type wireLeaf struct {
	Field string        `json:"field"`
	Type  PrimitiveType `json:"type"`
	Op    Operator      `json:"op"`
	Value any           `json:"value"`
}

type wireGroupNode struct {
	Type    string    `json:"type"`
	Op      LogicalOp `json:"op"`
	Filters []Filter  `json:"filters"`
}

type wireRelationNode struct {
	Type         string `json:"type"`
	Relationship string `json:"relationship"`
	Filter       Filter `json:"filter"`
}

// MarshalJSON renders the leaf in wire form. time.Time values serialize as
// RFC 3339 strings.
func (l *Leaf) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireLeaf{Field: l.Field, Type: l.Type, Op: l.Op, Value: l.Value})
}

func (g *Group) MarshalJSON() ([]byte, error) {
	filters := g.Filters
	if filters == nil {
		filters = []Filter{}
	}
	return json.Marshal(wireGroupNode{Type: wireGroup, Op: g.Op, Filters: filters})
}

func (r *Relation) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireRelationNode{Type: wireRelation, Relationship: r.Relationship, Filter: r.Filter})
}

// Marshal serializes a filter tree to its wire form.
func Marshal(f Filter) ([]byte, error) {
	if f == nil || reflect.ValueOf(f).IsNil() {
		return nil, errors.New("cannot serialize nil filter")
	}
	return json.Marshal(f)
}

// Parse decodes the wire form of a filter tree. It checks the JSON envelope
// (node kinds, required keys, key types, the leaf-or-group body of a
// relation) and the nesting depth, but not
// operator legality or value shapes; use CheckStructure or a Schema for that.
// Numbers decode as float64, arrays as []any and dates stay strings.
func Parse(data []byte, opts ...Option) (Filter, error) {
	o := buildOptions(opts)
	if err := checkNesting(data, o.maxDepth); err != nil {
		return nil, err
	}
	if err := checkWire(data); err != nil {
		return nil, err
	}
	return decodeNode(data, rootPath, 1, o.maxDepth)
}

func decodeNode(data json.RawMessage, path string, depth, maxDepth int) (Filter, error) {
	if depth > maxDepth {
		return nil, structural(path, "nesting depth exceeds %d", maxDepth)
	}

	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, structural(path, "malformed filter: %v", err)
	}

	switch head.Type {
	case wireGroup:
		var raw struct {
			Op      string            `json:"op"`
			Filters []json.RawMessage `json:"filters"`
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, structural(path, "malformed group: %v", err)
		}
		g := &Group{Op: LogicalOp(raw.Op), Filters: make([]Filter, 0, len(raw.Filters))}
		for i, child := range raw.Filters {
			f, err := decodeNode(child, childPath(path, i), depth+1, maxDepth)
			if err != nil {
				return nil, err
			}
			g.Filters = append(g.Filters, f)
		}
		return g, nil

	case wireRelation:
		var raw struct {
			Relationship string          `json:"relationship"`
			Filter       json.RawMessage `json:"filter"`
		}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, structural(path, "malformed relation: %v", err)
		}
		inner, err := decodeNode(raw.Filter, innerPath(path), depth+1, maxDepth)
		if err != nil {
			return nil, err
		}
		rel := &Relation{Relationship: raw.Relationship, Filter: inner}
		if err := checkRelationInner(rel, path); err != nil {
			return nil, err
		}
		return rel, nil
	}

	var raw struct {
		Field string `json:"field"`
		Type  string `json:"type"`
		Op    string `json:"op"`
		Value any    `json:"value"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, structural(path, "malformed filter: %v", err)
	}
	return &Leaf{Field: raw.Field, Type: PrimitiveType(raw.Type), Op: Operator(raw.Op), Value: raw.Value}, nil
}

// checkNesting rejects input nested deeper than a tree of maxDepth levels can
// be, before any recursive decoding happens. It also rejects trailing data.
func checkNesting(data []byte, maxDepth int) error {
	limit := 2*maxDepth + 2
	dec := json.NewDecoder(bytes.NewReader(data))
	depth := 0
	values := 0
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return structural(rootPath, "malformed JSON: %v", err)
		}
		if depth == 0 {
			values++
			if values > 1 {
				return structural(rootPath, "malformed JSON: unexpected data after filter")
			}
		}
		if d, ok := tok.(json.Delim); ok {
			switch d {
			case '{', '[':
				depth++
				if depth > limit {
					return structural(rootPath, "nesting depth exceeds %d", maxDepth)
				}
			case '}', ']':
				depth--
			}
		}
	}
	if values == 0 {
		return structural(rootPath, "malformed JSON: empty input")
	}
	if depth != 0 {
		return structural(rootPath, "malformed JSON: unexpected end of input")
	}
	return nil
}

// Envelope carries a filter inside larger JSON documents.
type Envelope struct {
	Filter Filter
}

func (e Envelope) MarshalJSON() ([]byte, error) {
	if e.Filter == nil {
		return []byte("null"), nil
	}
	return json.Marshal(e.Filter)
}

func (e *Envelope) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		e.Filter = nil
		return nil
	}
	f, err := Parse(data)
	if err != nil {
		return err
	}
	e.Filter = f
	return nil
}
