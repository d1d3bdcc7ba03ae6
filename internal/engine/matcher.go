package engine

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"rocket-filter/internal/filter"
)

// Matcher evaluates a filter tree against in-memory records. The tree's
// boolean structure compiles to one expr program; leaves run as Go
// predicates referenced by index.
//
// A relation matches when any related record matches its inner filter. The
// relationship value may be a list of records or a single record.
type Matcher struct {
	source  string
	program *vm.Program
	leaves  []*filter.Leaf
}

// CompileMatcher compiles a validated filter tree.
func CompileMatcher(f filter.Filter) (*Matcher, error) {
	m := &Matcher{}
	var b strings.Builder
	if err := m.emit(&b, f, "r", "$"); err != nil {
		return nil, err
	}
	m.source = b.String()

	prog, err := expr.Compile(m.source, expr.Env(m.env(nil)), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile matcher: %w", err)
	}
	m.program = prog
	return m, nil
}

// Source returns the compiled expression.
func (m *Matcher) Source() string {
	return m.source
}

// Match reports whether record satisfies the filter.
func (m *Matcher) Match(record map[string]any) (bool, error) {
	result, err := expr.Run(m.program, m.env(record))
	if err != nil {
		return false, fmt.Errorf("evaluate matcher: %w", err)
	}
	ok, _ := result.(bool)
	return ok, nil
}

// Select returns the records that match, in input order.
func (m *Matcher) Select(records []map[string]any) ([]map[string]any, error) {
	out := make([]map[string]any, 0, len(records))
	for _, r := range records {
		ok, err := m.Match(r)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *Matcher) env(record map[string]any) map[string]any {
	if record == nil {
		record = map[string]any{}
	}
	return map[string]any{
		"r":    record,
		"test": m.test,
		"rel":  related,
	}
}

func (m *Matcher) emit(b *strings.Builder, f filter.Filter, scope, path string) error {
	switch n := f.(type) {
	case *filter.Leaf:
		fmt.Fprintf(b, "test(%s, %d)", scope, len(m.leaves))
		m.leaves = append(m.leaves, n)
		return nil
	case *filter.Group:
		if len(n.Filters) == 0 {
			return &filter.EmptyGroupError{Path: path, Op: n.Op}
		}
		join := " && "
		switch n.Op {
		case filter.LogicalOr:
			join = " || "
		case filter.LogicalNot:
			b.WriteString("!")
		case filter.LogicalAnd:
		default:
			return &filter.InvalidGroupOperatorError{Path: path, Op: string(n.Op)}
		}
		b.WriteString("(")
		for i, child := range n.Filters {
			if i > 0 {
				b.WriteString(join)
			}
			if err := m.emit(b, child, scope, fmt.Sprintf("%s.filters[%d]", path, i)); err != nil {
				return err
			}
		}
		b.WriteString(")")
		return nil
	case *filter.Relation:
		fmt.Fprintf(b, "any(rel(%s, %q), {", scope, n.Relationship)
		if err := m.emit(b, n.Filter, "#", path+".filter"); err != nil {
			return err
		}
		b.WriteString("})")
		return nil
	}
	return &filter.StructuralError{Path: path, Reason: "filter node is nil"}
}

func (m *Matcher) test(record any, i int) bool {
	rec, ok := record.(map[string]any)
	if !ok || i < 0 || i >= len(m.leaves) {
		return false
	}
	l := m.leaves[i]
	v, ok := rec[l.Field]
	if !ok || v == nil {
		return false
	}
	return evalLeaf(l, v)
}

// related returns the records under name as a list.
func related(record any, name string) []any {
	rec, ok := record.(map[string]any)
	if !ok {
		return nil
	}
	switch v := rec[name].(type) {
	case []any:
		return v
	case []map[string]any:
		out := make([]any, len(v))
		for i, r := range v {
			out[i] = r
		}
		return out
	case map[string]any:
		return []any{v}
	}
	return nil
}

func evalLeaf(l *filter.Leaf, v any) bool {
	cmp, ok := comparer(l.Type)
	if !ok {
		return false
	}
	switch l.Op {
	case filter.OpEq:
		c, ok := cmp(v, l.Value)
		return ok && c == 0
	case filter.OpNe:
		c, ok := cmp(v, l.Value)
		return ok && c != 0
	case filter.OpGt:
		c, ok := cmp(v, l.Value)
		return ok && c > 0
	case filter.OpGte:
		c, ok := cmp(v, l.Value)
		return ok && c >= 0
	case filter.OpLt:
		c, ok := cmp(v, l.Value)
		return ok && c < 0
	case filter.OpLte:
		c, ok := cmp(v, l.Value)
		return ok && c <= 0
	case filter.OpContains, filter.OpStartsWith, filter.OpEndsWith:
		s, ok1 := v.(string)
		sub, ok2 := l.Value.(string)
		if !ok1 || !ok2 {
			return false
		}
		switch l.Op {
		case filter.OpStartsWith:
			return strings.HasPrefix(s, sub)
		case filter.OpEndsWith:
			return strings.HasSuffix(s, sub)
		}
		return strings.Contains(s, sub)
	case filter.OpBetween:
		bounds, ok := leafList(l.Value)
		if !ok || len(bounds) != 2 {
			return false
		}
		lo, ok1 := cmp(v, bounds[0])
		hi, ok2 := cmp(v, bounds[1])
		return ok1 && ok2 && lo >= 0 && hi <= 0
	case filter.OpIn, filter.OpNin:
		items, ok := leafList(l.Value)
		if !ok {
			return false
		}
		found := false
		for _, item := range items {
			if c, ok := cmp(v, item); ok && c == 0 {
				found = true
				break
			}
		}
		if l.Op == filter.OpIn {
			return found
		}
		return !found
	}
	return false
}

type compareFunc func(recordValue, filterValue any) (int, bool)

func comparer(t filter.PrimitiveType) (compareFunc, bool) {
	switch t {
	case filter.TypeString:
		return compareStrings, true
	case filter.TypeNumber:
		return compareNumbers, true
	case filter.TypeBoolean:
		return compareBools, true
	case filter.TypeDate:
		return compareDates, true
	}
	return nil, false
}

func compareStrings(a, b any) (int, bool) {
	x, ok1 := a.(string)
	y, ok2 := b.(string)
	if !ok1 || !ok2 {
		return 0, false
	}
	return strings.Compare(x, y), true
}

func compareNumbers(a, b any) (int, bool) {
	x, ok1 := filter.ToNumber(a)
	y, ok2 := filter.ToNumber(b)
	if !ok1 || !ok2 {
		return 0, false
	}
	switch {
	case x < y:
		return -1, true
	case x > y:
		return 1, true
	}
	return 0, true
}

// compareBools accepts the 0/1 integers sqlite stores for booleans.
func compareBools(a, b any) (int, bool) {
	x, ok1 := asBool(a)
	y, ok2 := asBool(b)
	if !ok1 || !ok2 {
		return 0, false
	}
	if x == y {
		return 0, true
	}
	return 1, true
}

func asBool(v any) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case int64:
		return b != 0, true
	case int:
		return b != 0, true
	case float64:
		return b != 0, true
	}
	return false, false
}

func compareDates(a, b any) (int, bool) {
	x, ok1 := filter.ToDate(a)
	y, ok2 := filter.ToDate(b)
	if !ok1 || !ok2 {
		return 0, false
	}
	return x.Compare(y), true
}
