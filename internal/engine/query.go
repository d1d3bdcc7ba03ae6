package engine

import (
	"fmt"
	"strings"
	"time"

	"rocket-filter/internal/filter"
	"rocket-filter/internal/metadata"
	"rocket-filter/internal/store"
)

const rootAlias = "r0"

type QueryResult struct {
	SQL    string `json:"sql"`
	Params []any  `json:"params"`
}

// SQLCompiler translates validated filter trees into parameterized SQL for
// one dialect. A compiler accumulates parameters and table aliases, so use
// a new one per statement.
type SQLCompiler struct {
	reg     *metadata.Registry
	dialect store.Dialect
	pb      store.ParamBuilder
	aliases int
}

func NewSQLCompiler(reg *metadata.Registry, d store.Dialect) *SQLCompiler {
	return &SQLCompiler{reg: reg, dialect: d, pb: d.NewParamBuilder()}
}

// Params returns the parameters bound so far, in placeholder order.
func (c *SQLCompiler) Params() []any {
	return c.pb.Params()
}

// Where renders f as a boolean SQL expression over entity aliased as r0.
// Inner filters of relations are resolved against the related entity.
func (c *SQLCompiler) Where(f filter.Filter, entity *metadata.Entity) (string, error) {
	return c.node(f, entity, rootAlias, "$")
}

func (c *SQLCompiler) node(f filter.Filter, entity *metadata.Entity, alias, path string) (string, error) {
	switch n := f.(type) {
	case *filter.Leaf:
		return c.leaf(n, entity, alias, path)
	case *filter.Group:
		return c.group(n, entity, alias, path)
	case *filter.Relation:
		return c.relation(n, entity, alias, path)
	}
	return "", &filter.StructuralError{Path: path, Reason: "filter node is nil"}
}

func (c *SQLCompiler) group(g *filter.Group, entity *metadata.Entity, alias, path string) (string, error) {
	if len(g.Filters) == 0 {
		return "", &filter.EmptyGroupError{Path: path, Op: g.Op}
	}
	parts := make([]string, len(g.Filters))
	for i, child := range g.Filters {
		sql, err := c.node(child, entity, alias, fmt.Sprintf("%s.filters[%d]", path, i))
		if err != nil {
			return "", err
		}
		parts[i] = sql
	}
	switch g.Op {
	case filter.LogicalAnd:
		return "(" + strings.Join(parts, " AND ") + ")", nil
	case filter.LogicalOr:
		return "(" + strings.Join(parts, " OR ") + ")", nil
	case filter.LogicalNot:
		// A leaf on a NULL column is false, so its negation must be true.
		return "NOT COALESCE((" + strings.Join(parts, " AND ") + "), FALSE)", nil
	}
	return "", &filter.InvalidGroupOperatorError{Path: path, Op: string(g.Op)}
}

// relation renders an EXISTS subquery correlated on the parent key. Soft
// deleted related rows never match.
func (c *SQLCompiler) relation(r *filter.Relation, entity *metadata.Entity, alias, path string) (string, error) {
	rel := c.reg.ForwardRelation(entity.Name, r.Relationship)
	if rel == nil {
		allowed := make([]string, 0)
		for _, fr := range c.reg.GetRelationsForSource(entity.Name) {
			allowed = append(allowed, fr.Name)
		}
		return "", &filter.UnknownRelationshipError{Path: path, Relationship: r.Relationship, Allowed: allowed}
	}
	target := c.reg.GetEntity(rel.Target)
	if target == nil {
		return "", fmt.Errorf("relation %s: unknown target entity %s", rel.Name, rel.Target)
	}

	c.aliases++
	ta := fmt.Sprintf("r%d", c.aliases)
	parentKey := alias + "." + rel.ParentKey(entity)

	var from string
	var conds []string
	if rel.IsManyToMany() {
		ja := fmt.Sprintf("j%d", c.aliases)
		from = fmt.Sprintf("%s %s JOIN %s %s ON %s.%s = %s.%s",
			rel.JoinTable, ja, target.Table, ta, ta, target.PrimaryKey.Field, ja, rel.TargetJoinKey)
		conds = append(conds, fmt.Sprintf("%s.%s = %s", ja, rel.SourceJoinKey, parentKey))
	} else {
		from = target.Table + " " + ta
		conds = append(conds, fmt.Sprintf("%s.%s = %s", ta, rel.TargetKey, parentKey))
	}
	if target.SoftDelete {
		conds = append(conds, ta+".deleted_at IS NULL")
	}

	inner, err := c.node(r.Filter, target, ta, path+".filter")
	if err != nil {
		return "", err
	}
	conds = append(conds, inner)
	return fmt.Sprintf("EXISTS (SELECT 1 FROM %s WHERE %s)", from, strings.Join(conds, " AND ")), nil
}

func (c *SQLCompiler) leaf(l *filter.Leaf, entity *metadata.Entity, alias, path string) (string, error) {
	field := entity.GetField(l.Field)
	if field == nil {
		return "", &filter.UnknownFieldError{Path: path, Field: l.Field, Allowed: sortedFilterFields(entity)}
	}
	if declared, ok := field.FilterType(); !ok || declared != l.Type {
		return "", &filter.FieldTypeMismatchError{Path: path, Field: l.Field, Declared: declared, Got: l.Type}
	}

	col := alias + "." + l.Field
	if l.Type == filter.TypeDate {
		col = c.dialect.DateExpr(col)
	}
	switch l.Op {
	case filter.OpEq:
		return col + " = " + c.bind(l.Type, l.Value), nil
	case filter.OpNe:
		return col + " != " + c.bind(l.Type, l.Value), nil
	case filter.OpGt:
		return col + " > " + c.bind(l.Type, l.Value), nil
	case filter.OpGte:
		return col + " >= " + c.bind(l.Type, l.Value), nil
	case filter.OpLt:
		return col + " < " + c.bind(l.Type, l.Value), nil
	case filter.OpLte:
		return col + " <= " + c.bind(l.Type, l.Value), nil
	case filter.OpContains, filter.OpStartsWith, filter.OpEndsWith:
		s, _ := l.Value.(string)
		return fmt.Sprintf(`%s LIKE %s ESCAPE '\'`, col, c.pb.Add(likePattern(l.Op, s))), nil
	case filter.OpBetween:
		bounds, ok := leafList(l.Value)
		if !ok || len(bounds) != 2 {
			return "", &filter.StructuralError{Path: path, Reason: "between requires exactly two values"}
		}
		lo := c.bind(l.Type, bounds[0])
		hi := c.bind(l.Type, bounds[1])
		return fmt.Sprintf("%s BETWEEN %s AND %s", col, lo, hi), nil
	case filter.OpIn, filter.OpNin:
		items, ok := leafList(l.Value)
		if !ok {
			return "", &filter.StructuralError{Path: path, Reason: fmt.Sprintf("%s requires an array", l.Op)}
		}
		values := make([]any, len(items))
		for i, v := range items {
			values[i] = c.param(l.Type, v)
		}
		pb := c.pb
		if l.Type == filter.TypeDate {
			pb = dateParams{ParamBuilder: c.pb, dialect: c.dialect}
		}
		if l.Op == filter.OpIn {
			return c.dialect.InExpr(col, pb, values), nil
		}
		return c.dialect.NotInExpr(col, pb, values), nil
	}
	return "", &filter.StructuralError{Path: path, Reason: fmt.Sprintf("unknown operator %q", l.Op)}
}

// bind adds v as a parameter and returns its placeholder. Date placeholders
// go through the dialect's date expression like the column they meet.
func (c *SQLCompiler) bind(t filter.PrimitiveType, v any) string {
	ph := c.pb.Add(c.param(t, v))
	if t == filter.TypeDate {
		return c.dialect.DateExpr(ph)
	}
	return ph
}

// dateParams wraps each placeholder of an in/nin list in the dialect's date
// expression.
type dateParams struct {
	store.ParamBuilder
	dialect store.Dialect
}

func (p dateParams) Add(v any) string {
	return p.dialect.DateExpr(p.ParamBuilder.Add(v))
}

// param converts a leaf value to the form the column stores: numbers as
// float64, booleans through the dialect, dates as RFC 3339 text.
func (c *SQLCompiler) param(t filter.PrimitiveType, v any) any {
	switch t {
	case filter.TypeNumber:
		if n, ok := filter.ToNumber(v); ok {
			return n
		}
	case filter.TypeBoolean:
		if b, ok := v.(bool); ok {
			return c.dialect.BoolParam(b)
		}
	case filter.TypeDate:
		if tm, ok := filter.ToDate(v); ok {
			return tm.UTC().Format(time.RFC3339Nano)
		}
	}
	return v
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func likePattern(op filter.Operator, s string) string {
	s = likeEscaper.Replace(s)
	switch op {
	case filter.OpStartsWith:
		return s + "%"
	case filter.OpEndsWith:
		return "%" + s
	}
	return "%" + s + "%"
}

func leafList(v any) ([]any, bool) {
	switch xs := v.(type) {
	case []any:
		return xs, true
	case []string:
		out := make([]any, len(xs))
		for i, x := range xs {
			out[i] = x
		}
		return out, true
	case []float64:
		out := make([]any, len(xs))
		for i, x := range xs {
			out[i] = x
		}
		return out, true
	}
	return nil, false
}

func sortedFilterFields(entity *metadata.Entity) []string {
	m := filter.Model{Fields: entity.FilterFields()}
	return m.FieldNames()
}

// CompileWhere renders f as a WHERE expression over entity.
func CompileWhere(f filter.Filter, entity *metadata.Entity, reg *metadata.Registry, d store.Dialect) (QueryResult, error) {
	c := NewSQLCompiler(reg, d)
	where, err := c.Where(f, entity)
	if err != nil {
		return QueryResult{}, err
	}
	return QueryResult{SQL: where, Params: c.Params()}, nil
}

// BuildSelectSQL renders a SELECT of entity's columns restricted by f, ordered
// by primary key. A nil filter selects every live row. limit <= 0 means no limit.
func BuildSelectSQL(f filter.Filter, entity *metadata.Entity, reg *metadata.Registry, d store.Dialect, limit int) (QueryResult, error) {
	c := NewSQLCompiler(reg, d)

	cols := make([]string, len(entity.Fields))
	for i, name := range entity.FieldNames() {
		cols[i] = rootAlias + "." + name
	}

	var where []string
	if entity.SoftDelete {
		where = append(where, rootAlias+".deleted_at IS NULL")
	}
	if f != nil {
		w, err := c.Where(f, entity)
		if err != nil {
			return QueryResult{}, err
		}
		where = append(where, w)
	}

	sql := fmt.Sprintf("SELECT %s FROM %s %s", strings.Join(cols, ", "), entity.Table, rootAlias)
	if len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}
	sql += fmt.Sprintf(" ORDER BY %s.%s", rootAlias, entity.PrimaryKey.Field)
	if limit > 0 {
		sql += " LIMIT " + c.pb.Add(limit)
	}
	return QueryResult{SQL: sql, Params: c.Params()}, nil
}
