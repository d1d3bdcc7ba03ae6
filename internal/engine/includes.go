package engine

import (
	"context"
	"fmt"
	"strings"

	"rocket-filter/internal/metadata"
	"rocket-filter/internal/store"
)

// LoadIncludes fetches the records of each named forward relationship and
// attaches them to the parent rows under the relationship name. one_to_one
// attaches a single record or nil; the others attach a list.
func LoadIncludes(ctx context.Context, s *store.Store, reg *metadata.Registry, entity *metadata.Entity, rows []map[string]any, includes []string) error {
	if len(rows) == 0 || len(includes) == 0 {
		return nil
	}
	for _, name := range includes {
		rel := reg.ForwardRelation(entity.Name, name)
		if rel == nil {
			return &AppError{
				Code:    "UNKNOWN_RELATIONSHIP",
				Status:  400,
				Message: fmt.Sprintf("Unknown include: %s", name),
			}
		}
		target := reg.GetEntity(rel.Target)
		if target == nil {
			return fmt.Errorf("unknown target entity: %s", rel.Target)
		}
		parentKey := rel.ParentKey(entity)
		parentIDs := collectValues(rows, parentKey)

		var grouped map[string][]map[string]any
		var err error
		if rel.IsManyToMany() {
			grouped, err = loadManyToMany(ctx, s, rel, target, parentIDs)
		} else {
			grouped, err = loadChildren(ctx, s, rel, target, parentIDs)
		}
		if err != nil {
			return fmt.Errorf("load include %s: %w", name, err)
		}

		for _, row := range rows {
			children := grouped[fmt.Sprintf("%v", row[parentKey])]
			if rel.IsOneToOne() {
				if len(children) > 0 {
					row[name] = children[0]
				} else {
					row[name] = nil
				}
				continue
			}
			if children == nil {
				children = []map[string]any{}
			}
			row[name] = children
		}
	}
	return nil
}

func loadChildren(ctx context.Context, s *store.Store, rel *metadata.Relation, target *metadata.Entity, parentIDs []any) (map[string][]map[string]any, error) {
	grouped := make(map[string][]map[string]any)
	if len(parentIDs) == 0 {
		return grouped, nil
	}
	pb := s.Dialect.NewParamBuilder()
	sql := fmt.Sprintf("SELECT %s FROM %s WHERE %s",
		strings.Join(target.FieldNames(), ", "), target.Table, s.Dialect.InExpr(rel.TargetKey, pb, parentIDs))
	if target.SoftDelete {
		sql += " AND deleted_at IS NULL"
	}
	sql += " ORDER BY " + target.PrimaryKey.Field

	children, err := store.QueryRows(ctx, s.DB, sql, pb.Params()...)
	if err != nil {
		return nil, err
	}
	if s.Dialect.NeedsBoolFix() {
		store.NormalizeBooleans(children, target.BoolFields())
	}
	for _, child := range children {
		fk := fmt.Sprintf("%v", child[rel.TargetKey])
		grouped[fk] = append(grouped[fk], child)
	}
	return grouped, nil
}

func loadManyToMany(ctx context.Context, s *store.Store, rel *metadata.Relation, target *metadata.Entity, parentIDs []any) (map[string][]map[string]any, error) {
	grouped := make(map[string][]map[string]any)
	if len(parentIDs) == 0 {
		return grouped, nil
	}

	pb := s.Dialect.NewParamBuilder()
	joinSQL := fmt.Sprintf("SELECT %s, %s FROM %s WHERE %s",
		rel.SourceJoinKey, rel.TargetJoinKey, rel.JoinTable, s.Dialect.InExpr(rel.SourceJoinKey, pb, parentIDs))
	joinRows, err := store.QueryRows(ctx, s.DB, joinSQL, pb.Params()...)
	if err != nil {
		return nil, fmt.Errorf("load join table %s: %w", rel.JoinTable, err)
	}
	targetIDs := collectValues(joinRows, rel.TargetJoinKey)
	if len(targetIDs) == 0 {
		return grouped, nil
	}

	pb = s.Dialect.NewParamBuilder()
	targetSQL := fmt.Sprintf("SELECT %s FROM %s WHERE %s",
		strings.Join(target.FieldNames(), ", "), target.Table, s.Dialect.InExpr(target.PrimaryKey.Field, pb, targetIDs))
	if target.SoftDelete {
		targetSQL += " AND deleted_at IS NULL"
	}
	targets, err := store.QueryRows(ctx, s.DB, targetSQL, pb.Params()...)
	if err != nil {
		return nil, err
	}
	if s.Dialect.NeedsBoolFix() {
		store.NormalizeBooleans(targets, target.BoolFields())
	}

	byPK := make(map[string]map[string]any, len(targets))
	for _, t := range targets {
		byPK[fmt.Sprintf("%v", t[target.PrimaryKey.Field])] = t
	}
	for _, jr := range joinRows {
		sid := fmt.Sprintf("%v", jr[rel.SourceJoinKey])
		if t, ok := byPK[fmt.Sprintf("%v", jr[rel.TargetJoinKey])]; ok {
			grouped[sid] = append(grouped[sid], t)
		}
	}
	return grouped, nil
}

func collectValues(rows []map[string]any, field string) []any {
	seen := make(map[string]bool)
	var values []any
	for _, row := range rows {
		v := row[field]
		if v == nil {
			continue
		}
		s := fmt.Sprintf("%v", v)
		if !seen[s] {
			seen[s] = true
			values = append(values, v)
		}
	}
	return values
}
