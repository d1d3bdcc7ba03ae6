package store

import (
	"context"
	"fmt"
	"strings"

	"rocket-filter/internal/metadata"
)

// Migrator shapes entity tables after their descriptors so compiled filters
// have columns to run against. It only creates tables and adds columns.
type Migrator struct {
	store *Store
}

func NewMigrator(store *Store) *Migrator {
	return &Migrator{store: store}
}

// MigrateAll migrates every entity of the registry, then the join tables of
// its many-to-many relations.
func (m *Migrator) MigrateAll(ctx context.Context, reg *metadata.Registry) error {
	for _, e := range reg.AllEntities() {
		if err := m.Migrate(ctx, e); err != nil {
			return err
		}
	}
	for _, rel := range reg.AllRelations() {
		if !rel.IsManyToMany() {
			continue
		}
		source, target := reg.GetEntity(rel.Source), reg.GetEntity(rel.Target)
		if source == nil || target == nil {
			return fmt.Errorf("relation %s: unknown entity", rel.Name)
		}
		if err := m.MigrateJoinTable(ctx, rel, source, target); err != nil {
			return err
		}
	}
	return nil
}

// Migrate creates the entity table, or adds the columns it is missing.
func (m *Migrator) Migrate(ctx context.Context, entity *metadata.Entity) error {
	exists, err := m.store.Dialect.TableExists(ctx, m.store.DB, entity.Table)
	if err != nil {
		return fmt.Errorf("check table exists: %w", err)
	}
	if !exists {
		return m.createTable(ctx, entity)
	}
	return m.alterTable(ctx, entity)
}

// MigrateJoinTable creates the join table of a many-to-many relation if it doesn't exist.
func (m *Migrator) MigrateJoinTable(ctx context.Context, rel *metadata.Relation, source, target *metadata.Entity) error {
	exists, err := m.store.Dialect.TableExists(ctx, m.store.DB, rel.JoinTable)
	if err != nil {
		return fmt.Errorf("check join table exists: %w", err)
	}
	if exists {
		return nil
	}

	sourceKey := source.GetField(rel.ParentKey(source))
	targetKey := target.GetField(target.PrimaryKey.Field)
	if sourceKey == nil || targetKey == nil {
		return fmt.Errorf("cannot resolve key types for join table %s", rel.JoinTable)
	}

	d := m.store.Dialect
	stmt := fmt.Sprintf(
		"CREATE TABLE %s (\n  %s %s NOT NULL,\n  %s %s NOT NULL,\n  PRIMARY KEY (%s, %s)\n)",
		rel.JoinTable,
		rel.SourceJoinKey, d.ColumnType(sourceKey.Type, sourceKey.Precision),
		rel.TargetJoinKey, d.ColumnType(targetKey.Type, targetKey.Precision),
		rel.SourceJoinKey, rel.TargetJoinKey,
	)
	if _, err := m.store.DB.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("create join table %s: %w", rel.JoinTable, err)
	}
	return nil
}

func (m *Migrator) createTable(ctx context.Context, entity *metadata.Entity) error {
	cols := make([]string, 0, len(entity.Fields)+1)
	for i := range entity.Fields {
		cols = append(cols, m.columnDef(entity, &entity.Fields[i]))
	}
	if entity.SoftDelete && !entity.HasField("deleted_at") {
		cols = append(cols, "deleted_at "+m.store.Dialect.ColumnType("timestamp", 0))
	}

	stmt := fmt.Sprintf("CREATE TABLE %s (\n  %s\n)", entity.Table, strings.Join(cols, ",\n  "))
	if _, err := m.store.DB.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("create table %s: %w", entity.Table, err)
	}
	return m.createIndexes(ctx, entity)
}

func (m *Migrator) alterTable(ctx context.Context, entity *metadata.Entity) error {
	existing, err := m.store.Dialect.GetColumns(ctx, m.store.DB, entity.Table)
	if err != nil {
		return fmt.Errorf("get columns for %s: %w", entity.Table, err)
	}

	var missing []string
	for _, f := range entity.Fields {
		if _, ok := existing[f.Name]; !ok {
			// Added columns stay nullable; existing rows have no value.
			missing = append(missing, f.Name+" "+m.store.Dialect.ColumnType(f.Type, f.Precision))
		}
	}
	if _, ok := existing["deleted_at"]; entity.SoftDelete && !ok && !entity.HasField("deleted_at") {
		missing = append(missing, "deleted_at "+m.store.Dialect.ColumnType("timestamp", 0))
	}
	for _, col := range missing {
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", entity.Table, col)
		if _, err := m.store.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("add column to %s: %w", entity.Table, err)
		}
	}
	return m.createIndexes(ctx, entity)
}

func (m *Migrator) columnDef(entity *metadata.Entity, f *metadata.Field) string {
	d := m.store.Dialect
	col := f.Name + " " + d.ColumnType(f.Type, f.Precision)

	if f.Name == entity.PrimaryKey.Field {
		col += " PRIMARY KEY"
		if entity.PrimaryKey.Generated && entity.PrimaryKey.Type == "uuid" && d.UUIDDefault() != "" {
			col += " " + d.UUIDDefault()
		}
		return col
	}

	if f.Required && !f.Nullable {
		col += " NOT NULL"
	}

	switch v := f.Default.(type) {
	case nil:
	case string:
		col += " DEFAULT '" + strings.ReplaceAll(v, "'", "''") + "'"
	case float64:
		col += fmt.Sprintf(" DEFAULT %v", v)
	case bool:
		col += fmt.Sprintf(" DEFAULT %v", d.BoolParam(v))
	default:
		col += fmt.Sprintf(" DEFAULT '%v'", v)
	}
	return col
}

func (m *Migrator) createIndexes(ctx context.Context, entity *metadata.Entity) error {
	for _, f := range entity.Fields {
		if !f.Unique {
			continue
		}
		stmt := fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS idx_%s_%s ON %s (%s)",
			entity.Table, f.Name, entity.Table, f.Name)
		if _, err := m.store.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create unique index on %s.%s: %w", entity.Table, f.Name, err)
		}
	}
	if entity.SoftDelete {
		if _, err := m.store.DB.ExecContext(ctx, m.store.Dialect.SoftDeleteIndexSQL(entity.Table)); err != nil {
			return fmt.Errorf("create soft delete index on %s: %w", entity.Table, err)
		}
	}
	return nil
}
