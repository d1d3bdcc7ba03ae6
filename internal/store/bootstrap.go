package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"rocket-filter/internal/metadata"
)

// Bootstrap creates the metadata system tables when missing.
func (s *Store) Bootstrap(ctx context.Context) error {
	if _, err := s.DB.ExecContext(ctx, s.Dialect.SystemTablesSQL()); err != nil {
		return fmt.Errorf("bootstrap system tables: %w", err)
	}
	return nil
}

// SeedMetadata upserts every entity and relation of doc into the system
// tables in one transaction. Rows not present in doc are left untouched.
func (s *Store) SeedMetadata(ctx context.Context, doc *metadata.Document, log zerolog.Logger) error {
	if err := doc.Validate(); err != nil {
		return fmt.Errorf("seed metadata: %w", err)
	}

	tx, err := s.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("begin seed: %w", err)
	}
	defer tx.Rollback()

	for _, e := range doc.Entities {
		if err := s.upsertEntity(ctx, tx, e); err != nil {
			return err
		}
	}
	for _, rel := range doc.Relations {
		if err := s.upsertRelation(ctx, tx, rel); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit seed: %w", err)
	}
	log.Info().
		Int("entities", len(doc.Entities)).
		Int("relations", len(doc.Relations)).
		Msg("metadata seeded")
	return nil
}

// UpsertEntity stores one entity definition.
func (s *Store) UpsertEntity(ctx context.Context, e *metadata.Entity) error {
	if err := e.Validate(); err != nil {
		return err
	}
	return s.upsertEntity(ctx, s.DB, e)
}

// UpsertRelation stores one relation definition. Its source and target must
// already be stored.
func (s *Store) UpsertRelation(ctx context.Context, rel *metadata.Relation) error {
	if err := rel.Validate(); err != nil {
		return err
	}
	return s.upsertRelation(ctx, s.DB, rel)
}

// DeleteEntity removes an entity definition and, by cascade, the relations
// that reference it. Its table is left in place.
func (s *Store) DeleteEntity(ctx context.Context, name string) error {
	return s.deleteByName(ctx, "_entities", name)
}

func (s *Store) DeleteRelation(ctx context.Context, name string) error {
	return s.deleteByName(ctx, "_relations", name)
}

func (s *Store) upsertEntity(ctx context.Context, q Querier, e *metadata.Entity) error {
	def, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode entity %s: %w", e.Name, err)
	}
	stmt := TouchUpsertSQL(s.Dialect, "_entities", "name", []string{"name", "table_name", "definition"})
	if _, err := Exec(ctx, q, stmt, e.Name, e.Table, string(def)); err != nil {
		return fmt.Errorf("store entity %s: %w", e.Name, MapError(s.Dialect, err))
	}
	return nil
}

func (s *Store) upsertRelation(ctx context.Context, q Querier, rel *metadata.Relation) error {
	def, err := json.Marshal(rel)
	if err != nil {
		return fmt.Errorf("encode relation %s: %w", rel.Name, err)
	}
	stmt := TouchUpsertSQL(s.Dialect, "_relations", "name", []string{"name", "source", "target", "definition"})
	if _, err := Exec(ctx, q, stmt, rel.Name, rel.Source, rel.Target, string(def)); err != nil {
		return fmt.Errorf("store relation %s: %w", rel.Name, MapError(s.Dialect, err))
	}
	return nil
}

func (s *Store) deleteByName(ctx context.Context, table, name string) error {
	n, err := Exec(ctx, s.DB, fmt.Sprintf("DELETE FROM %s WHERE name = %s", table, s.Dialect.Placeholder(1)), name)
	if err != nil {
		return fmt.Errorf("delete from %s: %w", table, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
