package metadata

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog"
)

// Document is the JSON file form of a metadata set.
type Document struct {
	Entities  []*Entity   `json:"entities"`
	Relations []*Relation `json:"relations"`
}

// Validate checks every descriptor and that relations only reference
// declared entities.
func (d *Document) Validate() error {
	names := make(map[string]bool, len(d.Entities))
	for _, e := range d.Entities {
		if err := e.Validate(); err != nil {
			return err
		}
		if names[e.Name] {
			return fmt.Errorf("duplicate entity %s", e.Name)
		}
		names[e.Name] = true
	}
	relNames := make(map[string]bool, len(d.Relations))
	for _, rel := range d.Relations {
		if err := rel.Validate(); err != nil {
			return err
		}
		if relNames[rel.Name] {
			return fmt.Errorf("duplicate relation %s", rel.Name)
		}
		relNames[rel.Name] = true
		if !names[rel.Source] {
			return fmt.Errorf("relation %s: unknown source entity %s", rel.Name, rel.Source)
		}
		if !names[rel.Target] {
			return fmt.Errorf("relation %s: unknown target entity %s", rel.Name, rel.Target)
		}
	}
	return nil
}

// ReadFile parses and validates a metadata file.
func ReadFile(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read metadata file: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse metadata file %s: %w", path, err)
	}
	if err := doc.Validate(); err != nil {
		return nil, fmt.Errorf("metadata file %s: %w", path, err)
	}
	return &doc, nil
}

// LoadFile reads a metadata file into the registry.
func LoadFile(path string, reg *Registry, log zerolog.Logger) error {
	doc, err := ReadFile(path)
	if err != nil {
		return err
	}
	reg.Load(doc.Entities, doc.Relations)
	log.Info().
		Str("source", path).
		Int("entities", len(doc.Entities)).
		Int("relations", len(doc.Relations)).
		Msg("metadata loaded")
	return nil
}

// LoadAll reads all entities and relations from the database and populates the registry.
func LoadAll(ctx context.Context, db *sql.DB, reg *Registry, log zerolog.Logger) error {
	entities, err := loadEntities(ctx, db, log)
	if err != nil {
		return fmt.Errorf("load entities: %w", err)
	}

	relations, err := loadRelations(ctx, db, log)
	if err != nil {
		return fmt.Errorf("load relations: %w", err)
	}

	reg.Load(entities, relations)

	log.Info().
		Str("source", "database").
		Int("entities", len(entities)).
		Int("relations", len(relations)).
		Msg("metadata loaded")
	return nil
}

// Reload is an alias for LoadAll.
func Reload(ctx context.Context, db *sql.DB, reg *Registry, log zerolog.Logger) error {
	return LoadAll(ctx, db, reg, log)
}

func loadEntities(ctx context.Context, db *sql.DB, log zerolog.Logger) ([]*Entity, error) {
	rows, err := db.QueryContext(ctx, "SELECT name, definition FROM _entities ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entities []*Entity
	for rows.Next() {
		var name string
		var defJSON []byte
		if err := rows.Scan(&name, &defJSON); err != nil {
			return nil, fmt.Errorf("scan entity row: %w", err)
		}

		var entity Entity
		if err := json.Unmarshal(defJSON, &entity); err != nil {
			log.Warn().Err(err).Str("entity", name).Msg("skipping entity with invalid JSON")
			continue
		}
		if err := entity.Validate(); err != nil {
			log.Warn().Err(err).Str("entity", name).Msg("skipping invalid entity")
			continue
		}
		entities = append(entities, &entity)
	}
	return entities, rows.Err()
}

func loadRelations(ctx context.Context, db *sql.DB, log zerolog.Logger) ([]*Relation, error) {
	rows, err := db.QueryContext(ctx, "SELECT name, definition FROM _relations ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var relations []*Relation
	for rows.Next() {
		var name string
		var defJSON []byte
		if err := rows.Scan(&name, &defJSON); err != nil {
			return nil, fmt.Errorf("scan relation row: %w", err)
		}

		var rel Relation
		if err := json.Unmarshal(defJSON, &rel); err != nil {
			log.Warn().Err(err).Str("relation", name).Msg("skipping relation with invalid JSON")
			continue
		}
		if err := rel.Validate(); err != nil {
			log.Warn().Err(err).Str("relation", name).Msg("skipping invalid relation")
			continue
		}
		relations = append(relations, &rel)
	}
	return relations, rows.Err()
}
