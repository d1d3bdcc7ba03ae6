package metadata

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"testing"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

func openMetadataDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	ddl := []string{
		`CREATE TABLE _entities (name TEXT PRIMARY KEY, table_name TEXT NOT NULL, definition TEXT NOT NULL)`,
		`CREATE TABLE _relations (name TEXT PRIMARY KEY, source TEXT NOT NULL, target TEXT NOT NULL, definition TEXT NOT NULL)`,
	}
	for _, stmt := range ddl {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("create system table: %v", err)
		}
	}
	return db
}

func TestLoadAll_FromDatabase(t *testing.T) {
	db := openMetadataDB(t)
	doc, err := ReadFile("testdata/shop.json")
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	for _, e := range doc.Entities {
		def, _ := json.Marshal(e)
		if _, err := db.Exec(`INSERT INTO _entities (name, table_name, definition) VALUES (?1, ?2, ?3)`, e.Name, e.Table, string(def)); err != nil {
			t.Fatalf("insert entity: %v", err)
		}
	}
	for _, rel := range doc.Relations {
		def, _ := json.Marshal(rel)
		if _, err := db.Exec(`INSERT INTO _relations (name, source, target, definition) VALUES (?1, ?2, ?3, ?4)`, rel.Name, rel.Source, rel.Target, string(def)); err != nil {
			t.Fatalf("insert relation: %v", err)
		}
	}

	reg := NewRegistry()
	if err := LoadAll(context.Background(), db, reg, zerolog.New(io.Discard)); err != nil {
		t.Fatalf("load all: %v", err)
	}
	if len(reg.AllEntities()) != 3 {
		t.Fatalf("expected 3 entities, got %d", len(reg.AllEntities()))
	}
	if rel := reg.GetRelation("tags"); rel == nil || !rel.IsManyToMany() {
		t.Fatalf("expected tags relation, got %+v", rel)
	}
}

func TestLoadAll_SkipsInvalidRows(t *testing.T) {
	db := openMetadataDB(t)
	rows := [][]any{
		{"broken", "broken", "{not json"},
		{"nopk", "nopk", `{"name":"nopk","table":"nopk","fields":[{"name":"x","type":"string"}]}`},
		{"ok", "ok", `{"name":"ok","table":"ok","primary_key":{"field":"id"},"fields":[{"name":"id","type":"int"}]}`},
	}
	for _, r := range rows {
		if _, err := db.Exec(`INSERT INTO _entities (name, table_name, definition) VALUES (?1, ?2, ?3)`, r...); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	reg := NewRegistry()
	if err := LoadAll(context.Background(), db, reg, zerolog.New(io.Discard)); err != nil {
		t.Fatalf("load all: %v", err)
	}
	entities := reg.AllEntities()
	if len(entities) != 1 || entities[0].Name != "ok" {
		t.Fatalf("expected only the valid entity, got %d", len(entities))
	}
}

func TestLoadAll_MissingTables(t *testing.T) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer db.Close()
	if err := LoadAll(context.Background(), db, NewRegistry(), zerolog.New(io.Discard)); err == nil {
		t.Fatal("expected error without system tables")
	}
}

func TestReadFile_Missing(t *testing.T) {
	if _, err := ReadFile("testdata/nope.json"); err == nil {
		t.Fatal("expected error for missing file")
	}
}
