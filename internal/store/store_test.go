package store

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/rs/zerolog"

	"rocket-filter/internal/metadata"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), "sqlite", ":memory:", 0)
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func readShop(t *testing.T) *metadata.Document {
	t.Helper()
	doc, err := metadata.ReadFile("../metadata/testdata/shop.json")
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}
	return doc
}

func TestSeedMetadata_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	if err := s.Bootstrap(ctx); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	doc := readShop(t)
	log := zerolog.New(io.Discard)

	if err := s.SeedMetadata(ctx, doc, log); err != nil {
		t.Fatalf("seed: %v", err)
	}
	// Seeding twice updates in place.
	doc.Entities[0].SoftDelete = false
	if err := s.SeedMetadata(ctx, doc, log); err != nil {
		t.Fatalf("reseed: %v", err)
	}

	reg := metadata.NewRegistry()
	if err := metadata.LoadAll(ctx, s.DB, reg, log); err != nil {
		t.Fatalf("load all: %v", err)
	}
	if len(reg.AllEntities()) != 3 || len(reg.AllRelations()) != 2 {
		t.Fatalf("expected 3 entities and 2 relations, got %d and %d", len(reg.AllEntities()), len(reg.AllRelations()))
	}
	if reg.GetEntity("customer").SoftDelete {
		t.Fatal("expected reseeded customer definition")
	}

	row, err := QueryRow(ctx, s.DB, "SELECT COUNT(*) AS n FROM _entities")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if row["n"] != int64(3) {
		t.Fatalf("expected 3 entity rows, got %v", row["n"])
	}
}

func TestSeedMetadata_RejectsInvalidDocument(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	if err := s.Bootstrap(ctx); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	doc := readShop(t)
	doc.Relations[0].Target = "invoice"
	if err := s.SeedMetadata(ctx, doc, zerolog.New(io.Discard)); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestMigrator_MigrateAll(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	reg := metadata.NewRegistry()
	doc := readShop(t)
	reg.Load(doc.Entities, doc.Relations)

	m := NewMigrator(s)
	if err := m.MigrateAll(ctx, reg); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	for _, table := range []string{"customers", "orders", "tags", "customer_tags"} {
		ok, err := s.Dialect.TableExists(ctx, s.DB, table)
		if err != nil || !ok {
			t.Fatalf("expected table %s (err %v)", table, err)
		}
	}
	cols, err := s.Dialect.GetColumns(ctx, s.DB, "customers")
	if err != nil {
		t.Fatalf("columns: %v", err)
	}
	if _, ok := cols["deleted_at"]; !ok {
		t.Fatal("expected deleted_at on soft-delete table")
	}

	// New fields are added to existing tables.
	customer := reg.GetEntity("customer")
	customer.Fields = append(customer.Fields, metadata.Field{Name: "nickname", Type: "string", Required: true})
	if err := m.Migrate(ctx, customer); err != nil {
		t.Fatalf("re-migrate: %v", err)
	}
	cols, _ = s.Dialect.GetColumns(ctx, s.DB, "customers")
	if cols["nickname"] != "TEXT" {
		t.Fatalf("expected nickname TEXT column, got %v", cols)
	}
	if err := m.MigrateAll(ctx, reg); err != nil {
		t.Fatalf("migrate should be idempotent: %v", err)
	}
}

func TestQueryRows_NormalizesValues(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	if _, err := Exec(ctx, s.DB, "CREATE TABLE flags (name TEXT, on_off INTEGER)"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := Exec(ctx, s.DB, "INSERT INTO flags VALUES (?1, ?2), (?3, ?4)", "a", 1, "b", 0); err != nil {
		t.Fatalf("insert: %v", err)
	}
	rows, err := QueryRows(ctx, s.DB, "SELECT name, on_off FROM flags ORDER BY name")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	NormalizeBooleans(rows, []string{"on_off"})
	if rows[0]["on_off"] != true || rows[1]["on_off"] != false {
		t.Fatalf("expected booleans, got %v", rows)
	}
	if _, err := QueryRow(ctx, s.DB, "SELECT name FROM flags WHERE name = ?1", "zzz"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpsertAndDeleteDefinitions(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	if err := s.Bootstrap(ctx); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	doc := readShop(t)
	log := zerolog.New(io.Discard)
	if err := s.SeedMetadata(ctx, doc, log); err != nil {
		t.Fatalf("seed: %v", err)
	}

	tag := doc.Entities[2]
	tag.Fields = append(tag.Fields, metadata.Field{Name: "color", Type: "string"})
	if err := s.UpsertEntity(ctx, tag); err != nil {
		t.Fatalf("upsert entity: %v", err)
	}
	if err := s.UpsertEntity(ctx, &metadata.Entity{Name: "broken"}); err == nil {
		t.Fatal("expected invalid entity to be rejected")
	}

	if err := s.DeleteRelation(ctx, "tags"); err != nil {
		t.Fatalf("delete relation: %v", err)
	}
	if err := s.DeleteRelation(ctx, "tags"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	// Deleting the order entity cascades to the orders relation.
	if err := s.DeleteEntity(ctx, "order"); err != nil {
		t.Fatalf("delete entity: %v", err)
	}

	reg := metadata.NewRegistry()
	if err := metadata.LoadAll(ctx, s.DB, reg, log); err != nil {
		t.Fatalf("load all: %v", err)
	}
	if len(reg.AllEntities()) != 2 || len(reg.AllRelations()) != 0 {
		t.Fatalf("expected 2 entities and no relations, got %d and %d", len(reg.AllEntities()), len(reg.AllRelations()))
	}
	if !reg.GetEntity("tag").HasField("color") {
		t.Fatal("expected updated tag definition")
	}
}

func TestUpsertEntity_RefreshesUpdatedAt(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	if err := s.Bootstrap(ctx); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	tag := readShop(t).Entities[2]
	if err := s.UpsertEntity(ctx, tag); err != nil {
		t.Fatalf("insert entity: %v", err)
	}
	if _, err := Exec(ctx, s.DB, "UPDATE _entities SET updated_at = '2000-01-01 00:00:00' WHERE name = ?1", tag.Name); err != nil {
		t.Fatalf("backdate: %v", err)
	}
	if err := s.UpsertEntity(ctx, tag); err != nil {
		t.Fatalf("replace entity: %v", err)
	}
	row, err := QueryRow(ctx, s.DB, "SELECT updated_at FROM _entities WHERE name = ?1", tag.Name)
	if err != nil {
		t.Fatalf("read updated_at: %v", err)
	}
	if got, _ := row["updated_at"].(string); got == "" || got == "2000-01-01 00:00:00" {
		t.Fatalf("expected updated_at to be refreshed, got %v", row["updated_at"])
	}
}
