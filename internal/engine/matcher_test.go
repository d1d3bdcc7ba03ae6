package engine

import (
	"testing"
	"time"

	"rocket-filter/internal/filter"
)

func mustMatcher(t *testing.T, f filter.Filter) *Matcher {
	t.Helper()
	m, err := CompileMatcher(f)
	if err != nil {
		t.Fatalf("compile matcher: %v", err)
	}
	return m
}

func TestMatcher_Leaves(t *testing.T) {
	record := map[string]any{
		"name":       "Ada Lovelace",
		"age":        float64(36),
		"vip":        int64(1),
		"created_at": "2024-02-10T12:00:00Z",
	}
	name := filter.StringField("name")
	age := filter.NumberField("age")
	created := filter.DateField("created_at")

	cases := []struct {
		name string
		f    filter.Filter
		want bool
	}{
		{"eq", name.Eq("Ada Lovelace"), true},
		{"ne", name.Ne("Ada Lovelace"), false},
		{"contains", name.Contains("Love"), true},
		{"startsWith", name.StartsWith("Ada"), true},
		{"endsWith", name.EndsWith("Ada"), false},
		{"string between", name.Between("A", "B"), true},
		{"in", name.In("Grace", "Ada Lovelace"), true},
		{"nin", name.Nin("Grace"), true},
		{"gt", age.Gt(18), true},
		{"gte", age.Gte(36), true},
		{"lt", age.Lt(36), false},
		{"lte", age.Lte(36), true},
		{"number between", age.Between(30, 40), true},
		{"number nin", age.Nin(36), false},
		{"bool from int", filter.BooleanField("vip").Eq(true), true},
		{"date gt", created.Gt(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)), true},
		{"date between", created.Between(
			time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
			time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := mustMatcher(t, tc.f).Match(record)
			if err != nil {
				t.Fatalf("match: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestMatcher_MissingFieldNeverMatches(t *testing.T) {
	record := map[string]any{"name": nil}
	for _, f := range []filter.Filter{
		filter.StringField("name").Eq("x"),
		filter.StringField("name").Nin("x"),
		filter.NumberField("age").Ne(1),
	} {
		ok, err := mustMatcher(t, f).Match(record)
		if err != nil {
			t.Fatalf("match: %v", err)
		}
		if ok {
			t.Fatalf("expected no match for %T on missing field", f)
		}
	}

	// not inverts the missing-field result.
	ok, _ := mustMatcher(t, filter.Not(filter.StringField("name").Eq("x"))).Match(record)
	if !ok {
		t.Fatal("expected not to match when the inner leaf does not")
	}
}

func TestMatcher_Groups(t *testing.T) {
	age := filter.NumberField("age")
	f := filter.Or(
		filter.And(age.Gte(18), filter.StringField("name").StartsWith("A")),
		filter.Not(age.Lt(65), age.Gt(0)),
	)
	m := mustMatcher(t, f)
	if m.Source() == "" {
		t.Fatal("expected compiled source")
	}

	records := []map[string]any{
		{"name": "Ada", "age": float64(20)},
		{"name": "Bob", "age": float64(20)},
		{"name": "Cy", "age": float64(70)},
	}
	got, err := m.Select(records)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(got) != 2 || got[0]["name"] != "Ada" || got[1]["name"] != "Cy" {
		t.Fatalf("unexpected matches %v", got)
	}
}

func TestMatcher_Relations(t *testing.T) {
	f := filter.Related("orders", filter.And(
		filter.StringField("status").Eq("paid"),
		filter.NumberField("total").Gt(100),
	))
	m := mustMatcher(t, f)

	cases := []struct {
		name   string
		record map[string]any
		want   bool
	}{
		{"any match", map[string]any{"orders": []any{
			map[string]any{"status": "pending", "total": float64(500)},
			map[string]any{"status": "paid", "total": float64(150)},
		}}, true},
		{"split across records", map[string]any{"orders": []map[string]any{
			{"status": "paid", "total": float64(5)},
			{"status": "pending", "total": float64(500)},
		}}, false},
		{"single record", map[string]any{"orders": map[string]any{"status": "paid", "total": float64(101)}}, true},
		{"empty list", map[string]any{"orders": []any{}}, false},
		{"missing", map[string]any{}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := m.Match(tc.record)
			if err != nil {
				t.Fatalf("match: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestMatcher_NestedRelations(t *testing.T) {
	f := filter.Related("orders", filter.And(filter.Related("items",
		filter.StringField("sku").Eq("X-1"))))
	record := map[string]any{"orders": []any{
		map[string]any{"items": []any{map[string]any{"sku": "Y-2"}}},
		map[string]any{"items": []any{map[string]any{"sku": "X-1"}}},
	}}
	ok, err := mustMatcher(t, f).Match(record)
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if !ok {
		t.Fatal("expected nested relation match")
	}
}

func TestCompileMatcher_RejectsEmptyGroup(t *testing.T) {
	if _, err := CompileMatcher(&filter.Group{Op: filter.LogicalAnd}); err == nil {
		t.Fatal("expected empty group error")
	}
}
