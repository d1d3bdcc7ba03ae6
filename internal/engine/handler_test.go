package engine

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"rocket-filter/internal/metadata"
	"rocket-filter/internal/store"
)

func newTestApp(h *Handler) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(zerolog.New(io.Discard))})
	RegisterFilterRoutes(app, h)
	return app
}

func doRequest(t *testing.T, app *fiber.App, method, path, body string) (int, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request %s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var out map[string]any
	data, _ := io.ReadAll(resp.Body)
	if len(data) > 0 {
		if err := json.Unmarshal(data, &out); err != nil {
			t.Fatalf("decode response %s: %v", data, err)
		}
	}
	return resp.StatusCode, out
}

func errorCode(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func TestHandler_Operators(t *testing.T) {
	app := newTestApp(NewHandler(nil, loadShop(t), Options{}, zerolog.Nop()))
	status, body := doRequest(t, app, "GET", "/api/_filters/operators", "")
	if status != 200 {
		t.Fatalf("expected 200, got %d", status)
	}
	data := body["data"].(map[string]any)
	boolean := data["boolean"].([]any)
	if len(boolean) != 2 {
		t.Fatalf("expected eq and ne for booleans, got %v", boolean)
	}
	first := boolean[0].(map[string]any)
	if first["op"] != "eq" || first["arity"] == "" {
		t.Fatalf("unexpected operator entry %v", first)
	}
	for _, op := range data["string"].([]any) {
		if op.(map[string]any)["op"] == "gt" {
			t.Fatal("strings should not offer gt")
		}
	}
	if len(data["number"].([]any)) != 9 {
		t.Fatalf("expected 9 number operators, got %v", data["number"])
	}
}

func TestHandler_Fields(t *testing.T) {
	app := newTestApp(NewHandler(nil, loadShop(t), Options{}, zerolog.Nop()))

	status, body := doRequest(t, app, "GET", "/api/customer/_filters/fields", "")
	if status != 200 {
		t.Fatalf("expected 200, got %d", status)
	}
	data := body["data"].(map[string]any)
	fields := data["fields"].(map[string]any)
	if len(fields["boolean"].([]any)) != 1 || len(fields["date"].([]any)) != 1 {
		t.Fatalf("unexpected fields %v", fields)
	}
	rels := data["relationships"].(map[string]any)
	if rels["orders"] != "order" || rels["tags"] != "tag" {
		t.Fatalf("unexpected relationships %v", rels)
	}

	status, body = doRequest(t, app, "GET", "/api/invoice/_filters/fields", "")
	if status != 404 || errorCode(body) != "UNKNOWN_ENTITY" {
		t.Fatalf("expected 404 UNKNOWN_ENTITY, got %d %v", status, body)
	}
}

func TestHandler_Validate(t *testing.T) {
	app := newTestApp(NewHandler(nil, loadShop(t), Options{}, zerolog.Nop()))

	status, body := doRequest(t, app, "POST", "/api/customer/_filters/validate",
		`{"filter": {"type": "group", "op": "and", "filters": [
			{"field": "name", "type": "string", "op": "eq", "value": "Ada"}
		]}}`)
	if status != 200 {
		t.Fatalf("expected 200, got %d %v", status, body)
	}
	data := body["data"].(map[string]any)
	if data["valid"] != true {
		t.Fatalf("expected valid, got %v", data)
	}
	tree := data["filter"].(map[string]any)
	if tree["type"] != "group" || tree["op"] != "and" {
		t.Fatalf("expected normalized tree, got %v", tree)
	}

	cases := []struct {
		name string
		body string
		code string
		path string
	}{
		{"missing filter", `{}`, "BAD_REQUEST", ""},
		{"bad json", `{"filter":`, "BAD_REQUEST", ""},
		{"unknown field", `{"filter": {"field": "nickname", "type": "string", "op": "eq", "value": "x"}}`, "UNKNOWN_FIELD", "$"},
		{"type mismatch", `{"filter": {"field": "age", "type": "string", "op": "eq", "value": "x"}}`, "FIELD_TYPE_MISMATCH", "$"},
		{"empty group", `{"filter": {"type": "group", "op": "or", "filters": []}}`, "EMPTY_GROUP", "$"},
		{"bad operator", `{"filter": {"field": "vip", "type": "boolean", "op": "gt", "value": true}}`, "INVALID_FILTER", "$"},
		{"unknown relationship", `{"filter": {"type": "relation", "relationship": "invoices",
			"filter": {"field": "name", "type": "string", "op": "eq", "value": "x"}}}`, "UNKNOWN_RELATIONSHIP", "$"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, body := doRequest(t, app, "POST", "/api/customer/_filters/validate", tc.body)
			if status != 400 {
				t.Fatalf("expected 400, got %d %v", status, body)
			}
			if got := errorCode(body); got != tc.code {
				t.Fatalf("expected %s, got %s (%v)", tc.code, got, body)
			}
			if tc.path == "" {
				return
			}
			details := body["error"].(map[string]any)["details"].([]any)
			if details[0].(map[string]any)["path"] != tc.path {
				t.Fatalf("expected path %s, got %v", tc.path, details)
			}
		})
	}
}

func TestHandler_ValidateRelationScope(t *testing.T) {
	reg := loadShop(t)
	// status is an order field; customers have none.
	body := `{"filter": {"type": "relation", "relationship": "orders",
		"filter": {"field": "status", "type": "string", "op": "eq", "value": "paid"}}}`

	outer := newTestApp(NewHandler(nil, reg, Options{}, zerolog.Nop()))
	status, resp := doRequest(t, outer, "POST", "/api/customer/_filters/validate", body)
	if status != 400 || errorCode(resp) != "UNKNOWN_FIELD" {
		t.Fatalf("expected outer scope to reject status, got %d %v", status, resp)
	}

	scoped := newTestApp(NewHandler(nil, reg, Options{ScopeRelations: true}, zerolog.Nop()))
	if status, resp := doRequest(t, scoped, "POST", "/api/customer/_filters/validate", body); status != 200 {
		t.Fatalf("expected related scope to accept status, got %d %v", status, resp)
	}

	// SQL always resolves relations against the related entity.
	if status, resp := doRequest(t, outer, "POST", "/api/customer/_filters/sql", body); status != 200 {
		t.Fatalf("expected sql to accept status, got %d %v", status, resp)
	}
}

func TestHandler_MaxDepth(t *testing.T) {
	app := newTestApp(NewHandler(nil, loadShop(t), Options{MaxDepth: 2}, zerolog.Nop()))
	body := `{"filter": {"type": "group", "op": "and", "filters": [
		{"type": "group", "op": "and", "filters": [
			{"field": "name", "type": "string", "op": "eq", "value": "x"}
		]}
	]}}`
	status, resp := doRequest(t, app, "POST", "/api/customer/_filters/validate", body)
	if status != 400 || errorCode(resp) != "INVALID_FILTER" {
		t.Fatalf("expected depth error, got %d %v", status, resp)
	}
}

func TestHandler_SQL(t *testing.T) {
	app := newTestApp(NewHandler(nil, loadShop(t), Options{}, zerolog.Nop()))
	body := `{"filter": {"field": "age", "type": "number", "op": "gte", "value": 21}}`

	status, resp := doRequest(t, app, "POST", "/api/customer/_filters/sql", body)
	if status != 200 {
		t.Fatalf("expected 200, got %d %v", status, resp)
	}
	data := resp["data"].(map[string]any)
	if data["dialect"] != "postgres" {
		t.Fatalf("expected postgres by default, got %v", data["dialect"])
	}
	where := data["where"].(map[string]any)
	if where["sql"] != "r0.age >= $1" {
		t.Fatalf("unexpected where %v", where)
	}
	if params := where["params"].([]any); len(params) != 1 || params[0] != float64(21) {
		t.Fatalf("unexpected params %v", params)
	}
	sel := data["select"].(map[string]any)
	if !strings.Contains(sel["sql"].(string), "WHERE r0.deleted_at IS NULL AND r0.age >= $1") {
		t.Fatalf("unexpected select %v", sel)
	}

	status, resp = doRequest(t, app, "POST", "/api/customer/_filters/sql?dialect=sqlite", body)
	if status != 200 || resp["data"].(map[string]any)["where"].(map[string]any)["sql"] != "r0.age >= ?1" {
		t.Fatalf("expected sqlite placeholders, got %d %v", status, resp)
	}

	status, resp = doRequest(t, app, "POST", "/api/customer/_filters/sql?dialect=oracle", body)
	if status != 400 || errorCode(resp) != "BAD_REQUEST" {
		t.Fatalf("expected unknown dialect error, got %d %v", status, resp)
	}
}

func TestHandler_Match(t *testing.T) {
	app := newTestApp(NewHandler(nil, loadShop(t), Options{}, zerolog.Nop()))
	body := `{
		"filter": {"type": "relation", "relationship": "orders",
			"filter": {"field": "status", "type": "string", "op": "eq", "value": "paid"}},
		"records": [
			{"name": "Ada", "orders": [{"status": "paid"}]},
			{"name": "Bob", "orders": [{"status": "pending"}]},
			{"name": "Cy"}
		]
	}`
	status, resp := doRequest(t, app, "POST", "/api/customer/_filters/match", body)
	if status != 200 {
		t.Fatalf("expected 200, got %d %v", status, resp)
	}
	data := resp["data"].([]any)
	if len(data) != 1 || data[0].(map[string]any)["name"] != "Ada" {
		t.Fatalf("unexpected matches %v", data)
	}
	meta := resp["meta"].(map[string]any)
	if meta["total"] != float64(3) || meta["matched"] != float64(1) {
		t.Fatalf("unexpected meta %v", meta)
	}

	status, resp = doRequest(t, app, "POST", "/api/customer/_filters/match",
		`{"filter": {"field": "name", "type": "string", "op": "eq", "value": "x"}}`)
	if status != 200 || len(resp["data"].([]any)) != 0 {
		t.Fatalf("expected empty match list, got %d %v", status, resp)
	}
}

func TestHandler_QueryWithoutDatabase(t *testing.T) {
	app := newTestApp(NewHandler(nil, loadShop(t), Options{}, zerolog.Nop()))
	status, resp := doRequest(t, app, "POST", "/api/customer/_filters/query", `{}`)
	if status != 503 || errorCode(resp) != "NO_DATABASE" {
		t.Fatalf("expected 503 NO_DATABASE, got %d %v", status, resp)
	}
}

func openShopStore(t *testing.T) (*store.Store, *metadata.Registry) {
	t.Helper()
	ctx := context.Background()
	s, err := store.Open(ctx, "sqlite", ":memory:", 0)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(s.Close)
	reg := loadShop(t)
	if err := store.NewMigrator(s).MigrateAll(ctx, reg); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	exec := func(sql string, args ...any) {
		t.Helper()
		if _, err := store.Exec(ctx, s.DB, sql, args...); err != nil {
			t.Fatalf("exec %s: %v", sql, err)
		}
	}
	exec(`INSERT INTO customers (id, name, email, age, vip, created_at) VALUES
		('c1', 'Ada', 'ada@example.org', 36, 1, '2024-01-05T00:00:00Z'),
		('c2', 'Bob', 'bob@example.com', 17, 0, '2024-02-05T00:00:00Z'),
		('c3', 'Cy', 'cy_x@example.org', 70, 0, '2024-03-05T00:00:00Z')`)
	exec(`UPDATE customers SET deleted_at = '2024-04-01T00:00:00Z' WHERE id = 'c3'`)
	exec(`INSERT INTO orders (id, customer_id, total, status, placed_at) VALUES
		('o1', 'c1', 120.5, 'paid', '2024-01-06T00:00:00Z'),
		('o2', 'c1', 10, 'pending', '2024-01-07T00:00:00Z'),
		('o3', 'c2', 99, 'paid', '2024-02-06T00:00:00Z')`)
	exec(`INSERT INTO tags (id, label) VALUES ('t1', 'gold'), ('t2', 'new')`)
	exec(`INSERT INTO customer_tags (customer_id, tag_id) VALUES ('c1', 't1'), ('c2', 't2')`)
	return s, reg
}

func TestHandler_Query(t *testing.T) {
	s, reg := openShopStore(t)
	app := newTestApp(NewHandler(s, reg, Options{}, zerolog.Nop()))

	status, resp := doRequest(t, app, "POST", "/api/customer/_filters/query?include=orders,tags", `{"filter":
		{"type": "relation", "relationship": "orders", "filter": {"type": "group", "op": "and", "filters": [
			{"field": "status", "type": "string", "op": "eq", "value": "paid"},
			{"field": "total", "type": "number", "op": "gt", "value": 100}
		]}}}`)
	if status != 200 {
		t.Fatalf("expected 200, got %d %v", status, resp)
	}
	rows := resp["data"].([]any)
	if len(rows) != 1 {
		t.Fatalf("expected one customer, got %v", rows)
	}
	ada := rows[0].(map[string]any)
	if ada["id"] != "c1" || ada["vip"] != true {
		t.Fatalf("unexpected row %v", ada)
	}
	if orders := ada["orders"].([]any); len(orders) != 2 {
		t.Fatalf("expected both orders included, got %v", orders)
	}
	if tags := ada["tags"].([]any); len(tags) != 1 || tags[0].(map[string]any)["label"] != "gold" {
		t.Fatalf("expected gold tag, got %v", ada["tags"])
	}

	// No filter returns every live row; c3 is soft deleted.
	status, resp = doRequest(t, app, "POST", "/api/customer/_filters/query?limit=5", `{}`)
	if status != 200 || len(resp["data"].([]any)) != 2 {
		t.Fatalf("expected two live customers, got %d %v", status, resp)
	}
	if resp["meta"].(map[string]any)["limit"] != float64(5) {
		t.Fatalf("unexpected meta %v", resp["meta"])
	}

	status, resp = doRequest(t, app, "POST", "/api/customer/_filters/query?include=invoices", `{}`)
	if status != 400 || errorCode(resp) != "UNKNOWN_RELATIONSHIP" {
		t.Fatalf("expected unknown include error, got %d %v", status, resp)
	}

	status, resp = doRequest(t, app, "POST", "/api/customer/_filters/query?limit=0", `{}`)
	if status != 400 {
		t.Fatalf("expected bad limit error, got %d %v", status, resp)
	}
}

// The matcher and the compiled SQL must agree on the same rows.
func TestQueryAgreesWithMatcher(t *testing.T) {
	s, reg := openShopStore(t)
	ctx := context.Background()
	customer := reg.GetEntity("customer")

	// c4 has NULL columns and a fractional timestamp; c5 stores a bare date.
	if _, err := store.Exec(ctx, s.DB, `INSERT INTO customers (id, name, email, age, vip, created_at) VALUES
		('c4', 'Dee', NULL, NULL, NULL, '2024-01-05T00:00:00.5Z'),
		('c5', 'Eve', 'eve@example.org', 50, 1, '2024-01-05')`); err != nil {
		t.Fatalf("insert customers: %v", err)
	}

	cases := []struct {
		filter string
		want   []string
	}{
		{`{"field": "vip", "type": "boolean", "op": "eq", "value": false}`, []string{"c2"}},
		{`{"field": "email", "type": "string", "op": "endsWith", "value": ".org"}`, []string{"c1", "c5"}},
		{`{"field": "email", "type": "string", "op": "contains", "value": "_"}`, nil},
		{`{"field": "age", "type": "number", "op": "between", "value": [18, 40]}`, []string{"c1"}},
		{`{"field": "created_at", "type": "date", "op": "gte", "value": "2024-02-01"}`, []string{"c2"}},
		{`{"field": "name", "type": "string", "op": "nin", "value": ["Ada"]}`, []string{"c2", "c4", "c5"}},
		{`{"field": "email", "type": "string", "op": "nin", "value": []}`, []string{"c1", "c2", "c5"}},
		{`{"type": "group", "op": "not", "filters": [{"field": "age", "type": "number", "op": "lt", "value": 18}]}`,
			[]string{"c1", "c4", "c5"}},
		{`{"type": "group", "op": "not", "filters": [{"type": "group", "op": "or", "filters": [
			{"field": "age", "type": "number", "op": "lt", "value": 18},
			{"field": "vip", "type": "boolean", "op": "eq", "value": true}]}]}`, []string{"c4"}},
		{`{"type": "group", "op": "not", "filters": [{"type": "group", "op": "not", "filters": [
			{"field": "email", "type": "string", "op": "endsWith", "value": ".org"}]}]}`, []string{"c1", "c5"}},
		{`{"field": "created_at", "type": "date", "op": "gte", "value": "2024-01-05T00:00:00.1Z"}`, []string{"c2", "c4"}},
		{`{"field": "created_at", "type": "date", "op": "eq", "value": "2024-01-05"}`, []string{"c1", "c5"}},
		{`{"field": "created_at", "type": "date", "op": "between", "value": ["2024-01-05T00:00:00.2Z", "2024-01-06"]}`,
			[]string{"c4"}},
		{`{"field": "created_at", "type": "date", "op": "in", "value": ["2024-01-05", "2024-02-05T00:00:00Z"]}`,
			[]string{"c1", "c2", "c5"}},
		{`{"field": "created_at", "type": "date", "op": "nin", "value": ["2024-01-05T00:00:00+00:00"]}`,
			[]string{"c2", "c4"}},
	}
	all, err := store.QueryRows(ctx, s.DB, "SELECT id, name, email, age, vip, created_at FROM customers WHERE deleted_at IS NULL ORDER BY id")
	if err != nil {
		t.Fatalf("load customers: %v", err)
	}
	store.NormalizeBooleans(all, customer.BoolFields())

	ids := func(rows []map[string]any) []string {
		var out []string
		for _, r := range rows {
			out = append(out, r["id"].(string))
		}
		return out
	}
	for _, tc := range cases {
		f := parseShopFilter(t, reg, "customer", tc.filter)
		q, err := BuildSelectSQL(f, customer, reg, s.Dialect, 0)
		if err != nil {
			t.Fatalf("build %s: %v", tc.filter, err)
		}
		rows, err := store.QueryRows(ctx, s.DB, q.SQL, q.Params...)
		if err != nil {
			t.Fatalf("query %s: %v", q.SQL, err)
		}

		matched, err := mustMatcher(t, f).Select(all)
		if err != nil {
			t.Fatalf("match: %v", err)
		}
		sqlIDs, matchIDs := ids(rows), ids(matched)
		if !reflect.DeepEqual(sqlIDs, tc.want) || !reflect.DeepEqual(matchIDs, tc.want) {
			t.Fatalf("%s: expected %v, sql=%v matcher=%v", tc.filter, tc.want, sqlIDs, matchIDs)
		}
	}
}
