package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"rocket-filter/internal/auth"
)

const shopMetadata = "../../internal/metadata/testdata/shop.json"

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--metadata", shopMetadata}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestValidateCmd(t *testing.T) {
	out, err := run(t, `{"field": "age", "type": "number", "op": "gt", "value": 30}`, "validate", "customer")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	var tree map[string]any
	if err := json.Unmarshal([]byte(out), &tree); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if tree["field"] != "age" || tree["op"] != "gt" {
		t.Fatalf("unexpected tree %v", tree)
	}

	_, err = run(t, `{"field": "nope", "type": "string", "op": "eq", "value": "x"}`, "validate", "customer")
	if err == nil || !strings.Contains(err.Error(), "invalid at $") {
		t.Fatalf("expected unknown field error, got %v", err)
	}

	if _, err := run(t, `{}`, "validate", "invoice"); err == nil {
		t.Fatal("expected unknown entity error")
	}
}

func TestValidateCmd_SQL(t *testing.T) {
	body := `{"type": "relation", "relationship": "orders",
		"filter": {"field": "status", "type": "string", "op": "eq", "value": "paid"}}`
	out, err := run(t, body, "validate", "customer", "--sql", "sqlite")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if !strings.Contains(out, "EXISTS (SELECT 1 FROM orders r1 WHERE r1.customer_id = r0.id AND r1.status = ?1)") {
		t.Fatalf("unexpected sql output %s", out)
	}
}

func TestFieldsCmd(t *testing.T) {
	out, err := run(t, "", "fields", "customer")
	if err != nil {
		t.Fatalf("fields: %v", err)
	}
	if !strings.Contains(out, "number   age") || !strings.Contains(out, "rel      tags -> tag") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestTokenCmd(t *testing.T) {
	out, err := run(t, "", "token", "--user", "u1", "--role", "admin")
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	claims, err := auth.ParseAccessToken(strings.TrimSpace(out), "changeme-secret")
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if claims.Subject != "u1" || len(claims.Roles) != 1 {
		t.Fatalf("unexpected claims %+v", claims)
	}
}
