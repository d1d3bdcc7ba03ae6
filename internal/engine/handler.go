package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"rocket-filter/internal/filter"
	"rocket-filter/internal/instrument"
	"rocket-filter/internal/metadata"
	"rocket-filter/internal/store"
)

const (
	defaultQueryLimit = 100
	maxQueryLimit     = 1000
)

// Options configures filter validation for the handlers.
type Options struct {
	MaxDepth int
	// ScopeRelations validates relation filters against the related entity
	// on the validate endpoint. SQL, match and query always do.
	ScopeRelations bool
}

type Handler struct {
	store    *store.Store
	registry *metadata.Registry
	dialect  store.Dialect
	opts     Options
	log      zerolog.Logger
}

// NewHandler builds the filter API. s may be nil; the query endpoint is then
// unavailable and SQL renders for postgres unless a dialect is requested.
func NewHandler(s *store.Store, reg *metadata.Registry, opts Options, log zerolog.Logger) *Handler {
	d := store.NewDialect("postgres")
	if s != nil {
		d = s.Dialect
	}
	return &Handler{store: s, registry: reg, dialect: d, opts: opts, log: log}
}

type filterRequest struct {
	Filter  json.RawMessage  `json:"filter"`
	Records []map[string]any `json:"records"`
}

type operatorInfo struct {
	Op    filter.Operator `json:"op"`
	Arity string          `json:"arity"`
}

// Operators handles GET /api/_filters/operators
func (h *Handler) Operators(c *fiber.Ctx) error {
	out := make(map[filter.PrimitiveType][]operatorInfo)
	for _, t := range filter.PrimitiveTypes() {
		fam, _ := filter.FamilyFor(t)
		ops := fam.Operators()
		infos := make([]operatorInfo, len(ops))
		for i, op := range ops {
			infos[i] = operatorInfo{Op: op, Arity: op.Arity().String()}
		}
		out[t] = infos
	}
	return c.JSON(fiber.Map{"data": out})
}

// Fields handles GET /api/:entity/_filters/fields
func (h *Handler) Fields(c *fiber.Ctx) error {
	entity, err := h.resolveEntity(c)
	if err != nil {
		return err
	}
	m, _ := h.registry.FilterModel(entity.Name)
	relationships := m.Relationships
	if relationships == nil {
		relationships = map[string]string{}
	}
	return c.JSON(fiber.Map{"data": fiber.Map{
		"entity":        entity.Name,
		"fields":        m.Offerable(),
		"relationships": relationships,
	}})
}

// Validate handles POST /api/:entity/_filters/validate
func (h *Handler) Validate(c *fiber.Ctx) error {
	entity, err := h.resolveEntity(c)
	if err != nil {
		return err
	}
	req, err := parseBody(c)
	if err != nil {
		return err
	}
	f, err := h.parseFilter(c.UserContext(), entity, req.Filter, h.opts.ScopeRelations)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"valid": true, "filter": f}})
}

// SQL handles POST /api/:entity/_filters/sql[?dialect=sqlite]
func (h *Handler) SQL(c *fiber.Ctx) error {
	entity, err := h.resolveEntity(c)
	if err != nil {
		return err
	}
	d := h.dialect
	if name := c.Query("dialect"); name != "" {
		if name != "postgres" && name != "sqlite" {
			return BadRequestError(fmt.Sprintf("Unknown dialect: %s", name))
		}
		d = store.NewDialect(name)
	}
	req, err := parseBody(c)
	if err != nil {
		return err
	}
	f, err := h.parseFilter(c.UserContext(), entity, req.Filter, true)
	if err != nil {
		return err
	}

	where, err := CompileWhere(f, entity, h.registry, d)
	if err != nil {
		return FilterError(err)
	}
	sel, err := BuildSelectSQL(f, entity, h.registry, d, 0)
	if err != nil {
		return FilterError(err)
	}
	return c.JSON(fiber.Map{"data": fiber.Map{
		"dialect": d.Name(),
		"where":   nonNilParams(where),
		"select":  nonNilParams(sel),
	}})
}

// Match handles POST /api/:entity/_filters/match
func (h *Handler) Match(c *fiber.Ctx) error {
	entity, err := h.resolveEntity(c)
	if err != nil {
		return err
	}
	req, err := parseBody(c)
	if err != nil {
		return err
	}
	f, err := h.parseFilter(c.UserContext(), entity, req.Filter, true)
	if err != nil {
		return err
	}

	m, err := CompileMatcher(f)
	if err != nil {
		return fmt.Errorf("compile matcher: %w", err)
	}
	matched, err := m.Select(req.Records)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": matched, "meta": fiber.Map{
		"total":   len(req.Records),
		"matched": len(matched),
	}})
}

// Query handles POST /api/:entity/_filters/query[?limit=N&include=a,b]
func (h *Handler) Query(c *fiber.Ctx) error {
	if h.store == nil {
		return NewAppError("NO_DATABASE", fiber.StatusServiceUnavailable, "Query requires a database connection")
	}
	entity, err := h.resolveEntity(c)
	if err != nil {
		return err
	}
	limit, err := parseLimit(c.Query("limit"))
	if err != nil {
		return err
	}
	req, err := parseBody(c)
	if err != nil {
		return err
	}

	var f filter.Filter
	if !isNullFilter(req.Filter) {
		if f, err = h.parseFilter(c.UserContext(), entity, req.Filter, true); err != nil {
			return err
		}
	}

	q, err := BuildSelectSQL(f, entity, h.registry, h.store.Dialect, limit)
	if err != nil {
		return FilterError(err)
	}

	ctx, span := instrument.GetInstrumenter(c.UserContext()).StartSpan(c.UserContext(), "engine", "store", "query")
	span.SetEntity(entity.Name)
	defer span.End()

	rows, err := store.QueryRows(ctx, h.store.DB, q.SQL, q.Params...)
	if err != nil {
		span.SetStatus("error")
		return fmt.Errorf("query %s: %w", entity.Name, err)
	}
	if h.store.Dialect.NeedsBoolFix() {
		store.NormalizeBooleans(rows, entity.BoolFields())
	}
	if err := LoadIncludes(ctx, h.store, h.registry, entity, rows, splitAndTrim(c.Query("include"))); err != nil {
		span.SetStatus("error")
		return err
	}
	span.SetMetadata("rows", len(rows))
	span.SetStatus("ok")

	return c.JSON(fiber.Map{"data": rows, "meta": fiber.Map{"count": len(rows), "limit": limit}})
}

// parseFilter decodes and validates a filter for entity. related forces the
// inner filters of relations to be checked against the related entity.
func (h *Handler) parseFilter(ctx context.Context, entity *metadata.Entity, raw json.RawMessage, related bool) (filter.Filter, error) {
	if isNullFilter(raw) {
		return nil, BadRequestError("filter is required")
	}
	m, ok := h.registry.FilterModel(entity.Name)
	if !ok {
		return nil, UnknownEntityError(entity.Name)
	}

	opts := []filter.Option{filter.WithMaxDepth(h.opts.MaxDepth)}
	if related {
		opts = append(opts, filter.WithRelatedScope(h.registry))
	}

	_, span := instrument.GetInstrumenter(ctx).StartSpan(ctx, "engine", "filter", "validate")
	span.SetEntity(entity.Name)
	defer span.End()

	f, err := filter.NewSchema(m, opts...).Parse(raw)
	if err != nil {
		span.SetStatus("invalid")
		span.SetMetadata("path", filter.PathOf(err))
		if errors.Is(err, filter.ErrInvalidFilter) {
			return nil, FilterError(err)
		}
		return nil, fmt.Errorf("parse filter: %w", err)
	}
	span.SetStatus("ok")
	return f, nil
}

func (h *Handler) resolveEntity(c *fiber.Ctx) (*metadata.Entity, error) {
	name := c.Params("entity")
	entity := h.registry.GetEntity(name)
	if entity == nil {
		return nil, UnknownEntityError(name)
	}
	return entity, nil
}

func parseBody(c *fiber.Ctx) (*filterRequest, error) {
	var req filterRequest
	if len(c.Body()) == 0 {
		return &req, nil
	}
	if err := json.Unmarshal(c.Body(), &req); err != nil {
		return nil, BadRequestError("Invalid JSON body: " + err.Error())
	}
	return &req, nil
}

func isNullFilter(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return trimmed == "" || trimmed == "null"
}

func parseLimit(s string) (int, error) {
	if s == "" {
		return defaultQueryLimit, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, BadRequestError(fmt.Sprintf("Invalid limit: %s", s))
	}
	if n > maxQueryLimit {
		n = maxQueryLimit
	}
	return n, nil
}

func nonNilParams(q QueryResult) QueryResult {
	if q.Params == nil {
		q.Params = []any{}
	}
	return q
}

func splitAndTrim(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
