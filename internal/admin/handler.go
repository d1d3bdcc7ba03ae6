package admin

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"rocket-filter/internal/engine"
	"rocket-filter/internal/metadata"
	"rocket-filter/internal/store"
)

// Handler manages entity and relation definitions at runtime. Reads are
// served from the registry; writes need a store and reload the registry
// afterwards.
type Handler struct {
	store    *store.Store
	registry *metadata.Registry
	migrator *store.Migrator
	reload   func(ctx context.Context) error
	log      zerolog.Logger
}

// NewHandler builds the admin API. s may be nil, in which case only listing
// and reload are available.
func NewHandler(s *store.Store, reg *metadata.Registry, reload func(ctx context.Context) error, log zerolog.Logger) *Handler {
	h := &Handler{store: s, registry: reg, reload: reload, log: log}
	if s != nil {
		h.migrator = store.NewMigrator(s)
	}
	return h
}

func RegisterAdminRoutes(app *fiber.App, h *Handler, middleware ...fiber.Handler) {
	admin := app.Group("/api/_admin", middleware...)

	admin.Post("/reload", h.Reload)

	admin.Get("/entities", h.ListEntities)
	admin.Get("/entities/:name", h.GetEntity)
	admin.Put("/entities/:name", h.PutEntity)
	admin.Delete("/entities/:name", h.DeleteEntity)

	admin.Get("/relations", h.ListRelations)
	admin.Get("/relations/:name", h.GetRelation)
	admin.Put("/relations/:name", h.PutRelation)
	admin.Delete("/relations/:name", h.DeleteRelation)
}

// Reload handles POST /api/_admin/reload
func (h *Handler) Reload(c *fiber.Ctx) error {
	if h.reload == nil {
		return engine.NewAppError("RELOAD_UNAVAILABLE", fiber.StatusNotImplemented, "Metadata reload is not configured")
	}
	if err := h.reload(c.UserContext()); err != nil {
		return fmt.Errorf("reload metadata: %w", err)
	}
	return c.JSON(fiber.Map{"data": fiber.Map{
		"entities":  len(h.registry.AllEntities()),
		"relations": len(h.registry.AllRelations()),
	}})
}

// --- Entity Endpoints ---

func (h *Handler) ListEntities(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": h.registry.AllEntities()})
}

func (h *Handler) GetEntity(c *fiber.Ctx) error {
	name := c.Params("name")
	entity := h.registry.GetEntity(name)
	if entity == nil {
		return engine.UnknownEntityError(name)
	}
	return c.JSON(fiber.Map{"data": entity})
}

// PutEntity creates or replaces an entity definition. With ?migrate=true the
// entity table is created or extended as well.
func (h *Handler) PutEntity(c *fiber.Ctx) error {
	if err := h.requireStore(); err != nil {
		return err
	}
	var entity metadata.Entity
	if err := c.BodyParser(&entity); err != nil {
		return engine.NewAppError("INVALID_PAYLOAD", fiber.StatusBadRequest, "Invalid JSON body")
	}
	entity.Name = c.Params("name")
	if err := entity.Validate(); err != nil {
		return validationFailed(err)
	}

	status := fiber.StatusOK
	if h.registry.GetEntity(entity.Name) == nil {
		status = fiber.StatusCreated
	}

	ctx := c.UserContext()
	if err := h.store.UpsertEntity(ctx, &entity); err != nil {
		if errors.Is(err, store.ErrUniqueViolation) {
			return engine.NewAppError("CONFLICT", fiber.StatusConflict, "Table already belongs to another entity: "+entity.Table)
		}
		return err
	}
	if c.QueryBool("migrate") {
		if err := h.migrator.Migrate(ctx, &entity); err != nil {
			return fmt.Errorf("migrate entity %s: %w", entity.Name, err)
		}
	}
	if err := h.reloadRegistry(ctx); err != nil {
		return err
	}
	h.log.Info().Str("entity", entity.Name).Msg("entity stored")
	return c.Status(status).JSON(fiber.Map{"data": entity})
}

// DeleteEntity removes the definition and every relation that references it.
// The table and its rows are kept.
func (h *Handler) DeleteEntity(c *fiber.Ctx) error {
	if err := h.requireStore(); err != nil {
		return err
	}
	name := c.Params("name")
	if err := h.store.DeleteEntity(c.UserContext(), name); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return engine.UnknownEntityError(name)
		}
		return err
	}
	if err := h.reloadRegistry(c.UserContext()); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"name": name, "deleted": true}})
}

// --- Relation Endpoints ---

func (h *Handler) ListRelations(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": h.registry.AllRelations()})
}

func (h *Handler) GetRelation(c *fiber.Ctx) error {
	name := c.Params("name")
	rel := h.registry.GetRelation(name)
	if rel == nil {
		return unknownRelation(name)
	}
	return c.JSON(fiber.Map{"data": rel})
}

// PutRelation creates or replaces a relation definition. Its source and
// target must be registered entities. With ?migrate=true the join table of a
// many_to_many relation is created.
func (h *Handler) PutRelation(c *fiber.Ctx) error {
	if err := h.requireStore(); err != nil {
		return err
	}
	var rel metadata.Relation
	if err := c.BodyParser(&rel); err != nil {
		return engine.NewAppError("INVALID_PAYLOAD", fiber.StatusBadRequest, "Invalid JSON body")
	}
	rel.Name = c.Params("name")
	if err := rel.Validate(); err != nil {
		return validationFailed(err)
	}
	source, target := h.registry.GetEntity(rel.Source), h.registry.GetEntity(rel.Target)
	if source == nil {
		return validationFailed(fmt.Errorf("source entity not found: %s", rel.Source))
	}
	if target == nil {
		return validationFailed(fmt.Errorf("target entity not found: %s", rel.Target))
	}

	status := fiber.StatusOK
	if h.registry.GetRelation(rel.Name) == nil {
		status = fiber.StatusCreated
	}

	ctx := c.UserContext()
	if err := h.store.UpsertRelation(ctx, &rel); err != nil {
		return err
	}
	if rel.IsManyToMany() && c.QueryBool("migrate") {
		if err := h.migrator.MigrateJoinTable(ctx, &rel, source, target); err != nil {
			return fmt.Errorf("migrate join table %s: %w", rel.JoinTable, err)
		}
	}
	if err := h.reloadRegistry(ctx); err != nil {
		return err
	}
	h.log.Info().Str("relation", rel.Name).Msg("relation stored")
	return c.Status(status).JSON(fiber.Map{"data": rel})
}

func (h *Handler) DeleteRelation(c *fiber.Ctx) error {
	if err := h.requireStore(); err != nil {
		return err
	}
	name := c.Params("name")
	if err := h.store.DeleteRelation(c.UserContext(), name); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return unknownRelation(name)
		}
		return err
	}
	if err := h.reloadRegistry(c.UserContext()); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"name": name, "deleted": true}})
}

func (h *Handler) requireStore() error {
	if h.store == nil {
		return engine.NewAppError("NO_DATABASE", fiber.StatusServiceUnavailable, "Metadata is read from a file and cannot be changed at runtime")
	}
	return nil
}

func (h *Handler) reloadRegistry(ctx context.Context) error {
	if err := metadata.Reload(ctx, h.store.DB, h.registry, h.log); err != nil {
		return fmt.Errorf("reload registry: %w", err)
	}
	return nil
}

func validationFailed(err error) *engine.AppError {
	return engine.NewAppError("VALIDATION_FAILED", fiber.StatusUnprocessableEntity, err.Error())
}

func unknownRelation(name string) *engine.AppError {
	return engine.NewAppError("NOT_FOUND", fiber.StatusNotFound, "Relation not found: "+name)
}
