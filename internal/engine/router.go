package engine

import "github.com/gofiber/fiber/v2"

// RegisterFilterRoutes mounts the filter API under /api. middleware runs on
// every /api route, typically auth.
func RegisterFilterRoutes(app *fiber.App, h *Handler, middleware ...fiber.Handler) {
	api := app.Group("/api", middleware...)

	api.Get("/_filters/operators", h.Operators)

	api.Get("/:entity/_filters/fields", h.Fields)
	api.Post("/:entity/_filters/validate", h.Validate)
	api.Post("/:entity/_filters/sql", h.SQL)
	api.Post("/:entity/_filters/match", h.Match)
	api.Post("/:entity/_filters/query", h.Query)
}
