package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"

	"rocket-filter/internal/admin"
	"rocket-filter/internal/auth"
	"rocket-filter/internal/config"
	"rocket-filter/internal/engine"
	"rocket-filter/internal/instrument"
	"rocket-filter/internal/metadata"
	"rocket-filter/internal/store"
)

func main() {
	ctx := context.Background()

	// 1. Load config
	cfg, err := config.LoadFile(os.Getenv("ROCKET_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	log := instrument.NewLogger(cfg.Log, os.Stdout)
	log.Info().
		Int("port", cfg.Server.Port).
		Str("driver", cfg.Database.Driver).
		Str("metadata", cfg.Metadata.Source).
		Msg("config loaded")

	// 2. Connect to database and load metadata
	reg := metadata.NewRegistry()
	s, reload, err := openMetadata(ctx, cfg, reg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load metadata")
	}
	if s != nil {
		defer s.Close()
	}

	// 3. Create Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler:          engine.ErrorHandler(log),
		DisableStartupMessage: true,
	})
	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))
	app.Use(instrument.Middleware(instrument.NewLogInstrumenter(log, zerolog.DebugLevel)))

	// 4. Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "entities": len(reg.AllEntities())})
	})

	// 5. Filter routes, behind auth when enabled. The /api auth middleware
	// also covers the admin group, which additionally requires the admin role.
	var authMW, adminMW []fiber.Handler
	if cfg.Auth.Enabled {
		authMW = append(authMW, auth.AuthMiddleware(cfg.JWTSecret))
		adminMW = append(adminMW, auth.RequireAdmin())
	}
	handler := engine.NewHandler(s, reg, engine.Options{
		MaxDepth:       cfg.Filter.MaxDepth,
		ScopeRelations: cfg.Filter.ScopeRelations,
	}, log)
	engine.RegisterFilterRoutes(app, handler, authMW...)

	// 6. Admin routes for metadata
	adminHandler := admin.NewHandler(s, reg, reload, log)
	admin.RegisterAdminRoutes(app, adminHandler, adminMW...)

	// 7. Start server
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		log.Info().Msg("shutting down")
		if err := app.Shutdown(); err != nil {
			log.Error().Err(err).Msg("shutdown failed")
		}
	}()

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Info().Str("addr", addr).Msg("starting server")
	if err := app.Listen(addr); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

// openMetadata fills reg from the configured source. With a database source
// it returns the open store and a reload function reading the system tables;
// with a file source the store is nil and reload rereads the file.
func openMetadata(ctx context.Context, cfg *config.Config, reg *metadata.Registry, log zerolog.Logger) (*store.Store, func(context.Context) error, error) {
	if !cfg.Metadata.UsesDatabase() {
		path := cfg.Metadata.Path
		reload := func(context.Context) error {
			return metadata.LoadFile(path, reg, log)
		}
		if err := reload(ctx); err != nil {
			return nil, nil, err
		}
		return nil, reload, nil
	}

	s, err := store.New(ctx, cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := s.Bootstrap(ctx); err != nil {
		s.Close()
		return nil, nil, fmt.Errorf("bootstrap system tables: %w", err)
	}
	reload := func(ctx context.Context) error {
		return metadata.Reload(ctx, s.DB, reg, log)
	}
	if err := reload(ctx); err != nil {
		log.Warn().Err(err).Msg("failed to load metadata")
	}
	return s, reload, nil
}
