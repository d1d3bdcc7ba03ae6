package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"rocket-filter/internal/auth"
	"rocket-filter/internal/engine"
	"rocket-filter/internal/filter"
	"rocket-filter/internal/metadata"
	"rocket-filter/internal/store"
)

func newValidateCmd(root *rootOptions) *cobra.Command {
	var (
		file    string
		scoped  bool
		dialect string
	)
	cmd := &cobra.Command{
		Use:   "validate <entity>",
		Short: "Validate a filter read from a file or stdin",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, reg, err := root.registry()
			if err != nil {
				return err
			}
			entity := reg.GetEntity(args[0])
			if entity == nil {
				return fmt.Errorf("unknown entity: %s", args[0])
			}
			raw, err := readInput(cmd.InOrStdin(), file)
			if err != nil {
				return err
			}

			m, _ := reg.FilterModel(entity.Name)
			opts := []filter.Option{filter.WithMaxDepth(cfg.Filter.MaxDepth)}
			if scoped || dialect != "" || cfg.Filter.ScopeRelations {
				opts = append(opts, filter.WithRelatedScope(reg))
			}
			f, err := filter.NewSchema(m, opts...).Parse(raw)
			if err != nil {
				if path := filter.PathOf(err); path != "" {
					return fmt.Errorf("invalid at %s: %w", path, err)
				}
				return err
			}

			if dialect == "" {
				return writeJSON(cmd.OutOrStdout(), f)
			}
			if dialect != "postgres" && dialect != "sqlite" {
				return fmt.Errorf("unknown dialect: %s", dialect)
			}
			q, err := engine.CompileWhere(f, entity, reg, store.NewDialect(dialect))
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), q)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", "filter JSON file, - for stdin")
	cmd.Flags().BoolVar(&scoped, "scope-relations", false, "validate relation filters against the related entity")
	cmd.Flags().StringVar(&dialect, "sql", "", "print the WHERE clause for this dialect (postgres or sqlite)")
	return cmd
}

func newFieldsCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "fields <entity>",
		Short: "List the filterable fields of an entity by type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, reg, err := root.registry()
			if err != nil {
				return err
			}
			m, ok := reg.FilterModel(args[0])
			if !ok {
				return fmt.Errorf("unknown entity: %s", args[0])
			}
			out := cmd.OutOrStdout()
			offer := m.Offerable()
			for _, t := range filter.PrimitiveTypes() {
				fmt.Fprintf(out, "%-8s %s\n", t, strings.Join(offer[t], ", "))
			}
			for _, name := range m.RelationshipNames() {
				fmt.Fprintf(out, "rel      %s -> %s\n", name, m.Relationships[name])
			}
			return nil
		},
	}
}

func newSeedCmd(root *rootOptions) *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Store the metadata file in the database system tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := root.load()
			if err != nil {
				return err
			}
			doc, err := metadata.ReadFile(cfg.Metadata.Path)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			s, err := store.New(ctx, cfg.Database)
			if err != nil {
				return fmt.Errorf("connect to database: %w", err)
			}
			defer s.Close()

			if err := s.Bootstrap(ctx); err != nil {
				return fmt.Errorf("bootstrap system tables: %w", err)
			}
			if err := s.SeedMetadata(ctx, doc, log); err != nil {
				return err
			}
			if !migrate {
				return nil
			}

			reg := metadata.NewRegistry()
			if err := metadata.LoadAll(ctx, s.DB, reg, log); err != nil {
				return err
			}
			if err := store.NewMigrator(s).MigrateAll(ctx, reg); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			log.Info().Int("entities", len(reg.AllEntities())).Msg("tables migrated")
			return nil
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "create or extend the entity tables after seeding")
	return cmd
}

func newTokenCmd(root *rootOptions) *cobra.Command {
	var (
		user  string
		roles []string
		ttl   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an access token signed with the configured secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := root.load()
			if err != nil {
				return err
			}
			token, err := auth.GenerateAccessToken(user, roles, cfg.JWTSecret, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "user ID (subject)")
	cmd.Flags().StringSliceVar(&roles, "role", nil, "role to grant, repeatable")
	cmd.Flags().DurationVar(&ttl, "ttl", auth.AccessTokenTTL, "token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func readInput(stdin io.Reader, path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
