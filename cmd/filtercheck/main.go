package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"rocket-filter/internal/config"
	"rocket-filter/internal/instrument"
	"rocket-filter/internal/metadata"
)

type rootOptions struct {
	configPath   string
	metadataPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "filtercheck",
		Short:         "Validate filter trees against entity metadata",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (defaults to app.yaml)")
	cmd.PersistentFlags().StringVar(&opts.metadataPath, "metadata", "", "metadata JSON file (overrides metadata.path)")

	cmd.AddCommand(
		newValidateCmd(opts),
		newFieldsCmd(opts),
		newSeedCmd(opts),
		newTokenCmd(opts),
	)
	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func (o *rootOptions) load() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.LoadFile(o.configPath)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	if o.metadataPath != "" {
		cfg.Metadata.Path = o.metadataPath
	}
	log := instrument.NewLogger(cfg.Log, os.Stderr)
	return cfg, log, nil
}

// registry loads the metadata file named by the config into a new registry.
func (o *rootOptions) registry() (*config.Config, *metadata.Registry, error) {
	cfg, log, err := o.load()
	if err != nil {
		return nil, nil, err
	}
	reg := metadata.NewRegistry()
	if err := metadata.LoadFile(cfg.Metadata.Path, reg, log); err != nil {
		return nil, nil, err
	}
	return cfg, reg, nil
}
