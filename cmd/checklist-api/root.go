package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/checklist-api/project/internal/app/checklist"
	"github.com/checklist-api/project/internal/platform/config"
	"github.com/checklist-api/project/internal/platform/dbpool"
	"github.com/checklist-api/project/internal/platform/logging"
)

const serviceName = "checklist-api"

type rootOptions struct {
	configPath string
}

func (o *rootOptions) load() (*config.Config, error) {
	return config.Load(o.configPath)
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   serviceName,
		Short: "Checklist, item and template REST API",
		Long: `checklist-api serves checklists attached to business objects, their
items, and templates that can be assigned to spawn items with cascading
due dates.

Configuration comes from built-in defaults, an optional YAML file (--config)
and CHECKLIST_* environment variables, in that order.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to a YAML config file")

	root.AddCommand(
		newServeCommand(opts),
		newMigrateCommand(opts),
		newTemplatesCommand(opts),
		newAPIKeyCommand(),
		newLoadgenCommand(),
	)
	return root
}

type closer func()

// openRepository connects the configured store and makes sure its schema
// exists.
func openRepository(ctx context.Context, cfg *config.Config, log zerolog.Logger) (checklist.Repository, closer, error) {
	switch cfg.Storage.Driver {
	case config.DriverSQLite:
		repo, err := checklist.NewSQLiteRepository(ctx, cfg.Storage.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		log.Info().Str("driver", cfg.Storage.Driver).Str("path", cfg.Storage.SQLitePath).Msg("storage ready")
		return repo, func() { _ = repo.Close() }, nil

	case config.DriverPostgres:
		pool, err := dbpool.New(ctx, cfg.Storage)
		if err != nil {
			return nil, nil, fmt.Errorf("creating postgres pool: %w", err)
		}
		if err := dbpool.WaitReady(ctx, pool, cfg.Storage.ConnectTimeout); err != nil {
			pool.Close()
			return nil, nil, err
		}
		repo := checklist.NewPostgresRepository(pool)
		if err := repo.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("ensuring schema: %w", err)
		}
		log.Info().Str("driver", cfg.Storage.Driver).Msg("storage ready")
		return repo, pool.Close, nil

	default:
		return nil, nil, fmt.Errorf("unsupported storage driver %q", cfg.Storage.Driver)
	}
}

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the storage schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if err := cfg.ValidateStorage(); err != nil {
				return err
			}
			log := logging.New(cfg.Log, serviceName)
			_, closeRepo, err := openRepository(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer closeRepo()
			fmt.Fprintf(cmd.OutOrStdout(), "schema up to date (%s)\n", cfg.Storage.Driver)
			return nil
		},
	}
}
