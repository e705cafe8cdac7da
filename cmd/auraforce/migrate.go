package main

import (
	"github.com/spf13/cobra"

	"auraforce/backend/internal/config"
	"auraforce/backend/internal/logging"
	"auraforce/backend/internal/repository"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := config.LoadConfig(opts.configPath)
			if err != nil {
				return err
			}
			logger := logging.NewLogger(cfg.IsDev())
			defer logger.Sync()

			pool, err := openDatabase(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := repository.Migrate(ctx, pool); err != nil {
				return err
			}
			logger.Info("schema applied", "db", cfg.DB.Name)
			return nil
		},
	}
}
