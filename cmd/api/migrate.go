package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/noah-isme/students-api/internal/config"
	"github.com/noah-isme/students-api/internal/database"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			logger := newLogger(cfg)

			db, err := database.Connect(cfg.DatabaseDriver, cfg.DatabaseURL, database.PoolConfig{MaxOpenConns: 1})
			if err != nil {
				return err
			}
			if sqlDB, err := db.DB(); err == nil {
				defer sqlDB.Close()
			}

			if err := database.Migrate(db); err != nil {
				return err
			}

			logger.Info().Str("driver", cfg.DatabaseDriver).Msg("schema migrated")
			return nil
		},
	}
}
