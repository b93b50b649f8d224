package main

import (
	"fmt"

	"housing-allocation-backend/internal/config"
	"housing-allocation-backend/internal/repository"

	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.StoreDriver != config.StoreDriverPostgres {
				return fmt.Errorf("migrate: store driver %q has no schema", cfg.StoreDriver)
			}
			db, err := config.OpenDB(cfg)
			if err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			if sqlDB, err := db.DB(); err == nil {
				defer sqlDB.Close()
			}

			if err := repository.NewGormStore(db).Migrate(cmd.Context()); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			fmt.Println("Schema up to date")
			return nil
		},
	}
}
