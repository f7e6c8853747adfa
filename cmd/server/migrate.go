package main

import (
	"fmt"

	"github.com/Freeeeeet/mentor_scheduler/internal/app"
	"github.com/Freeeeeet/mentor_scheduler/migrations"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	_, logger, pool, err := loadBase(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()
	defer func() { _ = logger.Sync() }()

	migrator, err := app.NewMigrator(pool, migrations.FS, logger)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer func() {
		if err := migrator.Close(); err != nil {
			logger.Warn("Failed to close migrator", zap.Error(err))
		}
	}()

	return migrator.Run(ctx)
}
