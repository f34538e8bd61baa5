package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/gyeh/brillestotte/internal/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database schema migrations",
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, log := setup()
	ctx := context.Background()

	pool, _ := openStore(ctx, cfg, log)
	defer pool.Close()

	applied, err := db.ApplyMigrations(ctx, pool, log)
	if err != nil {
		fail(log, err, "migration failed")
	}

	log.Info().Int("applied", applied).Msg("all migrations applied successfully")
	return nil
}
