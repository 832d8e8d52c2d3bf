package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"notice_bot/migrations"
)

var migrateDB string

var migrateCmd = &cobra.Command{
	Use:       "migrate <command>",
	Short:     "Manage the database schema",
	Long:      "Manage the database schema. Commands: " + strings.Join(migrations.Commands, ", ") + ".",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: migrations.Commands,
	RunE: func(_ *cobra.Command, args []string) error {
		db, err := sql.Open("sqlite", migrateDB)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer func() { _ = db.Close() }()

		if err := migrations.Exec(context.Background(), db, args[0]); err != nil {
			logger.Error("migrate", "command", args[0], "db", migrateDB, "error", err)
			return err
		}
		return nil
	},
}

func init() {
	migrateCmd.Flags().StringVar(&migrateDB, "db", envOrDefault("DATABASE_PATH", "./data/notices.db"), "path to sqlite database")
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
