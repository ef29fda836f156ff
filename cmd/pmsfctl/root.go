package main

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"pmsf-backend/internal/db"
)

var databaseURL string

var rootCmd = &cobra.Command{
	Use:          "pmsfctl",
	Short:        "Operator tool for the PMSF backend",
	Long:         "Schema, database and account maintenance for the PMSF visit evaluation backend.",
	SilenceUsage: true,
}

// Execute runs the root command. Errors are logged once here.
func Execute(ctx context.Context) error {
	_ = godotenv.Load()
	logger := slog.New(slog.NewTextHandler(rootCmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelInfo}))

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logger.Error("command execution failed", "err", err)
		return err
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&databaseURL, "database-url", "", "Postgres connection URL (default $DATABASE_URL)")
}

// withDB opens the database for the duration of one command.
func withDB(run func(cmd *cobra.Command, args []string, pg *db.Postgres) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		url := databaseURL
		if url == "" {
			url = os.Getenv("DATABASE_URL")
		}
		if url == "" {
			return errors.New("database url is required (--database-url or DATABASE_URL)")
		}
		pg, err := db.Connect(cmd.Context(), url)
		if err != nil {
			return err
		}
		defer pg.Close()
		return run(cmd, args, pg)
	}
}
