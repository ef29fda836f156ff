package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"pmsf-backend/internal/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the embedded database schema",
	Args:  cobra.NoArgs,
	RunE: withDB(func(cmd *cobra.Command, _ []string, pg *db.Postgres) error {
		if err := pg.Migrate(cmd.Context()); err != nil {
			return err
		}
		_, err := fmt.Fprintln(cmd.OutOrStdout(), "schema applied")
		return err
	}),
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
