package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"pmsf-backend/internal/db"
)

var checkDBCmd = &cobra.Command{
	Use:   "check-db",
	Short: "Connect to the database and print the server version",
	Args:  cobra.NoArgs,
	RunE: withDB(func(cmd *cobra.Command, _ []string, pg *db.Postgres) error {
		version, err := pg.ServerVersion(cmd.Context())
		if err != nil {
			return fmt.Errorf("query server version: %w", err)
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "connected: %s\n", version)
		return err
	}),
}

func init() {
	rootCmd.AddCommand(checkDBCmd)
}
