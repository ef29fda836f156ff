package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
	"pmsf-backend/internal/db"
	"pmsf-backend/internal/repository"
	"pmsf-backend/internal/service"
)

var setPasswordCost int

// setPasswordCmd also clears any lockout on the account.
var setPasswordCmd = &cobra.Command{
	Use:   "set-password <username> <password>",
	Short: "Replace a user's password",
	Args:  cobra.ExactArgs(2),
	RunE: withDB(func(cmd *cobra.Command, args []string, pg *db.Postgres) error {
		users := repository.UserRepository{DB: pg}
		user, err := users.GetByUsername(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("find user %q: %w", args[0], err)
		}
		hash, err := service.HashPassword(args[1], setPasswordCost)
		if err != nil {
			return err
		}
		if err := users.SetPassword(cmd.Context(), user.ID, hash); err != nil {
			return fmt.Errorf("store password: %w", err)
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "password updated for %s (id %d)\n", user.Username, user.ID)
		return err
	}),
}

func init() {
	setPasswordCmd.Flags().IntVar(&setPasswordCost, "cost", bcrypt.DefaultCost, "bcrypt cost")
	rootCmd.AddCommand(setPasswordCmd)
}
