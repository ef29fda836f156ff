package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"pmsf-backend/internal/db"
)

var inspectTableCmd = &cobra.Command{
	Use:   "inspect-table <table>",
	Short: "List the columns and row count of a table",
	Args:  cobra.ExactArgs(1),
	RunE: withDB(func(cmd *cobra.Command, args []string, pg *db.Postgres) error {
		cols, err := pg.TableColumns(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if len(cols) == 0 {
			return fmt.Errorf("table %q not found", args[0])
		}
		count, err := pg.RowCount(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "COLUMN\tTYPE\tNULLABLE\tDEFAULT")
		for _, c := range cols {
			def := ""
			if c.Default != nil {
				def = *c.Default
			}
			fmt.Fprintf(tw, "%s\t%s\t%t\t%s\n", c.Name, c.DataType, c.Nullable, def)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "\n%d rows\n", count)
		return err
	}),
}

func init() {
	rootCmd.AddCommand(inspectTableCmd)
}
