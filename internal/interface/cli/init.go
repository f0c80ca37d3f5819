package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the steward database and apply migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Opening the container creates the database file and runs
			// all pending migrations.
			c, err := openContainer()
			if err != nil {
				return err
			}
			defer c.Close()

			fmt.Fprintf(cmd.OutOrStdout(), "initialized database at %s\n", globalConfig.DBPath())
			return nil
		},
	}
}
