package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stewardhq/steward/internal/buildinfo"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the steward version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "steward %s\n", buildinfo.GetVersion())
		},
	}
}
