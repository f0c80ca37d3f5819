package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newLocksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "locks",
		Short: "Inspect and clean up run locks",
		RunE:  func(c *cobra.Command, _ []string) error { return c.Help() },
	}
	cmd.AddCommand(newLocksListCmd())
	cmd.AddCommand(newLocksCleanupCmd())
	return cmd
}

func newLocksListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List standing run locks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openContainer()
			if err != nil {
				return err
			}
			defer c.Close()

			locks, err := c.LockRepository().List(cmd.Context())
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, l := range locks {
				if err := enc.Encode(map[string]interface{}{
					"key":         l.Key().String(),
					"holder":      l.Holder(),
					"acquired_at": l.AcquiredAt().String(),
					"expires_at":  l.ExpiresAt().String(),
					"expired":     l.IsExpired(),
				}); err != nil {
					return err
				}
			}
			if len(locks) == 0 {
				fmt.Fprintln(cmd.ErrOrStderr(), "no locks held")
			}
			return nil
		},
	}
}

func newLocksCleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Remove expired locks and idempotency records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openContainer()
			if err != nil {
				return err
			}
			defer c.Close()

			locks, err := c.LockRepository().CleanupExpired(cmd.Context())
			if err != nil {
				return err
			}
			records, err := c.IdempotencyRepository().CleanupExpired(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d expired lock(s), %d expired idempotency record(s)\n", locks, records)
			return nil
		},
	}
}
