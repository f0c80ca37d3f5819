package cli

import (
	"encoding/json"
	"fmt"
	"os/user"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stewardhq/steward/internal/application/usecase/advance"
	"github.com/stewardhq/steward/internal/domain/model"
)

func newAdvanceCmd() *cobra.Command {
	var (
		dryRun    bool
		actor     string
		stepName  string
		reason    string
		requestID string
	)

	cmd := &cobra.Command{
		Use:   "advance <entity-id>",
		Short: "Execute the next eligible pipeline step for an entity",
		Long: `Advance resolves the entity's next eligible step and executes it under
the run lock. Pass --step to execute a specific step instead; S9_REMEDIATE
additionally requires --reason. The response envelope is printed as JSON.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entityID, err := model.NewEntityIDFromString(args[0])
			if err != nil {
				return err
			}

			if actor == "" {
				if u, uerr := user.Current(); uerr == nil {
					actor = u.Username
				} else {
					actor = "steward"
				}
			}

			mode := model.ModeExecute
			if dryRun {
				mode = model.ModeDryRun
			}

			var step model.Step
			if stepName != "" {
				step = model.Step(strings.ToUpper(stepName))
				if !step.IsValid() {
					return fmt.Errorf("unknown step: %s", stepName)
				}
			}

			c, err := openContainer()
			if err != nil {
				return err
			}
			defer c.Close()
			if err := c.Start(cmd.Context()); err != nil {
				return err
			}

			res, err := c.Coordinator().Advance(cmd.Context(), advance.Request{
				EntityID:  entityID,
				Step:      step,
				Mode:      mode,
				Actor:     actor,
				RequestID: requestID,
				Reason:    reason,
			})
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(res, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "evaluate the step without writing anything")
	cmd.Flags().StringVar(&actor, "actor", "", "acting identity (defaults to the OS user)")
	cmd.Flags().StringVar(&stepName, "step", "", "execute this step instead of the resolved one")
	cmd.Flags().StringVar(&reason, "reason", "", "remediation reason (required for S9_REMEDIATE)")
	cmd.Flags().StringVar(&requestID, "request-id", "", "idempotency request ID (generated when empty)")
	return cmd
}
