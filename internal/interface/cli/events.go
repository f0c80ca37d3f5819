package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/stewardhq/steward/internal/domain/model"
	"github.com/stewardhq/steward/internal/domain/model/timeline"
)

// eventView is the JSON-lines shape for one timeline event
type eventView struct {
	ID          string `json:"id"`
	RunID       string `json:"run_id"`
	Kind        string `json:"kind"`
	Step        string `json:"step"`
	StateBefore string `json:"state_before"`
	StateAfter  string `json:"state_after"`
	BlockerCode string `json:"blocker_code,omitempty"`
	Detail      string `json:"detail,omitempty"`
	RequestID   string `json:"request_id,omitempty"`
	OccurredAt  string `json:"occurred_at"`
}

func newEventsCmd() *cobra.Command {
	var byRun string

	cmd := &cobra.Command{
		Use:   "events <entity-id>",
		Short: "Dump the audit timeline for an entity, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := openContainer()
			if err != nil {
				return err
			}
			defer c.Close()

			var events []*timeline.Event
			if byRun != "" {
				runID, rerr := model.NewRunIDFromString(byRun)
				if rerr != nil {
					return rerr
				}
				events, err = c.EventRepository().ListByRun(cmd.Context(), runID)
			} else {
				id, ierr := model.NewEntityIDFromString(args[0])
				if ierr != nil {
					return ierr
				}
				events, err = c.EventRepository().ListByEntity(cmd.Context(), id)
			}
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, ev := range events {
				if err := enc.Encode(eventView{
					ID:          ev.ID(),
					RunID:       ev.RunID().String(),
					Kind:        string(ev.Kind()),
					Step:        ev.Step().String(),
					StateBefore: ev.StateBefore().String(),
					StateAfter:  ev.StateAfter().String(),
					BlockerCode: ev.BlockerCode(),
					Detail:      ev.Detail(),
					RequestID:   ev.RequestID(),
					OccurredAt:  ev.OccurredAt().String(),
				}); err != nil {
					return err
				}
			}
			if len(events) == 0 {
				fmt.Fprintln(cmd.ErrOrStderr(), "no events recorded")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&byRun, "run", "", "list events for this run ID instead")
	return cmd
}
