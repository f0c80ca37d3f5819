package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/stewardhq/steward/internal/domain/model"
	"github.com/stewardhq/steward/internal/domain/model/entity"
)

func newEntityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "entity",
		Short: "Manage governed entities",
		RunE:  func(c *cobra.Command, _ []string) error { return c.Help() },
	}
	cmd.AddCommand(newEntityCreateCmd())
	cmd.AddCommand(newEntityShowCmd())
	cmd.AddCommand(newEntityLinkCmd())
	cmd.AddCommand(newEntityDraftCmd())
	return cmd
}

func newEntityCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create <title>",
		Short: "Register a new entity in CREATED state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ent, err := entity.New(model.NewEntityID(), args[0])
			if err != nil {
				return err
			}

			c, err := openContainer()
			if err != nil {
				return err
			}
			defer c.Close()

			if err := c.EntityRepository().Save(cmd.Context(), ent); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), ent.ID())
			return nil
		},
	}
}

func newEntityShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <entity-id>",
		Short: "Print an entity as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := model.NewEntityIDFromString(args[0])
			if err != nil {
				return err
			}

			c, err := openContainer()
			if err != nil {
				return err
			}
			defer c.Close()

			ent, err := c.EntityRepository().Find(cmd.Context(), id)
			if err != nil {
				return err
			}

			link := ent.Link()
			view := map[string]interface{}{
				"id":         ent.ID().String(),
				"title":      ent.Title(),
				"state":      ent.State().String(),
				"created_at": ent.CreatedAt().String(),
				"updated_at": ent.UpdatedAt().String(),
			}
			if !link.IsZero() {
				view["github"] = map[string]interface{}{
					"owner":     link.Owner,
					"repo":      link.Repo,
					"pr_number": link.PRNumber,
					"ref":       link.Ref,
				}
			}
			if ent.HoldReason() != "" {
				view["hold_reason"] = ent.HoldReason()
			}

			out, err := json.MarshalIndent(view, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
}

func newEntityLinkCmd() *cobra.Command {
	var (
		owner    string
		repo     string
		prNumber int
		ref      string
	)

	cmd := &cobra.Command{
		Use:   "link <entity-id>",
		Short: "Attach the source-control link to an entity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := model.NewEntityIDFromString(args[0])
			if err != nil {
				return err
			}

			c, err := openContainer()
			if err != nil {
				return err
			}
			defer c.Close()

			ent, err := c.EntityRepository().Find(cmd.Context(), id)
			if err != nil {
				return err
			}
			if err := ent.AttachLink(entity.GitHubLink{Owner: owner, Repo: repo, PRNumber: prNumber, Ref: ref}); err != nil {
				return err
			}
			return c.EntityRepository().Save(cmd.Context(), ent)
		},
	}

	cmd.Flags().StringVar(&owner, "owner", "", "repository owner")
	cmd.Flags().StringVar(&repo, "repo", "", "repository name")
	cmd.Flags().IntVar(&prNumber, "pr", 0, "pull request number")
	cmd.Flags().StringVar(&ref, "ref", "", "git ref the evidence is read from")
	cmd.MarkFlagRequired("owner")
	cmd.MarkFlagRequired("repo")
	return cmd
}

func newEntityDraftCmd() *cobra.Command {
	var fromFile string

	cmd := &cobra.Command{
		Use:   "draft <entity-id> [body]",
		Short: "Attach or replace the entity's spec draft",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := model.NewEntityIDFromString(args[0])
			if err != nil {
				return err
			}

			var body string
			switch {
			case fromFile == "-":
				data, rerr := io.ReadAll(cmd.InOrStdin())
				if rerr != nil {
					return rerr
				}
				body = string(data)
			case fromFile != "":
				data, rerr := os.ReadFile(fromFile)
				if rerr != nil {
					return rerr
				}
				body = string(data)
			case len(args) == 2:
				body = args[1]
			}

			c, err := openContainer()
			if err != nil {
				return err
			}
			defer c.Close()

			draft := entity.NewDraft(id, body)
			if err := c.EntityRepository().SaveDraft(cmd.Context(), draft); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), draft.Status())
			return nil
		},
	}

	cmd.Flags().StringVar(&fromFile, "file", "", "read the draft body from a file (- for stdin)")
	return cmd
}
