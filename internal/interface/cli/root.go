// Package cli is the cobra command surface for the steward binary.
package cli

import (
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/stewardhq/steward/internal/app"
	appconfig "github.com/stewardhq/steward/internal/app/config"
	"github.com/stewardhq/steward/internal/infrastructure/di"
)

// globalConfig holds the loaded configuration for all commands
var globalConfig appconfig.Config

// NewRoot builds the root command
func NewRoot() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "steward",
		Short:         "Steward governs delivery pipelines through a fixed nine-step state machine",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			settingPath := os.Getenv("STEWARD_SETTINGS")
			if settingPath == "" {
				settingPath = "steward.yaml"
			}
			cfg, err := appconfig.Load(afero.NewOsFs(), settingPath)
			if err != nil {
				return err
			}
			globalConfig = cfg
			app.SetLogger(app.NewStderrLogger(os.Stderr, cfg.StderrLevel()))
			return nil
		},
		RunE: func(c *cobra.Command, _ []string) error { return c.Help() },
	}
	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newEntityCmd())
	cmd.AddCommand(newAdvanceCmd())
	cmd.AddCommand(newEventsCmd())
	cmd.AddCommand(newLocksCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}

// openContainer wires the application for one command invocation
func openContainer() (*di.Container, error) {
	return di.NewContainer(globalConfig, app.GetLogger())
}
