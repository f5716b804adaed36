package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shinji-kodama/devstack/internal/model"
	"github.com/shinji-kodama/devstack/internal/stack"
)

// downFlags holds the flag values for the down command.
type downFlags struct {
	volumes bool
}

// NewDownCommand creates the "down" cobra command. Stopping a stack keeps
// its ledger record so the next "up" gets the same ports.
func NewDownCommand() *cobra.Command {
	flags := &downFlags{}

	cmd := &cobra.Command{
		Use:   "down <project>",
		Short: "Stop a project's stack",
		Long: `Stop and remove a project's containers with docker compose. The recorded
ports are kept, so the next "devstack up" reuses them.

Examples:
  devstack down shop
  devstack down shop --volumes`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDown(cmd.Context(), args[0], flags)
		},
	}

	cmd.Flags().BoolVar(&flags.volumes, "volumes", false, "Also remove the stack's named volumes (deletes the database)")

	return cmd
}

func runDown(ctx context.Context, id string, flags *downFlags) error {
	env, err := loadEnv(ctx)
	if err != nil {
		return err
	}
	defer env.close()

	project, err := env.project(id)
	if err != nil {
		return err
	}
	if !project.Exists() {
		return model.NewCLIError(model.ExitProjectNotFound,
			fmt.Sprintf("project %q not found in %s", id, env.cfg.ProjectsDir))
	}

	composeFile, err := project.ComposeFile()
	if err != nil {
		if errors.Is(err, stack.ErrNoComposeFile) {
			return model.WrapCLIError(model.ExitProjectNotFound,
				fmt.Sprintf("project %q has no compose file", id), err)
		}
		return model.WrapCLIError(model.ExitGeneralError, "failed to locate compose file", err)
	}

	logger.Info("stopping stack", zap.String("project", id), zap.Bool("volumes", flags.volumes))
	if err := env.compose().Down(ctx, project.Dir, stack.ComposeProjectName(project.Name), []string{composeFile}, flags.volumes); err != nil {
		return err
	}

	if IsJSONOutput() {
		return printJSON(map[string]interface{}{
			"project":        id,
			"stopped":        true,
			"volumesRemoved": flags.volumes,
		})
	}
	fmt.Printf("%s %s stopped\n", green("✓"), bold(id))
	return nil
}
