package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shinji-kodama/devstack/internal/model"
	"github.com/shinji-kodama/devstack/internal/port"
	"github.com/shinji-kodama/devstack/internal/stack"
)

// upFlags holds the flag values for the up command.
type upFlags struct {
	wordpressVersion string
	phpVersion       string
	mysqlVersion     string
	noStart          bool
}

// NewUpCommand creates the "up" cobra command.
func NewUpCommand() *cobra.Command {
	flags := &upFlags{}

	cmd := &cobra.Command{
		Use:   "up <project>",
		Short: "Allocate ports and start a project's stack",
		Long: `Allocate host ports for a project, write them to the project's .env file
and start the stack with docker compose.

The project directory must contain a compose file that reads the port
variables, e.g. "${WORDPRESS_PORT}:80".

Examples:
  devstack up shop
  devstack up shop --php-version 8.3
  devstack up shop --no-start`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUp(cmd.Context(), args[0], flags)
		},
	}

	cmd.Flags().StringVar(&flags.wordpressVersion, "wordpress-version", "", "WordPress image tag (default: from config)")
	cmd.Flags().StringVar(&flags.phpVersion, "php-version", "", "PHP version (default: from config)")
	cmd.Flags().StringVar(&flags.mysqlVersion, "mysql-version", "", "MySQL image tag (default: from config)")
	cmd.Flags().BoolVar(&flags.noStart, "no-start", false, "Write the .env file only, don't start containers")

	return cmd
}

// runUp allocates, writes .env and starts the stack.
func runUp(ctx context.Context, id string, flags *upFlags) error {
	env, err := loadEnv(ctx)
	if err != nil {
		return err
	}
	defer env.close()

	// Step 1: Resolve the project directory.
	project, err := env.project(id)
	if err != nil {
		return err
	}
	if err := project.EnsureDir(); err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "failed to prepare project directory", err)
	}

	// Step 2: A stack can only start from a compose file.
	composeFile, err := project.ComposeFile()
	if err != nil && !flags.noStart {
		if errors.Is(err, stack.ErrNoComposeFile) {
			return model.WrapCLIError(model.ExitProjectNotFound,
				fmt.Sprintf("project %q has no compose file", id), err)
		}
		return model.WrapCLIError(model.ExitGeneralError, "failed to locate compose file", err)
	}

	// Step 3: Allocate ports, reusing the recorded set when possible.
	alloc, err := env.allocator().Allocate(ctx, project.Name, env.cfg.Services)
	if err != nil {
		return err
	}
	if alloc.PersistErr != nil {
		logger.Warn("ports were not recorded and may change on the next run", zap.Error(alloc.PersistErr))
	}

	// Step 4: Hand the ports and versions to compose through .env.
	versions := env.cfg.Versions
	if flags.wordpressVersion != "" {
		versions.WordPress = flags.wordpressVersion
	}
	if flags.phpVersion != "" {
		versions.PHP = flags.phpVersion
	}
	if flags.mysqlVersion != "" {
		versions.MySQL = flags.mysqlVersion
	}
	if err := project.WriteEnv(stack.EnvVars(project.Name, alloc.Ports, versions)); err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "failed to write .env", err)
	}
	logger.Debug("wrote env file", zap.String("dir", project.Dir))

	// Step 5: Start the containers.
	started := false
	if !flags.noStart {
		logger.Info("starting stack", zap.String("project", id), zap.String("composeFile", composeFile))
		if err := env.compose().Up(ctx, project.Dir, stack.ComposeProjectName(project.Name), []string{composeFile}, nil); err != nil {
			return err
		}
		started = true
	}

	return printUpResult(project, alloc, started)
}

type upJSON struct {
	Project string               `json:"project"`
	Dir     string               `json:"dir"`
	Ports   model.ServicePortMap `json:"ports"`
	Reused  bool                 `json:"reused"`
	Started bool                 `json:"started"`
	URLs    map[string]string    `json:"urls"`
}

func printUpResult(project *stack.Project, alloc *port.Allocation, started bool) error {
	urls := ServiceURLs(alloc.Ports)

	if IsJSONOutput() {
		result := upJSON{
			Project: project.Name.String(),
			Dir:     project.Dir,
			Ports:   alloc.Ports,
			Reused:  alloc.Reused,
			Started: started,
			URLs:    make(map[string]string, len(urls)),
		}
		for _, u := range urls {
			result.URLs[u[0]] = u[1]
		}
		return printJSON(result)
	}

	state := "configured"
	if started {
		state = "started"
	}
	fmt.Printf("%s %s %s\n", green("✓"), bold(project.Name), state)
	fmt.Printf("  Path:   %s\n", project.Dir)
	fmt.Printf("  Ports:  %s\n", FormatPorts(alloc.Ports))
	for _, u := range urls {
		fmt.Printf("  %-7s %s\n", u[0]+":", u[1])
	}
	return nil
}
