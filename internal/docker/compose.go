package docker

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"go.uber.org/zap"

	"github.com/shinji-kodama/devstack/internal/logging"
	"github.com/shinji-kodama/devstack/internal/model"
)

// Compose drives `<command> compose` for one project directory at a time.
// The compose project name is always passed with -p so that the stack's
// containers carry the project ID in their compose label and name prefix.
type Compose struct {
	command string
	logger  *zap.Logger
}

// NewCompose returns a Compose that runs command, "docker" when empty.
func NewCompose(command string, logger *zap.Logger) *Compose {
	if command == "" {
		command = "docker"
	}
	return &Compose{command: command, logger: logging.OrNop(logger)}
}

// Up runs `compose -p <project> [-f file]... up -d` in dir. envVars are
// added to the inherited environment.
func (c *Compose) Up(ctx context.Context, dir, project string, composeFiles []string, envVars map[string]string) error {
	args := buildComposeArgs(project, composeFiles)
	args = append(args, "up", "-d")

	return c.run(ctx, dir, args, envVars)
}

// Down runs `compose -p <project> [-f file]... down` in dir, adding -v to
// remove named volumes when removeVolumes is set.
func (c *Compose) Down(ctx context.Context, dir, project string, composeFiles []string, removeVolumes bool) error {
	args := buildComposeArgs(project, composeFiles)
	args = append(args, "down")
	if removeVolumes {
		args = append(args, "-v")
	}

	return c.run(ctx, dir, args, nil)
}

// buildComposeArgs returns the arguments shared by every compose call.
// Compose merges multiple -f files in order.
func buildComposeArgs(project string, composeFiles []string) []string {
	args := make([]string, 0, len(composeFiles)*2+3)
	args = append(args, "compose", "-p", project)
	for _, f := range composeFiles {
		args = append(args, "-f", f)
	}
	return args
}

// run executes the compose command with dir as its working directory;
// compose resolves relative paths and the .env file against it.
//
// Failures are returned as a CLIError with ExitDockerNotRunning, the most
// common cause, carrying compose's combined output.
func (c *Compose) run(ctx context.Context, dir string, args []string, envVars map[string]string) error {
	name, prefix, err := splitCommand(c.command)
	if err != nil {
		return model.WrapCLIError(model.ExitConfigError, "invalid runtime command", err)
	}
	args = append(prefix, args...)

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir

	cmd.Env = os.Environ()
	for k, v := range envVars {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	c.logger.Debug("running compose",
		zap.String("dir", dir),
		zap.String("command", commandLine(name, args)),
	)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return model.WrapCLIError(
			model.ExitDockerNotRunning,
			fmt.Sprintf("%s compose failed: %s", c.command, strings.TrimSpace(string(output))),
			err,
		)
	}

	return nil
}
