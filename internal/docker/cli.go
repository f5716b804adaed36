package docker

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"go.uber.org/zap"

	"github.com/shinji-kodama/devstack/internal/logging"
	"github.com/shinji-kodama/devstack/internal/model"
)

// psFormat asks `docker ps` for one tab-separated line per container.
const psFormat = `{{.Names}}\t{{.Ports}}\t{{.Label "` + LabelComposeProject + `"}}`

// CLILister lists running containers by running `<command> ps`. It works
// with any Docker-compatible CLI (docker, podman, nerdctl) and needs no
// access to the daemon socket beyond what the CLI itself has.
type CLILister struct {
	command string
	logger  *zap.Logger
	run     func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewCLILister returns a lister that runs command, "docker" when empty.
func NewCLILister(command string, logger *zap.Logger) *CLILister {
	if command == "" {
		command = "docker"
	}
	return &CLILister{
		command: command,
		logger:  logging.OrNop(logger),
		run:     runCmd,
	}
}

// RunningContainers runs `ps` and parses its output.
func (l *CLILister) RunningContainers(ctx context.Context) ([]model.RunningContainer, error) {
	name, prefix, err := splitCommand(l.command)
	if err != nil {
		return nil, err
	}
	args := append(prefix, "ps", "--filter", "status=running", "--format", psFormat)

	l.logger.Debug("listing containers", zap.String("command", commandLine(name, args)))
	out, err := l.run(ctx, name, args...)
	if err != nil {
		return nil, err
	}
	return l.parse(string(out)), nil
}

// parse reads psFormat lines. A line whose ports cannot be parsed still
// yields the container, without ports, so that one odd mapping does not
// hide every other container.
func (l *CLILister) parse(out string) []model.RunningContainer {
	var result []model.RunningContainer
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.SplitN(line, "\t", 3)

		// Linked containers list several names; the first is the real one.
		name, _, _ := strings.Cut(fields[0], ",")
		c := model.RunningContainer{Name: strings.TrimSpace(name), HostPorts: []int{}}

		if len(fields) > 1 {
			ports, err := ParsePublishedPorts(fields[1])
			if err != nil {
				l.logger.Debug("unparseable port column",
					zap.String("container", c.Name), zap.Error(err))
			} else {
				c.HostPorts = ports
			}
		}
		if len(fields) > 2 {
			c.ComposeProject = strings.TrimSpace(fields[2])
		}
		result = append(result, c)
	}
	return result
}

// runCmd runs name with args and returns its stdout. stderr is folded
// into the error.
func runCmd(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s %s failed: %s: %w", name, strings.Join(args, " "), strings.TrimSpace(stderr.String()), err)
	}
	return stdout.Bytes(), nil
}
