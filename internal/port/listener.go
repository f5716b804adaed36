package port

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ListenerPattern is one textual form a listening socket takes in the
// output of ss, netstat or lsof. Format has a single %d verb for the port.
type ListenerPattern struct {
	Name   string
	Format string
}

// ListenerPatterns is the ordered pattern set used by MatchListener. The
// first matching pattern names the match, so specific address forms come
// before the catch-all.
var ListenerPatterns = []ListenerPattern{
	{Name: "ipv4-any", Format: "0.0.0.0:%d"},
	{Name: "ipv4-loopback", Format: "127.0.0.1:%d"},
	{Name: "ipv6-any", Format: "[::]:%d"},
	{Name: "ipv6-loopback", Format: "[::1]:%d"},
	{Name: "ipv6-any-bare", Format: ":::%d"},
	{Name: "wildcard", Format: "*:%d"},
	{Name: "bsd-wildcard", Format: "*.%d"},
	{Name: "bsd-loopback", Format: "127.0.0.1.%d"},
	{Name: "any-address", Format: ":%d"},
}

// Token renders the pattern for port.
func (p ListenerPattern) Token(port int) string {
	return fmt.Sprintf(p.Format, port)
}

// MatchLine reports whether line shows a socket on port in this form.
// The character after the token must not be a digit, so ":80" never
// matches ":8080". Tokens that start with a digit also need a clean left
// edge, so "127.0.0.1:80" does not match inside "10.127.0.0.1:80".
func (p ListenerPattern) MatchLine(line string, port int) bool {
	token := p.Token(port)
	checkLeft := isDigit(token[0])

	for from := 0; from < len(line); {
		i := strings.Index(line[from:], token)
		if i < 0 {
			return false
		}
		start := from + i
		end := start + len(token)
		from = start + 1

		if end < len(line) && isDigit(line[end]) {
			continue
		}
		if checkLeft && start > 0 && (isDigit(line[start-1]) || line[start-1] == '.') {
			continue
		}
		return true
	}
	return false
}

// MatchListener scans the listening sockets in a listener table snapshot
// for port and returns the name of the first matching pattern. Only lines
// that mention LISTEN are considered, which skips established
// connections and their remote addresses.
func MatchListener(table string, port int) (string, bool) {
	var lines []string
	for _, line := range strings.Split(table, "\n") {
		if strings.Contains(strings.ToUpper(line), "LISTEN") {
			lines = append(lines, line)
		}
	}
	for _, p := range ListenerPatterns {
		for _, line := range lines {
			if p.MatchLine(line, port) {
				return p.Name, true
			}
		}
	}
	return "", false
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

// ListenerTable produces a text snapshot of the host's TCP sockets.
type ListenerTable interface {
	Snapshot(ctx context.Context) (string, error)
}

// ListenerCommand is one socket enumeration tool and its arguments.
type ListenerCommand struct {
	Name string
	Args []string
}

// DefaultListenerCommands are tried in order until one succeeds.
var DefaultListenerCommands = []ListenerCommand{
	{Name: "ss", Args: []string{"-tlnH"}},
	{Name: "netstat", Args: []string{"-an"}},
	{Name: "lsof", Args: []string{"-nP", "-iTCP", "-sTCP:LISTEN"}},
}

// ErrNoListenerTool is returned when none of the configured enumeration
// tools is installed.
var ErrNoListenerTool = errors.New("no listener enumeration tool available")

// CommandListenerTable snapshots listening sockets by running the first
// available enumeration tool.
type CommandListenerTable struct {
	Commands []ListenerCommand

	lookPath func(string) (string, error)
	run      func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewCommandListenerTable returns a table backed by commands, or by
// DefaultListenerCommands when commands is empty.
func NewCommandListenerTable(commands ...ListenerCommand) *CommandListenerTable {
	if len(commands) == 0 {
		commands = DefaultListenerCommands
	}
	return &CommandListenerTable{
		Commands: commands,
		lookPath: exec.LookPath,
		run:      runCommand,
	}
}

// Snapshot returns the output of the first tool that is installed and
// exits successfully. A tool that fails is skipped in favour of the next.
func (t *CommandListenerTable) Snapshot(ctx context.Context) (string, error) {
	var errs []error
	for _, c := range t.Commands {
		if _, err := t.lookPath(c.Name); err != nil {
			continue
		}
		out, err := t.run(ctx, c.Name, c.Args...)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		return string(out), nil
	}
	if len(errs) == 0 {
		return "", ErrNoListenerTool
	}
	return "", errors.Join(errs...)
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s %s failed: %s: %w", name, strings.Join(args, " "), strings.TrimSpace(stderr.String()), err)
	}
	return stdout.Bytes(), nil
}
