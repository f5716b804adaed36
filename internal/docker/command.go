package docker

import (
	"fmt"

	shellquote "github.com/kballard/go-shellquote"
)

// splitCommand splits a configured runtime command such as "sudo docker"
// or "podman --remote" into the program and its leading arguments.
func splitCommand(command string) (string, []string, error) {
	words, err := shellquote.Split(command)
	if err != nil {
		return "", nil, fmt.Errorf("invalid runtime command %q: %w", command, err)
	}
	if len(words) == 0 {
		return "", nil, fmt.Errorf("runtime command is empty")
	}
	return words[0], words[1:], nil
}

// commandLine renders a command for log output, quoted so it can be
// pasted into a shell.
func commandLine(name string, args []string) string {
	return shellquote.Join(append([]string{name}, args...)...)
}
