package docker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitCommand(t *testing.T) {
	tests := []struct {
		command  string
		wantName string
		wantArgs []string
		wantErr  bool
	}{
		{command: "docker", wantName: "docker", wantArgs: []string{}},
		{command: "sudo docker", wantName: "sudo", wantArgs: []string{"docker"}},
		{command: `podman --url "unix:///run/my podman.sock"`, wantName: "podman", wantArgs: []string{"--url", "unix:///run/my podman.sock"}},
		{command: "   ", wantErr: true},
		{command: `docker "unterminated`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			name, args, err := splitCommand(tt.command)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, name)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestCommandLine(t *testing.T) {
	assert.Equal(t, "docker compose -p demo up -d", commandLine("docker", []string{"compose", "-p", "demo", "up", "-d"}))
	assert.Equal(t, "docker compose -f 'my stack.yaml'", commandLine("docker", []string{"compose", "-f", "my stack.yaml"}))
}

func TestCLILister_CommandWithPrefix(t *testing.T) {
	l := NewCLILister("sudo docker", nil)
	var gotName string
	var gotArgs []string
	l.run = func(_ context.Context, name string, args ...string) ([]byte, error) {
		gotName, gotArgs = name, args
		return nil, nil
	}

	_, err := l.RunningContainers(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "sudo", gotName)
	assert.Equal(t, []string{"docker", "ps", "--filter", "status=running", "--format", psFormat}, gotArgs)
}
