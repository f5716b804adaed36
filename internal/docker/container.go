package docker

import (
	"context"
	"sort"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"

	"github.com/shinji-kodama/devstack/internal/model"
)

// SDKLister lists running containers through the Docker Engine API.
type SDKLister struct {
	client *Client
}

// NewSDKLister returns a lister backed by c.
func NewSDKLister(c *Client) *SDKLister {
	return &SDKLister{client: c}
}

// RunningContainers returns every running container with the host ports
// it publishes. Stopped containers hold no host ports and are filtered out
// by the daemon.
func (l *SDKLister) RunningContainers(ctx context.Context) ([]model.RunningContainer, error) {
	summaries, err := l.client.Inner().ContainerList(ctx, container.ListOptions{
		Filters: filters.NewArgs(filters.Arg("status", "running")),
	})
	if err != nil {
		return nil, model.WrapCLIError(
			model.ExitDockerNotRunning,
			"failed to list Docker containers",
			err,
		)
	}

	result := make([]model.RunningContainer, 0, len(summaries))
	for _, s := range summaries {
		result = append(result, summaryToRunning(s))
	}
	return result, nil
}

// summaryToRunning maps an API container summary to the domain type.
// Names come back from the API with a leading "/", which is stripped. A
// port published on both IPv4 and IPv6 appears once.
func summaryToRunning(s container.Summary) model.RunningContainer {
	name := ""
	if len(s.Names) > 0 {
		name = strings.TrimPrefix(s.Names[0], "/")
	}

	seen := make(map[int]bool, len(s.Ports))
	ports := make([]int, 0, len(s.Ports))
	for _, p := range s.Ports {
		if p.PublicPort == 0 || seen[int(p.PublicPort)] {
			continue
		}
		seen[int(p.PublicPort)] = true
		ports = append(ports, int(p.PublicPort))
	}
	sort.Ints(ports)

	return model.RunningContainer{
		Name:           name,
		ComposeProject: composeProject(s.Labels),
		HostPorts:      ports,
	}
}
