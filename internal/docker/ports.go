package docker

import (
	"fmt"
	"sort"
	"strings"

	"github.com/docker/go-connections/nat"
)

// ParsePublishedPorts extracts the host ports from the PORTS column of
// `docker ps`, for example
//
//	0.0.0.0:8080->80/tcp, [::]:8080->80/tcp, 3306/tcp
//
// Exposed but unpublished ports ("3306/tcp") carry no host port and are
// skipped. Port ranges expand to every port they cover. The result is
// sorted and free of duplicates.
func ParsePublishedPorts(column string) ([]int, error) {
	seen := make(map[int]bool)
	for _, field := range strings.Split(column, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		// "ip:host->container/proto" reads as the "ip:host:container/proto"
		// form of a -p flag.
		mappings, err := nat.ParsePortSpec(strings.Replace(field, "->", ":", 1))
		if err != nil {
			return nil, fmt.Errorf("invalid port mapping %q: %w", field, err)
		}
		for _, m := range mappings {
			if m.Binding.HostPort == "" {
				continue
			}
			start, end, err := nat.ParsePortRangeToInt(m.Binding.HostPort)
			if err != nil {
				return nil, fmt.Errorf("invalid host port in %q: %w", field, err)
			}
			for p := start; p <= end; p++ {
				seen[p] = true
			}
		}
	}

	ports := make([]int, 0, len(seen))
	for p := range seen {
		ports = append(ports, p)
	}
	sort.Ints(ports)
	return ports, nil
}
