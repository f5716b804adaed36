package cli

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/fatih/color"

	"github.com/shinji-kodama/devstack/internal/model"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

// printJSON writes v to stdout as indented JSON.
func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON output: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

// FormatPorts renders a port map as "Service=port" pairs sorted by
// service name, e.g. "MySQL=3306, WordPress=8081".
func FormatPorts(ports model.ServicePortMap) string {
	if len(ports) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(ports))
	for _, name := range ports.Services() {
		parts = append(parts, fmt.Sprintf("%s=%d", name, ports[name]))
	}
	return strings.Join(parts, ", ")
}

// FormatVerdict colors a verdict for text output.
func FormatVerdict(v model.Verdict) string {
	switch v {
	case model.VerdictFree:
		return green(v.String())
	case model.VerdictBusy:
		return red(v.String())
	default:
		return yellow(v.String())
	}
}

// ParseServiceFlags parses --service values of the form Name=port into
// requests, keeping flag order. The result is validated as a whole.
func ParseServiceFlags(values []string) ([]model.ServiceRequest, error) {
	requests := make([]model.ServiceRequest, 0, len(values))
	for _, v := range values {
		name, rawPort, ok := strings.Cut(v, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid service %q: expected Name=port", v)
		}
		port, err := strconv.Atoi(strings.TrimSpace(rawPort))
		if err != nil {
			return nil, fmt.Errorf("invalid port in service %q: %w", v, err)
		}
		requests = append(requests, model.ServiceRequest{Name: name, PreferredPort: port})
	}
	if err := model.ValidateRequests(requests); err != nil {
		return nil, err
	}
	return requests, nil
}

// ServiceURLs returns the browser URLs for the web-facing services of a
// stack, in display order. Services without a web UI are left out.
func ServiceURLs(ports model.ServicePortMap) [][2]string {
	var urls [][2]string
	for _, name := range []string{"WordPress", "PHPMyAdmin"} {
		if p, ok := ports[name]; ok {
			urls = append(urls, [2]string{name, fmt.Sprintf("http://localhost:%d", p)})
		}
	}
	return urls
}

// FormatProjects joins project names with ", ".
func FormatProjects(ids []model.ProjectID) string {
	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = id.String()
	}
	return strings.Join(names, ", ")
}
