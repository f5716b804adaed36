package model

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
)

// Verdict is the tri-state outcome of a single port probe signal.
// Inconclusive means the signal could not be read (tool missing, command
// error); it is never treated as evidence that a port is free or busy.
type Verdict int

const (
	// VerdictInconclusive is the zero value so an unset verdict never
	// reads as "free".
	VerdictInconclusive Verdict = iota

	// VerdictFree means the signal found no evidence the port is in use.
	VerdictFree

	// VerdictBusy means the signal found the port in use.
	VerdictBusy
)

// String returns the lower-case name of the verdict for CLI output.
func (v Verdict) String() string {
	switch v {
	case VerdictFree:
		return "free"
	case VerdictBusy:
		return "busy"
	default:
		return "inconclusive"
	}
}

// MarshalText renders the verdict by name so JSON reports stay readable.
func (v Verdict) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// ProjectID identifies a provisioned project. It is the ledger's primary
// key and the prefix used to recognise the project's own containers.
type ProjectID string

// String returns the raw project identifier.
func (id ProjectID) String() string {
	return string(id)
}

// projectIDRegex allows alphanumerics, hyphens and underscores, starting
// and ending with an alphanumeric. Docker Compose project names accept the
// same alphabet once lower-cased.
var projectIDRegex = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9_-]{0,61}[a-zA-Z0-9])?$`)

// ValidateProjectID checks whether id is usable as a project name.
func ValidateProjectID(id ProjectID) error {
	if id == "" {
		return fmt.Errorf("project name must not be empty")
	}
	if !projectIDRegex.MatchString(string(id)) {
		return fmt.Errorf("invalid project name %q: must be 1-63 characters of letters, digits, '-' or '_', starting and ending with a letter or digit", id)
	}
	return nil
}

// MinPort and MaxPort bound valid TCP port numbers.
const (
	MinPort = 1
	MaxPort = 65535
)

// ServiceRequest asks the allocator for a port for one named service,
// starting the search at PreferredPort. Requests are passed as an ordered
// slice; the slice order is the order in which services claim ports.
type ServiceRequest struct {
	Name          string `json:"name" yaml:"name"`
	PreferredPort int    `json:"port" yaml:"port"`
}

// ValidateRequests checks a request batch for empty or duplicate service
// names and out-of-range preferred ports.
func ValidateRequests(requests []ServiceRequest) error {
	if len(requests) == 0 {
		return fmt.Errorf("at least one service must be requested")
	}
	seen := make(map[string]bool, len(requests))
	for _, r := range requests {
		if strings.TrimSpace(r.Name) == "" {
			return fmt.Errorf("service name must not be empty")
		}
		if seen[r.Name] {
			return fmt.Errorf("service %q requested more than once", r.Name)
		}
		seen[r.Name] = true
		if r.PreferredPort < MinPort || r.PreferredPort > MaxPort {
			return fmt.Errorf("service %q: preferred port %d out of range (%d-%d)", r.Name, r.PreferredPort, MinPort, MaxPort)
		}
	}
	return nil
}

// ServicePortMap maps a service name (e.g. "WordPress") to its host TCP
// port. Within one map all ports are pairwise distinct.
type ServicePortMap map[string]int

// Validate checks port ranges and the pairwise-distinct invariant.
func (m ServicePortMap) Validate() error {
	owner := make(map[int]string, len(m))
	for _, name := range m.Services() {
		port := m[name]
		if port < MinPort || port > MaxPort {
			return fmt.Errorf("service %q: port %d out of range (%d-%d)", name, port, MinPort, MaxPort)
		}
		if other, dup := owner[port]; dup {
			return fmt.Errorf("port %d is assigned to both %q and %q", port, other, name)
		}
		owner[port] = name
	}
	return nil
}

// Services returns the service names in sorted order.
func (m ServicePortMap) Services() []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Ports returns every port in the map in ascending order.
func (m ServicePortMap) Ports() []int {
	ports := make([]int, 0, len(m))
	for _, p := range m {
		ports = append(ports, p)
	}
	sort.Ints(ports)
	return ports
}

// Equal reports whether both maps hold exactly the same assignments.
func (m ServicePortMap) Equal(other ServicePortMap) bool {
	if len(m) != len(other) {
		return false
	}
	for name, port := range m {
		if p, ok := other[name]; !ok || p != port {
			return false
		}
	}
	return true
}

// HasServices reports whether the map's key set is exactly the set of
// requested service names.
func (m ServicePortMap) HasServices(requests []ServiceRequest) bool {
	if len(m) != len(requests) {
		return false
	}
	for _, r := range requests {
		if _, ok := m[r.Name]; !ok {
			return false
		}
	}
	return true
}

// Clone returns an independent copy of the map.
func (m ServicePortMap) Clone() ServicePortMap {
	out := make(ServicePortMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// TimestampLayout is the ledger's timestamp format (yyyy-MM-dd HH:mm:ss).
const TimestampLayout = "2006-01-02 15:04:05"

// Timestamp is a time.Time that serializes in TimestampLayout, local time.
type Timestamp struct {
	time.Time
}

// NewTimestamp truncates t to whole seconds, matching what survives a
// round trip through the ledger file.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t.Truncate(time.Second)}
}

// MarshalJSON writes the timestamp as a quoted TimestampLayout string.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte(`""`), nil
	}
	return []byte(`"` + t.Local().Format(TimestampLayout) + `"`), nil
}

// UnmarshalJSON accepts TimestampLayout strings, RFC 3339 strings written
// by hand, and the empty string (zero time).
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		t.Time = time.Time{}
		return nil
	}
	parsed, err := time.ParseInLocation(TimestampLayout, s, time.Local)
	if err != nil {
		parsed, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return fmt.Errorf("invalid timestamp %q: expected %q", s, TimestampLayout)
		}
	}
	t.Time = parsed
	return nil
}

// LedgerEntry is the persisted port record of one project. The JSON field
// names are part of the on-disk format and must not change.
type LedgerEntry struct {
	ProjectName ProjectID      `json:"ProjectName"`
	CreatedDate Timestamp      `json:"CreatedDate"`
	LastUsed    Timestamp      `json:"LastUsed"`
	Ports       ServicePortMap `json:"Ports"`

	// File is the base name of the record file the entry was read from.
	// It is not stored and stays empty for entries built in memory.
	File string `json:"-"`
}

// PortCandidate records where a service's port search ended and how many
// probes it consumed getting there.
type PortCandidate struct {
	Port     int `json:"port"`
	Attempts int `json:"attempts"`
}

// RunningContainer is a running container as seen by the container
// runtime: its name, its compose project (empty when not started by
// compose) and the host ports it publishes.
type RunningContainer struct {
	Name           string `json:"name"`
	ComposeProject string `json:"composeProject,omitempty"`
	HostPorts      []int  `json:"hostPorts"`
}

// Publishes reports whether the container publishes port on the host.
func (c RunningContainer) Publishes(port int) bool {
	for _, p := range c.HostPorts {
		if p == port {
			return true
		}
	}
	return false
}

// AllocationError reports that a service exhausted its search budget
// without finding a free port. Attempts counts the candidates considered.
// No partial allocation accompanies it.
type AllocationError struct {
	Service       string
	PreferredPort int
	Attempts      int
}

// Error satisfies the error interface.
func (e *AllocationError) Error() string {
	return fmt.Sprintf("no free port for service %q: %d attempts exhausted starting at %d",
		e.Service, e.Attempts, e.PreferredPort)
}

// ExitCode defines the process exit codes of the devstack CLI.
type ExitCode int

const (
	ExitSuccess              ExitCode = 0
	ExitGeneralError         ExitCode = 1
	ExitConfigError          ExitCode = 2
	ExitDockerNotRunning     ExitCode = 3
	ExitPortAllocationFailed ExitCode = 4
	ExitLedgerError          ExitCode = 5
	ExitProjectNotFound      ExitCode = 6
	ExitUserCancelled        ExitCode = 7
)

// CLIError is an error that carries the exit code the CLI should return.
type CLIError struct {
	// Code is the exit code to return to the OS.
	Code ExitCode

	// Message is the human-readable error description.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// Error satisfies the error interface. It returns the human-readable
// error message, optionally including the underlying error.
func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *CLIError) Unwrap() error {
	return e.Err
}

// NewCLIError creates a new CLIError with the given exit code and message.
func NewCLIError(code ExitCode, message string) *CLIError {
	return &CLIError{Code: code, Message: message}
}

// WrapCLIError creates a new CLIError that wraps an existing error.
func WrapCLIError(code ExitCode, message string, err error) *CLIError {
	return &CLIError{Code: code, Message: message, Err: err}
}
