package port

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/shinji-kodama/devstack/internal/logging"
	"github.com/shinji-kodama/devstack/internal/model"
)

// ContainerLister enumerates running containers and the host ports they
// publish.
type ContainerLister interface {
	RunningContainers(ctx context.Context) ([]model.RunningContainer, error)
}

// ownerSeparators may follow the project name in a container it owns,
// covering compose v1 ("demo_wordpress_1"), compose v2 ("demo-wordpress-1")
// and dotted names.
const ownerSeparators = "-_."

// OwnedBy reports whether container c belongs to project id. A compose
// project label equal to id is decisive. Otherwise the container name must
// equal id or start with id followed by a separator, compared without case.
func OwnedBy(c model.RunningContainer, id model.ProjectID) bool {
	if id == "" {
		return false
	}
	project := strings.ToLower(id.String())
	if c.ComposeProject != "" && strings.ToLower(c.ComposeProject) == project {
		return true
	}
	name := strings.ToLower(strings.TrimPrefix(c.Name, "/"))
	if name == project {
		return true
	}
	return strings.HasPrefix(name, project) &&
		strings.ContainsRune(ownerSeparators, rune(name[len(project)]))
}

// ProbeReport records the per-signal verdicts behind a port check.
// Signals the probe did not need to consult stay inconclusive.
type ProbeReport struct {
	Port      int             `json:"port"`
	ProjectID model.ProjectID `json:"project,omitempty"`

	Listener      model.Verdict `json:"listener"`
	ListenerMatch string        `json:"listenerMatch,omitempty"`

	Container     model.Verdict `json:"container"`
	ContainerName string        `json:"containerName,omitempty"`

	Bind model.Verdict `json:"bind"`

	// Verdict is the combined result: busy if any signal said busy,
	// otherwise the bind verdict.
	Verdict model.Verdict `json:"verdict"`
}

// Free reports whether the combined verdict allows using the port.
func (r ProbeReport) Free() bool {
	return r.Verdict == model.VerdictFree
}

// Prober decides whether a TCP port can be handed to a project by
// combining the listener table, the container runtime and a bind probe.
type Prober struct {
	listeners  ListenerTable
	containers ContainerLister
	binder     Binder
	logger     *zap.Logger
}

// ProberOption configures a Prober.
type ProberOption func(*Prober)

// WithListenerTable sets the listener table. Nil disables the signal.
func WithListenerTable(t ListenerTable) ProberOption {
	return func(p *Prober) { p.listeners = t }
}

// WithContainerLister sets the container runtime. Nil disables the signal.
func WithContainerLister(l ContainerLister) ProberOption {
	return func(p *Prober) { p.containers = l }
}

// WithBinder replaces the bind probe.
func WithBinder(b Binder) ProberOption {
	return func(p *Prober) { p.binder = b }
}

// WithProberLogger sets the logger for inconclusive signals.
func WithProberLogger(l *zap.Logger) ProberOption {
	return func(p *Prober) { p.logger = l }
}

// NewProber creates a Prober. By default it reads the listener table with
// DefaultListenerCommands, consults no container runtime, and binds with a
// TCP Scanner.
func NewProber(opts ...ProberOption) *Prober {
	p := &Prober{
		listeners: NewCommandListenerTable(),
		binder:    NewScanner(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.binder == nil {
		p.binder = NewScanner()
	}
	p.logger = logging.OrNop(p.logger)
	return p
}

// IsPortFree reports whether port is free for project id. The container
// signal ignores containers that belong to id.
func (p *Prober) IsPortFree(ctx context.Context, port int, id model.ProjectID) bool {
	return p.Check(ctx, port, id).Free()
}

// Check evaluates the signals in order and stops at the first busy one.
func (p *Prober) Check(ctx context.Context, port int, id model.ProjectID) ProbeReport {
	return p.evaluate(ctx, port, id, true)
}

// Diagnose evaluates every signal regardless of earlier results.
func (p *Prober) Diagnose(ctx context.Context, port int, id model.ProjectID) ProbeReport {
	return p.evaluate(ctx, port, id, false)
}

func (p *Prober) evaluate(ctx context.Context, port int, id model.ProjectID, shortCircuit bool) ProbeReport {
	report := ProbeReport{Port: port, ProjectID: id}
	if port < model.MinPort || port > model.MaxPort {
		report.Verdict = model.VerdictBusy
		return report
	}

	report.Listener, report.ListenerMatch = p.checkListeners(ctx, port)
	if report.Listener == model.VerdictBusy && shortCircuit {
		report.Verdict = model.VerdictBusy
		return report
	}

	report.Container, report.ContainerName = p.checkContainers(ctx, port, id)
	if report.Container == model.VerdictBusy && shortCircuit {
		report.Verdict = model.VerdictBusy
		return report
	}

	report.Bind = p.binder.Bind(port)

	switch {
	case report.Listener == model.VerdictBusy,
		report.Container == model.VerdictBusy:
		report.Verdict = model.VerdictBusy
	default:
		report.Verdict = report.Bind
	}
	return report
}

func (p *Prober) checkListeners(ctx context.Context, port int) (model.Verdict, string) {
	if p.listeners == nil {
		return model.VerdictInconclusive, ""
	}
	table, err := p.listeners.Snapshot(ctx)
	if err != nil {
		p.logger.Debug("listener table unavailable", zap.Int("port", port), zap.Error(err))
		return model.VerdictInconclusive, ""
	}
	if name, ok := MatchListener(table, port); ok {
		return model.VerdictBusy, name
	}
	return model.VerdictFree, ""
}

func (p *Prober) checkContainers(ctx context.Context, port int, id model.ProjectID) (model.Verdict, string) {
	if p.containers == nil {
		return model.VerdictInconclusive, ""
	}
	running, err := p.containers.RunningContainers(ctx)
	if err != nil {
		p.logger.Debug("container runtime unavailable", zap.Int("port", port), zap.Error(err))
		return model.VerdictInconclusive, ""
	}
	for _, c := range running {
		if !c.Publishes(port) || OwnedBy(c, id) {
			continue
		}
		return model.VerdictBusy, c.Name
	}
	return model.VerdictFree, ""
}
