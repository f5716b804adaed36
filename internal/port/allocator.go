package port

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/shinji-kodama/devstack/internal/logging"
	"github.com/shinji-kodama/devstack/internal/model"
)

// DefaultMaxAttempts is how many increments past the preferred port a
// service's search may go before it gives up.
const DefaultMaxAttempts = 100

// PortChecker decides whether a port is free for a project.
// *Prober satisfies it.
type PortChecker interface {
	IsPortFree(ctx context.Context, port int, id model.ProjectID) bool
}

// PortStore persists port maps per project. *ledger.Ledger satisfies it.
type PortStore interface {
	Load(id model.ProjectID) (model.ServicePortMap, bool)
	Save(id model.ProjectID, ports model.ServicePortMap) error
}

// Allocation is the result of a successful Allocate call.
type Allocation struct {
	Ports model.ServicePortMap `json:"ports"`

	// Candidates records, per service, where its search ended and how
	// many probes it took. Empty when the stored map was reused.
	Candidates map[string]model.PortCandidate `json:"candidates,omitempty"`

	// Reused is true when the stored map was returned unchanged.
	Reused bool `json:"reused"`

	// PersistErr is set when the new map could not be saved. The ports
	// are still valid for this run.
	PersistErr error `json:"-"`
}

// Allocator hands out host ports for a project's services, preferring the
// ports recorded for the project by an earlier run.
//
// Discovery is a linear walk upward from each service's preferred port,
// one port per step. Services claim ports in request order, and a port
// claimed earlier in the same batch is skipped without probing, so the
// resulting map never assigns one port twice.
type Allocator struct {
	checker     PortChecker
	store       PortStore
	maxAttempts int
	logger      *zap.Logger
}

// AllocatorOption configures an Allocator.
type AllocatorOption func(*Allocator)

// WithMaxAttempts overrides DefaultMaxAttempts. Values below zero are
// ignored.
func WithMaxAttempts(n int) AllocatorOption {
	return func(a *Allocator) {
		if n >= 0 {
			a.maxAttempts = n
		}
	}
}

// WithAllocatorLogger sets the allocator's logger.
func WithAllocatorLogger(l *zap.Logger) AllocatorOption {
	return func(a *Allocator) { a.logger = l }
}

// NewAllocator creates an Allocator. checker and store must not be nil.
func NewAllocator(checker PortChecker, store PortStore, opts ...AllocatorOption) *Allocator {
	a := &Allocator{
		checker:     checker,
		store:       store,
		maxAttempts: DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = logging.OrNop(a.logger)
	return a
}

// Allocate returns a port for every requested service.
//
// If the store holds a map for id with exactly the requested services and
// every one of its ports is still free, that map is returned as is and
// nothing is written. Otherwise the stored map is discarded as a whole and
// ports are discovered afresh, then saved. A save failure does not fail
// the call; it is reported in Allocation.PersistErr.
//
// If any service runs out of attempts the call fails with a
// *model.AllocationError and no ports are returned.
func (a *Allocator) Allocate(ctx context.Context, id model.ProjectID, requests []model.ServiceRequest) (*Allocation, error) {
	if err := model.ValidateRequests(requests); err != nil {
		return nil, fmt.Errorf("invalid port request for %s: %w", id, err)
	}

	if existing, ok := a.store.Load(id); ok {
		if a.reusable(ctx, id, existing, requests) {
			a.logger.Debug("reusing stored ports", zap.String("project", id.String()), zap.Any("ports", existing))
			return &Allocation{Ports: existing.Clone(), Reused: true}, nil
		}
		a.logger.Info("stored ports unusable, searching again", zap.String("project", id.String()))
	}

	ports := make(model.ServicePortMap, len(requests))
	candidates := make(map[string]model.PortCandidate, len(requests))
	claimed := make(map[int]bool, len(requests))

	for _, req := range requests {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		candidate, err := a.search(ctx, id, req, claimed)
		if err != nil {
			return nil, err
		}
		ports[req.Name] = candidate.Port
		candidates[req.Name] = candidate
		claimed[candidate.Port] = true

		a.logger.Debug("port assigned",
			zap.String("project", id.String()),
			zap.String("service", req.Name),
			zap.Int("port", candidate.Port),
			zap.Int("attempts", candidate.Attempts),
		)
	}

	alloc := &Allocation{Ports: ports, Candidates: candidates}
	if err := a.store.Save(id, ports); err != nil {
		a.logger.Warn("could not persist port allocation",
			zap.String("project", id.String()), zap.Error(err))
		alloc.PersistErr = err
	}
	return alloc, nil
}

// reusable reports whether the stored map covers exactly the requested
// services and all of its ports probe free. Probing stops at the first
// busy port.
func (a *Allocator) reusable(ctx context.Context, id model.ProjectID, existing model.ServicePortMap, requests []model.ServiceRequest) bool {
	if !existing.HasServices(requests) || existing.Validate() != nil {
		return false
	}
	for _, name := range existing.Services() {
		if !a.checker.IsPortFree(ctx, existing[name], id) {
			a.logger.Debug("stored port busy",
				zap.String("project", id.String()),
				zap.String("service", name),
				zap.Int("port", existing[name]),
			)
			return false
		}
	}
	return true
}

// search walks upward from the preferred port. Ports claimed in this batch
// are skipped without a probe but still count as an attempt. On failure
// the error carries the number of candidates actually considered, which is
// smaller than the budget when the search runs into MaxPort.
func (a *Allocator) search(ctx context.Context, id model.ProjectID, req model.ServiceRequest, claimed map[int]bool) (model.PortCandidate, error) {
	tried := 0
	for step := 0; step <= a.maxAttempts; step++ {
		port := req.PreferredPort + step
		if port > model.MaxPort {
			break
		}
		tried++
		if claimed[port] {
			continue
		}
		if a.checker.IsPortFree(ctx, port, id) {
			return model.PortCandidate{Port: port, Attempts: tried}, nil
		}
	}
	return model.PortCandidate{}, &model.AllocationError{
		Service:       req.Name,
		PreferredPort: req.PreferredPort,
		Attempts:      tried,
	}
}
