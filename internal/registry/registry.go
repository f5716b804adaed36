// Package registry sweeps and summarizes the port ledger as a whole:
// finding records whose project is gone, deleting them, and counting how
// ports are spread across projects.
package registry

import (
	"iter"
	"sort"

	"go.uber.org/zap"

	"github.com/shinji-kodama/devstack/internal/logging"
	"github.com/shinji-kodama/devstack/internal/model"
)

// EntryStore is the part of the ledger the maintainer needs.
// *ledger.Ledger satisfies it.
type EntryStore interface {
	ListAll() iter.Seq2[model.LedgerEntry, error]
	DeleteEntry(entry model.LedgerEntry) error
}

// ProjectExists reports whether a project still exists on disk.
type ProjectExists func(id model.ProjectID) bool

// PurgeFailure is one record that could not be deleted.
type PurgeFailure struct {
	Project model.ProjectID `json:"project"`
	Err     error           `json:"-"`
	Message string          `json:"error"`
}

// PurgeReport summarizes a PurgeOrphans run.
type PurgeReport struct {
	Deleted  []model.ProjectID `json:"deleted"`
	Failures []PurgeFailure    `json:"failures,omitempty"`
}

// Skipped returns the number of records that could not be deleted.
func (r PurgeReport) Skipped() int {
	return len(r.Failures)
}

// PortCollision is a port recorded by more than one project.
type PortCollision struct {
	Port     int               `json:"port"`
	Projects []model.ProjectID `json:"projects"`
}

// Statistics describes the ledger's contents.
type Statistics struct {
	TotalProjects   int             `json:"totalProjects"`
	ActiveProjects  int             `json:"activeProjects"`
	UniquePortsUsed int             `json:"uniquePortsUsed"`
	Collisions      []PortCollision `json:"collisions"`

	// Unreadable counts records that could not be decoded. They are not
	// included in any other figure.
	Unreadable int `json:"unreadable"`
}

// Maintainer runs whole-ledger operations.
type Maintainer struct {
	store  EntryStore
	exists ProjectExists
	logger *zap.Logger
}

// Option configures a Maintainer.
type Option func(*Maintainer)

// WithProjectExists sets the predicate ComputeStatistics uses to count
// active projects, and the default for FindOrphans.
func WithProjectExists(fn ProjectExists) Option {
	return func(m *Maintainer) { m.exists = fn }
}

// WithLogger sets the maintainer's logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Maintainer) { m.logger = l }
}

// NewMaintainer creates a Maintainer over store.
func NewMaintainer(store EntryStore, opts ...Option) *Maintainer {
	m := &Maintainer{store: store}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = logging.OrNop(m.logger)
	return m
}

// FindOrphans returns the records whose project fails exists. A nil exists
// falls back to the maintainer's predicate; with neither, nothing is an
// orphan. Unreadable records are logged and left alone.
func (m *Maintainer) FindOrphans(exists ProjectExists) []model.LedgerEntry {
	if exists == nil {
		exists = m.exists
	}
	if exists == nil {
		return nil
	}

	var orphans []model.LedgerEntry
	for entry, err := range m.store.ListAll() {
		if err != nil {
			m.logger.Warn("skipping unreadable ledger entry", zap.Error(err))
			continue
		}
		if !exists(entry.ProjectName) {
			orphans = append(orphans, entry)
		}
	}
	return orphans
}

// PurgeOrphans deletes every given record by the file it was read from. A
// failed deletion is recorded in the report and the sweep goes on with the
// next record.
func (m *Maintainer) PurgeOrphans(orphans []model.LedgerEntry) PurgeReport {
	report := PurgeReport{Deleted: []model.ProjectID{}}
	for _, entry := range orphans {
		if err := m.store.DeleteEntry(entry); err != nil {
			m.logger.Warn("failed to delete orphaned ledger entry",
				zap.String("project", entry.ProjectName.String()), zap.Error(err))
			report.Failures = append(report.Failures, PurgeFailure{
				Project: entry.ProjectName,
				Err:     err,
				Message: err.Error(),
			})
			continue
		}
		m.logger.Debug("deleted orphaned ledger entry", zap.String("project", entry.ProjectName.String()))
		report.Deleted = append(report.Deleted, entry.ProjectName)
	}
	return report
}

// ComputeStatistics scans the ledger once. A project is active when the
// maintainer's predicate accepts it, or always when there is no
// predicate. Collisions list each port held by two or more projects,
// ordered by port, with the projects in name order.
func (m *Maintainer) ComputeStatistics() Statistics {
	stats := Statistics{Collisions: []PortCollision{}}
	holders := make(map[int]map[model.ProjectID]bool)

	for entry, err := range m.store.ListAll() {
		if err != nil {
			stats.Unreadable++
			m.logger.Debug("unreadable ledger entry", zap.Error(err))
			continue
		}
		stats.TotalProjects++
		if m.exists == nil || m.exists(entry.ProjectName) {
			stats.ActiveProjects++
		}
		for _, port := range entry.Ports {
			if holders[port] == nil {
				holders[port] = make(map[model.ProjectID]bool)
			}
			holders[port][entry.ProjectName] = true
		}
	}

	stats.UniquePortsUsed = len(holders)
	for port, projects := range holders {
		if len(projects) < 2 {
			continue
		}
		collision := PortCollision{Port: port}
		for id := range projects {
			collision.Projects = append(collision.Projects, id)
		}
		sort.Slice(collision.Projects, func(i, j int) bool {
			return collision.Projects[i] < collision.Projects[j]
		})
		stats.Collisions = append(stats.Collisions, collision)
	}
	sort.Slice(stats.Collisions, func(i, j int) bool {
		return stats.Collisions[i].Port < stats.Collisions[j].Port
	})
	return stats
}
