package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"go.uber.org/zap"

	"github.com/shinji-kodama/devstack/internal/logging"
	"github.com/shinji-kodama/devstack/internal/model"
)

// fileExt is the extension of every record file in the ledger directory.
const fileExt = ".json"

// ErrNotFound is returned by Entry when the project has no record.
var ErrNotFound = errors.New("no ledger entry")

// Ledger stores one port record per project as a JSON file in a single
// directory. It keeps no state between calls; every operation goes to
// disk.
type Ledger struct {
	dir    string
	now    func() time.Time
	logger *zap.Logger
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock replaces time.Now for timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithLogger sets the logger used for non-fatal read and refresh errors.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// New returns a Ledger rooted at dir. The directory is created on first
// write.
func New(dir string, opts ...Option) *Ledger {
	l := &Ledger{dir: dir, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = logging.OrNop(l.logger)
	return l
}

// DefaultDir returns <user config dir>/devstack/ports.
func DefaultDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate user config directory: %w", err)
	}
	return filepath.Join(base, "devstack", "ports"), nil
}

// Dir returns the ledger directory.
func (l *Ledger) Dir() string {
	return l.dir
}

// Path returns the record file for id. Characters outside [A-Za-z0-9._-]
// are replaced with '_' so any identifier maps to a single file name.
func (l *Ledger) Path(id model.ProjectID) string {
	return filepath.Join(l.dir, safeName(id)+fileExt)
}

func safeName(id model.ProjectID) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '.', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, id.String())
	if name == "" || strings.Trim(name, ".") == "" {
		// "", "." and ".." would escape or collide with the directory itself.
		name = strings.Repeat("_", len(name)+1)
	}
	return name
}

// Load returns the stored ports for id and refreshes the record's LastUsed
// time. A missing or unreadable record reads as absent; a failed refresh
// is logged and does not affect the result.
func (l *Ledger) Load(id model.ProjectID) (model.ServicePortMap, bool) {
	entry, err := l.read(l.Path(id))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			l.logger.Warn("ignoring unreadable ledger entry",
				zap.String("project", id.String()), zap.Error(err))
		}
		return nil, false
	}

	entry.LastUsed = model.NewTimestamp(l.now())
	if err := l.write(id, entry); err != nil {
		l.logger.Warn("could not refresh ledger entry",
			zap.String("project", id.String()), zap.Error(err))
	}
	return entry.Ports.Clone(), true
}

// Entry returns the stored record for id without touching it. The error
// wraps ErrNotFound when no record exists.
func (l *Ledger) Entry(id model.ProjectID) (*model.LedgerEntry, error) {
	entry, err := l.read(l.Path(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w for project %s", ErrNotFound, id)
		}
		return nil, err
	}
	return entry, nil
}

// Save records ports for id. An existing record keeps its CreatedDate;
// both timestamps are set for a new one.
func (l *Ledger) Save(id model.ProjectID, ports model.ServicePortMap) error {
	if err := ports.Validate(); err != nil {
		return fmt.Errorf("refusing to save ports for %s: %w", id, err)
	}

	now := model.NewTimestamp(l.now())
	entry := &model.LedgerEntry{
		ProjectName: id,
		CreatedDate: now,
		LastUsed:    now,
		Ports:       ports.Clone(),
	}
	if prev, err := l.read(l.Path(id)); err == nil && !prev.CreatedDate.IsZero() {
		entry.CreatedDate = prev.CreatedDate
	}
	return l.write(id, entry)
}

// ListAll enumerates every record in the directory. Each iteration re-reads
// the directory, so the sequence can be ranged over more than once and
// always reflects the current contents. A record that cannot be decoded
// yields an error and the iteration moves on to the next file.
func (l *Ledger) ListAll() iter.Seq2[model.LedgerEntry, error] {
	return func(yield func(model.LedgerEntry, error) bool) {
		files, err := l.recordFiles()
		if err != nil {
			yield(model.LedgerEntry{}, err)
			return
		}
		for _, path := range files {
			entry, err := l.read(path)
			if err != nil {
				if !yield(model.LedgerEntry{}, err) {
					return
				}
				continue
			}
			if !yield(*entry, nil) {
				return
			}
		}
	}
}

// Delete removes the record for id. Deleting a missing record succeeds.
func (l *Ledger) Delete(id model.ProjectID) error {
	return l.remove(id, l.Path(id))
}

// DeleteEntry removes the file entry was read from, which need not be the
// file its ProjectName maps to when the record was edited by hand. An
// entry without a File falls back to Delete.
func (l *Ledger) DeleteEntry(entry model.LedgerEntry) error {
	if entry.File == "" {
		return l.Delete(entry.ProjectName)
	}
	if entry.File != filepath.Base(entry.File) || filepath.Ext(entry.File) != fileExt {
		return fmt.Errorf("refusing to delete ledger entry for %s: invalid record file %q", entry.ProjectName, entry.File)
	}
	return l.remove(entry.ProjectName, filepath.Join(l.dir, entry.File))
}

func (l *Ledger) remove(id model.ProjectID, path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete ledger entry for %s: %w", id, err)
	}
	return nil
}

// recordFiles lists the record files in name order. A missing directory
// is an empty ledger.
func (l *Ledger) recordFiles() ([]string, error) {
	dirEntries, err := os.ReadDir(l.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read ledger directory %s: %w", l.dir, err)
	}

	var files []string
	for _, de := range dirEntries {
		name := de.Name()
		if de.IsDir() || strings.HasPrefix(name, ".") || filepath.Ext(name) != fileExt {
			continue
		}
		files = append(files, filepath.Join(l.dir, name))
	}
	sort.Strings(files)
	return files, nil
}

// read decodes one record file. Comments and trailing commas that an
// operator may have added by hand are stripped before decoding.
func (l *Ledger) read(path string) (*model.LedgerEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var entry model.LedgerEntry
	if err := json.Unmarshal(jsonc.ToJSON(data), &entry); err != nil {
		return nil, fmt.Errorf("failed to parse ledger entry %s: %w", path, err)
	}
	entry.File = filepath.Base(path)
	if entry.ProjectName == "" {
		entry.ProjectName = model.ProjectID(strings.TrimSuffix(entry.File, fileExt))
	}
	if entry.Ports == nil {
		entry.Ports = model.ServicePortMap{}
	}
	return &entry, nil
}

// write replaces the record for id atomically: the new content goes to a
// temporary file in the same directory which is then renamed over the old
// one.
func (l *Ledger) write(id model.ProjectID, entry *model.LedgerEntry) error {
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create ledger directory %s: %w", l.dir, err)
	}

	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode ledger entry for %s: %w", id, err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(l.dir, "."+safeName(id)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to write ledger entry for %s: %w", id, err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write ledger entry for %s: %w", id, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write ledger entry for %s: %w", id, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("failed to write ledger entry for %s: %w", id, err)
	}
	if err := os.Rename(tmpName, l.Path(id)); err != nil {
		return fmt.Errorf("failed to write ledger entry for %s: %w", id, err)
	}
	return nil
}
