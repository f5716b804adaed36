package ledger

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinji-kodama/devstack/internal/model"
)

// fakeClock returns a settable clock.
func fakeClock(start time.Time) (func() time.Time, func(time.Duration)) {
	now := start
	return func() time.Time { return now }, func(d time.Duration) { now = now.Add(d) }
}

func newTestLedger(t *testing.T) (*Ledger, func(time.Duration)) {
	t.Helper()
	clock, advance := fakeClock(time.Date(2026, 3, 1, 9, 30, 0, 0, time.Local))
	return New(filepath.Join(t.TempDir(), "ports"), WithClock(clock)), advance
}

func TestLedger_SaveAndLoad(t *testing.T) {
	l, _ := newTestLedger(t)
	ports := model.ServicePortMap{"WordPress": 8081, "MySQL": 3306, "PHPMyAdmin": 8082}

	require.NoError(t, l.Save("demo", ports))

	loaded, ok := l.Load("demo")
	require.True(t, ok)
	assert.Equal(t, ports, loaded)

	_, ok = l.Load("other")
	assert.False(t, ok)
}

// TestLedger_FileFormat pins the on-disk record.
func TestLedger_FileFormat(t *testing.T) {
	l, _ := newTestLedger(t)
	require.NoError(t, l.Save("demo", model.ServicePortMap{"WordPress": 8080}))

	data, err := os.ReadFile(filepath.Join(l.Dir(), "demo.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"ProjectName": "demo",
		"CreatedDate": "2026-03-01 09:30:00",
		"LastUsed": "2026-03-01 09:30:00",
		"Ports": {"WordPress": 8080}
	}`, string(data))
}

func TestLedger_LoadRefreshesLastUsed(t *testing.T) {
	l, advance := newTestLedger(t)
	require.NoError(t, l.Save("demo", model.ServicePortMap{"WordPress": 8080}))

	advance(2 * time.Hour)
	_, ok := l.Load("demo")
	require.True(t, ok)

	entry, err := l.Entry("demo")
	require.NoError(t, err)
	assert.Equal(t, "2026-03-01 09:30:00", entry.CreatedDate.Format(model.TimestampLayout))
	assert.Equal(t, "2026-03-01 11:30:00", entry.LastUsed.Format(model.TimestampLayout))
}

func TestLedger_SaveKeepsCreatedDate(t *testing.T) {
	l, advance := newTestLedger(t)
	require.NoError(t, l.Save("demo", model.ServicePortMap{"WordPress": 8080}))

	advance(24 * time.Hour)
	require.NoError(t, l.Save("demo", model.ServicePortMap{"WordPress": 8090}))

	entry, err := l.Entry("demo")
	require.NoError(t, err)
	assert.Equal(t, "2026-03-01 09:30:00", entry.CreatedDate.Format(model.TimestampLayout))
	assert.Equal(t, "2026-03-02 09:30:00", entry.LastUsed.Format(model.TimestampLayout))
	assert.Equal(t, 8090, entry.Ports["WordPress"])
}

func TestLedger_SaveRejectsDuplicatePorts(t *testing.T) {
	l, _ := newTestLedger(t)
	err := l.Save("demo", model.ServicePortMap{"WordPress": 8080, "PHPMyAdmin": 8080})
	assert.Error(t, err)

	_, statErr := os.Stat(l.Path("demo"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestLedger_Entry_NotFound(t *testing.T) {
	l, _ := newTestLedger(t)
	_, err := l.Entry("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

// TestLedger_ReadsAnnotatedRecord checks that comments and trailing commas
// added by hand do not break decoding.
func TestLedger_ReadsAnnotatedRecord(t *testing.T) {
	l, _ := newTestLedger(t)
	require.NoError(t, os.MkdirAll(l.Dir(), 0o755))
	record := `{
  // moved phpmyadmin off 8081 for the demo
  "ProjectName": "demo",
  "CreatedDate": "2026-01-10 08:00:00",
  "LastUsed": "2026-01-11 08:00:00",
  "Ports": {"WordPress": 8080, "PHPMyAdmin": 9081,},
}`
	require.NoError(t, os.WriteFile(l.Path("demo"), []byte(record), 0o644))

	entry, err := l.Entry("demo")
	require.NoError(t, err)
	assert.Equal(t, model.ServicePortMap{"WordPress": 8080, "PHPMyAdmin": 9081}, entry.Ports)
}

func TestLedger_CorruptRecordReadsAsAbsent(t *testing.T) {
	l, _ := newTestLedger(t)
	require.NoError(t, os.MkdirAll(l.Dir(), 0o755))
	require.NoError(t, os.WriteFile(l.Path("demo"), []byte("not json"), 0o644))

	_, ok := l.Load("demo")
	assert.False(t, ok)
}

func TestLedger_ListAll(t *testing.T) {
	l, _ := newTestLedger(t)
	require.NoError(t, l.Save("alpha", model.ServicePortMap{"WordPress": 8080}))
	require.NoError(t, l.Save("beta", model.ServicePortMap{"WordPress": 8081}))
	require.NoError(t, os.WriteFile(filepath.Join(l.Dir(), "broken.json"), []byte("{"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(l.Dir(), "notes.txt"), []byte("ignored"), 0o644))

	var names []model.ProjectID
	var errs int
	for entry, err := range l.ListAll() {
		if err != nil {
			errs++
			continue
		}
		names = append(names, entry.ProjectName)
	}
	assert.Equal(t, []model.ProjectID{"alpha", "beta"}, names)
	assert.Equal(t, 1, errs)
}

// TestLedger_ListAllRestartable verifies that a second pass sees changes
// made after the first.
func TestLedger_ListAllRestartable(t *testing.T) {
	l, _ := newTestLedger(t)
	require.NoError(t, l.Save("alpha", model.ServicePortMap{"WordPress": 8080}))

	seq := l.ListAll()
	count := func() int {
		n := 0
		for _, err := range seq {
			require.NoError(t, err)
			n++
		}
		return n
	}
	assert.Equal(t, 1, count())

	require.NoError(t, l.Save("beta", model.ServicePortMap{"WordPress": 8081}))
	assert.Equal(t, 2, count())
}

func TestLedger_ListAllEarlyStop(t *testing.T) {
	l, _ := newTestLedger(t)
	for _, id := range []model.ProjectID{"a", "b", "c"} {
		require.NoError(t, l.Save(id, model.ServicePortMap{"WordPress": 8080}))
	}

	n := 0
	for range l.ListAll() {
		n++
		break
	}
	assert.Equal(t, 1, n)
}

func TestLedger_ListAllMissingDir(t *testing.T) {
	l := New(filepath.Join(t.TempDir(), "does-not-exist"))
	for _, err := range l.ListAll() {
		t.Fatalf("unexpected element (err=%v)", err)
	}
}

func TestLedger_DeleteIdempotent(t *testing.T) {
	l, _ := newTestLedger(t)
	require.NoError(t, l.Save("demo", model.ServicePortMap{"WordPress": 8080}))

	require.NoError(t, l.Delete("demo"))
	_, ok := l.Load("demo")
	assert.False(t, ok)

	assert.NoError(t, l.Delete("demo"))
	assert.NoError(t, l.Delete("never-existed"))
}

func TestLedger_PathSanitizes(t *testing.T) {
	l := New("/var/ledger")

	assert.Equal(t, filepath.Join("/var/ledger", "my-shop.json"), l.Path("my-shop"))
	assert.Equal(t, filepath.Join("/var/ledger", "a_b_c.json"), l.Path("a/b c"))
	assert.Equal(t, filepath.Join("/var/ledger", "___.json"), l.Path(".."))
}

func TestLedger_NoTempFilesLeft(t *testing.T) {
	l, _ := newTestLedger(t)
	require.NoError(t, l.Save("demo", model.ServicePortMap{"WordPress": 8080}))
	require.NoError(t, l.Save("demo", model.ServicePortMap{"WordPress": 8081}))

	entries, err := os.ReadDir(l.Dir())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "demo.json", entries[0].Name())
}

func TestLedger_DeleteEntryUsesSourceFile(t *testing.T) {
	l, _ := newTestLedger(t)
	require.NoError(t, l.Save("old", model.ServicePortMap{"WordPress": 8080}))
	path := filepath.Join(l.Dir(), "old.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"ProjectName": "new name"}`), 0o644))

	var entries []model.LedgerEntry
	for entry, err := range l.ListAll() {
		require.NoError(t, err)
		entries = append(entries, entry)
	}
	require.Len(t, entries, 1)
	assert.Equal(t, "old.json", entries[0].File)

	require.NoError(t, l.DeleteEntry(entries[0]))
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestLedger_DeleteEntryRejectsForeignPath(t *testing.T) {
	l, _ := newTestLedger(t)
	err := l.DeleteEntry(model.LedgerEntry{ProjectName: "x", File: "../x.json"})
	assert.ErrorContains(t, err, "invalid record file")

	require.NoError(t, l.Save("demo", model.ServicePortMap{"WordPress": 8080}))
	require.NoError(t, l.DeleteEntry(model.LedgerEntry{ProjectName: "demo"}))
	_, ok := l.Load("demo")
	assert.False(t, ok)
}
