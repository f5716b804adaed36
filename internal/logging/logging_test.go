package logging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestNew_ConsoleOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Options{Output: &buf})

	logger.Info("ports allocated", zap.String("project", "demo"))

	out := buf.String()
	assert.Contains(t, out, "ports allocated")
	assert.Contains(t, out, "INFO")
	assert.Contains(t, out, "demo")
}

func TestNew_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Options{JSON: true, Output: &buf})

	logger.Warn("ledger write failed", zap.Int("port", 8080))

	out := buf.String()
	assert.Contains(t, out, `"msg":"ledger write failed"`)
	assert.Contains(t, out, `"port":8080`)
}

func TestNew_DebugOnlyWhenVerbose(t *testing.T) {
	var quiet bytes.Buffer
	New(Options{Output: &quiet}).Debug("probe inconclusive")
	assert.Empty(t, quiet.String())

	var loud bytes.Buffer
	New(Options{Verbose: true, Output: &loud}).Debug("probe inconclusive")
	assert.Contains(t, loud.String(), "probe inconclusive")
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, OrNop(nil))

	l := zap.NewExample()
	assert.Same(t, l, OrNop(l))
}
