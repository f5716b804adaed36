// Package logging builds the zap logger shared by devstack components.
//
// Components take a *zap.Logger through their options and fall back to
// zap.NewNop(), so library code never writes output unless the CLI wires
// a logger in. The CLI builds one logger per invocation with New and
// syncs it when the command finishes.
package logging

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options controls the logger built by New.
type Options struct {
	// Verbose lowers the level from info to debug.
	Verbose bool

	// JSON selects the JSON encoder instead of the console encoder.
	JSON bool

	// Output is where log lines are written. Defaults to os.Stderr so
	// stdout stays reserved for command results.
	Output io.Writer
}

// New builds a logger from opts.
func New(opts Options) *zap.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	level := zapcore.InfoLevel
	if opts.Verbose {
		level = zapcore.DebugLevel
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	if opts.JSON {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	core := zapcore.NewCore(enc, zapcore.AddSync(out), level)
	return zap.New(core)
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
