package cli

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/shinji-kodama/devstack/internal/config"
	"github.com/shinji-kodama/devstack/internal/docker"
	"github.com/shinji-kodama/devstack/internal/ledger"
	"github.com/shinji-kodama/devstack/internal/model"
	"github.com/shinji-kodama/devstack/internal/port"
	"github.com/shinji-kodama/devstack/internal/registry"
	"github.com/shinji-kodama/devstack/internal/stack"
)

// runtimeEnv holds the components a command works with, built from the
// loaded config.
type runtimeEnv struct {
	cfg    *config.Config
	ledger *ledger.Ledger
	prober *port.Prober

	// closers run in order when the command is done.
	closers []func() error
}

// loadEnv loads the config and builds the ledger and the port prober.
// Callers must call close.
func loadEnv(ctx context.Context) (*runtimeEnv, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, model.WrapCLIError(model.ExitConfigError, "failed to load config", err)
	}

	ledgerDir := cfg.LedgerDir
	if ledgerDir == "" {
		if ledgerDir, err = ledger.DefaultDir(); err != nil {
			return nil, model.WrapCLIError(model.ExitLedgerError, "failed to locate ledger directory", err)
		}
	}

	env := &runtimeEnv{
		cfg:    cfg,
		ledger: ledger.New(ledgerDir, ledger.WithLogger(logger.Named("ledger"))),
	}
	env.prober = port.NewProber(env.proberOptions(ctx)...)

	logger.Debug("environment loaded",
		zap.String("projectsDir", cfg.ProjectsDir),
		zap.String("ledgerDir", ledgerDir),
		zap.String("runtime", cfg.Runtime.Command),
		zap.String("mode", cfg.Runtime.Mode))
	return env, nil
}

// proberOptions turns the probe settings into prober options. A Docker
// daemon that cannot be reached only disables the container signal.
func (e *runtimeEnv) proberOptions(ctx context.Context) []port.ProberOption {
	opts := []port.ProberOption{port.WithProberLogger(logger.Named("probe"))}

	if !e.cfg.Probe.ListenerTable {
		opts = append(opts, port.WithListenerTable(nil))
	}

	if e.cfg.Probe.Containers {
		switch e.cfg.Runtime.Mode {
		case config.RuntimeModeCLI:
			opts = append(opts, port.WithContainerLister(
				docker.NewCLILister(e.cfg.Runtime.Command, logger.Named("docker"))))
		default:
			client, err := docker.NewClient()
			if err != nil {
				logger.Debug("container check disabled", zap.Error(err))
				break
			}
			e.closers = append(e.closers, client.Close)
			if err := client.Ping(ctx); err != nil {
				logger.Debug("container check disabled", zap.Error(err))
				break
			}
			opts = append(opts, port.WithContainerLister(docker.NewSDKLister(client)))
		}
	}
	return opts
}

func (e *runtimeEnv) allocator() *port.Allocator {
	return port.NewAllocator(e.prober, e.ledger,
		port.WithMaxAttempts(e.cfg.MaxAttempts),
		port.WithAllocatorLogger(logger.Named("allocator")))
}

func (e *runtimeEnv) maintainer() *registry.Maintainer {
	return registry.NewMaintainer(e.ledger,
		registry.WithProjectExists(stack.ExistsFunc(e.cfg.ProjectsDir)),
		registry.WithLogger(logger.Named("registry")))
}

func (e *runtimeEnv) compose() *docker.Compose {
	return docker.NewCompose(e.cfg.Runtime.Command, logger.Named("compose"))
}

// project resolves id under the configured projects directory.
func (e *runtimeEnv) project(id string) (*stack.Project, error) {
	p, err := stack.Resolve(e.cfg.ProjectsDir, model.ProjectID(id))
	if err != nil {
		return nil, model.WrapCLIError(model.ExitGeneralError, fmt.Sprintf("invalid project name %q", id), err)
	}
	return p, nil
}

func (e *runtimeEnv) close() {
	for _, fn := range e.closers {
		if err := fn(); err != nil {
			logger.Debug("close failed", zap.Error(err))
		}
	}
}
