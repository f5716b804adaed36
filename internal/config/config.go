// Package config loads devstack's settings from a YAML file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/shinji-kodama/devstack/internal/model"
)

// EnvConfigPath overrides the default config file location.
const EnvConfigPath = "DEVSTACK_CONFIG"

// Runtime modes for listing containers.
const (
	RuntimeModeSDK = "sdk"
	RuntimeModeCLI = "cli"
)

// Config holds devstack's settings.
type Config struct {
	// ProjectsDir holds one directory per project, named after the project.
	ProjectsDir string `yaml:"projects_dir"`

	// LedgerDir holds the port records. Empty means the ledger default.
	LedgerDir string `yaml:"ledger_dir,omitempty"`

	// MaxAttempts is how far past its preferred port a service may search.
	MaxAttempts int `yaml:"max_attempts"`

	// Services are allocated in this order.
	Services []model.ServiceRequest `yaml:"services"`

	Probe    ProbeConfig   `yaml:"probe"`
	Runtime  RuntimeConfig `yaml:"runtime"`
	Versions Versions      `yaml:"versions"`
}

// ProbeConfig switches the optional port probe signals. The bind check
// always runs.
type ProbeConfig struct {
	ListenerTable bool `yaml:"listener_table"`
	Containers    bool `yaml:"containers"`
}

// RuntimeConfig selects the container runtime.
type RuntimeConfig struct {
	// Command is the runtime CLI, e.g. docker or podman.
	Command string `yaml:"command"`

	// Mode is "sdk" to list containers through the Docker Engine API or
	// "cli" to parse `<command> ps` output.
	Mode string `yaml:"mode"`
}

// Versions are the image versions written to a project's .env file.
type Versions struct {
	WordPress string `yaml:"wordpress"`
	PHP       string `yaml:"php"`
	MySQL     string `yaml:"mysql"`
}

// DefaultServices is the standard WordPress stack.
func DefaultServices() []model.ServiceRequest {
	return []model.ServiceRequest{
		{Name: "WordPress", PreferredPort: 8080},
		{Name: "MySQL", PreferredPort: 3306},
		{Name: "PHPMyAdmin", PreferredPort: 8081},
	}
}

// DefaultConfig returns the built-in settings.
func DefaultConfig() *Config {
	return &Config{
		ProjectsDir: "~/devstack/projects",
		MaxAttempts: 100,
		Services:    DefaultServices(),
		Probe: ProbeConfig{
			ListenerTable: true,
			Containers:    true,
		},
		Runtime: RuntimeConfig{
			Command: "docker",
			Mode:    RuntimeModeSDK,
		},
		Versions: Versions{
			WordPress: "latest",
			PHP:       "8.2",
			MySQL:     "8.0",
		},
	}
}

// DefaultPath returns $DEVSTACK_CONFIG, or <user config dir>/devstack/config.yaml.
func DefaultPath() string {
	if path := os.Getenv(EnvConfigPath); path != "" {
		return path
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(base, "devstack", "config.yaml")
}

// Load reads the config at path, or at DefaultPath when path is empty.
// Fields missing from the file keep their defaults. A missing file at the
// default location yields the defaults; a missing file that was asked for
// explicitly is an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		case os.IsNotExist(err) && !explicit:
		default:
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the config to path as YAML.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if dir := os.Getenv("DEVSTACK_PROJECTS_DIR"); dir != "" {
		c.ProjectsDir = dir
	}
	if dir := os.Getenv("DEVSTACK_LEDGER_DIR"); dir != "" {
		c.LedgerDir = dir
	}
	if cmd := os.Getenv("DEVSTACK_RUNTIME"); cmd != "" {
		c.Runtime.Command = cmd
	}
}

func (c *Config) expandPaths() error {
	var err error
	if c.ProjectsDir, err = ExpandHome(c.ProjectsDir); err != nil {
		return err
	}
	if c.LedgerDir, err = ExpandHome(c.LedgerDir); err != nil {
		return err
	}
	return nil
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to expand %s: %w", path, err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

// Validate checks the settings for values the tool cannot work with.
func (c *Config) Validate() error {
	if c.ProjectsDir == "" {
		return fmt.Errorf("projects_dir must not be empty")
	}
	if c.MaxAttempts < 0 {
		return fmt.Errorf("max_attempts must not be negative, got %d", c.MaxAttempts)
	}
	if err := model.ValidateRequests(c.Services); err != nil {
		return fmt.Errorf("services: %w", err)
	}
	if c.Runtime.Command == "" {
		return fmt.Errorf("runtime.command must not be empty")
	}
	switch c.Runtime.Mode {
	case RuntimeModeSDK, RuntimeModeCLI:
	default:
		return fmt.Errorf("invalid runtime.mode %q (valid: %s, %s)", c.Runtime.Mode, RuntimeModeSDK, RuntimeModeCLI)
	}
	return nil
}
