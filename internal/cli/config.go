package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/shinji-kodama/devstack/internal/config"
	"github.com/shinji-kodama/devstack/internal/model"
)

// NewConfigCommand creates the "config" command group.
func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the devstack config file",
	}

	cmd.AddCommand(newConfigInitCommand())
	cmd.AddCommand(newConfigShowCommand())

	return cmd
}

type configInitFlags struct {
	force bool
}

func newConfigInitCommand() *cobra.Command {
	flags := &configInitFlags{}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigInit(flags)
		},
	}

	cmd.Flags().BoolVar(&flags.force, "force", false, "Overwrite an existing config file")

	return cmd
}

func runConfigInit(flags *configInitFlags) error {
	path := resolvedConfigPath()
	if path == "" {
		return model.NewCLIError(model.ExitConfigError, "cannot determine config file location; pass --config")
	}

	if _, err := os.Stat(path); err == nil && !flags.force {
		return model.NewCLIError(model.ExitConfigError,
			fmt.Sprintf("config file %s already exists (use --force to overwrite)", path))
	}

	if err := config.DefaultConfig().Save(path); err != nil {
		return model.WrapCLIError(model.ExitConfigError, "failed to write config", err)
	}

	if IsJSONOutput() {
		return printJSON(map[string]string{"path": path})
	}
	fmt.Printf("%s wrote %s\n", green("✓"), path)
	return nil
}

func newConfigShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective config",
		Long: `Print the config after defaults and DEVSTACK_* environment overrides
have been applied.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow()
		},
	}
}

func runConfigShow() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return model.WrapCLIError(model.ExitConfigError, "failed to load config", err)
	}

	if IsJSONOutput() {
		return printJSON(cfg)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	fmt.Printf("# %s\n%s", resolvedConfigPath(), data)
	return nil
}

// resolvedConfigPath is --config, or the default location.
func resolvedConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultPath()
}
