// Package cli implements the cobra-based CLI commands for devstack.
//
// Each subcommand (ports, up, down, config) is defined in its own file
// within this package. This file defines the root command that serves as
// the parent for all subcommands and handles global flags.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shinji-kodama/devstack/internal/logging"
	"github.com/shinji-kodama/devstack/internal/model"
)

// Global flag variables shared across all subcommands.
var (
	// jsonOutput controls whether command output is formatted as JSON.
	jsonOutput bool

	// verbose lowers the log level to debug.
	verbose bool

	// logJSON switches log lines on stderr to JSON.
	logJSON bool

	// configPath is the --config flag. Empty means config.DefaultPath.
	configPath string

	// noColor disables colored text output.
	noColor bool

	// logger is built in PersistentPreRunE and synced after the command.
	logger = zap.NewNop()
)

// Version, Commit and Date are set at build time via ldflags.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// NewRootCommand creates and configures the root cobra command.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "devstack",
		Short: "Local WordPress stacks with conflict-free host ports",
		Long: `devstack runs WordPress, MySQL and PHPMyAdmin stacks side by side on one
machine. Each project gets its own set of host ports, picked from the
preferred defaults and remembered between runs so a project keeps its URLs.`,

		SilenceUsage:  true,
		SilenceErrors: true,

		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, Date),

		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			logger = logging.New(logging.Options{Verbose: verbose, JSON: logJSON})
			if noColor {
				color.NoColor = true
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = logger.Sync()
		},
	}

	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Write log lines as JSON")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default $DEVSTACK_CONFIG or the user config dir)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	rootCmd.AddCommand(NewPortsCommand())
	rootCmd.AddCommand(NewUpCommand())
	rootCmd.AddCommand(NewDownCommand())
	rootCmd.AddCommand(NewConfigCommand())

	return rootCmd
}

// Execute runs the root command and handles exit codes.
//
// CLIError types carry their own exit codes, and an exhausted port search
// maps to ExitPortAllocationFailed. An interrupt exits with
// ExitUserCancelled. Other errors exit with code 1.
func Execute(rootCmd *cobra.Command) {
	// An interrupt cancels the context so a port search or compose call
	// stops early.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err == nil {
		return
	}

	cliErr := toCLIError(err)
	printError(cliErr.Message, cliErr.Err)
	os.Exit(int(cliErr.Code))
}

// toCLIError finds the exit code for err.
func toCLIError(err error) *model.CLIError {
	var cliErr *model.CLIError
	if errors.As(err, &cliErr) {
		return cliErr
	}
	var allocErr *model.AllocationError
	if errors.As(err, &allocErr) {
		return model.WrapCLIError(model.ExitPortAllocationFailed, "port allocation failed", allocErr)
	}
	if errors.Is(err, context.Canceled) {
		return model.WrapCLIError(model.ExitUserCancelled, "cancelled", err)
	}
	return model.NewCLIError(model.ExitGeneralError, err.Error())
}

// printError outputs an error message in the appropriate format
// (JSON or text) based on the --json global flag. Errors always go to
// stderr; stdout is reserved for command results.
func printError(message string, underlying error) {
	if jsonOutput {
		errObj := map[string]interface{}{
			"error": map[string]interface{}{
				"message": message,
			},
		}
		if underlying != nil {
			if errMap, ok := errObj["error"].(map[string]interface{}); ok {
				errMap["detail"] = underlying.Error()
			}
		}
		data, _ := json.MarshalIndent(errObj, "", "  ")
		fmt.Fprintln(os.Stderr, string(data))
		return
	}

	if underlying != nil {
		fmt.Fprintf(os.Stderr, "%s %s: %v\n", red("Error:"), message, underlying)
	} else {
		fmt.Fprintf(os.Stderr, "%s %s\n", red("Error:"), message)
	}
}

// IsJSONOutput returns whether the --json flag is set.
func IsJSONOutput() bool {
	return jsonOutput
}
