package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shinji-kodama/devstack/internal/ledger"
	"github.com/shinji-kodama/devstack/internal/model"
	"github.com/shinji-kodama/devstack/internal/port"
	"github.com/shinji-kodama/devstack/internal/registry"
)

// NewPortsCommand creates the "ports" command group.
func NewPortsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ports",
		Short: "Allocate and inspect project ports",
		Long: `Allocate host ports for a project's services, inspect the port ledger
and clean up records of projects that no longer exist.`,
	}

	cmd.AddCommand(newPortsAllocateCommand())
	cmd.AddCommand(newPortsShowCommand())
	cmd.AddCommand(newPortsCheckCommand())
	cmd.AddCommand(newPortsCleanupCommand())
	cmd.AddCommand(newPortsStatsCommand())

	return cmd
}

type allocateFlags struct {
	services []string
}

func newPortsAllocateCommand() *cobra.Command {
	flags := &allocateFlags{}

	cmd := &cobra.Command{
		Use:   "allocate <project>",
		Short: "Allocate ports for a project",
		Long: `Allocate one host port per service for a project.

Ports recorded for the project by an earlier run are reused when every one
of them is still free. Otherwise each service searches upward from its
preferred port and the new set is recorded.

Examples:
  devstack ports allocate shop
  devstack ports allocate shop --service WordPress=8080 --service MySQL=3306`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPortsAllocate(cmd.Context(), args[0], flags)
		},
	}

	cmd.Flags().StringArrayVar(&flags.services, "service", nil,
		"Service to allocate as Name=preferredPort (repeatable, default: configured services)")

	return cmd
}

func runPortsAllocate(ctx context.Context, id string, flags *allocateFlags) error {
	env, err := loadEnv(ctx)
	if err != nil {
		return err
	}
	defer env.close()

	if err := model.ValidateProjectID(model.ProjectID(id)); err != nil {
		return model.WrapCLIError(model.ExitGeneralError, fmt.Sprintf("invalid project name %q", id), err)
	}

	requests := env.cfg.Services
	if len(flags.services) > 0 {
		if requests, err = ParseServiceFlags(flags.services); err != nil {
			return model.WrapCLIError(model.ExitGeneralError, "invalid --service value", err)
		}
	}

	alloc, err := env.allocator().Allocate(ctx, model.ProjectID(id), requests)
	if err != nil {
		return err
	}
	if alloc.PersistErr != nil {
		logger.Warn("ports were not recorded and may change on the next run", zap.Error(alloc.PersistErr))
	}

	return printAllocation(id, alloc)
}

type allocationJSON struct {
	Project   string                         `json:"project"`
	Ports     model.ServicePortMap           `json:"ports"`
	Reused    bool                           `json:"reused"`
	Persisted bool                           `json:"persisted"`
	Search    map[string]model.PortCandidate `json:"search,omitempty"`
}

func printAllocation(id string, alloc *port.Allocation) error {
	if IsJSONOutput() {
		return printJSON(allocationJSON{
			Project:   id,
			Ports:     alloc.Ports,
			Reused:    alloc.Reused,
			Persisted: alloc.PersistErr == nil,
			Search:    alloc.Candidates,
		})
	}

	source := "allocated"
	if alloc.Reused {
		source = "reused"
	}
	fmt.Printf("Ports for %s (%s):\n", bold(id), source)
	fmt.Printf("  %-14s %-6s %s\n", "SERVICE", "PORT", "ATTEMPTS")
	for _, name := range alloc.Ports.Services() {
		attempts := "-"
		if c, ok := alloc.Candidates[name]; ok {
			attempts = strconv.Itoa(c.Attempts)
		}
		fmt.Printf("  %-14s %-6d %s\n", name, alloc.Ports[name], attempts)
	}
	return nil
}

func newPortsShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <project>",
		Short: "Show the recorded ports of a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPortsShow(cmd.Context(), args[0])
		},
	}
}

func runPortsShow(ctx context.Context, id string) error {
	env, err := loadEnv(ctx)
	if err != nil {
		return err
	}
	defer env.close()

	entry, err := env.ledger.Entry(model.ProjectID(id))
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return model.WrapCLIError(model.ExitProjectNotFound, fmt.Sprintf("no ports recorded for %q", id), err)
		}
		return model.WrapCLIError(model.ExitLedgerError, "failed to read ledger entry", err)
	}

	if IsJSONOutput() {
		return printJSON(entry)
	}

	fmt.Printf("Project:  %s\n", bold(entry.ProjectName))
	fmt.Printf("Created:  %s\n", entry.CreatedDate.Format(model.TimestampLayout))
	fmt.Printf("LastUsed: %s\n", entry.LastUsed.Format(model.TimestampLayout))
	fmt.Printf("Ports:    %s\n", FormatPorts(entry.Ports))
	return nil
}

type checkFlags struct {
	project string
}

func newPortsCheckCommand() *cobra.Command {
	flags := &checkFlags{}

	cmd := &cobra.Command{
		Use:   "check <port>",
		Short: "Show what every probe signal says about a port",
		Long: `Probe a port with every signal (listener table, running containers and a
test bind) and print each verdict. With --project, containers belonging to
that project do not count against the port.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPortsCheck(cmd.Context(), args[0], flags)
		},
	}

	cmd.Flags().StringVar(&flags.project, "project", "", "Project whose own containers are ignored")

	return cmd
}

func runPortsCheck(ctx context.Context, rawPort string, flags *checkFlags) error {
	p, err := strconv.Atoi(rawPort)
	if err != nil || p < model.MinPort || p > model.MaxPort {
		return model.NewCLIError(model.ExitGeneralError,
			fmt.Sprintf("invalid port %q: must be a number between %d and %d", rawPort, model.MinPort, model.MaxPort))
	}

	env, err := loadEnv(ctx)
	if err != nil {
		return err
	}
	defer env.close()

	report := env.prober.Diagnose(ctx, p, model.ProjectID(flags.project))

	if IsJSONOutput() {
		return printJSON(report)
	}

	fmt.Printf("Port %d: %s\n", report.Port, FormatVerdict(report.Verdict))
	fmt.Printf("  %-10s %s", "listener", FormatVerdict(report.Listener))
	if report.ListenerMatch != "" {
		fmt.Printf(" (%s)", report.ListenerMatch)
	}
	fmt.Println()
	fmt.Printf("  %-10s %s", "container", FormatVerdict(report.Container))
	if report.ContainerName != "" {
		fmt.Printf(" (%s)", report.ContainerName)
	}
	fmt.Println()
	fmt.Printf("  %-10s %s\n", "bind", FormatVerdict(report.Bind))
	return nil
}

type cleanupFlags struct {
	force bool
}

func newPortsCleanupCommand() *cobra.Command {
	flags := &cleanupFlags{}

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove ledger records of deleted projects",
		Long: `List ledger records whose project directory no longer exists. Nothing is
deleted unless --force is given.

Examples:
  devstack ports cleanup
  devstack ports cleanup --force`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPortsCleanup(cmd.Context(), flags)
		},
	}

	cmd.Flags().BoolVar(&flags.force, "force", false, "Delete the orphaned records")

	return cmd
}

type cleanupJSON struct {
	Orphans []model.ProjectID       `json:"orphans"`
	DryRun  bool                    `json:"dryRun"`
	Deleted []model.ProjectID       `json:"deleted"`
	Failed  []registry.PurgeFailure `json:"failed"`
}

func runPortsCleanup(ctx context.Context, flags *cleanupFlags) error {
	env, err := loadEnv(ctx)
	if err != nil {
		return err
	}
	defer env.close()

	m := env.maintainer()
	orphans := m.FindOrphans(nil)

	result := cleanupJSON{
		Orphans: make([]model.ProjectID, 0, len(orphans)),
		DryRun:  !flags.force,
		Deleted: []model.ProjectID{},
		Failed:  []registry.PurgeFailure{},
	}
	for _, o := range orphans {
		result.Orphans = append(result.Orphans, o.ProjectName)
	}

	if flags.force && len(orphans) > 0 {
		report := m.PurgeOrphans(orphans)
		if report.Deleted != nil {
			result.Deleted = report.Deleted
		}
		if report.Failures != nil {
			result.Failed = report.Failures
		}
	}

	if IsJSONOutput() {
		if err := printJSON(result); err != nil {
			return err
		}
	} else {
		printCleanupText(result, orphans)
	}

	if len(result.Failed) > 0 {
		return model.NewCLIError(model.ExitLedgerError,
			fmt.Sprintf("%d orphaned record(s) could not be deleted", len(result.Failed)))
	}
	return nil
}

func printCleanupText(result cleanupJSON, orphans []model.LedgerEntry) {
	if len(orphans) == 0 {
		fmt.Println("No orphaned ledger records.")
		return
	}

	for _, o := range orphans {
		fmt.Printf("  %-24s %s\n", o.ProjectName, FormatPorts(o.Ports))
	}
	if result.DryRun {
		fmt.Printf("%s %d orphaned record(s). Run with --force to delete them.\n",
			yellow("Found"), len(orphans))
		return
	}
	fmt.Printf("%s %d record(s)", green("Deleted"), len(result.Deleted))
	if len(result.Failed) > 0 {
		fmt.Printf(", %s %d", red("skipped"), len(result.Failed))
	}
	fmt.Println(".")
	for _, f := range result.Failed {
		fmt.Printf("  %s: %s\n", f.Project, f.Message)
	}
}

func newPortsStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarize the port ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPortsStats(cmd.Context())
		},
	}
}

func runPortsStats(ctx context.Context) error {
	env, err := loadEnv(ctx)
	if err != nil {
		return err
	}
	defer env.close()

	stats := env.maintainer().ComputeStatistics()

	if IsJSONOutput() {
		return printJSON(stats)
	}

	fmt.Printf("%-18s %d\n", "Projects:", stats.TotalProjects)
	fmt.Printf("%-18s %d\n", "Active:", stats.ActiveProjects)
	fmt.Printf("%-18s %d\n", "Unique ports:", stats.UniquePortsUsed)
	if stats.Unreadable > 0 {
		fmt.Printf("%-18s %s\n", "Unreadable:", yellow(strconv.Itoa(stats.Unreadable)))
	}
	if len(stats.Collisions) == 0 {
		fmt.Printf("%-18s %s\n", "Collisions:", green("none"))
		return nil
	}
	fmt.Printf("%-18s %s\n", "Collisions:", red(strconv.Itoa(len(stats.Collisions))))
	for _, c := range stats.Collisions {
		fmt.Printf("  %-6d %s\n", c.Port, FormatProjects(c.Projects))
	}
	return nil
}
