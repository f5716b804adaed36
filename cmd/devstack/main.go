// Package main is the entry point for the devstack CLI.
//
// Build-time variables (version, commit, date) are injected via ldflags
// by GoReleaser during the release process.
package main

import (
	"github.com/shinji-kodama/devstack/internal/cli"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cli.Version = version
	cli.Commit = commit
	cli.Date = date

	rootCmd := cli.NewRootCommand()
	cli.Execute(rootCmd)
}
