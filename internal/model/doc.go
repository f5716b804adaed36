// Package model defines the domain types shared by the devstack packages.
//
// It holds the port subsystem's value types (ProjectID, ServiceRequest,
// ServicePortMap, LedgerEntry, PortCandidate), the tri-state probe
// Verdict, and the error taxonomy: AllocationError for exhausted port
// searches and CLIError, which carries a process exit code up to the CLI.
//
// The package has no dependencies outside the standard library.
package model
