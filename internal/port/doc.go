// Package port decides which host TCP ports a devstack project may use.
//
// A Prober combines three signals to call a port free or busy: the host's
// listener table (ss, netstat or lsof output matched against
// ListenerPatterns), the running containers of the container runtime
// (ignoring the project's own), and a bind-and-release attempt through a
// Scanner. Only the bind attempt is authoritative; the other two may
// short-circuit it when they find the port busy, and a signal that cannot
// be read is treated as inconclusive rather than as an error.
//
// An Allocator uses a PortChecker (normally the Prober) and a PortStore
// (normally the ledger) to hand out one port per requested service:
//
//	stored map, all ports still free   -> reused unchanged
//	otherwise, per service in order    -> preferred, preferred+1, ...
//
// The walk gives up after DefaultMaxAttempts increments and fails the whole
// allocation with a *model.AllocationError.
package port
