package port

import (
	"fmt"
	"net"

	"github.com/shinji-kodama/devstack/internal/model"
)

// Binder performs the authoritative bind-and-release check on a port.
type Binder interface {
	Bind(port int) model.Verdict
}

// Scanner checks whether specific ports are available on the host machine
// by asking the operating system's network stack directly.
//
// A bind attempt is the only signal the Prober treats as authoritative:
// the listener table and container runtime checks can miss sockets (other
// network namespaces, permission-filtered tool output), but the kernel
// refuses a conflicting bind regardless of who holds the port.
type Scanner struct {
	// Protocol is "tcp" (default) or "udp".
	Protocol string
}

// NewScanner creates a TCP Scanner.
func NewScanner() *Scanner {
	return &Scanner{Protocol: "tcp"}
}

// Bind tries to open a listener on the wildcard address and the given
// port, then closes it immediately.
//
// We bind to all interfaces (":port" rather than "127.0.0.1:port") because
// Docker publishes ports on 0.0.0.0, so a narrower bind could succeed
// while a published container port still blocks the stack.
//
// Returns VerdictFree if the bind succeeded and VerdictBusy otherwise,
// including for out-of-range ports and unknown protocols.
func (s *Scanner) Bind(port int) model.Verdict {
	if port < model.MinPort || port > model.MaxPort {
		return model.VerdictBusy
	}
	addr := fmt.Sprintf(":%d", port)

	switch s.protocol() {
	case "tcp":
		listener, err := net.Listen("tcp", addr)
		if err != nil {
			return model.VerdictBusy
		}
		_ = listener.Close()
		return model.VerdictFree

	case "udp":
		conn, err := net.ListenPacket("udp", addr)
		if err != nil {
			return model.VerdictBusy
		}
		_ = conn.Close()
		return model.VerdictFree

	default:
		// Unknown protocol, treat as unavailable.
		return model.VerdictBusy
	}
}

func (s *Scanner) protocol() string {
	if s.Protocol == "" {
		return "tcp"
	}
	return s.Protocol
}
