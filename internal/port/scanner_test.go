package port

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinji-kodama/devstack/internal/model"
)

// freeTCPPort asks the OS for an unused port and releases it again.
func freeTCPPort(t *testing.T) int {
	t.Helper()

	listener, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	port := listener.Addr().(*net.TCPAddr).Port
	require.NoError(t, listener.Close())
	return port
}

// holdTCPPort opens a listener on an OS-assigned port for the duration of
// the test and returns the port.
func holdTCPPort(t *testing.T) int {
	t.Helper()

	listener, err := net.Listen("tcp", ":0")
	require.NoError(t, err, "failed to start test listener")
	t.Cleanup(func() { _ = listener.Close() })

	tcpAddr, ok := listener.Addr().(*net.TCPAddr)
	require.True(t, ok)
	return tcpAddr.Port
}

func TestScanner_Bind_FreePort(t *testing.T) {
	scanner := NewScanner()
	port := freeTCPPort(t)

	assert.Equal(t, model.VerdictFree, scanner.Bind(port))
}

// TestScanner_Bind_UsedPort verifies that a port held by another listener
// is reported busy.
func TestScanner_Bind_UsedPort(t *testing.T) {
	scanner := NewScanner()
	port := holdTCPPort(t)

	assert.Equal(t, model.VerdictBusy, scanner.Bind(port),
		"port %d should be in use (we have a listener on it)", port)
}

func TestScanner_Bind_ReleasesSocket(t *testing.T) {
	scanner := NewScanner()
	port := freeTCPPort(t)

	require.Equal(t, model.VerdictFree, scanner.Bind(port))
	// A second bind only succeeds if the first probe closed its listener.
	assert.Equal(t, model.VerdictFree, scanner.Bind(port))
}

func TestScanner_Bind_UDP(t *testing.T) {
	conn, err := net.ListenPacket("udp", ":0")
	require.NoError(t, err, "failed to start test UDP listener")
	defer func() { _ = conn.Close() }()

	udpAddr, ok := conn.LocalAddr().(*net.UDPAddr)
	require.True(t, ok)

	scanner := &Scanner{Protocol: "udp"}
	assert.Equal(t, model.VerdictBusy, scanner.Bind(udpAddr.Port))
}

func TestScanner_Bind_InvalidInput(t *testing.T) {
	assert.Equal(t, model.VerdictBusy, NewScanner().Bind(0))
	assert.Equal(t, model.VerdictBusy, NewScanner().Bind(70000))
	assert.Equal(t, model.VerdictBusy, (&Scanner{Protocol: "sctp"}).Bind(50000),
		"unknown protocol should fail safe")
}
