package ice

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestAgent(t *testing.T) *Agent {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return NewAgent(conn)
}

func TestBestPairPicksHighestPriority(t *testing.T) {
	a := newTestAgent(t)
	a.local = []Candidate{
		newHostCandidate(1, &net.UDPAddr{IP: net.ParseIP("10.0.0.5"), Port: 5000}),
	}
	lowRemote, _ := FromSDPLine(newRelayCandidate(1, &net.UDPAddr{IP: net.ParseIP("198.51.100.1"), Port: 7000}, "turn.example.com").SDPLine())
	highRemote, _ := FromSDPLine(newHostCandidate(1, &net.UDPAddr{IP: net.ParseIP("10.0.0.9"), Port: 6000}).SDPLine())
	a.remote = []Candidate{lowRemote, highRemote}

	local, remote, priority, ok := a.BestPair()
	require.True(t, ok)
	require.Equal(t, a.local[0], local)
	require.Equal(t, highRemote, remote)
	require.Equal(t, PairPriority(a.local[0].Priority, highRemote.Priority), priority)
}

func TestBestPairFalseWithoutCandidates(t *testing.T) {
	a := newTestAgent(t)
	_, _, _, ok := a.BestPair()
	require.False(t, ok)
}

func TestRemoteAddress(t *testing.T) {
	a := newTestAgent(t)
	_, ok := a.RemoteAddress()
	require.False(t, ok)

	a.AddRemoteCandidate(newHostCandidate(1, &net.UDPAddr{IP: net.ParseIP("10.0.0.5"), Port: 5000}))
	addr, ok := a.RemoteAddress()
	require.True(t, ok)
	require.Equal(t, "10.0.0.5", addr.IP.String())
	require.Equal(t, 5000, addr.Port)
}

func TestGatherHostCandidatesFindsLocalInterface(t *testing.T) {
	a := newTestAgent(t)
	err := a.GatherHostCandidates()
	// A sandboxed test environment may have no non-loopback IPv4 interface;
	// only assert that a found candidate looks sane.
	if err != nil {
		t.Skipf("no usable host interface in this environment: %v", err)
	}
	require.NotEmpty(t, a.LocalCandidates())
	require.Equal(t, TypeHost, a.LocalCandidates()[0].Type)
}
