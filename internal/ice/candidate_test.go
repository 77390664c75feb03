package ice

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lanikai/rtcore/internal/sdp"
)

func TestHostCandidatePriorityOrdering(t *testing.T) {
	host := newHostCandidate(1, &net.UDPAddr{IP: net.ParseIP("10.0.0.5"), Port: 5000})
	srflx := newServerReflexiveCandidate(1, &net.UDPAddr{IP: net.ParseIP("203.0.113.1"), Port: 6000}, &net.UDPAddr{IP: net.ParseIP("10.0.0.5"), Port: 5000}, "stun.example.com")
	relay := newRelayCandidate(1, &net.UDPAddr{IP: net.ParseIP("198.51.100.1"), Port: 7000}, "turn.example.com")

	require.Greater(t, host.Priority, srflx.Priority)
	require.Greater(t, srflx.Priority, relay.Priority)
}

func TestSDPLineRoundTrip(t *testing.T) {
	c := newHostCandidate(1, &net.UDPAddr{IP: net.ParseIP("10.0.0.5"), Port: 5000})
	line := c.SDPLine()

	got, err := FromSDPLine(line)
	require.NoError(t, err)
	require.Equal(t, c, got)
}

func TestFromSDPLineRejectsUnknownType(t *testing.T) {
	line := newHostCandidate(1, &net.UDPAddr{IP: net.ParseIP("10.0.0.5"), Port: 5000}).SDPLine()
	line.Type = "bogus"
	_, err := FromSDPLine(line)
	require.Error(t, err)
}

func TestFromSDPLineRejectsMissingAddress(t *testing.T) {
	_, err := FromSDPLine(sdp.CandidateLine{Type: "host", Port: 5000})
	require.Error(t, err)
}

func TestPairPriorityTieBreakDependsOnOrder(t *testing.T) {
	a := PairPriority(10, 20)
	b := PairPriority(20, 10)
	require.NotEqual(t, a, b, "tie-break bit differs when operand order flips")
}

func TestPairPriorityFormula(t *testing.T) {
	got := PairPriority(5, 3)
	want := uint64(3)<<32 + uint64(5)<<1 + 1
	require.Equal(t, want, got)
}
