package mux

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMatchFuncClassification(t *testing.T) {
	require.True(t, MatchDTLS([]byte{20}))
	require.True(t, MatchDTLS([]byte{63}))
	require.False(t, MatchDTLS([]byte{19}))
	require.False(t, MatchDTLS([]byte{64}))

	require.True(t, MatchRTP([]byte{128, 96}))
	require.False(t, MatchRTP([]byte{128, 200}))

	require.True(t, MatchRTCP([]byte{128, 200}))
	require.True(t, MatchRTCP([]byte{191, 204}))
	require.False(t, MatchRTCP([]byte{128, 96}))

	require.True(t, MatchSCTP([]byte{64}))
	require.True(t, MatchSCTP([]byte{127}))
	require.False(t, MatchSCTP([]byte{20}))
}

func udpPipe(t *testing.T) (server, client *net.UDPConn) {
	t.Helper()
	server, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	client, err = net.DialUDP("udp", nil, server.LocalAddr().(*net.UDPAddr))
	require.NoError(t, err)
	return server, client
}

func TestMuxDispatchesByMatchFunc(t *testing.T) {
	serverConn, clientConn := udpPipe(t)
	t.Cleanup(func() { clientConn.Close() })

	m := NewMux(serverConn, 1500)
	t.Cleanup(func() { m.Close() })

	dtlsEndpoint := m.NewEndpoint(MatchDTLS)
	rtpEndpoint := m.NewEndpoint(MatchRTP)

	_, err := clientConn.Write([]byte{20, 1, 2, 3})
	require.NoError(t, err)
	require.Equal(t, []byte{20, 1, 2, 3}, readWithTimeout(t, dtlsEndpoint))

	_, err = clientConn.Write([]byte{128, 96, 0, 0})
	require.NoError(t, err)
	require.Equal(t, []byte{128, 96, 0, 0}, readWithTimeout(t, rtpEndpoint))
}

// readWithTimeout guards against Endpoint.Read blocking forever (its
// SetReadDeadline is a no-op stub) if a test packet is never classified.
func readWithTimeout(t *testing.T, e *Endpoint) []byte {
	t.Helper()
	type result struct {
		n   int
		buf []byte
		err error
	}
	ch := make(chan result, 1)
	go func() {
		buf := make([]byte, 1500)
		n, err := e.Read(buf)
		ch <- result{n, buf, err}
	}()
	select {
	case r := <-ch:
		require.NoError(t, r.err)
		return r.buf[:r.n]
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for endpoint to receive packet")
		return nil
	}
}
