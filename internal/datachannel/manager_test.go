package datachannel

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// pipe wires two Managers together synchronously, standing in for the SCTP
// association the real orchestrator drives.
func pipe(t *testing.T) (client, server *Manager) {
	t.Helper()
	var s *Manager
	var c *Manager

	c = NewManager(true, func(streamID uint16, ppid uint32, payload []byte, unordered bool) error {
		ev, ok := s.HandleMessage(streamID, ppid, payload)
		_ = ev
		_ = ok
		return nil
	})
	s = NewManager(false, func(streamID uint16, ppid uint32, payload []byte, unordered bool) error {
		ev, ok := c.HandleMessage(streamID, ppid, payload)
		_ = ev
		_ = ok
		return nil
	})
	return c, s
}

func TestOpenChannelHandshake(t *testing.T) {
	client, server := pipe(t)

	ch, err := client.OpenChannel(FileTransferLabel, "")
	require.NoError(t, err)
	require.Equal(t, uint16(0), ch.StreamID, "client/offerer allocates even stream ids")
	require.Equal(t, StateOpen, ch.State, "ACK arrives synchronously over the test pipe")

	serverCh, ok := server.FindOpenChannel(FileTransferLabel)
	require.True(t, ok)
	require.Equal(t, uint16(0), serverCh.StreamID)
}

func TestStreamIDParity(t *testing.T) {
	client, server := pipe(t)

	ch1, err := client.OpenChannel("a", "")
	require.NoError(t, err)
	ch2, err := client.OpenChannel("b", "")
	require.NoError(t, err)
	require.Equal(t, uint16(0), ch1.StreamID)
	require.Equal(t, uint16(2), ch2.StreamID)

	sch1, err := server.OpenChannel("c", "")
	require.NoError(t, err)
	require.Equal(t, uint16(1), sch1.StreamID, "answerer allocates odd stream ids")
}

func TestServerDeliversUserMessageOnOpenedStream(t *testing.T) {
	client, server := pipe(t)

	ch, err := client.OpenChannel(FileTransferLabel, "")
	require.NoError(t, err)

	var got Event
	var gotOK bool
	server2 := server
	_ = server2
	// The test pipe discards the events HandleMessage returns, so call the
	// server's HandleMessage directly and check the event it delivers.
	ev, ok := server.HandleMessage(ch.StreamID, 51, []byte("hello"))
	got, gotOK = ev, ok
	require.True(t, gotOK)
	require.Equal(t, []byte("hello"), got.Message)
	require.Equal(t, uint32(51), got.PPID)
}

func TestFindOpenChannelIgnoresOtherLabels(t *testing.T) {
	client, _ := pipe(t)
	_, err := client.OpenChannel("control", "")
	require.NoError(t, err)

	_, ok := client.FindOpenChannel(FileTransferLabel)
	require.False(t, ok)
}
