package filetransfer

import (
	"crypto/rand"
	"os"
	"testing"

	"github.com/lanikai/rtcore/internal/datachannel"
	"github.com/lanikai/rtcore/internal/events"
	"github.com/stretchr/testify/require"
)

// linkedManagers wires two filetransfer.Managers over two datachannel
// Managers exchanging messages synchronously in place of a real SCTP
// association, mirroring the test harness in internal/datachannel.
func linkedManagers(t *testing.T, dir string) (client, server *Manager) {
	t.Helper()
	var dcClient, dcServer *datachannel.Manager
	var ftClient, ftServer *Manager

	dcClient = datachannel.NewManager(true, func(streamID uint16, ppid uint32, payload []byte, unordered bool) error {
		ev, ok := dcServer.HandleMessage(streamID, ppid, payload)
		if ok {
			routeEvent(ftServer, ev)
		}
		return nil
	})
	dcServer = datachannel.NewManager(false, func(streamID uint16, ppid uint32, payload []byte, unordered bool) error {
		ev, ok := dcClient.HandleMessage(streamID, ppid, payload)
		if ok {
			routeEvent(ftClient, ev)
		}
		return nil
	})

	ftClient = NewManager(dcClient, dir, nil)
	ftServer = NewManager(dcServer, dir, nil)
	return ftClient, ftServer
}

func routeEvent(m *Manager, ev datachannel.Event) {
	if ev.Opened {
		m.OnChannelOpened(ev.Channel)
		return
	}
	if ev.Message != nil {
		m.HandleMessage(ev.Message)
	}
}

func TestFileTransferRoundTrip(t *testing.T) {
	dir := t.TempDir()
	client, server := linkedManagers(t, dir)

	data := make([]byte, 1<<20) // 1 MiB, per spec.md S4
	_, err := rand.Read(data)
	require.NoError(t, err)

	var completed bool
	server2 := server
	_ = server2
	server.onEvent = func(typ events.Type, ev events.TransferEvent) {
		if typ == events.TransferCompleted {
			completed = true
		}
	}

	id, err := client.OfferFile("picture.bin", "application/octet-stream", data)
	require.NoError(t, err)

	_, pending := server.incoming[id]
	require.True(t, pending)

	require.NoError(t, server.AcceptTransfer(id))
	require.True(t, completed)

	written, err := os.ReadFile(dir + "/picture.bin")
	require.NoError(t, err)
	require.Equal(t, data, written)

	_, stillOutgoing := client.outgoing[id]
	require.False(t, stillOutgoing)
}

func TestFileTransferChecksumMismatch(t *testing.T) {
	dir := t.TempDir()
	client, server := linkedManagers(t, dir)

	var failReason string
	server.onEvent = func(typ events.Type, ev events.TransferEvent) {
		if typ == events.TransferFailed {
			failReason = ev.Reason
		}
	}

	id, err := client.OfferFile("f.bin", "", []byte("hello world"))
	require.NoError(t, err)
	require.NoError(t, server.AcceptTransfer(id))

	// Tamper with the reassembled data after transfer but before Complete
	// is re-processed is awkward to simulate through the wire path, so
	// instead exercise handleComplete's checksum check directly.
	server.mu.Lock()
	server.incoming[id] = NewIncomingTransfer(id, "f.bin", "", 5)
	_ = server.incoming[id].ReceiveChunk(0, []byte("wrong"))
	server.mu.Unlock()
	server.handleComplete(Message{Type: msgTypeComplete, ID: id, Checksum: 0xdeadbeef})

	require.Equal(t, "checksum mismatch", failReason)
}

func TestFileTransferCancelFreesState(t *testing.T) {
	dir := t.TempDir()
	client, server := linkedManagers(t, dir)

	id, err := client.OfferFile("f.bin", "", []byte("data"))
	require.NoError(t, err)
	require.Contains(t, client.outgoing, id)
	require.Contains(t, server.incoming, id)

	require.NoError(t, client.CancelTransfer(id, "user cancelled"))

	require.NotContains(t, client.outgoing, id)
	require.NotContains(t, server.incoming, id, "Cancel must free state on both sides")
}

func TestRejectClearsOutgoingState(t *testing.T) {
	dir := t.TempDir()
	client, server := linkedManagers(t, dir)

	var failed bool
	client.onEvent = func(typ events.Type, ev events.TransferEvent) {
		if typ == events.TransferFailed {
			failed = true
		}
	}

	id, err := client.OfferFile("f.bin", "", []byte("data"))
	require.NoError(t, err)
	require.NoError(t, server.RejectTransfer(id, "no thanks"))

	require.True(t, failed)
	require.NotContains(t, client.outgoing, id)
}

func TestAdaptChunkSizeGrowsAndShrinks(t *testing.T) {
	tr := NewOutgoingTransfer(1, "f", "", make([]byte, 1))
	require.Equal(t, initialChunkSize, tr.chunkSize)

	for i := 0; i < 10; i++ {
		tr.AdaptChunkSize(true)
	}
	// 1024 * 3/2 = 1536 exceeds the MTU-safe cap, so growth stops at 1200.
	require.Equal(t, maxChunkSize, tr.chunkSize)

	tr.AdaptChunkSize(false)
	require.Equal(t, maxChunkSize/2, tr.chunkSize)
}
