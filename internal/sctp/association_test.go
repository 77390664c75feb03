package sctp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lanikai/rtcore/internal/rtcerr"
)

// drainPackets pops every queued OutputPacket from a, returning the raw
// wire bytes in order.
func drainPackets(t *testing.T, a *Association) [][]byte {
	t.Helper()
	var out [][]byte
	for {
		o, ok := a.PollOutput()
		if !ok {
			return out
		}
		if o.Kind == OutputPacket {
			out = append(out, o.Packet)
		}
	}
}

func deliver(t *testing.T, a *Association, raw []byte, now time.Time) {
	t.Helper()
	require.NoError(t, a.HandleApplicationData(raw, now))
}

// handshake drives a full client/server INIT..COOKIE-ACK exchange and
// returns both associations Established.
func handshake(t *testing.T) (client, server *Association) {
	t.Helper()
	now := time.Now()
	client = NewAssociation(true)
	server = NewAssociation(false)

	require.NoError(t, client.Start(now))
	initPkts := drainPackets(t, client)
	require.Len(t, initPkts, 1)

	for _, pkt := range initPkts {
		deliver(t, server, pkt, now)
	}
	initAckPkts := drainPackets(t, server)
	require.Len(t, initAckPkts, 1)

	for _, pkt := range initAckPkts {
		deliver(t, client, pkt, now)
	}
	cookieEchoPkts := drainPackets(t, client)
	require.Len(t, cookieEchoPkts, 1)

	for _, pkt := range cookieEchoPkts {
		deliver(t, server, pkt, now)
	}
	cookieAckPkts := drainPackets(t, server)
	require.Len(t, cookieAckPkts, 1)
	require.True(t, server.IsEstablished())

	for _, pkt := range cookieAckPkts {
		deliver(t, client, pkt, now)
	}
	require.True(t, client.IsEstablished())

	return client, server
}

func TestAssociationHandshakeEstablishes(t *testing.T) {
	client, server := handshake(t)
	require.True(t, client.IsEstablished())
	require.True(t, server.IsEstablished())
}

func TestAssociationSendDataBeforeEstablishedFails(t *testing.T) {
	a := NewAssociation(true)
	err := a.SendData(0, PPIDBinary, []byte("x"), false)
	require.Error(t, err)
	require.True(t, rtcerr.Is(err, rtcerr.KindApplication))
}

func TestAssociationDataAndSackRoundTrip(t *testing.T) {
	client, server := handshake(t)
	now := time.Now()

	require.NoError(t, client.SendData(7, PPIDBinary, []byte("payload"), false))
	dataPkts := drainPackets(t, client)
	require.Len(t, dataPkts, 1)

	for _, pkt := range dataPkts {
		deliver(t, server, pkt, now)
	}

	var gotData bool
	var sackPkts [][]byte
	for {
		o, ok := server.PollOutput()
		if !ok {
			break
		}
		switch o.Kind {
		case OutputData:
			gotData = true
			require.Equal(t, []byte("payload"), o.Data)
			require.EqualValues(t, 7, o.StreamID)
		case OutputPacket:
			sackPkts = append(sackPkts, o.Packet)
		}
	}
	require.True(t, gotData)
	require.Len(t, sackPkts, 1)

	for _, pkt := range sackPkts {
		deliver(t, client, pkt, now)
	}
}

func TestAssociationOutOfOrderDataReorders(t *testing.T) {
	client, server := handshake(t)
	now := time.Now()

	require.NoError(t, client.SendData(0, PPIDBinary, []byte("first"), false))
	require.NoError(t, client.SendData(0, PPIDBinary, []byte("second"), false))
	pkts := drainPackets(t, client)
	require.Len(t, pkts, 2)

	// Deliver the second DATA chunk before the first.
	deliver(t, server, pkts[1], now)
	deliver(t, server, pkts[0], now)

	var delivered [][]byte
	for {
		o, ok := server.PollOutput()
		if !ok {
			break
		}
		if o.Kind == OutputData {
			delivered = append(delivered, o.Data)
		}
	}
	require.Equal(t, [][]byte{[]byte("first"), []byte("second")}, delivered)
}

func TestAssociationShutdownClosesBothSides(t *testing.T) {
	client, server := handshake(t)
	now := time.Now()

	require.NoError(t, client.Shutdown(now))
	shutdownPkts := drainPackets(t, client)
	require.Len(t, shutdownPkts, 1)

	for _, pkt := range shutdownPkts {
		deliver(t, server, pkt, now)
	}
	shutdownAckPkts := drainPackets(t, server)
	require.Len(t, shutdownAckPkts, 1)

	for _, pkt := range shutdownAckPkts {
		deliver(t, client, pkt, now)
	}
	completePkts := drainPackets(t, client)
	require.Len(t, completePkts, 1)

	for _, pkt := range completePkts {
		deliver(t, server, pkt, now)
	}
}
