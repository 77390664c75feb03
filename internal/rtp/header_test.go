package rtp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPacketMarshalRoundTrip(t *testing.T) {
	pkt := &Packet{
		Header: Header{
			Marker:         true,
			PayloadType:    PayloadTypeH264,
			SequenceNumber: 4242,
			Timestamp:      900000,
			SSRC:           0xdeadbeef,
		},
		Payload: []byte{1, 2, 3, 4, 5},
	}

	buf := pkt.Marshal()
	require.Len(t, buf, HeaderSize+len(pkt.Payload))

	got, err := Unmarshal(buf)
	require.NoError(t, err)
	require.Equal(t, pkt.Header, got.Header)
	require.Equal(t, pkt.Payload, got.Payload)
}

func TestUnmarshalRejectsBadVersion(t *testing.T) {
	buf := make([]byte, HeaderSize)
	buf[0] = 0x40 // version 1, not 2
	_, err := Unmarshal(buf)
	require.Error(t, err)
}

func TestUnmarshalRejectsShortPacket(t *testing.T) {
	_, err := Unmarshal([]byte{0, 1, 2})
	require.Error(t, err)
}
