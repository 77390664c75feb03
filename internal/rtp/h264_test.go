package rtp

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

// buildLargeNALU returns a NAL unit (1-byte header + payload) whose total
// length is well over maxPayload, so Packetize must fragment it.
func buildLargeNALU(t *testing.T, naluType byte, size int) []byte {
	t.Helper()
	nalu := make([]byte, size)
	nalu[0] = 0x60 | (naluType & 0x1f) // nal_ref_idc=3, forbidden_zero_bit=0
	for i := 1; i < size; i++ {
		nalu[i] = byte(i)
	}
	return nalu
}

func TestH264PacketizeFUAFragmentsConcatenateToOriginal(t *testing.T) {
	const maxPayload = 64
	nalu := buildLargeNALU(t, 5, 500) // type 5 = IDR slice, 500 > 64

	p := &H264Packetizer{SSRC: 0xabcdef01, PayloadType: PayloadTypeH264, MaxPayloadSize: maxPayload}
	pkts := p.Packetize(nalu, 90000, true)
	require.True(t, len(pkts) > 1, "expected fragmentation into multiple FU-A packets")

	for i, pkt := range pkts {
		require.Equal(t, byte(28), pkt.Payload[0]&0x1f, "fragment %d must carry FU-A type", i)
	}

	first := pkts[0].Payload[1]
	require.NotZero(t, first&fuStartBit, "first fragment must set the Start bit")
	require.Zero(t, first&fuEndBit, "first fragment must not set the End bit")

	for i, pkt := range pkts[1 : len(pkts)-1] {
		h := pkt.Payload[1]
		require.Zero(t, h&fuStartBit, "interior fragment %d must not set Start", i+1)
		require.Zero(t, h&fuEndBit, "interior fragment %d must not set End", i+1)
	}

	last := pkts[len(pkts)-1].Payload[1]
	require.Zero(t, last&fuStartBit, "last fragment must not set the Start bit")
	require.NotZero(t, last&fuEndBit, "last fragment must set the End bit")

	d := &H264Depacketizer{}
	var reassembled []byte
	for i, pkt := range pkts {
		out, dropped, err := d.Push(uint16(i), pkt.Payload)
		require.NoError(t, err)
		require.False(t, dropped)
		if out != nil {
			reassembled = out
		}
	}
	require.True(t, bytes.Equal(nalu, reassembled), "reassembled NAL must equal the original")
}

func TestH264PacketizeSmallNALUIsSinglePacket(t *testing.T) {
	nalu := buildLargeNALU(t, 7, 20) // SPS, fits well under MaxPayloadSize
	p := &H264Packetizer{SSRC: 1, PayloadType: PayloadTypeH264, MaxPayloadSize: 1200}
	pkts := p.Packetize(nalu, 0, false)
	require.Len(t, pkts, 1)
	require.Equal(t, nalu, pkts[0].Payload)
}

func TestH264DepacketizerDetectsLostFragment(t *testing.T) {
	nalu := buildLargeNALU(t, 5, 300)
	p := &H264Packetizer{SSRC: 1, PayloadType: PayloadTypeH264, MaxPayloadSize: 64}
	pkts := p.Packetize(nalu, 0, true)
	require.True(t, len(pkts) >= 3)

	d := &H264Depacketizer{}
	_, dropped, err := d.Push(0, pkts[0].Payload)
	require.NoError(t, err)
	require.False(t, dropped)

	// Skip sequence 1: feed fragment 2 directly, breaking seq contiguity.
	_, dropped, err = d.Push(2, pkts[2].Payload)
	require.Error(t, err)
	require.True(t, dropped)
}
