package rtp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// expectedCount reproduces the standard RFC 3550-style "expected packets"
// count: the span between the first and highest extended sequence numbers
// observed, inclusive. Invariant under test (spec.md §8 property 6):
// Received + Lost == expectedCount, for any mix of in-order, loss, reorder,
// duplicate, and wraparound arrivals.
func expectedCount(s *PacketStats, firstExt uint32) uint64 {
	return uint64(s.Extended()-firstExt) + 1
}

func TestPacketStatsInOrder(t *testing.T) {
	s := &PacketStats{}
	for seq := uint16(0); seq < 10; seq++ {
		s.Observe(seq)
	}
	require.EqualValues(t, 10, s.Received)
	require.Zero(t, s.Lost)
	require.Equal(t, expectedCount(s, 0), s.Received+s.Lost)
	rate := s.LossRate()
	require.GreaterOrEqual(t, rate, 0.0)
	require.LessOrEqual(t, rate, 1.0)
}

func TestPacketStatsLossThenReorderRecovers(t *testing.T) {
	s := &PacketStats{}
	s.Observe(0)
	s.Observe(1)
	s.Observe(3) // gap: seq 2 presumed lost
	s.Observe(4)

	require.EqualValues(t, 4, s.Received)
	require.EqualValues(t, 1, s.Lost)
	require.Equal(t, expectedCount(s, 0), s.Received+s.Lost)

	// The "lost" packet arrives late.
	s.Observe(2)
	require.EqualValues(t, 5, s.Received)
	require.EqualValues(t, 0, s.Lost)
	require.EqualValues(t, 1, s.Reordered)
	require.Equal(t, expectedCount(s, 0), s.Received+s.Lost)
}

func TestPacketStatsDuplicateDoesNotCountAsReceived(t *testing.T) {
	s := &PacketStats{}
	s.Observe(0)
	s.Observe(1)
	received := s.Received
	lost := s.Lost

	s.Observe(1) // duplicate
	require.EqualValues(t, 1, s.Duplicate)
	require.Equal(t, received, s.Received, "duplicate must not increment Received")
	require.Equal(t, lost, s.Lost, "duplicate must not change Lost")
	require.Equal(t, expectedCount(s, 0), s.Received+s.Lost)

	rate := s.LossRate()
	require.GreaterOrEqual(t, rate, 0.0)
	require.LessOrEqual(t, rate, 1.0)
}

func TestPacketStatsSequenceWraparound(t *testing.T) {
	s := &PacketStats{}
	const first = uint16(65530)
	seqs := []uint16{65530, 65531, 65532, 65533, 65534, 65535, 0, 1, 2}
	for _, seq := range seqs {
		s.Observe(seq)
	}

	require.EqualValues(t, len(seqs), s.Received)
	require.Zero(t, s.Lost)
	require.Equal(t, expectedCount(s, uint32(first)), s.Received+s.Lost)

	// The cycle counter must have advanced exactly once across the wrap.
	require.EqualValues(t, uint32(1)<<16|2, s.Extended())

	rate := s.LossRate()
	require.GreaterOrEqual(t, rate, 0.0)
	require.LessOrEqual(t, rate, 1.0)
}

func TestPacketStatsLossRateBounds(t *testing.T) {
	s := &PacketStats{}
	s.Observe(0)
	s.Observe(100) // a large gap: almost all "expected" packets are lost
	rate := s.LossRate()
	require.GreaterOrEqual(t, rate, 0.0)
	require.LessOrEqual(t, rate, 1.0)
}
