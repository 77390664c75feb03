package jitter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestBuffer() (*Buffer, *time.Time) {
	config := DefaultConfig()
	config.ClockRate = 1000 // 1ms per timestamp unit, easy test math
	b := NewBuffer(config)
	now := time.Unix(0, 0)
	b.now = func() time.Time { return now }
	return b, &now
}

func TestBufferPlaysBackInOrder(t *testing.T) {
	b, now := newTestBuffer()

	b.Push(0, 0, []byte("a"))
	b.Push(1, 1000, []byte("b"))

	// Advance well past the playout delay for both packets.
	*now = now.Add(5 * time.Second)

	payload, ok := b.Pop()
	require.True(t, ok)
	require.Equal(t, []byte("a"), payload)

	payload, ok = b.Pop()
	require.True(t, ok)
	require.Equal(t, []byte("b"), payload)

	_, ok = b.Pop()
	require.False(t, ok)
}

func TestBufferWithholdsUntilPlayoutTime(t *testing.T) {
	b, _ := newTestBuffer()
	b.Push(0, 0, []byte("a"))

	_, ok := b.Pop()
	require.False(t, ok, "packet should be withheld before its playout time elapses")
}

func TestBufferDropsDuplicates(t *testing.T) {
	b, now := newTestBuffer()
	b.Push(0, 0, []byte("a"))
	b.Push(0, 0, []byte("a-again"))

	require.Equal(t, uint64(1), b.Stats().PacketsDuplicate)

	*now = now.Add(time.Second)
	payload, ok := b.Pop()
	require.True(t, ok)
	require.Equal(t, []byte("a"), payload)
}

func TestBufferCountsUnderrunOnMissingPacket(t *testing.T) {
	b, now := newTestBuffer()
	b.Push(0, 0, []byte("a"))
	b.Push(2, 2000, []byte("c")) // packet 1 never arrives

	*now = now.Add(5 * time.Second)

	payload, ok := b.Pop()
	require.True(t, ok)
	require.Equal(t, []byte("a"), payload)

	// Packet 1 is missing: popNormal should record an underrun and skip it.
	_, ok = b.Pop()
	require.False(t, ok)
	require.Equal(t, uint64(1), b.Stats().Underruns)

	payload, ok = b.Pop()
	require.True(t, ok)
	require.Equal(t, []byte("c"), payload)
}

func TestBufferClear(t *testing.T) {
	b, _ := newTestBuffer()
	b.Push(0, 0, []byte("a"))
	require.Equal(t, 1, b.Stats().BufferSize)

	b.Clear()
	require.Equal(t, 0, b.Stats().BufferSize)
}

func TestUltraLowLatencyReturnsEarliestAvailable(t *testing.T) {
	config := DefaultConfig()
	config.ClockRate = 1000
	config.UltraLowLatency = true
	b := NewBuffer(config)
	now := time.Unix(0, 0)
	b.now = func() time.Time { return now }

	b.Push(5, 0, []byte("first"))
	payload, ok := b.Pop()
	require.True(t, ok)
	require.Equal(t, []byte("first"), payload)
}
