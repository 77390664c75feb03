package srtp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReplayWindowAcceptsInOrder(t *testing.T) {
	rw := &replayWindow{}
	for seq := uint16(0); seq < 10; seq++ {
		require.True(t, rw.accept(seq))
	}
}

func TestReplayWindowRejectsDuplicate(t *testing.T) {
	rw := &replayWindow{}
	require.True(t, rw.accept(5))
	require.False(t, rw.accept(5))
}

func TestReplayWindowAcceptsOutOfOrderWithinWindow(t *testing.T) {
	rw := &replayWindow{}
	require.True(t, rw.accept(10))
	require.True(t, rw.accept(9))
	require.False(t, rw.accept(9))
	require.True(t, rw.accept(11))
}

func TestReplayWindowRejectsTooFarBehind(t *testing.T) {
	rw := &replayWindow{}
	require.True(t, rw.accept(1000))
	require.False(t, rw.accept(1000-replayWindowSize))
}

func TestReplayWindowHandlesWraparound(t *testing.T) {
	rw := &replayWindow{}
	require.True(t, rw.accept(65534))
	require.True(t, rw.accept(65535))
	require.True(t, rw.accept(0))
	require.True(t, rw.accept(1))
	require.False(t, rw.accept(65535))
}
