package media

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAudioPrebufferSilenceUntilFilled(t *testing.T) {
	p := NewAudioPrebuffer(48000, 48000, 1, 20) // 20ms -> 960 frames

	out := p.Pull(10)
	for _, s := range out {
		require.Zero(t, s)
	}
}

func TestAudioPrebufferPassthroughAtSameRate(t *testing.T) {
	p := NewAudioPrebuffer(48000, 48000, 1, 1) // 1ms -> 48 frames to fill

	samples := make([]float32, 200)
	for i := range samples {
		samples[i] = float32(i)
	}
	p.Push(samples)

	out := p.Pull(50)
	require.NotZero(t, out[49])
}

func TestAudioPrebufferQueuedFrames(t *testing.T) {
	p := NewAudioPrebuffer(48000, 48000, 2, 10)
	p.Push(make([]float32, 20)) // 10 frames of stereo audio
	require.Equal(t, 10, p.QueuedFrames())
}
