package media

import "sync"

// AudioPrebuffer smooths jitter-buffer output into a steady stream of
// fixed-size frames for a playback device, resampling between the decoded
// source rate and the device's native rate. Grounded in
// original_source/webrtc/media/src/audio/playback.rs: it accumulates
// incoming samples in a queue, holds playback until prebufferMs worth of
// audio has accumulated, linearly interpolates between the source and
// device sample rates, and falls back to silence (re-entering the
// prebuffering state after repeated underruns) rather than blocking.
type AudioPrebuffer struct {
	mu sync.Mutex

	sourceRate, deviceRate int
	channels               int

	queue []float32

	prebufferFrames int
	prebuffering    bool

	fractionalPos float32
	underruns     int
}

// underrunResetThreshold mirrors playback.rs: ten consecutive underruns
// before falling back to re-prebuffering.
const underrunResetThreshold = 10

// NewAudioPrebuffer constructs a prebuffer converting from sourceRate to
// deviceRate, holding prebufferMs worth of audio before playback begins.
func NewAudioPrebuffer(sourceRate, deviceRate, channels int, prebufferMs int) *AudioPrebuffer {
	frames := sourceRate * prebufferMs / 1000
	return &AudioPrebuffer{
		sourceRate:      sourceRate,
		deviceRate:      deviceRate,
		channels:        channels,
		prebufferFrames: frames,
		prebuffering:    true,
	}
}

// Push appends decoded interleaved samples (one float32 per channel per
// frame) arriving from the decoder.
func (p *AudioPrebuffer) Push(samples []float32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queue = append(p.queue, samples...)
}

// QueuedFrames reports how many source-rate frames are currently buffered.
func (p *AudioPrebuffer) QueuedFrames() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue) / p.channels
}

// Pull produces n device-rate frames (n*channels samples) for the playback
// callback, resampling via linear interpolation. While prebuffering, or
// immediately after resetting due to repeated underruns, it returns
// silence. Grounded in playback.rs's `is_prebuffering`/`underrun_count`
// state machine, translated from a push-callback style into a pull style
// suited to a Go reader loop.
func (p *AudioPrebuffer) Pull(n int) []float32 {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]float32, n*p.channels)

	if p.prebuffering {
		if len(p.queue)/p.channels >= p.prebufferFrames {
			p.prebuffering = false
		} else {
			return out // silence
		}
	}

	ratio := float32(p.sourceRate) / float32(p.deviceRate)

	for frame := 0; frame < n; frame++ {
		idx := int(p.fractionalPos)
		frac := p.fractionalPos - float32(idx)

		if (idx+1)*p.channels+p.channels > len(p.queue) {
			p.underruns++
			if p.underruns > underrunResetThreshold {
				p.prebuffering = true
				p.underruns = 0
				p.fractionalPos = 0
				p.queue = nil
			}
			// Remainder of this pull is silence; out is already zeroed.
			break
		}
		p.underruns = 0

		for c := 0; c < p.channels; c++ {
			a := p.queue[idx*p.channels+c]
			b := p.queue[(idx+1)*p.channels+c]
			out[frame*p.channels+c] = a + (b-a)*frac
		}

		p.fractionalPos += ratio
	}

	// Drop samples that have been fully consumed (fractionalPos advanced
	// past them), keeping the queue bounded.
	consumed := int(p.fractionalPos)
	if consumed > 0 && consumed*p.channels <= len(p.queue) {
		p.queue = p.queue[consumed*p.channels:]
		p.fractionalPos -= float32(consumed)
	}

	return out
}
