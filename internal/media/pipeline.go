// Receive/decode/playback thread wiring, per spec.md §4.8: a dedicated
// goroutine drains one jitter.Buffer, decodes each payload through a
// Decoder collaborator, and fans the raw frames out to subscribers via a
// Broadcaster. Grounded in the polling idiom of internal/mux.Mux.readLoop
// and internal/jitter.Buffer's own "mutex-guarded struct polled by a
// dedicated goroutine" design.
package media

import (
	"time"

	"github.com/lanikai/rtcore/internal/jitter"
	"github.com/lanikai/rtcore/internal/rtclog"
)

var logger = rtclog.New("media")

// Popper is the subset of jitter.Buffer a Pipeline polls.
type Popper interface {
	Pop() ([]byte, bool)
}

// Pipeline decodes one SSRC's jitter-buffered payloads and broadcasts the
// decoded frames. Used for both the video and audio receive paths; the
// only difference is which Decoder is plugged in.
type Pipeline struct {
	buffer       Popper
	decoder      Decoder
	out          *Broadcaster
	pollInterval time.Duration

	quit chan struct{}
	done chan struct{}
}

// NewPipeline constructs a Pipeline that polls buffer every pollInterval
// (typically a few milliseconds), decodes each popped payload with decoder,
// and writes the result to out. The goroutine starts immediately.
func NewPipeline(buffer Popper, decoder Decoder, out *Broadcaster, pollInterval time.Duration) *Pipeline {
	p := &Pipeline{
		buffer:       buffer,
		decoder:      decoder,
		out:          out,
		pollInterval: pollInterval,
		quit:         make(chan struct{}),
		done:         make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *Pipeline) run() {
	defer close(p.done)

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.quit:
			return
		case <-ticker.C:
			for {
				payload, ok := p.buffer.Pop()
				if !ok {
					break
				}
				frame, err := p.decoder.Decode(payload)
				if err != nil {
					logger.Warn("media: decode failed: %v", err)
					continue
				}
				if len(frame) == 0 {
					continue
				}
				p.out.Write(frame)
			}
		}
	}
}

// Close stops the pipeline's goroutine and closes the decoder.
func (p *Pipeline) Close() error {
	close(p.quit)
	<-p.done
	return p.decoder.Close()
}
