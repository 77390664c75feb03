package rtcore

import (
	"time"

	"github.com/lanikai/rtcore/internal/media"
	"github.com/lanikai/rtcore/internal/rtp"
)

// videoSendWorker drives the video send thread from spec.md §4.12/§5:
// capture -> packetize -> protect -> transmit, one dedicated goroutine per
// local SSRC. Grounded in the teacher's StreamH264, generalized off its
// fixed camera/RTSP source onto the media.H264Source collaborator
// interface.
type videoSendWorker struct {
	c      *Connection
	src    media.H264Source
	pkt    rtp.H264Packetizer
	incPer time.Duration

	quit chan struct{}
	done chan struct{}
}

func newVideoSendWorker(c *Connection, src media.H264Source, fps float64) *videoSendWorker {
	if fps <= 0 {
		fps = 30
	}
	w := &videoSendWorker{
		c:   c,
		src: src,
		pkt: rtp.H264Packetizer{
			SSRC:           videoSSRC,
			PayloadType:    rtp.PayloadTypeH264,
			MaxPayloadSize: 1200,
		},
		incPer: time.Duration(float64(time.Second) / fps),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *videoSendWorker) run() {
	defer close(w.done)

	var timestamp uint32
	tsIncrement := uint32(90000 * w.incPer.Seconds())

	for {
		select {
		case <-w.quit:
			return
		default:
		}

		nalu, err := w.src.ReadNALU()
		if err != nil {
			logger.Warn("rtcore: video source read failed: %v", err)
			return
		}
		if len(nalu) == 0 {
			return // EOF
		}

		for _, pkt := range w.pkt.Packetize(nalu, timestamp, true) {
			w.c.sendRTP(pkt)
		}
		timestamp += tsIncrement
	}
}

func (w *videoSendWorker) Close() error {
	select {
	case <-w.done:
		return nil
	default:
	}
	close(w.quit)
	<-w.done
	return w.src.Close()
}

// audioSendWorker is the audio-side equivalent of videoSendWorker, wired to
// an already-Opus-encoded media.OpusSource.
type audioSendWorker struct {
	c   *Connection
	src media.OpusSource
	pkt rtp.OpusPacketizer

	quit chan struct{}
	done chan struct{}
}

func newAudioSendWorker(c *Connection, src media.OpusSource) *audioSendWorker {
	w := &audioSendWorker{
		c: c,
		pkt: rtp.OpusPacketizer{
			SSRC:        audioSSRC,
			PayloadType: rtp.PayloadTypeOpus,
		},
		src:  src,
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *audioSendWorker) run() {
	defer close(w.done)
	for {
		select {
		case <-w.quit:
			return
		default:
		}

		frame, err := w.src.ReadFrame()
		if err != nil {
			logger.Warn("rtcore: audio source read failed: %v", err)
			return
		}
		if len(frame) == 0 {
			return // EOF
		}

		pkt := w.pkt.Packetize(frame, rtp.OpusDefaultTimestampIncrement)
		w.c.sendRTP(pkt)
	}
}

func (w *audioSendWorker) Close() error {
	select {
	case <-w.done:
		return nil
	default:
	}
	close(w.quit)
	<-w.done
	return w.src.Close()
}

// sendRTP protects pkt with the connection's SRTP context and writes it to
// the RTP endpoint, per spec.md §4.5. A protect failure is logged and
// dropped rather than torn down, matching the receive side's tolerance for
// isolated packet failures (spec.md §7).
func (c *Connection) sendRTP(pkt *rtp.Packet) {
	protected, err := c.srtpCtx.Protect(pkt.Marshal())
	if err != nil {
		logger.Warn("rtcore: srtp protect failed: %v", err)
		return
	}
	if _, err := c.rtpEndpoint.Write(protected); err != nil {
		logger.Warn("rtcore: rtp send failed: %v", err)
	}
}

// StartVideoSend begins streaming src's NAL units once the connection is
// established, per spec.md §4.12. It is safe to call only after
// SetRemoteAnswer/SetRemoteOffer has completed the DTLS handshake.
func (c *Connection) StartVideoSend(src media.H264Source) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.videoSend = newVideoSendWorker(c, src, c.cfg.Media.FPS)
}

// StartAudioSend begins streaming src's Opus frames, the audio equivalent
// of StartVideoSend.
func (c *Connection) StartAudioSend(src media.OpusSource) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.audioSend = newAudioSendWorker(c, src)
}
