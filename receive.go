package rtcore

import (
	"time"

	"github.com/lanikai/rtcore/internal/events"
	"github.com/lanikai/rtcore/internal/jitter"
	"github.com/lanikai/rtcore/internal/media"
	"github.com/lanikai/rtcore/internal/rtcerr"
	"github.com/lanikai/rtcore/internal/rtcp"
	"github.com/lanikai/rtcore/internal/rtp"
)

const (
	videoClockRate = 90000
	audioClockRate = 48000

	jitterPollInterval = 5 * time.Millisecond
)

// startReceiveLoops wires the per-SSRC jitter buffers and stats, then
// starts the RTP and RTCP read goroutines, per spec.md §4.8. Decode/
// playback pipelines are attached lazily by StartVideoReceive/
// StartAudioReceive once the caller supplies a codec, so packets are never
// dropped on the floor waiting for one.
func (c *Connection) startReceiveLoops() {
	c.recvMu.Lock()
	c.videoRecv = &receiveTrack{
		ssrc:    videoSSRC,
		buffer:  jitter.NewBuffer(videoJitterConfig()),
		stats:   &rtp.PacketStats{},
		jitterT: &rtp.JitterTracker{},
		out:     media.NewBroadcaster(),
	}
	c.audioRecv = &receiveTrack{
		ssrc:    audioSSRC,
		buffer:  jitter.NewBuffer(audioJitterConfig()),
		stats:   &rtp.PacketStats{},
		jitterT: &rtp.JitterTracker{},
		out:     media.NewBroadcaster(),
	}
	c.recvMu.Unlock()

	go c.rtpReceiveLoop()
	go c.rtcpReceiveLoop()
	go c.sctpTimeoutLoop()
}

func videoJitterConfig() jitter.Config {
	cfg := jitter.DefaultConfig()
	cfg.ClockRate = videoClockRate
	return cfg
}

func audioJitterConfig() jitter.Config {
	cfg := jitter.DefaultConfig()
	cfg.ClockRate = audioClockRate
	cfg.MinDelayFrames = 2
	cfg.MaxDelayFrames = 6
	return cfg
}

// rtpReceiveLoop unprotects every inbound SRTP packet and demuxes it by
// payload type, per spec.md §4.6: H.264 and Opus media go to their jitter
// buffer for playout pacing; control messages (payload type 100) bypass
// the jitter buffer entirely and are delivered as events immediately.
func (c *Connection) rtpReceiveLoop() {
	buf := make([]byte, rtpBufferSize)
	for {
		n, err := c.rtpEndpoint.Read(buf)
		if err != nil {
			return
		}
		plain, err := c.srtpCtx.Unprotect(buf[:n])
		if err != nil {
			// KindCryptographic here is routine under packet loss/reorder
			// (a stale or replayed sequence number): drop quietly. Any other
			// Kind means srtp itself misbehaved, worth a Warn.
			if !rtcerr.Is(err, rtcerr.KindCryptographic) {
				logger.Warn("rtcore: srtp unprotect failed, dropping packet: %v", err)
			}
			continue
		}
		pkt, err := rtp.Unmarshal(plain)
		if err != nil {
			logger.Warn("rtcore: malformed rtp packet, dropping: %v", err)
			continue
		}
		c.handleRTP(pkt)
	}
}

func (c *Connection) handleRTP(pkt *rtp.Packet) {
	switch pkt.Header.PayloadType {
	case rtp.PayloadTypeControl:
		ev, err := media.ParseControlMessage(pkt.Payload)
		if err != nil {
			logger.Warn("rtcore: malformed control message, dropping: %v", err)
			return
		}
		c.emit(events.Event{Type: events.Control, Control: ev})

	case rtp.PayloadTypeH264:
		c.recvMu.Lock()
		track := c.videoRecv
		c.recvMu.Unlock()
		c.observe(track, pkt)
		track.buffer.Push(pkt.Header.SequenceNumber, pkt.Header.Timestamp, media.PrefixSequence(pkt.Header.SequenceNumber, pkt.Payload))

	case rtp.PayloadTypeOpus:
		c.recvMu.Lock()
		track := c.audioRecv
		c.recvMu.Unlock()
		c.observe(track, pkt)
		track.buffer.Push(pkt.Header.SequenceNumber, pkt.Header.Timestamp, pkt.Payload)

	default:
		logger.Warn("rtcore: unknown rtp payload type %d, dropping", pkt.Header.PayloadType)
	}
}

func (c *Connection) observe(track *receiveTrack, pkt *rtp.Packet) {
	track.stats.Observe(pkt.Header.SequenceNumber)

	clockRate := int64(videoClockRate)
	if track == c.audioRecv {
		clockRate = audioClockRate
	}
	arrival := time.Now().UnixNano() * clockRate / int64(time.Second)
	track.jitterT.Update(arrival, pkt.Header.Timestamp)
}

// rtcpReceiveLoop drains inbound RTCP (SR/RR/BYE); a remote BYE tears the
// matching receive track's pipeline down, per spec.md §4.6.
func (c *Connection) rtcpReceiveLoop() {
	buf := make([]byte, rtpBufferSize)
	for {
		n, err := c.rtcpEndpoint.Read(buf)
		if err != nil {
			return
		}
		plain, err := c.srtpCtx.Unprotect(buf[:n])
		if err != nil {
			if !rtcerr.Is(err, rtcerr.KindCryptographic) {
				logger.Warn("rtcore: srtcp unprotect failed, dropping packet: %v", err)
			}
			continue
		}
		if len(plain) < 2 {
			continue
		}
		switch plain[1] {
		case rtcp.TypeBye:
			bye, err := rtcp.ParseBye(plain)
			if err != nil {
				logger.Warn("rtcore: malformed rtcp bye, dropping: %v", err)
				continue
			}
			logger.Info("rtcore: remote bye for ssrc(s) %v: %s", bye.SSRCs, bye.Reason)
			c.recvMu.Lock()
			for _, track := range []*receiveTrack{c.videoRecv, c.audioRecv} {
				for _, ssrc := range bye.SSRCs {
					if track != nil && track.ssrc == ssrc && track.pipeline != nil {
						track.pipeline.Close()
						track.pipeline = nil
					}
				}
			}
			c.recvMu.Unlock()
		case rtcp.TypeSenderReport, rtcp.TypeReceiverReport:
			// Consumed for diagnostics only; this core derives its own
			// stats locally rather than trusting the remote's self-report.
		}
	}
}

// sendRTCP protects payload as SRTCP and writes it to the RTCP endpoint.
func (c *Connection) sendRTCP(payload []byte) error {
	protected, err := c.srtpCtx.Protect(payload)
	if err != nil {
		return err
	}
	_, err = c.rtcpEndpoint.Write(protected)
	return err
}

// startStatsTicker emits periodic ConnectionStats events and sender
// reports, per spec.md §4.6/§8.
func (c *Connection) startStatsTicker() {
	go func() {
		statsTicker := time.NewTicker(statsTickInterval)
		defer statsTicker.Stop()
		srTicker := time.NewTicker(rtcpSRInterval)
		defer srTicker.Stop()

		for {
			select {
			case <-c.ctx.Done():
				return
			case <-statsTicker.C:
				c.emitStats(c.videoRecv)
				c.emitStats(c.audioRecv)
			case <-srTicker.C:
				c.sendSenderReport(videoSSRC)
				c.sendSenderReport(audioSSRC)
			}
		}
	}()
}

func (c *Connection) emitStats(track *receiveTrack) {
	if track == nil {
		return
	}
	c.emit(events.Event{
		Type: events.StatsTick,
		Stats: events.ConnectionStats{
			SSRC:          track.ssrc,
			PacketsRecv:   track.stats.Received,
			PacketsLost:   track.stats.Lost,
			Reordered:     track.stats.Reordered,
			Duplicates:    track.stats.Duplicate,
			JitterSamples: track.jitterT.Value(),
			LossRate:      track.stats.LossRate(),
		},
	})
}

func (c *Connection) sendSenderReport(ssrc uint32) {
	sr := &rtcp.SenderReport{SSRC: ssrc, NTPTimestamp: ntpNow(), RTPTimestamp: 0}
	if err := c.sendRTCP(sr.Marshal()); err != nil {
		logger.Warn("rtcore: failed to send rtcp sr for ssrc %d: %v", ssrc, err)
	}
}

const ntpEpochOffset = 2208988800 // seconds between 1900 and 1970

func ntpNow() uint64 {
	now := time.Now()
	seconds := uint64(now.Unix()+ntpEpochOffset) << 32
	frac := uint64(now.Nanosecond()) * (1 << 32) / 1e9
	return seconds | frac
}

// StartVideoReceive attaches a decode/playback pipeline to the video
// track, fanning decoded frames out through the returned Broadcaster. It
// is safe to call at any point after the connection reaches Connected.
func (c *Connection) StartVideoReceive(decoder media.Decoder) *media.Broadcaster {
	c.recvMu.Lock()
	defer c.recvMu.Unlock()
	if c.videoRecv.pipeline == nil {
		c.videoRecv.pipeline = media.NewPipeline(c.videoRecv.buffer, media.NewH264ReassemblingDecoder(decoder), c.videoRecv.out, jitterPollInterval)
	}
	return c.videoRecv.out
}

// StartAudioReceive is StartVideoReceive's audio-track equivalent. Opus
// needs no reassembly: one RTP packet is already one complete frame.
func (c *Connection) StartAudioReceive(decoder media.Decoder) *media.Broadcaster {
	c.recvMu.Lock()
	defer c.recvMu.Unlock()
	if c.audioRecv.pipeline == nil {
		c.audioRecv.pipeline = media.NewPipeline(c.audioRecv.buffer, decoder, c.audioRecv.out, jitterPollInterval)
	}
	return c.audioRecv.out
}

// SendControl transmits a control-channel message (RTP payload type 100,
// its own SSRC so its sequence numbers never collide with video/audio's
// replay windows) to the remote peer, per spec.md §6.
func (c *Connection) SendControl(ev events.ControlEvent) {
	c.mu.Lock()
	seq := c.controlSeq
	c.controlSeq++
	c.mu.Unlock()

	pkt := &rtp.Packet{
		Header: rtp.Header{
			Marker:         true,
			PayloadType:    rtp.PayloadTypeControl,
			SequenceNumber: seq,
			SSRC:           controlSSRC,
		},
		Payload: media.MarshalControlMessage(ev),
	}
	c.sendRTP(pkt)
}
