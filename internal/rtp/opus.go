package rtp

// Opus RTP packetization, one frame per RTP packet, per spec.md §4.6: a
// typical 20ms frame at 48kHz advances the timestamp by 960. The teacher
// repo is video-only; this is grounded in
// original_source/webrtc/network/src/codec/packetizers/opus/packetizer.rs.

const OpusDefaultTimestampIncrement = 960 // 20ms @ 48kHz

// OpusPacketizer emits one RTP packet per Opus frame.
type OpusPacketizer struct {
	SSRC        uint32
	PayloadType byte

	sequence  uint16
	timestamp uint32
}

// Packetize wraps a single encoded Opus frame in one RTP packet and
// advances the timestamp by increment (typically OpusDefaultTimestampIncrement).
func (p *OpusPacketizer) Packetize(frame []byte, increment uint32) *Packet {
	pkt := &Packet{
		Header: Header{
			Marker:         true,
			PayloadType:    p.PayloadType,
			SequenceNumber: p.sequence,
			Timestamp:      p.timestamp,
			SSRC:           p.SSRC,
		},
		Payload: frame,
	}
	p.sequence++
	p.timestamp += increment
	return pkt
}

// OpusDepacketizer is a no-op reassembler: every RTP packet is already one
// complete Opus frame, so Push just returns the payload unchanged.
type OpusDepacketizer struct{}

func (OpusDepacketizer) Push(payload []byte) []byte {
	return payload
}
