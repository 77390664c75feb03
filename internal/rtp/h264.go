package rtp

// H.264 RTP packetization per RFC 6184, as described in spec.md §4.6: single
// NALs fit in one packet and larger NALs are fragmented with FU-A. The
// depacketizer caches SPS/PPS and reports through Ready whether a pair has
// been seen; neither side prepends parameter sets to IDR frames.

import (
	"fmt"
)

const (
	naluTypeSPS  = 7
	naluTypePPS  = 8
	naluTypeFUA  = 28

	fuStartBit = 0x80
	fuEndBit   = 0x40
)

// H264Packetizer fragments H.264 NAL units into RTP packets no larger than
// MaxPayloadSize, emitting Start/End FU-A bits and preserving NAL ref/type.
type H264Packetizer struct {
	SSRC           uint32
	PayloadType    byte
	MaxPayloadSize int

	sequence  uint16
	timestamp uint32
}

// Packetize splits one NAL unit (without start code) into RTP packets at the
// given RTP timestamp: a single packet when it fits MaxPayloadSize, FU-A
// fragments otherwise. Only the last packet carries marker.
func (p *H264Packetizer) Packetize(nalu []byte, timestamp uint32, marker bool) []*Packet {
	if len(nalu) == 0 {
		return nil
	}
	if len(nalu) <= p.MaxPayloadSize {
		pkt := p.newPacket(timestamp, marker, nalu)
		return []*Packet{pkt}
	}

	indicator := nalu[0]&0xe0 | naluTypeFUA
	naluType := nalu[0] & 0x1f
	fragmentSize := p.MaxPayloadSize - 2
	var out []*Packet
	for i := 1; i < len(nalu); i += fragmentSize {
		end := i + fragmentSize
		last := end >= len(nalu)
		if last {
			end = len(nalu)
		}

		header := naluType
		if i == 1 {
			header |= fuStartBit
		}
		if last {
			header |= fuEndBit
		}

		payload := make([]byte, 2+(end-i))
		payload[0] = indicator
		payload[1] = header
		copy(payload[2:], nalu[i:end])

		out = append(out, p.newPacket(timestamp, marker && last, payload))
	}
	return out
}

func (p *H264Packetizer) newPacket(timestamp uint32, marker bool, payload []byte) *Packet {
	pkt := &Packet{
		Header: Header{
			Marker:         marker,
			PayloadType:    p.PayloadType,
			SequenceNumber: p.sequence,
			Timestamp:      timestamp,
			SSRC:           p.SSRC,
		},
		Payload: payload,
	}
	p.sequence++
	return pkt
}

// H264Depacketizer reassembles FU-A fragments (keyed by sequence
// contiguity) back into NAL units and caches SPS/PPS, per spec.md §4.6.
type H264Depacketizer struct {
	sps, pps []byte
	haveSPS  bool
	havePPS  bool

	fragment     []byte
	fragmentSeq  uint16
	inFragment   bool
}

// Push processes one RTP packet's payload, returning a complete NAL unit
// when one has been assembled (nil otherwise), and whether the frame should
// be dropped because a fragment was lost.
func (d *H264Depacketizer) Push(seq uint16, payload []byte) (nalu []byte, dropped bool, err error) {
	if len(payload) == 0 {
		return nil, false, fmt.Errorf("rtp: empty H.264 payload")
	}
	naluType := payload[0] & 0x1f

	if naluType != naluTypeFUA {
		d.observe(naluType, payload)
		d.inFragment = false
		return payload, false, nil
	}

	if len(payload) < 2 {
		return nil, true, fmt.Errorf("rtp: short FU-A payload")
	}
	fuHeader := payload[1]
	start := fuHeader&fuStartBit != 0
	end := fuHeader&fuEndBit != 0
	fragType := fuHeader & 0x1f

	if start {
		indicator := payload[0]&0xe0 | fragType
		d.fragment = append([]byte{indicator}, payload[2:]...)
		d.fragmentSeq = seq
		d.inFragment = true
	} else {
		if !d.inFragment || seq != d.fragmentSeq+1 {
			d.inFragment = false
			return nil, true, fmt.Errorf("rtp: FU-A fragment lost")
		}
		d.fragment = append(d.fragment, payload[2:]...)
		d.fragmentSeq = seq
	}

	if !end {
		return nil, false, nil
	}
	d.inFragment = false
	assembled := d.fragment
	d.fragment = nil
	d.observe(fragType, assembled)
	return assembled, false, nil
}

func (d *H264Depacketizer) observe(naluType byte, nalu []byte) {
	switch naluType {
	case naluTypeSPS:
		d.sps, d.haveSPS = append([]byte(nil), nalu...), true
	case naluTypePPS:
		d.pps, d.havePPS = append([]byte(nil), nalu...), true
	}
}

// Ready reports whether at least one SPS+PPS pair has been observed, per
// spec.md §4.6: the decoder refuses frame data until then.
func (d *H264Depacketizer) Ready() bool {
	return d.haveSPS && d.havePPS
}
