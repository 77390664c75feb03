// Package rtp implements RTP packetization/depacketization for H.264 and
// Opus, plus the per-SSRC packet-handler statistics state machine, per
// spec.md §4.6. RTCP lives in the sibling internal/rtcp package.
package rtp

import (
	"fmt"

	"github.com/lanikai/rtcore/internal/packet"
)

const (
	Version = 2

	HeaderSize = 12

	// Reserved payload types, per spec.md §3/§6.
	PayloadTypeH264    = 96
	PayloadTypeControl = 100
	PayloadTypeOpus    = 111
)

// Header is the 12-byte fixed RTP header from RFC 3550 §5.1. This core
// never emits CSRCs or extensions, per spec.md §6.
type Header struct {
	Marker         bool
	PayloadType    byte
	SequenceNumber uint16
	Timestamp      uint32
	SSRC           uint32
}

// Packet is a decoded RTP packet: header plus payload.
type Packet struct {
	Header  Header
	Payload []byte
}

func (h Header) writeTo(w *packet.Writer) {
	w.WriteByte(Version << 6) // V=2, P=0, X=0, CC=0
	var b byte = h.PayloadType & 0x7f
	if h.Marker {
		b |= 0x80
	}
	w.WriteByte(b)
	w.WriteUint16(h.SequenceNumber)
	w.WriteUint32(h.Timestamp)
	w.WriteUint32(h.SSRC)
}

func (h *Header) readFrom(r *packet.Reader) error {
	if err := r.CheckRemaining(HeaderSize); err != nil {
		return fmt.Errorf("rtp: short header: %w", err)
	}
	first := r.ReadByte()
	version := first >> 6
	if version != Version {
		return fmt.Errorf("rtp: unsupported version %d", version)
	}
	csrcCount := int(first & 0x0f)

	second := r.ReadByte()
	h.Marker = second&0x80 != 0
	h.PayloadType = second & 0x7f
	h.SequenceNumber = r.ReadUint16()
	h.Timestamp = r.ReadUint32()
	h.SSRC = r.ReadUint32()

	if err := r.CheckRemaining(4 * csrcCount); err != nil {
		return fmt.Errorf("rtp: short CSRC list: %w", err)
	}
	r.Skip(4 * csrcCount)
	return nil
}

// Marshal encodes the packet into the RTP wire format.
func (p *Packet) Marshal() []byte {
	w := packet.NewWriterSize(HeaderSize + len(p.Payload))
	p.Header.writeTo(w)
	w.WriteSlice(p.Payload)
	return w.Bytes()
}

// Unmarshal decodes an RTP packet from buf. The returned Payload aliases buf.
func Unmarshal(buf []byte) (*Packet, error) {
	r := packet.NewReader(buf)
	var h Header
	if err := h.readFrom(r); err != nil {
		return nil, err
	}
	return &Packet{Header: h, Payload: r.ReadRemaining()}, nil
}
