// Package datachannel implements DCEP (Data Channel Establishment Protocol)
// and per-stream data-channel state from spec.md §4.10. DCEP messages ride
// the same SCTP streams as their eventual payload, tagged with PPID 50 per
// spec.md §6; the manager never depends on message ordering across streams,
// matching the teacher's own event-driven channel bookkeeping in
// internal/signaling/mqtt.go.
package datachannel

import (
	"fmt"

	"github.com/lanikai/rtcore/internal/packet"
)

// DCEP message types, per RFC 8832 as named in spec.md §4.10.
const (
	messageTypeOpen byte = 0x03
	messageTypeAck  byte = 0x02
)

// Channel type / reliability values the OPEN message carries. This core only
// ever negotiates the reliable, ordered channel type the teacher and the
// file-transfer protocol both assume.
const (
	ChannelTypeReliable byte = 0x00
)

// OpenMessage is the DATA_CHANNEL_OPEN DCEP payload.
type OpenMessage struct {
	ChannelType  byte
	Priority     uint16
	Reliability  uint32
	Label        string
	Protocol     string
}

// Marshal encodes the OPEN message per RFC 8832 §5.1.
func (m OpenMessage) Marshal() []byte {
	size := 1 + 1 + 2 + 4 + 2 + 2 + len(m.Label) + len(m.Protocol)
	w := packet.NewWriterSize(size)
	w.WriteByte(messageTypeOpen)
	w.WriteByte(m.ChannelType)
	w.WriteUint16(m.Priority)
	w.WriteUint32(m.Reliability)
	w.WriteUint16(uint16(len(m.Label)))
	w.WriteUint16(uint16(len(m.Protocol)))
	w.WriteString(m.Label)
	w.WriteString(m.Protocol)
	return w.Bytes()
}

// ParseOpenMessage decodes a DATA_CHANNEL_OPEN payload.
func ParseOpenMessage(buf []byte) (OpenMessage, error) {
	var m OpenMessage
	r := packet.NewReader(buf)
	if err := r.CheckRemaining(12); err != nil {
		return m, fmt.Errorf("datachannel: short OPEN message: %w", err)
	}
	typ := r.ReadByte()
	if typ != messageTypeOpen {
		return m, fmt.Errorf("datachannel: not an OPEN message (type %d)", typ)
	}
	m.ChannelType = r.ReadByte()
	m.Priority = r.ReadUint16()
	m.Reliability = r.ReadUint32()
	labelLen := int(r.ReadUint16())
	protoLen := int(r.ReadUint16())
	if err := r.CheckRemaining(labelLen + protoLen); err != nil {
		return m, fmt.Errorf("datachannel: short OPEN label/protocol: %w", err)
	}
	m.Label = string(r.ReadSlice(labelLen))
	m.Protocol = string(r.ReadSlice(protoLen))
	return m, nil
}

// marshalAck encodes the single-byte DATA_CHANNEL_ACK message.
func marshalAck() []byte {
	return []byte{messageTypeAck}
}

// isAck reports whether buf is a DATA_CHANNEL_ACK message.
func isAck(buf []byte) bool {
	return len(buf) == 1 && buf[0] == messageTypeAck
}
