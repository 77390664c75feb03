// Package filetransfer implements the in-band file-transfer protocol from
// spec.md §4.11, layered on a single `file-transfer` data channel
// (internal/datachannel). Grounded in
// original_source/webrtc/src/session/file_transfer/{message,outgoing,incoming}.rs:
// the six message types, the sender's TCP-slow-start-style adaptive chunk
// sizing, and the receiver's offset-keyed chunk map are all translated
// field-for-field into this core's idiom.
package filetransfer

import (
	"fmt"

	"github.com/lanikai/rtcore/internal/packet"
)

// Wire message type tags, per spec.md §4.11/§6.
const (
	msgTypeOffer    byte = 0x01
	msgTypeAccept   byte = 0x02
	msgTypeReject   byte = 0x03
	msgTypeData     byte = 0x04
	msgTypeComplete byte = 0x05
	msgTypeCancel   byte = 0x06
)

// Message is the decoded form of one file-transfer protocol message.
// Exactly the fields relevant to Type are populated.
type Message struct {
	Type byte

	ID uint64

	// Offer
	Filename string
	Size     uint64
	MimeType string

	// Reject / Cancel
	Reason string

	// Data
	Offset uint64
	Data   []byte

	// Complete
	Checksum uint64
}

func marshalOffer(id uint64, filename string, size uint64, mime string) []byte {
	n := 1 + 8 + 8 + 2 + len(filename) + 2 + len(mime)
	w := packet.NewWriterSize(n)
	w.WriteByte(msgTypeOffer)
	w.WriteUint64(id)
	w.WriteUint64(size)
	w.WriteLenPrefixedString(filename)
	w.WriteLenPrefixedString(mime)
	return w.Bytes()
}

func marshalAccept(id uint64) []byte {
	w := packet.NewWriterSize(9)
	w.WriteByte(msgTypeAccept)
	w.WriteUint64(id)
	return w.Bytes()
}

func marshalReject(id uint64, reason string) []byte {
	n := 1 + 8 + 2 + len(reason)
	w := packet.NewWriterSize(n)
	w.WriteByte(msgTypeReject)
	w.WriteUint64(id)
	w.WriteLenPrefixedString(reason)
	return w.Bytes()
}

func marshalData(id, offset uint64, data []byte) []byte {
	n := 1 + 8 + 8 + len(data)
	w := packet.NewWriterSize(n)
	w.WriteByte(msgTypeData)
	w.WriteUint64(id)
	w.WriteUint64(offset)
	w.WriteSlice(data)
	return w.Bytes()
}

func marshalComplete(id, checksum uint64) []byte {
	w := packet.NewWriterSize(17)
	w.WriteByte(msgTypeComplete)
	w.WriteUint64(id)
	w.WriteUint64(checksum)
	return w.Bytes()
}

func marshalCancel(id uint64, reason string) []byte {
	n := 1 + 8 + 2 + len(reason)
	w := packet.NewWriterSize(n)
	w.WriteByte(msgTypeCancel)
	w.WriteUint64(id)
	w.WriteLenPrefixedString(reason)
	return w.Bytes()
}

// ParseMessage decodes one wire message, per spec.md §6's length-prefixed,
// big-endian format.
func ParseMessage(buf []byte) (Message, error) {
	var m Message
	r := packet.NewReader(buf)
	if err := r.CheckRemaining(1); err != nil {
		return m, fmt.Errorf("filetransfer: empty message")
	}
	m.Type = r.ReadByte()

	if err := r.CheckRemaining(8); err != nil {
		return m, fmt.Errorf("filetransfer: message too short for id: %w", err)
	}
	m.ID = r.ReadUint64()

	switch m.Type {
	case msgTypeOffer:
		if err := r.CheckRemaining(8); err != nil {
			return m, fmt.Errorf("filetransfer: offer too short: %w", err)
		}
		m.Size = r.ReadUint64()
		filename, err := r.ReadLenPrefixedString()
		if err != nil {
			return m, fmt.Errorf("filetransfer: offer filename: %w", err)
		}
		m.Filename = filename
		mime, err := r.ReadLenPrefixedString()
		if err != nil {
			return m, fmt.Errorf("filetransfer: offer mime type: %w", err)
		}
		m.MimeType = mime
		return m, nil

	case msgTypeAccept:
		return m, nil

	case msgTypeReject:
		reason, err := r.ReadLenPrefixedString()
		if err != nil {
			return m, fmt.Errorf("filetransfer: reject reason: %w", err)
		}
		m.Reason = reason
		return m, nil

	case msgTypeData:
		if err := r.CheckRemaining(8); err != nil {
			return m, fmt.Errorf("filetransfer: data too short: %w", err)
		}
		m.Offset = r.ReadUint64()
		m.Data = append([]byte(nil), r.ReadRemaining()...)
		return m, nil

	case msgTypeComplete:
		if err := r.CheckRemaining(8); err != nil {
			return m, fmt.Errorf("filetransfer: complete too short: %w", err)
		}
		m.Checksum = r.ReadUint64()
		return m, nil

	case msgTypeCancel:
		reason, err := r.ReadLenPrefixedString()
		if err != nil {
			return m, fmt.Errorf("filetransfer: cancel reason: %w", err)
		}
		m.Reason = reason
		return m, nil

	default:
		return m, fmt.Errorf("filetransfer: unknown message type %d", m.Type)
	}
}
