package dtls

import (
	"fmt"

	"github.com/lanikai/rtcore/internal/packet"
)

// ContentType is the DTLS record content type, RFC 6347 §4.1. Only the
// handshake and application-data types are used by this core.
type ContentType uint8

const (
	ContentTypeHandshake       ContentType = 22
	ContentTypeApplicationData ContentType = 23
)

// record is the outermost DTLS framing: a 1-byte content type, a 2-byte
// epoch, a 2-byte sequence number, and a length-prefixed fragment. This is
// a simplified, from-scratch record layer (spec.md §9 Open Question),
// marshaled in the same packet.Writer/Reader style as the teacher's own
// root dtls.go record/handshake structs.
type record struct {
	ContentType    ContentType
	Epoch          uint16
	SequenceNumber uint16
	Fragment       []byte
}

func (r record) marshal() []byte {
	w := packet.NewWriterSize(7 + len(r.Fragment))
	w.WriteByte(byte(r.ContentType))
	w.WriteUint16(r.Epoch)
	w.WriteUint16(r.SequenceNumber)
	w.WriteUint16(uint16(len(r.Fragment)))
	w.WriteSlice(r.Fragment)
	return w.Bytes()
}

func parseRecord(buf []byte) (record, error) {
	r := packet.NewReader(buf)
	if err := r.CheckRemaining(7); err != nil {
		return record{}, fmt.Errorf("dtls: short record: %w", err)
	}
	var rec record
	rec.ContentType = ContentType(r.ReadByte())
	rec.Epoch = r.ReadUint16()
	rec.SequenceNumber = r.ReadUint16()
	n := int(r.ReadUint16())
	if err := r.CheckRemaining(n); err != nil {
		return record{}, fmt.Errorf("dtls: truncated record fragment: %w", err)
	}
	rec.Fragment = r.ReadSlice(n)
	return rec, nil
}

// handshakeType enumerates this core's minimal 3-flight handshake.
type handshakeType uint8

const (
	handshakeClientHello handshakeType = 1
	handshakeServerHello handshakeType = 2
	handshakeFinished    handshakeType = 20
)

type handshakeHeader struct {
	Type       handshakeType
	MessageSeq uint16
}

func (h handshakeHeader) marshal(body []byte) []byte {
	w := packet.NewWriterSize(3 + len(body))
	w.WriteByte(byte(h.Type))
	w.WriteUint16(h.MessageSeq)
	w.WriteSlice(body)
	return w.Bytes()
}

func parseHandshakeHeader(buf []byte) (handshakeHeader, []byte, error) {
	r := packet.NewReader(buf)
	if err := r.CheckRemaining(3); err != nil {
		return handshakeHeader{}, nil, fmt.Errorf("dtls: short handshake header: %w", err)
	}
	var h handshakeHeader
	h.Type = handshakeType(r.ReadByte())
	h.MessageSeq = r.ReadUint16()
	return h, r.ReadRemaining(), nil
}

const (
	// SRTP protection profiles, RFC 5764 §4.1.2.
	ProfileAES128CmHmacSha1_80 uint16 = 0x0001
	ProfileAeadAes128Gcm       uint16 = 0x0007
	ProfileAeadAes256Gcm       uint16 = 0x0008
)

// clientHelloBody carries the client's ephemeral X25519 public key, offered
// SRTP profiles, and its own certificate so the server can verify the
// client's fingerprint too (this core's DTLS is mutually authenticated,
// both fingerprints having already been exchanged over signaling).
type clientHelloBody struct {
	Random      [32]byte
	PublicKey   [32]byte
	Profiles    []uint16
	Certificate []byte
}

func (b clientHelloBody) marshal() []byte {
	w := packet.NewWriterSize(32 + 32 + 1 + 2*len(b.Profiles) + 2 + len(b.Certificate))
	w.WriteSlice(b.Random[:])
	w.WriteSlice(b.PublicKey[:])
	w.WriteByte(byte(len(b.Profiles)))
	for _, p := range b.Profiles {
		w.WriteUint16(p)
	}
	w.WriteUint16(uint16(len(b.Certificate)))
	w.WriteSlice(b.Certificate)
	return w.Bytes()
}

func parseClientHelloBody(buf []byte) (clientHelloBody, error) {
	r := packet.NewReader(buf)
	if err := r.CheckRemaining(65); err != nil {
		return clientHelloBody{}, fmt.Errorf("dtls: short ClientHello: %w", err)
	}
	var b clientHelloBody
	copy(b.Random[:], r.ReadSlice(32))
	copy(b.PublicKey[:], r.ReadSlice(32))
	n := int(r.ReadByte())
	for i := 0; i < n; i++ {
		if err := r.CheckRemaining(2); err != nil {
			return clientHelloBody{}, fmt.Errorf("dtls: truncated profile list: %w", err)
		}
		b.Profiles = append(b.Profiles, r.ReadUint16())
	}
	if err := r.CheckRemaining(2); err != nil {
		return clientHelloBody{}, fmt.Errorf("dtls: missing client certificate length: %w", err)
	}
	certLen := int(r.ReadUint16())
	if err := r.CheckRemaining(certLen); err != nil {
		return clientHelloBody{}, fmt.Errorf("dtls: truncated client certificate: %w", err)
	}
	b.Certificate = r.ReadSlice(certLen)
	return b, nil
}

// serverHelloBody carries the server's ephemeral public key, chosen
// profile, and DER certificate (for fingerprint verification).
type serverHelloBody struct {
	Random       [32]byte
	PublicKey    [32]byte
	Profile      uint16
	Certificate  []byte
}

func (b serverHelloBody) marshal() []byte {
	w := packet.NewWriterSize(32 + 32 + 2 + 2 + len(b.Certificate))
	w.WriteSlice(b.Random[:])
	w.WriteSlice(b.PublicKey[:])
	w.WriteUint16(b.Profile)
	w.WriteUint16(uint16(len(b.Certificate)))
	w.WriteSlice(b.Certificate)
	return w.Bytes()
}

func parseServerHelloBody(buf []byte) (serverHelloBody, error) {
	r := packet.NewReader(buf)
	if err := r.CheckRemaining(68); err != nil {
		return serverHelloBody{}, fmt.Errorf("dtls: short ServerHello: %w", err)
	}
	var b serverHelloBody
	copy(b.Random[:], r.ReadSlice(32))
	copy(b.PublicKey[:], r.ReadSlice(32))
	b.Profile = r.ReadUint16()
	n := int(r.ReadUint16())
	if err := r.CheckRemaining(n); err != nil {
		return serverHelloBody{}, fmt.Errorf("dtls: truncated certificate: %w", err)
	}
	b.Certificate = r.ReadSlice(n)
	return b, nil
}
