// Package sctp implements the sans-I/O SCTP association from spec.md §4.9:
// the INIT/INIT-ACK/COOKIE-ECHO/COOKIE-ACK four-way handshake, DATA/SACK
// with cumulative TSN and gap-ack blocks, and SHUTDOWN teardown. The
// association never touches a socket directly; every outgoing packet is
// handed to internal/dtls.Engine.SendApplicationData and every inbound
// packet arrives as a dtls.OutputApplicationData payload, per spec.md
// §4.9's "runs entirely over DTLS application data" requirement.
package sctp

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/lanikai/rtcore/internal/packet"
	"github.com/lanikai/rtcore/internal/rtcerr"
)

const commonHeaderSize = 12

var castagnoliTable = crc32.MakeTable(crc32.Castagnoli)

// Packet is one SCTP packet: a 12-byte common header followed by one or
// more chunks, per spec.md §6 ("SCTP on the wire").
type Packet struct {
	SourcePort      uint16
	DestPort        uint16
	VerificationTag uint32
	Chunks          []Chunk
}

// Marshal encodes the packet, computing the CRC32c checksum (Castagnoli,
// reflected polynomial 0x82F63B78) over the packet with the checksum field
// zeroed, written little-endian, per spec.md §4.9/§8 property 8.
func (p *Packet) Marshal() []byte {
	w := packet.NewWriterSize(commonHeaderSize)
	w.WriteUint16(p.SourcePort)
	w.WriteUint16(p.DestPort)
	w.WriteUint32(p.VerificationTag)
	w.WriteUint32(0) // checksum placeholder, filled in below

	buf := w.Bytes()
	for _, c := range p.Chunks {
		buf = append(buf, marshalChunk(c)...)
	}

	sum := crc32.Checksum(buf, castagnoliTable)
	binary.LittleEndian.PutUint32(buf[8:12], sum)
	return buf
}

// Parse decodes an SCTP packet, verifying its CRC32c checksum.
func Parse(buf []byte) (*Packet, error) {
	r := packet.NewReader(buf)
	if err := r.CheckRemaining(commonHeaderSize); err != nil {
		return nil, rtcerr.Wrap(rtcerr.KindProtocolParse, "sctp: short packet", err)
	}
	p := &Packet{}
	p.SourcePort = r.ReadUint16()
	p.DestPort = r.ReadUint16()
	p.VerificationTag = r.ReadUint32()
	checksum := r.ReadUint32()

	verify := append([]byte(nil), buf...)
	binary.LittleEndian.PutUint32(verify[8:12], 0)
	if got := crc32.Checksum(verify, castagnoliTable); got != checksum {
		return nil, rtcerr.New(rtcerr.KindProtocolParse, "sctp: checksum mismatch (got %08x want %08x)", got, checksum)
	}

	rest := buf[commonHeaderSize:]
	for len(rest) > 0 {
		c, n, err := parseChunk(rest)
		if err != nil {
			return nil, err
		}
		p.Chunks = append(p.Chunks, c)
		rest = rest[n:]
	}
	return p, nil
}
