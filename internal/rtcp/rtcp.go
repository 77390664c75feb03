// Package rtcp implements RTCP sender/receiver reports and BYE, per
// spec.md §4.6: SR emitted every 5s from the sender, RR from the receiver
// with fraction-lost, cumulative loss, extended highest sequence, jitter,
// and last-SR timing; BYE on graceful shutdown.
package rtcp

import (
	"fmt"

	"github.com/lanikai/rtcore/internal/packet"
)

const (
	version = 2

	headerSize = 4
	reportSize = 24

	TypeSenderReport   = 200
	TypeReceiverReport = 201
	TypeSourceDesc     = 202
	TypeBye            = 203
)

// ReportBlock is one SR/RR report block, RFC 3550 §6.4.1.
type ReportBlock struct {
	SSRC                  uint32
	FractionLost          byte
	CumulativeLost        int32 // 24-bit signed, sign-extended
	ExtendedHighestSeq    uint32
	Jitter                uint32
	LastSenderReportTime  uint32
	DelaySinceLastSR      uint32
}

func (b ReportBlock) writeTo(w *packet.Writer) {
	w.WriteUint32(b.SSRC)
	w.WriteByte(b.FractionLost)
	w.WriteUint24(uint32(b.CumulativeLost) & 0xffffff)
	w.WriteUint32(b.ExtendedHighestSeq)
	w.WriteUint32(b.Jitter)
	w.WriteUint32(b.LastSenderReportTime)
	w.WriteUint32(b.DelaySinceLastSR)
}

func readReportBlock(r *packet.Reader) ReportBlock {
	var b ReportBlock
	b.SSRC = r.ReadUint32()
	b.FractionLost = r.ReadByte()
	raw := r.ReadUint24()
	if raw&0x800000 != 0 {
		raw |= 0xff000000 // sign-extend 24-bit value
	}
	b.CumulativeLost = int32(raw)
	b.ExtendedHighestSeq = r.ReadUint32()
	b.Jitter = r.ReadUint32()
	b.LastSenderReportTime = r.ReadUint32()
	b.DelaySinceLastSR = r.ReadUint32()
	return b
}

func writeHeader(w *packet.Writer, packetType byte, count int, length uint16) {
	w.WriteByte(version<<6 | byte(count)&0x1f)
	w.WriteByte(packetType)
	w.WriteUint16(length)
}

// SenderReport is an RTCP SR packet, RFC 3550 §6.4.1.
type SenderReport struct {
	SSRC         uint32
	NTPTimestamp uint64
	RTPTimestamp uint32
	PacketCount  uint32
	OctetCount   uint32
	Reports      []ReportBlock
}

// Marshal encodes the sender report to the RTCP wire format.
func (p *SenderReport) Marshal() []byte {
	words := 6 + len(p.Reports)*(reportSize/4)
	w := packet.NewWriterSize(headerSize + words*4)
	writeHeader(w, TypeSenderReport, len(p.Reports), uint16(words))
	w.WriteUint32(p.SSRC)
	w.WriteUint64(p.NTPTimestamp)
	w.WriteUint32(p.RTPTimestamp)
	w.WriteUint32(p.PacketCount)
	w.WriteUint32(p.OctetCount)
	for _, rep := range p.Reports {
		rep.writeTo(w)
	}
	return w.Bytes()
}

// ParseSenderReport decodes an RTCP SR packet.
func ParseSenderReport(buf []byte) (*SenderReport, error) {
	r := packet.NewReader(buf)
	if err := r.CheckRemaining(headerSize); err != nil {
		return nil, fmt.Errorf("rtcp: short SR header: %w", err)
	}
	first := r.ReadByte()
	if first>>6 != version {
		return nil, fmt.Errorf("rtcp: unsupported version")
	}
	count := int(first & 0x1f)
	packetType := r.ReadByte()
	if packetType != TypeSenderReport {
		return nil, fmt.Errorf("rtcp: not a sender report (type %d)", packetType)
	}
	r.ReadUint16() // length, not checked

	p := &SenderReport{}
	p.SSRC = r.ReadUint32()
	p.NTPTimestamp = r.ReadUint64()
	p.RTPTimestamp = r.ReadUint32()
	p.PacketCount = r.ReadUint32()
	p.OctetCount = r.ReadUint32()
	for i := 0; i < count; i++ {
		if err := r.CheckRemaining(reportSize); err != nil {
			return nil, fmt.Errorf("rtcp: short SR report block: %w", err)
		}
		p.Reports = append(p.Reports, readReportBlock(r))
	}
	return p, nil
}

// ReceiverReport is an RTCP RR packet, RFC 3550 §6.4.2.
type ReceiverReport struct {
	SSRC    uint32
	Reports []ReportBlock
}

// Marshal encodes the receiver report to the RTCP wire format.
func (p *ReceiverReport) Marshal() []byte {
	words := 1 + len(p.Reports)*(reportSize/4)
	w := packet.NewWriterSize(headerSize + words*4)
	writeHeader(w, TypeReceiverReport, len(p.Reports), uint16(words))
	w.WriteUint32(p.SSRC)
	for _, rep := range p.Reports {
		rep.writeTo(w)
	}
	return w.Bytes()
}

// ParseReceiverReport decodes an RTCP RR packet.
func ParseReceiverReport(buf []byte) (*ReceiverReport, error) {
	r := packet.NewReader(buf)
	if err := r.CheckRemaining(headerSize); err != nil {
		return nil, fmt.Errorf("rtcp: short RR header: %w", err)
	}
	first := r.ReadByte()
	count := int(first & 0x1f)
	packetType := r.ReadByte()
	if packetType != TypeReceiverReport {
		return nil, fmt.Errorf("rtcp: not a receiver report (type %d)", packetType)
	}
	r.ReadUint16()

	p := &ReceiverReport{}
	p.SSRC = r.ReadUint32()
	for i := 0; i < count; i++ {
		if err := r.CheckRemaining(reportSize); err != nil {
			return nil, fmt.Errorf("rtcp: short RR report block: %w", err)
		}
		p.Reports = append(p.Reports, readReportBlock(r))
	}
	return p, nil
}

// Bye is an RTCP BYE packet, RFC 3550 §6.6, sent on graceful shutdown.
type Bye struct {
	SSRCs  []uint32
	Reason string
}

// Marshal encodes the BYE packet to the RTCP wire format.
func (p *Bye) Marshal() []byte {
	words := len(p.SSRCs)
	reasonBytes := 0
	if p.Reason != "" {
		reasonBytes = 1 + len(p.Reason)
	}
	totalBytes := headerSize + words*4 + reasonBytes
	padded := (totalBytes + 3) &^ 3
	words += (padded - headerSize - words*4) / 4

	w := packet.NewWriterSize(padded)
	writeHeader(w, TypeBye, len(p.SSRCs), uint16(words))
	for _, ssrc := range p.SSRCs {
		w.WriteUint32(ssrc)
	}
	if p.Reason != "" {
		w.WriteByte(byte(len(p.Reason)))
		w.WriteString(p.Reason)
	}
	w.Align(4)
	return w.Bytes()
}

// ParseBye decodes an RTCP BYE packet.
func ParseBye(buf []byte) (*Bye, error) {
	r := packet.NewReader(buf)
	if err := r.CheckRemaining(headerSize); err != nil {
		return nil, fmt.Errorf("rtcp: short BYE header: %w", err)
	}
	first := r.ReadByte()
	count := int(first & 0x1f)
	packetType := r.ReadByte()
	if packetType != TypeBye {
		return nil, fmt.Errorf("rtcp: not a BYE packet (type %d)", packetType)
	}
	r.ReadUint16()

	p := &Bye{}
	for i := 0; i < count; i++ {
		p.SSRCs = append(p.SSRCs, r.ReadUint32())
	}
	if r.Remaining() > 0 {
		n := int(r.ReadByte())
		if r.Remaining() >= n {
			p.Reason = string(r.ReadSlice(n))
		}
	}
	return p, nil
}
