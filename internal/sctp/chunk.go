package sctp

import (
	"github.com/lanikai/rtcore/internal/packet"
	"github.com/lanikai/rtcore/internal/rtcerr"
)

// Chunk types used by this association, per spec.md §6.
const (
	ChunkData             = 0
	ChunkInit             = 1
	ChunkInitAck          = 2
	ChunkSack             = 3
	ChunkHeartbeat        = 4
	ChunkHeartbeatAck     = 5
	ChunkAbort            = 6
	ChunkShutdown         = 7
	ChunkShutdownAck      = 8
	ChunkCookieEcho       = 10
	ChunkCookieAck        = 11
	ChunkShutdownComplete = 14
)

// Data chunk PPIDs, per spec.md §6: DCEP control vs. user payload variants.
const (
	PPIDDCEP         = 50
	PPIDString       = 51
	PPIDBinary       = 53
	PPIDStringEmpty  = 56
	PPIDBinaryEmpty  = 57
)

const chunkHeaderSize = 4

// Chunk is one SCTP chunk. marshal renders the full chunk, padded to a
// 4-byte boundary; the padding bytes are not counted in the on-wire length
// field, per RFC 4960 §3.2.
type Chunk interface {
	chunkType() byte
	marshalBody() []byte
}

func marshalChunk(c Chunk) []byte {
	body := c.marshalBody()
	w := packet.NewWriterSize(chunkHeaderSize + len(body))
	w.WriteByte(c.chunkType())
	var flags byte
	if d, ok := c.(*DataChunk); ok {
		flags = d.flags()
	}
	w.WriteByte(flags)
	w.WriteUint16(uint16(chunkHeaderSize + len(body)))
	w.WriteSlice(body)
	buf := w.Bytes()
	if pad := (4 - len(buf)%4) % 4; pad > 0 {
		buf = append(buf, make([]byte, pad)...)
	}
	return buf
}

func parseChunk(buf []byte) (Chunk, int, error) {
	if len(buf) < chunkHeaderSize {
		return nil, 0, rtcerr.New(rtcerr.KindProtocolParse, "sctp: short chunk header")
	}
	typ := buf[0]
	length := int(buf[2])<<8 | int(buf[3])
	if length < chunkHeaderSize || length > len(buf) {
		return nil, 0, rtcerr.New(rtcerr.KindProtocolParse, "sctp: invalid chunk length %d", length)
	}
	body := buf[chunkHeaderSize:length]
	padded := length + (4-length%4)%4
	if padded > len(buf) {
		padded = len(buf)
	}

	var c Chunk
	var err error
	switch typ {
	case ChunkInit:
		c, err = parseInitBody(body, false)
	case ChunkInitAck:
		c, err = parseInitBody(body, true)
	case ChunkData:
		var d *DataChunk
		d, err = parseDataBody(body)
		if err == nil {
			d.Unordered = buf[1]&0x04 != 0
		}
		c = d
	case ChunkSack:
		c, err = parseSackBody(body)
	case ChunkCookieEcho:
		c = &CookieEchoChunk{Cookie: append([]byte(nil), body...)}
	case ChunkCookieAck:
		c = &CookieAckChunk{}
	case ChunkShutdown:
		c, err = parseShutdownBody(body)
	case ChunkShutdownAck:
		c = &ShutdownAckChunk{}
	case ChunkShutdownComplete:
		c = &ShutdownCompleteChunk{}
	case ChunkAbort:
		c = &AbortChunk{}
	case ChunkHeartbeat:
		c = &HeartbeatChunk{Info: append([]byte(nil), body...)}
	case ChunkHeartbeatAck:
		c = &HeartbeatAckChunk{Info: append([]byte(nil), body...)}
	default:
		return nil, 0, rtcerr.New(rtcerr.KindProtocolParse, "sctp: unknown chunk type %d", typ)
	}
	if err != nil {
		return nil, 0, err
	}
	return c, padded, nil
}

// InitChunk carries the INIT/INIT-ACK parameters, per spec.md §4.9. The
// state cookie (INIT-ACK only) is 16 random bytes, and the responder does
// not check the cookie that comes back in COOKIE-ECHO: the associating
// endpoints already share an authenticated DTLS channel.
type InitChunk struct {
	IsAck              bool
	InitiateTag        uint32
	AdvertisedRwnd     uint32
	OutboundStreams    uint16
	InboundStreams     uint16
	InitialTSN         uint32
	Cookie             []byte // INIT-ACK only
}

func (c *InitChunk) chunkType() byte {
	if c.IsAck {
		return ChunkInitAck
	}
	return ChunkInit
}

func (c *InitChunk) marshalBody() []byte {
	w := packet.NewWriterSize(16 + len(c.Cookie))
	w.WriteUint32(c.InitiateTag)
	w.WriteUint32(c.AdvertisedRwnd)
	w.WriteUint16(c.OutboundStreams)
	w.WriteUint16(c.InboundStreams)
	w.WriteUint32(c.InitialTSN)
	if c.IsAck {
		w.WriteUint16(1) // state cookie parameter type, this association's own encoding
		w.WriteUint16(uint16(4 + len(c.Cookie)))
		w.WriteSlice(c.Cookie)
	}
	return w.Bytes()
}

func parseInitBody(body []byte, isAck bool) (*InitChunk, error) {
	r := packet.NewReader(body)
	if err := r.CheckRemaining(16); err != nil {
		return nil, rtcerr.Wrap(rtcerr.KindProtocolParse, "sctp: short INIT body", err)
	}
	c := &InitChunk{IsAck: isAck}
	c.InitiateTag = r.ReadUint32()
	c.AdvertisedRwnd = r.ReadUint32()
	c.OutboundStreams = r.ReadUint16()
	c.InboundStreams = r.ReadUint16()
	c.InitialTSN = r.ReadUint32()
	if isAck && r.Remaining() >= 4 {
		r.ReadUint16() // parameter type
		paramLen := int(r.ReadUint16())
		cookieLen := paramLen - 4
		if cookieLen > 0 && r.Remaining() >= cookieLen {
			c.Cookie = r.ReadSlice(cookieLen)
		}
	}
	return c, nil
}

// DataChunk carries one user-message fragment. This association does not
// fragment messages across chunks, per spec.md §4.9's scope.
type DataChunk struct {
	TSN      uint32
	StreamID uint16
	StreamSeq uint16
	PPID     uint32
	Unordered bool
	Payload  []byte
}

func (c *DataChunk) chunkType() byte { return ChunkData }

func (c *DataChunk) marshalBody() []byte {
	w := packet.NewWriterSize(12 + len(c.Payload))
	w.WriteUint32(c.TSN)
	w.WriteUint16(c.StreamID)
	w.WriteUint16(c.StreamSeq)
	w.WriteUint32(c.PPID)
	w.WriteSlice(c.Payload)
	return w.Bytes()
}

// flags returns the B/E/U bits this implementation always sets (a DATA
// chunk is always one complete, unfragmented message).
func (c *DataChunk) flags() byte {
	const beginBit, endBit = 0x02, 0x01
	f := byte(beginBit | endBit)
	if c.Unordered {
		f |= 0x04
	}
	return f
}

func parseDataBody(body []byte) (*DataChunk, error) {
	r := packet.NewReader(body)
	if err := r.CheckRemaining(12); err != nil {
		return nil, rtcerr.Wrap(rtcerr.KindProtocolParse, "sctp: short DATA body", err)
	}
	c := &DataChunk{}
	c.TSN = r.ReadUint32()
	c.StreamID = r.ReadUint16()
	c.StreamSeq = r.ReadUint16()
	c.PPID = r.ReadUint32()
	c.Payload = r.ReadRemaining()
	return c, nil
}

// GapAckBlock is one SACK gap-ack block, relative to CumulativeTSNAck.
type GapAckBlock struct {
	Start uint16
	End   uint16
}

// SackChunk acknowledges cumulative TSN plus out-of-order gap-ack blocks,
// per spec.md §4.9.
type SackChunk struct {
	CumulativeTSNAck uint32
	AdvertisedRwnd   uint32
	GapAckBlocks     []GapAckBlock
	DuplicateTSNs    []uint32
}

func (c *SackChunk) chunkType() byte { return ChunkSack }

func (c *SackChunk) marshalBody() []byte {
	w := packet.NewWriterSize(12 + 4*len(c.GapAckBlocks) + 4*len(c.DuplicateTSNs))
	w.WriteUint32(c.CumulativeTSNAck)
	w.WriteUint32(c.AdvertisedRwnd)
	w.WriteUint16(uint16(len(c.GapAckBlocks)))
	w.WriteUint16(uint16(len(c.DuplicateTSNs)))
	for _, g := range c.GapAckBlocks {
		w.WriteUint16(g.Start)
		w.WriteUint16(g.End)
	}
	for _, d := range c.DuplicateTSNs {
		w.WriteUint32(d)
	}
	return w.Bytes()
}

func parseSackBody(body []byte) (*SackChunk, error) {
	r := packet.NewReader(body)
	if err := r.CheckRemaining(12); err != nil {
		return nil, rtcerr.Wrap(rtcerr.KindProtocolParse, "sctp: short SACK body", err)
	}
	c := &SackChunk{}
	c.CumulativeTSNAck = r.ReadUint32()
	c.AdvertisedRwnd = r.ReadUint32()
	numGap := int(r.ReadUint16())
	numDup := int(r.ReadUint16())
	for i := 0; i < numGap; i++ {
		if err := r.CheckRemaining(4); err != nil {
			return nil, rtcerr.Wrap(rtcerr.KindProtocolParse, "sctp: truncated gap-ack block", err)
		}
		c.GapAckBlocks = append(c.GapAckBlocks, GapAckBlock{Start: r.ReadUint16(), End: r.ReadUint16()})
	}
	for i := 0; i < numDup; i++ {
		if err := r.CheckRemaining(4); err != nil {
			return nil, rtcerr.Wrap(rtcerr.KindProtocolParse, "sctp: truncated duplicate TSN list", err)
		}
		c.DuplicateTSNs = append(c.DuplicateTSNs, r.ReadUint32())
	}
	return c, nil
}

// CookieEchoChunk echoes the INIT-ACK's state cookie back to the responder.
type CookieEchoChunk struct{ Cookie []byte }

func (c *CookieEchoChunk) chunkType() byte     { return ChunkCookieEcho }
func (c *CookieEchoChunk) marshalBody() []byte { return c.Cookie }

// CookieAckChunk confirms association establishment.
type CookieAckChunk struct{}

func (c *CookieAckChunk) chunkType() byte     { return ChunkCookieAck }
func (c *CookieAckChunk) marshalBody() []byte { return nil }

// ShutdownChunk begins graceful teardown.
type ShutdownChunk struct{ CumulativeTSNAck uint32 }

func (c *ShutdownChunk) chunkType() byte { return ChunkShutdown }
func (c *ShutdownChunk) marshalBody() []byte {
	w := packet.NewWriterSize(4)
	w.WriteUint32(c.CumulativeTSNAck)
	return w.Bytes()
}

func parseShutdownBody(body []byte) (*ShutdownChunk, error) {
	r := packet.NewReader(body)
	if err := r.CheckRemaining(4); err != nil {
		return nil, rtcerr.Wrap(rtcerr.KindProtocolParse, "sctp: short SHUTDOWN body", err)
	}
	return &ShutdownChunk{CumulativeTSNAck: r.ReadUint32()}, nil
}

// ShutdownAckChunk acknowledges SHUTDOWN.
type ShutdownAckChunk struct{}

func (c *ShutdownAckChunk) chunkType() byte     { return ChunkShutdownAck }
func (c *ShutdownAckChunk) marshalBody() []byte { return nil }

// ShutdownCompleteChunk ends the four-way shutdown exchange.
type ShutdownCompleteChunk struct{}

func (c *ShutdownCompleteChunk) chunkType() byte     { return ChunkShutdownComplete }
func (c *ShutdownCompleteChunk) marshalBody() []byte { return nil }

// AbortChunk immediately terminates the association.
type AbortChunk struct{}

func (c *AbortChunk) chunkType() byte     { return ChunkAbort }
func (c *AbortChunk) marshalBody() []byte { return nil }

// HeartbeatChunk/HeartbeatAckChunk are accepted on the wire but this
// association neither sends nor requires them: DTLS/ICE already provide
// liveness detection, so heartbeats would be redundant per spec.md §4.9's
// scope (no mention of SCTP-level heartbeats).
type HeartbeatChunk struct{ Info []byte }

func (c *HeartbeatChunk) chunkType() byte     { return ChunkHeartbeat }
func (c *HeartbeatChunk) marshalBody() []byte { return c.Info }

type HeartbeatAckChunk struct{ Info []byte }

func (c *HeartbeatAckChunk) chunkType() byte     { return ChunkHeartbeatAck }
func (c *HeartbeatAckChunk) marshalBody() []byte { return c.Info }
