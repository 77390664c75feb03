package sctp

import (
	"crypto/rand"
	"encoding/binary"
	"sort"
	"sync"
	"time"

	"github.com/lanikai/rtcore/internal/rtcerr"
	"github.com/lanikai/rtcore/internal/rtclog"
)

var logger = rtclog.New("sctp")

// State is the association's lifecycle state, per spec.md §3.
type State int

const (
	StateClosed State = iota
	StateCookieWait
	StateCookieEchoed
	StateEstablished
	StateShutdownPending
	StateShutdownSent
	StateShutdownAckSent
)

const handshakeTimeout = 10 * time.Second
const retransmitInterval = 500 * time.Millisecond
const defaultAdvertisedRwnd = 1 << 20

// OutputKind discriminates Association.PollOutput's return values.
type OutputKind int

const (
	OutputNone OutputKind = iota
	OutputPacket
	OutputEstablished
	OutputData
	OutputClosed
)

// Output is one value yielded by PollOutput.
type Output struct {
	Kind     OutputKind
	Packet   []byte
	StreamID uint16
	PPID     uint32
	Data     []byte
}

type streamState struct {
	nextSendSeq uint16
	expectedSeq uint16
	reorder     map[uint16]*DataChunk
}

// Association is a sans-I/O SCTP association carrying WebRTC data channels,
// per spec.md §4.9. It never touches a socket: outgoing packets are
// delivered through PollOutput for the caller to hand to
// dtls.Engine.SendApplicationData, and inbound DTLS application-data
// payloads are fed in via HandleApplicationData.
type Association struct {
	mu sync.Mutex

	isClient bool
	state    State

	localVerificationTag  uint32
	remoteVerificationTag uint32

	localInitialTSN uint32
	localNextTSN    uint32
	peerCumulativeAck uint32 // highest TSN of ours the peer has cumulatively acked

	peerInitialTSN    uint32
	peerCumulativeTSN uint32 // highest contiguous TSN received from the peer
	peerOutOfOrder    map[uint32]struct{}

	cookie []byte

	streams map[uint16]*streamState

	startedAt time.Time
	lastSend  time.Time
	deadline  time.Time

	outbox []Output
}

// NewAssociation constructs an Association. isClient mirrors the DTLS role:
// per RFC 8831, the DTLS client also initiates the SCTP association.
func NewAssociation(isClient bool) *Association {
	return &Association{
		isClient:       isClient,
		peerOutOfOrder: make(map[uint32]struct{}),
		streams:        make(map[uint16]*streamState),
	}
}

func randomUint32() uint32 {
	var b [4]byte
	_, _ = rand.Read(b[:])
	return binary.BigEndian.Uint32(b[:])
}

// Start begins the handshake: the client sends INIT immediately; the server
// waits for one to arrive.
func (a *Association) Start(now time.Time) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state != StateClosed {
		return rtcerr.New(rtcerr.KindApplication, "sctp: already started")
	}
	a.localVerificationTag = randomUint32()
	a.localInitialTSN = randomUint32()
	a.localNextTSN = a.localInitialTSN
	a.startedAt = now
	a.deadline = now.Add(handshakeTimeout)

	if a.isClient {
		a.state = StateCookieWait
		a.sendInit(now)
	}
	return nil
}

func (a *Association) sendPacket(chunks ...Chunk) {
	p := &Packet{VerificationTag: a.remoteVerificationTag, Chunks: chunks}
	a.outbox = append(a.outbox, Output{Kind: OutputPacket, Packet: p.Marshal()})
}

func (a *Association) sendInit(now time.Time) {
	a.sendPacket(&InitChunk{
		InitiateTag:     a.localVerificationTag,
		AdvertisedRwnd:  defaultAdvertisedRwnd,
		OutboundStreams: 65535,
		InboundStreams:  65535,
		InitialTSN:      a.localInitialTSN,
	})
	a.lastSend = now
}

// HandleApplicationData parses one inbound SCTP packet (already unwrapped
// from DTLS application data by the caller) and advances the association.
func (a *Association) HandleApplicationData(buf []byte, now time.Time) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	p, err := Parse(buf)
	if err != nil {
		return err // ProtocolParse per spec.md §7: caller drops, continues
	}
	for _, c := range p.Chunks {
		if err := a.handleChunk(c, now); err != nil {
			return err
		}
	}
	return nil
}

func (a *Association) handleChunk(c Chunk, now time.Time) error {
	switch chunk := c.(type) {
	case *InitChunk:
		if chunk.IsAck {
			return a.handleInitAck(chunk, now)
		}
		return a.handleInit(chunk, now)
	case *CookieEchoChunk:
		return a.handleCookieEcho(chunk, now)
	case *CookieAckChunk:
		return a.handleCookieAck(now)
	case *DataChunk:
		a.handleData(chunk, now)
		return nil
	case *SackChunk:
		a.handleSack(chunk)
		return nil
	case *ShutdownChunk:
		return a.handleShutdown(chunk, now)
	case *ShutdownAckChunk:
		return a.handleShutdownAck(now)
	case *ShutdownCompleteChunk:
		a.state = StateClosed
		a.outbox = append(a.outbox, Output{Kind: OutputClosed})
		return nil
	case *AbortChunk:
		a.state = StateClosed
		a.outbox = append(a.outbox, Output{Kind: OutputClosed})
		return nil
	default:
		return nil
	}
}

func (a *Association) handleInit(c *InitChunk, now time.Time) error {
	if a.isClient {
		return rtcerr.New(rtcerr.KindProtocolParse, "sctp: unexpected INIT in client role")
	}
	a.remoteVerificationTag = c.InitiateTag
	a.peerInitialTSN = c.InitialTSN
	a.peerCumulativeTSN = c.InitialTSN - 1

	a.localVerificationTag = randomUint32()
	a.localInitialTSN = randomUint32()
	a.localNextTSN = a.localInitialTSN

	a.cookie = make([]byte, 16)
	_, _ = rand.Read(a.cookie)

	a.sendPacket(&InitChunk{
		IsAck:           true,
		InitiateTag:     a.localVerificationTag,
		AdvertisedRwnd:  defaultAdvertisedRwnd,
		OutboundStreams: 65535,
		InboundStreams:  65535,
		InitialTSN:      a.localInitialTSN,
		Cookie:          a.cookie,
	})
	a.lastSend = now
	return nil
}

func (a *Association) handleInitAck(c *InitChunk, now time.Time) error {
	if !a.isClient || a.state != StateCookieWait {
		return nil
	}
	a.remoteVerificationTag = c.InitiateTag
	a.peerInitialTSN = c.InitialTSN
	a.peerCumulativeTSN = c.InitialTSN - 1

	a.state = StateCookieEchoed
	a.sendPacket(&CookieEchoChunk{Cookie: c.Cookie})
	a.lastSend = now
	return nil
}

func (a *Association) handleCookieEcho(c *CookieEchoChunk, now time.Time) error {
	if a.isClient {
		return rtcerr.New(rtcerr.KindProtocolParse, "sctp: unexpected COOKIE-ECHO in client role")
	}
	a.sendPacket(&CookieAckChunk{})
	a.lastSend = now
	a.establish(now)
	return nil
}

func (a *Association) handleCookieAck(now time.Time) error {
	if !a.isClient || a.state != StateCookieEchoed {
		return nil
	}
	a.establish(now)
	return nil
}

func (a *Association) establish(now time.Time) {
	a.state = StateEstablished
	a.outbox = append(a.outbox, Output{Kind: OutputEstablished})
}

// IsEstablished reports whether the association has completed its
// handshake and can carry DATA chunks.
func (a *Association) IsEstablished() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state == StateEstablished
}

func (a *Association) streamFor(id uint16) *streamState {
	s, ok := a.streams[id]
	if !ok {
		s = &streamState{reorder: make(map[uint16]*DataChunk)}
		a.streams[id] = s
	}
	return s
}

func (a *Association) handleData(c *DataChunk, now time.Time) {
	rel := c.TSN - a.peerInitialTSN
	if c.TSN == a.peerCumulativeTSN+1 {
		a.peerCumulativeTSN = c.TSN
		for {
			if _, ok := a.peerOutOfOrder[a.peerCumulativeTSN+1]; !ok {
				break
			}
			delete(a.peerOutOfOrder, a.peerCumulativeTSN+1)
			a.peerCumulativeTSN++
		}
	} else if c.TSN > a.peerCumulativeTSN {
		a.peerOutOfOrder[c.TSN] = struct{}{}
	} // else: duplicate or already-acked, ignore

	_ = rel
	a.deliverData(c)
	a.sendSack(now)
}

func (a *Association) deliverData(c *DataChunk) {
	if c.Unordered {
		a.outbox = append(a.outbox, Output{Kind: OutputData, StreamID: c.StreamID, PPID: c.PPID, Data: c.Payload})
		return
	}
	s := a.streamFor(c.StreamID)
	if c.StreamSeq != s.expectedSeq {
		s.reorder[c.StreamSeq] = c
		return
	}
	a.outbox = append(a.outbox, Output{Kind: OutputData, StreamID: c.StreamID, PPID: c.PPID, Data: c.Payload})
	s.expectedSeq++
	for {
		next, ok := s.reorder[s.expectedSeq]
		if !ok {
			break
		}
		delete(s.reorder, s.expectedSeq)
		a.outbox = append(a.outbox, Output{Kind: OutputData, StreamID: next.StreamID, PPID: next.PPID, Data: next.Payload})
		s.expectedSeq++
	}
}

func (a *Association) sendSack(now time.Time) {
	sack := &SackChunk{
		CumulativeTSNAck: a.peerCumulativeTSN,
		AdvertisedRwnd:   defaultAdvertisedRwnd,
	}
	if len(a.peerOutOfOrder) > 0 {
		gaps := make([]uint32, 0, len(a.peerOutOfOrder))
		for tsn := range a.peerOutOfOrder {
			gaps = append(gaps, tsn)
		}
		sort.Slice(gaps, func(i, j int) bool { return gaps[i] < gaps[j] })
		start := gaps[0]
		prev := gaps[0]
		for _, tsn := range gaps[1:] {
			if tsn != prev+1 {
				sack.GapAckBlocks = append(sack.GapAckBlocks, GapAckBlock{
					Start: uint16(start - a.peerCumulativeTSN),
					End:   uint16(prev - a.peerCumulativeTSN),
				})
				start = tsn
			}
			prev = tsn
		}
		sack.GapAckBlocks = append(sack.GapAckBlocks, GapAckBlock{
			Start: uint16(start - a.peerCumulativeTSN),
			End:   uint16(prev - a.peerCumulativeTSN),
		})
	}
	a.sendPacket(sack)
	a.lastSend = now
}

func (a *Association) handleSack(c *SackChunk) {
	if c.CumulativeTSNAck-a.localInitialTSN+1 > a.peerCumulativeAck-a.localInitialTSN+1 || a.peerCumulativeAck == 0 {
		a.peerCumulativeAck = c.CumulativeTSNAck
	}
}

func (a *Association) handleShutdown(c *ShutdownChunk, now time.Time) error {
	a.sendPacket(&ShutdownAckChunk{})
	a.lastSend = now
	a.state = StateClosed
	a.outbox = append(a.outbox, Output{Kind: OutputClosed})
	return nil
}

func (a *Association) handleShutdownAck(now time.Time) error {
	a.sendPacket(&ShutdownCompleteChunk{})
	a.lastSend = now
	a.state = StateClosed
	a.outbox = append(a.outbox, Output{Kind: OutputClosed})
	return nil
}

// SendData enqueues one unfragmented DATA chunk on streamID with the given
// PPID (50=DCEP, 51=string, 53=binary, 56/57=empty variants, per spec.md
// §6), returning an error if the association is not yet Established.
func (a *Association) SendData(streamID uint16, ppid uint32, payload []byte, unordered bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state != StateEstablished {
		return rtcerr.New(rtcerr.KindApplication, "sctp: association not established")
	}

	s := a.streamFor(streamID)
	seq := s.nextSendSeq
	if !unordered {
		s.nextSendSeq++
	}

	c := &DataChunk{
		TSN:       a.localNextTSN,
		StreamID:  streamID,
		StreamSeq: seq,
		PPID:      ppid,
		Unordered: unordered,
		Payload:   payload,
	}
	a.localNextTSN++
	a.sendPacket(c)
	return nil
}

// Shutdown begins graceful teardown, per spec.md §4.9/§5.
func (a *Association) Shutdown(now time.Time) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state != StateEstablished {
		return rtcerr.New(rtcerr.KindApplication, "sctp: cannot shut down association in this state")
	}
	a.state = StateShutdownSent
	a.sendPacket(&ShutdownChunk{CumulativeTSNAck: a.peerCumulativeTSN})
	a.lastSend = now
	return nil
}

// HandleTimeout drives handshake retransmission and the handshake deadline.
func (a *Association) HandleTimeout(now time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state == StateEstablished || a.state == StateClosed {
		return
	}
	if now.After(a.deadline) {
		logger.Warn("sctp handshake timed out after %s", handshakeTimeout)
		a.state = StateClosed
		return
	}
	if now.Sub(a.lastSend) < retransmitInterval {
		return
	}
	switch a.state {
	case StateCookieWait:
		a.sendInit(now)
	}
}

// PollOutput drains and returns the next queued Output, if any.
func (a *Association) PollOutput() (Output, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.outbox) == 0 {
		return Output{}, false
	}
	out := a.outbox[0]
	a.outbox = a.outbox[1:]
	return out, true
}
