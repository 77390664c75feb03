// Package rtcore is the connection orchestrator from spec.md §4.12,
// adapted from the teacher's root-package PeerConnection: it owns the DTLS
// engine, SRTP context, SCTP association, and jitter buffers exclusively,
// drives the offer/answer lifecycle, and wires video/audio send+receive
// threads around them. Every other package in this module is a worker or
// collaborator the orchestrator assembles; nothing outside this package
// drives the end-to-end connection lifecycle.
package rtcore

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/lanikai/rtcore/internal/config"
	"github.com/lanikai/rtcore/internal/datachannel"
	"github.com/lanikai/rtcore/internal/dtls"
	"github.com/lanikai/rtcore/internal/events"
	"github.com/lanikai/rtcore/internal/filetransfer"
	"github.com/lanikai/rtcore/internal/ice"
	"github.com/lanikai/rtcore/internal/jitter"
	"github.com/lanikai/rtcore/internal/media"
	"github.com/lanikai/rtcore/internal/mux"
	"github.com/lanikai/rtcore/internal/rtclog"
	"github.com/lanikai/rtcore/internal/rtcp"
	"github.com/lanikai/rtcore/internal/rtp"
	"github.com/lanikai/rtcore/internal/sctp"
	"github.com/lanikai/rtcore/internal/sdp"
	"github.com/lanikai/rtcore/internal/srtp"
)

var logger = rtclog.New("rtcore")

const (
	videoSSRC   = 0x1234abcd
	audioSSRC   = 0x5678ef01
	controlSSRC = 0x9abcdef0

	rtpBufferSize = 1500

	statsTickInterval = time.Second
	rtcpSRInterval    = 5 * time.Second
)

// Connection is one peer-to-peer call, owning every shared-mutable engine
// named in spec.md §3's Ownership paragraph: the DTLS engine, SRTP
// context, SCTP association, and jitter buffers. Worker goroutines are
// handed reference-counted, mutex-protected access through the methods on
// this struct, never the raw engines themselves.
type Connection struct {
	cfg config.Config

	callID string

	mu    sync.Mutex
	state events.ConnectionState

	events chan events.Event

	cert        *dtls.Certificate
	fingerprint string

	isOfferer    bool
	localSetup   sdp.Setup
	dtlsIsClient bool

	localDesc  sdp.Session
	remoteDesc sdp.Session

	localUfrag, localPwd string

	iceAgent *ice.Agent
	udpConn  *net.UDPConn

	netMux       *mux.Mux
	dtlsEndpoint *mux.Endpoint
	rtpEndpoint  *mux.Endpoint
	rtcpEndpoint *mux.Endpoint

	dtlsEngine     *dtls.Engine
	keyingMaterial []byte
	keyingProfile  uint16

	srtpCtx *srtp.Context

	assoc      *sctp.Association
	dcManager  *datachannel.Manager
	ftManager  *filetransfer.Manager

	videoSend *videoSendWorker
	audioSend *audioSendWorker

	controlSeq uint16

	recvMu     sync.Mutex
	videoRecv  *receiveTrack
	audioRecv  *receiveTrack

	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once
	done      chan struct{}
}

// receiveTrack bundles the per-SSRC state the receive thread maintains for
// one remote media stream, per spec.md §3/§4.8.
type receiveTrack struct {
	ssrc     uint32
	buffer   *jitter.Buffer
	stats    *rtp.PacketStats
	jitterT  *rtp.JitterTracker
	pipeline *media.Pipeline
	out      *media.Broadcaster
}

// New constructs a Connection in state New around cert, the long-lived
// process DTLS certificate the caller generated once per spec.md §9.
func New(cfg config.Config, cert *dtls.Certificate, callID string) (*Connection, error) {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Connection{
		cfg:    cfg,
		callID: callID,
		cert:   cert,
		events: make(chan events.Event, 64),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	c.fingerprint = cert.Fingerprint
	c.setState(events.StateNew)
	return c, nil
}

// Events returns the channel of named event variants (spec.md §7): every
// user-visible failure and lifecycle transition this core reports, never a
// bare error string.
func (c *Connection) Events() <-chan events.Event {
	return c.events
}

func (c *Connection) setState(s events.ConnectionState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	c.emit(events.Event{Type: events.ConnectionStateChanged, ConnectionState: s})
}

// State returns the connection's current lifecycle state.
func (c *Connection) State() events.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Connection) emit(ev events.Event) {
	select {
	case c.events <- ev:
	default:
		logger.Warn("rtcore: event channel full, dropping %v", ev.Type)
	}
}

func randomToken(n int) string {
	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	buf := make([]byte, n)
	_, _ = rand.Read(buf)
	for i := range buf {
		buf[i] = alphabet[int(buf[i])%len(alphabet)]
	}
	return string(buf)
}

func sessionID() string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return fmt.Sprintf("%d", binary.BigEndian.Uint64(b[:]))
}

// Close tears the connection down: it sends SCTP SHUTDOWN and RTCP BYE on
// a graceful close and skips both on abrupt close, per spec.md §5.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		if c.assoc != nil && c.assoc.IsEstablished() {
			_ = c.assoc.Shutdown(time.Now())
			c.flushSCTPOutput()
		}
		if c.videoRecv != nil {
			c.sendRTCPBye(videoSSRC)
		}
		if c.audioRecv != nil {
			c.sendRTCPBye(audioSSRC)
		}

		c.cancel()
		if c.videoSend != nil {
			c.videoSend.Close()
		}
		if c.audioSend != nil {
			c.audioSend.Close()
		}
		if c.videoRecv != nil && c.videoRecv.pipeline != nil {
			c.videoRecv.pipeline.Close()
		}
		if c.audioRecv != nil && c.audioRecv.pipeline != nil {
			c.audioRecv.pipeline.Close()
		}
		if c.netMux != nil {
			c.netMux.Close()
		}
		if c.iceAgent != nil {
			c.iceAgent.Close()
		}
		c.setState(events.StateClosed)
		close(c.done)
	})
}

func (c *Connection) sendRTCPBye(ssrc uint32) {
	bye := &rtcp.Bye{SSRCs: []uint32{ssrc}}
	if err := c.sendRTCP(bye.Marshal()); err != nil {
		logger.Warn("rtcore: failed to send RTCP BYE for ssrc %d: %v", ssrc, err)
	}
}
