package dtls

import (
	"crypto/ecdh"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"hash"
	"io"
	"sync"
	"time"

	"golang.org/x/crypto/hkdf"

	"github.com/lanikai/rtcore/internal/rtcerr"
	"github.com/lanikai/rtcore/internal/rtclog"
)

func sha256New() hash.Hash { return sha256.New() }

var logger = rtclog.New("dtls")

// Role is the negotiated DTLS client/server role, derived from SDP
// `a=setup:` per spec.md §3/§9.
type Role int

const (
	RoleClient Role = iota
	RoleServer
)

// State is the engine's handshake state.
type State int

const (
	StateInitial State = iota
	StateHandshaking
	StateConnected
	StateFailed
)

// OutputKind discriminates the variants PollOutput may return, mirroring
// spec.md §4.4's `poll_output() -> Packet | Timeout(instant) | Connected |
// PeerCert | KeyingMaterial(km,profile) | ApplicationData(bytes)`.
type OutputKind int

const (
	OutputNone OutputKind = iota
	OutputPacket
	OutputTimeout
	OutputConnected
	OutputPeerCert
	OutputKeyingMaterial
	OutputApplicationData
)

// Output is one value yielded by PollOutput.
type Output struct {
	Kind            OutputKind
	Packet          []byte
	Timeout         time.Time
	PeerCertificate []byte
	KeyingMaterial  []byte
	Profile         uint16
	ApplicationData []byte
}

const handshakeTimeout = 10 * time.Second
const retransmitInterval = 500 * time.Millisecond

// Engine is the sans-I/O DTLS handshake engine from spec.md §4.4: driven
// entirely through HandlePacket/HandleTimeout/SendApplicationData/
// PollOutput, with no direct socket access of its own. The orchestrator
// polls it in a tight loop (>=100ms granularity) until IsConnected() or the
// 10s handshake budget elapses.
type Engine struct {
	mu sync.Mutex

	role        Role
	cert        *Certificate
	expectedFpr string // remote fingerprint from SDP, required before Connected

	state State

	ecdhKey      *ecdh.PrivateKey
	localRandom  [32]byte
	peerRandom   [32]byte
	peerCert     []byte
	peerPubKey   []byte
	profile      uint16

	startedAt      time.Time
	lastSend       time.Time
	deadline       time.Time
	handshakeDone  bool

	outbox []Output

	localSeq uint16
}

// NewEngine constructs an Engine for one connection. expectedFingerprint is
// the remote certificate fingerprint extracted from the peer's SDP.
func NewEngine(cert *Certificate, role Role, expectedFingerprint string) *Engine {
	return &Engine{
		cert:        cert,
		role:        role,
		expectedFpr: expectedFingerprint,
	}
}

// Start begins the handshake: the client sends ClientHello immediately;
// the server waits for one to arrive.
func (e *Engine) Start(now time.Time) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateInitial {
		return fmt.Errorf("dtls: already started")
	}

	key, err := ecdh.X25519().GenerateKey(rand.Reader)
	if err != nil {
		return fmt.Errorf("dtls: generate ephemeral key: %w", err)
	}
	e.ecdhKey = key
	if _, err := rand.Read(e.localRandom[:]); err != nil {
		return fmt.Errorf("dtls: generate random: %w", err)
	}

	e.state = StateHandshaking
	e.startedAt = now
	e.deadline = now.Add(handshakeTimeout)

	if e.role == RoleClient {
		e.sendClientHello(now)
	}
	return nil
}

func (e *Engine) sendClientHello(now time.Time) {
	body := clientHelloBody{
		Random:      e.localRandom,
		Profiles:    []uint16{ProfileAES128CmHmacSha1_80, ProfileAeadAes128Gcm, ProfileAeadAes256Gcm},
		Certificate: e.cert.DER,
	}
	copy(body.PublicKey[:], e.ecdhKey.PublicKey().Bytes())

	e.emitHandshake(handshakeClientHello, body.marshal())
	e.lastSend = now
}

func (e *Engine) sendServerHello(now time.Time, chosenProfile uint16) {
	body := serverHelloBody{
		Random:      e.localRandom,
		Profile:     chosenProfile,
		Certificate: e.cert.DER,
	}
	copy(body.PublicKey[:], e.ecdhKey.PublicKey().Bytes())

	e.emitHandshake(handshakeServerHello, body.marshal())
	e.lastSend = now
}

func (e *Engine) sendFinished(now time.Time) {
	e.emitHandshake(handshakeFinished, nil)
	e.lastSend = now
}

func (e *Engine) emitHandshake(t handshakeType, body []byte) {
	hh := handshakeHeader{Type: t, MessageSeq: e.localSeq}
	e.localSeq++
	frag := hh.marshal(body)
	rec := record{ContentType: ContentTypeHandshake, SequenceNumber: e.localSeq, Fragment: frag}
	e.outbox = append(e.outbox, Output{Kind: OutputPacket, Packet: rec.marshal()})
}

// HandlePacket feeds one inbound DTLS record (already classified by
// internal/mux) into the engine.
func (e *Engine) HandlePacket(buf []byte, now time.Time) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == StateFailed || e.state == StateConnected && len(buf) == 0 {
		return nil
	}

	rec, err := parseRecord(buf)
	if err != nil {
		return err // ProtocolParse per spec.md §7: caller drops, continues
	}

	switch rec.ContentType {
	case ContentTypeHandshake:
		return e.handleHandshakeFragment(rec.Fragment, now)
	case ContentTypeApplicationData:
		if e.state != StateConnected {
			return nil // discard pre-connection, per spec.md §4.3
		}
		e.outbox = append(e.outbox, Output{Kind: OutputApplicationData, ApplicationData: rec.Fragment})
		return nil
	default:
		return nil
	}
}

func (e *Engine) handleHandshakeFragment(frag []byte, now time.Time) error {
	hh, body, err := parseHandshakeHeader(frag)
	if err != nil {
		return err
	}

	switch hh.Type {
	case handshakeClientHello:
		if e.role != RoleServer {
			return rtcerr.New(rtcerr.KindProtocolParse, "dtls: unexpected ClientHello in client role")
		}
		ch, err := parseClientHelloBody(body)
		if err != nil {
			return err
		}
		if !VerifyFingerprint(ch.Certificate, e.expectedFpr) {
			e.state = StateFailed
			return rtcerr.New(rtcerr.KindCryptographic, "dtls: client certificate fingerprint mismatch")
		}
		e.peerCert = ch.Certificate
		e.peerRandom = ch.Random
		e.peerPubKey = append([]byte(nil), ch.PublicKey[:]...)
		e.profile = chooseProfile(ch.Profiles)
		e.outbox = append(e.outbox, Output{Kind: OutputPeerCert, PeerCertificate: e.peerCert})
		e.sendServerHello(now, e.profile)
		return nil

	case handshakeServerHello:
		if e.role != RoleClient {
			return rtcerr.New(rtcerr.KindProtocolParse, "dtls: unexpected ServerHello in server role")
		}
		sh, err := parseServerHelloBody(body)
		if err != nil {
			return err
		}
		if !VerifyFingerprint(sh.Certificate, e.expectedFpr) {
			e.state = StateFailed
			return rtcerr.New(rtcerr.KindCryptographic, "dtls: peer certificate fingerprint mismatch")
		}
		e.peerCert = sh.Certificate
		e.peerRandom = sh.Random
		e.peerPubKey = append([]byte(nil), sh.PublicKey[:]...)
		e.profile = sh.Profile
		e.outbox = append(e.outbox, Output{Kind: OutputPeerCert, PeerCertificate: e.peerCert})
		e.sendFinished(now)
		e.finishHandshake(now)
		return nil

	case handshakeFinished:
		if e.role != RoleServer {
			return nil
		}
		e.sendFinished(now)
		e.finishHandshake(now)
		return nil

	default:
		return rtcerr.New(rtcerr.KindProtocolParse, "dtls: unknown handshake type %d", hh.Type)
	}
}

func chooseProfile(offered []uint16) uint16 {
	for _, want := range []uint16{ProfileAES128CmHmacSha1_80, ProfileAeadAes128Gcm, ProfileAeadAes256Gcm} {
		for _, p := range offered {
			if p == want {
				return want
			}
		}
	}
	return ProfileAES128CmHmacSha1_80
}

func (e *Engine) finishHandshake(now time.Time) {
	e.state = StateConnected
	e.handshakeDone = true
	e.outbox = append(e.outbox, Output{Kind: OutputConnected})

	km, err := e.exportKeyingMaterial()
	if err == nil {
		e.outbox = append(e.outbox, Output{Kind: OutputKeyingMaterial, KeyingMaterial: km, Profile: e.profile})
	}
}

// exportKeyingMaterial implements RFC 5705's EXTRACTOR-dtls_srtp: derive
// the shared secret via X25519, then HKDF-expand labeled with the two
// randoms into client_write_key|client_write_salt|server_write_key|
// server_write_salt, per spec.md §3.
func (e *Engine) exportKeyingMaterial() ([]byte, error) {
	peerPub, err := ecdh.X25519().NewPublicKey(e.peerPubKey)
	if err != nil {
		return nil, fmt.Errorf("dtls: invalid peer public key: %w", err)
	}
	shared, err := e.ecdhKey.ECDH(peerPub)
	if err != nil {
		return nil, fmt.Errorf("dtls: ECDH failed: %w", err)
	}

	const kmLength = 2 * (16 + 14) // client_write_key|salt + server_write_key|salt
	clientRandom, serverRandom := e.localRandom, e.peerRandom
	if e.role == RoleServer {
		clientRandom, serverRandom = e.peerRandom, e.localRandom
	}
	info := append([]byte("EXTRACTOR-dtls_srtp"), clientRandom[:]...)
	info = append(info, serverRandom[:]...)
	r := hkdf.New(sha256New, shared, nil, info)
	km := make([]byte, kmLength)
	if _, err := io.ReadFull(r, km); err != nil {
		return nil, fmt.Errorf("dtls: HKDF expand: %w", err)
	}
	return km, nil
}

// IsConnected reports whether the handshake has completed.
func (e *Engine) IsConnected() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state == StateConnected
}

// IsFailed reports whether the handshake aborted, e.g. on a fingerprint
// mismatch (spec.md §4.4). The caller should treat this as fatal rather
// than waiting out the rest of the handshake deadline.
func (e *Engine) IsFailed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state == StateFailed
}

// HandleTimeout drives retransmission and the 10s handshake deadline. The
// orchestrator calls this at >=100ms granularity, per spec.md §4.4.
func (e *Engine) HandleTimeout(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateHandshaking {
		return
	}
	if now.After(e.deadline) {
		e.state = StateFailed
		logger.Warn("dtls handshake timed out after %s", handshakeTimeout)
		return
	}
	if e.role == RoleClient && now.Sub(e.lastSend) >= retransmitInterval && e.peerPubKey == nil {
		e.sendClientHello(now)
	}
}

// SendApplicationData wraps app payload (e.g. an SCTP packet) in a DTLS
// application-data record, per spec.md §4.9.
func (e *Engine) SendApplicationData(payload []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateConnected {
		return fmt.Errorf("dtls: not connected")
	}
	e.localSeq++
	rec := record{ContentType: ContentTypeApplicationData, SequenceNumber: e.localSeq, Fragment: payload}
	e.outbox = append(e.outbox, Output{Kind: OutputPacket, Packet: rec.marshal()})
	return nil
}

// PollOutput drains and returns the next queued Output, if any.
func (e *Engine) PollOutput() (Output, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.outbox) == 0 {
		return Output{}, false
	}
	out := e.outbox[0]
	e.outbox = e.outbox[1:]
	return out, true
}
