// Package mux implements the UDP demultiplexer from spec.md §4.3: a single
// socket is shared by the DTLS handshake, SRTP/SRTCP media, and SCTP-over-
// DTLS paths by inspecting the first (and, for RTP/RTCP, second) byte of
// every inbound datagram.
package mux

import (
	"fmt"
	"net"
	"sync"
)

// Number of packets to buffer for each endpoint.
const numBufferPackets = 32

// MatchFunc reports whether buf belongs to the path it is registered for.
type MatchFunc func(buf []byte) bool

// MatchDTLS matches DTLS records: first byte in [20,63], per RFC 7983.
func MatchDTLS(buf []byte) bool {
	return len(buf) > 0 && buf[0] >= 20 && buf[0] <= 63
}

// MatchRTP matches RTP (not RTCP) packets: first byte in [128,191] and the
// RTCP packet-type byte (byte[1]&0x7f) outside the 200..204 range.
func MatchRTP(buf []byte) bool {
	if len(buf) < 2 || buf[0] < 128 || buf[0] > 191 {
		return false
	}
	pt := buf[1] & 0x7f
	return pt < 200 || pt > 204
}

// MatchRTCP matches RTCP packets: first byte in [128,191] and the packet
// type in 200..204 (SR, RR, SDES, BYE, APP).
func MatchRTCP(buf []byte) bool {
	if len(buf) < 2 || buf[0] < 128 || buf[0] > 191 {
		return false
	}
	pt := buf[1] & 0x7f
	return pt >= 200 && pt <= 204
}

// MatchSRTP and MatchSRTCP are aliases kept for callers that steer cipher
// text rather than plaintext RTP/RTCP onto the same byte ranges (SRTP and
// SRTCP are classified identically to their unprotected counterparts; only
// the consumer differs once DTLS has finished its handshake).
var MatchSRTP = MatchRTP
var MatchSRTCP = MatchRTCP

// MatchSCTP matches SCTP packets unwrapped from DTLS application data:
// first byte in [64,127], per spec.md §4.3.
func MatchSCTP(buf []byte) bool {
	return len(buf) > 0 && buf[0] >= 64 && buf[0] <= 127
}

// Mux dispatches datagrams read from a net.Conn to registered Endpoints by
// MatchFunc, "give a penny, take a penny" style: the delivered buffer is
// exchanged for an unused buffer from the endpoint's own pool so the read
// loop never allocates on the hot path.
type Mux struct {
	lock       sync.Mutex
	nextConn   net.Conn
	endpoints  map[*Endpoint]MatchFunc
	bufferSize int
}

// NewMux creates a new Mux. The Mux takes ownership of conn and is
// responsible for closing it.
func NewMux(conn net.Conn, bufferSize int) *Mux {
	m := &Mux{
		nextConn:   conn,
		endpoints:  make(map[*Endpoint]MatchFunc),
		bufferSize: bufferSize,
	}
	go m.readLoop()
	return m
}

// NewEndpoint creates a new Endpoint matched by f.
func (m *Mux) NewEndpoint(f MatchFunc) *Endpoint {
	e := createEndpoint(m, numBufferPackets, m.bufferSize)
	m.lock.Lock()
	m.endpoints[e] = f
	m.lock.Unlock()
	return e
}

// RemoveEndpoint removes an endpoint from the Mux.
func (m *Mux) RemoveEndpoint(e *Endpoint) {
	m.lock.Lock()
	delete(m.endpoints, e)
	m.lock.Unlock()
}

// Close closes the Mux and all associated Endpoints.
func (m *Mux) Close() error {
	m.lock.Lock()
	for e := range m.endpoints {
		e.close()
		delete(m.endpoints, e)
	}
	m.lock.Unlock()

	return m.nextConn.Close()
}

// readLoop reads continually from the underlying connection and dispatches
// to the matching endpoint. It exits on read error (e.g. the socket closed).
func (m *Mux) readLoop() {
	defer m.Close()

	buf := make([]byte, m.bufferSize)
	for {
		n, err := m.nextConn.Read(buf)
		if err != nil {
			return
		}

		buf = m.dispatch(buf[:n])
		buf = buf[0:cap(buf)]
	}
}

func (m *Mux) dispatch(buf []byte) []byte {
	var endpoint *Endpoint

	m.lock.Lock()
	for e, f := range m.endpoints {
		if f(buf) {
			endpoint = e
			break
		}
	}
	m.lock.Unlock()

	if endpoint == nil {
		fmt.Printf("mux: no endpoint for packet starting with %d\n", buf[0])
		return buf
	}

	return endpoint.deliver(buf)
}
