package mux

import (
	"io"
	"net"
	"sync"
	"time"
)

// Endpoint implements net.Conn over a single classified path (DTLS, RTP,
// RTCP, or SCTP) of the shared UDP socket. Incoming packets are delivered by
// the Mux into a circular queue of buffers; readers drain the queue as
// packets arrive.
type Endpoint struct {
	mux *Mux

	bufs  [][]byte
	nbufs int
	nused int
	first int

	available chan struct{}
	dead      chan struct{}

	sync.Mutex
}

func createEndpoint(mux *Mux, nbufs int, bufsize int) *Endpoint {
	bufpool := make([]byte, nbufs*bufsize)
	bufs := make([][]byte, nbufs)
	for i := 0; i < nbufs; i++ {
		bufs[i] = bufpool[i*bufsize : (i+1)*bufsize]
	}
	return &Endpoint{
		mux:       mux,
		bufs:      bufs,
		nbufs:     nbufs,
		available: make(chan struct{}, 1),
		dead:      make(chan struct{}),
	}
}

// Close unregisters the endpoint from its Mux.
func (e *Endpoint) Close() error {
	e.close()
	e.mux.RemoveEndpoint(e)
	return nil
}

func (e *Endpoint) close() {
	e.Lock()
	select {
	case <-e.dead:
	default:
		close(e.dead)
	}
	e.Unlock()
}

// deliver exchanges buf (holding a freshly-read packet) for an unused buffer
// from this endpoint's circular queue, dropping the oldest packet if full.
func (e *Endpoint) deliver(buf []byte) []byte {
	e.Lock()
	defer e.Unlock()

	select {
	case <-e.dead:
		return buf
	case e.available <- struct{}{}:
	default:
	}

	if e.nused == e.nbufs {
		ret := e.bufs[e.first]
		e.bufs[e.first] = buf
		e.first = (e.first + 1) % e.nbufs
		return ret
	}

	next := (e.first + e.nused) % e.nbufs
	ret := e.bufs[next]
	e.bufs[next] = buf
	e.nused++
	return ret
}

func (e *Endpoint) tryConsume(p []byte) (int, bool) {
	e.Lock()
	defer e.Unlock()

	if e.nused == 0 {
		return 0, false
	}

	n := copy(p, e.bufs[e.first])
	e.first = (e.first + 1) % e.nbufs
	e.nused--

	if e.nused > 0 {
		select {
		case e.available <- struct{}{}:
		default:
		}
	}

	return n, true
}

// Read implements net.Conn, returning the next packet matched to this path.
func (e *Endpoint) Read(p []byte) (int, error) {
	if n, ok := e.tryConsume(p); ok {
		return n, nil
	}

	for {
		select {
		case <-e.dead:
			return 0, io.EOF
		case <-e.available:
			if n, ok := e.tryConsume(p); ok {
				return n, nil
			}
		}
	}
}

// Write implements net.Conn by writing directly to the shared socket.
func (e *Endpoint) Write(p []byte) (int, error) {
	return e.mux.nextConn.Write(p)
}

func (e *Endpoint) LocalAddr() net.Addr  { return e.mux.nextConn.LocalAddr() }
func (e *Endpoint) RemoteAddr() net.Addr { return e.mux.nextConn.RemoteAddr() }

func (e *Endpoint) SetDeadline(t time.Time) error      { return nil }
func (e *Endpoint) SetReadDeadline(t time.Time) error  { return nil }
func (e *Endpoint) SetWriteDeadline(t time.Time) error { return nil }
