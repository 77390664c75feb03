package rtcore

import (
	"fmt"
	"net"
	"time"

	"github.com/lanikai/rtcore/internal/dtls"
	"github.com/lanikai/rtcore/internal/events"
	"github.com/lanikai/rtcore/internal/mux"
	"github.com/lanikai/rtcore/internal/rtcerr"
	"github.com/lanikai/rtcore/internal/sctp"
	"github.com/lanikai/rtcore/internal/srtp"
)

const handshakePollInterval = 20 * time.Millisecond

// beginDTLS reconnects the gathering socket to the negotiated remote
// 5-tuple (spec.md §4.1's `get_remote_address()`), wires the UDP
// demultiplexer (spec.md §4.3), and drives the DTLS handshake in a tight
// loop until connected or the 10s budget elapses (spec.md §4.4/§4.12).
func (c *Connection) beginDTLS() error {
	remoteAddr, ok := c.iceAgent.RemoteAddress()
	if !ok {
		return fmt.Errorf("rtcore: no remote ICE address to connect to")
	}
	localAddr := c.udpConn.LocalAddr().(*net.UDPAddr)
	c.udpConn.Close()

	conn, err := net.DialUDP("udp4", localAddr, remoteAddr)
	if err != nil {
		return fmt.Errorf("rtcore: dial remote peer %s: %w", remoteAddr, err)
	}
	c.udpConn = conn

	c.netMux = mux.NewMux(conn, rtpBufferSize)
	c.dtlsEndpoint = c.netMux.NewEndpoint(mux.MatchDTLS)
	c.rtpEndpoint = c.netMux.NewEndpoint(mux.MatchRTP)
	c.rtcpEndpoint = c.netMux.NewEndpoint(mux.MatchRTCP)

	role := dtls.RoleServer
	if c.dtlsIsClient {
		role = dtls.RoleClient
	}
	_, fingerprint, ok := c.remoteDesc.Fingerprint()
	if !ok {
		return fmt.Errorf("rtcore: remote description missing fingerprint")
	}
	c.dtlsEngine = dtls.NewEngine(c.cert, role, fingerprint)

	c.setState(events.StateDtlsConnecting)

	go c.dtlsReadLoop()

	return c.runHandshake()
}

// runHandshake polls the sans-I/O engine until Connected, PeerCert
// verification failure, or the 10s deadline, per spec.md §4.4: the
// retransmission timer is polled at >=100ms granularity and the loop
// itself sleeps >=10ms between polls to avoid busy-waiting (spec.md §5).
func (c *Connection) runHandshake() error {
	if err := c.dtlsEngine.Start(time.Now()); err != nil {
		return fmt.Errorf("rtcore: start dtls handshake: %w", err)
	}
	c.drainDTLSOutput()

	deadline := time.Now().Add(10 * time.Second)
	ticker := time.NewTicker(handshakePollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return fmt.Errorf("rtcore: connection closed during handshake")
		case now := <-ticker.C:
			c.dtlsEngine.HandleTimeout(now)
			c.drainDTLSOutput()

			if c.dtlsEngine.IsFailed() {
				c.emit(events.Event{Type: events.SecurityError, SecurityError: "dtls certificate fingerprint mismatch"})
				return fmt.Errorf("rtcore: dtls handshake aborted: certificate fingerprint mismatch")
			}
			if c.dtlsEngine.IsConnected() {
				return c.onDTLSConnected()
			}
			if now.After(deadline) {
				c.emit(events.Event{Type: events.SecurityError, SecurityError: "dtls handshake timed out"})
				return fmt.Errorf("rtcore: dtls handshake timed out after 10s")
			}
		}
	}
}

// dtlsReadLoop feeds every datagram classified as DTLS (spec.md §4.3) into
// the sans-I/O engine and drains its output. It runs for the life of the
// connection, since post-handshake application data (the SCTP association)
// is also delivered through this same engine.
func (c *Connection) dtlsReadLoop() {
	buf := make([]byte, rtpBufferSize)
	for {
		n, err := c.dtlsEndpoint.Read(buf)
		if err != nil {
			return
		}
		if err := c.dtlsEngine.HandlePacket(append([]byte(nil), buf[:n]...), time.Now()); err != nil {
			logger.Warn("rtcore: dtls handle_packet: %v", err)
		}
		c.drainDTLSOutput()
	}
}

// drainDTLSOutput polls every pending Output from the engine and routes it:
// wire packets go back out the DTLS endpoint, connected/keying-material/
// peer-cert notifications drive the handshake's completion, and unwrapped
// application data is handed to the SCTP association, per spec.md §4.9.
func (c *Connection) drainDTLSOutput() {
	for {
		out, ok := c.dtlsEngine.PollOutput()
		if !ok {
			return
		}
		switch out.Kind {
		case dtls.OutputPacket:
			if _, err := c.dtlsEndpoint.Write(out.Packet); err != nil {
				logger.Warn("rtcore: dtls send failed: %v", err)
			}
		case dtls.OutputApplicationData:
			if c.assoc != nil {
				if err := c.assoc.HandleApplicationData(out.ApplicationData, time.Now()); err != nil {
					switch {
					case rtcerr.Is(err, rtcerr.KindProtocolParse):
						// Malformed chunk on an otherwise-fine association:
						// drop and keep going, per spec.md §7.
						logger.Debug("rtcore: sctp parse error, dropping packet: %v", err)
					default:
						logger.Warn("rtcore: sctp error, dropping packet: %v", err)
					}
				}
				c.drainSCTPOutput()
			}
		case dtls.OutputKeyingMaterial:
			c.keyingMaterial = out.KeyingMaterial
			c.keyingProfile = out.Profile
		case dtls.OutputConnected, dtls.OutputPeerCert, dtls.OutputTimeout, dtls.OutputNone:
			// Handled synchronously by runHandshake/onDTLSConnected below.
		}
	}
}

// onDTLSConnected installs the negotiated SRTP keys, starts the SCTP
// association, and starts the receive loops and the stats ticker, per
// spec.md §4.12's "On Connected" paragraph. Send workers are started
// separately, by StartVideoSend and StartAudioSend.
func (c *Connection) onDTLSConnected() error {
	local, remote, err := c.deriveSRTPKeys()
	if err != nil {
		return err
	}
	c.srtpCtx = srtp.NewContext(local, remote)

	c.setState(events.StateConnected)

	c.assoc = sctp.NewAssociation(c.dtlsIsClient)
	c.dcManager = newDataChannelManager(c)
	c.ftManager = newFileTransferManager(c)

	if err := c.assoc.Start(time.Now()); err != nil {
		return fmt.Errorf("rtcore: start sctp association: %w", err)
	}
	c.flushSCTPOutput()

	c.startReceiveLoops()
	c.startStatsTicker()

	return nil
}

func (c *Connection) flushSCTPOutput() {
	if c.assoc == nil {
		return
	}
	c.drainSCTPOutput()
}

// drainSCTPOutput polls pending SCTP Output and either wraps it for DTLS
// transport (OutputPacket) or hands DATA payloads to the data-channel
// manager (OutputData), per spec.md §4.9/§4.10.
func (c *Connection) drainSCTPOutput() {
	for {
		out, ok := c.assoc.PollOutput()
		if !ok {
			return
		}
		switch out.Kind {
		case sctp.OutputPacket:
			if err := c.dtlsEngine.SendApplicationData(out.Packet); err != nil {
				logger.Warn("rtcore: dtls send_application_data: %v", err)
				continue
			}
			c.drainDTLSOutput()
		case sctp.OutputData:
			ev, ok := c.dcManager.HandleMessage(out.StreamID, out.PPID, out.Data)
			if ok {
				c.dispatchDataChannelEvent(ev)
			}
		case sctp.OutputEstablished:
			logger.Info("rtcore: sctp association established")
		case sctp.OutputClosed:
			logger.Info("rtcore: sctp association closed")
		}
	}
}

func (c *Connection) sctpTimeoutLoop() {
	ticker := time.NewTicker(handshakePollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case now := <-ticker.C:
			c.assoc.HandleTimeout(now)
			c.drainSCTPOutput()
		}
	}
}
