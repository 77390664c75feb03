package rtcore

import (
	"fmt"
	"net"

	"github.com/lanikai/rtcore/internal/events"
	"github.com/lanikai/rtcore/internal/ice"
	"github.com/lanikai/rtcore/internal/sdp"
)

// gather runs ICE candidate gathering per spec.md §4.1: host candidates are
// mandatory, STUN/TURN candidates are best-effort (partial failure is a
// warning per spec.md §4.12, not fatal).
func (c *Connection) gather() error {
	c.setState(events.StateGathering)

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: int(c.cfg.PortMin)})
	if err != nil {
		return fmt.Errorf("rtcore: bind local UDP port: %w", err)
	}
	c.udpConn = conn
	c.iceAgent = ice.NewAgent(conn)

	if c.cfg.MDNSPrivacy {
		if err := c.iceAgent.EnableMDNS(); err != nil {
			logger.Warn("rtcore: mdns privacy unavailable, advertising literal host candidates: %v", err)
		}
	}

	if err := c.iceAgent.GatherHostCandidates(); err != nil {
		return fmt.Errorf("rtcore: gather host candidates: %w", err)
	}

	var servers []ice.ServerConfig
	for _, s := range c.cfg.ICEServers {
		for _, url := range s.URLs {
			servers = append(servers, ice.ServerConfig{
				Address:  stripScheme(url),
				Username: s.Username,
				Password: s.Credential,
			})
		}
	}
	c.iceAgent.GatherServerReflexive(servers)
	c.iceAgent.GatherRelay(servers)

	return nil
}

func stripScheme(url string) string {
	for _, prefix := range []string{"stun:", "stuns:", "turn:", "turns:"} {
		if len(url) > len(prefix) && url[:len(prefix)] == prefix {
			return url[len(prefix):]
		}
	}
	return url
}

func (c *Connection) candidateLines() []sdp.CandidateLine {
	var lines []sdp.CandidateLine
	for _, cand := range c.iceAgent.LocalCandidates() {
		lines = append(lines, cand.SDPLine())
	}
	return lines
}

func (c *Connection) buildSession(setup sdp.Setup) sdp.Session {
	c.localUfrag = randomToken(8)
	c.localPwd = randomToken(24)
	return sdp.Build(sdp.BuildOptions{
		SessionID:   sessionID(),
		Address:     "0.0.0.0",
		IceUfrag:    c.localUfrag,
		IcePwd:      c.localPwd,
		Fingerprint: c.fingerprint,
		Setup:       setup,
		Candidates:  c.candidateLines(),
	})
}

// CreateOffer gathers ICE candidates and builds the local SDP offer, per
// spec.md §4.12: the offerer always advertises `setup:actpass`.
func (c *Connection) CreateOffer() (string, error) {
	c.isOfferer = true
	if err := c.gather(); err != nil {
		return "", err
	}

	c.localDesc = c.buildSession(sdp.SetupActPass)
	c.setState(events.StateOffered)
	return c.localDesc.String(), nil
}

// SetRemoteAnswer extracts the remote fingerprint, validates it is present,
// resolves the DTLS role from the answerer's `setup:` choice, and
// transitions to DtlsConnecting, per spec.md §4.12.
func (c *Connection) SetRemoteAnswer(answerSDP string) error {
	remote, err := sdp.Parse(answerSDP)
	if err != nil {
		return fmt.Errorf("rtcore: parse remote answer: %w", err)
	}
	if _, _, ok := remote.Fingerprint(); !ok {
		return fmt.Errorf("rtcore: remote answer missing fingerprint")
	}
	remoteSetup, ok := remote.SetupRole()
	if !ok || remoteSetup == sdp.SetupActPass {
		return fmt.Errorf("rtcore: remote answer must choose active or passive, got %q", remoteSetup)
	}
	c.remoteDesc = remote
	c.dtlsIsClient = sdp.ResolveDTLSRole(true, remoteSetup)

	if err := c.adoptRemoteCandidates(); err != nil {
		return err
	}

	c.setState(events.StateAnswered)
	return c.beginDTLS()
}

// SetRemoteOffer handles an inbound offer as the answerer: it gathers
// local candidates, builds an answer choosing `setup:active` (this core's
// fixed Open Question resolution, per DESIGN.md), and returns the answer
// SDP text to send back over signaling.
func (c *Connection) SetRemoteOffer(offerSDP string) (string, error) {
	c.isOfferer = false
	remote, err := sdp.Parse(offerSDP)
	if err != nil {
		return "", fmt.Errorf("rtcore: parse remote offer: %w", err)
	}
	if _, _, ok := remote.Fingerprint(); !ok {
		return "", fmt.Errorf("rtcore: remote offer missing fingerprint")
	}
	c.remoteDesc = remote

	if err := c.gather(); err != nil {
		return "", err
	}

	c.localDesc = c.buildSession(sdp.SetupActive)
	c.dtlsIsClient = sdp.ResolveDTLSRole(false, sdp.SetupActPass)

	if err := c.adoptRemoteCandidates(); err != nil {
		return "", err
	}

	c.setState(events.StateAnswered)
	if err := c.beginDTLS(); err != nil {
		return "", err
	}
	return c.localDesc.String(), nil
}

// AddRemoteICECandidate parses and records one remote `candidate:` line
// received over signaling (spec.md §6's `add_remote_ice_candidate`).
// Malformed lines are rejected but do not fail the call, per spec.md §4.1.
func (c *Connection) AddRemoteICECandidate(candidateText string) error {
	line, err := sdp.ParseCandidateLine(candidateText)
	if err != nil {
		logger.Warn("rtcore: rejecting malformed remote candidate: %v", err)
		return nil
	}
	cand, err := ice.FromSDPLine(line)
	if err != nil {
		logger.Warn("rtcore: rejecting malformed remote candidate: %v", err)
		return nil
	}
	c.iceAgent.AddRemoteCandidate(cand)
	return nil
}

func (c *Connection) adoptRemoteCandidates() error {
	for _, line := range c.remoteDesc.Candidates() {
		cand, err := ice.FromSDPLine(line)
		if err != nil {
			logger.Warn("rtcore: rejecting malformed remote candidate: %v", err)
			continue
		}
		c.iceAgent.AddRemoteCandidate(cand)
	}
	if _, ok := c.iceAgent.RemoteAddress(); !ok {
		return fmt.Errorf("rtcore: remote description carries no usable ICE candidate")
	}
	return nil
}
