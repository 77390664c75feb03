package ice

import (
	"fmt"
	"net"
	"time"

	"github.com/lanikai/rtcore/internal/rtclog"
	"github.com/lanikai/rtcore/internal/stun"
	"github.com/lanikai/rtcore/internal/turn"
)

var logger = rtclog.New("ice")

// ServerConfig names a STUN or TURN server to gather candidates against.
type ServerConfig struct {
	Address  string // "host:port"
	Username string // non-empty selects TURN over STUN
	Password string
}

// Agent gathers local candidates and tracks the remote candidates received
// over signaling, per spec.md §4.1. Connectivity checks themselves are
// reduced to a single test send; the DTLS handshake succeeding on the
// chosen 5-tuple is the authoritative liveness test.
type Agent struct {
	conn      *net.UDPConn
	component int

	local  []Candidate
	remote []Candidate

	turnClient *turn.Client
	mdns       *mdnsResponder
}

// NewAgent binds conn (already opened by the caller on the advertised port)
// and returns an Agent ready to gather.
func NewAgent(conn *net.UDPConn) *Agent {
	return &Agent{conn: conn, component: 1}
}

// EnableMDNS turns on the mdns-ice-candidates privacy extension for this
// agent's subsequent GatherHostCandidates call: host candidates are
// advertised under an ephemeral "<uuid>.local" name, and a responder
// answers queries for it, instead of the candidate's real IP ever reaching
// an SDP line. It only needs to be called once, before gathering; a
// multicast-incapable environment returns an error and the caller should
// fall back to ordinary literal-IP host candidates.
func (a *Agent) EnableMDNS() error {
	r, err := newMDNSResponder()
	if err != nil {
		return fmt.Errorf("ice: enable mdns privacy: %w", err)
	}
	a.mdns = r
	return nil
}

// LocalCandidates returns every candidate gathered so far.
func (a *Agent) LocalCandidates() []Candidate {
	return append([]Candidate(nil), a.local...)
}

// GatherHostCandidates enumerates non-loopback, non-link-local interfaces
// bound to the agent's local port, per spec.md §4.1 step 1.
func (a *Agent) GatherHostCandidates() error {
	localPort := a.conn.LocalAddr().(*net.UDPAddr).Port

	ifaces, err := net.Interfaces()
	if err != nil {
		return fmt.Errorf("ice: enumerate interfaces: %w", err)
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok || ipNet.IP.IsLoopback() || ipNet.IP.IsLinkLocalUnicast() {
				continue
			}
			ip := ipNet.IP.To4()
			if ip == nil {
				continue // IPv6 host candidates are out of scope for this core
			}
			cand := newHostCandidate(a.component, &net.UDPAddr{IP: ip, Port: localPort})
			if a.mdns != nil {
				name, err := a.mdns.register(ip)
				if err != nil {
					logger.Warn("ice: mdns register %s failed, advertising literal IP: %v", ip, err)
				} else {
					cand.MDNSName = name
				}
			}
			a.local = append(a.local, cand)
		}
	}
	if len(a.local) == 0 {
		return fmt.Errorf("ice: no usable host interfaces found")
	}
	return nil
}

// GatherServerReflexive queries each configured STUN server for this
// agent's public mapping, per spec.md §4.1 step 2. Failure to reach any
// STUN server is a partial-gathering failure: the caller should warn and
// continue with host candidates only (spec.md §4.12).
func (a *Agent) GatherServerReflexive(servers []ServerConfig) {
	base := a.conn.LocalAddr().(*net.UDPAddr)
	for _, s := range servers {
		if s.Username != "" {
			continue // credentialed servers are handled by GatherRelay
		}
		mapped, err := getReflexiveAddress(a.conn, s.Address)
		if err != nil {
			logger.Warn("stun binding to %s failed: %v", s.Address, err)
			continue
		}
		a.local = append(a.local, newServerReflexiveCandidate(a.component, mapped, base, s.Address))
	}
}

// GatherRelay allocates a relay on each configured TURN server, per
// spec.md §4.1 step 3. Allocation failures are logged and skipped; a relay
// candidate is optional.
func (a *Agent) GatherRelay(servers []ServerConfig) {
	for _, s := range servers {
		if s.Username == "" {
			continue
		}
		client, err := turn.Dial(s.Address, s.Username, s.Password)
		if err != nil {
			logger.Warn("turn dial %s failed: %v", s.Address, err)
			continue
		}
		relay, err := client.Allocate()
		if err != nil {
			logger.Warn("turn allocate on %s failed: %v", s.Address, err)
			client.Close()
			continue
		}
		a.turnClient = client
		a.local = append(a.local, newRelayCandidate(a.component, relay, s.Address))
	}
}

// getReflexiveAddress sends one Binding Request to server and matches the
// response by transaction id, per spec.md §4.2.
func getReflexiveAddress(conn *net.UDPConn, server string) (*net.UDPAddr, error) {
	addr, err := net.ResolveUDPAddr("udp", server)
	if err != nil {
		return nil, err
	}
	req, err := stun.NewBindingRequest("")
	if err != nil {
		return nil, err
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	defer conn.SetReadDeadline(time.Time{})

	if _, err := conn.WriteToUDP(req.Bytes(), addr); err != nil {
		return nil, err
	}
	buf := make([]byte, 1500)
	n, _, err := conn.ReadFromUDP(buf)
	if err != nil {
		return nil, err
	}
	resp, err := stun.Parse(buf[:n])
	if err != nil {
		return nil, err
	}
	if resp == nil || resp.TransactionID != req.TransactionID {
		return nil, fmt.Errorf("ice: stun response transaction id mismatch")
	}
	mapped := resp.XorMappedAddress()
	if mapped == nil {
		return nil, fmt.Errorf("ice: stun response missing XOR-MAPPED-ADDRESS")
	}
	return mapped, nil
}

// AddRemoteCandidate records an already-parsed remote candidate, per
// spec.md §4.1. It does no validation of its own: malformed `candidate:`
// lines are rejected earlier, by FromSDPLine.
func (a *Agent) AddRemoteCandidate(c Candidate) {
	a.remote = append(a.remote, c)
}

// RemoteAddress returns the first remote candidate's address, for the
// orchestrator to set as the UDP peer, per spec.md §4.1's
// `get_remote_address()`.
func (a *Agent) RemoteAddress() (*net.UDPAddr, bool) {
	if len(a.remote) == 0 {
		return nil, false
	}
	c := a.remote[0]
	return &net.UDPAddr{IP: net.ParseIP(c.Address), Port: c.Port}, true
}

// BestPair returns the local/remote candidate pair with the highest
// RFC 5245 §5.7.2 pair priority among every local x remote combination.
func (a *Agent) BestPair() (local, remote Candidate, priority uint64, ok bool) {
	if len(a.local) == 0 || len(a.remote) == 0 {
		return Candidate{}, Candidate{}, 0, false
	}
	var best uint64
	var bl, br Candidate
	found := false
	for _, l := range a.local {
		for _, r := range a.remote {
			p := PairPriority(l.Priority, r.Priority)
			if !found || p > best {
				best, bl, br, found = p, l, r, true
			}
		}
	}
	return bl, br, best, found
}

// Close releases the agent's TURN allocation and mDNS responder, if any.
func (a *Agent) Close() error {
	if a.mdns != nil {
		a.mdns.close()
	}
	if a.turnClient != nil {
		return a.turnClient.Close()
	}
	return nil
}
