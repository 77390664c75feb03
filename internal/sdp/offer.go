package sdp

import (
	"fmt"
	"strconv"
	"strings"
)

// Setup is the DTLS role negotiated via SDP `a=setup:`, per spec.md §3.
type Setup string

const (
	SetupActPass Setup = "actpass"
	SetupActive  Setup = "active"
	SetupPassive Setup = "passive"
)

// CandidateLine is the subset of a parsed `a=candidate` line this core
// cares about: foundation, component, priority, address, port, and type.
type CandidateLine struct {
	Foundation string
	Component  int
	Transport  string
	Priority   uint32
	Address    string
	Port       int
	Type       string // host | srflx | prflx | relay
	RelAddr    string
	RelPort    int
}

// String formats the candidate as the wire text that follows `a=candidate:`,
// per spec.md §6: `<foundation> <component> UDP <priority> <ip> <port> typ
// <type> [raddr <ip> rport <port>]`.
func (c CandidateLine) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %d %s %d %s %d typ %s",
		c.Foundation, c.Component, c.Transport, c.Priority, c.Address, c.Port, c.Type)
	if c.RelAddr != "" {
		fmt.Fprintf(&b, " raddr %s rport %d", c.RelAddr, c.RelPort)
	}
	return b.String()
}

// ParseCandidateLine parses the text that follows `a=candidate:`. Malformed
// lines return an error so the caller can reject just that one line, per
// spec.md §4.1 ("reject malformed lines, keep all others").
func ParseCandidateLine(text string) (CandidateLine, error) {
	var c CandidateLine
	fields := strings.Fields(text)
	if len(fields) < 8 {
		return c, fmt.Errorf("sdp: malformed candidate line: %q", text)
	}
	c.Foundation = fields[0]
	component, err := strconv.Atoi(fields[1])
	if err != nil {
		return c, fmt.Errorf("sdp: malformed candidate component: %q", text)
	}
	c.Component = component
	c.Transport = fields[2]
	priority, err := strconv.ParseUint(fields[3], 10, 32)
	if err != nil {
		return c, fmt.Errorf("sdp: malformed candidate priority: %q", text)
	}
	c.Priority = uint32(priority)
	c.Address = fields[4]
	port, err := strconv.Atoi(fields[5])
	if err != nil {
		return c, fmt.Errorf("sdp: malformed candidate port: %q", text)
	}
	c.Port = port
	if fields[6] != "typ" {
		return c, fmt.Errorf("sdp: candidate line missing 'typ': %q", text)
	}
	c.Type = fields[7]

	for i := 8; i+1 < len(fields); i += 2 {
		switch fields[i] {
		case "raddr":
			c.RelAddr = fields[i+1]
		case "rport":
			if p, err := strconv.Atoi(fields[i+1]); err == nil {
				c.RelPort = p
			}
		}
	}
	return c, nil
}

// BuildOptions configures Build.
type BuildOptions struct {
	SessionID   string
	Address     string
	IceUfrag    string
	IcePwd      string
	Fingerprint string // colon-separated upper-case hex, sha-256
	Setup       Setup
	Candidates  []CandidateLine
}

// Build constructs the single `m=application ... DTLS/SCTP` session
// description spec.md §6 mandates on the wire.
func Build(opts BuildOptions) Session {
	s := Session{
		Version: 0,
		Origin: Origin{
			Username:       "-",
			SessionID:      opts.SessionID,
			SessionVersion: 1,
			NetworkType:    "IN",
			AddressType:    "IP4",
			Address:        opts.Address,
		},
		Name: "-",
		Time: []Time{{}},
	}

	m := Media{
		Type:   "application",
		Port:   9,
		Proto:  "DTLS/SCTP",
		Format: []string{"webrtc-datachannel"},
	}
	m.Attributes = append(m.Attributes,
		Attribute{"ice-ufrag", opts.IceUfrag},
		Attribute{"ice-pwd", opts.IcePwd},
		Attribute{"fingerprint", "sha-256 " + opts.Fingerprint},
		Attribute{"setup", string(opts.Setup)},
	)
	for _, c := range opts.Candidates {
		m.Attributes = append(m.Attributes, Attribute{"candidate", c.String()})
	}
	s.Media = []Media{m}
	return s
}

// Fingerprint splits the `a=fingerprint` attribute of the session's single
// media section into its hash algorithm (e.g. `sha-256`) and hex digest.
func (s *Session) Fingerprint() (algorithm string, hexDigest string, ok bool) {
	if len(s.Media) == 0 {
		return "", "", false
	}
	v := s.Media[0].GetAttr("fingerprint")
	if v == "" {
		return "", "", false
	}
	parts := strings.SplitN(v, " ", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// SetupRole returns the `a=setup:` value of the session's media section.
func (s *Session) SetupRole() (Setup, bool) {
	if len(s.Media) == 0 {
		return "", false
	}
	v := s.Media[0].GetAttr("setup")
	if v == "" {
		return "", false
	}
	return Setup(v), true
}

// IceCredentials returns the `a=ice-ufrag`/`a=ice-pwd` values.
func (s *Session) IceCredentials() (ufrag, pwd string, ok bool) {
	if len(s.Media) == 0 {
		return "", "", false
	}
	ufrag = s.Media[0].GetAttr("ice-ufrag")
	pwd = s.Media[0].GetAttr("ice-pwd")
	return ufrag, pwd, ufrag != "" && pwd != ""
}

// Candidates parses every `a=candidate` line in the session's media section,
// silently skipping malformed ones per spec.md §4.1.
func (s *Session) Candidates() []CandidateLine {
	if len(s.Media) == 0 {
		return nil
	}
	var out []CandidateLine
	for _, line := range s.Media[0].GetAttrs("candidate") {
		if c, err := ParseCandidateLine(line); err == nil {
			out = append(out, c)
		}
	}
	return out
}

// ResolveDTLSRole implements spec.md §9's pure function
// (local_role_in_offer, remote_setup_in_answer) -> dtls_role. The offerer
// always advertises actpass, so it derives its own role from the answerer's
// choice; the answerer derives active/passive from the offer's actpass and
// picks its own complementary role (it always chooses, never receives
// actpass back).
func ResolveDTLSRole(isOfferer bool, remoteSetup Setup) (client bool) {
	if isOfferer {
		// The peer chose active (they are the DTLS client) or passive (they
		// are the DTLS server); we take the opposite role.
		return remoteSetup == SetupPassive
	}
	// We are the answerer: remoteSetup is actpass, so we choose. Prefer to
	// act as DTLS client (active) — the caller may override by choosing
	// SetupPassive when building its answer instead.
	return true
}
