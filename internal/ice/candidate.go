// Package ice implements candidate gathering (host/server-reflexive/relayed)
// and pair-priority computation from spec.md §4.1, built on internal/stun and
// internal/turn.
package ice

import (
	"fmt"
	"hash/fnv"
	"net"

	"github.com/lanikai/rtcore/internal/sdp"
)

// Type identifies a candidate's provenance, per spec.md §3.
type Type string

const (
	TypeHost  Type = "host"
	TypeSrflx Type = "srflx"
	TypePrflx Type = "prflx"
	TypeRelay Type = "relay"
)

// Candidate is an immutable ICE candidate: once gathered it is never
// mutated, per spec.md §3's lifecycle note.
type Candidate struct {
	Foundation  string
	Component   int
	Transport   string
	Priority    uint32
	Address     string
	Port        int
	Type        Type
	RelAddress  string
	RelPort     int

	// MDNSName, when non-empty, is the ephemeral "<uuid>.local" name this
	// host candidate should be advertised under instead of Address, per
	// the mdns-ice-candidates privacy extension. Set only by
	// Agent.GatherHostCandidates when mDNS privacy is enabled.
	MDNSName string
}

// typePreference implements RFC 5245 §4.1.2.1's recommended type
// preferences: host highest, then srflx/prflx, relay lowest.
func typePreference(t Type) uint32 {
	switch t {
	case TypeHost:
		return 126
	case TypeSrflx, TypePrflx:
		return 110
	case TypeRelay:
		return 0
	default:
		return 0
	}
}

// computePriority implements RFC 5245 §4.1.2.1:
// priority = (2^24)*type_pref + (2^8)*local_pref + (256 - component_id).
func computePriority(t Type, component int) uint32 {
	const localPref = 65535
	return (typePreference(t) << 24) | (localPref << 8) | uint32(256-component)
}

// computeFoundation implements RFC 5245 §4.1.1.3: unique per (type, base
// address, protocol, STUN/TURN server).
func computeFoundation(t Type, baseAddr, transport, server string) string {
	h := fnv.New64()
	fmt.Fprintf(h, "%s/%s/%s/%s", t, transport, baseAddr, server)
	return fmt.Sprintf("%x", h.Sum64())[:8]
}

func newHostCandidate(component int, addr *net.UDPAddr) Candidate {
	return Candidate{
		Foundation: computeFoundation(TypeHost, addr.IP.String(), "UDP", ""),
		Component:  component,
		Transport:  "UDP",
		Priority:   computePriority(TypeHost, component),
		Address:    addr.IP.String(),
		Port:       addr.Port,
		Type:       TypeHost,
	}
}

func newServerReflexiveCandidate(component int, mapped *net.UDPAddr, base *net.UDPAddr, server string) Candidate {
	return Candidate{
		Foundation: computeFoundation(TypeSrflx, base.IP.String(), "UDP", server),
		Component:  component,
		Transport:  "UDP",
		Priority:   computePriority(TypeSrflx, component),
		Address:    mapped.IP.String(),
		Port:       mapped.Port,
		Type:       TypeSrflx,
		RelAddress: "0.0.0.0",
	}
}

func newRelayCandidate(component int, relay *net.UDPAddr, server string) Candidate {
	return Candidate{
		Foundation: computeFoundation(TypeRelay, relay.IP.String(), "UDP", server),
		Component:  component,
		Transport:  "UDP",
		Priority:   computePriority(TypeRelay, component),
		Address:    relay.IP.String(),
		Port:       relay.Port,
		Type:       TypeRelay,
		RelAddress: "0.0.0.0",
	}
}

// SDPLine renders the candidate as it is emitted into a session description.
// A host candidate gathered with mDNS privacy enabled is advertised under
// its ephemeral name rather than its real address.
func (c Candidate) SDPLine() sdp.CandidateLine {
	addr := c.Address
	if c.MDNSName != "" {
		addr = c.MDNSName
	}
	return sdp.CandidateLine{
		Foundation: c.Foundation,
		Component:  c.Component,
		Transport:  c.Transport,
		Priority:   c.Priority,
		Address:    addr,
		Port:       c.Port,
		Type:       string(c.Type),
		RelAddr:    c.RelAddress,
		RelPort:    c.RelPort,
	}
}

// FromSDPLine parses a remote candidate line into a Candidate, rejecting
// unrecognized types per spec.md §4.1 ("reject malformed lines, keep all
// others").
func FromSDPLine(line sdp.CandidateLine) (Candidate, error) {
	switch Type(line.Type) {
	case TypeHost, TypeSrflx, TypePrflx, TypeRelay:
	default:
		return Candidate{}, fmt.Errorf("ice: unrecognized candidate type %q", line.Type)
	}
	if line.Address == "" || line.Port <= 0 {
		return Candidate{}, fmt.Errorf("ice: malformed candidate address")
	}
	return Candidate{
		Foundation: line.Foundation,
		Component:  line.Component,
		Transport:  line.Transport,
		Priority:   line.Priority,
		Address:    line.Address,
		Port:       line.Port,
		Type:       Type(line.Type),
		RelAddress: line.RelAddr,
		RelPort:    line.RelPort,
	}, nil
}

// PairPriority implements RFC 5245 §5.7.2's pair-priority formula, tested
// directly by spec.md §8 property 9:
//
//	priority = 2^32*min(G,D) + 2*max(G,D) + (G>D ? 1 : 0)
func PairPriority(g, d uint32) uint64 {
	G, D := uint64(g), uint64(d)
	var b uint64
	if G > D {
		b = 1
	}
	lo, hi := G, D
	if lo > hi {
		lo, hi = hi, lo
	}
	return (lo << 32) + (hi << 1) + b
}
