package ice

// mDNS support for the mdns-ice-candidates privacy extension: a host
// candidate is advertised under an ephemeral "<uuid>.local" name instead of
// its real IP, and this responder answers A-record queries for any name it
// has registered. Adapted from the teacher's internal/ice/mdns.go, trimmed
// to the responder-only direction: this core never needs to resolve a
// *remote* peer's mDNS name, since the DTLS handshake on the chosen 5-tuple
// is the authoritative liveness test (spec.md §4.1), not a prior address
// resolution step. IPv4 only, matching GatherHostCandidates' own IPv4-only
// scope.

import (
	"crypto/rand"
	"fmt"
	"net"
	"strings"
	"sync"

	"golang.org/x/net/dns/dnsmessage"
	"golang.org/x/net/ipv4"
)

var mdnsGroupAddr4 = &net.UDPAddr{IP: net.IPv4(224, 0, 0, 251), Port: 5353}

// mdnsResponder joins the IPv4 mDNS multicast group and answers A queries
// for the ephemeral names this agent has registered.
type mdnsResponder struct {
	mu      sync.Mutex
	records map[string]net.IP // fully-qualified name -> IP

	pc   *ipv4.PacketConn
	done chan struct{}
}

// newMDNSResponder opens a UDP socket on the mDNS port and joins the
// multicast group on every multicast-capable interface. It returns an error
// if no such interface exists, so the caller can fall back to literal-IP
// host candidates, per spec.md §4.12's partial-gathering-failure tolerance.
func newMDNSResponder() (*mdnsResponder, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: mdnsGroupAddr4.Port})
	if err != nil {
		return nil, fmt.Errorf("ice: mdns listen: %w", err)
	}
	pc := ipv4.NewPacketConn(conn)

	ifaces, _ := net.Interfaces()
	joined := false
	for i := range ifaces {
		iface := ifaces[i]
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagMulticast == 0 {
			continue
		}
		if err := pc.JoinGroup(&iface, mdnsGroupAddr4); err == nil {
			joined = true
		}
	}
	if !joined {
		conn.Close()
		return nil, fmt.Errorf("ice: mdns: no multicast-capable interface")
	}

	r := &mdnsResponder{records: make(map[string]net.IP), pc: pc, done: make(chan struct{})}
	go r.serve()
	return r, nil
}

// register mints a new ephemeral name bound to ip, RFC 4122 version-4
// formatted per the mdns-ice-candidates draft, and starts answering
// queries for it.
func (r *mdnsResponder) register(ip net.IP) (string, error) {
	var raw [16]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", fmt.Errorf("ice: mdns: generate name: %w", err)
	}
	raw[6] = (raw[6] & 0x0f) | 0x40 // version 4
	raw[8] = (raw[8] & 0x3f) | 0x80 // RFC 4122 variant

	fqdn := fmt.Sprintf("%x-%x-%x-%x-%x.local.", raw[0:4], raw[4:6], raw[6:8], raw[8:10], raw[10:16])

	r.mu.Lock()
	r.records[fqdn] = ip.To4()
	r.mu.Unlock()
	return strings.TrimSuffix(fqdn, "."), nil
}

func (r *mdnsResponder) serve() {
	buf := make([]byte, 1500)
	for {
		n, _, _, err := r.pc.ReadFrom(buf)
		if err != nil {
			return
		}
		r.handleQuery(buf[:n])
	}
}

func (r *mdnsResponder) handleQuery(buf []byte) {
	var msg dnsmessage.Message
	if err := msg.Unpack(buf); err != nil || msg.Header.Response {
		return
	}
	for _, q := range msg.Questions {
		if q.Type != dnsmessage.TypeA && q.Type != dnsmessage.TypeALL {
			continue
		}
		r.mu.Lock()
		_, ok := r.records[q.Name.String()]
		r.mu.Unlock()
		if !ok {
			continue
		}
		r.reply(q)
	}
}

func (r *mdnsResponder) reply(q dnsmessage.Question) {
	r.mu.Lock()
	ip := r.records[q.Name.String()]
	r.mu.Unlock()

	b := dnsmessage.NewBuilder(nil, dnsmessage.Header{Response: true, Authoritative: true})
	b.EnableCompression()
	if err := b.StartAnswers(); err != nil {
		return
	}
	var addr [4]byte
	copy(addr[:], ip.To4())
	err := b.AResource(
		dnsmessage.ResourceHeader{Name: q.Name, Type: dnsmessage.TypeA, Class: dnsmessage.ClassINET, TTL: 120},
		dnsmessage.AResource{A: addr},
	)
	if err != nil {
		return
	}
	out, err := b.Finish()
	if err != nil {
		return
	}
	_, _ = r.pc.WriteTo(out, nil, mdnsGroupAddr4)
}

// close stops answering queries and releases the multicast socket.
func (r *mdnsResponder) close() error {
	return r.pc.Close()
}
