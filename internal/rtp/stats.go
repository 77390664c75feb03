package rtp

import "sync"

// PacketStats is the per-SSRC packet-handler state machine from
// spec.md §4.6: classifies each arriving sequence number as in-order,
// loss, reorder, or duplicate, and tracks wraparound via a cycle counter.
type PacketStats struct {
	mu sync.Mutex

	started  bool
	expected uint16
	highest  uint16
	cycles   uint32

	Received  uint64
	Lost      uint64
	Reordered uint64
	Duplicate uint64

	seen map[uint32]struct{} // extended sequence -> seen, for duplicate/reorder detection
}

// Extended returns (cycles<<16 | seq) for the highest sequence observed.
func (s *PacketStats) Extended() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cycles<<16 | uint32(s.highest)
}

// Observe classifies one arriving RTP sequence number, per spec.md §4.6:
//
//	initial: first packet sets expected = seq+1, highest = seq
//	seq == expected: in-order, advance
//	seq newer than expected: loss, loss = distance
//	seq older than expected: reorder
//	already seen: duplicate
func (s *PacketStats) Observe(seq uint16) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.seen == nil {
		s.seen = make(map[uint32]struct{})
	}

	if !s.started {
		s.started = true
		s.expected = seq + 1
		s.highest = seq
		s.Received++
		s.seen[uint32(seq)] = struct{}{}
		return
	}

	ext := s.extend(seq)
	if _, dup := s.seen[ext]; dup {
		s.Duplicate++
		return
	}
	s.seen[ext] = struct{}{}

	switch {
	case seq == s.expected:
		s.Received++
		if seq < s.highest {
			s.cycles++
		}
		s.highest = seq
		s.expected = seq + 1
	case int16(seq-s.expected) > 0:
		// Newer than expected: a gap opened up (packets in between are lost
		// until proven otherwise by a later reorder).
		distance := uint64(seq - s.expected)
		s.Lost += distance
		s.Received++
		if seq < s.highest {
			s.cycles++
		}
		s.highest = seq
		s.expected = seq + 1
	default:
		// Older than expected: arrived out of order.
		s.Reordered++
		s.Received++
		if s.Lost > 0 {
			s.Lost--
		}
	}
}

func (s *PacketStats) extend(seq uint16) uint32 {
	cycles := s.cycles
	if seq < s.highest && s.highest-seq > 0x8000 {
		cycles++
	}
	return cycles<<16 | uint32(seq)
}

// LossRate returns Lost / (Received + Lost), in [0,1], per spec.md §8
// property 6.
func (s *PacketStats) LossRate() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := s.Received + s.Lost
	if total == 0 {
		return 0
	}
	return float64(s.Lost) / float64(total)
}

// FractionLost returns the loss rate scaled to [0,255], as carried in RTCP
// receiver reports.
func (s *PacketStats) FractionLost() byte {
	rate := s.LossRate()
	if rate < 0 {
		rate = 0
	}
	if rate > 1 {
		rate = 1
	}
	return byte(rate * 255)
}

// JitterTracker implements the RFC 3550 §6.4.1 EWMA interarrival jitter
// estimator: J += (|D| - J)/16, where D is the inter-arrival deviation in
// timestamp units, per spec.md §3.
type JitterTracker struct {
	mu sync.Mutex

	haveLast   bool
	lastArrival int64 // in timestamp units
	lastRTPTs   uint32

	jitter float64
}

// Update feeds one packet's arrival time (converted to timestamp units by
// the caller) and RTP timestamp, returning the updated jitter estimate.
func (j *JitterTracker) Update(arrival int64, rtpTimestamp uint32) float64 {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !j.haveLast {
		j.haveLast = true
		j.lastArrival = arrival
		j.lastRTPTs = rtpTimestamp
		return j.jitter
	}

	d := (arrival - j.lastArrival) - (int64(rtpTimestamp) - int64(j.lastRTPTs))
	if d < 0 {
		d = -d
	}
	j.jitter += (float64(d) - j.jitter) / 16

	j.lastArrival = arrival
	j.lastRTPTs = rtpTimestamp
	return j.jitter
}

// Value returns the current jitter estimate without updating it.
func (j *JitterTracker) Value() float64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.jitter
}
