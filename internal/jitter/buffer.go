// Package jitter implements the adaptive, timestamp-based playout buffer
// from spec.md §4.7, mutex-guarded and polled by a dedicated goroutine in
// the same idiom as internal/mux.Endpoint. Grounded in
// original_source/webrtc/network/src/codec/jitter_buffer/mod.rs.
package jitter

import (
	"sort"
	"sync"
	"time"
)

// Config tunes one Buffer's adaptation behavior.
type Config struct {
	ClockRate        uint32  // e.g. 90000 for H.264, 48000 for Opus
	MinDelayFrames   uint32  // lower clamp on playout delay, in frames
	MaxDelayFrames   uint32  // upper clamp on playout delay, in frames
	AdaptationSpeed  float64 // smoothing factor in (0,1] applied each push
	UltraLowLatency  bool    // deliver earliest available packet regardless of playout time
	MaxCapacity      int     // maximum buffered packets before evicting the oldest
}

// DefaultConfig matches the reference implementation's defaults: 90kHz
// video clock, 2-10 frame adaptive window, moderate smoothing.
func DefaultConfig() Config {
	return Config{
		ClockRate:       90000,
		MinDelayFrames:  2,
		MaxDelayFrames:  10,
		AdaptationSpeed: 0.2,
		MaxCapacity:     256,
	}
}

// Stats reports the buffer's adaptation state for diagnostics.
type Stats struct {
	BufferSize      int
	PacketsPlayed   uint64
	PacketsDropped  uint64 // late arrivals
	PacketsDuplicate uint64
	Underruns       uint64
	JitterMs        float64
	PlayoutDelayMs  float64
}

type entry struct {
	sequence    uint16
	timestamp   uint32
	payload     []byte
	playoutTime time.Time
}

// Buffer is a single-SSRC jitter buffer.
type Buffer struct {
	mu     sync.Mutex
	config Config

	entries map[uint16]*entry

	nextSequence    uint16
	haveNext        bool
	baseTimestamp   uint32
	baseArrival     time.Time
	haveBase        bool

	playoutDelayUnits uint32

	jitter       float64
	prevArrival  time.Time
	havePrevAr   bool
	prevTimestamp uint32

	stats Stats

	now func() time.Time // overridable for tests
}

// NewBuffer constructs a Buffer with the given config.
func NewBuffer(config Config) *Buffer {
	b := &Buffer{
		config:  config,
		entries: make(map[uint16]*entry),
		now:     time.Now,
	}
	b.playoutDelayUnits = config.MinDelayFrames * (config.ClockRate / 30)
	return b
}

// Push records one arriving RTP packet's sequence number, timestamp, and
// payload, per spec.md §4.7.
func (b *Buffer) Push(sequence uint16, timestamp uint32, payload []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	arrival := b.now()

	if !b.haveBase {
		b.haveBase = true
		b.baseTimestamp = timestamp
		b.baseArrival = arrival
		b.nextSequence = sequence
		b.haveNext = true
	}

	if _, dup := b.entries[sequence]; dup {
		b.stats.PacketsDuplicate++
		return
	}

	b.updateJitter(arrival, timestamp)

	playoutTime := b.calculatePlayoutTime(timestamp)
	if !b.config.UltraLowLatency && arrival.After(playoutTime) {
		b.stats.PacketsDropped++
		return
	}

	if b.config.MaxCapacity > 0 && len(b.entries) >= b.config.MaxCapacity {
		b.evictOldest()
	}

	b.entries[sequence] = &entry{sequence: sequence, timestamp: timestamp, payload: payload, playoutTime: playoutTime}
	b.stats.BufferSize = len(b.entries)

	b.adaptPlayoutDelay()
}

func (b *Buffer) evictOldest() {
	var oldestSeq uint16
	var oldest *entry
	for seq, e := range b.entries {
		if oldest == nil || int16(seq-oldestSeq) < 0 {
			oldest, oldestSeq = e, seq
		}
	}
	if oldest != nil {
		delete(b.entries, oldestSeq)
	}
}

func (b *Buffer) updateJitter(arrival time.Time, timestamp uint32) {
	if !b.havePrevAr {
		b.havePrevAr = true
		b.prevArrival = arrival
		b.prevTimestamp = timestamp
		return
	}
	arrivalDelta := arrival.Sub(b.prevArrival).Seconds()
	timestampDelta := float64(int32(timestamp-b.prevTimestamp)) / float64(b.config.ClockRate)
	d := arrivalDelta - timestampDelta
	if d < 0 {
		d = -d
	}
	b.jitter += (d - b.jitter) / 16
	b.stats.JitterMs = b.jitter * 1000

	b.prevArrival = arrival
	b.prevTimestamp = timestamp
}

func (b *Buffer) calculatePlayoutTime(timestamp uint32) time.Time {
	tsDelta := int64(int32(timestamp - b.baseTimestamp))
	playoutDelayMs := int64(b.playoutDelayUnits) * 1000 / int64(b.config.ClockRate)
	offsetMs := playoutDelayMs + tsDelta*1000/int64(b.config.ClockRate)
	return b.baseArrival.Add(time.Duration(offsetMs) * time.Millisecond)
}

func (b *Buffer) adaptPlayoutDelay() {
	jitterUnits := uint32(b.jitter * float64(b.config.ClockRate))
	framesToUnits := b.config.ClockRate / 30
	minDelay := b.config.MinDelayFrames * framesToUnits
	maxDelay := b.config.MaxDelayFrames * framesToUnits

	target := minDelay + 2*jitterUnits
	if target < minDelay {
		target = minDelay
	}
	if target > maxDelay {
		target = maxDelay
	}

	adjustment := int64(float64(int64(target)-int64(b.playoutDelayUnits)) * b.config.AdaptationSpeed)
	next := int64(b.playoutDelayUnits) + adjustment
	if next < int64(minDelay) {
		next = int64(minDelay)
	}
	b.playoutDelayUnits = uint32(next)
	b.stats.PlayoutDelayMs = float64(b.playoutDelayUnits) * 1000 / float64(b.config.ClockRate)
}

// Pop returns the next packet to play, per spec.md §4.7: in normal mode,
// the next packet in sequence only once now >= its playout time; in
// ultra-low-latency mode, the earliest available packet regardless of
// playout time. Missing sequence numbers advance the expected counter and
// increment underruns.
func (b *Buffer) Pop() (payload []byte, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.config.UltraLowLatency {
		return b.popUltraLowLatency()
	}
	return b.popNormal()
}

func (b *Buffer) popNormal() ([]byte, bool) {
	if !b.haveNext {
		return nil, false
	}
	seq := b.nextSequence
	if e, found := b.entries[seq]; found {
		if b.now().Before(e.playoutTime) {
			return nil, false
		}
		delete(b.entries, seq)
		return b.consume(e, seq+1), true
	}

	b.stats.Underruns++
	b.nextSequence = seq + 1
	return nil, false
}

func (b *Buffer) popUltraLowLatency() ([]byte, bool) {
	if b.haveNext {
		if e, found := b.entries[b.nextSequence]; found {
			seq := b.nextSequence
			delete(b.entries, seq)
			return b.consume(e, seq+1), true
		}
	}

	seqs := make([]uint16, 0, len(b.entries))
	for seq := range b.entries {
		seqs = append(seqs, seq)
	}
	if len(seqs) == 0 {
		return nil, false
	}
	sort.Slice(seqs, func(i, j int) bool { return int16(seqs[i]-seqs[j]) < 0 })
	first := seqs[0]
	e := b.entries[first]
	delete(b.entries, first)

	if b.haveNext {
		skipped := uint64(first - b.nextSequence)
		if skipped > 0 && skipped < 1000 {
			b.stats.Underruns += skipped
		}
	}
	return b.consume(e, first+1), true
}

func (b *Buffer) consume(e *entry, next uint16) []byte {
	b.nextSequence = next
	b.haveNext = true
	b.stats.PacketsPlayed++
	b.stats.BufferSize = len(b.entries)
	return e.payload
}

// Stats returns a snapshot of the buffer's current statistics.
func (b *Buffer) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}

// Clear resets the buffer, used when a stream is reset (e.g. camera toggle).
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = make(map[uint16]*entry)
	b.haveNext = false
	b.haveBase = false
	b.havePrevAr = false
	b.stats.BufferSize = 0
}
