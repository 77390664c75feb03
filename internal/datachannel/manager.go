package datachannel

import (
	"fmt"
	"sync"

	"github.com/lanikai/rtcore/internal/rtclog"
)

var logger = rtclog.New("datachannel")

// FileTransferLabel is the well-known label the file-transfer protocol
// (internal/filetransfer) opens its channel with, per spec.md §4.11.
const FileTransferLabel = "file-transfer"

// SendFunc is how the Manager hands an encoded SCTP DATA payload to the
// association for transmission; bound to sctp.Association.SendData by the
// orchestrator.
type SendFunc func(streamID uint16, ppid uint32, payload []byte, unordered bool) error

// Event is delivered to the Manager's owner when a channel's state changes
// or a message arrives, per spec.md §4.10.
type Event struct {
	Channel *Channel
	Opened  bool
	Closed  bool
	Message []byte // PPID 51/53 user payload; nil for control events
	PPID    uint32
}

// Manager allocates stream ids with the offerer/answerer parity spec.md §3
// requires (even for the DTLS client/offerer, odd for the answerer, to
// avoid glare) and drives the DCEP OPEN/ACK handshake for each channel.
// Grounded in the teacher's internal/signaling channel-bookkeeping idiom:
// a small mutex-guarded map polled by event, never by a background thread
// of its own.
type Manager struct {
	mu sync.Mutex

	isClient    bool // DTLS client == SCTP/DCEP initiator, allocates even ids
	nextStreamID uint16

	channels map[uint16]*Channel
	send     SendFunc

	events []Event
}

// NewManager constructs a Manager. isClient mirrors the DTLS/SCTP role.
func NewManager(isClient bool, send SendFunc) *Manager {
	start := uint16(1)
	if isClient {
		start = 0
	}
	return &Manager{
		isClient:     isClient,
		nextStreamID: start,
		channels:     make(map[uint16]*Channel),
		send:         send,
	}
}

func (m *Manager) allocateStreamID() uint16 {
	id := m.nextStreamID
	m.nextStreamID += 2
	return id
}

// OpenChannel initiates a new data channel labeled label, sending a DCEP
// OPEN message on a freshly allocated stream id, per spec.md §4.10. The
// send happens outside the manager's lock, per spec.md §5: a mutex is never
// held across I/O, and in this sans-I/O stack "I/O" includes a send that
// synchronously recurses back into HandleMessage (e.g. in tests wiring two
// managers directly together).
func (m *Manager) OpenChannel(label, protocol string) (*Channel, error) {
	m.mu.Lock()
	id := m.allocateStreamID()
	ch := &Channel{StreamID: id, Label: label, Protocol: protocol, Ordered: true, State: StateConnecting}
	m.channels[id] = ch
	m.mu.Unlock()

	open := OpenMessage{ChannelType: ChannelTypeReliable, Label: label, Protocol: protocol}
	if err := m.send(id, PPIDDCEP(), open.Marshal(), false); err != nil {
		m.mu.Lock()
		delete(m.channels, id)
		m.mu.Unlock()
		return nil, fmt.Errorf("datachannel: open %q: %w", label, err)
	}
	return ch, nil
}

// PPIDDCEP returns the DCEP PPID (50), exported for callers constructing
// SendFunc bindings without importing internal/sctp directly.
func PPIDDCEP() uint32 { return 50 }

// HandleMessage processes one inbound SCTP DATA payload for streamID/ppid,
// per spec.md §4.10/§6's PPID dispatch (50 DCEP, 51 string, 53 binary, 56/57
// empty variants). Returns the Event to deliver to the manager's owner, if
// any.
func (m *Manager) HandleMessage(streamID uint16, ppid uint32, payload []byte) (Event, bool) {
	if ppid == 50 {
		return m.handleDCEP(streamID, payload)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	switch ppid {
	case 51, 53, 56, 57: // string, binary, string-empty, binary-empty
		ch, ok := m.channels[streamID]
		if !ok || ch.State != StateOpen {
			logger.Warn("datachannel: message on unknown/unopened stream %d", streamID)
			return Event{}, false
		}
		ch.RecvBytes += uint64(len(payload))
		return Event{Channel: ch, Message: payload, PPID: ppid}, true
	default:
		logger.Warn("datachannel: unknown PPID %d on stream %d", ppid, streamID)
		return Event{}, false
	}
}

// handleDCEP processes an OPEN or ACK message. The ACK send for an
// incoming OPEN happens after the lock is released, per spec.md §5.
func (m *Manager) handleDCEP(streamID uint16, payload []byte) (Event, bool) {
	if isAck(payload) {
		m.mu.Lock()
		ch, ok := m.channels[streamID]
		if ok {
			ch.State = StateOpen
		}
		m.mu.Unlock()
		if !ok {
			return Event{}, false
		}
		return Event{Channel: ch, Opened: true}, true
	}

	open, err := ParseOpenMessage(payload)
	if err != nil {
		logger.Warn("datachannel: malformed OPEN on stream %d: %v", streamID, err)
		return Event{}, false
	}
	ch := &Channel{StreamID: streamID, Label: open.Label, Protocol: open.Protocol, Ordered: true, State: StateOpen}
	m.mu.Lock()
	m.channels[streamID] = ch
	m.mu.Unlock()

	if err := m.send(streamID, PPIDDCEP(), marshalAck(), false); err != nil {
		logger.Warn("datachannel: failed to ack stream %d: %v", streamID, err)
	}
	return Event{Channel: ch, Opened: true}, true
}

// SendMessage sends payload on an Open channel with the given PPID (51
// string, 53 binary), per spec.md §6.
func (m *Manager) SendMessage(streamID uint16, ppid uint32, payload []byte) error {
	m.mu.Lock()
	ch, ok := m.channels[streamID]
	if !ok || ch.State != StateOpen {
		m.mu.Unlock()
		return fmt.Errorf("datachannel: stream %d is not open", streamID)
	}
	ch.SendBytes += uint64(len(payload))
	m.mu.Unlock()

	return m.send(streamID, ppid, payload, false)
}

// FindOpenChannel returns any Open channel with the given label without
// depending on event ordering, per spec.md §4.10's
// `find_open_file_channel()`.
func (m *Manager) FindOpenChannel(label string) (*Channel, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.channels {
		if ch.Label == label && ch.State == StateOpen {
			return ch, true
		}
	}
	return nil, false
}

// Close marks every channel Closed. No per-stream close exists at the SCTP
// layer (spec.md §4.9); streams simply go idle.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.channels {
		ch.State = StateClosed
	}
}
