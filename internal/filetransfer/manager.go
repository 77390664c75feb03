package filetransfer

import (
	"fmt"
	"hash/crc64"
	"os"
	"path/filepath"
	"sync"

	"github.com/lanikai/rtcore/internal/datachannel"
	"github.com/lanikai/rtcore/internal/events"
	"github.com/lanikai/rtcore/internal/rtcerr"
	"github.com/lanikai/rtcore/internal/rtclog"
)

var logger = rtclog.New("filetransfer")

var crc64Table = crc64.MakeTable(crc64.ISO)

// checksum hashes data the same way on both ends: CRC-64/ISO, the u64-sized
// analogue of the CRC-32c already used by internal/sctp, chosen because the
// wire format's Complete message carries a u64 checksum field.
func checksum(data []byte) uint64 {
	return crc64.Checksum(data, crc64Table)
}

// EventFunc delivers a TransferEvent to the orchestrator, per spec.md §4.11
// ("progress events are emitted at least every chunk").
type EventFunc func(typ events.Type, ev events.TransferEvent)

// Manager drives the file-transfer protocol over a single `file-transfer`
// data channel, per spec.md §4.11. Grounded in
// original_source/webrtc/src/session/file_transfer/*.rs and
// frontend/src/logic/receive_thread.rs's event-forwarding shape.
type Manager struct {
	mu sync.Mutex

	dc        *datachannel.Manager
	channelID uint16
	haveChan  bool

	saveDir string
	onEvent EventFunc

	outgoing map[uint64]*OutgoingTransfer
	incoming map[uint64]*IncomingTransfer

	nextID uint64
}

// NewManager constructs a Manager bound to dc. saveDir is where accepted
// incoming transfers are written on Complete; onEvent may be nil.
func NewManager(dc *datachannel.Manager, saveDir string, onEvent EventFunc) *Manager {
	if onEvent == nil {
		onEvent = func(events.Type, events.TransferEvent) {}
	}
	return &Manager{
		dc:       dc,
		saveDir:  saveDir,
		onEvent:  onEvent,
		outgoing: make(map[uint64]*OutgoingTransfer),
		incoming: make(map[uint64]*IncomingTransfer),
	}
}

// ensureChannel opens the well-known file-transfer channel if one isn't
// already open, per spec.md §4.11/§4.10's `find_open_file_channel()`.
func (m *Manager) ensureChannel() error {
	m.mu.Lock()
	haveChan := m.haveChan
	m.mu.Unlock()
	if haveChan {
		return nil
	}

	if ch, ok := m.dc.FindOpenChannel(datachannel.FileTransferLabel); ok {
		m.mu.Lock()
		m.channelID = ch.StreamID
		m.haveChan = true
		m.mu.Unlock()
		return nil
	}

	ch, err := m.dc.OpenChannel(datachannel.FileTransferLabel, "")
	if err != nil {
		return fmt.Errorf("filetransfer: open channel: %w", err)
	}
	m.mu.Lock()
	m.channelID = ch.StreamID
	m.haveChan = true
	m.mu.Unlock()
	return nil
}

// OnChannelOpened notifies the manager that the file-transfer channel is
// now Open, in case it was opened by the remote peer rather than by us.
func (m *Manager) OnChannelOpened(ch *datachannel.Channel) {
	if ch.Label != datachannel.FileTransferLabel {
		return
	}
	m.mu.Lock()
	m.channelID = ch.StreamID
	m.haveChan = true
	m.mu.Unlock()
}

func (m *Manager) send(payload []byte) error {
	m.mu.Lock()
	id := m.channelID
	m.mu.Unlock()
	return m.dc.SendMessage(id, 53, payload) // PPID 53 binary
}

// OfferFile begins an outgoing transfer of data, sending an Offer message,
// per spec.md §4.11. ensureChannel and send run outside the lock, per
// spec.md §5: opening the channel can synchronously recurse back into this
// same Manager's OnChannelOpened (via the DCEP ACK, in tests wiring two
// sides directly together), which would deadlock on a lock held here.
func (m *Manager) OfferFile(filename, mimeType string, data []byte) (uint64, error) {
	if err := m.ensureChannel(); err != nil {
		return 0, err
	}

	m.mu.Lock()
	m.nextID++
	id := m.nextID
	t := NewOutgoingTransfer(id, filename, mimeType, data)
	m.outgoing[id] = t
	m.mu.Unlock()

	if err := m.send(marshalOffer(id, filename, t.TotalSize, mimeType)); err != nil {
		m.mu.Lock()
		delete(m.outgoing, id)
		m.mu.Unlock()
		return 0, fmt.Errorf("filetransfer: send offer: %w", err)
	}
	return id, nil
}

// HandleMessage processes one inbound payload from the file-transfer
// channel, per spec.md §4.11's six message types.
func (m *Manager) HandleMessage(payload []byte) {
	msg, err := ParseMessage(payload)
	if err != nil {
		logger.Warn("filetransfer: malformed message: %v", err)
		return
	}

	switch msg.Type {
	case msgTypeOffer:
		m.handleOffer(msg)
	case msgTypeAccept:
		m.handleAccept(msg)
	case msgTypeReject:
		m.handleReject(msg)
	case msgTypeData:
		m.handleData(msg)
	case msgTypeComplete:
		m.handleComplete(msg)
	case msgTypeCancel:
		m.handleCancel(msg)
	}
}

func (m *Manager) handleOffer(msg Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.incoming[msg.ID] = NewIncomingTransfer(msg.ID, msg.Filename, msg.MimeType, msg.Size)
}

// AcceptTransfer accepts a pending incoming offer, per spec.md §4.11.
func (m *Manager) AcceptTransfer(id uint64) error {
	m.mu.Lock()
	t, ok := m.incoming[id]
	if !ok {
		m.mu.Unlock()
		return rtcerr.New(rtcerr.KindApplication, "filetransfer: unknown transfer %d", id)
	}
	t.Accept()
	m.mu.Unlock()

	if err := m.ensureChannel(); err != nil {
		return err
	}
	return m.send(marshalAccept(id))
}

// RejectTransfer rejects a pending incoming offer with reason.
func (m *Manager) RejectTransfer(id uint64, reason string) error {
	m.mu.Lock()
	delete(m.incoming, id)
	m.mu.Unlock()

	if err := m.ensureChannel(); err != nil {
		return err
	}
	return m.send(marshalReject(id, reason))
}

func (m *Manager) handleAccept(msg Message) {
	m.mu.Lock()
	t, ok := m.outgoing[msg.ID]
	if ok {
		t.Accept()
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	if err := m.sendAllChunks(t); err != nil {
		logger.Warn("filetransfer: send chunks for transfer %d: %v", msg.ID, err)
	}
}

func (m *Manager) handleReject(msg Message) {
	m.mu.Lock()
	_, ok := m.outgoing[msg.ID]
	delete(m.outgoing, msg.ID)
	m.mu.Unlock()
	if ok {
		m.onEvent(events.TransferFailed, events.TransferEvent{ID: msg.ID, Reason: "rejected: " + msg.Reason})
	}
}

// sendAllChunks pumps every remaining chunk of an accepted outgoing
// transfer, adapting the chunk size per spec.md §3 as it goes, then sends
// Complete with the whole-file checksum.
func (m *Manager) sendAllChunks(t *OutgoingTransfer) error {
	for {
		m.mu.Lock()
		offset, chunk, ok := t.NextChunk()
		m.mu.Unlock()
		if !ok {
			break
		}

		err := m.send(marshalData(t.ID, offset, chunk))
		m.mu.Lock()
		t.AdaptChunkSize(err == nil)
		bytesSent := t.BytesSent
		m.mu.Unlock()
		if err != nil {
			return fmt.Errorf("filetransfer: send chunk at offset %d: %w", offset, err)
		}
		m.onEvent(events.TransferProgress, events.TransferEvent{ID: t.ID, BytesTransferred: bytesSent, TotalSize: t.TotalSize})
	}

	sum := checksum(t.data)
	if err := m.send(marshalComplete(t.ID, sum)); err != nil {
		return fmt.Errorf("filetransfer: send complete: %w", err)
	}
	m.mu.Lock()
	delete(m.outgoing, t.ID)
	m.mu.Unlock()
	m.onEvent(events.TransferCompleted, events.TransferEvent{ID: t.ID, BytesTransferred: t.TotalSize, TotalSize: t.TotalSize})
	return nil
}

func (m *Manager) handleData(msg Message) {
	m.mu.Lock()
	t, ok := m.incoming[msg.ID]
	if !ok {
		m.mu.Unlock()
		return
	}
	err := t.ReceiveChunk(msg.Offset, msg.Data)
	bytesReceived, total := t.BytesReceived, t.TotalSize
	m.mu.Unlock()
	if err != nil {
		logger.Warn("filetransfer: transfer %d: %v", msg.ID, err)
		return
	}
	m.onEvent(events.TransferProgress, events.TransferEvent{ID: msg.ID, BytesTransferred: bytesReceived, TotalSize: total})
}

// handleComplete verifies the whole-file checksum and, on success, writes
// the reassembled file to saveDir, per spec.md §4.11/§8 property 7.
func (m *Manager) handleComplete(msg Message) {
	m.mu.Lock()
	t, ok := m.incoming[msg.ID]
	if !ok {
		m.mu.Unlock()
		return
	}
	data := t.Assemble()
	filename := t.Filename
	delete(m.incoming, msg.ID)
	m.mu.Unlock()

	if checksum(data) != msg.Checksum {
		m.onEvent(events.TransferFailed, events.TransferEvent{ID: msg.ID, Reason: "checksum mismatch"})
		return
	}

	if m.saveDir != "" {
		path := filepath.Join(m.saveDir, filepath.Base(filename))
		if err := os.WriteFile(path, data, 0o644); err != nil {
			m.onEvent(events.TransferFailed, events.TransferEvent{ID: msg.ID, Reason: fmt.Sprintf("write failed: %v", err)})
			return
		}
	}

	m.onEvent(events.TransferCompleted, events.TransferEvent{ID: msg.ID, BytesTransferred: t.BytesReceived, TotalSize: t.TotalSize})
}

func (m *Manager) handleCancel(msg Message) {
	m.mu.Lock()
	delete(m.outgoing, msg.ID)
	delete(m.incoming, msg.ID)
	m.mu.Unlock()
	m.onEvent(events.TransferCancelled, events.TransferEvent{ID: msg.ID, Reason: msg.Reason})
}

// CancelTransfer cancels an in-flight transfer on either side, freeing all
// state on both ends once the peer processes the Cancel message, per
// spec.md §4.11.
func (m *Manager) CancelTransfer(id uint64, reason string) error {
	m.mu.Lock()
	delete(m.outgoing, id)
	delete(m.incoming, id)
	m.mu.Unlock()

	if err := m.ensureChannel(); err != nil {
		return err
	}
	return m.send(marshalCancel(id, reason))
}
