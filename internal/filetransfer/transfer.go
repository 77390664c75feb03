package filetransfer

import "sort"

// State is a transfer's lifecycle state, per spec.md §3.
type State int

const (
	StatePending State = iota
	StateTransferring
	StateCompleted
	StateCancelled
	StateFailed
)

// Chunk sizing bounds from spec.md §3/§4.11: sender enforces MTU-safe chunk
// sizes, growing by 50% every 10 acked chunks and halving on failure.
const (
	minChunkSize     = 512
	maxChunkSize     = 1200
	initialChunkSize = 1024
)

// OutgoingTransfer is the sender side of a file transfer, per spec.md §3.
// Grounded in original_source's OutgoingTransfer: an adaptive chunk size
// that behaves like TCP slow start.
type OutgoingTransfer struct {
	ID        uint64
	Filename  string
	MimeType  string
	TotalSize uint64
	BytesSent uint64
	State     State

	data []byte // full file contents, held in memory for this core

	chunkSize         int
	successfulChunks  uint64
}

// NewOutgoingTransfer constructs a pending outgoing transfer for data.
func NewOutgoingTransfer(id uint64, filename, mimeType string, data []byte) *OutgoingTransfer {
	return &OutgoingTransfer{
		ID:        id,
		Filename:  filename,
		MimeType:  mimeType,
		TotalSize: uint64(len(data)),
		State:     StatePending,
		data:      data,
		chunkSize: initialChunkSize,
	}
}

// Accept transitions a Pending transfer to Transferring once the peer has
// sent Accept, per spec.md §4.11.
func (t *OutgoingTransfer) Accept() {
	if t.State == StatePending {
		t.State = StateTransferring
	}
}

// AdaptChunkSize implements spec.md §3's chunk-size adaptation: +50% every
// 10 acked chunks (capped at maxChunkSize), halved on failure (floored at
// minChunkSize).
func (t *OutgoingTransfer) AdaptChunkSize(success bool) {
	if success {
		t.successfulChunks++
		if t.successfulChunks%10 == 0 && t.chunkSize < maxChunkSize {
			t.chunkSize = t.chunkSize * 3 / 2
			if t.chunkSize > maxChunkSize {
				t.chunkSize = maxChunkSize
			}
		}
		return
	}
	t.chunkSize /= 2
	if t.chunkSize < minChunkSize {
		t.chunkSize = minChunkSize
	}
}

// NextChunk returns the next chunk to send and its offset, or ok=false when
// the whole file has been sent.
func (t *OutgoingTransfer) NextChunk() (offset uint64, chunk []byte, ok bool) {
	if t.State != StateTransferring || t.BytesSent >= t.TotalSize {
		return 0, nil, false
	}
	remaining := t.TotalSize - t.BytesSent
	size := uint64(t.chunkSize)
	if size > remaining {
		size = remaining
	}
	offset = t.BytesSent
	chunk = t.data[offset : offset+size]
	t.BytesSent += size
	if t.BytesSent >= t.TotalSize {
		t.State = StateCompleted
	}
	return offset, chunk, true
}

// IncomingTransfer is the receiver side of a file transfer, per spec.md §3.
// Grounded in original_source's IncomingTransfer: chunks accumulate into an
// offset-keyed map and are written out in ascending order on Complete.
type IncomingTransfer struct {
	ID            uint64
	Filename      string
	MimeType      string
	TotalSize     uint64
	BytesReceived uint64
	State         State

	chunks map[uint64][]byte
}

// NewIncomingTransfer constructs a Pending incoming transfer from an Offer.
func NewIncomingTransfer(id uint64, filename, mimeType string, size uint64) *IncomingTransfer {
	return &IncomingTransfer{
		ID:        id,
		Filename:  filename,
		MimeType:  mimeType,
		TotalSize: size,
		State:     StatePending,
		chunks:    make(map[uint64][]byte),
	}
}

// Accept transitions a Pending transfer to Transferring.
func (t *IncomingTransfer) Accept() {
	if t.State == StatePending {
		t.State = StateTransferring
	}
}

// ReceiveChunk accumulates one Data chunk, ignoring duplicate offsets and
// rejecting chunks that would overrun the offered size, per spec.md §4.11.
func (t *IncomingTransfer) ReceiveChunk(offset uint64, data []byte) error {
	if t.State != StateTransferring {
		return errTransferNotInProgress
	}
	if _, dup := t.chunks[offset]; dup {
		return nil
	}
	if t.BytesReceived+uint64(len(data)) > t.TotalSize {
		return errTransferOverrun
	}
	t.chunks[offset] = append([]byte(nil), data...)
	t.BytesReceived += uint64(len(data))
	return nil
}

// Assemble concatenates every received chunk in ascending offset order,
// per spec.md §4.11's "written to disk in ascending offset order".
func (t *IncomingTransfer) Assemble() []byte {
	offsets := make([]uint64, 0, len(t.chunks))
	for off := range t.chunks {
		offsets = append(offsets, off)
	}
	sort.Slice(offsets, func(i, j int) bool { return offsets[i] < offsets[j] })

	out := make([]byte, 0, t.BytesReceived)
	for _, off := range offsets {
		out = append(out, t.chunks[off]...)
	}
	return out
}
