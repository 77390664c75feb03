package packet

import "sync/atomic"

// SharedBuffer is a read-only byte buffer that may be accessed concurrently
// from multiple goroutines. When a SharedBuffer is passed to a consumer
// function, the consumer should process the bytes and Release() the buffer
// as quickly as possible.
//
// Sharing is managed by reference counting. Hold() increments the reference
// count by 1, Release() decrements it by 1. The done function is called when
// the count reaches 0.
type SharedBuffer struct {
	data []byte

	count int32
	done  func()
}

func NewSharedBuffer(data []byte, count int, done func()) *SharedBuffer {
	return &SharedBuffer{data, int32(count), done}
}

// Bytes returns the underlying byte buffer.
func (buf *SharedBuffer) Bytes() []byte {
	return buf.data
}

// Hold increments the hold count.
func (buf *SharedBuffer) Hold() {
	atomic.AddInt32(&buf.count, 1)
}

// Release decrements the hold count. When the hold count reaches zero, the
// underlying byte buffer is released.
func (buf *SharedBuffer) Release() {
	if buf == nil {
		return
	}
	if atomic.AddInt32(&buf.count, -1) == 0 {
		if buf.done != nil {
			buf.done()
		}
		buf.data = nil
	}
}
