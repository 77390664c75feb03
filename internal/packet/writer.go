// Package packet provides low-level big-endian byte encoding helpers shared
// by every wire codec in rtcore (STUN, RTP/RTCP, SCTP, DCEP, file transfer).
package packet

import (
	"encoding/binary"
	"fmt"
)

var networkOrder = binary.BigEndian

// Writer serializes values into a fixed-size buffer in network byte order.
type Writer struct {
	buffer []byte
	offset int
}

func NewWriter(buffer []byte) *Writer {
	return &Writer{buffer, 0}
}

func NewWriterSize(n int) *Writer {
	return NewWriter(make([]byte, n))
}

func (w *Writer) WriteByte(v byte) {
	w.buffer[w.offset] = v
	w.offset++
}

func (w *Writer) WriteUint16(v uint16) {
	networkOrder.PutUint16(w.buffer[w.offset:], v)
	w.offset += 2
}

func (w *Writer) WriteUint24(v uint32) {
	w.WriteByte(byte(v >> 16 & 0xff))
	w.WriteByte(byte(v >> 8 & 0xff))
	w.WriteByte(byte(v & 0xff))
}

func (w *Writer) WriteUint32(v uint32) {
	networkOrder.PutUint32(w.buffer[w.offset:], v)
	w.offset += 4
}

func (w *Writer) WriteUint64(v uint64) {
	networkOrder.PutUint64(w.buffer[w.offset:], v)
	w.offset += 8
}

// WriteSlice writes the given bytes, if there is enough room.
func (w *Writer) WriteSlice(p []byte) error {
	if err := w.CheckCapacity(len(p)); err != nil {
		return err
	}
	w.offset += copy(w.buffer[w.offset:], p)
	return nil
}

func (w *Writer) WriteString(s string) error {
	if err := w.CheckCapacity(len(s)); err != nil {
		return err
	}
	w.offset += copy(w.buffer[w.offset:], s)
	return nil
}

// WriteLenPrefixedString writes a u16 length prefix followed by the UTF-8
// bytes of s, per the file-transfer and DCEP wire formats.
func (w *Writer) WriteLenPrefixedString(s string) error {
	if err := w.CheckCapacity(2 + len(s)); err != nil {
		return err
	}
	w.WriteUint16(uint16(len(s)))
	return w.WriteString(s)
}

func (w *Writer) ZeroPad(n int) {
	for i := 0; i < n; i++ {
		w.WriteByte(0)
	}
}

// Align pads with zeros up to the next multiple of width, e.g. Align(4) adds
// zero bytes until the next 4-byte boundary (used by SCTP chunk padding).
func (w *Writer) Align(width int) {
	boundary := width * ((w.offset + width - 1) / width)
	for w.offset < boundary {
		w.buffer[w.offset] = 0
		w.offset++
	}
}

// Length returns the number of bytes written so far.
func (w *Writer) Length() int {
	return w.offset
}

func (w *Writer) Rewind(n int) {
	w.offset -= n
	if w.offset < 0 {
		w.offset = 0
	}
}

// Capacity returns the number of bytes that the underlying buffer can hold.
func (w *Writer) Capacity() int {
	return len(w.buffer)
}

func (w *Writer) CheckCapacity(needed int) error {
	if len(w.buffer)-w.offset < needed {
		return fmt.Errorf("packet: %d bytes available, %d needed", len(w.buffer)-w.offset, needed)
	}
	return nil
}

// Bytes returns a slice of the bytes written so far.
func (w *Writer) Bytes() []byte {
	return w.buffer[0:w.offset]
}

func (w *Writer) Reset() {
	w.offset = 0
}
