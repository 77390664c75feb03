package packet

import "fmt"

// Reader deserializes values from a byte slice in network byte order.
type Reader struct {
	buffer []byte
	offset int
}

func NewReader(buffer []byte) *Reader {
	return &Reader{buffer, 0}
}

func (r *Reader) ReadByte() byte {
	v := r.buffer[r.offset]
	r.offset++
	return v
}

func (r *Reader) ReadUint16() uint16 {
	v := networkOrder.Uint16(r.buffer[r.offset:])
	r.offset += 2
	return v
}

func (r *Reader) ReadUint24() uint32 {
	v := uint32(r.ReadByte()) << 16
	v |= uint32(r.ReadByte()) << 8
	v |= uint32(r.ReadByte())
	return v
}

func (r *Reader) ReadUint32() uint32 {
	v := networkOrder.Uint32(r.buffer[r.offset:])
	r.offset += 4
	return v
}

func (r *Reader) ReadUint64() uint64 {
	v := networkOrder.Uint64(r.buffer[r.offset:])
	r.offset += 8
	return v
}

// ReadSlice returns a slice aliasing the next n bytes of the underlying buffer.
func (r *Reader) ReadSlice(n int) []byte {
	v := r.buffer[r.offset : r.offset+n]
	r.offset += n
	return v
}

// ReadLenPrefixedString reads a u16 length prefix followed by that many bytes
// of UTF-8 text, per the file-transfer and DCEP wire formats.
func (r *Reader) ReadLenPrefixedString() (string, error) {
	if err := r.CheckRemaining(2); err != nil {
		return "", err
	}
	n := int(r.ReadUint16())
	if err := r.CheckRemaining(n); err != nil {
		return "", err
	}
	return string(r.ReadSlice(n)), nil
}

func (r *Reader) Skip(n int) {
	r.offset += n
}

func (r *Reader) ReadRemaining() []byte {
	v := r.buffer[r.offset:]
	r.offset += len(v)
	return v
}

// Remaining returns the number of bytes left in the buffer.
func (r *Reader) Remaining() int {
	return len(r.buffer) - r.offset
}

func (r *Reader) CheckRemaining(needed int) error {
	if r.Remaining() < needed {
		return fmt.Errorf("packet: %d bytes remaining, %d needed", r.Remaining(), needed)
	}
	return nil
}
