// Media codec interfaces, kept from the teacher's internal/media/
// encoder.go/decoder.go. H.264 and Opus codecs themselves are named-but-
// unimplemented collaborators per spec.md §1: a production build supplies
// them (typically via cgo bindings to libopenh264/libopus, as the teacher
// does for Opus in internal/media/opus.go), and this core only ever calls
// through these two interfaces.

package media

import "io"

// Encoder is the interface for audio and video encoders.
type Encoder interface {
	io.Closer

	Encode(raw []byte) (encoded []byte, err error)
}

// Decoder is the interface for audio and video decoders.
type Decoder interface {
	io.Closer

	Decode(encoded []byte) (raw []byte, err error)
}
