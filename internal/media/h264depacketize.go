// H.264 reassembly adapter between the jitter buffer and a real decoder,
// per spec.md §4.6/§4.8. internal/jitter.Buffer keys entries by RTP
// sequence number but Pop only returns the payload, so the receive path
// prefixes each pushed payload with its 2-byte sequence number; this
// adapter strips the prefix back off and drives the FU-A reassembly before
// handing whole NAL units to the real codec.
package media

import (
	"encoding/binary"
	"fmt"

	"github.com/lanikai/rtcore/internal/rtp"
)

// PrefixSequence prepends seq's big-endian encoding to payload, the
// convention the video receive path uses to carry a packet's RTP sequence
// number through the jitter buffer.
func PrefixSequence(seq uint16, payload []byte) []byte {
	out := make([]byte, 2+len(payload))
	binary.BigEndian.PutUint16(out, seq)
	copy(out[2:], payload)
	return out
}

// H264ReassemblingDecoder wraps a NAL-unit decoder, reassembling FU-A
// fragments popped from the jitter buffer before decoding, per spec.md
// §4.6: frames are withheld until an SPS/PPS pair has been observed.
type H264ReassemblingDecoder struct {
	depacketizer rtp.H264Depacketizer
	inner        Decoder
}

// NewH264ReassemblingDecoder wraps inner, the codec that turns complete NAL
// units into raw frames.
func NewH264ReassemblingDecoder(inner Decoder) *H264ReassemblingDecoder {
	return &H264ReassemblingDecoder{inner: inner}
}

// Decode strips the sequence-number prefix PrefixSequence added, feeds the
// RTP payload through FU-A reassembly, and only calls through to inner once
// a complete NAL unit is available and SPS/PPS have been seen. A nil,nil
// result means no frame is ready yet, not a failure.
func (d *H264ReassemblingDecoder) Decode(encoded []byte) ([]byte, error) {
	if len(encoded) < 2 {
		return nil, fmt.Errorf("media: short jitter-buffered H.264 payload")
	}
	seq := binary.BigEndian.Uint16(encoded[:2])
	payload := encoded[2:]

	nalu, dropped, err := d.depacketizer.Push(seq, payload)
	if err != nil {
		if dropped {
			logger.Warn("media: dropping incomplete H.264 access unit: %v", err)
			return nil, nil
		}
		return nil, err
	}
	if nalu == nil || !d.depacketizer.Ready() {
		return nil, nil
	}
	return d.inner.Decode(nalu)
}

// Close closes the wrapped codec.
func (d *H264ReassemblingDecoder) Close() error {
	return d.inner.Close()
}
