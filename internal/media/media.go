// Package media implements the receive/decode/playback split from
// spec.md §4.8: VideoSource/VideoSink/AudioSource/AudioSink interfaces kept
// from the teacher's internal/media package, a Broadcaster fan-out adapted
// from the teacher's root broadcaster.go, and the thread wiring from
// jitter-buffer output to decode to presentation. Camera/microphone capture
// and actual device playback are external collaborators reached only
// through these interfaces; this package supplies neither cgo codec
// bindings nor device drivers.
package media

// Source is the generic interface shared by AudioSource and VideoSource,
// kept from the teacher's internal/media/media.go.
type Source interface {
	// PayloadType identifies the RTP payload for this source, e.g. "H264/90000".
	PayloadType() string

	// Close frees any resources associated with the source.
	Close() error
}
