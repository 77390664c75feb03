package media

// VideoSource is a producer of encoded video frames, kept from the
// teacher's internal/media/video.go.
type VideoSource interface {
	Source

	Width() int
	Height() int
}

// H264Source is a VideoSource that yields whole NAL units, kept from the
// teacher's internal/media/h264.go. Camera capture and the H.264 encoder
// itself are external collaborators; this core only consumes ReadNALU.
type H264Source interface {
	VideoSource

	// ReadNALU returns one whole NAL unit. On EOF it returns an empty slice
	// and a nil error. The returned slice is valid only until the next call.
	ReadNALU() ([]byte, error)
}

// VideoSink is a consumer of decoded video frames (e.g. a display), kept
// from the teacher's internal/media/sinks.go.
type VideoSink interface {
	MediaSink
}
