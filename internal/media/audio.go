package media

// AudioSource is a producer of encoded audio frames, kept from the
// teacher's internal/media/audio.go/audio_source.go.
type AudioSource interface {
	Source

	SampleRate() int
	Channels() int
}

// OpusSource is an AudioSource that yields whole encoded Opus frames,
// mirroring H264Source on the video side. Microphone capture and the Opus
// encoder itself are external collaborators; this core only consumes
// ReadFrame.
type OpusSource interface {
	AudioSource

	// ReadFrame returns one encoded Opus frame. On EOF it returns an empty
	// slice and a nil error. The returned slice is valid only until the
	// next call.
	ReadFrame() ([]byte, error)
}

// AudioSink is a consumer of decoded audio frames (e.g. a speaker), kept
// from the teacher's internal/media/audio_sink.go.
type AudioSink interface {
	MediaSink

	// Configure is called once, before the first Write, with the sample
	// rate and channel count the sink should expect.
	Configure(sampleRate, channels int) error
}
