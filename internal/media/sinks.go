// Media sink interfaces and universal implementations, kept from the
// teacher's internal/media/sinks.go.

package media

import (
	"io"
	"os"
)

// MediaSink is the interface for media sinks (e.g. speaker, display).
type MediaSink interface {
	io.Closer
	io.Writer
}

// FileMediaSink is a generic file writer, useful for testing or recording a
// decoded stream to disk.
type FileMediaSink struct {
	file *os.File
}

// NewFileMediaSink creates (or truncates) filename for writing.
func NewFileMediaSink(filename string) (*FileMediaSink, error) {
	f, err := os.Create(filename)
	if err != nil {
		return nil, err
	}
	return &FileMediaSink{file: f}, nil
}

func (s *FileMediaSink) Close() error {
	return s.file.Close()
}

// Configure satisfies AudioSink; a file sink needs no configuration.
func (s *FileMediaSink) Configure(sampleRate, channels int) error {
	return nil
}

func (s *FileMediaSink) Write(p []byte) (int, error) {
	return s.file.Write(p)
}
