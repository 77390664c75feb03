package media

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakePopper struct {
	items [][]byte
}

func (f *fakePopper) Pop() ([]byte, bool) {
	if len(f.items) == 0 {
		return nil, false
	}
	item := f.items[0]
	f.items = f.items[1:]
	return item, true
}

type passthroughDecoder struct{}

func (passthroughDecoder) Decode(b []byte) ([]byte, error) { return b, nil }
func (passthroughDecoder) Close() error                    { return nil }

func TestPipelineDecodesAndBroadcasts(t *testing.T) {
	popper := &fakePopper{items: [][]byte{{1, 2, 3}, {4, 5, 6}}}
	out := NewBroadcaster()
	sub := out.Subscribe(4)

	p := NewPipeline(popper, passthroughDecoder{}, out, time.Millisecond)
	defer p.Close()

	first := <-sub
	require.Equal(t, []byte{1, 2, 3}, first)
	second := <-sub
	require.Equal(t, []byte{4, 5, 6}, second)
}
