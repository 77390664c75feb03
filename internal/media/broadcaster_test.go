package media

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBroadcasterSubscribeAndWrite(t *testing.T) {
	b := NewBroadcaster()

	const subscribers = 20
	var wg sync.WaitGroup
	wg.Add(subscribers)

	for i := 0; i < subscribers; i++ {
		ch := b.Subscribe(1)
		go func(ch <-chan []byte) {
			defer wg.Done()
			p := <-ch
			require.Equal(t, []byte{0xc0, 0xff, 0xee}, p)
		}(ch)
	}

	_, err := b.Write([]byte{0xc0, 0xff, 0xee})
	require.NoError(t, err)

	wg.Wait()
}

func TestBroadcasterUnsubscribe(t *testing.T) {
	b := NewBroadcaster()

	ch := b.Subscribe(10)
	require.NoError(t, b.Unsubscribe(ch))
	require.ErrorIs(t, b.Unsubscribe(ch), errNotFound)
}

func TestBroadcasterDropsOldestWhenBacklogged(t *testing.T) {
	b := NewBroadcaster()
	ch := b.Subscribe(1)

	_, err := b.Write([]byte{1})
	require.NoError(t, err)
	_, err = b.Write([]byte{2})
	require.NoError(t, err)

	require.Equal(t, []byte{2}, <-ch)
}

func TestBroadcasterCloseDrainsSubscribers(t *testing.T) {
	b := NewBroadcaster()
	ch := b.Subscribe(4)

	_, err := b.Write([]byte{1})
	require.NoError(t, err)
	require.NoError(t, b.Close())

	_, ok := <-ch
	require.False(t, ok)
}
