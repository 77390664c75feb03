// Broadcast decoded frames from one writer to multiple subscribers (e.g.
// multiple local renderers, or a renderer plus a recording sink), adapted
// from the teacher's root broadcaster.go. Each subscriber has its own
// buffered channel; a byte slice is a shallow reference shared across all
// subscribers, and is left for the garbage collector once every subscriber
// has drained it. A backlogged subscriber drops its oldest buffered frame
// rather than block the writer.
package media

import "sync"

// Subscriber is the consumer-facing half of a Broadcaster.
type Subscriber interface {
	Subscribe(n int) <-chan []byte
	Unsubscribe(s <-chan []byte) error
}

// Broadcaster implements io.Writer, io.Closer, and Subscriber.
type Broadcaster struct {
	mu          sync.Mutex
	subscribers []chan []byte
}

// NewBroadcaster constructs an empty, ready-to-use Broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{}
}

// Subscribe registers a new subscriber, buffering up to n frames for it.
func (b *Broadcaster) Subscribe(n int) <-chan []byte {
	if n < 1 {
		panic("media.Broadcaster: subscriber capacity must be nonzero")
	}

	ch := make(chan []byte, n)
	b.mu.Lock()
	b.subscribers = append(b.subscribers, ch)
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes the subscriber identified by the channel Subscribe
// returned.
func (b *Broadcaster) Unsubscribe(s <-chan []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, ch := range b.subscribers {
		if ch == s {
			close(ch)
			n := len(b.subscribers)
			b.subscribers[i] = b.subscribers[n-1]
			b.subscribers[n-1] = nil
			b.subscribers = b.subscribers[:n-1]
			return nil
		}
	}
	return errNotFound
}

// Write fans p out to every subscriber. A subscriber whose channel is full
// has its oldest buffered frame dropped to make room for p.
func (b *Broadcaster) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subscribers {
		select {
		case ch <- p:
		default:
			<-ch
			ch <- p
		}
	}
	return len(p), nil
}

// Close disconnects every subscriber. Each subscriber's channel is closed
// and drained; subsequent Writes are no-ops.
func (b *Broadcaster) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subscribers {
		close(ch)
		for range ch {
		}
	}
	b.subscribers = nil
	return nil
}
