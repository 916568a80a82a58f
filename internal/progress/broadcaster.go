package progress

import (
	"context"
	"sync"
)

const subscriberBuffer = 32

// Broadcaster fans events out to in-process subscribers of a job. Slow
// subscribers lose events rather than block the pipeline.
type Broadcaster struct {
	mu   sync.Mutex
	subs map[string]map[chan Event]struct{}
}

var _ Notifier = (*Broadcaster)(nil)

// NewBroadcaster creates a broadcaster with no subscribers.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[string]map[chan Event]struct{})}
}

// Subscribe returns a channel of events for jobID and a function that ends
// the subscription. The channel is closed after a terminal event or when
// the subscription ends.
func (b *Broadcaster) Subscribe(jobID string) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	b.mu.Lock()
	if b.subs[jobID] == nil {
		b.subs[jobID] = make(map[chan Event]struct{})
	}
	b.subs[jobID][ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			b.remove(jobID, ch)
		})
	}
}

// remove closes ch if it is still registered. Callers hold b.mu.
func (b *Broadcaster) remove(jobID string, ch chan Event) {
	set, ok := b.subs[jobID]
	if !ok {
		return
	}
	if _, ok := set[ch]; !ok {
		return
	}
	delete(set, ch)
	close(ch)
	if len(set) == 0 {
		delete(b.subs, jobID)
	}
}

// Notify delivers e to all subscribers of e.JobID.
func (b *Broadcaster) Notify(_ context.Context, e Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.subs[e.JobID] {
		select {
		case ch <- e:
		default:
		}
		if e.Terminal() {
			b.remove(e.JobID, ch)
		}
	}
	return nil
}

// Subscribers returns the number of active subscriptions for jobID.
func (b *Broadcaster) Subscribers(jobID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[jobID])
}
