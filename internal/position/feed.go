package position

import (
	"sync"

	"github.com/google/uuid"

	"github.com/pkordes/little-escape/internal/tracker"
)

type subscriber struct {
	onSample func(tracker.Sample)
	onError  func(error)
}

// Feed is an in-process PositionSource. Producers call Publish or Fail;
// every current subscriber receives the event. Events published while nobody
// is subscribed are dropped.
type Feed struct {
	mu   sync.Mutex
	next int
	subs map[int]subscriber
}

// NewFeed returns an empty feed.
func NewFeed() *Feed {
	return &Feed{subs: make(map[int]subscriber)}
}

// Subscribe registers callbacks until the returned func is called.
func (f *Feed) Subscribe(onSample func(tracker.Sample), onError func(error)) (func(), error) {
	f.mu.Lock()
	id := f.next
	f.next++
	f.subs[id] = subscriber{onSample: onSample, onError: onError}
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, id)
			f.mu.Unlock()
		})
	}, nil
}

// Publish delivers s to every subscriber and reports how many received it.
func (f *Feed) Publish(s tracker.Sample) int {
	subs := f.snapshot()
	for _, sub := range subs {
		sub.onSample(s)
	}
	return len(subs)
}

// Fail delivers err to every subscriber.
func (f *Feed) Fail(err error) int {
	subs := f.snapshot()
	for _, sub := range subs {
		sub.onError(err)
	}
	return len(subs)
}

// Subscribers returns the number of live subscriptions.
func (f *Feed) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func (f *Feed) snapshot() []subscriber {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]subscriber, 0, len(f.subs))
	for _, s := range f.subs {
		out = append(out, s)
	}
	return out
}

// Hub keeps one Feed per trip.
type Hub struct {
	mu    sync.Mutex
	feeds map[uuid.UUID]*Feed
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{feeds: make(map[uuid.UUID]*Feed)}
}

// Feed returns the trip's feed, creating it on first use.
func (h *Hub) Feed(tripID uuid.UUID) *Feed {
	h.mu.Lock()
	defer h.mu.Unlock()
	f, ok := h.feeds[tripID]
	if !ok {
		f = NewFeed()
		h.feeds[tripID] = f
	}
	return f
}

// Lookup returns the trip's feed without creating one.
func (h *Hub) Lookup(tripID uuid.UUID) (*Feed, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	f, ok := h.feeds[tripID]
	return f, ok
}

// Remove forgets the trip's feed. Call it once the run has released its
// subscription.
func (h *Hub) Remove(tripID uuid.UUID) {
	h.mu.Lock()
	delete(h.feeds, tripID)
	h.mu.Unlock()
}

// Len reports how many trips have a feed.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.feeds)
}

// Merge combines several sources into one. Subscribing fails as a whole if
// any source fails; already-made subscriptions are released in that case.
func Merge(sources ...tracker.PositionSource) tracker.PositionSource {
	return merged(sources)
}

type merged []tracker.PositionSource

func (m merged) Subscribe(onSample func(tracker.Sample), onError func(error)) (func(), error) {
	var unsubs []func()
	release := func() {
		for _, u := range unsubs {
			u()
		}
	}
	for _, src := range m {
		if src == nil {
			continue
		}
		u, err := src.Subscribe(onSample, onError)
		if err != nil {
			release()
			return nil, err
		}
		unsubs = append(unsubs, u)
	}
	var once sync.Once
	return func() { once.Do(release) }, nil
}
