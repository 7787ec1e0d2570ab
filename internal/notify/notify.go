// Package notify fans out "something changed" signals to live dashboard
// subscribers. Publishing is fire-and-forget: a slow or disconnected
// subscriber never blocks the ingestion path that triggered the signal.
package notify

import (
	"sync"
)

// Actions broadcast by the ingestion pipeline.
const (
	ActionSessionCreated = "session_created"
	ActionEventCreated   = "event_created"
	ActionErrorRecorded  = "error_recorded"
)

// Update is one change signal scoped to a website.
type Update struct {
	Type      string `json:"type"`
	WebsiteID uint   `json:"websiteId"`
	Action    string `json:"action"`
}

// defaultQueueSize bounds each subscriber's pending updates. Dashboards
// re-fetch on any update, so dropping the oldest pending signal loses
// nothing.
const defaultQueueSize = 16

// Subscriber receives updates on a bounded channel.
type Subscriber struct {
	ch chan Update
}

// Updates returns the subscriber's receive channel. It is closed on
// Unsubscribe.
func (s *Subscriber) Updates() <-chan Update {
	return s.ch
}

// Broker is the in-process publish/subscribe fan-out.
type Broker struct {
	mu        sync.Mutex
	subs      map[*Subscriber]struct{}
	queueSize int
}

// NewBroker creates a broker with the default per-subscriber queue size.
func NewBroker() *Broker {
	return &Broker{
		subs:      make(map[*Subscriber]struct{}),
		queueSize: defaultQueueSize,
	}
}

// Subscribe registers a new subscriber.
func (b *Broker) Subscribe() *Subscriber {
	s := &Subscriber{ch: make(chan Update, b.queueSize)}

	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	return s
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broker) Unsubscribe(s *Subscriber) {
	b.mu.Lock()
	_, ok := b.subs[s]
	if ok {
		delete(b.subs, s)
	}
	b.mu.Unlock()

	if ok {
		close(s.ch)
	}
}

// Publish delivers the update to every subscriber without blocking. When a
// subscriber's queue is full the oldest pending update is dropped to make
// room.
func (b *Broker) Publish(u Update) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for s := range b.subs {
		select {
		case s.ch <- u:
		default:
			// Queue full: drop the oldest pending update, then retry once.
			select {
			case <-s.ch:
			default:
			}
			select {
			case s.ch <- u:
			default:
			}
		}
	}
}

// Broadcast is a convenience wrapper publishing a typed update signal.
func (b *Broker) Broadcast(websiteID uint, action string) {
	b.Publish(Update{Type: "update", WebsiteID: websiteID, Action: action})
}

// SubscriberCount returns the current number of subscribers.
func (b *Broker) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
