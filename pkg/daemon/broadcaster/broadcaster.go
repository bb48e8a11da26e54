// Package broadcaster fans scan events out to subscribed clients.
package broadcaster

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"google.golang.org/protobuf/types/known/structpb"
)

// subscriberBuffer bounds how far a slow client may fall behind before
// events for it are dropped.
const subscriberBuffer = 256

// Subscriber receives one event channel of one project.
type Subscriber struct {
	ID        string
	Event     string
	ProjectID string
	Events    chan *structpb.Struct
}

// Broadcaster manages subscribers and distributes events.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]*Subscriber
	dropped     atomic.Uint64
	closed      bool
}

// New creates a new Broadcaster.
func New() *Broadcaster {
	return &Broadcaster{
		subscribers: make(map[string]*Subscriber),
	}
}

// Subscribe registers interest in event for projectID. An empty projectID
// receives the event for every project. It returns nil after Close.
func (b *Broadcaster) Subscribe(event, projectID string) *Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}

	sub := &Subscriber{
		ID:        uuid.New().String(),
		Event:     event,
		ProjectID: projectID,
		Events:    make(chan *structpb.Struct, subscriberBuffer),
	}

	b.subscribers[sub.ID] = sub
	return sub
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broadcaster) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub, ok := b.subscribers[id]; ok {
		close(sub.Events)
		delete(b.subscribers, id)
	}
}

// Publish sends payload to every subscriber of event for projectID and
// returns how many received it. A full subscriber misses the event.
func (b *Broadcaster) Publish(event, projectID string, payload *structpb.Struct) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return 0
	}

	delivered := 0
	for _, sub := range b.subscribers {
		if !matches(sub, event, projectID) {
			continue
		}
		select {
		case sub.Events <- payload:
			delivered++
		default:
			b.dropped.Add(1)
		}
	}
	return delivered
}

func matches(sub *Subscriber, event, projectID string) bool {
	return sub.Event == event && (sub.ProjectID == "" || sub.ProjectID == projectID)
}

// Close closes the broadcaster and all subscriptions.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	b.closed = true
	for _, sub := range b.subscribers {
		close(sub.Events)
	}
	b.subscribers = make(map[string]*Subscriber)
}

// SubscriberCount returns the number of active subscribers.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Dropped returns how many deliveries were skipped because a subscriber
// was full.
func (b *Broadcaster) Dropped() uint64 {
	return b.dropped.Load()
}
