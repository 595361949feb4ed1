package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Type names one kind of internal occurrence.
type Type string

const (
	TypeKeyOffloaded  Type = "key.offloaded"
	TypeKeyLoaded     Type = "key.loaded"
	TypeExpirySwept   Type = "expiry.swept"
	TypeCheckpoint    Type = "wal.checkpoint"
	TypeCompaction    Type = "wal.compaction"
	TypeSnapshotSaved Type = "snapshot.saved"
)

// Event is one recorded occurrence.
type Event struct {
	ID        string
	Type      Type
	Timestamp time.Time
	Key       string
	Count     int
	Message   string
}

// Subscriber is a channel that receives events.
type Subscriber chan *Event

// Broker distributes events to internal subscribers (the metrics
// collector, diagnostic logging) via a buffered channel and
// non-blocking publish.
type Broker struct {
	subscribers map[Subscriber]bool
	mu          sync.RWMutex
	eventCh     chan *Event
	stopCh      chan struct{}
}

// NewBroker creates a new event broker.
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]bool),
		eventCh:     make(chan *Event, 100),
		stopCh:      make(chan struct{}),
	}
}

// Start begins the broker's event distribution loop.
func (b *Broker) Start() {
	go b.run()
}

// Stop stops the broker.
func (b *Broker) Stop() {
	close(b.stopCh)
}

// Subscribe creates a new subscription and returns its channel.
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, 50)
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes a subscription.
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.subscribers, sub)
	close(sub)
}

// Publish records an occurrence, stamping an id/timestamp if absent.
func (b *Broker) Publish(event *Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case b.eventCh <- event:
	case <-b.stopCh:
	}
}

func (b *Broker) run() {
	for {
		select {
		case event := <-b.eventCh:
			b.broadcast(event)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) broadcast(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		select {
		case sub <- event:
		default:
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
