// Package events carries inbound events from the core to an attached UI.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Type names the UI transition an event requests.
type Type string

const (
	// TypePush surfaces a new ring while the UI is attached.
	TypePush Type = "push"
	// TypeTap routes the user through the success/acknowledgment path.
	TypeTap Type = "tap"
)

// Event is one inbound UI event.
type Event struct {
	ID            string    `json:"id"`
	Type          Type      `json:"type"`
	AlarmID       int64     `json:"alarm_id"`
	Label         string    `json:"label"`
	Kind          string    `json:"kind"`
	ChallengeKind int       `json:"challenge_kind"`
	Sunrise       bool      `json:"sunrise"`
	At            time.Time `json:"at"`
}

// Bus fans events out to subscriber channels. A subscriber that cannot keep
// up is dropped and its channel closed; it must subscribe again.
type Bus struct {
	mu   sync.Mutex
	subs map[string]chan Event
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[string]chan Event)}
}

// Subscribe registers a new subscriber and returns its id and channel.
func (b *Bus) Subscribe() (string, <-chan Event) {
	id := uuid.NewString()
	ch := make(chan Event, 16)
	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}

// Publish delivers the event to every subscriber without blocking.
func (b *Bus) Publish(ev Event) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			delete(b.subs, id)
			close(ch)
		}
	}
}
