/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package events

import "sync"

// EventType enumerates event categories.
type EventType string

const (
	EventScanProgress EventType = "scan.progress"
	EventScanState    EventType = "scan.state"
	EventScanFinished EventType = "scan.finished"

	EventTrashAdded    EventType = "trash.added"
	EventTrashRestored EventType = "trash.restored"
	EventTrashPurged   EventType = "trash.purged"
	EventTrashSwept    EventType = "trash.swept"

	EventQuotaChanged EventType = "quota.changed"
)

// ScanEvents are the events streamed to scan observers.
var ScanEvents = []EventType{EventScanProgress, EventScanState, EventScanFinished}

// TrashEvents cover every trash mutation.
var TrashEvents = []EventType{EventTrashAdded, EventTrashRestored, EventTrashPurged, EventTrashSwept}

// Payload generic event payload.
type Payload map[string]any

// Subscriber receives event payloads.
type Subscriber chan Payload

// Bus implements a simple in-process pubsub. Slow subscribers miss events
// rather than block publishers.
type Bus struct {
	mu   sync.RWMutex
	subs map[EventType][]Subscriber
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[EventType][]Subscriber)}
}

// Subscribe registers a subscriber for event type.
func (b *Bus) Subscribe(eventType EventType) Subscriber {
	ch := make(Subscriber, 32)
	b.mu.Lock()
	b.subs[eventType] = append(b.subs[eventType], ch)
	b.mu.Unlock()
	return ch
}

// Publish sends payload to subscribers. A nil bus drops the event.
func (b *Bus) Publish(eventType EventType, payload Payload) {
	if b == nil {
		return
	}
	// Sends are non-blocking, so holding the read lock keeps Unsubscribe from
	// closing a channel mid-send.
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs[eventType] {
		select {
		case sub <- payload:
		default:
		}
	}
}

// Unsubscribe removes the subscriber and closes its channel.
func (b *Bus) Unsubscribe(eventType EventType, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subs[eventType]
	for i, candidate := range subs {
		if candidate == sub {
			b.subs[eventType] = append(subs[:i:i], subs[i+1:]...)
			close(sub)
			return
		}
	}
}

// Envelope tags a payload with its event type.
type Envelope struct {
	Type    EventType `json:"type"`
	Payload Payload   `json:"payload"`
}

// SubscribeMany merges several event types into one channel. The returned
// cancel function unsubscribes and must be called exactly once.
func (b *Bus) SubscribeMany(types ...EventType) (<-chan Envelope, func()) {
	out := make(chan Envelope, 32)
	done := make(chan struct{})
	var wg sync.WaitGroup

	subs := make([]Subscriber, len(types))
	for i, t := range types {
		subs[i] = b.Subscribe(t)
		wg.Add(1)
		go func(t EventType, sub Subscriber) {
			defer wg.Done()
			for p := range sub {
				select {
				case out <- Envelope{Type: t, Payload: p}:
				case <-done:
				}
			}
		}(t, subs[i])
	}

	cancel := func() {
		close(done)
		for i, t := range types {
			b.Unsubscribe(t, subs[i])
		}
		wg.Wait()
		close(out)
	}
	return out, cancel
}
