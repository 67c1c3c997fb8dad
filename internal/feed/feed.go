// Package feed implements the live change feed: a per-user fan-out hub that
// delivers bookmark insert/update/delete events to every open session of the
// same user.
//
// WHY A HUB AND NOT A MESSAGE BROKER?
// This is a single-binary app — publisher and subscribers live in the same
// process. A map of Go channels gives us exactly the semantics we need
// (typed events, per-user scoping, teardown on disconnect) with no external
// infrastructure. The SSE handler is the only transport on top of this.
//
// SCOPING IS THE SECURITY BOUNDARY:
// Publish(userID, ...) delivers ONLY to subscriptions registered for that
// userID. This is the server-side filter that keeps one user's changes from
// ever reaching another user's stream. The client store re-checks ownership
// on every event anyway, so the guard exists at both ends.
package feed

import (
	"log/slog"
	"sync"

	"github.com/sakif/bookmarkbox/internal/model"
)

// EventType identifies what happened to a bookmark.
type EventType string

const (
	EventInsert EventType = "insert"
	EventUpdate EventType = "update"
	EventDelete EventType = "delete"
)

// Event is one change notification. Its JSON shape is the wire format of the
// SSE stream and the input format of the client subscription:
//
//	{"eventType":"insert","new":{...bookmark...}}
//	{"eventType":"update","new":{...},"old":{...}}
//	{"eventType":"delete","old":{...}}
//
// New carries the row after the change (insert/update); Old carries the row
// before it (update/delete). The absent one is omitted from the JSON.
type Event struct {
	Type EventType       `json:"eventType"`
	New  *model.Bookmark `json:"new,omitempty"`
	Old  *model.Bookmark `json:"old,omitempty"`
}

// Inserted builds an insert event for a newly created bookmark.
func Inserted(b *model.Bookmark) Event {
	return Event{Type: EventInsert, New: b}
}

// Updated builds an update event carrying both row versions.
func Updated(old, new *model.Bookmark) Event {
	return Event{Type: EventUpdate, New: new, Old: old}
}

// Deleted builds a delete event carrying the removed row.
func Deleted(b *model.Bookmark) Event {
	return Event{Type: EventDelete, Old: b}
}

// subscriptionBuffer is the channel capacity per subscription. A browser tab
// consuming SSE drains far faster than a human mutates bookmarks, so a small
// buffer absorbs bursts; if it ever fills, Publish drops the event for that
// subscriber rather than blocking the mutation path.
const subscriptionBuffer = 16

// Hub routes events to per-user subscriptions.
//
// CONCURRENCY:
// Publish is called from HTTP request goroutines; Subscribe/Close from the
// SSE handler goroutines. A single RWMutex over the subscription map keeps
// the bookkeeping safe. Event delivery itself is just a channel send, done
// under the read lock so a concurrent Close can't send on a closed channel.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[*Subscription]struct{}
	logger *slog.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		subs:   make(map[string]map[*Subscription]struct{}),
		logger: logger,
	}
}

// Subscription is one live stream for one user session.
//
// Receive from C until it is closed. Call Close exactly once when the session
// ends or the view is left — it unregisters the subscription and closes C, so
// a ranging consumer terminates naturally.
type Subscription struct {
	C chan Event

	hub    *Hub
	userID string
	once   sync.Once
}

// Subscribe registers a new stream scoped to userID.
func (h *Hub) Subscribe(userID string) *Subscription {
	sub := &Subscription{
		C:      make(chan Event, subscriptionBuffer),
		hub:    h,
		userID: userID,
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.subs[userID] == nil {
		h.subs[userID] = make(map[*Subscription]struct{})
	}
	h.subs[userID][sub] = struct{}{}

	return sub
}

// Close tears the subscription down: deregisters it from the hub and closes
// the channel. Safe to call multiple times; only the first call does anything.
// After Close returns, no further events are delivered — there is no lingering
// handler that could mutate a store behind the consumer's back.
func (s *Subscription) Close() {
	s.once.Do(func() {
		h := s.hub
		h.mu.Lock()
		defer h.mu.Unlock()

		if set, ok := h.subs[s.userID]; ok {
			delete(set, s)
			if len(set) == 0 {
				delete(h.subs, s.userID)
			}
		}
		close(s.C)
	})
}

// Publish delivers ev to every live subscription for userID, and to nobody
// else. Delivery is non-blocking: a subscriber whose buffer is full misses
// the event (and a warning is logged) instead of stalling the mutation that
// triggered it.
func (h *Hub) Publish(userID string, ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subs[userID] {
		select {
		case sub.C <- ev:
		default:
			h.logger.Warn("feed: dropping event for slow subscriber",
				slog.String("userID", userID),
				slog.String("eventType", string(ev.Type)),
			)
		}
	}
}

// SubscriberCount reports how many live streams exist for userID.
// Not part of the delivery path; tests use it to wait for registration.
func (h *Hub) SubscriberCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID])
}
