package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sakif/bookmarkbox/internal/auth"
	"github.com/sakif/bookmarkbox/internal/feed"
)

// EventsHandler streams bookmark change events to the browser over
// Server-Sent Events (SSE).
//
// WHY SSE AND NOT WEBSOCKETS?
// The change feed is strictly server→client: the browser only ever listens.
// SSE gives us exactly that over plain HTTP — no upgrade handshake, no
// extra dependency, automatic reconnection built into EventSource. A
// WebSocket would add bidirectional machinery we'd never use.
//
// WIRE FORMAT (one frame per change):
//
//	event: update
//	data: {"eventType":"update","new":{...},"old":{...}}
//
// The event type is carried BOTH as the SSE event name (so EventSource can
// addEventListener per type) and inside the JSON payload (so a consumer
// reading only `data:` lines still knows what happened).
type EventsHandler struct {
	hub    *feed.Hub
	logger *slog.Logger
}

// heartbeatInterval is how often a comment frame is written to keep
// proxies and load balancers from reaping the idle connection.
const heartbeatInterval = 25 * time.Second

// NewEventsHandler creates an EventsHandler.
func NewEventsHandler(hub *feed.Hub, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{
		hub:    hub,
		logger: logger,
	}
}

// HandleStream subscribes the caller to their own change feed and streams
// events until the client disconnects.
//
// HTTP: GET /api/events
// Auth: Required — the stream only ever carries the caller's own rows.
//
// LIFECYCLE:
// Subscribe on entry, defer Close. When the request context is cancelled
// (tab closed, network drop), the deferred Close deregisters the
// subscription so the hub stops buffering events for a dead connection.
func (h *EventsHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}

	// SSE requires the ability to flush each frame immediately.
	// http.ResponseWriter doesn't guarantee this — we must check.
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.logger.Error("events: response writer does not support flushing")
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	// Standard SSE headers. "no-cache" stops intermediaries from buffering
	// the stream; "keep-alive" is implicit in HTTP/1.1 but explicit is clearer.
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	sub := h.hub.Subscribe(userID)
	defer sub.Close()

	h.logger.Info("event stream opened", slog.String("userID", userID))

	// Tell the client the stream is live before any real event arrives.
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			// Client went away. The deferred Close cleans up the hub entry.
			h.logger.Info("event stream closed", slog.String("userID", userID))
			return

		case <-heartbeat.C:
			// SSE comment frame — ignored by EventSource, but it keeps the
			// TCP connection warm through proxies.
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()

		case ev, open := <-sub.C:
			if !open {
				// Hub shut down (server stopping). End the stream cleanly;
				// EventSource will reconnect and hit the new process.
				return
			}
			if err := writeSSE(w, ev); err != nil {
				h.logger.Warn("events: write failed, dropping stream",
					slog.String("userID", userID),
					slog.String("error", err.Error()),
				)
				return
			}
			flusher.Flush()
		}
	}
}

// writeSSE encodes one event as an SSE frame.
func writeSSE(w http.ResponseWriter, ev feed.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	// A frame is "event:" + "data:" lines terminated by a blank line.
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, payload)
	return err
}
