package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/sakif/bookmarkbox/internal/auth"
	"github.com/sakif/bookmarkbox/internal/feed"
	"github.com/sakif/bookmarkbox/internal/model"
	"github.com/sakif/bookmarkbox/internal/store"
)

// Subscription consumes the server's change feed and applies each event
// to the local store.
//
// TRUST BOUNDARY:
// The wire payload is validated BEFORE it touches the store. A frame
// with an unknown event type, a missing row, or a row with a blank
// id/userId is logged and dropped. The store has its own ownership and
// version guards, but those assume a structurally sound row — this is
// where structure is checked.
//
// LIFECYCLE:
// Subscribe opens the stream and starts a reader goroutine. Unsubscribe
// cancels the stream and WAITS for the goroutine to exit — after
// Unsubscribe returns, the store will never be mutated by this
// subscription again. Without the wait, a frame already read could land
// after teardown.
type Subscription struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// changeEvent is the wire shape of one feed frame.
// Pointers distinguish "absent" from "zero" — a delete frame has no
// "new" row at all, not an empty one.
type changeEvent struct {
	EventType string          `json:"eventType"`
	New       *model.Bookmark `json:"new,omitempty"`
	Old       *model.Bookmark `json:"old,omitempty"`
}

// Subscribe opens the change feed and streams events into the store
// until ctx is cancelled or Unsubscribe is called.
func (c *Client) Subscribe(ctx context.Context, st *store.Store, logger *slog.Logger) (*Subscription, error) {
	ctx, cancel := context.WithCancel(ctx)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/events", nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("building stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.AddCookie(&http.Cookie{Name: auth.SessionCookie, Value: c.token})

	// The stream must not be subject to the client's request timeout —
	// it is SUPPOSED to stay open forever.
	streamClient := &http.Client{}
	resp, err := streamClient.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("opening event stream: %w", err)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		cancel()
		return nil, ErrNoSession
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("opening event stream: unexpected status %d", resp.StatusCode)
	}

	sub := &Subscription{
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(sub.done)
		defer resp.Body.Close()
		readStream(resp.Body, st, logger)
	}()

	return sub, nil
}

// Unsubscribe tears the stream down. Safe to call more than once.
// When it returns, no further store mutations will come from this
// subscription.
func (s *Subscription) Unsubscribe() {
	s.once.Do(s.cancel)
	<-s.done
}

// Done is closed when the stream has ended (teardown, network drop, or
// server shutdown). Callers watch it to trigger reconnect-and-reload.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// readStream parses SSE frames and applies each valid event.
//
// SSE FRAMING:
// A frame is a run of "field: value" lines ended by a blank line. We
// only care about "data:" lines ("event:" duplicates what the payload
// carries, and ":" lines are comments/heartbeats).
func readStream(body io.Reader, st *store.Store, logger *slog.Logger) {
	scanner := bufio.NewScanner(body)

	var data strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "data:"):
			data.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		case line == "":
			if data.Len() > 0 {
				applyFrame(data.String(), st, logger)
				data.Reset()
			}
		}
	}
	// Scanner stopped: context cancelled or connection lost. Either way
	// the subscription is over; the caller sees it via Done.
}

// applyFrame validates one payload and dispatches it to the store.
func applyFrame(payload string, st *store.Store, logger *slog.Logger) {
	var ev changeEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		logger.Warn("feed: dropping malformed frame", slog.String("error", err.Error()))
		return
	}

	// Pick the row the event type is about: inserts and updates describe
	// the new state, deletes describe what was removed.
	var row *model.Bookmark
	switch ev.EventType {
	case string(feed.EventInsert), string(feed.EventUpdate):
		row = ev.New
	case string(feed.EventDelete):
		row = ev.Old
	default:
		logger.Warn("feed: dropping frame with unknown event type",
			slog.String("eventType", ev.EventType),
		)
		return
	}

	if row == nil || row.ID == "" || row.UserID == "" {
		logger.Warn("feed: dropping frame with incomplete row",
			slog.String("eventType", ev.EventType),
		)
		return
	}

	switch ev.EventType {
	case string(feed.EventInsert):
		st.ApplyInsert(*row)
	case string(feed.EventUpdate):
		st.ApplyUpdate(*row)
	case string(feed.EventDelete):
		st.ApplyDelete(*row)
	}
}
