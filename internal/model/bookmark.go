// Package model defines the data structures used throughout the application.
// In Go, we use structs to represent our data — similar to classes in other languages,
// but without inheritance. Go favours composition over inheritance.
package model

import "time"

// Bookmark represents a saved link owned by exactly one user.
//
// The `json:"..."` tags tell Go's encoding/json package how to serialize this
// struct. The same shape travels over the REST API and the change feed, so
// the client packages decode into this exact type.
//
// OWNERSHIP:
// UserID is set once at creation and never changes. Every repository query is
// constrained by user_id, so a bookmark is invisible to every session except
// its owner's. The client-side store re-checks UserID on every inbound event
// as a second line of defense (see internal/store).
//
// TIMESTAMPS:
// CreatedAt is immutable. UpdatedAt is refreshed on every successful mutation,
// including favorite toggles, and is therefore monotonically non-decreasing
// over the record's lifetime. The client store relies on this to discard
// out-of-order update events.
type Bookmark struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	Description string    `json:"description"` // optional — empty string when unset (stored as NULL)
	IsFavorite  bool      `json:"isFavorite"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
