package client

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sakif/bookmarkbox/internal/apperror"
	"github.com/sakif/bookmarkbox/internal/store"
	"github.com/sakif/bookmarkbox/internal/validate"
)

// Gateway is the write path: it sits between the UI and the API and
// decides, per mutation, how the local store is involved.
//
// THREE CONVERGENCE STRATEGIES, by mutation:
//
//   - CREATE and UPDATE wait for the echo. The gateway calls the API and
//     leaves the store alone; the row appears/changes locally when the
//     change feed delivers the event. One code path mutates the store
//     (the subscription), so a create looks identical whether this
//     session or another tab made it.
//
//   - DELETE is optimistic. The row vanishes locally the instant the
//     user asks, BEFORE the server confirms — deletes feel instant, and
//     the common case succeeds. If the server refuses, the row is put
//     back at the exact position it was removed from.
//
// VALIDATE BEFORE THE WIRE:
// The gateway runs the same validation the server runs (the validate
// package is shared). An invalid create or update fails locally with a
// validation error and performs NO network call at all.
type Gateway struct {
	api    *Client
	store  *store.Store
	logger *slog.Logger
}

// NewGateway creates a Gateway bound to one client and one store.
func NewGateway(api *Client, st *store.Store, logger *slog.Logger) *Gateway {
	return &Gateway{
		api:    api,
		store:  st,
		logger: logger,
	}
}

// Create validates and submits a new bookmark.
// The local store is NOT touched on success — the row arrives via the
// change feed, like any other session's insert would.
func (g *Gateway) Create(ctx context.Context, rawURL, rawTitle, rawDescription string) error {
	url, ok := validate.URL(rawURL)
	if !ok {
		return apperror.ValidationFailed("url", "a valid http(s) URL is required")
	}
	title, ok := validate.Title(rawTitle)
	if !ok {
		return apperror.ValidationFailed("title", "title is required")
	}
	description, ok := validate.Description(rawDescription)
	if !ok {
		return apperror.ValidationFailed("description", "description is too long")
	}

	if _, err := g.api.CreateBookmark(ctx, url, title, description); err != nil {
		return fmt.Errorf("creating bookmark: %w", err)
	}
	return nil
}

// Update validates and submits an edit to an existing bookmark.
// Like Create, convergence happens through the feed echo.
func (g *Gateway) Update(ctx context.Context, id, rawURL, rawTitle, rawDescription string) error {
	if id == "" {
		return apperror.ValidationFailed("id", "bookmark ID is required")
	}
	url, ok := validate.URL(rawURL)
	if !ok {
		return apperror.ValidationFailed("url", "a valid http(s) URL is required")
	}
	title, ok := validate.Title(rawTitle)
	if !ok {
		return apperror.ValidationFailed("title", "title is required")
	}
	description, ok := validate.Description(rawDescription)
	if !ok {
		return apperror.ValidationFailed("description", "description is too long")
	}

	if _, err := g.api.UpdateBookmark(ctx, id, url, title, description); err != nil {
		return fmt.Errorf("updating bookmark: %w", err)
	}
	return nil
}

// ToggleFavorite flips the favorite flag on a bookmark the store holds.
// The current flag is read locally, so a toggle is one round trip.
func (g *Gateway) ToggleFavorite(ctx context.Context, id string) error {
	current, ok := g.store.Get(id)
	if !ok {
		return apperror.NotFound("bookmark", id)
	}

	if _, err := g.api.SetFavorite(ctx, id, !current.IsFavorite); err != nil {
		return fmt.Errorf("toggling favorite: %w", err)
	}
	return nil
}

// Delete removes a bookmark optimistically.
//
// ROLLBACK CONTRACT:
// On API failure the removed row is restored at the index it held when
// it was removed — not the top of the list. The user sees their list
// exactly as it was, plus whatever other changes landed in between.
func (g *Gateway) Delete(ctx context.Context, id string) error {
	removed, index, ok := g.store.Remove(id)
	if !ok {
		return apperror.NotFound("bookmark", id)
	}

	if err := g.api.DeleteBookmark(ctx, id); err != nil {
		g.logger.Warn("delete rejected, rolling back",
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		g.store.Restore(index, removed)
		return fmt.Errorf("deleting bookmark: %w", err)
	}
	return nil
}
