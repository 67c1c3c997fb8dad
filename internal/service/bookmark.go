// Package service contains the business logic layer of the application.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (Business layer) → validates, enforces rules, publishes events
//	Repository (Data layer)  → reads/writes to the database
//
// The service is where a raw "update bookmark" request becomes a sequence of
// rules: trim the fields, reject a bad URL, check the row belongs to the
// acting user, write it, then tell every open session of that user what
// changed. Handlers only know HTTP; the repository only knows SQL.
//
// MUTATION → EVENT COUPLING:
// Every successful mutation publishes exactly one event to the feed hub,
// AFTER the database write commits. The HTTP response and the feed event are
// independent deliveries of the same fact — clients converge their local
// store from the event, not the response (see internal/client).
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sakif/bookmarkbox/internal/apperror"
	"github.com/sakif/bookmarkbox/internal/feed"
	"github.com/sakif/bookmarkbox/internal/model"
	"github.com/sakif/bookmarkbox/internal/repository"
	"github.com/sakif/bookmarkbox/internal/validate"
)

// BookmarkService handles business logic for bookmarks.
//
// STRUCT FIELDS:
// - repo: the database interface (injected, not created here)
// - events: the change feed hub; nil-safe is NOT promised, always inject one
// - logger: for structured logging of business events
type BookmarkService struct {
	repo   repository.BookmarkRepository
	events *feed.Hub
	logger *slog.Logger
}

// NewBookmarkService creates a new BookmarkService.
//
// CONSTRUCTOR PATTERN IN GO:
// Go doesn't have constructors like Java/Python. Instead, we use "New" functions.
// This is where dependency injection happens — the caller decides WHICH
// repository implementation to use (SQLite, or a fake for tests).
func NewBookmarkService(repo repository.BookmarkRepository, events *feed.Hub, logger *slog.Logger) *BookmarkService {
	return &BookmarkService{
		repo:   repo,
		events: events,
		logger: logger,
	}
}

// List returns all bookmarks owned by userID, newest first.
// This is the bulk fetch that seeds a client store after sign-in.
func (s *BookmarkService) List(ctx context.Context, userID string) ([]model.Bookmark, error) {
	if userID == "" {
		return nil, apperror.Unauthorized("no authenticated user")
	}

	bookmarks, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		s.logger.Error("failed to list bookmarks",
			slog.String("userID", userID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("listing bookmarks: %w", err)
	}

	return bookmarks, nil
}

// Create validates and saves a new bookmark owned by userID.
//
// VALIDATION RULES:
//   - url: required, absolute http(s) URL (see validate.URL)
//   - title: required after trimming
//   - description: optional, trimmed, empty stored as NULL
//
// New bookmarks always start with IsFavorite=false; the repository assigns
// ID and both timestamps. On success an insert event is published — the
// creator's own open sessions learn about the new row the same way any other
// session does, via the feed echo.
func (s *BookmarkService) Create(ctx context.Context, userID, rawURL, rawTitle, rawDescription string) (*model.Bookmark, error) {
	if userID == "" {
		return nil, apperror.Unauthorized("no authenticated user")
	}

	url, ok := validate.URL(rawURL)
	if !ok {
		return nil, apperror.ValidationFailed("url", "a valid http(s) URL is required")
	}
	title, ok := validate.Title(rawTitle)
	if !ok {
		return nil, apperror.ValidationFailed("title", "title is required")
	}
	description, ok := validate.Description(rawDescription)
	if !ok {
		return nil, apperror.ValidationFailed("description",
			fmt.Sprintf("description must be %d characters or less", validate.MaxDescriptionLength))
	}

	bookmark := &model.Bookmark{
		UserID:      userID,
		URL:         url,
		Title:       title,
		Description: description,
	}

	if err := s.repo.Create(ctx, bookmark); err != nil {
		s.logger.Error("failed to create bookmark",
			slog.String("userID", userID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("creating bookmark: %w", err)
	}

	s.logger.Info("bookmark created",
		slog.String("id", bookmark.ID),
		slog.String("userID", userID),
	)

	s.events.Publish(userID, feed.Inserted(bookmark))

	return bookmark, nil
}

// Update rewrites the mutable fields (title, url, description) of an
// existing bookmark owned by userID.
//
// STRATEGY: "Fetch then update"
// 1. Fetch the existing bookmark (owner-scoped — NotFound covers both
//    "doesn't exist" and "belongs to someone else")
// 2. Validate and apply the new values to the fetched copy
// 3. Save the updated version; updated_at refreshes in the repository
//
// The pre-update copy is kept so the published event carries both row
// versions.
func (s *BookmarkService) Update(ctx context.Context, userID, id, rawTitle, rawURL, rawDescription string) (*model.Bookmark, error) {
	if userID == "" {
		return nil, apperror.Unauthorized("no authenticated user")
	}
	if id == "" {
		return nil, apperror.ValidationFailed("id", "bookmark ID is required")
	}

	bookmark, err := s.repo.GetByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	before := *bookmark

	url, ok := validate.URL(rawURL)
	if !ok {
		return nil, apperror.ValidationFailed("url", "a valid http(s) URL is required")
	}
	title, ok := validate.Title(rawTitle)
	if !ok {
		return nil, apperror.ValidationFailed("title", "title is required")
	}
	description, ok := validate.Description(rawDescription)
	if !ok {
		return nil, apperror.ValidationFailed("description",
			fmt.Sprintf("description must be %d characters or less", validate.MaxDescriptionLength))
	}

	bookmark.URL = url
	bookmark.Title = title
	bookmark.Description = description

	if err := s.repo.Update(ctx, bookmark); err != nil {
		s.logger.Error("failed to update bookmark",
			slog.String("id", id),
			slog.String("userID", userID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("updating bookmark: %w", err)
	}

	s.logger.Info("bookmark updated",
		slog.String("id", bookmark.ID),
		slog.String("userID", userID),
	)

	s.events.Publish(userID, feed.Updated(&before, bookmark))

	return bookmark, nil
}

// SetFavorite sets the favorite flag on a bookmark owned by userID.
// A toggle counts as a full mutation: updated_at refreshes and an update
// event is published like any other edit.
func (s *BookmarkService) SetFavorite(ctx context.Context, userID, id string, favorite bool) (*model.Bookmark, error) {
	if userID == "" {
		return nil, apperror.Unauthorized("no authenticated user")
	}
	if id == "" {
		return nil, apperror.ValidationFailed("id", "bookmark ID is required")
	}

	before, err := s.repo.GetByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	updated, err := s.repo.SetFavorite(ctx, userID, id, favorite)
	if err != nil {
		s.logger.Error("failed to toggle favorite",
			slog.String("id", id),
			slog.String("userID", userID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("toggling favorite: %w", err)
	}

	s.events.Publish(userID, feed.Updated(before, updated))

	return updated, nil
}

// Delete removes a bookmark owned by userID and publishes a delete event
// carrying the removed row (subscribers need its ID to drop it locally).
//
// The row is fetched first: after a successful DELETE there is nothing left
// to read, and the event must describe what was removed.
func (s *BookmarkService) Delete(ctx context.Context, userID, id string) error {
	if userID == "" {
		return apperror.Unauthorized("no authenticated user")
	}
	if id == "" {
		return apperror.ValidationFailed("id", "bookmark ID is required")
	}

	bookmark, err := s.repo.GetByID(ctx, userID, id)
	if err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, userID, id); err != nil {
		s.logger.Error("failed to delete bookmark",
			slog.String("id", id),
			slog.String("userID", userID),
			slog.String("error", err.Error()),
		)
		return err
	}

	s.logger.Info("bookmark deleted",
		slog.String("id", id),
		slog.String("userID", userID),
	)

	s.events.Publish(userID, feed.Deleted(bookmark))

	return nil
}
