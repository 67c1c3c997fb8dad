package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/bookmarkbox/internal/apperror"
	"github.com/sakif/bookmarkbox/internal/model"
	"github.com/sakif/bookmarkbox/internal/repository"
)

// COMPILE-TIME INTERFACE CHECK:
// This line verifies AT COMPILE TIME that *DB implements repository.BookmarkRepository.
//
// How it works:
//   - `var _ X = (*Y)(nil)` creates a nil pointer of type *Y
//   - It assigns it to a variable of type X (the interface)
//   - If *Y doesn't implement X, the compiler errors immediately
//   - The `_` means we don't actually use the variable — it's just a check
//
// Without this, you'd only discover a missing method when you try to pass
// *DB to something that expects BookmarkRepository — which could be much later.
var _ repository.BookmarkRepository = (*DB)(nil)

// bookmarkColumns is the canonical SELECT list. Every scanBookmark call must
// match this order exactly.
const bookmarkColumns = `id, user_id, title, url, COALESCE(description, ''), is_favorite, created_at, updated_at`

// scanner is satisfied by both *sql.Row and *sql.Rows, so one scan helper
// covers single- and multi-row queries.
type scanner interface {
	Scan(dest ...any) error
}

func scanBookmark(s scanner, b *model.Bookmark) error {
	return s.Scan(
		&b.ID,
		&b.UserID,
		&b.Title,
		&b.URL,
		&b.Description,
		&b.IsFavorite,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
}

// Create inserts a new bookmark owned by bookmark.UserID.
//
// ID GENERATION WITH xid:
// xid generates globally unique IDs that are:
// - 20 chars, URL-safe (no special characters)
// - Sortable by creation time (they start with a timestamp)
// - Example: "cv37rs3pp9olc6atsptg"
//
// POINTER RECEIVER (*model.Bookmark):
// We take a pointer so we can MODIFY the original struct.
// After Create(), the caller's bookmark has the generated ID and timestamps.
//
// NULLIF(?, ''):
// An empty description is stored as NULL rather than the empty string, so the
// bookmarks table distinguishes "no description" from real text. Reads turn
// it back into '' via COALESCE (see bookmarkColumns).
func (db *DB) Create(ctx context.Context, bookmark *model.Bookmark) error {
	bookmark.ID = xid.New().String()

	now := time.Now().UTC()
	bookmark.CreatedAt = now
	bookmark.UpdatedAt = now

	// PARAMETERIZED QUERIES (the ? placeholders):
	// NEVER build SQL strings with fmt.Sprintf or string concatenation —
	// that creates SQL injection vulnerabilities. The driver escapes values.
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO bookmarks (id, user_id, title, url, description, is_favorite, created_at, updated_at)
		 VALUES (?, ?, ?, ?, NULLIF(?, ''), ?, ?, ?)`,
		bookmark.ID,
		bookmark.UserID,
		bookmark.Title,
		bookmark.URL,
		bookmark.Description,
		bookmark.IsFavorite,
		bookmark.CreatedAt,
		bookmark.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating bookmark: %w", err)
	}

	return nil
}

// GetByID retrieves a single bookmark by ID, scoped to its owner.
//
// OWNERSHIP IN THE WHERE CLAUSE:
// The query matches `id = ? AND user_id = ?`. A bookmark owned by someone
// else therefore scans as sql.ErrNoRows and surfaces as NotFound — exactly
// the same response as a genuinely absent ID. Callers can't probe for
// foreign bookmarks.
func (db *DB) GetByID(ctx context.Context, userID, id string) (*model.Bookmark, error) {
	var b model.Bookmark

	row := db.conn.QueryRowContext(ctx,
		`SELECT `+bookmarkColumns+` FROM bookmarks WHERE id = ? AND user_id = ?`,
		id, userID,
	)
	if err := scanBookmark(row, &b); err != nil {
		// sql.ErrNoRows is a sentinel error — it just means "no matching row".
		// We translate it to our app's NotFound error so the handler returns 404.
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("bookmark", id)
		}
		return nil, fmt.Errorf("sqlite: getting bookmark %s: %w", id, err)
	}

	return &b, nil
}

// ListByUser returns every bookmark owned by userID, newest first.
//
// ORDER BY created_at DESC matches the order the client store maintains:
// new bookmarks are prepended, so a fresh bulk fetch and an incrementally
// reconciled store agree on ordering.
func (db *DB) ListByUser(ctx context.Context, userID string) ([]model.Bookmark, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+bookmarkColumns+`
		 FROM bookmarks
		 WHERE user_id = ?
		 ORDER BY created_at DESC, id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing bookmarks: %w", err)
	}
	// CRITICAL: always close rows when done! sql.Rows holds a pool connection;
	// leaking them eventually exhausts the pool and hangs the server.
	defer rows.Close()

	bookmarks := []model.Bookmark{}
	for rows.Next() {
		var b model.Bookmark
		if err := scanBookmark(rows, &b); err != nil {
			return nil, fmt.Errorf("sqlite: scanning bookmark row: %w", err)
		}
		bookmarks = append(bookmarks, b)
	}

	// rows.Err() catches errors that happened DURING iteration
	// (e.g. the connection dropping mid-query).
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating bookmarks: %w", err)
	}

	return bookmarks, nil
}

// Update rewrites the mutable fields of a bookmark owned by bookmark.UserID.
//
// id, user_id, and created_at are immutable and never appear in the SET list.
// updated_at is always set to "now", so it is monotonically non-decreasing.
//
// RowsAffected() tells us how many rows matched the WHERE clause. Zero means
// the bookmark doesn't exist OR belongs to another user — both are NotFound.
func (db *DB) Update(ctx context.Context, bookmark *model.Bookmark) error {
	bookmark.UpdatedAt = time.Now().UTC()

	result, err := db.conn.ExecContext(ctx,
		`UPDATE bookmarks
		 SET title = ?, url = ?, description = NULLIF(?, ''), is_favorite = ?, updated_at = ?
		 WHERE id = ? AND user_id = ?`,
		bookmark.Title,
		bookmark.URL,
		bookmark.Description,
		bookmark.IsFavorite,
		bookmark.UpdatedAt,
		bookmark.ID,
		bookmark.UserID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating bookmark %s: %w", bookmark.ID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("bookmark", bookmark.ID)
	}

	return nil
}

// SetFavorite flips only the favorite flag, still refreshing updated_at —
// a favorite toggle counts as a mutation of the record.
//
// It returns the full updated row because the caller needs it to publish a
// change event (the feed carries whole bookmarks, not deltas).
func (db *DB) SetFavorite(ctx context.Context, userID, id string, favorite bool) (*model.Bookmark, error) {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE bookmarks
		 SET is_favorite = ?, updated_at = ?
		 WHERE id = ? AND user_id = ?`,
		favorite,
		time.Now().UTC(),
		id,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: toggling favorite on bookmark %s: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, apperror.NotFound("bookmark", id)
	}

	return db.GetByID(ctx, userID, id)
}

// Delete removes a bookmark owned by userID.
// Same pattern as Update — check RowsAffected to detect "not found".
func (db *DB) Delete(ctx context.Context, userID, id string) error {
	result, err := db.conn.ExecContext(ctx,
		`DELETE FROM bookmarks WHERE id = ? AND user_id = ?`,
		id, userID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: deleting bookmark %s: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("bookmark", id)
	}

	return nil
}
