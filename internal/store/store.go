// Package store holds a client session's in-memory view of its bookmarks.
//
// WHAT THIS IS:
// Each open session keeps a local, ordered copy of the signed-in user's
// bookmarks. The UI renders from this copy; the change feed mutates it.
// The store is the single owner of that state — everything else goes
// through its named operations (Load, ApplyInsert, ApplyUpdate,
// ApplyDelete, Remove, Restore), never by reaching into the slice.
//
// WHY NAMED OPERATIONS INSTEAD OF EXPOSING THE SLICE?
// Every operation enforces the same two guards in one place:
//   - OWNERSHIP: a row whose UserID differs from the store's user is
//     silently ignored. The server already scopes the feed per user, but
//     the store doesn't trust that — a bug upstream must not let foreign
//     rows into local state.
//   - VERSION: an update whose UpdatedAt is older than the copy we hold
//     is stale (events can arrive out of order across reconnects) and is
//     dropped rather than applied.
//
// If callers mutated the slice directly, each call site would have to
// remember both rules. They wouldn't.
package store

import (
	"strings"
	"sync"

	"github.com/sakif/bookmarkbox/internal/model"
)

// Store is a thread-safe, ordered collection of one user's bookmarks.
//
// ORDERING INVARIANT:
// The slice is kept newest-first, matching the server's list order.
// ApplyInsert prepends; Load trusts the server's ordering as-is.
type Store struct {
	mu        sync.RWMutex
	userID    string
	bookmarks []model.Bookmark
	listeners map[int]func()
	nextID    int
}

// New creates an empty store bound to one user. Rows belonging to any
// other user are rejected by every operation.
func New(userID string) *Store {
	return &Store{
		userID:    userID,
		bookmarks: []model.Bookmark{},
		listeners: make(map[int]func()),
	}
}

// UserID returns the user this store is bound to.
func (s *Store) UserID() string {
	return s.userID
}

// OnChange registers a callback invoked after every state change.
// Returns a function that removes the callback.
//
// The callback runs OUTSIDE the store's lock. Callbacks may therefore
// call back into the store (typically All or Filter to re-render).
func (s *Store) OnChange(fn func()) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// notify snapshots the listeners under the lock, then runs them outside it.
func (s *Store) notify() {
	s.mu.RLock()
	fns := make([]func(), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()

	for _, fn := range fns {
		fn()
	}
}

// Load replaces the entire contents with a server-fetched list.
// Called once after sign-in, and again after a feed reconnect (events may
// have been missed while disconnected, so the list is re-fetched whole).
func (s *Store) Load(bookmarks []model.Bookmark) {
	s.mu.Lock()
	s.bookmarks = make([]model.Bookmark, 0, len(bookmarks))
	for _, b := range bookmarks {
		if b.UserID == s.userID {
			s.bookmarks = append(s.bookmarks, b)
		}
	}
	s.mu.Unlock()
	s.notify()
}

// All returns a copy of the current list, newest first.
// A copy, so callers can't mutate shared state behind the lock's back.
func (s *Store) All() []model.Bookmark {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Bookmark, len(s.bookmarks))
	copy(out, s.bookmarks)
	return out
}

// Len returns the number of bookmarks currently held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.bookmarks)
}

// Get returns the bookmark with the given ID, if present.
func (s *Store) Get(id string) (model.Bookmark, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, b := range s.bookmarks {
		if b.ID == id {
			return b, true
		}
	}
	return model.Bookmark{}, false
}

// ApplyInsert prepends a new bookmark.
//
// Foreign rows are dropped. A row already present is treated as an
// update instead — the feed can replay an insert after a reconnect
// races with the initial Load, and doubling the row would be worse
// than refreshing it. The refresh runs under the same version guard as
// ApplyUpdate: a replayed insert carries the row as it was at creation,
// so if an edit has landed since, the replay is stale and must not win.
func (s *Store) ApplyInsert(b model.Bookmark) {
	if b.UserID != s.userID {
		return
	}

	s.mu.Lock()
	if i := s.indexOf(b.ID); i >= 0 {
		if b.UpdatedAt.Before(s.bookmarks[i].UpdatedAt) {
			s.mu.Unlock()
			return
		}
		s.bookmarks[i] = b
	} else {
		s.bookmarks = append([]model.Bookmark{b}, s.bookmarks...)
	}
	s.mu.Unlock()
	s.notify()
}

// ApplyUpdate replaces an existing bookmark in place.
//
// GUARDS, in order:
//  1. Ownership — foreign rows never touch local state.
//  2. Presence — an update for a row we don't hold is a no-op (it was
//     deleted locally, or we haven't loaded yet).
//  3. Version — if the incoming UpdatedAt is older than the held copy,
//     the event is stale and is dropped. Two rapid edits can arrive
//     reordered; applying the older one last would show reverted data.
//
// The row keeps its position: updates don't reorder the list.
func (s *Store) ApplyUpdate(b model.Bookmark) {
	if b.UserID != s.userID {
		return
	}

	s.mu.Lock()
	i := s.indexOf(b.ID)
	if i < 0 || b.UpdatedAt.Before(s.bookmarks[i].UpdatedAt) {
		s.mu.Unlock()
		return
	}
	s.bookmarks[i] = b
	s.mu.Unlock()
	s.notify()
}

// ApplyDelete removes a bookmark by ID. Removing a row that isn't
// present is a no-op (already removed optimistically, or never loaded).
func (s *Store) ApplyDelete(b model.Bookmark) {
	if b.UserID != s.userID {
		return
	}

	s.mu.Lock()
	i := s.indexOf(b.ID)
	if i < 0 {
		s.mu.Unlock()
		return
	}
	s.bookmarks = append(s.bookmarks[:i], s.bookmarks[i+1:]...)
	s.mu.Unlock()
	s.notify()
}

// Remove takes a bookmark out and reports where it was, for optimistic
// deletes: the caller removes the row BEFORE asking the server, and uses
// the returned index with Restore if the server says no.
func (s *Store) Remove(id string) (model.Bookmark, int, bool) {
	s.mu.Lock()
	i := s.indexOf(id)
	if i < 0 {
		s.mu.Unlock()
		return model.Bookmark{}, -1, false
	}
	b := s.bookmarks[i]
	s.bookmarks = append(s.bookmarks[:i], s.bookmarks[i+1:]...)
	s.mu.Unlock()
	s.notify()
	return b, i, true
}

// Restore puts a bookmark back at its former index — the rollback half
// of an optimistic delete. The row returns to the position Remove
// reported, not to the top; the index is clamped in case the list
// shrank in between.
func (s *Store) Restore(index int, b model.Bookmark) {
	if b.UserID != s.userID {
		return
	}

	s.mu.Lock()
	if s.indexOf(b.ID) >= 0 {
		// Already back (the server deleted it after all and a concurrent
		// insert reused state, or Restore was called twice). Don't double.
		s.mu.Unlock()
		return
	}
	if index < 0 {
		index = 0
	}
	if index > len(s.bookmarks) {
		index = len(s.bookmarks)
	}
	s.bookmarks = append(s.bookmarks[:index],
		append([]model.Bookmark{b}, s.bookmarks[index:]...)...)
	s.mu.Unlock()
	s.notify()
}

// indexOf returns the position of the bookmark with the given ID, or -1.
// Callers must hold s.mu.
func (s *Store) indexOf(id string) int {
	for i, b := range s.bookmarks {
		if b.ID == id {
			return i
		}
	}
	return -1
}

// Filter returns the bookmarks matching a search query and favorite
// toggle, preserving the store's order.
//
// PURE READ:
// Filter never mutates the store and two calls with the same state and
// arguments return equal results. The match is a case-insensitive
// substring test over title, URL, and description; an empty query
// matches everything.
func (s *Store) Filter(query string, favoritesOnly bool) []model.Bookmark {
	q := strings.ToLower(strings.TrimSpace(query))

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []model.Bookmark{}
	for _, b := range s.bookmarks {
		if favoritesOnly && !b.IsFavorite {
			continue
		}
		if q != "" && !matches(b, q) {
			continue
		}
		out = append(out, b)
	}
	return out
}

// matches reports whether the lowercased query appears in any text field.
func matches(b model.Bookmark, q string) bool {
	return strings.Contains(strings.ToLower(b.Title), q) ||
		strings.Contains(strings.ToLower(b.URL), q) ||
		strings.Contains(strings.ToLower(b.Description), q)
}
