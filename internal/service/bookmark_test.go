package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/sakif/bookmarkbox/internal/apperror"
	"github.com/sakif/bookmarkbox/internal/feed"
	"github.com/sakif/bookmarkbox/internal/model"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

// fakeBookmarkRepo is an in-memory repository.BookmarkRepository. It applies
// the same owner-scoping rule as the real SQLite repository: any operation
// on a row the userID doesn't own behaves exactly like a missing row.
type fakeBookmarkRepo struct {
	bookmarks map[string]*model.Bookmark
	nextID    int
	// set to a non-nil error to simulate a database failure
	createErr error
	updateErr error
	deleteErr error
}

func newFakeBookmarkRepo() *fakeBookmarkRepo {
	return &fakeBookmarkRepo{
		bookmarks: make(map[string]*model.Bookmark),
		nextID:    1,
	}
}

func (f *fakeBookmarkRepo) Create(ctx context.Context, b *model.Bookmark) error {
	if f.createErr != nil {
		return f.createErr
	}
	b.ID = "bm-fake-id-" + string(rune('0'+f.nextID))
	f.nextID++
	b.CreatedAt = time.Now().UTC()
	b.UpdatedAt = b.CreatedAt
	copied := *b
	f.bookmarks[b.ID] = &copied
	return nil
}

func (f *fakeBookmarkRepo) GetByID(ctx context.Context, userID, id string) (*model.Bookmark, error) {
	b, ok := f.bookmarks[id]
	if !ok || b.UserID != userID {
		return nil, apperror.NotFound("bookmark", id)
	}
	copied := *b
	return &copied, nil
}

func (f *fakeBookmarkRepo) ListByUser(ctx context.Context, userID string) ([]model.Bookmark, error) {
	out := []model.Bookmark{}
	for _, b := range f.bookmarks {
		if b.UserID == userID {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (f *fakeBookmarkRepo) Update(ctx context.Context, b *model.Bookmark) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	existing, ok := f.bookmarks[b.ID]
	if !ok || existing.UserID != b.UserID {
		return apperror.NotFound("bookmark", b.ID)
	}
	b.UpdatedAt = time.Now().UTC()
	copied := *b
	f.bookmarks[b.ID] = &copied
	return nil
}

func (f *fakeBookmarkRepo) SetFavorite(ctx context.Context, userID, id string, favorite bool) (*model.Bookmark, error) {
	existing, ok := f.bookmarks[id]
	if !ok || existing.UserID != userID {
		return nil, apperror.NotFound("bookmark", id)
	}
	existing.IsFavorite = favorite
	existing.UpdatedAt = time.Now().UTC()
	copied := *existing
	return &copied, nil
}

func (f *fakeBookmarkRepo) Delete(ctx context.Context, userID, id string) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	existing, ok := f.bookmarks[id]
	if !ok || existing.UserID != userID {
		return apperror.NotFound("bookmark", id)
	}
	delete(f.bookmarks, id)
	return nil
}

func newTestBookmarkService(repo *fakeBookmarkRepo) (*BookmarkService, *feed.Hub) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	hub := feed.NewHub(logger)
	return NewBookmarkService(repo, hub, logger), hub
}

// receiveEvent waits briefly for one event on the subscription.
func receiveEvent(t *testing.T, sub *feed.Subscription) feed.Event {
	t.Helper()
	select {
	case ev := <-sub.C:
		return ev
	case <-time.After(time.Second):
		t.Fatal("expected a feed event, got none within 1s")
		return feed.Event{}
	}
}

// assertNoEvent asserts that no event arrives on the subscription.
func assertNoEvent(t *testing.T, sub *feed.Subscription) {
	t.Helper()
	select {
	case ev := <-sub.C:
		t.Fatalf("expected no feed event, got %q", ev.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

// =========================================================================
// CREATE
// =========================================================================

func TestBookmarkService_Create(t *testing.T) {
	repo := newFakeBookmarkRepo()
	svc, hub := newTestBookmarkService(repo)
	sub := hub.Subscribe("user-1")
	defer sub.Close()

	b, err := svc.Create(context.Background(), "user-1",
		"https://go.dev", "  The Go Programming Language  ", "official site")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if b.ID == "" {
		t.Error("expected repository to assign an ID")
	}
	if b.UserID != "user-1" {
		t.Errorf("expected owner user-1, got %q", b.UserID)
	}
	if b.Title != "The Go Programming Language" {
		t.Errorf("expected trimmed title, got %q", b.Title)
	}
	if b.IsFavorite {
		t.Error("new bookmarks must not start as favorites")
	}

	ev := receiveEvent(t, sub)
	if ev.Type != feed.EventInsert {
		t.Errorf("expected insert event, got %q", ev.Type)
	}
	if ev.New == nil || ev.New.ID != b.ID {
		t.Error("insert event should carry the new row")
	}
}

func TestBookmarkService_Create_InvalidURL(t *testing.T) {
	repo := newFakeBookmarkRepo()
	svc, hub := newTestBookmarkService(repo)
	sub := hub.Subscribe("user-1")
	defer sub.Close()

	cases := []string{"", "not-a-url", "ftp://example.com/file", "https://"}
	for _, raw := range cases {
		_, err := svc.Create(context.Background(), "user-1", raw, "title", "")
		if !errors.Is(err, apperror.ErrValidation) {
			t.Errorf("url %q: expected validation error, got %v", raw, err)
		}
	}

	if len(repo.bookmarks) != 0 {
		t.Error("invalid input must not reach the repository")
	}
	// No mutation happened, so no event either
	assertNoEvent(t, sub)
}

func TestBookmarkService_Create_MissingTitle(t *testing.T) {
	repo := newFakeBookmarkRepo()
	svc, _ := newTestBookmarkService(repo)

	_, err := svc.Create(context.Background(), "user-1", "https://go.dev", "   ", "")
	if !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("expected validation error for blank title, got %v", err)
	}
}

func TestBookmarkService_Create_RepoError(t *testing.T) {
	repo := newFakeBookmarkRepo()
	repo.createErr = errors.New("disk full")
	svc, hub := newTestBookmarkService(repo)
	sub := hub.Subscribe("user-1")
	defer sub.Close()

	_, err := svc.Create(context.Background(), "user-1", "https://go.dev", "Go", "")
	if err == nil {
		t.Fatal("expected error when repository fails")
	}
	// A failed write must not announce anything
	assertNoEvent(t, sub)
}

// =========================================================================
// UPDATE
// =========================================================================

func TestBookmarkService_Update(t *testing.T) {
	repo := newFakeBookmarkRepo()
	svc, hub := newTestBookmarkService(repo)

	created, err := svc.Create(context.Background(), "user-1", "https://old.example", "Old", "")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// Subscribe after create so the insert event doesn't get in the way
	sub := hub.Subscribe("user-1")
	defer sub.Close()

	updated, err := svc.Update(context.Background(), "user-1", created.ID,
		"New title", "https://new.example", "now with a description")
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	if updated.Title != "New title" || updated.URL != "https://new.example" {
		t.Errorf("fields not applied: %+v", updated)
	}
	if !updated.CreatedAt.Equal(created.CreatedAt) {
		t.Error("CreatedAt must never change on update")
	}

	ev := receiveEvent(t, sub)
	if ev.Type != feed.EventUpdate {
		t.Errorf("expected update event, got %q", ev.Type)
	}
	if ev.Old == nil || ev.Old.Title != "Old" {
		t.Error("update event should carry the pre-update row")
	}
	if ev.New == nil || ev.New.Title != "New title" {
		t.Error("update event should carry the post-update row")
	}
}

func TestBookmarkService_Update_NotOwner(t *testing.T) {
	repo := newFakeBookmarkRepo()
	svc, hub := newTestBookmarkService(repo)

	created, _ := svc.Create(context.Background(), "user-1", "https://go.dev", "Go", "")

	subOwner := hub.Subscribe("user-1")
	defer subOwner.Close()

	// user-2 tries to edit user-1's bookmark — indistinguishable from a
	// bookmark that doesn't exist
	_, err := svc.Update(context.Background(), "user-2", created.ID,
		"Hijacked", "https://evil.example", "")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("expected not found error, got %v", err)
	}

	// The row is untouched and the owner heard nothing
	stored := repo.bookmarks[created.ID]
	if stored.Title != "Go" {
		t.Errorf("row was modified by a non-owner: %+v", stored)
	}
	assertNoEvent(t, subOwner)
}

func TestBookmarkService_Update_InvalidURL(t *testing.T) {
	repo := newFakeBookmarkRepo()
	svc, _ := newTestBookmarkService(repo)

	created, _ := svc.Create(context.Background(), "user-1", "https://go.dev", "Go", "")

	_, err := svc.Update(context.Background(), "user-1", created.ID, "Go", "nope", "")
	if !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
	if repo.bookmarks[created.ID].URL != "https://go.dev" {
		t.Error("invalid update must not change the row")
	}
}

// =========================================================================
// FAVORITE
// =========================================================================

func TestBookmarkService_SetFavorite(t *testing.T) {
	repo := newFakeBookmarkRepo()
	svc, hub := newTestBookmarkService(repo)

	created, _ := svc.Create(context.Background(), "user-1", "https://go.dev", "Go", "")

	sub := hub.Subscribe("user-1")
	defer sub.Close()

	updated, err := svc.SetFavorite(context.Background(), "user-1", created.ID, true)
	if err != nil {
		t.Fatalf("SetFavorite failed: %v", err)
	}
	if !updated.IsFavorite {
		t.Error("expected IsFavorite=true")
	}

	ev := receiveEvent(t, sub)
	if ev.Type != feed.EventUpdate {
		t.Errorf("expected update event, got %q", ev.Type)
	}
	if ev.Old == nil || ev.Old.IsFavorite {
		t.Error("event Old should carry the pre-toggle state")
	}
	if ev.New == nil || !ev.New.IsFavorite {
		t.Error("event New should carry the post-toggle state")
	}
}

func TestBookmarkService_SetFavorite_NotOwner(t *testing.T) {
	repo := newFakeBookmarkRepo()
	svc, _ := newTestBookmarkService(repo)

	created, _ := svc.Create(context.Background(), "user-1", "https://go.dev", "Go", "")

	_, err := svc.SetFavorite(context.Background(), "user-2", created.ID, true)
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("expected not found error, got %v", err)
	}
	if repo.bookmarks[created.ID].IsFavorite {
		t.Error("non-owner toggle must not touch the row")
	}
}

// =========================================================================
// DELETE
// =========================================================================

func TestBookmarkService_Delete(t *testing.T) {
	repo := newFakeBookmarkRepo()
	svc, hub := newTestBookmarkService(repo)

	created, _ := svc.Create(context.Background(), "user-1", "https://go.dev", "Go", "")

	sub := hub.Subscribe("user-1")
	defer sub.Close()

	if err := svc.Delete(context.Background(), "user-1", created.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, ok := repo.bookmarks[created.ID]; ok {
		t.Error("bookmark still present after delete")
	}

	ev := receiveEvent(t, sub)
	if ev.Type != feed.EventDelete {
		t.Errorf("expected delete event, got %q", ev.Type)
	}
	// Delete events carry the removed row in Old — subscribers need its ID
	if ev.Old == nil || ev.Old.ID != created.ID {
		t.Error("delete event should carry the removed row")
	}
	if ev.New != nil {
		t.Error("delete event must not carry a New row")
	}
}

func TestBookmarkService_Delete_NotOwner(t *testing.T) {
	repo := newFakeBookmarkRepo()
	svc, hub := newTestBookmarkService(repo)

	created, _ := svc.Create(context.Background(), "user-1", "https://go.dev", "Go", "")

	subOwner := hub.Subscribe("user-1")
	defer subOwner.Close()

	err := svc.Delete(context.Background(), "user-2", created.ID)
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("expected not found error, got %v", err)
	}
	if _, ok := repo.bookmarks[created.ID]; !ok {
		t.Error("bookmark deleted by a non-owner")
	}
	assertNoEvent(t, subOwner)
}

func TestBookmarkService_Delete_RepoError(t *testing.T) {
	repo := newFakeBookmarkRepo()
	svc, hub := newTestBookmarkService(repo)

	created, _ := svc.Create(context.Background(), "user-1", "https://go.dev", "Go", "")
	repo.deleteErr = errors.New("disk error")

	sub := hub.Subscribe("user-1")
	defer sub.Close()

	if err := svc.Delete(context.Background(), "user-1", created.ID); err == nil {
		t.Fatal("expected error when repository fails")
	}
	assertNoEvent(t, sub)
}

// =========================================================================
// EVENT SCOPING
// =========================================================================

func TestBookmarkService_EventsScopedToOwner(t *testing.T) {
	repo := newFakeBookmarkRepo()
	svc, hub := newTestBookmarkService(repo)

	subOther := hub.Subscribe("user-2")
	defer subOther.Close()

	if _, err := svc.Create(context.Background(), "user-1", "https://go.dev", "Go", ""); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// user-2's feed must stay silent about user-1's data
	assertNoEvent(t, subOther)
}
