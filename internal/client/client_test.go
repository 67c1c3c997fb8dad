package client

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sakif/bookmarkbox/internal/apperror"
	"github.com/sakif/bookmarkbox/internal/auth"
	"github.com/sakif/bookmarkbox/internal/model"
	"github.com/sakif/bookmarkbox/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testBookmark(id, userID, title string) model.Bookmark {
	now := time.Now().UTC()
	return model.Bookmark{
		ID:        id,
		UserID:    userID,
		Title:     title,
		URL:       "https://" + id + ".example",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// =========================================================================
// CLIENT
// =========================================================================

func TestClient_SendsSessionCookie(t *testing.T) {
	var gotCookie string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, err := r.Cookie(auth.SessionCookie); err == nil {
			gotCookie = c.Value
		}
		json.NewEncoder(w).Encode(model.User{ID: "user-1", Login: "octocat"})
	}))
	defer srv.Close()

	c := New(srv.URL, "jwt-value")
	user, err := c.Session(context.Background())
	if err != nil {
		t.Fatalf("Session failed: %v", err)
	}
	if gotCookie != "jwt-value" {
		t.Errorf("expected session cookie on the request, got %q", gotCookie)
	}
	if user.ID != "user-1" {
		t.Errorf("unexpected user: %+v", user)
	}
}

func TestClient_Session_NoSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := New(srv.URL, "expired-token")
	_, err := c.Session(context.Background())
	if !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
}

func TestClient_ServerErrorCarriesMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(apiError{Error: "validation_error", Message: "title is required"})
	}))
	defer srv.Close()

	c := New(srv.URL, "token")
	_, err := c.CreateBookmark(context.Background(), "https://go.dev", "", "")
	if err == nil {
		t.Fatal("expected an error")
	}
	if !strings.Contains(err.Error(), "title is required") {
		t.Errorf("error should carry the server message, got %q", err)
	}
}

// =========================================================================
// GATEWAY: VALIDATION SHORT-CIRCUIT
// =========================================================================

func TestGateway_Create_InvalidInputMakesNoRequest(t *testing.T) {
	var requests atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
	}))
	defer srv.Close()

	st := store.New("user-1")
	g := NewGateway(New(srv.URL, "token"), st, testLogger())

	tests := []struct {
		name             string
		url, title, desc string
	}{
		{"empty url", "", "title", ""},
		{"not a url", "not-a-url", "title", ""},
		{"wrong scheme", "ftp://example.com", "title", ""},
		{"blank title", "https://go.dev", "   ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := g.Create(context.Background(), tt.url, tt.title, tt.desc)
			if !errors.Is(err, apperror.ErrValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}

	if n := requests.Load(); n != 0 {
		t.Errorf("invalid input must fail before the network, saw %d requests", n)
	}
	if st.Len() != 0 {
		t.Error("invalid input must not touch the store")
	}
}

func TestGateway_Create_SuccessLeavesStoreAlone(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(testBookmark("b1", "user-1", "Go"))
	}))
	defer srv.Close()

	st := store.New("user-1")
	g := NewGateway(New(srv.URL, "token"), st, testLogger())

	if err := g.Create(context.Background(), "https://go.dev", "Go", ""); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// The row arrives via the change feed, never from the response
	if st.Len() != 0 {
		t.Error("Create must not write to the store directly")
	}
}

func TestGateway_Update_InvalidInputMakesNoRequest(t *testing.T) {
	var requests atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
	}))
	defer srv.Close()

	st := store.New("user-1")
	g := NewGateway(New(srv.URL, "token"), st, testLogger())

	err := g.Update(context.Background(), "b1", "bad-url", "title", "")
	if !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
	if n := requests.Load(); n != 0 {
		t.Errorf("expected 0 requests, saw %d", n)
	}
}

// =========================================================================
// GATEWAY: TOGGLE
// =========================================================================

func TestGateway_ToggleFavorite_SendsFlippedFlag(t *testing.T) {
	var sent struct {
		IsFavorite bool `json:"isFavorite"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&sent)
		b := testBookmark("b1", "user-1", "Go")
		b.IsFavorite = sent.IsFavorite
		json.NewEncoder(w).Encode(b)
	}))
	defer srv.Close()

	st := store.New("user-1")
	fav := testBookmark("b1", "user-1", "Go")
	fav.IsFavorite = true
	st.Load([]model.Bookmark{fav})

	g := NewGateway(New(srv.URL, "token"), st, testLogger())
	if err := g.ToggleFavorite(context.Background(), "b1"); err != nil {
		t.Fatalf("ToggleFavorite failed: %v", err)
	}
	if sent.IsFavorite {
		t.Error("a favorited row should toggle to false")
	}
}

func TestGateway_ToggleFavorite_UnknownRow(t *testing.T) {
	st := store.New("user-1")
	g := NewGateway(New("http://unused.invalid", "token"), st, testLogger())

	err := g.ToggleFavorite(context.Background(), "ghost")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

// =========================================================================
// GATEWAY: OPTIMISTIC DELETE
// =========================================================================

func TestGateway_Delete_Optimistic(t *testing.T) {
	var requests atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	st := store.New("user-1")
	st.Load([]model.Bookmark{testBookmark("b1", "user-1", "one")})

	g := NewGateway(New(srv.URL, "token"), st, testLogger())
	if err := g.Delete(context.Background(), "b1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if st.Len() != 0 {
		t.Error("row should be gone from the store")
	}
	if requests.Load() != 1 {
		t.Error("expected exactly one API call")
	}
}

func TestGateway_Delete_RollbackRestoresPosition(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(apiError{Error: "internal_error", Message: "boom"})
	}))
	defer srv.Close()

	st := store.New("user-1")
	st.Load([]model.Bookmark{
		testBookmark("b1", "user-1", "one"),
		testBookmark("b2", "user-1", "two"),
		testBookmark("b3", "user-1", "three"),
	})

	g := NewGateway(New(srv.URL, "token"), st, testLogger())
	if err := g.Delete(context.Background(), "b2"); err == nil {
		t.Fatal("expected the delete to fail")
	}

	// The middle row is back in the middle, not at the top
	all := st.All()
	if len(all) != 3 || all[0].ID != "b1" || all[1].ID != "b2" || all[2].ID != "b3" {
		got := make([]string, len(all))
		for i, b := range all {
			got[i] = b.ID
		}
		t.Fatalf("rollback lost the position: %v", got)
	}
}

func TestGateway_Delete_UnknownRow(t *testing.T) {
	st := store.New("user-1")
	g := NewGateway(New("http://unused.invalid", "token"), st, testLogger())

	err := g.Delete(context.Background(), "ghost")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
