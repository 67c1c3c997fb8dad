// Package client is the Go client for the bookmarkbox API.
//
// It mirrors what the browser frontend does, as a typed API:
//
//	Client       → raw HTTP calls (this file)
//	Gateway      → mutations with local-state semantics (gateway.go)
//	Subscription → the live change feed (subscription.go)
//
// A session is established out of band (the OAuth dance happens in a
// browser); the client just carries the resulting session cookie on
// every request, exactly like the browser would.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sakif/bookmarkbox/internal/auth"
	"github.com/sakif/bookmarkbox/internal/model"
)

// ErrNoSession is returned when the server answers 401 — the session
// cookie is missing, expired, or invalid. Callers treat this as "go
// sign in", not as a failure of the operation itself.
var ErrNoSession = errors.New("no active session")

// Client performs authenticated HTTP calls against a bookmarkbox server.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New creates a Client for the given server, authenticating with the
// session token (the value of the session cookie issued at login).
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// apiError is the server's standard error body.
// It matches handler.ErrorResponse on the other side of the wire.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// do performs one request and decodes the response into out (if non-nil).
//
// STATUS HANDLING:
//   - 2xx          → decode body into out
//   - 401          → ErrNoSession (session gate territory)
//   - other errors → an error carrying the server's message
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.AddCookie(&http.Cookie{Name: auth.SessionCookie, Value: c.token})

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrNoSession
	}
	if resp.StatusCode >= 400 {
		var apiErr apiError
		if decodeErr := json.NewDecoder(resp.Body).Decode(&apiErr); decodeErr == nil && apiErr.Message != "" {
			return fmt.Errorf("%s %s: %s (%s)", method, path, apiErr.Message, apiErr.Error)
		}
		return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

// Session returns the signed-in user, or ErrNoSession.
// This is the client half of the session gate: call it on startup, and
// either proceed with the returned identity or send the user to login.
func (c *Client) Session(ctx context.Context) (*model.User, error) {
	var user model.User
	if err := c.do(ctx, http.MethodGet, "/api/me", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// ListBookmarks fetches the full bookmark list, newest first.
func (c *Client) ListBookmarks(ctx context.Context) ([]model.Bookmark, error) {
	var bookmarks []model.Bookmark
	if err := c.do(ctx, http.MethodGet, "/api/bookmarks", nil, &bookmarks); err != nil {
		return nil, err
	}
	return bookmarks, nil
}

// bookmarkBody is the request body shared by create and update calls.
type bookmarkBody struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// CreateBookmark saves a new bookmark and returns the stored row.
func (c *Client) CreateBookmark(ctx context.Context, url, title, description string) (*model.Bookmark, error) {
	var created model.Bookmark
	body := bookmarkBody{URL: url, Title: title, Description: description}
	if err := c.do(ctx, http.MethodPost, "/api/bookmarks", body, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdateBookmark rewrites a bookmark's mutable fields.
func (c *Client) UpdateBookmark(ctx context.Context, id, url, title, description string) (*model.Bookmark, error) {
	var updated model.Bookmark
	body := bookmarkBody{URL: url, Title: title, Description: description}
	if err := c.do(ctx, http.MethodPut, "/api/bookmarks/"+id, body, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// SetFavorite sets or clears the favorite flag on a bookmark.
func (c *Client) SetFavorite(ctx context.Context, id string, favorite bool) (*model.Bookmark, error) {
	var updated model.Bookmark
	body := struct {
		IsFavorite bool `json:"isFavorite"`
	}{IsFavorite: favorite}
	if err := c.do(ctx, http.MethodPut, "/api/bookmarks/"+id+"/favorite", body, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteBookmark removes a bookmark.
func (c *Client) DeleteBookmark(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/bookmarks/"+id, nil, nil)
}
