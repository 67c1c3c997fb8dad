package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sakif/bookmarkbox/internal/auth"
	"github.com/sakif/bookmarkbox/internal/service"
)

// BookmarkHandler exposes the bookmark CRUD API.
//
// Every route here sits behind RequireAuth, so the userID is always in the
// request context. The handler never trusts a user ID from the request body
// or URL — ownership comes from the session token, nothing else.
type BookmarkHandler struct {
	bookmarks *service.BookmarkService
	logger    *slog.Logger
}

// NewBookmarkHandler creates a BookmarkHandler.
func NewBookmarkHandler(bookmarks *service.BookmarkService, logger *slog.Logger) *BookmarkHandler {
	return &BookmarkHandler{
		bookmarks: bookmarks,
		logger:    logger,
	}
}

// REQUEST BODY STRUCTS:
// Each endpoint gets its own request struct rather than reusing the model.
// This decouples the wire format from the database format — the client can
// never set fields it shouldn't (id, userId, timestamps) because the
// request struct simply doesn't have them.

// createBookmarkRequest is the JSON body for POST /api/bookmarks.
type createBookmarkRequest struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// updateBookmarkRequest is the JSON body for PUT /api/bookmarks/{id}.
type updateBookmarkRequest struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// favoriteRequest is the JSON body for PUT /api/bookmarks/{id}/favorite.
type favoriteRequest struct {
	IsFavorite bool `json:"isFavorite"`
}

// HandleList returns all of the authenticated user's bookmarks, newest first.
//
// HTTP: GET /api/bookmarks
func (h *BookmarkHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	bookmarks, err := h.bookmarks.List(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, bookmarks)
}

// HandleCreate saves a new bookmark for the authenticated user.
//
// HTTP: POST /api/bookmarks
// Returns: 201 Created with the full bookmark (including its new ID)
func (h *BookmarkHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	var req createBookmarkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "request body must be valid JSON",
		})
		return
	}

	bookmark, err := h.bookmarks.Create(r.Context(), userID, req.URL, req.Title, req.Description)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, bookmark)
}

// HandleUpdate rewrites the mutable fields of a bookmark.
//
// HTTP: PUT /api/bookmarks/{id}
// Returns: 200 OK with the updated bookmark, 404 if it doesn't exist
// (or belongs to someone else — the two are deliberately the same).
func (h *BookmarkHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	var req updateBookmarkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "request body must be valid JSON",
		})
		return
	}

	bookmark, err := h.bookmarks.Update(r.Context(), userID, id, req.Title, req.URL, req.Description)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, bookmark)
}

// HandleFavorite sets or clears the favorite flag.
//
// HTTP: PUT /api/bookmarks/{id}/favorite
//
// WHY A SEPARATE ENDPOINT?
// Favoriting is the most frequent mutation in the UI (one click on a star).
// Giving it its own endpoint means the client doesn't have to round-trip
// the whole bookmark just to flip one flag.
func (h *BookmarkHandler) HandleFavorite(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	var req favoriteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "request body must be valid JSON",
		})
		return
	}

	bookmark, err := h.bookmarks.SetFavorite(r.Context(), userID, id, req.IsFavorite)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, bookmark)
}

// HandleDelete removes a bookmark.
//
// HTTP: DELETE /api/bookmarks/{id}
// Returns: 204 No Content on success
func (h *BookmarkHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	if err := h.bookmarks.Delete(r.Context(), userID, id); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
