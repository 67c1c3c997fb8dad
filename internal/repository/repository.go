package repository

import (
	"context"

	"github.com/sakif/bookmarkbox/internal/model"
)

// BookmarkRepository is the storage contract for bookmarks.
//
// ROW-LEVEL AUTHORIZATION:
// Every method takes the acting user's ID, and implementations MUST constrain
// every query by user_id. A bookmark owned by another user behaves exactly
// like a bookmark that does not exist (NotFound), so the API never leaks
// whether a foreign ID is real. The service layer assumes this guarantee and
// does not re-check ownership after a read.
type BookmarkRepository interface {
	Create(ctx context.Context, bookmark *model.Bookmark) error
	GetByID(ctx context.Context, userID, id string) (*model.Bookmark, error)
	ListByUser(ctx context.Context, userID string) ([]model.Bookmark, error)
	Update(ctx context.Context, bookmark *model.Bookmark) error
	SetFavorite(ctx context.Context, userID, id string, favorite bool) (*model.Bookmark, error)
	Delete(ctx context.Context, userID, id string) error
}

// UserRepository stores user accounts keyed by their GitHub identity.
type UserRepository interface {
	Upsert(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
}
