package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/sakif/bookmarkbox/internal/apperror"
	"github.com/sakif/bookmarkbox/internal/model"
)

// createTestUser is a test helper that upserts a user and fails the test if it errors.
func createTestUser(t *testing.T, db *DB, githubID int64, login string) *model.User {
	t.Helper()
	user := &model.User{
		GitHubID:  githubID,
		Login:     login,
		Email:     login + "@example.com",
		AvatarURL: "https://avatars.githubusercontent.com/u/123",
	}
	if err := db.Upsert(context.Background(), user); err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return user
}

// =========================================================================
// UPSERT TESTS
// =========================================================================

func TestUserUpsert_NewUser(t *testing.T) {
	db := newTestDB(t)

	user := &model.User{
		GitHubID:  55555,
		Login:     "new_upsert_user",
		Email:     "new@example.com",
		AvatarURL: "https://example.com/new.png",
	}

	err := db.Upsert(context.Background(), user)
	if err != nil {
		t.Fatalf("Upsert() (new) error = %v", err)
	}

	// Verify the user was modified in-place (pointer receiver)
	if user.ID == "" {
		t.Error("Upsert() did not set user.ID for new user")
	}
	if user.CreatedAt.IsZero() {
		t.Error("Upsert() did not set user.CreatedAt for new user")
	}

	// Verify it's actually in the DB
	found, err := db.GetUserByID(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("GetUserByID() after Upsert: %v", err)
	}
	if found.Login != "new_upsert_user" {
		t.Errorf("Login = %q, want %q", found.Login, "new_upsert_user")
	}
}

func TestUserUpsert_ExistingUser_UpdatesProfile(t *testing.T) {
	db := newTestDB(t)

	// First login — inserts the user
	first := &model.User{
		GitHubID:  66666,
		Login:     "original_login",
		Email:     "old@example.com",
		AvatarURL: "https://example.com/old.png",
	}
	if err := db.Upsert(context.Background(), first); err != nil {
		t.Fatalf("Upsert() first login: %v", err)
	}
	originalID := first.ID

	// Second login — same GitHubID but updated profile
	second := &model.User{
		GitHubID:  66666, // same GitHub account
		Login:     "updated_login",
		Email:     "new@example.com",
		AvatarURL: "https://example.com/new.png",
	}
	if err := db.Upsert(context.Background(), second); err != nil {
		t.Fatalf("Upsert() second login: %v", err)
	}

	// The internal ID must NOT have changed — same user, same ID.
	// Bookmarks reference it via user_id, so it has to stay stable.
	if second.ID != originalID {
		t.Errorf("Upsert() changed user ID: got %q, want %q", second.ID, originalID)
	}

	// But the profile fields should be updated
	found, err := db.GetUserByID(context.Background(), originalID)
	if err != nil {
		t.Fatalf("GetUserByID() after second Upsert: %v", err)
	}
	if found.Login != "updated_login" {
		t.Errorf("Login after upsert = %q, want %q", found.Login, "updated_login")
	}
	if found.Email != "new@example.com" {
		t.Errorf("Email after upsert = %q, want %q", found.Email, "new@example.com")
	}
}

// =========================================================================
// GET BY ID TESTS
// =========================================================================

func TestUserGetByID(t *testing.T) {
	db := newTestDB(t)
	created := createTestUser(t, db, 111, "getbyid_user")

	found, err := db.GetUserByID(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("GetUserByID() error = %v", err)
	}

	if found.ID != created.ID {
		t.Errorf("ID = %q, want %q", found.ID, created.ID)
	}
	if found.Login != "getbyid_user" {
		t.Errorf("Login = %q, want %q", found.Login, "getbyid_user")
	}
	if found.GitHubID != 111 {
		t.Errorf("GitHubID = %d, want %d", found.GitHubID, 111)
	}
}

func TestUserGetByID_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetUserByID(context.Background(), "nonexistent-id")

	if err == nil {
		t.Fatal("GetUserByID() should have returned an error for nonexistent ID")
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetUserByID() error = %v, want ErrNotFound", err)
	}
}
