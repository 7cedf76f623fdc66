package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/anika/codeclass/internal/apperror"
	"github.com/anika/codeclass/internal/model"
	"github.com/anika/codeclass/internal/repository"
)

// newTestDB creates a throwaway database in the test's temp directory.
// A file (not ":memory:") because database/sql pools connections, and each
// in-memory connection would see its own empty database.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func mustCreateUser(t *testing.T, db *DB, username string) *model.User {
	t.Helper()
	user := &model.User{
		Username:     username,
		PasswordHash: "$2a$04$fakehashfortests",
		IsActive:     true,
	}
	if err := db.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("CreateUser(%q): %v", username, err)
	}
	return user
}

func TestCreateUser_AndGet(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	created := mustCreateUser(t, db, "alice")
	if created.ID == "" {
		t.Fatal("CreateUser() did not assign an ID")
	}

	got, err := db.GetUserByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetUserByID: %v", err)
	}
	if got.Username != "alice" || !got.IsActive || got.IsAdmin {
		t.Errorf("GetUserByID() = %+v, want alice/active/non-admin", got)
	}
	if got.LastLoginAt != nil {
		t.Error("LastLoginAt should be nil before first login")
	}

	byName, err := db.GetUserByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("GetUserByUsername: %v", err)
	}
	if byName.ID != created.ID {
		t.Errorf("GetUserByUsername() ID = %q, want %q", byName.ID, created.ID)
	}
}

func TestCreateUser_DuplicateUsername(t *testing.T) {
	db := newTestDB(t)

	mustCreateUser(t, db, "bob")

	err := db.CreateUser(context.Background(), &model.User{
		Username:     "bob",
		PasswordHash: "hash",
		IsActive:     true,
	})
	if !errors.Is(err, apperror.ErrConflict) {
		t.Errorf("duplicate username should be ErrConflict, got %v", err)
	}
}

func TestGetUser_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetUserByID(context.Background(), "no-such-id")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("missing user should be ErrNotFound, got %v", err)
	}
}

func TestUpdateUser(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	user := mustCreateUser(t, db, "carol")
	user.IsAdmin = true
	user.IsActive = false

	if err := db.UpdateUser(ctx, user); err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}

	got, _ := db.GetUserByID(ctx, user.ID)
	if !got.IsAdmin || got.IsActive {
		t.Errorf("UpdateUser() flags not persisted: %+v", got)
	}
}

func TestDeleteUser_Cascades(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	user := mustCreateUser(t, db, "dave")
	project, err := db.FindOrCreateProject(ctx, user.ID, "homework")
	if err != nil {
		t.Fatalf("FindOrCreateProject: %v", err)
	}
	file := &model.File{
		ProjectID: project.ID,
		UserID:    user.ID,
		Path:      "main.py",
		Content:   "print('hi')",
		Size:      11,
	}
	if err := db.UpsertFile(ctx, file); err != nil {
		t.Fatalf("UpsertFile: %v", err)
	}
	session := &model.Session{UserID: user.ID, Token: "tok-dave"}
	if err := db.CreateSession(ctx, session); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	if err := db.DeleteUser(ctx, user.ID); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}

	// Everything the user owned is gone, for any requester.
	if _, err := db.GetUserByID(ctx, user.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("user should be gone, got %v", err)
	}
	if _, err := db.GetProjectByID(ctx, project.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("project should be gone, got %v", err)
	}
	if _, err := db.GetFileByID(ctx, file.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("file should be gone, got %v", err)
	}
	if _, err := db.GetActiveSession(ctx, "tok-dave"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("session should be gone, got %v", err)
	}
}

func TestListUsers_SearchAndDerivedFields(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	alice := mustCreateUser(t, db, "alice")
	mustCreateUser(t, db, "albert")
	mustCreateUser(t, db, "bob")

	project, _ := db.FindOrCreateProject(ctx, alice.ID, "lab1")
	_ = db.UpsertFile(ctx, &model.File{
		ProjectID: project.ID, UserID: alice.ID, Path: "a.py", Content: "x", Size: 1,
	})
	_ = db.CreateSession(ctx, &model.Session{UserID: alice.ID, Token: "tok-alice"})

	users, total, err := db.ListUsers(ctx, "al", repository.ListOptions{Limit: 10})
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if total != 2 || len(users) != 2 {
		t.Fatalf("ListUsers(al) total = %d, len = %d, want 2 and 2", total, len(users))
	}

	for _, u := range users {
		if u.Username != "alice" {
			continue
		}
		if u.ProjectCount != 1 || u.FileCount != 1 || !u.Online {
			t.Errorf("alice overview = %+v, want 1 project, 1 file, online", u)
		}
	}
}

func TestListUsers_PaginationPastEnd(t *testing.T) {
	db := newTestDB(t)

	mustCreateUser(t, db, "only-one")

	users, total, err := db.ListUsers(context.Background(), "", repository.ListOptions{Limit: 10, Offset: 50})
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if total != 1 {
		t.Errorf("total = %d, want 1", total)
	}
	if len(users) != 0 {
		t.Errorf("past-the-end page should be empty, got %d rows", len(users))
	}
}
