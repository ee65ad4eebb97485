package store

import (
	"context"
	"errors"
	"testing"

	"github.com/erazemk/lostfound/internal/db"
	"github.com/erazemk/lostfound/internal/model"
)

func newUser(t *testing.T, q Querier, username, role string) *model.User {
	t.Helper()
	u, err := CreateUser(context.Background(), q, &model.User{
		Username:     username,
		Email:        username + "@campus.test",
		PasswordHash: "hash",
		Role:         role,
	})
	if err != nil {
		t.Fatalf("CreateUser(%s): %v", username, err)
	}
	return u
}

func TestCreateAndGetUser(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	user := newUser(t, database, "testuser", model.RoleStaff)
	if user.Role != model.RoleStaff {
		t.Errorf("expected role 'staff', got %q", user.Role)
	}
	if user.Email != "testuser@campus.test" {
		t.Errorf("expected email to round-trip, got %q", user.Email)
	}

	got, err := GetUser(ctx, database, user.ID)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if got.Username != "testuser" {
		t.Errorf("expected username 'testuser', got %q", got.Username)
	}

	missing, err := GetUser(ctx, database, 999)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for missing user")
	}
}

func TestCreateUserRejectsDuplicateUsername(t *testing.T) {
	database := db.NewTestDB(t)

	newUser(t, database, "alice", model.RoleAdmin)
	_, err := CreateUser(context.Background(), database, &model.User{
		Username: "alice", PasswordHash: "hash", Role: model.RoleUser,
	})
	if !errors.Is(err, model.ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}
}

func TestCreateUserRejectsUnknownRole(t *testing.T) {
	database := db.NewTestDB(t)

	_, err := CreateUser(context.Background(), database, &model.User{
		Username: "mallory", PasswordHash: "hash", Role: "manager",
	})
	if !errors.Is(err, model.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestGetUserByUsername(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	newUser(t, database, "alice", model.RoleAdmin)

	user, err := GetUserByUsername(ctx, database, "alice")
	if err != nil {
		t.Fatalf("GetUserByUsername: %v", err)
	}
	if user == nil {
		t.Fatal("expected user, got nil")
	}

	missing, err := GetUserByUsername(ctx, database, "bob")
	if err != nil {
		t.Fatalf("GetUserByUsername: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for missing user")
	}
}

func TestUsernameReusableAfterDelete(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	old := newUser(t, database, "reused", model.RoleUser)
	if err := DeleteUser(ctx, database, old.ID); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}
	fresh := newUser(t, database, "reused", model.RoleStaff)

	got, err := GetUserByUsername(ctx, database, "reused")
	if err != nil {
		t.Fatalf("GetUserByUsername: %v", err)
	}
	if got.ID != fresh.ID {
		t.Errorf("expected active account %d, got %d", fresh.ID, got.ID)
	}
}

func TestListAndCountUsers(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	newUser(t, database, "a", model.RoleUser)
	b := newUser(t, database, "b", model.RoleStaff)
	if err := DeleteUser(ctx, database, b.ID); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}

	users, err := ListUsers(ctx, database)
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(users) != 1 {
		t.Errorf("expected 1 active user, got %d", len(users))
	}

	n, err := CountUsers(ctx, database)
	if err != nil {
		t.Fatalf("CountUsers: %v", err)
	}
	if n != 1 {
		t.Errorf("expected count 1, got %d", n)
	}
}

func TestUpdateUser(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	user := newUser(t, database, "promoted", model.RoleUser)
	if err := UpdateUser(ctx, database, user.ID, model.RoleStaff, "desk@campus.test"); err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}

	got, _ := GetUser(ctx, database, user.ID)
	if got.Role != model.RoleStaff || got.Email != "desk@campus.test" {
		t.Errorf("expected staff with new email, got %q %q", got.Role, got.Email)
	}

	if err := UpdateUser(ctx, database, 999, model.RoleStaff, ""); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing user, got %v", err)
	}
}

func TestUpdateUserPassword(t *testing.T) {
	database := db.NewTestDB(t)
	ctx := context.Background()

	user := newUser(t, database, "pwuser", model.RoleUser)
	if err := UpdateUserPassword(ctx, database, user.ID, "newhash"); err != nil {
		t.Fatalf("UpdateUserPassword: %v", err)
	}

	got, _ := GetUser(ctx, database, user.ID)
	if got.PasswordHash != "newhash" {
		t.Errorf("expected password hash 'newhash', got %q", got.PasswordHash)
	}
}
