package model

import (
	"fmt"
	"time"
)

// User is a staff or student account used for authentication.
type User struct {
	ID           int64      `json:"id"`
	Username     string     `json:"username"`
	Email        string     `json:"email,omitempty"`
	PasswordHash string     `json:"-"`
	Role         string     `json:"role"`
	CreatedAt    time.Time  `json:"created_at"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
}

// Roles.
const (
	RoleAdmin = "admin"
	RoleStaff = "staff"
	RoleUser  = "user"
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 8

// RoleAtLeast checks if role meets or exceeds the minimum required role.
func RoleAtLeast(role, minimum string) bool {
	levels := map[string]int{
		RoleAdmin: 3,
		RoleStaff: 2,
		RoleUser:  1,
	}
	have, ok := levels[role]
	if !ok {
		return false
	}
	need, ok := levels[minimum]
	if !ok {
		return false
	}
	return have >= need
}

// ValidRole reports whether role is one of the known roles.
func ValidRole(role string) bool {
	return role == RoleAdmin || role == RoleStaff || role == RoleUser
}

// ValidatePassword rejects passwords shorter than MinPasswordLength.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return Errorf(ErrValidation, "password must be at least %d characters", MinPasswordLength)
	}
	return nil
}

// Validate checks the fields required to store a user.
func (u *User) Validate() error {
	if u.Username == "" {
		return fmt.Errorf("%w: username required", ErrValidation)
	}
	if !ValidRole(u.Role) {
		return fmt.Errorf("%w: invalid role %q", ErrValidation, u.Role)
	}
	return nil
}
