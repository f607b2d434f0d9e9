// Package directory manages the administrative user registry: the accounts
// that grants are issued to. It owns profile data and lifecycle status only;
// what a user can see lives in the access package.
package directory

import (
	"context"
	"errors"
	"time"
)

var (
	ErrInvalidInput = errors.New("directory: invalid input")
	ErrNotFound     = errors.New("directory: not found")
	ErrConflict     = errors.New("directory: resource conflict")
)

// Lifecycle status values for a user account.
const (
	StatusActive   = "ACTIVE"
	StatusInactive = "INACTIVE"
)

// User categories recognised by the admin console.
const (
	TypeAdmin   = "ADMIN"
	TypeAnalyst = "ANALYST"
	TypeManager = "MANAGER"
	TypeClient  = "CLIENT"
)

// User is one managed account. The password hash never leaves the store.
type User struct {
	ID           string    `json:"user_id"`
	Name         string    `json:"user_name"`
	Email        string    `json:"email"`
	UserType     string    `json:"user_type"`
	Organisation string    `json:"organisation"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Query narrows and pages a user listing. Search matches name and email,
// case-insensitively.
type Query struct {
	Search string
	Status string
	Limit  int
	Offset int
}

// Page is one page of a user listing with the unpaged match count.
type Page struct {
	Users []User `json:"users"`
	Total int    `json:"total"`
}

// Store persists user accounts.
type Store interface {
	// CreateUser inserts the account; a duplicate email is ErrConflict.
	CreateUser(ctx context.Context, user User, passwordHash string) (User, error)
	ListUsers(ctx context.Context, q Query) (Page, error)
	GetUser(ctx context.Context, userID string) (User, error)
	UpdateUserStatus(ctx context.Context, userID, status string) (User, error)
}
