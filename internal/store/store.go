// Package store persists users, client assignments and chat logs for the
// support desk backend.
package store

import (
	"context"
	"errors"

	"github.com/ruriclub/supportdesk/internal/model"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrEmailTaken is returned when creating a user with a known email.
	ErrEmailTaken = errors.New("email already registered")
)

// User is a stored account. Password holds a bcrypt hash, or the plain
// password for legacy rows.
type User struct {
	ID       int64
	FullName string
	Email    string
	Password string
	Role     model.Role
}

// Store defines the persistence operations of the backend.
type Store interface {
	CreateUser(ctx context.Context, u *User) error
	UserByEmail(ctx context.Context, email string) (*User, error)
	UserByID(ctx context.Context, id int64) (*User, error)
	UsersByRole(ctx context.Context, role model.Role) ([]User, error)

	// UpsertAssignment makes employeeID the single assignee of clientID.
	UpsertAssignment(ctx context.Context, clientID, employeeID int64) error
	// Assignment returns ErrNotFound when the client has no assignee.
	Assignment(ctx context.Context, clientID int64) (*model.Assignment, error)
	AssignedClients(ctx context.Context, employeeID int64) ([]model.AssignedClient, error)

	// AppendChat stores m and returns it with its creation time.
	AppendChat(ctx context.Context, m model.Message) (model.Message, error)
	// ChatBetween returns the messages exchanged by a and b, oldest first.
	ChatBetween(ctx context.Context, a, b int64) ([]model.Message, error)

	Ping(ctx context.Context) error
	Close() error
}
