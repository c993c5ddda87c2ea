// Package model defines data structures shared by the support desk client
// core and its backend.
package model

import (
	"fmt"
	"strings"
)

// Role is the kind of actor behind an identity.
type Role string

const (
	RoleClient   Role = "client"
	RoleEmployee Role = "employee"
	RoleAdmin    Role = "admin"
)

// ParseRole validates a role string as delivered by the backend.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleClient, RoleEmployee, RoleAdmin:
		return true
	}
	return false
}

// Identity is the authenticated actor of a session. It is immutable for the
// lifetime of the session.
type Identity struct {
	ID          int64  `json:"user_id"`
	DisplayName string `json:"full_name"`
	Role        Role   `json:"role"`
	Email       string `json:"email,omitempty"`
}

// Counterpart is someone an identity may exchange messages with.
type Counterpart struct {
	ID          int64  `json:"user_id"`
	DisplayName string `json:"full_name"`
	Role        Role   `json:"role,omitempty"`
}

// Assignment relates a client to the single employee currently serving them.
type Assignment struct {
	ClientID     int64  `json:"client_id"`
	EmployeeID   int64  `json:"employee_id"`
	EmployeeName string `json:"employee_name"`
}

// Counterpart returns the assigned employee as a counterpart of the client.
func (a Assignment) Counterpart() Counterpart {
	return Counterpart{ID: a.EmployeeID, DisplayName: a.EmployeeName, Role: RoleEmployee}
}
