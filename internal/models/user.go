package models

import (
	"time"
)

// Role identifiers as stored in users.role_id
const (
	RoleAdmin        = 1
	RoleCompanyAdmin = 2
	RoleBroker       = 3
	RoleAgent        = 4
	RoleInspector    = 5
	RoleAnalyst      = 6
)

// ExpiringToken is a secret persisted on the account as a digest, together with its expiry.
// Nil pointer on the account means no token is set.
type ExpiringToken struct {
	Digest    string
	ExpiresAt time.Time
}

func (t *ExpiringToken) ValidAt(at time.Time) bool {
	return t != nil && t.ExpiresAt.After(at)
}

type User struct {
	Audit

	ID             int64
	RoleID         int
	Name           string
	Username       string
	Email          string
	HashedPassword string

	Refresh *ExpiringToken
	Reset   *ExpiringToken
}

func (u User) Summary() UserSummary {
	return UserSummary{ID: u.ID, Username: u.Username}
}

// UserSummary is what clients learn about the account after authentication
type UserSummary struct {
	ID       int64
	Username string
}

// NewUser holds what is needed to register an account
type NewUser struct {
	RoleID   int
	Name     string
	Username string
	Email    string
	Password string
}

// UserUpdate holds profile fields an admin may change. Password and tokens are changed elsewhere
type UserUpdate struct {
	RoleID int
	Name   string
	Email  string
}
