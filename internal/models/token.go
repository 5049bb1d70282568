package models

import (
	"time"
)

// IssuedToken is a signed token as handed to the client
type IssuedToken struct {
	Value     string
	ID        string // jti
	ExpiresAt time.Time
}

// AccessClaims are the verified contents of an access token
type AccessClaims struct {
	TokenID   string
	UserID    int64
	Username  string
	RoleID    int
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// RefreshClaims are the verified contents of a refresh token
type RefreshClaims struct {
	TokenID   string
	UserID    int64
	Remember  bool
	ExpiresAt time.Time
}

// Session issued by AuthService on login and refresh
type Session struct {
	Access  IssuedToken
	Refresh IssuedToken
	User    UserSummary
}
