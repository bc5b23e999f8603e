package auth

import (
	"errors"
	"strings"
)

// Role is an authorisation tier.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// IsValidRole reports whether r is a known role.
func IsValidRole(r Role) bool {
	return r == RoleUser || r == RoleAdmin
}

// adminUsername is the operator account that is privileged regardless of
// the role claim.
const adminUsername = "admin"

// Caller is the authenticated identity behind a request.
type Caller struct {
	Username string `json:"username"`
	Role     Role   `json:"role"`
}

// IsAdmin reports whether the caller may act on any lamp.
func (c Caller) IsAdmin() bool {
	return c.Role == RoleAdmin || strings.EqualFold(c.Username, adminUsername)
}

// Owns reports whether ownerID names this caller.
func (c Caller) Owns(ownerID string) bool {
	return c.Username != "" && c.Username == ownerID
}

var (
	ErrTokenInvalid = errors.New("auth: invalid token")
	ErrTokenExpired = errors.New("auth: token has expired")
	ErrNoCaller     = errors.New("auth: no authenticated caller")
)
