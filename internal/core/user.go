package core

import (
	"errors"
	"strings"
)

const (
	RoleUser      Role = "user"
	RoleAdmin     Role = "admin"
	RoleDemoAdmin Role = "demo-admin"
)

// Role is this system's own authorization level, resolved by the backend.
type Role string

// Roles lists every role an admin may assign.
var Roles = []Role{RoleUser, RoleAdmin, RoleDemoAdmin}

var ErrInvalidRole = errors.New("invalid role")

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAdmin, RoleDemoAdmin:
		return true
	default:
		return false
	}
}

// ParseRole maps a backend role string to a Role. Unknown and empty values
// fall back to RoleUser.
func ParseRole(s string) Role {
	r := Role(strings.TrimSpace(s))
	if !r.Valid() {
		return RoleUser
	}
	return r
}

// User is an account record as returned by the admin endpoints.
type User struct {
	ID        string `json:"_id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	PhotoURL  string `json:"photoURL"`
	Role      Role   `json:"role"`
	CreatedAt string `json:"createdAt"`
}

// Created returns the creation time in milliseconds since the epoch, or 0
// when createdAt is missing or malformed.
func (u User) Created() int64 {
	t, ok := ParseDate(u.CreatedAt)
	if !ok {
		return 0
	}
	return t.UnixMilli()
}

// MonthlyCount is one bar of the new-users analytics chart.
type MonthlyCount struct {
	Month string `json:"month"`
	Count int    `json:"count"`
}
