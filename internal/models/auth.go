package models

import "github.com/golang-jwt/jwt/v5"

// Role is an API access role.
type Role string

const (
	RoleAdmin     Role = "ADMIN"
	RoleScheduler Role = "SCHEDULER"
	RoleViewer    Role = "VIEWER"
)

// Valid reports whether the role is known.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleScheduler || r == RoleViewer
}

// Claims is the JWT payload accepted by the API.
type Claims struct {
	Role Role `json:"role"`
	jwt.RegisteredClaims
}
