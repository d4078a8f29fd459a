package auth

import "errors"

// User is an authenticated principal. The panel application only needs
// enough identity to attribute audit events and gate admin routes.
type User struct {
	ID           int64
	Username     string
	DisplayName  string
	PasswordHash []byte
	Role         Role
	MFAEnabled   bool
}

// Role gates access to the admin surface.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// ErrInvalidCredentials is returned for unknown users and wrong passwords
// alike so responses cannot be used for account enumeration.
var ErrInvalidCredentials = errors.New("invalid credentials")
