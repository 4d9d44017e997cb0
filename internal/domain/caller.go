package domain

import "strings"

type Role string

const (
	RoleClient   Role = "client"
	RoleProvider Role = "provider"
	RoleAdmin    Role = "admin"
)

// ParseRole accepts "expert" as a synonym for provider.
func ParseRole(s string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "client":
		return RoleClient, true
	case "provider", "expert":
		return RoleProvider, true
	case "admin":
		return RoleAdmin, true
	}
	return "", false
}

// Caller is the authenticated identity a request runs as.
type Caller struct {
	ID   string
	Role Role
}

func (c Caller) IsAdmin() bool { return c.Role == RoleAdmin }

func (c Caller) Valid() bool {
	if strings.TrimSpace(c.ID) == "" {
		return false
	}
	_, ok := ParseRole(string(c.Role))
	return ok
}
