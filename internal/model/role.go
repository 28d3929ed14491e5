package model

import (
	"database/sql/driver"
	"fmt"
	"strings"
)

// Role is the closed set of server membership roles.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// ElevatedRoles may manage invites and remove members.
var ElevatedRoles = []Role{RoleOwner, RoleAdmin}

// ParseRole accepts any casing; stored rows are not consistent about it.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleOwner:
		return RoleOwner, nil
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleMember:
		return RoleMember, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
	}
}

func (r Role) In(roles ...Role) bool {
	for _, role := range roles {
		if r == role {
			return true
		}
	}
	return false
}

func (r Role) String() string {
	return string(r)
}

func (r *Role) Scan(src interface{}) error {
	var raw string
	switch v := src.(type) {
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("cannot scan %T into Role", src)
	}

	parsed, err := ParseRole(raw)
	if err != nil {
		return err
	}
	*r = parsed

	return nil
}

func (r Role) Value() (driver.Value, error) {
	return string(r), nil
}
