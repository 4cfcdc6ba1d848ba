package access

import (
	"fmt"
	"strings"
)

// Role is one of the closed set of actor roles known to the booking engine.
type Role string

const (
	RoleClimber    Role = "climber"
	RoleInstructor Role = "instructor"
	RoleCoach      Role = "coach"
	RoleAdmin      Role = "admin"
)

// rank orders roles by privilege. Higher ranks are more privileged.
var rank = map[Role]int{
	RoleClimber:    1,
	RoleInstructor: 2,
	RoleCoach:      3,
	RoleAdmin:      4,
}

// IsValid returns true if the role is a recognized role.
func (r Role) IsValid() bool {
	_, ok := rank[r]
	return ok
}

// Rank returns the privilege rank of the role, or 0 for unknown roles.
func (r Role) Rank() int { return rank[r] }

// AtLeast returns true if r is at least as privileged as other.
func (r Role) AtLeast(other Role) bool {
	return r.IsValid() && r.Rank() >= other.Rank()
}

// IsStaff returns true for roles that may act on behalf of any climber.
func (r Role) IsStaff() bool {
	return r == RoleCoach || r == RoleAdmin
}

// String returns the string representation of the role.
func (r Role) String() string { return string(r) }

// ParseRole converts a string to a Role, returning an error if invalid.
func ParseRole(s string) (Role, error) {
	role := Role(strings.ToLower(strings.TrimSpace(s)))
	if !role.IsValid() {
		return "", fmt.Errorf("invalid role: %s", s)
	}
	return role, nil
}

// RoleSet is the set of roles held by one actor.
type RoleSet []Role

// NewRoleSet builds a RoleSet from raw role names. Unknown names are dropped
// and duplicates collapsed.
func NewRoleSet(names ...string) RoleSet {
	seen := make(map[Role]struct{}, len(names))
	set := make(RoleSet, 0, len(names))
	for _, n := range names {
		role, err := ParseRole(n)
		if err != nil {
			continue
		}
		if _, dup := seen[role]; dup {
			continue
		}
		seen[role] = struct{}{}
		set = append(set, role)
	}
	return set
}

// Has returns true if the set contains role.
func (s RoleSet) Has(role Role) bool {
	for _, r := range s {
		if r == role {
			return true
		}
	}
	return false
}

// HasAny returns true if the set contains at least one of roles.
func (s RoleSet) HasAny(roles ...Role) bool {
	for _, role := range roles {
		if s.Has(role) {
			return true
		}
	}
	return false
}

// IsStaff returns true if any role in the set bypasses ownership checks.
func (s RoleSet) IsStaff() bool {
	for _, r := range s {
		if r.IsStaff() {
			return true
		}
	}
	return false
}

// Highest returns the most privileged role in the set, or "" if empty.
func (s RoleSet) Highest() Role {
	var best Role
	for _, r := range s {
		if r.Rank() > best.Rank() {
			best = r
		}
	}
	return best
}

// Strings returns the role names.
func (s RoleSet) Strings() []string {
	out := make([]string, len(s))
	for i, r := range s {
		out[i] = string(r)
	}
	return out
}
