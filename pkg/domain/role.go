package domain

import (
	dErrors "prodir/pkg/domain-errors"
)

// Role is the closed set of caller roles the identity provider may assert.
// Moderation privileges grow from admin to superAdmin; user carries none.
type Role string

const (
	RoleUser          Role = "user"
	RoleAdmin         Role = "admin"
	RoleDirectorAdmin Role = "directorAdmin"
	RoleSuperAdmin    Role = "superAdmin"
)

var roleRank = map[Role]int{
	RoleUser:          0,
	RoleAdmin:         1,
	RoleDirectorAdmin: 2,
	RoleSuperAdmin:    3,
}

// ParseRole accepts only members of the closed set.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if _, ok := roleRank[r]; !ok {
		return "", dErrors.New(dErrors.CodeInvalidArgument, "unknown role: "+s)
	}
	return r, nil
}

// IsModerator reports whether the role takes part in the approval chain.
func (r Role) IsModerator() bool {
	return roleRank[r] >= roleRank[RoleAdmin]
}
