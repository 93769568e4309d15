package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleSuperAdmin  Role = "super_admin"
	RoleBranchAdmin Role = "branch_admin"
	RoleTeacher     Role = "teacher"
	RoleParent      Role = "parent"
	RoleStudent     Role = "student"
)

var roles = []Role{RoleSuperAdmin, RoleBranchAdmin, RoleTeacher, RoleParent, RoleStudent}

// Parse role from its string form. Unknown values are rejected
func ParseRole(value string) (Role, error) {
	for _, r := range roles {
		if string(r) == value {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown role %q", value)
}

func (r Role) Valid() bool {
	_, err := ParseRole(string(r))
	return err == nil
}

// Parents and students may be registered before a school admin reviews them
func (r Role) RequiresApproval() bool {
	return r == RoleParent || r == RoleStudent
}

func (r Role) IsAdmin() bool {
	return r == RoleSuperAdmin || r == RoleBranchAdmin
}

func (r Role) String() string {
	return string(r)
}

type User struct {
	ID             uuid.UUID
	CreatedAt      time.Time
	Email          string
	HashedPassword string
	Role           Role
	TenantID       *string // nil for super admins
	Approved       bool
	Active         bool
}

// Profile is the part of the user that is safe to return to the client
type Profile struct {
	ID       uuid.UUID `json:"id"`
	Email    string    `json:"email"`
	Role     Role      `json:"role"`
	TenantID *string   `json:"tenant_id,omitempty"`
}

func (u User) Profile() Profile {
	return Profile{
		ID:       u.ID,
		Email:    u.Email,
		Role:     u.Role,
		TenantID: u.TenantID,
	}
}

// Identity of the caller verified from an access token.
// It lives only for the duration of a request
type Identity struct {
	UserID    uuid.UUID
	Role      Role
	TenantID  *string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Check whether the identity has one of the roles
func (i Identity) HasRole(allowed ...Role) bool {
	for _, r := range allowed {
		if i.Role == r {
			return true
		}
	}
	return false
}

// Super admin may act on any tenant, everybody else on its own only
func (i Identity) CanAccessTenant(tenant string) bool {
	if i.Role == RoleSuperAdmin {
		return true
	}
	return i.TenantID != nil && *i.TenantID == tenant
}

// Whether the identity may approve, activate or deactivate the user.
// Branch admins manage teachers, parents and students of their branch
func (i Identity) CanManage(u User) bool {
	switch {
	case i.UserID == u.ID:
		return false
	case i.Role == RoleSuperAdmin:
		return true
	case i.Role == RoleBranchAdmin:
		return u.TenantID != nil && i.CanAccessTenant(*u.TenantID) && !u.Role.IsAdmin()
	default:
		return false
	}
}

