package auth

import (
	"fmt"
	"strings"
	"time"
)

// RoleName is the closed set of role labels understood by the policy rules.
type RoleName string

const (
	RoleDirection      RoleName = "direction"
	RoleSupervisor     RoleName = "supervisor"
	RoleAdministration RoleName = "administration"
	RoleOperator       RoleName = "operator"
	RoleAuditor        RoleName = "auditor"
	// RoleAdmin is assigned by external tooling and treated as direction/administration.
	RoleAdmin RoleName = "admin"
)

// BuiltinRoles are seeded by migrations.
var BuiltinRoles = []RoleName{
	RoleDirection,
	RoleSupervisor,
	RoleAdministration,
	RoleOperator,
	RoleAuditor,
}

// PrivilegedRoles is the role set required by administrative operations.
var PrivilegedRoles = []RoleName{RoleDirection, RoleAdministration}

// DefaultOrganizationID is the organization created by the seeds. Users and records created by a
// caller without an organization land in it.
const DefaultOrganizationID = "01J000000000000000000000G1"

// ParseRoleName normalizes and validates a role label.
func ParseRoleName(raw string) (RoleName, error) {
	name := RoleName(strings.ToLower(strings.TrimSpace(raw)))
	switch name {
	case RoleDirection, RoleSupervisor, RoleAdministration, RoleOperator, RoleAuditor, RoleAdmin:
		return name, nil
	case "":
		return "", fmt.Errorf("%w: role name is required", ErrInvalidInput)
	default:
		return "", fmt.Errorf("%w: unknown role %q", ErrInvalidInput, raw)
	}
}

type Organization struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Role struct {
	ID          string        `json:"id"`
	Name        RoleName      `json:"name"`
	Description string        `json:"description,omitempty"`
	Permissions PermissionMap `json:"permissions"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// User is a stored account. PasswordHash never leaves the credential validator in responses.
type User struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id,omitempty"`
	RoleID         string    `json:"role_id,omitempty"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	Phone          string    `json:"phone,omitempty"`
	PasswordHash   string    `json:"-"`
	Active         bool      `json:"active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Sanitized returns a copy without credential material.
func (u User) Sanitized() User {
	u.PasswordHash = ""
	return u
}

// Identity is the request-scoped projection of live user, role and organization state.
type Identity struct {
	User         User
	Role         *Role
	Organization *Organization
}

// RoleName returns the live role label or "" when the user has none.
func (i Identity) RoleName() RoleName {
	if i.Role == nil {
		return ""
	}
	return i.Role.Name
}

// OrganizationID prefers the live organization record.
func (i Identity) OrganizationID() string {
	if i.Organization != nil {
		return i.Organization.ID
	}
	return i.User.OrganizationID
}

// UserView is a user together with its resolved role.
type UserView struct {
	User
	Role *Role `json:"role,omitempty"`
}

// UserSummary is returned by the login endpoint.
type UserSummary struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Email          string   `json:"email"`
	Phone          string   `json:"phone,omitempty"`
	Role           RoleName `json:"role,omitempty"`
	RoleID         string   `json:"role_id,omitempty"`
	OrganizationID string   `json:"organization_id,omitempty"`
}

// Summary builds the login user summary from an identity.
func (i Identity) Summary() UserSummary {
	return UserSummary{
		ID:             i.User.ID,
		Name:           i.User.Name,
		Email:          i.User.Email,
		Phone:          i.User.Phone,
		Role:           i.RoleName(),
		RoleID:         i.User.RoleID,
		OrganizationID: i.OrganizationID(),
	}
}

type NewUser struct {
	OrganizationID string
	RoleID         string
	Name           string
	Email          string
	Phone          string
	PasswordHash   string
}

type UserUpdate struct {
	Name           *string
	Phone          *string
	RoleID         *string
	OrganizationID *string
	PasswordHash   *string
	Active         *bool
}

type UserFilter struct {
	RoleID string
	Active *bool
	Limit  int
	Offset int
}

type NewRole struct {
	Name        RoleName
	Description string
	Permissions PermissionMap
}

type RoleUpdate struct {
	Description *string
	Permissions PermissionMap
}

// AuditEntry records who did what, in which module, and when. Entries are append-only.
type AuditEntry struct {
	ID         string            `json:"id"`
	ActorID    string            `json:"actor_id,omitempty"`
	Module     string            `json:"module"`
	Action     string            `json:"action"`
	ResourceID string            `json:"resource_id,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	RequestID  string            `json:"request_id,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

type AuditFilter struct {
	ActorID string
	Module  string
	Before  time.Time
	Limit   int
}
