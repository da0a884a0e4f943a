package auth

import "context"

// UserStore returns ErrNotFound for missing rows and ErrConflict for duplicate emails.
type UserStore interface {
	UserByEmail(ctx context.Context, email string) (User, error)
	UserByID(ctx context.Context, id string) (User, error)
	ListUsers(ctx context.Context, filter UserFilter) ([]User, error)
	CreateUser(ctx context.Context, user NewUser) (User, error)
	UpdateUser(ctx context.Context, id string, upd UserUpdate) (User, error)
	HasActiveUserWithRoles(ctx context.Context, roles []RoleName) (bool, error)
}

type RoleStore interface {
	RoleByID(ctx context.Context, id string) (Role, error)
	RoleByName(ctx context.Context, name RoleName) (Role, error)
	ListRoles(ctx context.Context) ([]Role, error)
	CreateRole(ctx context.Context, role NewRole) (Role, error)
	UpdateRole(ctx context.Context, id string, upd RoleUpdate) (Role, error)
	DeleteRole(ctx context.Context, id string) error
}

type OrganizationStore interface {
	OrganizationByID(ctx context.Context, id string) (Organization, error)
}

type AuditStore interface {
	AppendAudit(ctx context.Context, entry AuditEntry) error
	ListAudit(ctx context.Context, filter AuditFilter) ([]AuditEntry, error)
}

// Store aggregates the persistence contracts used by the auth package.
type Store interface {
	UserStore
	RoleStore
	OrganizationStore
	AuditStore
}

// IdentityStore is the read side consumed on every authenticated request.
type IdentityStore interface {
	UserByID(ctx context.Context, id string) (User, error)
	RoleByID(ctx context.Context, id string) (Role, error)
	OrganizationByID(ctx context.Context, id string) (Organization, error)
}
