package auth

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"

	"worksdesk.io/internal/config"
)

// BootstrapStore is the subset of Store used to guarantee one privileged account.
type BootstrapStore interface {
	UserByEmail(ctx context.Context, email string) (User, error)
	CreateUser(ctx context.Context, user NewUser) (User, error)
	UpdateUser(ctx context.Context, id string, upd UserUpdate) (User, error)
	HasActiveUserWithRoles(ctx context.Context, roles []RoleName) (bool, error)
	RoleByName(ctx context.Context, name RoleName) (Role, error)
	CreateRole(ctx context.Context, role NewRole) (Role, error)
}

// Bootstrapper creates the configured administrator when no privileged user exists.
type Bootstrapper struct {
	store BootstrapStore
	cfg   config.BootstrapConfig
	log   *zap.Logger
	mu    sync.Mutex
}

func NewBootstrapper(store BootstrapStore, cfg config.BootstrapConfig, log *zap.Logger) *Bootstrapper {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bootstrapper{store: store, cfg: cfg, log: log}
}

// EnsureAdmin is idempotent. It reports whether an account was created or promoted.
func (b *Bootstrapper) EnsureAdmin(ctx context.Context) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	exists, err := b.store.HasActiveUserWithRoles(ctx, append(slices.Clone(PrivilegedRoles), RoleAdmin))
	if err != nil {
		return false, fmt.Errorf("auth: check privileged users: %w", err)
	}
	if exists {
		return false, nil
	}
	email := NormalizeEmail(b.cfg.Email)
	if email == "" || b.cfg.Password == "" {
		b.log.Warn("no privileged user exists and bootstrap credentials are not configured")
		return false, nil
	}
	roleName, err := ParseRoleName(b.cfg.Role)
	if err != nil {
		return false, err
	}
	if !IsPrivileged(roleName) {
		return false, fmt.Errorf("%w: bootstrap role %q is not privileged", ErrInvalidInput, roleName)
	}
	role, err := b.ensureRole(ctx, roleName)
	if err != nil {
		return false, err
	}

	existing, err := b.store.UserByEmail(ctx, email)
	switch {
	case err == nil:
		active := true
		if _, err := b.store.UpdateUser(ctx, existing.ID, UserUpdate{RoleID: &role.ID, Active: &active}); err != nil {
			return false, fmt.Errorf("auth: promote bootstrap user: %w", err)
		}
		b.log.Info("bootstrap user promoted", zap.String("user_id", existing.ID), zap.String("role", string(role.Name)))
		return true, nil
	case !errors.Is(err, ErrNotFound):
		return false, fmt.Errorf("auth: lookup bootstrap user: %w", err)
	}

	hash, err := HashPassword(b.cfg.Password)
	if err != nil {
		return false, err
	}
	user, err := b.store.CreateUser(ctx, NewUser{
		RoleID:       role.ID,
		Name:         b.cfg.Name,
		Email:        email,
		PasswordHash: hash,
	})
	if errors.Is(err, ErrConflict) {
		// a concurrent bootstrap in another process won the insert
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("auth: create bootstrap user: %w", err)
	}
	b.log.Info("bootstrap user created", zap.String("user_id", user.ID), zap.String("role", string(role.Name)))
	return true, nil
}

func (b *Bootstrapper) ensureRole(ctx context.Context, name RoleName) (Role, error) {
	role, err := b.store.RoleByName(ctx, name)
	if err == nil {
		return role, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Role{}, fmt.Errorf("auth: lookup bootstrap role: %w", err)
	}
	role, err = b.store.CreateRole(ctx, NewRole{
		Name:        name,
		Description: "created by bootstrap",
		Permissions: FullAccess(),
	})
	if errors.Is(err, ErrConflict) {
		return b.store.RoleByName(ctx, name)
	}
	return role, err
}
