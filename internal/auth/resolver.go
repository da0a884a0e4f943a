package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const defaultResolveTimeout = 3 * time.Second

// IdentityResolver reloads user, role and organization on every request.
type IdentityResolver struct {
	store   IdentityStore
	timeout time.Duration
	log     *zap.Logger
}

func NewIdentityResolver(store IdentityStore, timeout time.Duration, log *zap.Logger) *IdentityResolver {
	if timeout <= 0 {
		timeout = defaultResolveTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &IdentityResolver{store: store, timeout: timeout, log: log}
}

// Resolve loads the live identity for a verified claim set. Missing or inactive users,
// store failures and timeouts all yield ErrUnauthenticated.
// Claims other than the subject are ignored so that live state always wins.
func (r *IdentityResolver) Resolve(ctx context.Context, claims *Claims) (Identity, error) {
	if claims == nil {
		return Identity{}, fmt.Errorf("%w: missing claims", ErrUnauthenticated)
	}
	return r.ResolveSubject(ctx, claims.Subject)
}

// ResolveSubject loads the identity for a user id.
func (r *IdentityResolver) ResolveSubject(ctx context.Context, subject string) (Identity, error) {
	if subject == "" {
		return Identity{}, fmt.Errorf("%w: missing subject", ErrUnauthenticated)
	}
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	user, err := r.store.UserByID(ctx, subject)
	if err != nil {
		return Identity{}, r.fail("user", subject, err)
	}
	if !user.Active {
		return Identity{}, fmt.Errorf("%w: user is inactive", ErrUnauthenticated)
	}
	id := Identity{User: user.Sanitized()}

	if user.RoleID != "" {
		role, err := r.store.RoleByID(ctx, user.RoleID)
		switch {
		case err == nil:
			id.Role = &role
		case errors.Is(err, ErrNotFound):
			// role removed since assignment; the identity keeps no role
		default:
			return Identity{}, r.fail("role", user.RoleID, err)
		}
	}

	if user.OrganizationID != "" {
		org, err := r.store.OrganizationByID(ctx, user.OrganizationID)
		switch {
		case err == nil:
			id.Organization = &org
		case errors.Is(err, ErrNotFound):
		default:
			return Identity{}, r.fail("organization", user.OrganizationID, err)
		}
	}
	return id, nil
}

func (r *IdentityResolver) fail(kind, id string, err error) error {
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%w: %s no longer exists", ErrUnauthenticated, kind)
	}
	r.log.Warn("identity lookup failed", zap.String("kind", kind), zap.String("id", id), zap.Error(err))
	return fmt.Errorf("%w: %s lookup failed", ErrUnauthenticated, kind)
}
