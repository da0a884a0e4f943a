package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestResolveLoadsLiveState(t *testing.T) {
	store := newMemStore()
	role := store.addRole(RoleSupervisor, nil)
	org := store.addOrg("North Site")
	user := store.addUser(User{RoleID: role.ID, OrganizationID: org.ID, Email: "s@example.com", Active: true, PasswordHash: "x"})

	r := NewIdentityResolver(store, time.Second, nil)
	id, err := r.Resolve(context.Background(), &Claims{Role: RoleDirection, OrganizationID: "stale-org", RegisteredClaims: jwt.RegisteredClaims{Subject: user.ID}})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if id.RoleName() != RoleSupervisor {
		t.Fatalf("role must come from the store, got %q", id.RoleName())
	}
	if id.OrganizationID() != org.ID {
		t.Fatalf("live organization must win, got %q", id.OrganizationID())
	}
	if id.User.PasswordHash != "" {
		t.Fatalf("resolved identity must not carry the hash")
	}
}

func TestResolveDeniesDeactivatedUser(t *testing.T) {
	store := newMemStore()
	user := store.addUser(User{Email: "gone@example.com", Active: true})
	r := NewIdentityResolver(store, time.Second, nil)

	if _, err := r.ResolveSubject(context.Background(), user.ID); err != nil {
		t.Fatalf("expected active user to resolve: %v", err)
	}
	inactive := false
	if _, err := store.UpdateUser(context.Background(), user.ID, UserUpdate{Active: &inactive}); err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}
	if _, err := r.ResolveSubject(context.Background(), user.ID); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated after deactivation, got %v", err)
	}
	if _, err := r.ResolveSubject(context.Background(), "missing"); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated for missing user, got %v", err)
	}
}

func TestResolveFailsClosedOnStoreError(t *testing.T) {
	store := newMemStore()
	store.failUsers = errStoreDown
	r := NewIdentityResolver(store, time.Second, nil)
	_, err := r.ResolveSubject(context.Background(), "user-1")
	if !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
	if errors.Is(err, errStoreDown) {
		t.Fatalf("store error must not leak through")
	}
}

func TestResolveHonoursCancellation(t *testing.T) {
	store := newMemStore()
	user := store.addUser(User{Email: "a@example.com", Active: true})
	r := NewIdentityResolver(store, time.Second, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.ResolveSubject(ctx, user.ID); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated on cancelled context, got %v", err)
	}
}

func TestResolveKeepsIdentityWhenRoleRemoved(t *testing.T) {
	store := newMemStore()
	role := store.addRole(RoleOperator, nil)
	user := store.addUser(User{Email: "a@example.com", Active: true, RoleID: role.ID})
	if err := store.DeleteRole(context.Background(), role.ID); err != nil {
		t.Fatalf("DeleteRole: %v", err)
	}
	id, err := NewIdentityResolver(store, time.Second, nil).ResolveSubject(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("ResolveSubject: %v", err)
	}
	if id.Role != nil {
		t.Fatalf("expected no role, got %+v", id.Role)
	}
}
