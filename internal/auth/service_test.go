package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"worksdesk.io/internal/config"
)

func newTestService(t *testing.T, store *memStore) *Service {
	t.Helper()
	svc, err := NewService(store, config.TokenConfig{Secret: []byte("service-secret"), Issuer: "worksdesk", TTL: time.Hour})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func TestRegisterThenLogin(t *testing.T) {
	store := newMemStore()
	role := store.addRole(RoleOperator, PermissionMap{ResourceExpenses: NewOperationSet(OpCreate, OpRead)})
	svc := newTestService(t, store)
	ctx := context.Background()

	view, err := svc.Register(ctx, CreateUserInput{
		Name:     "Ana Operator",
		Email:    "Ana@Example.com",
		Password: "pour-concrete",
		RoleID:   role.ID,
		Phone:    "+34 600 000 000",
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if view.Role == nil || view.Role.Name != RoleOperator {
		t.Fatalf("expected resolved role, got %+v", view.Role)
	}
	if view.PasswordHash != "" {
		t.Fatalf("registered user must not expose the hash")
	}
	if view.Email != "ana@example.com" {
		t.Fatalf("expected normalized email, got %q", view.Email)
	}

	res, err := svc.Login(ctx, "ana@example.com", "pour-concrete")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.User.Role != RoleOperator || res.User.ID != view.ID {
		t.Fatalf("unexpected summary %+v", res.User)
	}

	claims, err := svc.tokens.Verify(res.AccessToken)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.Subject != view.ID || claims.Role != RoleOperator {
		t.Fatalf("unexpected claims %+v", claims)
	}

	id, err := svc.Authenticate(ctx, res.AccessToken)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if id.RoleName() != RoleOperator {
		t.Fatalf("expected operator identity, got %q", id.RoleName())
	}
}

func TestRegisterDuplicateEmailConflicts(t *testing.T) {
	store := newMemStore()
	role := store.addRole(RoleOperator, nil)
	svc := newTestService(t, store)
	in := CreateUserInput{Name: "Dup", Email: "dup@example.com", Password: "long-enough", RoleID: role.ID}

	if _, err := svc.Register(context.Background(), in); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if _, err := svc.Register(context.Background(), in); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	store := newMemStore()
	role := store.addRole(RoleOperator, nil)
	svc := newTestService(t, store)

	cases := map[string]struct {
		in   CreateUserInput
		want error
	}{
		"missing name":   {CreateUserInput{Email: "a@example.com", Password: "long-enough", RoleID: role.ID}, ErrInvalidInput},
		"bad email":      {CreateUserInput{Name: "A", Email: "nope", Password: "long-enough", RoleID: role.ID}, ErrInvalidInput},
		"short password": {CreateUserInput{Name: "A", Email: "a@example.com", Password: "short", RoleID: role.ID}, ErrInvalidInput},
		"unknown role":   {CreateUserInput{Name: "A", Email: "a@example.com", Password: "long-enough", RoleID: "missing"}, ErrNotFound},
	}
	for name, tc := range cases {
		if _, err := svc.Register(context.Background(), tc.in); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", name, tc.want, err)
		}
	}
}

func TestAuthenticateAfterDeactivation(t *testing.T) {
	store := newMemStore()
	role := store.addRole(RoleSupervisor, nil)
	svc := newTestService(t, store)
	ctx := context.Background()

	view, err := svc.Register(ctx, CreateUserInput{Name: "Sam", Email: "sam@example.com", Password: "long-enough", RoleID: role.ID})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	res, err := svc.Login(ctx, "sam@example.com", "long-enough")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if err := svc.RBAC().DeactivateUser(ctx, view.ID); err != nil {
		t.Fatalf("DeactivateUser: %v", err)
	}
	if _, err := svc.Authenticate(ctx, res.AccessToken); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated for deactivated user, got %v", err)
	}
}

func TestUpdateUserRejectsUnknownOrganization(t *testing.T) {
	store := newMemStore()
	org := store.addOrg("Branch")
	svc := newTestService(t, store)
	ctx := context.Background()

	view, err := svc.Register(ctx, CreateUserInput{Name: "Sam", Email: "sam@example.com", Password: "long-enough"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	missing := "org-missing"
	if _, err := svc.RBAC().UpdateUser(ctx, view.ID, UpdateUserInput{OrganizationID: &missing}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	updated, err := svc.RBAC().UpdateUser(ctx, view.ID, UpdateUserInput{OrganizationID: &org.ID})
	if err != nil {
		t.Fatalf("UpdateUser: %v", err)
	}
	if updated.OrganizationID != org.ID {
		t.Fatalf("expected organization %q, got %q", org.ID, updated.OrganizationID)
	}
}

func TestLoginFailureIsGeneric(t *testing.T) {
	svc := newTestService(t, newMemStore())
	_, err := svc.Login(context.Background(), "nobody@example.com", "whatever-pass")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestUpdateRoleAppliesToNextResolution(t *testing.T) {
	store := newMemStore()
	role := store.addRole(RoleOperator, PermissionMap{})
	user := store.addUser(User{Email: "op@example.com", RoleID: role.ID, Active: true})
	svc := newTestService(t, store)
	ctx := context.Background()

	id, err := svc.resolver.ResolveSubject(ctx, user.ID)
	if err != nil {
		t.Fatalf("ResolveSubject: %v", err)
	}
	if CanAccess(id, ResourceEmployees, OpRead) {
		t.Fatalf("operator starts without employees access")
	}
	if _, err := svc.RBAC().UpdateRole(ctx, role.ID, UpdateRoleInput{
		Permissions: PermissionMap{ResourceEmployees: NewOperationSet(OpRead)},
	}); err != nil {
		t.Fatalf("UpdateRole: %v", err)
	}
	id, err = svc.resolver.ResolveSubject(ctx, user.ID)
	if err != nil {
		t.Fatalf("ResolveSubject: %v", err)
	}
	if !CanAccess(id, ResourceEmployees, OpRead) {
		t.Fatalf("updated permissions must apply immediately")
	}
}
