package memory

import (
	"context"
	"errors"
	"testing"

	"worksdesk.io/internal/auth"
	"worksdesk.io/internal/works"
)

func TestNewSeededHoldsBuiltinRoles(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()
	for _, name := range auth.BuiltinRoles {
		role, err := s.RoleByName(ctx, name)
		if err != nil {
			t.Fatalf("RoleByName(%s): %v", name, err)
		}
		if role.ID != BuiltinRoleID(name) {
			t.Fatalf("role %s has id %s, want %s", name, role.ID, BuiltinRoleID(name))
		}
	}
	if _, err := s.OrganizationByID(ctx, DefaultOrganizationID); err != nil {
		t.Fatalf("default organization missing: %v", err)
	}
}

func TestCreateUserConstraints(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()
	in := auth.NewUser{Name: "Ana", Email: "Ana@Obra.es", RoleID: BuiltinRoleID(auth.RoleOperator)}
	u, err := s.CreateUser(ctx, in)
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if u.Email != "ana@obra.es" || !u.Active {
		t.Fatalf("unexpected user %+v", u)
	}
	if _, err := s.CreateUser(ctx, in); !errors.Is(err, auth.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if _, err := s.CreateUser(ctx, auth.NewUser{Name: "B", Email: "b@obra.es", RoleID: "missing"}); !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown role, got %v", err)
	}
}

func TestDeleteRoleDetachesHolders(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()
	role, err := s.CreateRole(ctx, auth.NewRole{Name: auth.RoleAdmin})
	if err != nil {
		t.Fatalf("CreateRole: %v", err)
	}
	u, err := s.CreateUser(ctx, auth.NewUser{Name: "Ana", Email: "ana@obra.es", RoleID: role.ID})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if err := s.DeleteRole(ctx, role.ID); err != nil {
		t.Fatalf("DeleteRole: %v", err)
	}
	got, err := s.UserByID(ctx, u.ID)
	if err != nil {
		t.Fatalf("UserByID: %v", err)
	}
	if got.RoleID != "" {
		t.Fatalf("expected role to be detached, got %q", got.RoleID)
	}
}

func TestRoleCopiesAreIsolated(t *testing.T) {
	s := NewSeeded()
	ctx := context.Background()
	role, _ := s.RoleByName(ctx, auth.RoleOperator)
	role.Permissions[auth.ResourcePayroll] = auth.NewOperationSet(auth.OpManage)

	again, _ := s.RoleByName(ctx, auth.RoleOperator)
	if again.Permissions.Allows(auth.ResourcePayroll, auth.OpRead) {
		t.Fatalf("mutating a returned role leaked into the store")
	}
}

func TestReviewExpenseOnlyOnce(t *testing.T) {
	s := New()
	ctx := context.Background()
	if _, err := s.CreateExpense(ctx, works.Expense{ID: "e1", Status: works.ExpensePending, AmountCents: 10}); err != nil {
		t.Fatalf("CreateExpense: %v", err)
	}
	if _, err := s.ReviewExpense(ctx, "e1", works.Review{Status: works.ExpenseApproved}); err != nil {
		t.Fatalf("ReviewExpense: %v", err)
	}
	if _, err := s.ReviewExpense(ctx, "e1", works.Review{Status: works.ExpenseRejected}); !errors.Is(err, works.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestListAuditNewestFirst(t *testing.T) {
	s := New()
	ctx := context.Background()
	for _, id := range []string{"a1", "a2", "a3"} {
		_ = s.AppendAudit(ctx, auth.AuditEntry{ID: id, Module: "users", Action: "create"})
	}
	entries, err := s.ListAudit(ctx, auth.AuditFilter{Limit: 2})
	if err != nil {
		t.Fatalf("ListAudit: %v", err)
	}
	if len(entries) != 2 || entries[0].ID != "a3" || entries[1].ID != "a2" {
		t.Fatalf("unexpected entries %+v", entries)
	}
}
