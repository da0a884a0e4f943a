package auth

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func identityWithRole(name RoleName, perms PermissionMap) Identity {
	if name == "" {
		return Identity{User: User{ID: "u-1", Active: true}}
	}
	return Identity{
		User: User{ID: "u-1", Active: true, RoleID: "r-1"},
		Role: &Role{ID: "r-1", Name: name, Permissions: perms},
	}
}

func TestEvaluatorRoleRules(t *testing.T) {
	privilegedWrite := Requirement{Roles: PrivilegedRoles, Read: false}
	privilegedRead := Requirement{Roles: PrivilegedRoles, Read: true}
	supervisorWrite := Requirement{Roles: []RoleName{RoleDirection, RoleAdministration, RoleSupervisor}}

	tests := []struct {
		name    string
		role    RoleName
		req     Requirement
		allowed bool
		rule    string
	}{
		{"open operation allows role-less identity", "", Requirement{}, true, RuleOpenOperation},
		{"open operation allows operator", RoleOperator, Requirement{Read: false}, true, RuleOpenOperation},
		{"direction is privileged", RoleDirection, privilegedWrite, true, RulePrivilegedRole},
		{"administration is privileged", RoleAdministration, privilegedWrite, true, RulePrivilegedRole},
		{"admin alias is privileged", RoleAdmin, privilegedWrite, true, RulePrivilegedRole},
		{"admin alias passes operator-only gate", RoleAdmin, Requirement{Roles: []RoleName{RoleOperator}}, true, RulePrivilegedRole},
		{"auditor reads privileged operation", RoleAuditor, privilegedRead, true, RuleAuditorReadElevation},
		{"auditor cannot write privileged operation", RoleAuditor, privilegedWrite, false, RuleDefaultDeny},
		{"auditor elevation needs privileged requirement", RoleAuditor, Requirement{Roles: []RoleName{RoleOperator}, Read: true}, false, RuleDefaultDeny},
		{"supervisor listed explicitly", RoleSupervisor, supervisorWrite, true, RuleExplicitRole},
		{"operator patch on privileged operation", RoleOperator, privilegedWrite, false, RuleDefaultDeny},
		{"role-less identity denied when roles required", "", privilegedRead, false, RuleDefaultDeny},
		{"unknown label denied", RoleName("Direction "), privilegedRead, false, RuleDefaultDeny},
	}

	e := NewEvaluator()
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := e.Decide(identityWithRole(tc.role, nil), tc.req)
			assert.Equal(t, tc.allowed, d.Allowed)
			assert.Equal(t, tc.rule, d.Rule)
		})
	}
}

func TestAuthorizeReturnsForbidden(t *testing.T) {
	e := NewEvaluator()
	err := e.Authorize(identityWithRole(RoleOperator, nil), Requirement{
		Roles: []RoleName{RoleDirection, RoleAdministration},
		Read:  false,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrForbidden))
	assert.False(t, errors.Is(err, ErrUnauthenticated))
}

func TestEvaluatorResourcePermission(t *testing.T) {
	perms := PermissionMap{
		ResourceEmployees: NewOperationSet(OpRead),
		ResourceExpenses:  NewOperationSet(OpManage),
	}
	operator := identityWithRole(RoleOperator, perms)
	gate := []RoleName{RoleDirection, RoleAdministration, RoleSupervisor, RoleOperator}
	e := NewEvaluator()

	d := e.Decide(operator, Requirement{Roles: gate, Read: true, Resource: ResourceEmployees, Operation: OpRead})
	require.True(t, d.Allowed)

	d = e.Decide(operator, Requirement{Roles: gate, Resource: ResourceEmployees, Operation: OpUpdate})
	require.False(t, d.Allowed)
	require.Equal(t, RuleResourcePermission, d.Rule)

	d = e.Decide(operator, Requirement{Roles: gate, Resource: ResourceExpenses, Operation: OpDelete})
	require.True(t, d.Allowed, "manage implies delete")

	d = e.Decide(identityWithRole(RoleDirection, nil), Requirement{Roles: gate, Resource: ResourcePayroll, Operation: OpDelete})
	require.True(t, d.Allowed, "privileged roles bypass the permission map")
}

func TestEvaluatorCustomRulesAndObserver(t *testing.T) {
	var seen []Decision
	e := NewEvaluator(
		WithRules(Rule{Name: "deny-all-but-operator", Allows: func(r RoleName, _ Requirement) bool { return r == RoleOperator }}),
		WithDecisionObserver(func(d Decision) { seen = append(seen, d) }),
	)
	assert.True(t, e.Decide(identityWithRole(RoleOperator, nil), Requirement{Roles: PrivilegedRoles}).Allowed)
	assert.False(t, e.Decide(identityWithRole(RoleDirection, nil), Requirement{}).Allowed)
	require.Len(t, seen, 2)
	assert.Equal(t, "deny-all-but-operator", seen[0].Rule)
	assert.Equal(t, RuleDefaultDeny, seen[1].Rule)
}

func TestCanAccessWithoutRole(t *testing.T) {
	assert.False(t, CanAccess(identityWithRole("", nil), ResourceUsers, OpRead))
}
