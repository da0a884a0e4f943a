package auth

import (
	"fmt"
	"slices"
)

// Requirement is what a protected operation declares about itself.
type Requirement struct {
	// Roles is the required-role-set. Empty means any authenticated caller.
	Roles []RoleName
	// Read marks non-mutating operations.
	Read bool
	// Resource and Operation add the resource-scoped check when Resource is set.
	Resource  Resource
	Operation Operation
}

// Rule grants access when Allows returns true. Rules never deny; denial is the default.
type Rule struct {
	Name   string
	Allows func(role RoleName, req Requirement) bool
}

// Decision names the rule that settled a request.
type Decision struct {
	Allowed bool
	Rule    string
}

const (
	RuleOpenOperation        = "open-operation"
	RulePrivilegedRole       = "privileged-role"
	RuleAuditorReadElevation = "auditor-read-elevation"
	RuleExplicitRole         = "explicit-role"
	RuleResourcePermission   = "resource-permission"
	RuleDefaultDeny          = "default-deny"
)

// DefaultRules returns the ordered policy. First match wins.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name: RuleOpenOperation,
			Allows: func(_ RoleName, req Requirement) bool {
				return len(req.Roles) == 0
			},
		},
		{
			Name: RulePrivilegedRole,
			Allows: func(role RoleName, _ Requirement) bool {
				return IsPrivileged(role)
			},
		},
		{
			Name: RuleAuditorReadElevation,
			Allows: func(role RoleName, req Requirement) bool {
				return role == RoleAuditor && req.Read && requiresPrivileged(req.Roles)
			},
		},
		{
			Name: RuleExplicitRole,
			Allows: func(role RoleName, req Requirement) bool {
				return role != "" && slices.Contains(req.Roles, role)
			},
		},
	}
}

// NormalizeRole expands the admin alias into the privileged built-in roles.
func NormalizeRole(role RoleName) []RoleName {
	if role == RoleAdmin {
		return slices.Clone(PrivilegedRoles)
	}
	if role == "" {
		return nil
	}
	return []RoleName{role}
}

func IsPrivileged(role RoleName) bool {
	for _, r := range NormalizeRole(role) {
		if slices.Contains(PrivilegedRoles, r) {
			return true
		}
	}
	return false
}

func requiresPrivileged(roles []RoleName) bool {
	for _, r := range roles {
		if IsPrivileged(r) {
			return true
		}
	}
	return false
}

// Evaluator applies an ordered rule list to a resolved identity.
type Evaluator struct {
	rules   []Rule
	observe func(Decision)
}

type EvaluatorOption func(*Evaluator)

// WithRules replaces the default policy.
func WithRules(rules ...Rule) EvaluatorOption {
	return func(e *Evaluator) {
		e.rules = slices.Clone(rules)
	}
}

// WithDecisionObserver is called once per decision, e.g. for metrics.
func WithDecisionObserver(fn func(Decision)) EvaluatorOption {
	return func(e *Evaluator) {
		e.observe = fn
	}
}

func NewEvaluator(opts ...EvaluatorOption) *Evaluator {
	e := &Evaluator{rules: DefaultRules()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Decide returns the first matching rule, then applies the resource-scoped check when declared.
func (e *Evaluator) Decide(id Identity, req Requirement) Decision {
	d := e.decide(id, req)
	if e.observe != nil {
		e.observe(d)
	}
	return d
}

func (e *Evaluator) decide(id Identity, req Requirement) Decision {
	role := id.RoleName()
	matched := ""
	for _, rule := range e.rules {
		if rule.Allows(role, req) {
			matched = rule.Name
			break
		}
	}
	if matched == "" {
		return Decision{Allowed: false, Rule: RuleDefaultDeny}
	}
	if req.Resource == "" || IsPrivileged(role) {
		return Decision{Allowed: true, Rule: matched}
	}
	if !CanAccess(id, req.Resource, req.Operation) {
		return Decision{Allowed: false, Rule: RuleResourcePermission}
	}
	return Decision{Allowed: true, Rule: matched}
}

// Authorize returns nil or an error wrapping ErrForbidden.
func (e *Evaluator) Authorize(id Identity, req Requirement) error {
	d := e.Decide(id, req)
	if d.Allowed {
		return nil
	}
	if d.Rule == RuleResourcePermission {
		return fmt.Errorf("%w: role %q may not %s %s", ErrForbidden, id.RoleName(), req.Operation, req.Resource)
	}
	return fmt.Errorf("%w: role %q is not permitted", ErrForbidden, id.RoleName())
}

// CanAccess is the resource-scoped permission check against the live role map.
func CanAccess(id Identity, resource Resource, op Operation) bool {
	if id.Role == nil {
		return false
	}
	return id.Role.Permissions.Allows(resource, op)
}
