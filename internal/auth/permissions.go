package auth

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Resource names the back-office areas a role permission can target.
type Resource string

const (
	ResourceUsers     Resource = "users"
	ResourceRoles     Resource = "roles"
	ResourceRubrics   Resource = "rubrics"
	ResourceSchedules Resource = "schedules"
	ResourceVal       Resource = "val"
	ResourceExpenses  Resource = "expenses"
	ResourceEmployees Resource = "employees"
	ResourcePayroll   Resource = "payroll"
	ResourceAudit     Resource = "audit"
)

// Resources lists every valid resource in a stable order.
var Resources = []Resource{
	ResourceUsers,
	ResourceRoles,
	ResourceRubrics,
	ResourceSchedules,
	ResourceVal,
	ResourceExpenses,
	ResourceEmployees,
	ResourcePayroll,
	ResourceAudit,
}

type Operation string

const (
	OpCreate Operation = "create"
	OpRead   Operation = "read"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
	// OpManage grants every other operation on the resource.
	OpManage Operation = "manage"
)

var Operations = []Operation{OpCreate, OpRead, OpUpdate, OpDelete, OpManage}

func ParseResource(raw string) (Resource, error) {
	r := Resource(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range Resources {
		if r == known {
			return r, nil
		}
	}
	return "", fmt.Errorf("%w: unknown resource %q", ErrInvalidInput, raw)
}

func ParseOperation(raw string) (Operation, error) {
	op := Operation(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range Operations {
		if op == known {
			return op, nil
		}
	}
	return "", fmt.Errorf("%w: unknown operation %q", ErrInvalidInput, raw)
}

func (o Operation) bit() OperationSet {
	for i, known := range Operations {
		if o == known {
			return 1 << i
		}
	}
	return 0
}

// OperationSet is a bit set over Operations.
type OperationSet uint8

func NewOperationSet(ops ...Operation) OperationSet {
	var s OperationSet
	for _, op := range ops {
		s |= op.bit()
	}
	return s
}

// Has reports whether op is granted. manage implies everything.
func (s OperationSet) Has(op Operation) bool {
	if s&OpManage.bit() != 0 {
		return true
	}
	b := op.bit()
	return b != 0 && s&b != 0
}

func (s OperationSet) Operations() []Operation {
	var out []Operation
	for _, op := range Operations {
		if s&op.bit() != 0 {
			out = append(out, op)
		}
	}
	return out
}

// PermissionMap maps a resource to its allowed operations. It is one level deep by construction.
type PermissionMap map[Resource]OperationSet

// FullAccess grants manage on every resource.
func FullAccess() PermissionMap {
	pm := make(PermissionMap, len(Resources))
	for _, r := range Resources {
		pm[r] = NewOperationSet(OpManage)
	}
	return pm
}

// Allows is the resource-scoped permission check.
func (pm PermissionMap) Allows(resource Resource, op Operation) bool {
	if pm == nil {
		return false
	}
	return pm[resource].Has(op)
}

// ParsePermissionMap validates untrusted input. Unknown resources or operations are rejected.
func ParsePermissionMap(raw map[string][]string) (PermissionMap, error) {
	pm := make(PermissionMap, len(raw))
	for key, ops := range raw {
		res, err := ParseResource(key)
		if err != nil {
			return nil, err
		}
		if _, dup := pm[res]; dup {
			return nil, fmt.Errorf("%w: duplicate resource %q", ErrInvalidInput, key)
		}
		var set OperationSet
		for _, rawOp := range ops {
			op, err := ParseOperation(rawOp)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", res, err)
			}
			set |= op.bit()
		}
		if set == 0 {
			continue
		}
		pm[res] = set
	}
	return pm, nil
}

// Raw converts the map back to its wire form with sorted keys and operations in canonical order.
func (pm PermissionMap) Raw() map[string][]string {
	out := make(map[string][]string, len(pm))
	for res, set := range pm {
		ops := set.Operations()
		if len(ops) == 0 {
			continue
		}
		names := make([]string, len(ops))
		for i, op := range ops {
			names[i] = string(op)
		}
		out[string(res)] = names
	}
	return out
}

func (pm PermissionMap) MarshalJSON() ([]byte, error) {
	return json.Marshal(pm.Raw())
}

// UnmarshalJSON validates on decode. A JSON null leaves the map nil so updates treat it as absent.
func (pm *PermissionMap) UnmarshalJSON(data []byte) error {
	if string(bytes.TrimSpace(data)) == "null" {
		*pm = nil
		return nil
	}
	var raw map[string][]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: permissions must map resource names to operation lists", ErrInvalidInput)
	}
	parsed, err := ParsePermissionMap(raw)
	if err != nil {
		return err
	}
	*pm = parsed
	return nil
}

// String is used in logs.
func (pm PermissionMap) String() string {
	keys := make([]string, 0, len(pm))
	for res := range pm {
		keys = append(keys, string(res))
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		ops := pm[Resource(k)].Operations()
		names := make([]string, len(ops))
		for i, op := range ops {
			names[i] = string(op)
		}
		parts = append(parts, k+"="+strings.Join(names, "|"))
	}
	return strings.Join(parts, ",")
}

// BuiltinPermissions returns the permission maps seeded for the built-in roles.
func BuiltinPermissions() map[RoleName]PermissionMap {
	read := NewOperationSet(OpRead)
	edit := NewOperationSet(OpCreate, OpRead, OpUpdate)
	auditor := make(PermissionMap, len(Resources))
	for _, r := range Resources {
		auditor[r] = read
	}
	return map[RoleName]PermissionMap{
		RoleDirection:      FullAccess(),
		RoleAdministration: FullAccess(),
		RoleSupervisor: {
			ResourceUsers:     read,
			ResourceRoles:     read,
			ResourceRubrics:   read,
			ResourceSchedules: NewOperationSet(OpManage),
			ResourceVal:       edit,
			ResourceExpenses:  edit,
			ResourceEmployees: edit,
			ResourcePayroll:   read,
		},
		RoleOperator: {
			ResourceRubrics:   read,
			ResourceSchedules: read,
			ResourceVal:       NewOperationSet(OpCreate, OpRead),
			ResourceExpenses:  NewOperationSet(OpCreate, OpRead),
			ResourceEmployees: read,
		},
		RoleAuditor: auditor,
	}
}
