// Package memory keeps the back-office state in process. It backs development runs without
// a database and the HTTP tests.
package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"worksdesk.io/internal/auth"
	"worksdesk.io/internal/ids"
	"worksdesk.io/internal/works"
)

// DefaultOrganizationID matches the organization created by the SQL seeds.
const DefaultOrganizationID = auth.DefaultOrganizationID

var builtinRoleIDs = map[auth.RoleName]string{
	auth.RoleDirection:      "01J000000000000000000000D1",
	auth.RoleAdministration: "01J000000000000000000000A1",
	auth.RoleSupervisor:     "01J000000000000000000000S1",
	auth.RoleOperator:       "01J000000000000000000000P1",
	auth.RoleAuditor:        "01J000000000000000000000V1",
}

// BuiltinRoleID returns the seeded id of a built-in role.
func BuiltinRoleID(name auth.RoleName) string { return builtinRoleIDs[name] }

// Store implements auth.Store and works.Store with in-process concurrency safety.
type Store struct {
	mu        sync.RWMutex
	now       func() time.Time
	orgs      map[string]auth.Organization
	roles     map[string]auth.Role
	users     map[string]auth.User
	audit     []auth.AuditEntry
	employees map[string]works.Employee
	expenses  map[string]works.Expense
}

var (
	_ auth.Store  = (*Store)(nil)
	_ works.Store = (*Store)(nil)
)

// New returns an empty store.
func New() *Store {
	return &Store{
		now:       func() time.Time { return time.Now().UTC() },
		orgs:      make(map[string]auth.Organization),
		roles:     make(map[string]auth.Role),
		users:     make(map[string]auth.User),
		employees: make(map[string]works.Employee),
		expenses:  make(map[string]works.Expense),
	}
}

// NewSeeded returns a store holding the default organization and the built-in roles.
func NewSeeded() *Store {
	s := New()
	now := s.now()
	s.orgs[DefaultOrganizationID] = auth.Organization{
		ID:        DefaultOrganizationID,
		Name:      "Default organization",
		CreatedAt: now,
		UpdatedAt: now,
	}
	for name, perms := range auth.BuiltinPermissions() {
		id := builtinRoleIDs[name]
		s.roles[id] = auth.Role{ID: id, Name: name, Permissions: perms, CreatedAt: now, UpdatedAt: now}
	}
	return s
}

func (s *Store) UserByEmail(_ context.Context, email string) (auth.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return auth.User{}, auth.ErrNotFound
}

func (s *Store) UserByID(ctx context.Context, id string) (auth.User, error) {
	if err := ctx.Err(); err != nil {
		return auth.User{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return auth.User{}, auth.ErrNotFound
	}
	return u, nil
}

func (s *Store) ListUsers(_ context.Context, filter auth.UserFilter) ([]auth.User, error) {
	s.mu.RLock()
	var out []auth.User
	for _, u := range s.users {
		if filter.RoleID != "" && u.RoleID != filter.RoleID {
			continue
		}
		if filter.Active != nil && u.Active != *filter.Active {
			continue
		}
		out = append(out, u)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return page(out, filter.Limit, filter.Offset), nil
}

func (s *Store) CreateUser(_ context.Context, nu auth.NewUser) (auth.User, error) {
	email := strings.ToLower(strings.TrimSpace(nu.Email))
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			return auth.User{}, auth.ErrConflict
		}
	}
	if nu.RoleID != "" {
		if _, ok := s.roles[nu.RoleID]; !ok {
			return auth.User{}, auth.ErrNotFound
		}
	}
	if nu.OrganizationID != "" {
		if _, ok := s.orgs[nu.OrganizationID]; !ok {
			return auth.User{}, auth.ErrNotFound
		}
	}
	now := s.now()
	u := auth.User{
		ID:             ids.New(),
		OrganizationID: nu.OrganizationID,
		RoleID:         nu.RoleID,
		Name:           nu.Name,
		Email:          email,
		Phone:          nu.Phone,
		PasswordHash:   nu.PasswordHash,
		Active:         true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.users[u.ID] = u
	return u, nil
}

func (s *Store) UpdateUser(_ context.Context, id string, upd auth.UserUpdate) (auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return auth.User{}, auth.ErrNotFound
	}
	if upd.RoleID != nil && *upd.RoleID != "" {
		if _, ok := s.roles[*upd.RoleID]; !ok {
			return auth.User{}, auth.ErrNotFound
		}
	}
	if upd.Name != nil {
		u.Name = *upd.Name
	}
	if upd.Phone != nil {
		u.Phone = *upd.Phone
	}
	if upd.RoleID != nil {
		u.RoleID = *upd.RoleID
	}
	if upd.OrganizationID != nil {
		u.OrganizationID = *upd.OrganizationID
	}
	if upd.PasswordHash != nil {
		u.PasswordHash = *upd.PasswordHash
	}
	if upd.Active != nil {
		u.Active = *upd.Active
	}
	u.UpdatedAt = s.now()
	s.users[id] = u
	return u, nil
}

func (s *Store) HasActiveUserWithRoles(_ context.Context, roles []auth.RoleName) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		r, ok := s.roles[u.RoleID]
		if ok && u.Active && slices.Contains(roles, r.Name) {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) RoleByID(_ context.Context, id string) (auth.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.roles[id]
	if !ok {
		return auth.Role{}, auth.ErrNotFound
	}
	return cloneRole(r), nil
}

func (s *Store) RoleByName(_ context.Context, name auth.RoleName) (auth.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.roles {
		if r.Name == name {
			return cloneRole(r), nil
		}
	}
	return auth.Role{}, auth.ErrNotFound
}

func (s *Store) ListRoles(context.Context) ([]auth.Role, error) {
	s.mu.RLock()
	out := make([]auth.Role, 0, len(s.roles))
	for _, r := range s.roles {
		out = append(out, cloneRole(r))
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) CreateRole(_ context.Context, nr auth.NewRole) (auth.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.roles {
		if r.Name == nr.Name {
			return auth.Role{}, auth.ErrConflict
		}
	}
	now := s.now()
	r := auth.Role{
		ID:          ids.New(),
		Name:        nr.Name,
		Description: nr.Description,
		Permissions: maps.Clone(nr.Permissions),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.roles[r.ID] = r
	return cloneRole(r), nil
}

func (s *Store) UpdateRole(_ context.Context, id string, upd auth.RoleUpdate) (auth.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.roles[id]
	if !ok {
		return auth.Role{}, auth.ErrNotFound
	}
	if upd.Description != nil {
		r.Description = *upd.Description
	}
	if upd.Permissions != nil {
		r.Permissions = maps.Clone(upd.Permissions)
	}
	r.UpdatedAt = s.now()
	s.roles[id] = r
	return cloneRole(r), nil
}

// DeleteRole mirrors the "on delete set null" foreign key of the SQL schema.
func (s *Store) DeleteRole(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[id]; !ok {
		return auth.ErrNotFound
	}
	delete(s.roles, id)
	for uid, u := range s.users {
		if u.RoleID == id {
			u.RoleID = ""
			s.users[uid] = u
		}
	}
	return nil
}

func (s *Store) OrganizationByID(_ context.Context, id string) (auth.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orgs[id]
	if !ok {
		return auth.Organization{}, auth.ErrNotFound
	}
	return o, nil
}

// AddOrganization stores o, replacing any organization with the same id.
func (s *Store) AddOrganization(o auth.Organization) {
	now := s.now()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = now
	s.mu.Lock()
	s.orgs[o.ID] = o
	s.mu.Unlock()
}

func (s *Store) AppendAudit(_ context.Context, e auth.AuditEntry) error {
	e.Metadata = maps.Clone(e.Metadata)
	s.mu.Lock()
	s.audit = append(s.audit, e)
	s.mu.Unlock()
	return nil
}

// ListAudit returns entries newest first.
func (s *Store) ListAudit(_ context.Context, filter auth.AuditFilter) ([]auth.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []auth.AuditEntry
	for i := len(s.audit) - 1; i >= 0; i-- {
		e := s.audit[i]
		if filter.ActorID != "" && e.ActorID != filter.ActorID {
			continue
		}
		if filter.Module != "" && e.Module != filter.Module {
			continue
		}
		if !filter.Before.IsZero() && !e.OccurredAt.Before(filter.Before) {
			continue
		}
		out = append(out, e)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

func (s *Store) CreateEmployee(_ context.Context, e works.Employee) (works.Employee, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.employees {
		if existing.DocumentID == e.DocumentID {
			return works.Employee{}, fmt.Errorf("%w: document %s already registered", works.ErrConflict, e.DocumentID)
		}
	}
	now := s.now()
	e.CreatedAt, e.UpdatedAt = now, now
	s.employees[e.ID] = e
	return e, nil
}

func (s *Store) GetEmployee(_ context.Context, id string) (works.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.employees[id]
	if !ok {
		return works.Employee{}, works.ErrNotFound
	}
	return e, nil
}

func (s *Store) ListEmployees(_ context.Context, filter works.ListFilter) ([]works.Employee, error) {
	s.mu.RLock()
	var out []works.Employee
	for _, e := range s.employees {
		if filter.OrganizationID != "" && e.OrganizationID != filter.OrganizationID {
			continue
		}
		out = append(out, e)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].FullName < out[j].FullName })
	return page(out, filter.Limit, filter.Offset), nil
}

func (s *Store) UpdateEmployee(_ context.Context, id string, p works.EmployeePatch) (works.Employee, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.employees[id]
	if !ok {
		return works.Employee{}, works.ErrNotFound
	}
	if p.FullName != nil {
		e.FullName = *p.FullName
	}
	if p.Position != nil {
		e.Position = *p.Position
	}
	if p.Phone != nil {
		e.Phone = *p.Phone
	}
	if p.HourlyRateCents != nil {
		e.HourlyRateCents = *p.HourlyRateCents
	}
	if p.Active != nil {
		e.Active = *p.Active
	}
	e.UpdatedAt = s.now()
	s.employees[id] = e
	return e, nil
}

func (s *Store) CreateExpense(_ context.Context, e works.Expense) (works.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.EmployeeID != "" {
		if _, ok := s.employees[e.EmployeeID]; !ok {
			return works.Expense{}, works.ErrNotFound
		}
	}
	now := s.now()
	e.CreatedAt, e.UpdatedAt = now, now
	s.expenses[e.ID] = e
	return e, nil
}

func (s *Store) GetExpense(_ context.Context, id string) (works.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.expenses[id]
	if !ok {
		return works.Expense{}, works.ErrNotFound
	}
	return e, nil
}

func (s *Store) ListExpenses(_ context.Context, filter works.ListFilter) ([]works.Expense, error) {
	s.mu.RLock()
	var out []works.Expense
	for _, e := range s.expenses {
		if filter.OrganizationID != "" && e.OrganizationID != filter.OrganizationID {
			continue
		}
		if filter.Status != "" && string(e.Status) != filter.Status {
			continue
		}
		out = append(out, e)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].IncurredOn.Equal(out[j].IncurredOn) {
			return out[i].IncurredOn.After(out[j].IncurredOn)
		}
		return out[i].ID < out[j].ID
	})
	return page(out, filter.Limit, filter.Offset), nil
}

func (s *Store) UpdateExpense(_ context.Context, id string, p works.ExpensePatch) (works.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.expenses[id]
	if !ok {
		return works.Expense{}, works.ErrNotFound
	}
	if e.Status != works.ExpensePending {
		return works.Expense{}, fmt.Errorf("%w: expense is already %s", works.ErrConflict, e.Status)
	}
	if p.EmployeeID != nil && *p.EmployeeID != "" {
		if _, ok := s.employees[*p.EmployeeID]; !ok {
			return works.Expense{}, works.ErrNotFound
		}
	}
	if p.Description != nil {
		e.Description = *p.Description
	}
	if p.Category != nil {
		e.Category = *p.Category
	}
	if p.AmountCents != nil {
		e.AmountCents = *p.AmountCents
	}
	if p.IncurredOn != nil {
		e.IncurredOn = *p.IncurredOn
	}
	if p.EmployeeID != nil {
		e.EmployeeID = *p.EmployeeID
	}
	e.UpdatedAt = s.now()
	s.expenses[id] = e
	return e, nil
}

func (s *Store) ReviewExpense(_ context.Context, id string, r works.Review) (works.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.expenses[id]
	if !ok {
		return works.Expense{}, works.ErrNotFound
	}
	if e.Status != works.ExpensePending {
		return works.Expense{}, fmt.Errorf("%w: expense is already %s", works.ErrConflict, e.Status)
	}
	e.Status = r.Status
	e.ReviewedBy = r.ReviewedBy
	e.ReviewNote = r.Note
	e.UpdatedAt = s.now()
	s.expenses[id] = e
	return e, nil
}

func (s *Store) DeleteExpense(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.expenses[id]; !ok {
		return works.ErrNotFound
	}
	delete(s.expenses, id)
	return nil
}

func cloneRole(r auth.Role) auth.Role {
	r.Permissions = maps.Clone(r.Permissions)
	return r
}

func page[T any](items []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
