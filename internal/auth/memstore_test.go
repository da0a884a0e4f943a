package auth

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"
)

// memStore is an in-memory Store used by the package tests.
type memStore struct {
	mu    sync.Mutex
	seq   int
	users map[string]User
	roles map[string]Role
	orgs  map[string]Organization
	audit []AuditEntry

	failUsers error
}

func newMemStore() *memStore {
	s := &memStore{
		users: map[string]User{},
		roles: map[string]Role{},
		orgs:  map[string]Organization{},
	}
	return s
}

func (s *memStore) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%d", prefix, s.seq)
}

func (s *memStore) addRole(name RoleName, perms PermissionMap) Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := Role{ID: s.nextID("role"), Name: name, Permissions: perms, CreatedAt: time.Now()}
	s.roles[r.ID] = r
	return r
}

func (s *memStore) addOrg(name string) Organization {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := Organization{ID: s.nextID("org"), Name: name}
	s.orgs[o.ID] = o
	return o
}

func (s *memStore) addUser(u User) User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == "" {
		u.ID = s.nextID("user")
	}
	s.users[u.ID] = u
	return u
}

func (s *memStore) UserByEmail(_ context.Context, email string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failUsers != nil {
		return User{}, s.failUsers
	}
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return User{}, ErrNotFound
}

func (s *memStore) UserByID(ctx context.Context, id string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	if s.failUsers != nil {
		return User{}, s.failUsers
	}
	u, ok := s.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (s *memStore) ListUsers(_ context.Context, filter UserFilter) ([]User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []User
	for _, u := range s.users {
		if filter.RoleID != "" && u.RoleID != filter.RoleID {
			continue
		}
		if filter.Active != nil && u.Active != *filter.Active {
			continue
		}
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) CreateUser(_ context.Context, nu NewUser) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == nu.Email {
			return User{}, ErrConflict
		}
	}
	if nu.RoleID != "" {
		if _, ok := s.roles[nu.RoleID]; !ok {
			return User{}, ErrNotFound
		}
	}
	u := User{
		ID:             s.nextID("user"),
		OrganizationID: nu.OrganizationID,
		RoleID:         nu.RoleID,
		Name:           nu.Name,
		Email:          nu.Email,
		Phone:          nu.Phone,
		PasswordHash:   nu.PasswordHash,
		Active:         true,
		CreatedAt:      time.Now(),
	}
	s.users[u.ID] = u
	return u, nil
}

func (s *memStore) UpdateUser(_ context.Context, id string, upd UserUpdate) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return User{}, ErrNotFound
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
	s.users[id] = u
	return u, nil
}

func (s *memStore) HasActiveUserWithRoles(_ context.Context, roles []RoleName) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		r, ok := s.roles[u.RoleID]
		if ok && u.Active && slices.Contains(roles, r.Name) {
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) privilegedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, u := range s.users {
		if r, ok := s.roles[u.RoleID]; ok && IsPrivileged(r.Name) {
			n++
		}
	}
	return n
}

func (s *memStore) RoleByID(_ context.Context, id string) (Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.roles[id]
	if !ok {
		return Role{}, ErrNotFound
	}
	return r, nil
}

func (s *memStore) RoleByName(_ context.Context, name RoleName) (Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.roles {
		if r.Name == name {
			return r, nil
		}
	}
	return Role{}, ErrNotFound
}

func (s *memStore) ListRoles(context.Context) ([]Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Role
	for _, r := range s.roles {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *memStore) CreateRole(_ context.Context, nr NewRole) (Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.roles {
		if r.Name == nr.Name {
			return Role{}, ErrConflict
		}
	}
	r := Role{ID: s.nextID("role"), Name: nr.Name, Description: nr.Description, Permissions: nr.Permissions}
	s.roles[r.ID] = r
	return r, nil
}

func (s *memStore) UpdateRole(_ context.Context, id string, upd RoleUpdate) (Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.roles[id]
	if !ok {
		return Role{}, ErrNotFound
	}
	if upd.Description != nil {
		r.Description = *upd.Description
	}
	if upd.Permissions != nil {
		r.Permissions = upd.Permissions
	}
	s.roles[id] = r
	return r, nil
}

func (s *memStore) DeleteRole(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[id]; !ok {
		return ErrNotFound
	}
	delete(s.roles, id)
	return nil
}

func (s *memStore) OrganizationByID(_ context.Context, id string) (Organization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orgs[id]
	if !ok {
		return Organization{}, ErrNotFound
	}
	return o, nil
}

func (s *memStore) AppendAudit(_ context.Context, e AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit = append(s.audit, e)
	return nil
}

func (s *memStore) ListAudit(context.Context, AuditFilter) ([]AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.audit), nil
}

var errStoreDown = errors.New("store unavailable")

func mustHash(t interface{ Fatalf(string, ...any) }, pw string) string {
	h, err := HashPassword(pw)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return h
}
