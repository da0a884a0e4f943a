package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
)

// CreateUserInput is shared by registration and the users admin endpoint.
type CreateUserInput struct {
	Name           string
	Email          string
	Password       string
	RoleID         string
	Phone          string
	OrganizationID string
}

type UpdateUserInput struct {
	Name           *string
	Phone          *string
	RoleID         *string
	OrganizationID *string
	Password       *string
	Active         *bool
}

type CreateRoleInput struct {
	Name        string
	Description string
	Permissions PermissionMap
}

type UpdateRoleInput struct {
	Description *string
	Permissions PermissionMap
}

// RBACService manages users and roles. Authorization happens before these calls.
type RBACService struct {
	store Store
}

func NewRBACService(store Store) (*RBACService, error) {
	if store == nil {
		return nil, errors.New("rbac store is required")
	}
	return &RBACService{store: store}, nil
}

// CreateUser validates input, rejects a used email with ErrConflict and returns the user
// together with its resolved role.
func (s *RBACService) CreateUser(ctx context.Context, in CreateUserInput) (UserView, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return UserView{}, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	email, err := validEmail(in.Email)
	if err != nil {
		return UserView{}, err
	}
	roleID := strings.TrimSpace(in.RoleID)
	if roleID == "" {
		return UserView{}, fmt.Errorf("%w: role_id is required", ErrInvalidInput)
	}
	role, err := s.store.RoleByID(ctx, roleID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return UserView{}, fmt.Errorf("%w: role %s", ErrNotFound, roleID)
		}
		return UserView{}, err
	}

	switch _, err := s.store.UserByEmail(ctx, email); {
	case err == nil:
		return UserView{}, fmt.Errorf("%w: email already registered", ErrConflict)
	case !errors.Is(err, ErrNotFound):
		return UserView{}, err
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return UserView{}, err
	}
	user, err := s.store.CreateUser(ctx, NewUser{
		OrganizationID: strings.TrimSpace(in.OrganizationID),
		RoleID:         role.ID,
		Name:           name,
		Email:          email,
		Phone:          strings.TrimSpace(in.Phone),
		PasswordHash:   hash,
	})
	if err != nil {
		if errors.Is(err, ErrConflict) {
			return UserView{}, fmt.Errorf("%w: email already registered", ErrConflict)
		}
		return UserView{}, err
	}
	return UserView{User: user.Sanitized(), Role: &role}, nil
}

func (s *RBACService) GetUser(ctx context.Context, id string) (UserView, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return UserView{}, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	user, err := s.store.UserByID(ctx, id)
	if err != nil {
		return UserView{}, err
	}
	return s.view(ctx, user)
}

func (s *RBACService) ListUsers(ctx context.Context, filter UserFilter) ([]User, error) {
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 100
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	users, err := s.store.ListUsers(ctx, filter)
	if err != nil {
		return nil, err
	}
	for i := range users {
		users[i] = users[i].Sanitized()
	}
	return users, nil
}

func (s *RBACService) UpdateUser(ctx context.Context, id string, in UpdateUserInput) (UserView, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return UserView{}, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	var upd UserUpdate
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return UserView{}, fmt.Errorf("%w: name must not be empty", ErrInvalidInput)
		}
		upd.Name = &name
	}
	if in.Phone != nil {
		phone := strings.TrimSpace(*in.Phone)
		upd.Phone = &phone
	}
	if in.RoleID != nil {
		roleID := strings.TrimSpace(*in.RoleID)
		if roleID != "" {
			if _, err := s.store.RoleByID(ctx, roleID); err != nil {
				return UserView{}, err
			}
		}
		upd.RoleID = &roleID
	}
	if in.OrganizationID != nil {
		orgID := strings.TrimSpace(*in.OrganizationID)
		if orgID != "" {
			if _, err := s.store.OrganizationByID(ctx, orgID); err != nil {
				return UserView{}, err
			}
		}
		upd.OrganizationID = &orgID
	}
	if in.Password != nil {
		hash, err := HashPassword(*in.Password)
		if err != nil {
			return UserView{}, err
		}
		upd.PasswordHash = &hash
	}
	upd.Active = in.Active
	user, err := s.store.UpdateUser(ctx, id, upd)
	if err != nil {
		return UserView{}, err
	}
	return s.view(ctx, user)
}

// DeactivateUser is the soft delete used by the users endpoint.
func (s *RBACService) DeactivateUser(ctx context.Context, id string) error {
	inactive := false
	_, err := s.UpdateUser(ctx, id, UpdateUserInput{Active: &inactive})
	return err
}

func (s *RBACService) view(ctx context.Context, user User) (UserView, error) {
	v := UserView{User: user.Sanitized()}
	if user.RoleID == "" {
		return v, nil
	}
	role, err := s.store.RoleByID(ctx, user.RoleID)
	switch {
	case err == nil:
		v.Role = &role
	case !errors.Is(err, ErrNotFound):
		return UserView{}, err
	}
	return v, nil
}

func (s *RBACService) CreateRole(ctx context.Context, in CreateRoleInput) (Role, error) {
	name, err := ParseRoleName(in.Name)
	if err != nil {
		return Role{}, err
	}
	perms := in.Permissions
	if perms == nil {
		perms = PermissionMap{}
	}
	return s.store.CreateRole(ctx, NewRole{
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		Permissions: perms,
	})
}

func (s *RBACService) GetRole(ctx context.Context, id string) (Role, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Role{}, fmt.Errorf("%w: role id is required", ErrInvalidInput)
	}
	return s.store.RoleByID(ctx, id)
}

func (s *RBACService) ListRoles(ctx context.Context) ([]Role, error) {
	return s.store.ListRoles(ctx)
}

// UpdateRole replaces the permission map when one is supplied. Changes apply to the next request
// of every holder because identities are never cached.
func (s *RBACService) UpdateRole(ctx context.Context, id string, in UpdateRoleInput) (Role, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Role{}, fmt.Errorf("%w: role id is required", ErrInvalidInput)
	}
	upd := RoleUpdate{Permissions: in.Permissions}
	if in.Description != nil {
		desc := strings.TrimSpace(*in.Description)
		upd.Description = &desc
	}
	return s.store.UpdateRole(ctx, id, upd)
}

func (s *RBACService) DeleteRole(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: role id is required", ErrInvalidInput)
	}
	return s.store.DeleteRole(ctx, id)
}

func validEmail(raw string) (string, error) {
	email := NormalizeEmail(raw)
	if email == "" {
		return "", fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	return email, nil
}
