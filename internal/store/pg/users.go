package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"worksdesk.io/internal/auth"
	"worksdesk.io/internal/ids"
)

const userColumns = `id, organization_id, role_id, name, email, phone, password_hash, active, created_at, updated_at`

func scanUser(row rowScanner) (auth.User, error) {
	var (
		user                      auth.User
		orgID, roleID, phone, pwd sql.NullString
	)
	if err := row.Scan(&user.ID, &orgID, &roleID, &user.Name, &user.Email, &phone, &pwd,
		&user.Active, &user.CreatedAt, &user.UpdatedAt); err != nil {
		return auth.User{}, err
	}
	user.OrganizationID = orgID.String
	user.RoleID = roleID.String
	user.Phone = phone.String
	user.PasswordHash = pwd.String
	return user, nil
}

func (s *Store) UserByEmail(ctx context.Context, email string) (auth.User, error) {
	if s.db == nil {
		return auth.User{}, errUnavailable
	}
	user, err := scanUser(s.db.QueryRowContext(ctx, `
		select `+userColumns+`
		from users
		where email = $1
	`, strings.ToLower(strings.TrimSpace(email))))
	if err != nil {
		return auth.User{}, classify(err, auth.ErrNotFound, auth.ErrConflict)
	}
	return user, nil
}

func (s *Store) UserByID(ctx context.Context, id string) (auth.User, error) {
	if s.db == nil {
		return auth.User{}, errUnavailable
	}
	user, err := scanUser(s.db.QueryRowContext(ctx, `
		select `+userColumns+`
		from users
		where id = $1
	`, id))
	if err != nil {
		return auth.User{}, classify(err, auth.ErrNotFound, auth.ErrConflict)
	}
	return user, nil
}

func (s *Store) ListUsers(ctx context.Context, filter auth.UserFilter) ([]auth.User, error) {
	if s.db == nil {
		return nil, errUnavailable
	}
	var (
		where []string
		args  []any
	)
	if filter.RoleID != "" {
		args = append(args, filter.RoleID)
		where = append(where, fmt.Sprintf("role_id = $%d", len(args)))
	}
	if filter.Active != nil {
		args = append(args, *filter.Active)
		where = append(where, fmt.Sprintf("active = $%d", len(args)))
	}
	query := `select ` + userColumns + ` from users`
	if len(where) > 0 {
		query += ` where ` + strings.Join(where, " and ")
	}
	args = append(args, filter.Limit, filter.Offset)
	query += fmt.Sprintf(` order by email limit $%d offset $%d`, len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []auth.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) CreateUser(ctx context.Context, nu auth.NewUser) (auth.User, error) {
	if s.db == nil {
		return auth.User{}, errUnavailable
	}
	user, err := scanUser(s.db.QueryRowContext(ctx, `
		insert into users (id, organization_id, role_id, name, email, phone, password_hash, active)
		values ($1, $2, $3, $4, $5, $6, $7, true)
		returning `+userColumns,
		ids.New(), nullIfEmpty(nu.OrganizationID), nullIfEmpty(nu.RoleID), nu.Name,
		strings.ToLower(strings.TrimSpace(nu.Email)), nullIfEmpty(nu.Phone), nullIfEmpty(nu.PasswordHash)))
	if err != nil {
		return auth.User{}, classify(err, auth.ErrNotFound, auth.ErrConflict)
	}
	return user, nil
}

func (s *Store) UpdateUser(ctx context.Context, id string, upd auth.UserUpdate) (auth.User, error) {
	if s.db == nil {
		return auth.User{}, errUnavailable
	}
	var (
		setClauses []string
		args       []any
	)
	set := func(column string, value any) {
		args = append(args, value)
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if upd.Name != nil {
		set("name", *upd.Name)
	}
	if upd.Phone != nil {
		set("phone", nullIfEmpty(*upd.Phone))
	}
	if upd.RoleID != nil {
		set("role_id", nullIfEmpty(*upd.RoleID))
	}
	if upd.OrganizationID != nil {
		set("organization_id", nullIfEmpty(*upd.OrganizationID))
	}
	if upd.PasswordHash != nil {
		set("password_hash", nullIfEmpty(*upd.PasswordHash))
	}
	if upd.Active != nil {
		set("active", *upd.Active)
	}
	if len(setClauses) == 0 {
		return s.UserByID(ctx, id)
	}
	setClauses = append(setClauses, "updated_at = now()")
	args = append(args, id)
	query := fmt.Sprintf(`update users set %s where id = $%d returning %s`,
		strings.Join(setClauses, ", "), len(args), userColumns)
	user, err := scanUser(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return auth.User{}, classify(err, auth.ErrNotFound, auth.ErrConflict)
	}
	return user, nil
}

func (s *Store) HasActiveUserWithRoles(ctx context.Context, roles []auth.RoleName) (bool, error) {
	if s.db == nil {
		return false, errUnavailable
	}
	if len(roles) == 0 {
		return false, errors.New("at least one role is required")
	}
	placeholders := make([]string, len(roles))
	args := make([]any, len(roles))
	for i, r := range roles {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = string(r)
	}
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		select exists (
			select 1
			from users u
			join roles r on r.id = u.role_id
			where u.active and r.name in (`+strings.Join(placeholders, ", ")+`)
		)
	`, args...).Scan(&exists)
	return exists, err
}

func (s *Store) OrganizationByID(ctx context.Context, id string) (auth.Organization, error) {
	if s.db == nil {
		return auth.Organization{}, errUnavailable
	}
	var org auth.Organization
	err := s.db.QueryRowContext(ctx, `
		select id, name, created_at, updated_at
		from organizations
		where id = $1
	`, id).Scan(&org.ID, &org.Name, &org.CreatedAt, &org.UpdatedAt)
	if err != nil {
		return auth.Organization{}, classify(err, auth.ErrNotFound, auth.ErrConflict)
	}
	return org, nil
}
