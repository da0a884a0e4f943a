package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"worksdesk.io/internal/auth"
	"worksdesk.io/internal/ids"
)

const roleColumns = `id, name, description, permissions, created_at, updated_at`

func scanRole(row rowScanner) (auth.Role, error) {
	var (
		role  auth.Role
		name  string
		desc  sql.NullString
		perms []byte
	)
	if err := row.Scan(&role.ID, &name, &desc, &perms, &role.CreatedAt, &role.UpdatedAt); err != nil {
		return auth.Role{}, err
	}
	role.Name = auth.RoleName(name)
	role.Description = desc.String
	role.Permissions = auth.PermissionMap{}
	if len(perms) > 0 {
		if err := json.Unmarshal(perms, &role.Permissions); err != nil {
			return auth.Role{}, fmt.Errorf("decode permissions for role %s: %w", role.ID, err)
		}
	}
	return role, nil
}

func encodePermissions(pm auth.PermissionMap) ([]byte, error) {
	if pm == nil {
		pm = auth.PermissionMap{}
	}
	bytes, err := json.Marshal(pm)
	if err != nil {
		return nil, fmt.Errorf("marshal permissions: %w", err)
	}
	return bytes, nil
}

func (s *Store) RoleByID(ctx context.Context, id string) (auth.Role, error) {
	if s.db == nil {
		return auth.Role{}, errUnavailable
	}
	role, err := scanRole(s.db.QueryRowContext(ctx, `
		select `+roleColumns+`
		from roles
		where id = $1
	`, id))
	if err != nil {
		return auth.Role{}, classify(err, auth.ErrNotFound, auth.ErrConflict)
	}
	return role, nil
}

func (s *Store) RoleByName(ctx context.Context, name auth.RoleName) (auth.Role, error) {
	if s.db == nil {
		return auth.Role{}, errUnavailable
	}
	role, err := scanRole(s.db.QueryRowContext(ctx, `
		select `+roleColumns+`
		from roles
		where name = $1
	`, string(name)))
	if err != nil {
		return auth.Role{}, classify(err, auth.ErrNotFound, auth.ErrConflict)
	}
	return role, nil
}

func (s *Store) ListRoles(ctx context.Context) ([]auth.Role, error) {
	if s.db == nil {
		return nil, errUnavailable
	}
	rows, err := s.db.QueryContext(ctx, `select `+roleColumns+` from roles order by name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []auth.Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return roles, nil
}

func (s *Store) CreateRole(ctx context.Context, nr auth.NewRole) (auth.Role, error) {
	if s.db == nil {
		return auth.Role{}, errUnavailable
	}
	perms, err := encodePermissions(nr.Permissions)
	if err != nil {
		return auth.Role{}, err
	}
	role, err := scanRole(s.db.QueryRowContext(ctx, `
		insert into roles (id, name, description, permissions)
		values ($1, $2, $3, $4)
		returning `+roleColumns,
		ids.New(), string(nr.Name), nullIfEmpty(nr.Description), perms))
	if err != nil {
		return auth.Role{}, classify(err, auth.ErrNotFound, auth.ErrConflict)
	}
	return role, nil
}

func (s *Store) UpdateRole(ctx context.Context, id string, upd auth.RoleUpdate) (auth.Role, error) {
	if s.db == nil {
		return auth.Role{}, errUnavailable
	}
	var (
		setClauses []string
		args       []any
	)
	if upd.Description != nil {
		args = append(args, nullIfEmpty(*upd.Description))
		setClauses = append(setClauses, fmt.Sprintf("description = $%d", len(args)))
	}
	if upd.Permissions != nil {
		perms, err := encodePermissions(upd.Permissions)
		if err != nil {
			return auth.Role{}, err
		}
		args = append(args, perms)
		setClauses = append(setClauses, fmt.Sprintf("permissions = $%d", len(args)))
	}
	if len(setClauses) == 0 {
		return s.RoleByID(ctx, id)
	}
	setClauses = append(setClauses, "updated_at = now()")
	args = append(args, id)
	query := fmt.Sprintf(`update roles set %s where id = $%d returning %s`,
		strings.Join(setClauses, ", "), len(args), roleColumns)
	role, err := scanRole(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return auth.Role{}, classify(err, auth.ErrNotFound, auth.ErrConflict)
	}
	return role, nil
}

// DeleteRole removes the role. Holders keep their account with no role.
func (s *Store) DeleteRole(ctx context.Context, id string) error {
	if s.db == nil {
		return errUnavailable
	}
	res, err := s.db.ExecContext(ctx, `delete from roles where id = $1`, id)
	if err != nil {
		return classify(err, auth.ErrNotFound, auth.ErrConflict)
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return auth.ErrNotFound
	}
	return nil
}
