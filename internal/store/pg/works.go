package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"worksdesk.io/internal/works"
)

const employeeColumns = `id, organization_id, full_name, document_id, position, phone, hourly_rate_cents, hired_on, active, created_at, updated_at`

const expenseColumns = `id, organization_id, employee_id, description, category, amount_cents, currency, incurred_on, status, submitted_by, reviewed_by, review_note, created_at, updated_at`

func scanEmployee(row rowScanner) (works.Employee, error) {
	var (
		e                      works.Employee
		orgID, position, phone sql.NullString
	)
	if err := row.Scan(&e.ID, &orgID, &e.FullName, &e.DocumentID, &position, &phone,
		&e.HourlyRateCents, &e.HiredOn, &e.Active, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return works.Employee{}, err
	}
	e.OrganizationID = orgID.String
	e.Position = position.String
	e.Phone = phone.String
	return e, nil
}

func scanExpense(row rowScanner) (works.Expense, error) {
	var (
		e          works.Expense
		status     string
		orgID      sql.NullString
		employeeID sql.NullString
		submitted  sql.NullString
		reviewed   sql.NullString
		note       sql.NullString
	)
	if err := row.Scan(&e.ID, &orgID, &employeeID, &e.Description, &e.Category, &e.AmountCents,
		&e.Currency, &e.IncurredOn, &status, &submitted, &reviewed, &note, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return works.Expense{}, err
	}
	e.OrganizationID = orgID.String
	e.EmployeeID = employeeID.String
	e.Status = works.ExpenseStatus(status)
	e.SubmittedBy = submitted.String
	e.ReviewedBy = reviewed.String
	e.ReviewNote = note.String
	return e, nil
}

func (s *Store) CreateEmployee(ctx context.Context, e works.Employee) (works.Employee, error) {
	if s.db == nil {
		return works.Employee{}, errUnavailable
	}
	created, err := scanEmployee(s.db.QueryRowContext(ctx, `
		insert into employees (id, organization_id, full_name, document_id, position, phone, hourly_rate_cents, hired_on, active)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		returning `+employeeColumns,
		e.ID, nullIfEmpty(e.OrganizationID), e.FullName, e.DocumentID, nullIfEmpty(e.Position),
		nullIfEmpty(e.Phone), e.HourlyRateCents, e.HiredOn, e.Active))
	if err != nil {
		return works.Employee{}, classify(err, works.ErrNotFound, works.ErrConflict)
	}
	return created, nil
}

func (s *Store) GetEmployee(ctx context.Context, id string) (works.Employee, error) {
	if s.db == nil {
		return works.Employee{}, errUnavailable
	}
	e, err := scanEmployee(s.db.QueryRowContext(ctx, `
		select `+employeeColumns+`
		from employees
		where id = $1
	`, id))
	if err != nil {
		return works.Employee{}, classify(err, works.ErrNotFound, works.ErrConflict)
	}
	return e, nil
}

func (s *Store) ListEmployees(ctx context.Context, filter works.ListFilter) ([]works.Employee, error) {
	if s.db == nil {
		return nil, errUnavailable
	}
	query := `select ` + employeeColumns + ` from employees`
	var args []any
	if filter.OrganizationID != "" {
		args = append(args, filter.OrganizationID)
		query += ` where organization_id = $1`
	}
	args = append(args, filter.Limit, filter.Offset)
	query += fmt.Sprintf(` order by full_name limit $%d offset $%d`, len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []works.Employee
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) UpdateEmployee(ctx context.Context, id string, p works.EmployeePatch) (works.Employee, error) {
	if s.db == nil {
		return works.Employee{}, errUnavailable
	}
	var (
		setClauses []string
		args       []any
	)
	set := func(column string, value any) {
		args = append(args, value)
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if p.FullName != nil {
		set("full_name", *p.FullName)
	}
	if p.Position != nil {
		set("position", nullIfEmpty(*p.Position))
	}
	if p.Phone != nil {
		set("phone", nullIfEmpty(*p.Phone))
	}
	if p.HourlyRateCents != nil {
		set("hourly_rate_cents", *p.HourlyRateCents)
	}
	if p.Active != nil {
		set("active", *p.Active)
	}
	if len(setClauses) == 0 {
		return s.GetEmployee(ctx, id)
	}
	setClauses = append(setClauses, "updated_at = now()")
	args = append(args, id)
	query := fmt.Sprintf(`update employees set %s where id = $%d returning %s`,
		strings.Join(setClauses, ", "), len(args), employeeColumns)
	e, err := scanEmployee(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		return works.Employee{}, classify(err, works.ErrNotFound, works.ErrConflict)
	}
	return e, nil
}

func (s *Store) CreateExpense(ctx context.Context, e works.Expense) (works.Expense, error) {
	if s.db == nil {
		return works.Expense{}, errUnavailable
	}
	created, err := scanExpense(s.db.QueryRowContext(ctx, `
		insert into expenses (id, organization_id, employee_id, description, category, amount_cents, currency, incurred_on, status, submitted_by)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		returning `+expenseColumns,
		e.ID, nullIfEmpty(e.OrganizationID), nullIfEmpty(e.EmployeeID), e.Description, e.Category,
		e.AmountCents, e.Currency, e.IncurredOn, string(e.Status), nullIfEmpty(e.SubmittedBy)))
	if err != nil {
		return works.Expense{}, classify(err, works.ErrNotFound, works.ErrConflict)
	}
	return created, nil
}

func (s *Store) GetExpense(ctx context.Context, id string) (works.Expense, error) {
	if s.db == nil {
		return works.Expense{}, errUnavailable
	}
	e, err := scanExpense(s.db.QueryRowContext(ctx, `
		select `+expenseColumns+`
		from expenses
		where id = $1
	`, id))
	if err != nil {
		return works.Expense{}, classify(err, works.ErrNotFound, works.ErrConflict)
	}
	return e, nil
}

func (s *Store) ListExpenses(ctx context.Context, filter works.ListFilter) ([]works.Expense, error) {
	if s.db == nil {
		return nil, errUnavailable
	}
	var (
		where []string
		args  []any
	)
	if filter.OrganizationID != "" {
		args = append(args, filter.OrganizationID)
		where = append(where, fmt.Sprintf("organization_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	query := `select ` + expenseColumns + ` from expenses`
	if len(where) > 0 {
		query += ` where ` + strings.Join(where, " and ")
	}
	args = append(args, filter.Limit, filter.Offset)
	query += fmt.Sprintf(` order by incurred_on desc, id limit $%d offset $%d`, len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []works.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateExpense only touches pending rows.
func (s *Store) UpdateExpense(ctx context.Context, id string, p works.ExpensePatch) (works.Expense, error) {
	if s.db == nil {
		return works.Expense{}, errUnavailable
	}
	var (
		setClauses []string
		args       []any
	)
	set := func(column string, value any) {
		args = append(args, value)
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if p.Description != nil {
		set("description", *p.Description)
	}
	if p.Category != nil {
		set("category", *p.Category)
	}
	if p.AmountCents != nil {
		set("amount_cents", *p.AmountCents)
	}
	if p.IncurredOn != nil {
		set("incurred_on", *p.IncurredOn)
	}
	if p.EmployeeID != nil {
		set("employee_id", nullIfEmpty(*p.EmployeeID))
	}
	if len(setClauses) == 0 {
		return s.GetExpense(ctx, id)
	}
	setClauses = append(setClauses, "updated_at = now()")
	args = append(args, id)
	query := fmt.Sprintf(`update expenses set %s where id = $%d and status = 'pending' returning %s`,
		strings.Join(setClauses, ", "), len(args), expenseColumns)
	e, err := scanExpense(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return works.Expense{}, s.notPending(ctx, id)
	}
	if err != nil {
		return works.Expense{}, classify(err, works.ErrNotFound, works.ErrConflict)
	}
	return e, nil
}

func (s *Store) ReviewExpense(ctx context.Context, id string, r works.Review) (works.Expense, error) {
	if s.db == nil {
		return works.Expense{}, errUnavailable
	}
	e, err := scanExpense(s.db.QueryRowContext(ctx, `
		update expenses
		set status = $2, reviewed_by = $3, review_note = $4, updated_at = now()
		where id = $1 and status = 'pending'
		returning `+expenseColumns,
		id, string(r.Status), nullIfEmpty(r.ReviewedBy), nullIfEmpty(r.Note)))
	if errors.Is(err, sql.ErrNoRows) {
		return works.Expense{}, s.notPending(ctx, id)
	}
	if err != nil {
		return works.Expense{}, classify(err, works.ErrNotFound, works.ErrConflict)
	}
	return e, nil
}

func (s *Store) DeleteExpense(ctx context.Context, id string) error {
	if s.db == nil {
		return errUnavailable
	}
	res, err := s.db.ExecContext(ctx, `delete from expenses where id = $1`, id)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return works.ErrNotFound
	}
	return nil
}

// notPending tells a missing expense apart from one that already left the pending state.
func (s *Store) notPending(ctx context.Context, id string) error {
	var status string
	err := s.db.QueryRowContext(ctx, `select status from expenses where id = $1`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return works.ErrNotFound
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: expense is already %s", works.ErrConflict, status)
}
