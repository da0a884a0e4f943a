package works

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"worksdesk.io/internal/ids"
)

// EmployeeInput is the create payload for employees.
type EmployeeInput struct {
	OrganizationID  string
	FullName        string
	DocumentID      string
	Position        string
	Phone           string
	HourlyRateCents int64
	HiredOn         time.Time
}

type ExpenseInput struct {
	OrganizationID string
	EmployeeID     string
	Description    string
	Category       string
	AmountCents    int64
	Currency       string
	IncurredOn     time.Time
}

// Service validates works requests before they reach the store.
type Service struct {
	store Store
	now   func() time.Time
}

func NewService(store Store) (*Service, error) {
	if store == nil {
		return nil, errors.New("works store is required")
	}
	return &Service{store: store, now: time.Now}, nil
}

func (s *Service) CreateEmployee(ctx context.Context, in EmployeeInput) (Employee, error) {
	name := strings.TrimSpace(in.FullName)
	if name == "" {
		return Employee{}, fmt.Errorf("%w: full_name is required", ErrInvalidInput)
	}
	doc := strings.ToUpper(strings.TrimSpace(in.DocumentID))
	if doc == "" {
		return Employee{}, fmt.Errorf("%w: document_id is required", ErrInvalidInput)
	}
	if in.HourlyRateCents < 0 {
		return Employee{}, fmt.Errorf("%w: hourly_rate_cents must not be negative", ErrInvalidInput)
	}
	hired := in.HiredOn
	if hired.IsZero() {
		hired = s.now().UTC()
	}
	return s.store.CreateEmployee(ctx, Employee{
		ID:              ids.New(),
		OrganizationID:  strings.TrimSpace(in.OrganizationID),
		FullName:        name,
		DocumentID:      doc,
		Position:        strings.TrimSpace(in.Position),
		Phone:           strings.TrimSpace(in.Phone),
		HourlyRateCents: in.HourlyRateCents,
		HiredOn:         hired.Truncate(24 * time.Hour),
		Active:          true,
	})
}

func (s *Service) GetEmployee(ctx context.Context, id string) (Employee, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Employee{}, fmt.Errorf("%w: employee id is required", ErrInvalidInput)
	}
	return s.store.GetEmployee(ctx, id)
}

func (s *Service) ListEmployees(ctx context.Context, filter ListFilter) ([]Employee, error) {
	return s.store.ListEmployees(ctx, clamp(filter))
}

func (s *Service) UpdateEmployee(ctx context.Context, id string, patch EmployeePatch) (Employee, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Employee{}, fmt.Errorf("%w: employee id is required", ErrInvalidInput)
	}
	if patch.FullName != nil {
		name := strings.TrimSpace(*patch.FullName)
		if name == "" {
			return Employee{}, fmt.Errorf("%w: full_name must not be empty", ErrInvalidInput)
		}
		patch.FullName = &name
	}
	if patch.HourlyRateCents != nil && *patch.HourlyRateCents < 0 {
		return Employee{}, fmt.Errorf("%w: hourly_rate_cents must not be negative", ErrInvalidInput)
	}
	return s.store.UpdateEmployee(ctx, id, patch)
}

// DeactivateEmployee keeps payroll and expense history intact.
func (s *Service) DeactivateEmployee(ctx context.Context, id string) error {
	inactive := false
	_, err := s.UpdateEmployee(ctx, id, EmployeePatch{Active: &inactive})
	return err
}

func (s *Service) SubmitExpense(ctx context.Context, submittedBy string, in ExpenseInput) (Expense, error) {
	desc := strings.TrimSpace(in.Description)
	if desc == "" {
		return Expense{}, fmt.Errorf("%w: description is required", ErrInvalidInput)
	}
	if in.AmountCents <= 0 {
		return Expense{}, fmt.Errorf("%w: amount_cents must be positive", ErrInvalidInput)
	}
	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = "EUR"
	}
	if len(currency) != 3 {
		return Expense{}, fmt.Errorf("%w: currency must be an ISO 4217 code", ErrInvalidInput)
	}
	category := strings.ToLower(strings.TrimSpace(in.Category))
	if category == "" {
		category = "general"
	}
	incurred := in.IncurredOn
	if incurred.IsZero() {
		incurred = s.now().UTC()
	}
	if employeeID := strings.TrimSpace(in.EmployeeID); employeeID != "" {
		if _, err := s.store.GetEmployee(ctx, employeeID); err != nil {
			return Expense{}, err
		}
	}
	return s.store.CreateExpense(ctx, Expense{
		ID:             ids.New(),
		OrganizationID: strings.TrimSpace(in.OrganizationID),
		EmployeeID:     strings.TrimSpace(in.EmployeeID),
		Description:    desc,
		Category:       category,
		AmountCents:    in.AmountCents,
		Currency:       currency,
		IncurredOn:     incurred.Truncate(24 * time.Hour),
		Status:         ExpensePending,
		SubmittedBy:    submittedBy,
	})
}

func (s *Service) GetExpense(ctx context.Context, id string) (Expense, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Expense{}, fmt.Errorf("%w: expense id is required", ErrInvalidInput)
	}
	return s.store.GetExpense(ctx, id)
}

func (s *Service) ListExpenses(ctx context.Context, filter ListFilter) ([]Expense, error) {
	if filter.Status != "" {
		switch ExpenseStatus(filter.Status) {
		case ExpensePending, ExpenseApproved, ExpenseRejected:
		default:
			return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, filter.Status)
		}
	}
	return s.store.ListExpenses(ctx, clamp(filter))
}

// UpdateExpense edits a pending expense.
func (s *Service) UpdateExpense(ctx context.Context, id string, patch ExpensePatch) (Expense, error) {
	current, err := s.GetExpense(ctx, id)
	if err != nil {
		return Expense{}, err
	}
	if current.Status != ExpensePending {
		return Expense{}, fmt.Errorf("%w: expense is already %s", ErrConflict, current.Status)
	}
	if patch.Description != nil {
		desc := strings.TrimSpace(*patch.Description)
		if desc == "" {
			return Expense{}, fmt.Errorf("%w: description must not be empty", ErrInvalidInput)
		}
		patch.Description = &desc
	}
	if patch.AmountCents != nil && *patch.AmountCents <= 0 {
		return Expense{}, fmt.Errorf("%w: amount_cents must be positive", ErrInvalidInput)
	}
	return s.store.UpdateExpense(ctx, current.ID, patch)
}

// ReviewExpense approves or rejects a pending expense.
func (s *Service) ReviewExpense(ctx context.Context, id, reviewer string, approve bool, note string) (Expense, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Expense{}, fmt.Errorf("%w: expense id is required", ErrInvalidInput)
	}
	status := ExpenseRejected
	if approve {
		status = ExpenseApproved
	}
	return s.store.ReviewExpense(ctx, id, Review{
		Status:     status,
		ReviewedBy: reviewer,
		Note:       strings.TrimSpace(note),
	})
}

func (s *Service) DeleteExpense(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("%w: expense id is required", ErrInvalidInput)
	}
	return s.store.DeleteExpense(ctx, id)
}

func clamp(f ListFilter) ListFilter {
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 100
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}
