package works

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound     = errors.New("works: not found")
	ErrInvalidInput = errors.New("works: invalid input")
	ErrConflict     = errors.New("works: conflict")
)

type Employee struct {
	ID              string    `json:"id"`
	OrganizationID  string    `json:"organization_id,omitempty"`
	FullName        string    `json:"full_name"`
	DocumentID      string    `json:"document_id"`
	Position        string    `json:"position,omitempty"`
	Phone           string    `json:"phone,omitempty"`
	HourlyRateCents int64     `json:"hourly_rate_cents"`
	HiredOn         time.Time `json:"hired_on"`
	Active          bool      `json:"active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

type ExpenseStatus string

const (
	ExpensePending  ExpenseStatus = "pending"
	ExpenseApproved ExpenseStatus = "approved"
	ExpenseRejected ExpenseStatus = "rejected"
)

type Expense struct {
	ID             string        `json:"id"`
	OrganizationID string        `json:"organization_id,omitempty"`
	EmployeeID     string        `json:"employee_id,omitempty"`
	Description    string        `json:"description"`
	Category       string        `json:"category"`
	AmountCents    int64         `json:"amount_cents"`
	Currency       string        `json:"currency"`
	IncurredOn     time.Time     `json:"incurred_on"`
	Status         ExpenseStatus `json:"status"`
	SubmittedBy    string        `json:"submitted_by,omitempty"`
	ReviewedBy     string        `json:"reviewed_by,omitempty"`
	ReviewNote     string        `json:"review_note,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

type EmployeePatch struct {
	FullName        *string
	Position        *string
	Phone           *string
	HourlyRateCents *int64
	Active          *bool
}

type ExpensePatch struct {
	Description *string
	Category    *string
	AmountCents *int64
	IncurredOn  *time.Time
	EmployeeID  *string
}

type Review struct {
	Status     ExpenseStatus
	ReviewedBy string
	Note       string
}

type ListFilter struct {
	OrganizationID string
	Status         string
	Limit          int
	Offset         int
}

// Store persists employees and expenses. Missing rows yield ErrNotFound.
type Store interface {
	CreateEmployee(ctx context.Context, e Employee) (Employee, error)
	GetEmployee(ctx context.Context, id string) (Employee, error)
	ListEmployees(ctx context.Context, filter ListFilter) ([]Employee, error)
	UpdateEmployee(ctx context.Context, id string, patch EmployeePatch) (Employee, error)

	CreateExpense(ctx context.Context, e Expense) (Expense, error)
	GetExpense(ctx context.Context, id string) (Expense, error)
	ListExpenses(ctx context.Context, filter ListFilter) ([]Expense, error)
	UpdateExpense(ctx context.Context, id string, patch ExpensePatch) (Expense, error)
	// ReviewExpense moves a pending expense to a final status. Non-pending rows yield ErrConflict.
	ReviewExpense(ctx context.Context, id string, review Review) (Expense, error)
	DeleteExpense(ctx context.Context, id string) error
}
