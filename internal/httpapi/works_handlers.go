package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"worksdesk.io/internal/auth"
	"worksdesk.io/internal/works"
)

const dateLayout = "2006-01-02"

type employeeRequest struct {
	FullName        string `json:"full_name"`
	DocumentID      string `json:"document_id"`
	Position        string `json:"position,omitempty"`
	Phone           string `json:"phone,omitempty"`
	HourlyRateCents int64  `json:"hourly_rate_cents"`
	HiredOn         string `json:"hired_on,omitempty"`
}

type employeePatchRequest struct {
	FullName        *string `json:"full_name,omitempty"`
	Position        *string `json:"position,omitempty"`
	Phone           *string `json:"phone,omitempty"`
	HourlyRateCents *int64  `json:"hourly_rate_cents,omitempty"`
	Active          *bool   `json:"active,omitempty"`
}

type expenseRequest struct {
	EmployeeID  string `json:"employee_id,omitempty"`
	Description string `json:"description"`
	Category    string `json:"category,omitempty"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency,omitempty"`
	IncurredOn  string `json:"incurred_on,omitempty"`
}

type expensePatchRequest struct {
	EmployeeID  *string `json:"employee_id,omitempty"`
	Description *string `json:"description,omitempty"`
	Category    *string `json:"category,omitempty"`
	AmountCents *int64  `json:"amount_cents,omitempty"`
	IncurredOn  *string `json:"incurred_on,omitempty"`
}

type reviewRequest struct {
	Note string `json:"note,omitempty"`
}

var errNoOrganization = fmt.Errorf("%w: caller belongs to no organization", auth.ErrForbidden)

func parseDate(field, raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s must be YYYY-MM-DD", works.ErrInvalidInput, field)
	}
	return t, nil
}

// orgScope is the organization the caller works in. Only a privileged caller without an
// organization sees every organization.
func orgScope(r *http.Request) (orgID string, global bool) {
	id := identity(r)
	orgID = id.OrganizationID()
	return orgID, orgID == "" && auth.IsPrivileged(id.RoleName())
}

// visible hides records owned by another organization. Records without an organization are
// visible to global callers only.
func visible(r *http.Request, recordOrg string) bool {
	own, global := orgScope(r)
	if global {
		return true
	}
	return own != "" && own == recordOrg
}

// ownerOrganization is the organization new records are filed under.
func ownerOrganization(r *http.Request) string {
	if own := identity(r).OrganizationID(); own != "" {
		return own
	}
	return auth.DefaultOrganizationID
}

// listFilter reports false when a 400 was written.
func (a *API) listFilter(w http.ResponseWriter, r *http.Request) (works.ListFilter, bool) {
	limit, offset, ok := pagination(w, r)
	if !ok {
		return works.ListFilter{}, false
	}
	own, _ := orgScope(r)
	return works.ListFilter{
		OrganizationID: own,
		Status:         strings.TrimSpace(r.URL.Query().Get("status")),
		Limit:          limit,
		Offset:         offset,
	}, true
}

// unscoped reports a caller outside any organization who is not allowed to see them all.
func unscoped(r *http.Request) bool {
	own, global := orgScope(r)
	return own == "" && !global
}

func (a *API) handleListEmployees(w http.ResponseWriter, r *http.Request) {
	if unscoped(r) {
		writeJSON(w, http.StatusOK, map[string]any{"employees": []works.Employee{}})
		return
	}
	filter, ok := a.listFilter(w, r)
	if !ok {
		return
	}
	employees, err := a.works.ListEmployees(r.Context(), filter)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"employees": employees})
}

func (a *API) handleGetEmployee(w http.ResponseWriter, r *http.Request) {
	e, ok := a.ownedEmployee(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (a *API) handleCreateEmployee(w http.ResponseWriter, r *http.Request) {
	var req employeeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	hired, err := parseDate("hired_on", req.HiredOn)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if unscoped(r) {
		a.fail(w, r, errNoOrganization)
		return
	}
	e, err := a.works.CreateEmployee(r.Context(), works.EmployeeInput{
		OrganizationID:  ownerOrganization(r),
		FullName:        req.FullName,
		DocumentID:      req.DocumentID,
		Position:        req.Position,
		Phone:           req.Phone,
		HourlyRateCents: req.HourlyRateCents,
		HiredOn:         hired,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.record(r.Context(), "employees", "create", e.ID, map[string]string{"document_id": e.DocumentID})
	w.Header().Set("Location", "/v1/employees/"+e.ID)
	writeJSON(w, http.StatusCreated, e)
}

func (a *API) handleUpdateEmployee(w http.ResponseWriter, r *http.Request) {
	var req employeePatchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if _, ok := a.ownedEmployee(w, r); !ok {
		return
	}
	e, err := a.works.UpdateEmployee(r.Context(), r.PathValue("id"), works.EmployeePatch{
		FullName:        req.FullName,
		Position:        req.Position,
		Phone:           req.Phone,
		HourlyRateCents: req.HourlyRateCents,
		Active:          req.Active,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	meta := map[string]string{}
	if req.HourlyRateCents != nil {
		meta["hourly_rate_cents"] = strconv.FormatInt(*req.HourlyRateCents, 10)
	}
	if req.Active != nil {
		meta["active"] = strconv.FormatBool(*req.Active)
	}
	a.record(r.Context(), "employees", "update", e.ID, meta)
	writeJSON(w, http.StatusOK, e)
}

func (a *API) handleDeactivateEmployee(w http.ResponseWriter, r *http.Request) {
	e, ok := a.ownedEmployee(w, r)
	if !ok {
		return
	}
	if err := a.works.DeactivateEmployee(r.Context(), e.ID); err != nil {
		a.fail(w, r, err)
		return
	}
	a.record(r.Context(), "employees", "deactivate", e.ID, nil)
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) ownedEmployee(w http.ResponseWriter, r *http.Request) (works.Employee, bool) {
	e, err := a.visibleEmployee(r, r.PathValue("id"))
	if err != nil {
		a.fail(w, r, err)
		return works.Employee{}, false
	}
	return e, true
}

// visibleEmployee loads an employee the caller may see. Other organizations' employees are not found.
func (a *API) visibleEmployee(r *http.Request, id string) (works.Employee, error) {
	e, err := a.works.GetEmployee(r.Context(), id)
	if err != nil {
		return works.Employee{}, err
	}
	if !visible(r, e.OrganizationID) {
		return works.Employee{}, fmt.Errorf("%w: employee %s", works.ErrNotFound, id)
	}
	return e, nil
}

func (a *API) ownedExpense(w http.ResponseWriter, r *http.Request) (works.Expense, bool) {
	e, err := a.works.GetExpense(r.Context(), r.PathValue("id"))
	if err == nil && !visible(r, e.OrganizationID) {
		err = works.ErrNotFound
	}
	if err != nil {
		a.fail(w, r, err)
		return works.Expense{}, false
	}
	return e, true
}

func (a *API) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	if unscoped(r) {
		writeJSON(w, http.StatusOK, map[string]any{"expenses": []works.Expense{}})
		return
	}
	filter, ok := a.listFilter(w, r)
	if !ok {
		return
	}
	expenses, err := a.works.ListExpenses(r.Context(), filter)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"expenses": expenses})
}

func (a *API) handleGetExpense(w http.ResponseWriter, r *http.Request) {
	e, ok := a.ownedExpense(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (a *API) handleSubmitExpense(w http.ResponseWriter, r *http.Request) {
	var req expenseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	incurred, err := parseDate("incurred_on", req.IncurredOn)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if unscoped(r) {
		a.fail(w, r, errNoOrganization)
		return
	}
	if req.EmployeeID != "" {
		if _, err := a.visibleEmployee(r, req.EmployeeID); err != nil {
			a.fail(w, r, err)
			return
		}
	}
	caller := identity(r)
	e, err := a.works.SubmitExpense(r.Context(), caller.User.ID, works.ExpenseInput{
		OrganizationID: ownerOrganization(r),
		EmployeeID:     req.EmployeeID,
		Description:    req.Description,
		Category:       req.Category,
		AmountCents:    req.AmountCents,
		Currency:       req.Currency,
		IncurredOn:     incurred,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.record(r.Context(), "expenses", "submit", e.ID, map[string]string{
		"amount_cents": strconv.FormatInt(e.AmountCents, 10),
		"currency":     e.Currency,
	})
	w.Header().Set("Location", "/v1/expenses/"+e.ID)
	writeJSON(w, http.StatusCreated, e)
}

func (a *API) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	var req expensePatchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	patch := works.ExpensePatch{
		EmployeeID:  req.EmployeeID,
		Description: req.Description,
		Category:    req.Category,
		AmountCents: req.AmountCents,
	}
	if req.IncurredOn != nil {
		if strings.TrimSpace(*req.IncurredOn) == "" {
			a.fail(w, r, fmt.Errorf("%w: incurred_on must not be empty", works.ErrInvalidInput))
			return
		}
		incurred, err := parseDate("incurred_on", *req.IncurredOn)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		patch.IncurredOn = &incurred
	}
	current, ok := a.ownedExpense(w, r)
	if !ok {
		return
	}
	if req.EmployeeID != nil && strings.TrimSpace(*req.EmployeeID) != "" {
		if _, err := a.visibleEmployee(r, *req.EmployeeID); err != nil {
			a.fail(w, r, err)
			return
		}
	}
	e, err := a.works.UpdateExpense(r.Context(), current.ID, patch)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.record(r.Context(), "expenses", "update", e.ID, nil)
	writeJSON(w, http.StatusOK, e)
}

func (a *API) handleReviewExpense(approve bool) http.HandlerFunc {
	action := "reject"
	if approve {
		action = "approve"
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req reviewRequest
		if r.ContentLength != 0 {
			if err := decodeJSON(w, r, &req); err != nil {
				writeError(w, r, http.StatusBadRequest, err.Error())
				return
			}
		}
		current, ok := a.ownedExpense(w, r)
		if !ok {
			return
		}
		e, err := a.works.ReviewExpense(r.Context(), current.ID, identity(r).User.ID, approve, req.Note)
		if err != nil {
			a.fail(w, r, err)
			return
		}
		a.record(r.Context(), "expenses", action, e.ID, map[string]string{"status": string(e.Status)})
		writeJSON(w, http.StatusOK, e)
	}
}

func (a *API) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	current, ok := a.ownedExpense(w, r)
	if !ok {
		return
	}
	if err := a.works.DeleteExpense(r.Context(), current.ID); err != nil {
		a.fail(w, r, err)
		return
	}
	a.record(r.Context(), "expenses", "delete", current.ID, nil)
	w.WriteHeader(http.StatusNoContent)
}
