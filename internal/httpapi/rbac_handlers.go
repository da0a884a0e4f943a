package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"worksdesk.io/internal/auth"
)

type createUserRequest struct {
	Name           string `json:"name"`
	Email          string `json:"email"`
	Password       string `json:"password"`
	RoleID         string `json:"role_id"`
	Phone          string `json:"phone,omitempty"`
	OrganizationID string `json:"organization_id,omitempty"`
}

type updateUserRequest struct {
	Name           *string `json:"name,omitempty"`
	Phone          *string `json:"phone,omitempty"`
	RoleID         *string `json:"role_id,omitempty"`
	OrganizationID *string `json:"organization_id,omitempty"`
	Password       *string `json:"password,omitempty"`
	Active         *bool   `json:"active,omitempty"`
}

type createRoleRequest struct {
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	Permissions auth.PermissionMap `json:"permissions,omitempty"`
}

type updateRoleRequest struct {
	Description *string            `json:"description,omitempty"`
	Permissions auth.PermissionMap `json:"permissions,omitempty"`
}

func (a *API) handleListUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := auth.UserFilter{RoleID: strings.TrimSpace(q.Get("role_id"))}
	if raw := q.Get("active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "active must be a boolean")
			return
		}
		filter.Active = &active
	}
	var ok bool
	if filter.Limit, filter.Offset, ok = pagination(w, r); !ok {
		return
	}
	users, err := a.auth.RBAC().ListUsers(r.Context(), filter)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (a *API) handleGetUser(w http.ResponseWriter, r *http.Request) {
	view, err := a.auth.RBAC().GetUser(r.Context(), r.PathValue("id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (a *API) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	orgID := strings.TrimSpace(req.OrganizationID)
	if orgID == "" {
		orgID = ownerOrganization(r)
	}
	view, err := a.auth.RBAC().CreateUser(r.Context(), auth.CreateUserInput{
		Name:           req.Name,
		Email:          req.Email,
		Password:       req.Password,
		RoleID:         req.RoleID,
		Phone:          req.Phone,
		OrganizationID: orgID,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.record(r.Context(), "users", "create", view.ID, map[string]string{
		"email":   view.Email,
		"role_id": view.RoleID,
	})
	w.Header().Set("Location", "/v1/users/"+view.ID)
	writeJSON(w, http.StatusCreated, view)
}

func (a *API) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var req updateUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	view, err := a.auth.RBAC().UpdateUser(r.Context(), r.PathValue("id"), auth.UpdateUserInput{
		Name:           req.Name,
		Phone:          req.Phone,
		RoleID:         req.RoleID,
		OrganizationID: req.OrganizationID,
		Password:       req.Password,
		Active:         req.Active,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	meta := map[string]string{}
	if req.RoleID != nil {
		meta["role_id"] = *req.RoleID
	}
	if req.Active != nil {
		meta["active"] = strconv.FormatBool(*req.Active)
	}
	if req.Password != nil {
		meta["password"] = "changed"
	}
	a.record(r.Context(), "users", "update", view.ID, meta)
	writeJSON(w, http.StatusOK, view)
}

func (a *API) handleDeactivateUser(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := a.auth.RBAC().DeactivateUser(r.Context(), id); err != nil {
		a.fail(w, r, err)
		return
	}
	a.record(r.Context(), "users", "deactivate", id, nil)
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := a.auth.RBAC().ListRoles(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"roles": roles})
}

func (a *API) handleGetRole(w http.ResponseWriter, r *http.Request) {
	role, err := a.auth.RBAC().GetRole(r.Context(), r.PathValue("id"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, role)
}

func (a *API) handleCreateRole(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	role, err := a.auth.RBAC().CreateRole(r.Context(), auth.CreateRoleInput{
		Name:        req.Name,
		Description: req.Description,
		Permissions: req.Permissions,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.record(r.Context(), "roles", "create", role.ID, map[string]string{
		"name":        string(role.Name),
		"permissions": role.Permissions.String(),
	})
	w.Header().Set("Location", "/v1/roles/"+role.ID)
	writeJSON(w, http.StatusCreated, role)
}

func (a *API) handleUpdateRole(w http.ResponseWriter, r *http.Request) {
	var req updateRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	role, err := a.auth.RBAC().UpdateRole(r.Context(), r.PathValue("id"), auth.UpdateRoleInput{
		Description: req.Description,
		Permissions: req.Permissions,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.record(r.Context(), "roles", "update", role.ID, map[string]string{
		"permissions": role.Permissions.String(),
	})
	writeJSON(w, http.StatusOK, role)
}

func (a *API) handleDeleteRole(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := a.auth.RBAC().DeleteRole(r.Context(), id); err != nil {
		a.fail(w, r, err)
		return
	}
	a.record(r.Context(), "roles", "delete", id, nil)
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleListAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := auth.AuditFilter{
		ActorID: strings.TrimSpace(q.Get("actor_id")),
		Module:  strings.TrimSpace(q.Get("module")),
	}
	if raw := q.Get("before"); raw != "" {
		before, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "before must be an RFC 3339 timestamp")
			return
		}
		filter.Before = before
	}
	var ok bool
	if filter.Limit, _, ok = pagination(w, r); !ok {
		return
	}
	entries, err := a.audit.List(r.Context(), filter)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// pagination reads limit and offset. It writes a 400 and reports false on bad input.
func pagination(w http.ResponseWriter, r *http.Request) (limit, offset int, ok bool) {
	q := r.URL.Query()
	for _, p := range []struct {
		name string
		dst  *int
	}{{"limit", &limit}, {"offset", &offset}} {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			writeError(w, r, http.StatusBadRequest, p.name+" must be a non-negative integer")
			return 0, 0, false
		}
		*p.dst = v
	}
	return limit, offset, true
}
