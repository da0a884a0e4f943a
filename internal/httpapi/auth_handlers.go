package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"worksdesk.io/internal/auth"
	"worksdesk.io/internal/obs"
	"worksdesk.io/internal/ratelimit"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	RoleID   string `json:"role_id"`
	Phone    string `json:"phone,omitempty"`
}

type meResponse struct {
	User         auth.UserSummary   `json:"user"`
	Role         *auth.Role         `json:"role,omitempty"`
	Organization *auth.Organization `json:"organization,omitempty"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	key := ratelimit.LoginKey(clientIP(r), auth.NormalizeEmail(req.Email))
	if a.cfg.LoginAttempts > 0 {
		decision, err := a.limiter.Allow(r.Context(), key, a.cfg.LoginAttempts, a.cfg.LoginWindow)
		switch {
		case err != nil:
			a.log.Warn("login throttle unavailable", zap.Error(err))
		case !decision.Allowed:
			obs.ObserveLogin("throttled")
			retry := decision.RetryAfter(a.now())
			w.Header().Set("Retry-After", strconv.Itoa(int(retry.Seconds())))
			writeError(w, r, http.StatusTooManyRequests, "too many login attempts")
			return
		}
	}

	result, err := a.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			obs.ObserveLogin("invalid")
		} else {
			obs.ObserveLogin("error")
		}
		a.fail(w, r, err)
		return
	}
	if err := a.limiter.Reset(r.Context(), key); err != nil {
		a.log.Warn("login throttle reset failed", zap.Error(err))
	}
	obs.ObserveLogin("success")

	ctx := auth.ContextWithIdentity(r.Context(), auth.Identity{User: auth.User{ID: result.User.ID}})
	a.record(ctx, "auth", "login", result.User.ID, nil)

	http.SetCookie(w, a.sessionCookie(result.AccessToken, int(cookieTTL.Seconds())))
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, a.sessionCookie("", -1))
	w.WriteHeader(http.StatusNoContent)
}

// handleBootstrap always reports success. Outcomes are only visible in the logs.
func (a *API) handleBootstrap(w http.ResponseWriter, r *http.Request) {
	created, err := a.bootstrap.EnsureAdmin(r.Context())
	if err != nil {
		a.log.Error("admin bootstrap failed", zap.Error(err))
	} else if created {
		a.record(r.Context(), "auth", "bootstrap", "", nil)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	writeJSON(w, http.StatusOK, meResponse{
		User:         id.Summary(),
		Role:         id.Role,
		Organization: id.Organization,
	})
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	view, err := a.auth.Register(r.Context(), auth.CreateUserInput{
		Name:           req.Name,
		Email:          req.Email,
		Password:       req.Password,
		RoleID:         req.RoleID,
		Phone:          req.Phone,
		OrganizationID: ownerOrganization(r),
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.record(r.Context(), "users", "register", view.ID, map[string]string{
		"email":   view.Email,
		"role_id": view.RoleID,
	})
	w.Header().Set("Location", "/v1/users/"+view.ID)
	writeJSON(w, http.StatusCreated, view)
}
