package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"worksdesk.io/internal/audit"
	"worksdesk.io/internal/auth"
	"worksdesk.io/internal/config"
	"worksdesk.io/internal/obs"
	"worksdesk.io/internal/ratelimit"
	"worksdesk.io/internal/works"
)

const serviceName = "worksdesk-api"

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReadyProbe checks the database before the instance receives traffic.
type ReadyProbe struct {
	DB Pinger
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.Ping(ctx)
}

// Deps are the collaborators of the HTTP layer.
type Deps struct {
	Config    config.Config
	Auth      *auth.Service
	Bootstrap *auth.Bootstrapper
	Audit     *audit.Recorder
	Works     *works.Service
	Limiter   ratelimit.Limiter
	Ready     ReadyProbe
	Logger    *zap.Logger
}

// API is the HTTP layer.
type API struct {
	mux       *http.ServeMux
	cfg       config.Config
	auth      *auth.Service
	policy    *auth.Evaluator
	bootstrap *auth.Bootstrapper
	audit     *audit.Recorder
	works     *works.Service
	limiter   ratelimit.Limiter
	ready     ReadyProbe
	log       *zap.Logger
	now       func() time.Time

	rateBurst  int
	ratePerSec int
}

func New(d Deps) (*API, error) {
	if d.Auth == nil || d.Works == nil || d.Audit == nil || d.Bootstrap == nil {
		return nil, errors.New("httpapi: auth, works, audit and bootstrap dependencies are required")
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Limiter == nil {
		d.Limiter = ratelimit.NewMemoryLimiter()
	}
	a := &API{
		mux:        http.NewServeMux(),
		cfg:        d.Config,
		auth:       d.Auth,
		bootstrap:  d.Bootstrap,
		audit:      d.Audit,
		works:      d.Works,
		limiter:    d.Limiter,
		ready:      d.Ready,
		log:        d.Logger,
		now:        time.Now,
		rateBurst:  d.Config.RateBurst,
		ratePerSec: d.Config.RatePerSecond,
	}
	a.policy = auth.NewEvaluator(auth.WithDecisionObserver(func(dec auth.Decision) {
		obs.ObserveDecision(dec.Rule, dec.Allowed)
	}))
	a.routes()
	return a, nil
}

// Handler returns the mux wrapped in the middleware chain.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = MaxBodyBytes(h, 1<<20)
	if a.rateBurst > 0 && a.ratePerSec > 0 {
		h = RateLimit(h, a.rateBurst, a.ratePerSec)
	}
	h = CORS(h, a.cfg.CORSOrigins)
	h = SecurityHeaders(h)
	h = Logging(h, a.log)
	h = RequestID(h)
	return obs.Instrument(h)
}

var (
	privileged = auth.PrivilegedRoles
	managers   = []auth.RoleName{auth.RoleDirection, auth.RoleAdministration, auth.RoleSupervisor}
	staff      = []auth.RoleName{auth.RoleDirection, auth.RoleAdministration, auth.RoleSupervisor, auth.RoleOperator}
)

func readBy(roles []auth.RoleName) auth.Requirement {
	return auth.Requirement{Roles: roles, Read: true}
}

func writeBy(roles []auth.RoleName) auth.Requirement {
	return auth.Requirement{Roles: roles}
}

func scoped(req auth.Requirement, res auth.Resource, op auth.Operation) auth.Requirement {
	req.Resource = res
	req.Operation = op
	return req
}

func (a *API) routes() {
	a.mux.HandleFunc("GET /healthz", a.Healthz)
	a.mux.HandleFunc("GET /readyz", a.Ready)
	a.mux.HandleFunc("GET /v1/info", a.Info)
	a.mux.Handle("GET /metrics", obs.Handler())

	a.mux.HandleFunc("POST /v1/auth/login", a.handleLogin)
	a.mux.HandleFunc("POST /v1/auth/logout", a.handleLogout)
	a.mux.HandleFunc("POST /v1/auth/bootstrap", a.handleBootstrap)
	a.protect("GET /v1/auth/me", auth.Requirement{}, a.handleMe)
	a.protect("POST /v1/auth/register", writeBy(privileged), a.handleRegister)

	a.protect("GET /v1/users", readBy(managers), a.handleListUsers)
	a.protect("GET /v1/users/{id}", readBy(managers), a.handleGetUser)
	a.protect("POST /v1/users", writeBy(privileged), a.handleCreateUser)
	a.protect("PATCH /v1/users/{id}", writeBy(privileged), a.handleUpdateUser)
	a.protect("DELETE /v1/users/{id}", writeBy(privileged), a.handleDeactivateUser)

	a.protect("GET /v1/roles", readBy(managers), a.handleListRoles)
	a.protect("GET /v1/roles/{id}", readBy(managers), a.handleGetRole)
	a.protect("POST /v1/roles", writeBy(privileged), a.handleCreateRole)
	a.protect("PATCH /v1/roles/{id}", writeBy(privileged), a.handleUpdateRole)
	a.protect("DELETE /v1/roles/{id}", writeBy(privileged), a.handleDeleteRole)

	a.protect("GET /v1/audit", readBy(privileged), a.handleListAudit)

	a.protect("GET /v1/employees", scoped(readBy(staff), auth.ResourceEmployees, auth.OpRead), a.handleListEmployees)
	a.protect("GET /v1/employees/{id}", scoped(readBy(staff), auth.ResourceEmployees, auth.OpRead), a.handleGetEmployee)
	a.protect("POST /v1/employees", scoped(writeBy(managers), auth.ResourceEmployees, auth.OpCreate), a.handleCreateEmployee)
	a.protect("PATCH /v1/employees/{id}", scoped(writeBy(managers), auth.ResourceEmployees, auth.OpUpdate), a.handleUpdateEmployee)
	a.protect("DELETE /v1/employees/{id}", writeBy(privileged), a.handleDeactivateEmployee)

	a.protect("GET /v1/expenses", scoped(readBy(staff), auth.ResourceExpenses, auth.OpRead), a.handleListExpenses)
	a.protect("GET /v1/expenses/{id}", scoped(readBy(staff), auth.ResourceExpenses, auth.OpRead), a.handleGetExpense)
	a.protect("POST /v1/expenses", scoped(writeBy(staff), auth.ResourceExpenses, auth.OpCreate), a.handleSubmitExpense)
	a.protect("PATCH /v1/expenses/{id}", writeBy(managers), a.handleUpdateExpense)
	a.protect("POST /v1/expenses/{id}/approve", writeBy(managers), a.handleReviewExpense(true))
	a.protect("POST /v1/expenses/{id}/reject", writeBy(managers), a.handleReviewExpense(false))
	a.protect("DELETE /v1/expenses/{id}", writeBy(privileged), a.handleDeleteExpense)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "resource not found")
	})
}

func (a *API) protect(pattern string, req auth.Requirement, h http.HandlerFunc) {
	a.mux.Handle(pattern, a.guard(req, h))
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.cfg.Version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.ready.Check(r.Context()); err != nil {
		a.log.Warn("readiness check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  "database unavailable",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":        serviceName,
		"time":        a.now().UTC().Format(time.RFC3339),
		"version":     a.cfg.Version,
		"commit":      a.cfg.Commit,
		"environment": a.cfg.Environment,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := audit.RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// record writes an audit entry. Failures are logged; the mutation has already happened.
func (a *API) record(ctx context.Context, module, action, resourceID string, meta map[string]string) {
	if err := a.audit.Record(ctx, module, action, resourceID, meta); err != nil {
		a.log.Error("audit record failed",
			zap.String("module", module),
			zap.String("action", action),
			zap.String("resource_id", resourceID),
			zap.Error(err))
	}
}
