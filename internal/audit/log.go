package audit

import (
	"context"
	"errors"
	"maps"
	"strings"
	"time"

	"go.uber.org/zap"

	"worksdesk.io/internal/auth"
	"worksdesk.io/internal/ids"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit entries.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext returns the request id set by WithRequestID.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// Recorder appends audit entries to the store and mirrors them to the log.
type Recorder struct {
	store auth.AuditStore
	log   *zap.Logger
	now   func() time.Time
}

func NewRecorder(store auth.AuditStore, log *zap.Logger) *Recorder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Recorder{store: store, log: log, now: time.Now}
}

// Record writes who did what in which module. The actor comes from the resolved identity.
func (r *Recorder) Record(ctx context.Context, module, action, resourceID string, metadata map[string]string) error {
	module = strings.TrimSpace(module)
	action = strings.TrimSpace(action)
	if module == "" || action == "" {
		return errors.New("audit: module and action are required")
	}
	entry := auth.AuditEntry{
		ID:         ids.New(),
		ActorID:    auth.ActorID(ctx),
		Module:     module,
		Action:     action,
		ResourceID: resourceID,
		Metadata:   maps.Clone(metadata),
		RequestID:  RequestIDFromContext(ctx),
		OccurredAt: r.now().UTC(),
	}

	r.log.Info("audit",
		zap.String("type", "audit"),
		zap.String("audit_id", entry.ID),
		zap.String("actor_id", entry.ActorID),
		zap.String("module", entry.Module),
		zap.String("action", entry.Action),
		zap.String("resource_id", entry.ResourceID),
		zap.String("request_id", entry.RequestID),
		zap.Any("fields", entry.Metadata),
	)
	if r.store == nil {
		return nil
	}
	if err := r.store.AppendAudit(ctx, entry); err != nil {
		r.log.Error("audit append failed", zap.String("audit_id", entry.ID), zap.Error(err))
		return err
	}
	return nil
}

// List returns recent entries, newest first.
func (r *Recorder) List(ctx context.Context, filter auth.AuditFilter) ([]auth.AuditEntry, error) {
	if r.store == nil {
		return nil, nil
	}
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 100
	}
	filter.ActorID = strings.TrimSpace(filter.ActorID)
	filter.Module = strings.TrimSpace(filter.Module)
	return r.store.ListAudit(ctx, filter)
}
