package audit

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"worksdesk.io/internal/auth"
)

type memAuditStore struct {
	entries []auth.AuditEntry
	err     error
	filter  auth.AuditFilter
}

func (s *memAuditStore) AppendAudit(_ context.Context, e auth.AuditEntry) error {
	if s.err != nil {
		return s.err
	}
	s.entries = append(s.entries, e)
	return nil
}

func (s *memAuditStore) ListAudit(_ context.Context, f auth.AuditFilter) ([]auth.AuditEntry, error) {
	s.filter = f
	return s.entries, nil
}

func TestRecord(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	store := &memAuditStore{}
	rec := NewRecorder(store, zap.New(core))

	ctx := WithRequestID(context.Background(), "req-123")
	ctx = auth.ContextWithIdentity(ctx, auth.Identity{User: auth.User{ID: "user-42"}})

	if err := rec.Record(ctx, "expenses", "approve", "exp-1", map[string]string{"amount": "120.50"}); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if len(store.entries) != 1 {
		t.Fatalf("expected one stored entry, got %d", len(store.entries))
	}
	e := store.entries[0]
	if e.ActorID != "user-42" || e.Module != "expenses" || e.Action != "approve" || e.RequestID != "req-123" {
		t.Fatalf("unexpected entry %+v", e)
	}
	if e.ID == "" || e.OccurredAt.IsZero() {
		t.Fatalf("entry must carry id and timestamp")
	}

	lines := logs.FilterMessage("audit").All()
	if len(lines) != 1 {
		t.Fatalf("expected one audit log line, got %d", len(lines))
	}
	fields := lines[0].ContextMap()
	if fields["type"] != "audit" || fields["actor_id"] != "user-42" || fields["request_id"] != "req-123" {
		t.Fatalf("unexpected log fields %v", fields)
	}
}

func TestRecordRequiresModuleAndAction(t *testing.T) {
	rec := NewRecorder(&memAuditStore{}, nil)
	if err := rec.Record(context.Background(), " ", "create", "", nil); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestRecordSurfacesStoreError(t *testing.T) {
	boom := errors.New("boom")
	rec := NewRecorder(&memAuditStore{err: boom}, nil)
	if err := rec.Record(context.Background(), "users", "create", "u-1", nil); !errors.Is(err, boom) {
		t.Fatalf("expected store error, got %v", err)
	}
}

func TestListClampsLimit(t *testing.T) {
	store := &memAuditStore{}
	rec := NewRecorder(store, nil)
	if _, err := rec.List(context.Background(), auth.AuditFilter{Limit: 10_000, Module: " users "}); err != nil {
		t.Fatalf("List: %v", err)
	}
	if store.filter.Limit != 100 || store.filter.Module != "users" {
		t.Fatalf("unexpected filter %+v", store.filter)
	}
}
