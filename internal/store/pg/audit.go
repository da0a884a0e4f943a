package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"worksdesk.io/internal/auth"
)

// AppendAudit inserts one entry. Updates and deletes are rejected by a table trigger.
func (s *Store) AppendAudit(ctx context.Context, e auth.AuditEntry) error {
	if s.db == nil {
		return errUnavailable
	}
	meta := []byte("{}")
	if len(e.Metadata) > 0 {
		bytes, err := json.Marshal(e.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		meta = bytes
	}
	_, err := s.db.ExecContext(ctx, `
		insert into audit_logs (id, actor_id, module, action, resource_id, metadata, request_id, occurred_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8)
	`, e.ID, nullIfEmpty(e.ActorID), e.Module, e.Action, nullIfEmpty(e.ResourceID), meta,
		nullIfEmpty(e.RequestID), e.OccurredAt.UTC())
	return classify(err, auth.ErrNotFound, auth.ErrConflict)
}

// ListAudit returns entries newest first.
func (s *Store) ListAudit(ctx context.Context, filter auth.AuditFilter) ([]auth.AuditEntry, error) {
	if s.db == nil {
		return nil, errUnavailable
	}
	var (
		where []string
		args  []any
	)
	if filter.ActorID != "" {
		args = append(args, filter.ActorID)
		where = append(where, fmt.Sprintf("actor_id = $%d", len(args)))
	}
	if filter.Module != "" {
		args = append(args, filter.Module)
		where = append(where, fmt.Sprintf("module = $%d", len(args)))
	}
	if !filter.Before.IsZero() {
		args = append(args, filter.Before.UTC())
		where = append(where, fmt.Sprintf("occurred_at < $%d", len(args)))
	}
	query := `select id, actor_id, module, action, resource_id, metadata, request_id, occurred_at from audit_logs`
	if len(where) > 0 {
		query += ` where ` + strings.Join(where, " and ")
	}
	args = append(args, filter.Limit)
	query += fmt.Sprintf(` order by occurred_at desc, id desc limit $%d`, len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []auth.AuditEntry
	for rows.Next() {
		var (
			e                        auth.AuditEntry
			actor, resource, request sql.NullString
			meta                     []byte
		)
		if err := rows.Scan(&e.ID, &actor, &e.Module, &e.Action, &resource, &meta, &request, &e.OccurredAt); err != nil {
			return nil, err
		}
		e.ActorID = actor.String
		e.ResourceID = resource.String
		e.RequestID = request.String
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &e.Metadata); err != nil {
				return nil, fmt.Errorf("decode audit metadata: %w", err)
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
