package config

import (
	"context"
	"fmt"
	"time"

	"github.com/vitrinehq/vitrine/internal/model"
)

// CreateAuditEntry appends an audit entry.
func (s *Store) CreateAuditEntry(ctx context.Context, e *model.AuditEntry) error {
	if e.ID == "" {
		e.ID = newID()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	e.CreatedAt = e.CreatedAt.UTC()

	const q = `INSERT INTO audit_entries (id, actor_id, target_id, action, message, ip, user_agent, created_at)
		VALUES (:id, :actor_id, :target_id, :action, :message, :ip, :user_agent, :created_at)`

	if _, err := s.db.NamedExecContext(ctx, q, e); err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// ListAuditEntries returns the most recent audit entries, newest first.
func (s *Store) ListAuditEntries(ctx context.Context, limit int) ([]model.AuditEntry, error) {
	entries := []model.AuditEntry{}
	q := s.db.Rebind(`SELECT id, actor_id, target_id, action, message, ip, user_agent, created_at
		FROM audit_entries ORDER BY created_at DESC, id DESC LIMIT ?`)
	if err := s.db.SelectContext(ctx, &entries, q, limit); err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	return entries, nil
}
