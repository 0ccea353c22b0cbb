package config

import (
	"context"
	"fmt"
	"time"

	"github.com/vitrinehq/vitrine/internal/model"
)

// CreateLoginAttempt appends a login attempt. ID and AttemptedAt are filled
// in when empty.
func (s *Store) CreateLoginAttempt(ctx context.Context, a *model.LoginAttempt) error {
	if a.ID == "" {
		a.ID = newID()
	}
	if a.AttemptedAt.IsZero() {
		a.AttemptedAt = time.Now()
	}
	a.AttemptedAt = a.AttemptedAt.UTC()
	a.Email = NormalizeEmail(a.Email)

	const q = `INSERT INTO login_attempts (id, email, success, ip, user_agent, attempted_at)
		VALUES (:id, :email, :success, :ip, :user_agent, :attempted_at)`

	if _, err := s.db.NamedExecContext(ctx, q, a); err != nil {
		return fmt.Errorf("insert login attempt: %w", err)
	}
	return nil
}

// RecentLoginAttempts returns up to limit attempts for email made at or after
// since, newest first.
func (s *Store) RecentLoginAttempts(ctx context.Context, email string, since time.Time, limit int) ([]model.LoginAttempt, error) {
	attempts := []model.LoginAttempt{}
	q := s.db.Rebind(`SELECT id, email, success, ip, user_agent, attempted_at
		FROM login_attempts
		WHERE email = ? AND attempted_at >= ?
		ORDER BY attempted_at DESC, id DESC
		LIMIT ?`)
	if err := s.db.SelectContext(ctx, &attempts, q, NormalizeEmail(email), since.UTC(), limit); err != nil {
		return nil, fmt.Errorf("recent login attempts: %w", err)
	}
	return attempts, nil
}

// PurgeLoginAttempts deletes attempts older than before and returns how many
// rows were removed.
func (s *Store) PurgeLoginAttempts(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, s.db.Rebind("DELETE FROM login_attempts WHERE attempted_at < ?"), before.UTC())
	if err != nil {
		return 0, fmt.Errorf("purge login attempts: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge login attempts rows affected: %w", err)
	}
	return n, nil
}
