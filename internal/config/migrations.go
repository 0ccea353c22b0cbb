package config

import (
	"fmt"
	"strings"
)

// Each dialect carries its own ordered list. Statements must be idempotent;
// new statements go at the end.

var sqliteMigrations = []string{
	`CREATE TABLE IF NOT EXISTS admins (
		id TEXT PRIMARY KEY,
		email TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL DEFAULT 'ADMIN',
		is_active INTEGER NOT NULL DEFAULT 1,
		last_login_at DATETIME,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_admins_role_active ON admins(role, is_active)`,

	`CREATE TABLE IF NOT EXISTS login_attempts (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL,
		success INTEGER NOT NULL DEFAULT 0,
		ip TEXT NOT NULL DEFAULT '',
		user_agent TEXT NOT NULL DEFAULT '',
		attempted_at DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_login_attempts_email_time ON login_attempts(email, attempted_at)`,

	`CREATE TABLE IF NOT EXISTS audit_entries (
		id TEXT PRIMARY KEY,
		actor_id TEXT NOT NULL DEFAULT '',
		target_id TEXT NOT NULL DEFAULT '',
		action TEXT NOT NULL,
		message TEXT NOT NULL DEFAULT '',
		ip TEXT NOT NULL DEFAULT '',
		user_agent TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_entries_created ON audit_entries(created_at)`,

	`CREATE TABLE IF NOT EXISTS settings (
		name TEXT PRIMARY KEY,
		value TEXT NOT NULL DEFAULT ''
	)`,
	`INSERT INTO settings (name, value) VALUES ('bootstrap', '') ON CONFLICT (name) DO NOTHING`,
}

var postgresMigrations = []string{
	`CREATE TABLE IF NOT EXISTS admins (
		id TEXT PRIMARY KEY,
		email TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL DEFAULT 'ADMIN',
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		last_login_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_admins_role_active ON admins(role, is_active)`,

	`CREATE TABLE IF NOT EXISTS login_attempts (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL,
		success BOOLEAN NOT NULL DEFAULT FALSE,
		ip TEXT NOT NULL DEFAULT '',
		user_agent TEXT NOT NULL DEFAULT '',
		attempted_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_login_attempts_email_time ON login_attempts(email, attempted_at)`,

	`CREATE TABLE IF NOT EXISTS audit_entries (
		id TEXT PRIMARY KEY,
		actor_id TEXT NOT NULL DEFAULT '',
		target_id TEXT NOT NULL DEFAULT '',
		action TEXT NOT NULL,
		message TEXT NOT NULL DEFAULT '',
		ip TEXT NOT NULL DEFAULT '',
		user_agent TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_entries_created ON audit_entries(created_at)`,

	`CREATE TABLE IF NOT EXISTS settings (
		name TEXT PRIMARY KEY,
		value TEXT NOT NULL DEFAULT ''
	)`,
	`INSERT INTO settings (name, value) VALUES ('bootstrap', '') ON CONFLICT (name) DO NOTHING`,
}

// MySQL has no CREATE INDEX IF NOT EXISTS, so indexes are declared inline.
var mysqlMigrations = []string{
	`CREATE TABLE IF NOT EXISTS admins (
		id VARCHAR(36) PRIMARY KEY,
		email VARCHAR(255) NOT NULL UNIQUE,
		password_hash VARCHAR(255) NOT NULL,
		name VARCHAR(100) NOT NULL DEFAULT '',
		role VARCHAR(16) NOT NULL DEFAULT 'ADMIN',
		is_active TINYINT(1) NOT NULL DEFAULT 1,
		last_login_at DATETIME(6) NULL,
		created_at DATETIME(6) NOT NULL,
		updated_at DATETIME(6) NOT NULL,
		INDEX idx_admins_role_active (role, is_active)
	)`,

	`CREATE TABLE IF NOT EXISTS login_attempts (
		id VARCHAR(36) PRIMARY KEY,
		email VARCHAR(255) NOT NULL,
		success TINYINT(1) NOT NULL DEFAULT 0,
		ip VARCHAR(64) NOT NULL DEFAULT '',
		user_agent VARCHAR(512) NOT NULL DEFAULT '',
		attempted_at DATETIME(6) NOT NULL,
		INDEX idx_login_attempts_email_time (email, attempted_at)
	)`,

	`CREATE TABLE IF NOT EXISTS audit_entries (
		id VARCHAR(36) PRIMARY KEY,
		actor_id VARCHAR(36) NOT NULL DEFAULT '',
		target_id VARCHAR(36) NOT NULL DEFAULT '',
		action VARCHAR(32) NOT NULL,
		message TEXT NOT NULL,
		ip VARCHAR(64) NOT NULL DEFAULT '',
		user_agent VARCHAR(512) NOT NULL DEFAULT '',
		created_at DATETIME(6) NOT NULL,
		INDEX idx_audit_entries_created (created_at)
	)`,

	`CREATE TABLE IF NOT EXISTS settings (
		name VARCHAR(64) PRIMARY KEY,
		value TEXT NOT NULL
	)`,
	`INSERT IGNORE INTO settings (name, value) VALUES ('bootstrap', '')`,
}

func (s *Store) migrate() error {
	for _, m := range s.dialect.migrations {
		if _, err := s.db.Exec(m); err != nil {
			// ALTER TABLE ADD COLUMN fails if the column already exists;
			// treat "duplicate column" as a no-op for idempotent migrations.
			if strings.Contains(strings.ToLower(err.Error()), "duplicate column") {
				continue
			}
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}
