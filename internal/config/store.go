package config

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/vitrinehq/vitrine/internal/model"
)

// Store is the relational store behind the back office identity core. It
// persists admin accounts, login attempts and audit entries.
type Store struct {
	db      *sqlx.DB
	dialect dialect
}

// NewStore creates a SQLite-backed store in dataDir. Pass empty string for
// in-memory.
func NewStore(dataDir string) (*Store, error) {
	return Open(DatabaseSettings{Driver: DriverSQLite, DataDir: dataDir})
}

// Open connects to the configured database and applies migrations.
func Open(cfg DatabaseSettings) (*Store, error) {
	d, err := dialectFor(cfg.Driver)
	if err != nil {
		return nil, err
	}

	dsn := cfg.DSN
	if d.name == DriverSQLite && dsn == "" {
		if cfg.DataDir == "" {
			dsn = ":memory:?_time_format=sqlite"
		} else {
			if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
				return nil, fmt.Errorf("create data dir: %w", err)
			}
			dsn = filepath.Join(cfg.DataDir, "vitrine.db") +
				"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_time_format=sqlite"
		}
	}
	if dsn, err = d.normalizeDSN(dsn); err != nil {
		return nil, err
	}

	db, err := sqlx.Connect(d.driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", d.name, err)
	}

	if d.name == DriverSQLite {
		db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable foreign keys: %w", err)
		}
	} else {
		if cfg.MaxOpenConns > 0 {
			db.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns > 0 {
			db.SetMaxIdleConns(cfg.MaxIdleConns)
		}
		if cfg.ConnMaxLifetime > 0 {
			db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
		}
	}

	s := &Store{db: db, dialect: d}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate %s database: %w", d.name, err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Driver returns the dialect name the store was opened with.
func (s *Store) Driver() string {
	return s.dialect.name
}

func newID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// queryer is satisfied by both *sqlx.DB and *sqlx.Tx.
type queryer interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	NamedExecContext(ctx context.Context, query string, arg interface{}) (sql.Result, error)
}

// ---------------------------------------------------------------------------
// Admin accounts
// ---------------------------------------------------------------------------

const adminColumns = `id, email, password_hash, name, role, is_active, last_login_at, created_at, updated_at`

const insertAdminQ = `INSERT INTO admins
	(id, email, password_hash, name, role, is_active, created_at, updated_at)
	VALUES
	(:id, :email, :password_hash, :name, :role, :is_active, :created_at, :updated_at)`

func insertAdmin(ctx context.Context, q queryer, admin *model.Admin) error {
	now := time.Now().UTC()
	if admin.ID == "" {
		admin.ID = newID()
	}
	admin.Email = NormalizeEmail(admin.Email)
	admin.CreatedAt = now
	admin.UpdatedAt = now

	if _, err := q.NamedExecContext(ctx, insertAdminQ, admin); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert admin: %w", err)
	}
	return nil
}

// CreateAdmin inserts a new admin account. The ID, CreatedAt, and UpdatedAt
// fields are populated after a successful insert. A taken email yields
// ErrDuplicate.
func (s *Store) CreateAdmin(ctx context.Context, admin *model.Admin) error {
	return insertAdmin(ctx, s.db, admin)
}

// CreateFirstAdmin inserts admin only if no account exists yet. The check and
// the insert run in one transaction that holds the bootstrap settings row, so
// concurrent callers cannot both succeed. Returns ErrBootstrapClosed when any
// account already exists.
func (s *Store) CreateFirstAdmin(ctx context.Context, admin *model.Admin) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var marker string
	q := tx.Rebind("SELECT value FROM settings WHERE name = ?" + s.dialect.lockRows)
	if err := tx.GetContext(ctx, &marker, q, "bootstrap"); err != nil {
		return fmt.Errorf("lock bootstrap row: %w", err)
	}

	var count int
	if err := tx.GetContext(ctx, &count, "SELECT COUNT(*) FROM admins"); err != nil {
		return fmt.Errorf("count admins: %w", err)
	}
	if count > 0 || marker != "" {
		return ErrBootstrapClosed
	}

	if err := insertAdmin(ctx, tx, admin); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind("UPDATE settings SET value = ? WHERE name = ?"), admin.ID, "bootstrap"); err != nil {
		return fmt.Errorf("mark bootstrap: %w", err)
	}
	return tx.Commit()
}

func getAdmin(ctx context.Context, q queryer, query string, arg interface{}) (*model.Admin, error) {
	var admin model.Admin
	if err := q.GetContext(ctx, &admin, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &admin, nil
}

// GetAdmin returns an admin by ID.
func (s *Store) GetAdmin(ctx context.Context, id string) (*model.Admin, error) {
	admin, err := getAdmin(ctx, s.db, s.db.Rebind("SELECT "+adminColumns+" FROM admins WHERE id = ?"), id)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("get admin: %w", err)
	}
	return admin, err
}

// GetAdminByEmail returns an admin by email address. The lookup is case
// insensitive because emails are stored normalized.
func (s *Store) GetAdminByEmail(ctx context.Context, email string) (*model.Admin, error) {
	admin, err := getAdmin(ctx, s.db, s.db.Rebind("SELECT "+adminColumns+" FROM admins WHERE email = ?"), NormalizeEmail(email))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("get admin by email: %w", err)
	}
	return admin, err
}

// ListAdmins returns all admin accounts, oldest first.
func (s *Store) ListAdmins(ctx context.Context) ([]model.Admin, error) {
	admins := []model.Admin{}
	if err := s.db.SelectContext(ctx, &admins, "SELECT "+adminColumns+" FROM admins ORDER BY created_at, email"); err != nil {
		return nil, fmt.Errorf("list admins: %w", err)
	}
	return admins, nil
}

// CountAdmins returns the number of admin accounts. Used for first-run
// detection.
func (s *Store) CountAdmins(ctx context.Context) (int, error) {
	var count int
	if err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM admins"); err != nil {
		return 0, fmt.Errorf("count admins: %w", err)
	}
	return count, nil
}

// UpdateAdminPassword replaces the stored password hash for an admin.
func (s *Store) UpdateAdminPassword(ctx context.Context, id, passwordHash string) error {
	result, err := s.db.ExecContext(ctx,
		s.db.Rebind("UPDATE admins SET password_hash = ?, updated_at = ? WHERE id = ?"),
		passwordHash, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update admin password: %w", err)
	}
	return expectAffected(result, "update admin password")
}

// UpdateAdminLastLogin sets the last_login_at timestamp for an admin.
func (s *Store) UpdateAdminLastLogin(ctx context.Context, id string, at time.Time) error {
	at = at.UTC()
	result, err := s.db.ExecContext(ctx,
		s.db.Rebind("UPDATE admins SET last_login_at = ?, updated_at = ? WHERE id = ?"), at, at, id)
	if err != nil {
		return fmt.Errorf("update admin last login: %w", err)
	}
	return expectAffected(result, "update admin last login")
}

func expectAffected(result sql.Result, op string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// NormalizeEmail trims and lower-cases an email so lookups, uniqueness and
// lockout keys agree.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ---------------------------------------------------------------------------
// Guarded admin mutations
// ---------------------------------------------------------------------------

// AdminTx is the view of the admins table available to a guarded mutation.
// Reads issued through it lock the rows they return until the transaction
// ends, so invariants checked inside the callback still hold at commit.
type AdminTx struct {
	tx      *sqlx.Tx
	dialect dialect
}

// InAdminTx runs fn inside a transaction. The transaction commits only when fn
// returns nil.
func (s *Store) InAdminTx(ctx context.Context, fn func(tx *AdminTx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(&AdminTx{tx: tx, dialect: s.dialect}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit admin tx: %w", err)
	}
	return nil
}

// CountActiveSuperAdmins counts active SUPERADMIN accounts and locks them.
// Call it before GetAdmin so concurrent guarded mutations take locks in the
// same order.
func (t *AdminTx) CountActiveSuperAdmins(ctx context.Context) (int, error) {
	var ids []string
	q := t.tx.Rebind("SELECT id FROM admins WHERE role = ? AND is_active = ? ORDER BY id" + t.dialect.lockRows)
	if err := t.tx.SelectContext(ctx, &ids, q, model.RoleSuperAdmin, true); err != nil {
		return 0, fmt.Errorf("count active superadmins: %w", err)
	}
	return len(ids), nil
}

// GetAdmin returns and locks the admin with the given ID.
func (t *AdminTx) GetAdmin(ctx context.Context, id string) (*model.Admin, error) {
	admin, err := getAdmin(ctx, t.tx, t.tx.Rebind("SELECT "+adminColumns+" FROM admins WHERE id = ?"+t.dialect.lockRows), id)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("get admin: %w", err)
	}
	return admin, err
}

// UpdateAdmin writes the mutable profile fields of admin. UpdatedAt is
// refreshed automatically. A taken email yields ErrDuplicate.
func (t *AdminTx) UpdateAdmin(ctx context.Context, admin *model.Admin) error {
	admin.Email = NormalizeEmail(admin.Email)
	admin.UpdatedAt = time.Now().UTC()

	const q = `UPDATE admins SET
		email = :email, name = :name, role = :role, is_active = :is_active, updated_at = :updated_at
		WHERE id = :id`

	result, err := t.tx.NamedExecContext(ctx, q, admin)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("update admin: %w", err)
	}
	return expectAffected(result, "update admin")
}

// DeleteAdmin removes an admin by ID.
func (t *AdminTx) DeleteAdmin(ctx context.Context, id string) error {
	result, err := t.tx.ExecContext(ctx, t.tx.Rebind("DELETE FROM admins WHERE id = ?"), id)
	if err != nil {
		return fmt.Errorf("delete admin: %w", err)
	}
	return expectAffected(result, "delete admin")
}

// ---------------------------------------------------------------------------
// Settings rows
// ---------------------------------------------------------------------------

// GetSetting returns the value stored under name.
func (s *Store) GetSetting(ctx context.Context, name string) (string, error) {
	var value string
	if err := s.db.GetContext(ctx, &value, s.db.Rebind("SELECT value FROM settings WHERE name = ?"), name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("get setting: %w", err)
	}
	return value, nil
}

// SetSetting stores value under name, creating the row if needed.
func (s *Store) SetSetting(ctx context.Context, name, value string) error {
	result, err := s.db.ExecContext(ctx, s.db.Rebind("UPDATE settings SET value = ? WHERE name = ?"), value, name)
	if err != nil {
		return fmt.Errorf("update setting: %w", err)
	}
	if n, _ := result.RowsAffected(); n > 0 {
		return nil
	}
	// MySQL reports zero affected rows when the value is unchanged.
	if _, err := s.GetSetting(ctx, name); err == nil {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, s.db.Rebind("INSERT INTO settings (name, value) VALUES (?, ?)"), name, value); err != nil {
		return fmt.Errorf("insert setting: %w", err)
	}
	return nil
}
