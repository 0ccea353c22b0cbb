package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
)

// Supported store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// dialect captures the per-engine differences the store has to care about.
// Queries are written with '?' placeholders and rebound by sqlx.
type dialect struct {
	name       string
	driverName string // database/sql driver name

	// lockRows is appended to SELECTs whose rows must stay locked until the
	// surrounding transaction ends. SQLite has no row locks; the store runs it
	// on a single connection, which serializes writers instead.
	lockRows string

	migrations []string
}

func dialectFor(driver string) (dialect, error) {
	switch driver {
	case DriverSQLite, "":
		return dialect{name: DriverSQLite, driverName: "sqlite", migrations: sqliteMigrations}, nil
	case DriverPostgres, "pgx":
		return dialect{name: DriverPostgres, driverName: "pgx", lockRows: " FOR UPDATE", migrations: postgresMigrations}, nil
	case DriverMySQL:
		return dialect{name: DriverMySQL, driverName: "mysql", lockRows: " FOR UPDATE", migrations: mysqlMigrations}, nil
	default:
		return dialect{}, fmt.Errorf("unsupported store driver %q", driver)
	}
}

// normalizeDSN adjusts driver-specific DSN options the store relies on.
// MySQL must return DATETIME columns as time.Time in UTC.
func (d dialect) normalizeDSN(dsn string) (string, error) {
	if d.name != DriverMySQL {
		return dsn, nil
	}
	cfg, err := mysqldriver.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("parse mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	return cfg.FormatDSN(), nil
}

// isUniqueViolation reports whether err was caused by a unique constraint.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	var myErr *mysqldriver.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
