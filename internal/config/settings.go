package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Settings is the process-wide configuration. It is built once at startup and
// passed by value into constructors; nothing reads configuration from the
// environment after that.
type Settings struct {
	Server   ServerSettings   `yaml:"server" mapstructure:"server"`
	Database DatabaseSettings `yaml:"database" mapstructure:"database"`
	Auth     AuthSettings     `yaml:"auth" mapstructure:"auth"`
	Lockout  LockoutSettings  `yaml:"lockout" mapstructure:"lockout"`
	Audit    AuditSettings    `yaml:"audit" mapstructure:"audit"`
	Logging  LoggingSettings  `yaml:"logging" mapstructure:"logging"`
	MCP      MCPSettings      `yaml:"mcp" mapstructure:"mcp"`
}

// ServerSettings controls the HTTP server behavior.
type ServerSettings struct {
	Host            string        `yaml:"host" mapstructure:"host"`
	Port            int           `yaml:"port" mapstructure:"port"`
	CORSOrigins     []string      `yaml:"cors_origins" mapstructure:"cors_origins"`
	SecureCookies   bool          `yaml:"secure_cookies" mapstructure:"secure_cookies"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
	LoginRateLimit  int           `yaml:"login_rate_limit" mapstructure:"login_rate_limit"` // requests per minute per IP
}

// DatabaseSettings selects and tunes the relational store.
type DatabaseSettings struct {
	Driver          string        `yaml:"driver" mapstructure:"driver"`
	DSN             string        `yaml:"dsn" mapstructure:"dsn"`
	DataDir         string        `yaml:"data_dir" mapstructure:"data_dir"` // SQLite only
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
}

// AuthSettings holds the signing keys and lifetimes of session credentials.
type AuthSettings struct {
	AccessSecret  string        `yaml:"access_secret" mapstructure:"access_secret"`
	RefreshSecret string        `yaml:"refresh_secret" mapstructure:"refresh_secret"`
	AccessTTL     time.Duration `yaml:"access_ttl" mapstructure:"access_ttl"`
	RefreshTTL    time.Duration `yaml:"refresh_ttl" mapstructure:"refresh_ttl"`
	BcryptCost    int           `yaml:"bcrypt_cost" mapstructure:"bcrypt_cost"`
}

// LockoutSettings controls brute-force protection on login.
type LockoutSettings struct {
	Window      time.Duration `yaml:"window" mapstructure:"window"`
	MaxFailures int           `yaml:"max_failures" mapstructure:"max_failures"`
}

// AuditSettings controls the audit trail sinks.
type AuditSettings struct {
	Buffer    int    `yaml:"buffer" mapstructure:"buffer"`
	AMQPURL   string `yaml:"amqp_url" mapstructure:"amqp_url"`
	AMQPQueue string `yaml:"amqp_queue" mapstructure:"amqp_queue"`
}

// LoggingSettings controls log output.
type LoggingSettings struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// MCPSettings controls the operator MCP server.
type MCPSettings struct {
	Transport string `yaml:"transport" mapstructure:"transport"`
	Port      int    `yaml:"port" mapstructure:"port"`
}

// DefaultSettings returns Settings pre-filled with production defaults.
// Signing secrets are deliberately left empty.
func DefaultSettings() Settings {
	return Settings{
		Server: ServerSettings{
			Host:            "0.0.0.0",
			Port:            8080,
			CORSOrigins:     []string{},
			SecureCookies:   true,
			ShutdownTimeout: 30 * time.Second,
			LoginRateLimit:  30,
		},
		Database: DatabaseSettings{
			Driver:          DriverSQLite,
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Auth: AuthSettings{
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 7 * 24 * time.Hour,
			BcryptCost: 10,
		},
		Lockout: LockoutSettings{
			Window:      15 * time.Minute,
			MaxFailures: 5,
		},
		Audit: AuditSettings{
			Buffer:    256,
			AMQPQueue: "vitrine.audit",
		},
		Logging: LoggingSettings{
			Level:  "info",
			Format: "text",
		},
		MCP: MCPSettings{
			Transport: "stdio",
			Port:      3001,
		},
	}
}

// Validate reports the first configuration problem that would make the
// identity core unsafe or unusable.
func (s Settings) Validate() error {
	var errs []error
	if s.Auth.AccessSecret == "" || s.Auth.RefreshSecret == "" {
		errs = append(errs, errors.New("auth.access_secret and auth.refresh_secret are required"))
	} else if s.Auth.AccessSecret == s.Auth.RefreshSecret {
		errs = append(errs, errors.New("auth.access_secret and auth.refresh_secret must differ"))
	}
	if s.Auth.AccessTTL <= 0 || s.Auth.RefreshTTL <= 0 {
		errs = append(errs, errors.New("auth token lifetimes must be positive"))
	}
	if s.Lockout.Window <= 0 || s.Lockout.MaxFailures <= 0 {
		errs = append(errs, errors.New("lockout.window and lockout.max_failures must be positive"))
	}
	if _, err := dialectFor(s.Database.Driver); err != nil {
		errs = append(errs, err)
	}
	if s.Database.Driver != "" && s.Database.Driver != DriverSQLite && s.Database.DSN == "" {
		errs = append(errs, fmt.Errorf("database.dsn is required for driver %q", s.Database.Driver))
	}
	return errors.Join(errs...)
}

// Masked returns a copy of s that is safe to print.
func (s Settings) Masked() Settings {
	out := s
	out.Auth.AccessSecret = mask(s.Auth.AccessSecret)
	out.Auth.RefreshSecret = mask(s.Auth.RefreshSecret)
	if s.Database.DSN != "" {
		out.Database.DSN = "********"
	}
	if s.Audit.AMQPURL != "" {
		out.Audit.AMQPURL = "********"
	}
	return out
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "********"
}

// WriteDefaultSettings writes the default configuration to a YAML file.
func WriteDefaultSettings(path string) error {
	data, err := yaml.Marshal(DefaultSettings())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
