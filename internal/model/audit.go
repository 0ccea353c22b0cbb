package model

import "time"

// AuditAction enumerates the sensitive operations that produce audit entries.
type AuditAction string

const (
	AuditAdminBootstrap AuditAction = "ADMIN_BOOTSTRAP"
	AuditAdminCreate    AuditAction = "ADMIN_CREATE"
	AuditAdminUpdate    AuditAction = "ADMIN_UPDATE"
	AuditAdminDelete    AuditAction = "ADMIN_DELETE"
	AuditPasswordChange AuditAction = "PASSWORD_CHANGE"
	AuditPasswordReset  AuditAction = "PASSWORD_RESET"
)

// AuditEntry records who did what to whom. Entries are append-only and are
// written after the primary change has committed.
type AuditEntry struct {
	ID        string      `json:"id" db:"id"`
	ActorID   string      `json:"actor_id" db:"actor_id"`
	TargetID  string      `json:"target_id" db:"target_id"`
	Action    AuditAction `json:"action" db:"action"`
	Message   string      `json:"message" db:"message"`
	IP        string      `json:"ip" db:"ip"`
	UserAgent string      `json:"user_agent" db:"user_agent"`
	CreatedAt time.Time   `json:"created_at" db:"created_at"`
}
