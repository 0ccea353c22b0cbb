package model

import "time"

// LoginAttempt is an immutable record of one login attempt, successful or not.
type LoginAttempt struct {
	ID          string    `json:"id" db:"id"`
	Email       string    `json:"email" db:"email"`
	Success     bool      `json:"success" db:"success"`
	IP          string    `json:"ip" db:"ip"`
	UserAgent   string    `json:"user_agent" db:"user_agent"`
	AttemptedAt time.Time `json:"attempted_at" db:"attempted_at"`
}
