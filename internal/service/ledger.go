package service

import (
	"context"
	"sync"
	"time"

	"github.com/vitrinehq/vitrine/internal/config"
	"github.com/vitrinehq/vitrine/internal/model"
)

// Origin describes where a request came from. It is recorded on login
// attempts and audit entries.
type Origin struct {
	IP        string
	UserAgent string
}

// LockoutStatus summarizes the ledger's view of one email.
type LockoutStatus struct {
	Email       string    `json:"email"`
	Failures    int       `json:"failures"`
	MaxFailures int       `json:"max_failures"`
	Locked      bool      `json:"locked"`
	LockedUntil time.Time `json:"locked_until,omitempty"`
}

// Ledger records login attempts and decides whether an email is locked out.
// Only the most recent MaxFailures attempts inside the window are examined;
// the email is locked when all of them failed.
type Ledger struct {
	store       *config.Store
	window      time.Duration
	maxFailures int
	now         func() time.Time

	mu    sync.Mutex
	locks map[string]*emailLock
}

type emailLock struct {
	mu   sync.Mutex
	refs int
}

// NewLedger creates a Ledger. now may be nil, in which case time.Now is used.
func NewLedger(store *config.Store, cfg config.LockoutSettings, now func() time.Time) *Ledger {
	if now == nil {
		now = time.Now
	}
	return &Ledger{
		store:       store,
		window:      cfg.Window,
		maxFailures: cfg.MaxFailures,
		now:         now,
		locks:       make(map[string]*emailLock),
	}
}

// Window returns the trailing period over which failures are counted.
func (l *Ledger) Window() time.Duration { return l.window }

// RecordAttempt appends one login attempt.
func (l *Ledger) RecordAttempt(ctx context.Context, email string, success bool, origin Origin) error {
	err := l.store.CreateLoginAttempt(ctx, &model.LoginAttempt{
		Email:       email,
		Success:     success,
		IP:          origin.IP,
		UserAgent:   origin.UserAgent,
		AttemptedAt: l.now(),
	})
	if err != nil {
		return internalError("record login attempt", err)
	}
	return nil
}

// IsLocked reports whether email has reached the failure threshold inside the
// window. It does not record anything.
func (l *Ledger) IsLocked(ctx context.Context, email string) (bool, error) {
	st, err := l.Status(ctx, email)
	if err != nil {
		return false, err
	}
	return st.Locked, nil
}

// Status returns the failure count for email and, when locked, the instant
// the oldest examined failure leaves the window.
func (l *Ledger) Status(ctx context.Context, email string) (*LockoutStatus, error) {
	now := l.now()
	attempts, err := l.store.RecentLoginAttempts(ctx, email, now.Add(-l.window), l.maxFailures)
	if err != nil {
		return nil, internalError("read login attempts", err)
	}

	st := &LockoutStatus{Email: config.NormalizeEmail(email), MaxFailures: l.maxFailures}
	var oldest time.Time
	for _, a := range attempts {
		if !a.Success {
			st.Failures++
			oldest = a.AttemptedAt
		}
	}
	if st.Failures >= l.maxFailures {
		st.Locked = true
		st.LockedUntil = oldest.Add(l.window)
	}
	return st, nil
}

// Lock serializes login flows for one email within this process. The
// returned function releases the lock and must be called exactly once.
func (l *Ledger) Lock(email string) (unlock func()) {
	key := config.NormalizeEmail(email)

	l.mu.Lock()
	el, ok := l.locks[key]
	if !ok {
		el = &emailLock{}
		l.locks[key] = el
	}
	el.refs++
	l.mu.Unlock()

	el.mu.Lock()
	return func() {
		el.mu.Unlock()
		l.mu.Lock()
		el.refs--
		if el.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}
}

// Purge removes attempts older than the given age.
func (l *Ledger) Purge(ctx context.Context, olderThan time.Duration) (int64, error) {
	n, err := l.store.PurgeLoginAttempts(ctx, l.now().Add(-olderThan))
	if err != nil {
		return 0, internalError("purge login attempts", err)
	}
	return n, nil
}
