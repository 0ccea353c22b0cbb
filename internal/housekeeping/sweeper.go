// Package housekeeping runs background maintenance for the server process.
package housekeeping

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

const (
	// DefaultInterval is how often old login attempts are deleted.
	DefaultInterval = time.Hour
	// DefaultRetention is how many lockout windows of attempts are kept.
	DefaultRetention = 24

	// SettingLastPurge records when the last successful sweep finished.
	SettingLastPurge = "last_attempt_purge"
)

// SettingsStore is the interface the sweeper needs from the config store.
type SettingsStore interface {
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
}

// Purger deletes login attempts older than a cutoff.
type Purger interface {
	Purge(ctx context.Context, olderThan time.Duration) (int64, error)
	Window() time.Duration
}

// Sweeper periodically purges login attempts that no lockout window can
// reach anymore.
type Sweeper struct {
	purger    Purger
	store     SettingsStore
	logger    *slog.Logger
	interval  time.Duration
	retention int
	now       func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithInterval overrides DefaultInterval.
func WithInterval(d time.Duration) Option {
	return func(s *Sweeper) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithRetention overrides DefaultRetention.
func WithRetention(windows int) Option {
	return func(s *Sweeper) {
		if windows > 0 {
			s.retention = windows
		}
	}
}

// WithClock replaces time.Now for the recorded purge time.
func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a Sweeper. store may be nil, in which case purge times are not
// recorded.
func New(purger Purger, store SettingsStore, logger *slog.Logger, opts ...Option) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Sweeper{
		purger:    purger,
		store:     store,
		logger:    logger,
		interval:  DefaultInterval,
		retention: DefaultRetention,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start runs one sweep immediately and then one per interval. Non-blocking.
func (s *Sweeper) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		s.Sweep(ctx)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.Sweep(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Shutdown stops the background loop and waits for an in-flight sweep.
func (s *Sweeper) Shutdown() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// Sweep deletes attempts older than retention lockout windows and records
// the time it finished. It returns the number of rows removed.
func (s *Sweeper) Sweep(ctx context.Context) int64 {
	n, err := s.purger.Purge(ctx, time.Duration(s.retention)*s.purger.Window())
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.logger.Warn("login attempt purge failed", "error", err)
		}
		return 0
	}
	if n > 0 {
		s.logger.Info("purged old login attempts", "count", n)
	}
	if s.store != nil {
		if err := s.store.SetSetting(ctx, SettingLastPurge, s.now().UTC().Format(time.RFC3339)); err != nil {
			s.logger.Debug("failed to record purge time", "error", err)
		}
	}
	return n
}

// LastSweep reports when the last successful sweep finished. The zero time
// means none has been recorded.
func (s *Sweeper) LastSweep(ctx context.Context) time.Time {
	if s.store == nil {
		return time.Time{}
	}
	v, err := s.store.GetSetting(ctx, SettingLastPurge)
	if err != nil || v == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}
	}
	return t
}
