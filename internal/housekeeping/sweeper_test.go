package housekeeping

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

// mockStore implements SettingsStore for testing.
type mockStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newMockStore() *mockStore {
	return &mockStore{data: make(map[string]string)}
}

func (m *mockStore) GetSetting(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", fmt.Errorf("not found")
	}
	return v, nil
}

func (m *mockStore) SetSetting(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

// mockPurger records the cutoffs it was asked to purge.
type mockPurger struct {
	mu      sync.Mutex
	window  time.Duration
	calls   []time.Duration
	removed int64
	err     error
}

func (p *mockPurger) Purge(_ context.Context, olderThan time.Duration) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, olderThan)
	return p.removed, p.err
}

func (p *mockPurger) Window() time.Duration { return p.window }

func (p *mockPurger) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSweep_UsesRetentionWindows(t *testing.T) {
	purger := &mockPurger{window: 15 * time.Minute, removed: 3}
	s := New(purger, newMockStore(), quietLogger(), WithRetention(4))

	if n := s.Sweep(context.Background()); n != 3 {
		t.Fatalf("expected 3 removed, got %d", n)
	}
	if len(purger.calls) != 1 || purger.calls[0] != time.Hour {
		t.Errorf("expected one purge with cutoff 1h, got %v", purger.calls)
	}
}

func TestSweep_RecordsLastPurge(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newMockStore()
	s := New(&mockPurger{window: time.Minute}, store, quietLogger(), WithClock(func() time.Time { return fixed }))

	if got := s.LastSweep(context.Background()); !got.IsZero() {
		t.Fatalf("expected zero time before first sweep, got %v", got)
	}
	s.Sweep(context.Background())

	if got := s.LastSweep(context.Background()); !got.Equal(fixed) {
		t.Errorf("expected last sweep %v, got %v", fixed, got)
	}
}

func TestSweep_FailureDoesNotRecord(t *testing.T) {
	store := newMockStore()
	s := New(&mockPurger{window: time.Minute, err: errors.New("disk full")}, store, quietLogger())

	if n := s.Sweep(context.Background()); n != 0 {
		t.Errorf("expected 0 removed on failure, got %d", n)
	}
	if _, err := store.GetSetting(context.Background(), SettingLastPurge); err == nil {
		t.Error("expected no purge time after a failed sweep")
	}
}

func TestSweep_NilStore(t *testing.T) {
	s := New(&mockPurger{window: time.Minute, removed: 1}, nil, quietLogger())
	if n := s.Sweep(context.Background()); n != 1 {
		t.Errorf("expected 1 removed, got %d", n)
	}
	if !s.LastSweep(context.Background()).IsZero() {
		t.Error("expected zero last sweep without a store")
	}
}

func TestStartShutdown(t *testing.T) {
	purger := &mockPurger{window: time.Minute}
	s := New(purger, newMockStore(), quietLogger(), WithInterval(10*time.Millisecond))

	s.Start()
	deadline := time.Now().Add(2 * time.Second)
	for purger.callCount() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	s.Shutdown()

	if n := purger.callCount(); n < 2 {
		t.Fatalf("expected initial and periodic sweeps, got %d", n)
	}
	after := purger.callCount()
	time.Sleep(30 * time.Millisecond)
	if purger.callCount() != after {
		t.Error("expected no sweeps after Shutdown")
	}
}

func TestShutdownWithoutStart(t *testing.T) {
	s := New(&mockPurger{window: time.Minute}, nil, nil)
	s.Shutdown()
}
