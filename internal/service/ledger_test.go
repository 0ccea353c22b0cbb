package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vitrinehq/vitrine/internal/config"
)

func newTestStore(t *testing.T) *config.Store {
	t.Helper()
	store, err := config.NewStore("")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestLedger(t *testing.T) (*Ledger, *testClock) {
	t.Helper()
	clock := newTestClock()
	l := NewLedger(newTestStore(t), config.LockoutSettings{Window: 15 * time.Minute, MaxFailures: 5}, clock.Now)
	return l, clock
}

func recordN(t *testing.T, l *Ledger, clock *testClock, email string, success bool, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if err := l.RecordAttempt(context.Background(), email, success, Origin{IP: "10.0.0.1", UserAgent: "test"}); err != nil {
			t.Fatalf("RecordAttempt: %v", err)
		}
		clock.Advance(time.Minute)
	}
}

func TestLedgerLocksAfterFiveFailures(t *testing.T) {
	l, clock := newTestLedger(t)
	ctx := context.Background()

	recordN(t, l, clock, "a@x.com", false, 4)
	locked, err := l.IsLocked(ctx, "a@x.com")
	if err != nil {
		t.Fatalf("IsLocked: %v", err)
	}
	if locked {
		t.Fatal("should not be locked after 4 failures")
	}

	recordN(t, l, clock, "a@x.com", false, 1)
	if locked, _ := l.IsLocked(ctx, "A@X.com "); !locked {
		t.Fatal("should be locked after 5 failures")
	}

	// Other emails are unaffected.
	if locked, _ := l.IsLocked(ctx, "b@x.com"); locked {
		t.Error("b@x.com should not be locked")
	}
}

func TestLedgerSuccessAmongRecentBreaksLock(t *testing.T) {
	l, clock := newTestLedger(t)
	ctx := context.Background()

	recordN(t, l, clock, "a@x.com", false, 3)
	recordN(t, l, clock, "a@x.com", true, 1)
	recordN(t, l, clock, "a@x.com", false, 4)

	if locked, _ := l.IsLocked(ctx, "a@x.com"); locked {
		t.Error("a success among the last five attempts must keep the email unlocked")
	}

	recordN(t, l, clock, "a@x.com", false, 1)
	if locked, _ := l.IsLocked(ctx, "a@x.com"); !locked {
		t.Error("five newest attempts failed; expected lock")
	}
}

func TestLedgerLockExpires(t *testing.T) {
	l, clock := newTestLedger(t)
	ctx := context.Background()

	// Failures at t0..t0+4m.
	recordN(t, l, clock, "a@x.com", false, 5)
	st, err := l.Status(ctx, "a@x.com")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !st.Locked || st.Failures != 5 {
		t.Fatalf("status = %+v, want locked with 5 failures", st)
	}

	// Clock is t0+5m. The oldest failure leaves the window at t0+15m.
	wantUntil := clock.Now().Add(-5 * time.Minute).Add(15 * time.Minute)
	if !st.LockedUntil.Equal(wantUntil) {
		t.Errorf("LockedUntil = %v, want %v", st.LockedUntil, wantUntil)
	}

	clock.Advance(10*time.Minute + time.Second)
	if locked, _ := l.IsLocked(ctx, "a@x.com"); locked {
		t.Error("lock should lift once the oldest failure ages out of the window")
	}
}

func TestLedgerPurge(t *testing.T) {
	l, clock := newTestLedger(t)
	ctx := context.Background()

	recordN(t, l, clock, "a@x.com", false, 3)
	clock.Advance(48 * time.Hour)

	n, err := l.Purge(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if n != 3 {
		t.Errorf("purged %d attempts, want 3", n)
	}
}

func TestLedgerPurgeKeepsLockoutWindow(t *testing.T) {
	l, clock := newTestLedger(t)
	ctx := context.Background()

	recordN(t, l, clock, "old@x.com", false, 2)
	clock.Advance(7 * time.Hour)
	recordN(t, l, clock, "a@x.com", false, 5)

	n, err := l.Purge(ctx, 24*l.Window())
	if err != nil {
		t.Fatalf("Purge: %v", err)
	}
	if n != 2 {
		t.Errorf("purged %d attempts, want only the 2 outside retention", n)
	}
	locked, err := l.IsLocked(ctx, "a@x.com")
	if err != nil {
		t.Fatalf("IsLocked: %v", err)
	}
	if !locked {
		t.Error("purge must not release an active lockout")
	}
}

func TestLedgerLockSerializesPerEmail(t *testing.T) {
	l, _ := newTestLedger(t)

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := l.Lock("same@x.com")
			defer unlock()

			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
		}()
	}
	wg.Wait()

	if maxInside != 1 {
		t.Errorf("max concurrent holders = %d, want 1", maxInside)
	}
	if len(l.locks) != 0 {
		t.Errorf("expected lock table to be empty, got %d entries", len(l.locks))
	}
}

func TestLedgerLockIndependentEmails(t *testing.T) {
	l, _ := newTestLedger(t)

	unlockA := l.Lock("a@x.com")
	done := make(chan struct{})
	go func() {
		unlock := l.Lock("b@x.com")
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on b@x.com blocked behind a@x.com")
	}
	unlockA()
}
