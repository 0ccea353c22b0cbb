package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/vitrinehq/vitrine/internal/config"
	"github.com/vitrinehq/vitrine/internal/model"
)

const sinkTimeout = 5 * time.Second

// Sink persists audit entries somewhere outside the request path.
type Sink interface {
	Name() string
	Write(ctx context.Context, entry *model.AuditEntry) error
}

// StoreSink writes audit entries to the audit_entries table.
type StoreSink struct {
	Store *config.Store
}

func (s StoreSink) Name() string { return "store" }

func (s StoreSink) Write(ctx context.Context, entry *model.AuditEntry) error {
	return s.Store.CreateAuditEntry(ctx, entry)
}

// Emitter records audit entries without blocking the caller. Each sink has
// its own bounded buffer and worker, so a slow or unreachable sink cannot
// delay delivery to the others. When a sink's buffer is full the entry is
// dropped for that sink and logged. Sink failures are logged and never reach
// the code that recorded the entry.
type Emitter struct {
	workers []*sinkWorker
	logger  *slog.Logger
	now     func() time.Time

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

type sinkWorker struct {
	sink    Sink
	entries chan model.AuditEntry
}

// NewEmitter starts an Emitter with the given per-sink buffer size and sinks.
func NewEmitter(logger *slog.Logger, buffer int, sinks ...Sink) *Emitter {
	if buffer <= 0 {
		buffer = 1
	}
	e := &Emitter{
		logger: logger,
		now:    time.Now,
	}
	for _, sink := range sinks {
		w := &sinkWorker{sink: sink, entries: make(chan model.AuditEntry, buffer)}
		e.workers = append(e.workers, w)
		e.wg.Add(1)
		go e.run(w)
	}
	return e
}

// Record enqueues entry for every sink. It never blocks and never fails.
func (e *Emitter) Record(entry model.AuditEntry) {
	if e == nil {
		return
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = e.now()
	}

	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.closed {
		e.logger.Warn("audit entry dropped: emitter closed", "action", entry.Action, "target_id", entry.TargetID)
		return
	}
	for _, w := range e.workers {
		select {
		case w.entries <- entry:
		default:
			e.logger.Warn("audit entry dropped: buffer full",
				"sink", w.sink.Name(), "action", entry.Action, "target_id", entry.TargetID)
		}
	}
}

func (e *Emitter) run(w *sinkWorker) {
	defer e.wg.Done()
	for entry := range w.entries {
		e.write(w.sink, entry)
	}
}

func (e *Emitter) write(sink Sink, entry model.AuditEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
	defer cancel()
	if err := sink.Write(ctx, &entry); err != nil {
		e.logger.Error("audit sink write failed",
			"sink", sink.Name(),
			"action", entry.Action,
			"actor_id", entry.ActorID,
			"target_id", entry.TargetID,
			"error", err,
		)
	}
}

// Close stops accepting entries and waits for every buffer to drain or for
// ctx to end, whichever comes first.
func (e *Emitter) Close(ctx context.Context) error {
	if e == nil {
		return nil
	}
	e.mu.Lock()
	if !e.closed {
		e.closed = true
		for _, w := range e.workers {
			close(w.entries)
		}
	}
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
