// Package queue publishes audit entries to RabbitMQ.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/vitrinehq/vitrine/internal/model"
)

const (
	dialTimeout = 5 * time.Second
	minBackoff  = time.Second
	maxBackoff  = time.Minute
)

// ErrBrokerUnavailable is returned without dialing while the publisher is
// backing off after a failed connection attempt.
var ErrBrokerUnavailable = errors.New("rabbitmq: broker unavailable")

// Publisher sends audit entries to a durable queue on the default exchange.
// The connection is opened on first use and reopened after a failure. After a
// failed dial, writes fail fast until an exponential backoff elapses.
type Publisher struct {
	url    string
	queue  string
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	conn    *amqp.Connection
	ch      *amqp.Channel
	backoff time.Duration
	retryAt time.Time
}

// NewPublisher creates a Publisher for the given broker URL and queue name.
// No connection is made until the first Write.
func NewPublisher(url, queue string, logger *slog.Logger) *Publisher {
	return &Publisher{url: url, queue: queue, logger: logger, now: time.Now}
}

// Name identifies the sink in logs.
func (p *Publisher) Name() string { return "amqp" }

// Write publishes one audit entry as a persistent JSON message.
func (p *Publisher) Write(ctx context.Context, entry *model.AuditEntry) error {
	msg, err := newPublishing(entry)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channel(ctx)
	if err != nil {
		return err
	}
	if err := ch.PublishWithContext(ctx, "", p.queue, false, false, msg); err != nil {
		p.reset()
		return fmt.Errorf("rabbitmq: publish: %w", err)
	}
	return nil
}

// channel returns the open channel, dialing and declaring the queue if
// needed. The dial is bounded by ctx and dialTimeout. Callers hold p.mu.
func (p *Publisher) channel(ctx context.Context) (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	p.reset()

	if now := p.now(); now.Before(p.retryAt) {
		return nil, fmt.Errorf("%w: retry in %s", ErrBrokerUnavailable, p.retryAt.Sub(now).Round(time.Millisecond))
	}

	timeout := dialTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}
	if timeout <= 0 {
		return nil, fmt.Errorf("rabbitmq: dial: %w", context.DeadlineExceeded)
	}

	conn, err := amqp.DialConfig(p.url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(timeout),
	})
	if err != nil {
		p.markDown()
		return nil, fmt.Errorf("rabbitmq: dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("rabbitmq: open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("rabbitmq: declare queue %s: %w", p.queue, err)
	}

	p.logger.Info("audit publisher connected", "queue", p.queue)
	p.conn, p.ch = conn, ch
	p.backoff, p.retryAt = 0, time.Time{}
	return ch, nil
}

// markDown doubles the backoff after a failed dial. Callers hold p.mu.
func (p *Publisher) markDown() {
	switch {
	case p.backoff == 0:
		p.backoff = minBackoff
	case p.backoff < maxBackoff:
		p.backoff *= 2
		if p.backoff > maxBackoff {
			p.backoff = maxBackoff
		}
	}
	p.retryAt = p.now().Add(p.backoff)
	p.logger.Warn("audit broker unreachable", "queue", p.queue, "retry_in", p.backoff)
}

// reset drops the current connection. Callers hold p.mu.
func (p *Publisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

// Close closes the broker connection, if any.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reset()
	return nil
}

func newPublishing(entry *model.AuditEntry) (amqp.Publishing, error) {
	body, err := json.Marshal(entry)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("rabbitmq: marshal audit entry: %w", err)
	}
	ts := entry.CreatedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    entry.ID,
		Type:         string(entry.Action),
		AppId:        "vitrine",
		Timestamp:    ts.UTC(),
		Body:         body,
	}, nil
}
