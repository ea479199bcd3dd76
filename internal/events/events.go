// Package events delivers scheduling events to downstream consumers.
package events

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/me/opsched/pkg/model"
)

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, events []model.Event) error
	Close() error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, []model.Event) error { return nil }
func (Nop) Close() error { return nil }

// LogPublisher writes each event as a structured log line.
type LogPublisher struct {
	logger *slog.Logger
	level  slog.Level
}

// NewLogPublisher logs events at the given level.
func NewLogPublisher(logger *slog.Logger, level slog.Level) *LogPublisher {
	return &LogPublisher{logger: logger.With("component", "events"), level: level}
}

func (p *LogPublisher) Publish(ctx context.Context, events []model.Event) error {
	for _, e := range events {
		p.logger.Log(ctx, p.level, "event",
			"type", e.Type,
			"event_id", e.ID,
			"pass_id", e.PassID,
			"order", e.OrderCode,
			"operation", e.OperationID,
			"machine", e.MachineID,
			"at", e.At,
		)
	}
	return nil
}

func (p *LogPublisher) Close() error { return nil }

// Multi fans events out to several publishers. Every publisher is tried;
// the errors are joined.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, events []model.Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, events); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, p := range m {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recorder keeps the most recent events in memory for the API.
type Recorder struct {
	mu   sync.Mutex
	buf  []model.Event
	next int
	full bool
}

// NewRecorder returns a recorder holding up to capacity events.
func NewRecorder(capacity int) *Recorder {
	if capacity <= 0 {
		capacity = 256
	}
	return &Recorder{buf: make([]model.Event, capacity)}
}

func (r *Recorder) Publish(_ context.Context, events []model.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range events {
		r.buf[r.next] = e
		r.next = (r.next + 1) % len(r.buf)
		if r.next == 0 {
			r.full = true
		}
	}
	return nil
}

func (r *Recorder) Close() error { return nil }

// Recent returns up to n events, newest first. n <= 0 returns everything held.
func (r *Recorder) Recent(n int) []model.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	size := r.next
	if r.full {
		size = len(r.buf)
	}
	if n <= 0 || n > size {
		n = size
	}
	out := make([]model.Event, 0, n)
	for i := 1; i <= n; i++ {
		idx := (r.next - i + len(r.buf)) % len(r.buf)
		out = append(out, r.buf[idx])
	}
	return out
}

// RecentEvents is Recent behind the same signature as a persistent journal.
func (r *Recorder) RecentEvents(_ context.Context, n int) ([]model.Event, error) {
	return r.Recent(n), nil
}
