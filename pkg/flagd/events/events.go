// Package events delivers domain events to optional subscribers such as an
// audit log or a search indexer.
package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mikepea/flagd/pkg/flagd/auth"
	"github.com/mikepea/flagd/pkg/flagd/content"
	"github.com/mikepea/flagd/pkg/flagd/models"
)

// Event is implemented by every domain event.
type Event interface {
	EventName() string
}

// ContentFlagged is emitted after a flag is committed.
type ContentFlagged struct {
	Ref   content.Ref
	User  auth.User
	Event models.FlagEvent
	Count uint
}

func (ContentFlagged) EventName() string { return "content_flagged" }

// StatusChanged is emitted after a moderator changes a ledger status.
type StatusChanged struct {
	Ref       content.Ref
	Moderator auth.User
	From      int
	To        int
	At        time.Time
}

func (StatusChanged) EventName() string { return "status_changed" }

// Sink receives events. Handle must not block for long; it runs on the
// caller's goroutine after the write has committed.
type Sink interface {
	Handle(ctx context.Context, ev Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, ev Event) error

func (f SinkFunc) Handle(ctx context.Context, ev Event) error { return f(ctx, ev) }

// Bus fans events out to subscribers. A failing or panicking subscriber is
// logged and never affects the others or the emitter.
type Bus struct {
	mu     sync.RWMutex
	sinks  []Sink
	logger *slog.Logger
}

func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{logger: logger.With("system", "events")}
}

// Subscribe adds a sink.
func (b *Bus) Subscribe(s Sink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sinks = append(b.sinks, s)
}

// Emit delivers ev to every subscriber. A nil Bus drops events.
func (b *Bus) Emit(ctx context.Context, ev Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	sinks := make([]Sink, len(b.sinks))
	copy(sinks, b.sinks)
	b.mu.RUnlock()

	for _, s := range sinks {
		if err := b.deliver(ctx, s, ev); err != nil {
			b.logger.Warn("event subscriber failed", "event", ev.EventName(), "err", err)
		}
	}
}

func (b *Bus) deliver(ctx context.Context, s Sink, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.Handle(ctx, ev)
}

// LogSink writes events to a structured logger.
type LogSink struct {
	Logger *slog.Logger
}

func (l LogSink) Handle(ctx context.Context, ev Event) error {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	switch e := ev.(type) {
	case ContentFlagged:
		logger.InfoContext(ctx, "content flagged", "ref", e.Ref.String(), "user", e.User.ID, "status", e.Event.Status, "count", e.Count)
	case StatusChanged:
		logger.InfoContext(ctx, "flag status changed", "ref", e.Ref.String(), "moderator", e.Moderator.ID, "from", e.From, "to", e.To)
	default:
		logger.InfoContext(ctx, "domain event", "event", ev.EventName())
	}
	return nil
}
