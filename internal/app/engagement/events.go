package engagement

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/touchsync/touchsync/internal/domain"
	"github.com/touchsync/touchsync/internal/infra/metrics"
)

// Subscriber handles one engagement event.
type Subscriber func(ctx context.Context, ev domain.Event)

// Bus delivers events synchronously to subscribers in registration order.
// A panicking subscriber is logged and skipped; delivery is never retried.
type Bus struct {
	mu    sync.RWMutex
	subs  []Subscriber
	clock domain.Clock
	log   *zap.Logger
}

// NewBus creates an empty bus. A nil clock means UTC system time.
func NewBus(clock domain.Clock, logger *zap.Logger) *Bus {
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{clock: clock, log: logger.Named("events")}
}

// Subscribe appends a subscriber.
func (b *Bus) Subscribe(fn Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, fn)
}

// Publish stamps the event with an ID and time if unset, then delivers it.
func (b *Bus) Publish(ctx context.Context, ev domain.Event) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = b.clock.Now()
	}

	b.mu.RLock()
	subs := append([]Subscriber(nil), b.subs...)
	b.mu.RUnlock()

	for _, fn := range subs {
		b.deliver(ctx, fn, ev)
	}
}

func (b *Bus) deliver(ctx context.Context, fn Subscriber, ev domain.Event) {
	defer func() {
		if r := recover(); r != nil {
			metrics.SubscriberPanics.Inc()
			b.log.Error("event subscriber panicked",
				zap.String("event", string(ev.Type)),
				zap.String("profile", ev.ProfileID),
				zap.Any("panic", r))
		}
	}()
	fn(ctx, ev)
}

// outbox holds the events raised by one Manager operation. They reach the
// bus only once the operation's state is committed, so a retried operation
// never announces the same level-up twice.
type outbox struct {
	events []domain.Event
}

func (o *outbox) Publish(_ context.Context, ev domain.Event) {
	o.events = append(o.events, ev)
}

func (o *outbox) flush(ctx context.Context, pub domain.Publisher) {
	events := o.events
	o.events = nil
	for _, ev := range events {
		pub.Publish(ctx, ev)
	}
}

func (o *outbox) discard() {
	o.events = nil
}
