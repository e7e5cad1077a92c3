// Package bus implements the event bus: publish is append-then-fan-out,
// and handler failures are isolated so one broken subscriber never blocks
// persistence or other subscribers.
package bus

import (
	"context"
	"fmt"
	"sync"

	"github.com/satoshiflow/ledgercore/internal/ledger/events"
	"github.com/satoshiflow/ledgercore/internal/ledger/journal"
	"github.com/satoshiflow/ledgercore/internal/ledger/telemetry"
	"github.com/satoshiflow/ledgercore/pkg/logger"
)

// Handler consumes one journal record. A returned error is caught by the
// bus, counted, and logged; it never aborts the fan-out and never revokes
// the persisted event.
type Handler func(ctx context.Context, rec journal.Record) error

type subscription struct {
	id      int64
	name    string
	handler Handler
}

// Stats mirrors the Python event bus's get_metrics() output.
type Stats struct {
	TotalPublished        int64
	TotalSubscriberErrors int64
	SubscriberCounts      map[events.EventType]int
}

// Bus owns the journal and fans published events out to subscribers. There
// is exactly one writer per Bus instance, matching the journal's own
// single-writer contract.
type Bus struct {
	j       journal.Journal
	log     *logger.Logger
	metrics *telemetry.Metrics

	mu                    sync.RWMutex
	subscribers           map[events.EventType][]subscription
	nextSubscriptionID    int64
	totalPublished        int64
	totalSubscriberErrors int64
}

// New wires a Bus to j. metrics may be nil, in which case an isolated
// counter set is created.
func New(j journal.Journal, log *logger.Logger, metrics *telemetry.Metrics) *Bus {
	if metrics == nil {
		metrics = telemetry.NewIsolated()
	}
	return &Bus{
		j:           j,
		log:         log,
		metrics:     metrics,
		subscribers: make(map[events.EventType][]subscription),
	}
}

// Subscribe registers handler for eventType and returns a subscription id
// usable with Unsubscribe. name identifies the handler in logs and errors.
func (b *Bus) Subscribe(eventType events.EventType, name string, handler Handler) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextSubscriptionID++
	id := b.nextSubscriptionID
	b.subscribers[eventType] = append(b.subscribers[eventType], subscription{id: id, name: name, handler: handler})
	return id
}

// Unsubscribe removes the subscription previously returned by Subscribe.
// Rarely used outside of tests; production subscribers live for the life
// of the process.
func (b *Bus) Unsubscribe(eventType events.EventType, id int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subscribers[eventType]
	for i, sub := range subs {
		if sub.id == id {
			b.subscribers[eventType] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

// Publish appends env to the journal and, if it was newly accepted,
// invokes every subscriber registered for env.EventType sequentially in
// registration order. It returns false without invoking any handler when
// env is a duplicate. A cancelled context observed after append has
// returned does not abort fan-out: every subscriber still sees a
// successfully appended event, on this publish or on the next replay.
func (b *Bus) Publish(ctx context.Context, env events.Envelope) (bool, error) {
	accepted, err := b.j.Append(ctx, env)
	if err != nil {
		return false, fmt.Errorf("publish: %w", err)
	}
	if !accepted {
		return false, nil
	}

	b.mu.Lock()
	b.totalPublished++
	b.mu.Unlock()
	b.metrics.IncPublish()

	b.mu.RLock()
	subs := append([]subscription(nil), b.subscribers[env.EventType]...)
	b.mu.RUnlock()

	rec := journal.Record{Envelope: env}
	for _, sub := range subs {
		b.metrics.IncHandlerInvoked()
		if err := sub.handler(ctx, rec); err != nil {
			b.mu.Lock()
			b.totalSubscriberErrors++
			b.mu.Unlock()
			b.metrics.IncSubscriberError()
			b.log.WithEvent(env.EventID, env.EventType).
				WithField("handler", sub.name).
				WithField("error", err.Error()).
				Error("subscriber handler failed")
		}
	}
	return true, nil
}

// Stats reports publish and fan-out counters.
func (b *Bus) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	counts := make(map[events.EventType]int, len(b.subscribers))
	for t, subs := range b.subscribers {
		counts[t] = len(subs)
	}
	return Stats{
		TotalPublished:        b.totalPublished,
		TotalSubscriberErrors: b.totalSubscriberErrors,
		SubscriberCounts:      counts,
	}
}
