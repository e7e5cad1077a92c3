// Package telemetry holds the in-process Prometheus counters shared by the
// journal and event bus. Nothing here exports an HTTP /metrics endpoint;
// scraping is an adapter concern outside this core. Counters are registered
// against a caller-supplied prometheus.Registerer, never the global default
// registerer, so concurrent tests never collide over metric names.
package telemetry

import "github.com/prometheus/client_golang/prometheus"

// Metrics is the full set of counters exercised by the ledger core.
type Metrics struct {
	EventsAppended        prometheus.Counter
	IdempotencyViolations prometheus.Counter
	PublishTotal          prometheus.Counter
	SubscriberErrors      prometheus.Counter
	HandlersInvoked       prometheus.Counter
}

// New builds and registers a Metrics set against reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EventsAppended: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledgercore_events_appended_total",
			Help: "Total envelopes durably appended to the journal.",
		}),
		IdempotencyViolations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledgercore_idempotency_violations_total",
			Help: "Total append attempts rejected as duplicates of a known idempotency key.",
		}),
		PublishTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledgercore_publish_total",
			Help: "Total bus.Publish calls that resulted in a durable append.",
		}),
		SubscriberErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledgercore_subscriber_errors_total",
			Help: "Total handler invocations that returned an error during fan-out.",
		}),
		HandlersInvoked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledgercore_handlers_invoked_total",
			Help: "Total handler invocations attempted during fan-out.",
		}),
	}
	reg.MustRegister(m.EventsAppended, m.IdempotencyViolations, m.PublishTotal, m.SubscriberErrors, m.HandlersInvoked)
	return m
}

// NewIsolated builds a Metrics set registered against a fresh, private
// registry. Used whenever a caller does not supply its own registerer, so
// that two journals (or a journal and its tests) never collide.
func NewIsolated() *Metrics {
	return New(prometheus.NewRegistry())
}

func (m *Metrics) incAppended() {
	if m != nil {
		m.EventsAppended.Inc()
	}
}

func (m *Metrics) incIdempotencyViolation() {
	if m != nil {
		m.IdempotencyViolations.Inc()
	}
}

func (m *Metrics) incPublish() {
	if m != nil {
		m.PublishTotal.Inc()
	}
}

func (m *Metrics) incSubscriberError() {
	if m != nil {
		m.SubscriberErrors.Inc()
	}
}

func (m *Metrics) incHandlerInvoked() {
	if m != nil {
		m.HandlersInvoked.Inc()
	}
}

// IncAppended records one durable journal append.
func (m *Metrics) IncAppended() { m.incAppended() }

// IncIdempotencyViolation records one rejected duplicate append.
func (m *Metrics) IncIdempotencyViolation() { m.incIdempotencyViolation() }

// IncPublish records one successful bus publish.
func (m *Metrics) IncPublish() { m.incPublish() }

// IncSubscriberError records one handler invocation that returned an error.
func (m *Metrics) IncSubscriberError() { m.incSubscriberError() }

// IncHandlerInvoked records one handler invocation attempt.
func (m *Metrics) IncHandlerInvoked() { m.incHandlerInvoked() }
