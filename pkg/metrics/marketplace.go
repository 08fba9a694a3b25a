package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Marketplace holds the domain collectors. All methods are no-ops on a nil
// receiver so services can run without metrics in tests.
type Marketplace struct {
	moderation      *prometheus.CounterVec
	listingsCreated prometheus.Counter
	profileWrites   *prometheus.CounterVec
	activeStreams   *prometheus.GaugeVec
	pendingBacklog  prometheus.Gauge
	outboxPublished *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
}

func NewMarketplace(reg prometheus.Registerer) *Marketplace {
	if reg == nil {
		return nil
	}
	m := &Marketplace{
		moderation: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "moderation_decisions_total",
			Help:      "Moderation actions by decision and outcome (applied, noop, conflict).",
		}, []string{"decision", "outcome"}),
		listingsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "listings_created_total",
			Help:      "Listings submitted for moderation.",
		}),
		profileWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "profile_writes_total",
			Help:      "Profile upserts by kind (insert, update).",
		}, []string{"kind"}),
		activeStreams: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_streams",
			Help:      "Open snapshot streams by stream name.",
		}, []string{"stream"}),
		pendingBacklog: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "listings_pending_overdue",
			Help:      "Pending listings older than the moderation deadline at the last scan.",
		}),
		outboxPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_published_total",
			Help:      "Outbox publish attempts by event type and result.",
		}, []string{"event_type", "result"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	reg.MustRegister(
		m.moderation,
		m.listingsCreated,
		m.profileWrites,
		m.activeStreams,
		m.pendingBacklog,
		m.outboxPublished,
		m.httpDuration,
	)
	return m
}

func (m *Marketplace) ModerationDecision(decision, outcome string) {
	if m == nil {
		return
	}
	m.moderation.WithLabelValues(normalizeLabel(decision), normalizeLabel(outcome)).Inc()
}

func (m *Marketplace) ListingCreated() {
	if m == nil {
		return
	}
	m.listingsCreated.Inc()
}

func (m *Marketplace) ProfileWrite(inserted bool) {
	if m == nil {
		return
	}
	kind := "update"
	if inserted {
		kind = "insert"
	}
	m.profileWrites.WithLabelValues(kind).Inc()
}

// StreamOpened increments the open stream gauge and returns the matching
// decrement.
func (m *Marketplace) StreamOpened(name string) func() {
	if m == nil {
		return func() {}
	}
	g := m.activeStreams.WithLabelValues(normalizeLabel(name))
	g.Inc()
	return g.Dec
}

func (m *Marketplace) SetPendingBacklog(n int) {
	if m == nil {
		return
	}
	m.pendingBacklog.Set(float64(n))
}

func (m *Marketplace) OutboxPublished(eventType string, ok bool) {
	if m == nil {
		return
	}
	result := "success"
	if !ok {
		result = "failure"
	}
	m.outboxPublished.WithLabelValues(normalizeLabel(eventType), result).Inc()
}

func (m *Marketplace) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpDuration.WithLabelValues(method, normalizeLabel(route), strconv.Itoa(status)).Observe(elapsed.Seconds())
}
