package metrics

import "github.com/prometheus/client_golang/prometheus"

// SchedulingMetrics exposes counters/histograms for booking and cancellation flows.
type SchedulingMetrics struct {
	bookingsTotal      *prometheus.CounterVec
	instancesCreated   prometheus.Counter
	forcedOverlaps     prometheus.Counter
	cancellationsTotal *prometheus.CounterVec
	policyViolations   *prometheus.CounterVec
	operationLatency   *prometheus.HistogramVec
}

func NewSchedulingMetrics(reg prometheus.Registerer) *SchedulingMetrics {
	m := &SchedulingMetrics{
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agenda",
			Subsystem: "scheduling",
			Name:      "booking_requests_total",
			Help:      "Booking requests by outcome (created, conflict, forced, rejected, replayed, error)",
		}, []string{"outcome"}),
		instancesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "agenda",
			Subsystem: "scheduling",
			Name:      "appointments_created_total",
			Help:      "Appointment instances persisted, recurrence siblings included",
		}),
		forcedOverlaps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "agenda",
			Subsystem: "scheduling",
			Name:      "forced_overlaps_total",
			Help:      "Appointment instances persisted despite a detected overlap",
		}),
		cancellationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agenda",
			Subsystem: "scheduling",
			Name:      "cancellations_total",
			Help:      "Cancellation requests by actor and outcome",
		}, []string{"actor", "outcome"}),
		policyViolations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agenda",
			Subsystem: "scheduling",
			Name:      "policy_violations_total",
			Help:      "Requests rejected by a booking policy",
		}, []string{"kind"}),
		operationLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "agenda",
			Subsystem: "scheduling",
			Name:      "operation_latency_seconds",
			Help:      "Latency of scheduling operations",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.bookingsTotal,
		m.instancesCreated,
		m.forcedOverlaps,
		m.cancellationsTotal,
		m.policyViolations,
		m.operationLatency,
	)
	return m
}

func (m *SchedulingMetrics) ObserveBooking(outcome string, created, forced int) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(outcome).Inc()
	if created > 0 {
		m.instancesCreated.Add(float64(created))
	}
	if forced > 0 {
		m.forcedOverlaps.Add(float64(forced))
	}
}

func (m *SchedulingMetrics) ObserveCancellation(actor, outcome string) {
	if m == nil {
		return
	}
	m.cancellationsTotal.WithLabelValues(actor, outcome).Inc()
}

func (m *SchedulingMetrics) ObservePolicyViolation(kind string) {
	if m == nil {
		return
	}
	m.policyViolations.WithLabelValues(kind).Inc()
}

func (m *SchedulingMetrics) ObserveLatency(operation string, seconds float64) {
	if m == nil {
		return
	}
	m.operationLatency.WithLabelValues(operation).Observe(seconds)
}
