package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "roofline"

// Metrics holds the broker's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	providerCalls    *prometheus.CounterVec
	providerLatency  *prometheus.HistogramVec
	providerCostUSD  *prometheus.CounterVec
	ledgerFailures   prometheus.Counter
	slotDecisions    *prometheus.CounterVec
	cacheLookups     *prometheus.CounterVec
	transitions      *prometheus.CounterVec
	sweepDuration    prometheus.Histogram
	sweepOrders      *prometheus.CounterVec
	checkNowOutcomes *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		providerCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_calls_total",
			Help:      "External provider calls by provider, endpoint and outcome.",
		}, []string{"provider", "endpoint", "success"}),
		providerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_call_duration_seconds",
			Help:      "External provider call latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider", "endpoint"}),
		providerCostUSD: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_cost_usd_total",
			Help:      "Estimated USD spent per provider.",
		}, []string{"provider"}),
		ledgerFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_write_failures_total",
			Help:      "Usage log writes that failed and were dropped.",
		}),
		slotDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "daily_slot_reservations_total",
			Help:      "Daily Tier-2 slot reservation attempts by result.",
		}, []string{"result"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Result cache lookups by tier and result.",
		}, []string{"tier", "result"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "order_transitions_total",
			Help:      "Order status transitions.",
		}, []string{"from", "to"}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sweep_duration_seconds",
			Help:      "Duration of one background sweep over pending orders.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120},
		}),
		sweepOrders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_orders_total",
			Help:      "Orders visited by the background sweep by outcome.",
		}, []string{"outcome"}),
		checkNowOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "check_now_total",
			Help:      "On-demand order checks by outcome.",
		}, []string{"outcome"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.providerCalls,
			m.providerLatency,
			m.providerCostUSD,
			m.ledgerFailures,
			m.slotDecisions,
			m.cacheLookups,
			m.transitions,
			m.sweepDuration,
			m.sweepOrders,
			m.checkNowOutcomes,
		)
	}

	return m
}

func (m *Metrics) ObserveProviderCall(provider, endpoint string, success bool, cost float64, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.providerCalls.WithLabelValues(provider, endpoint, strconv.FormatBool(success)).Inc()
	m.providerLatency.WithLabelValues(provider, endpoint).Observe(elapsed.Seconds())
	if cost > 0 {
		m.providerCostUSD.WithLabelValues(provider).Add(cost)
	}
}

func (m *Metrics) LedgerWriteFailed() {
	if m == nil {
		return
	}
	m.ledgerFailures.Inc()
}

func (m *Metrics) SlotReservation(granted bool) {
	if m == nil {
		return
	}
	result := "denied"
	if granted {
		result = "granted"
	}
	m.slotDecisions.WithLabelValues(result).Inc()
}

func (m *Metrics) CacheLookup(tier int, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(strconv.Itoa(tier), result).Inc()
}

func (m *Metrics) Transition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) ObserveSweep(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.sweepDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) SweepOrder(outcome string) {
	if m == nil {
		return
	}
	m.sweepOrders.WithLabelValues(outcome).Inc()
}

func (m *Metrics) CheckNow(outcome string) {
	if m == nil {
		return
	}
	m.checkNowOutcomes.WithLabelValues(outcome).Inc()
}
