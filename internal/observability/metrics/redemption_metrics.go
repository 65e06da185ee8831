package metrics

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// RedemptionMetrics counts intent lifecycle outcomes. All methods are nil-safe
// so callers can run without a metrics registry wired.
type RedemptionMetrics struct {
	intentsCreated    *prometheus.CounterVec
	intentsConsumed   *prometheus.CounterVec
	consumeConflicts  *prometheus.CounterVec
	compensationRuns  *prometheus.CounterVec
	reconciliationReq *prometheus.CounterVec
	quotaDenied       *prometheus.CounterVec
}

var (
	redemptionMetricsOnce sync.Once
	redemptionMetrics     *RedemptionMetrics
)

// Redemption returns the process-wide redemption metrics, registering them on
// first use.
func Redemption() *RedemptionMetrics {
	redemptionMetricsOnce.Do(func() {
		redemptionMetrics = newRedemptionMetrics(prometheus.DefaultRegisterer)
	})
	return redemptionMetrics
}

// ResetRedemptionMetricsForTest clears the singleton between test registries.
func ResetRedemptionMetricsForTest() {
	redemptionMetricsOnce = sync.Once{}
	redemptionMetrics = nil
}

func newRedemptionMetrics(registerer prometheus.Registerer) *RedemptionMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &RedemptionMetrics{
		intentsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clientela_intents_created_total",
			Help: "Redemption intents created, by kind.",
		}, []string{"kind"}),
		intentsConsumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clientela_intents_consumed_total",
			Help: "Redemption intents consumed, by kind.",
		}, []string{"kind"}),
		consumeConflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clientela_intent_consume_conflicts_total",
			Help: "Consume attempts that lost the status guard, by kind.",
		}, []string{"kind"}),
		compensationRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clientela_intent_compensation_reverts_total",
			Help: "Consumed-to-pending compensation reverts, by kind and result.",
		}, []string{"kind", "result"}),
		reconciliationReq: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clientela_intent_reconciliation_required_total",
			Help: "Intents left consumed with no side-effect record, by kind.",
		}, []string{"kind"}),
		quotaDenied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "clientela_quota_denied_total",
			Help: "Creations rejected by the quota guard, by resource kind.",
		}, []string{"kind"}),
	}

	registerer.MustRegister(
		m.intentsCreated,
		m.intentsConsumed,
		m.consumeConflicts,
		m.compensationRuns,
		m.reconciliationReq,
		m.quotaDenied,
	)
	return m
}

func (m *RedemptionMetrics) IncCreated(kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.intentsCreated.WithLabelValues(normalizeLabel(kind)).Add(float64(n))
}

func (m *RedemptionMetrics) IncConsumed(kind string) {
	if m == nil {
		return
	}
	m.intentsConsumed.WithLabelValues(normalizeLabel(kind)).Inc()
}

func (m *RedemptionMetrics) IncConsumeConflict(kind string) {
	if m == nil {
		return
	}
	m.consumeConflicts.WithLabelValues(normalizeLabel(kind)).Inc()
}

func (m *RedemptionMetrics) IncCompensation(kind, result string) {
	if m == nil {
		return
	}
	m.compensationRuns.WithLabelValues(normalizeLabel(kind), normalizeLabel(result)).Inc()
}

func (m *RedemptionMetrics) IncReconciliationRequired(kind string) {
	if m == nil {
		return
	}
	m.reconciliationReq.WithLabelValues(normalizeLabel(kind)).Inc()
}

func (m *RedemptionMetrics) IncQuotaDenied(kind string) {
	if m == nil {
		return
	}
	m.quotaDenied.WithLabelValues(normalizeLabel(kind)).Inc()
}

func normalizeLabel(value string) string {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "" {
		return "unknown"
	}
	return value
}
