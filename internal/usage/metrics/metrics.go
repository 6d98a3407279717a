// Package metrics provides Prometheus metrics for the quota engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	ChecksTotal  *prometheus.CounterVec // Evaluate calls by action, tier
	RecordsTotal *prometheus.CounterVec // landed writes by action, tier
	DenialsTotal *prometheus.CounterVec // denied actions by action, tier, window
	ResetsTotal  prometheus.Counter
	TierUpdates  *prometheus.CounterVec // admin tier changes by new tier
	StoreErrors  *prometheus.CounterVec // store failures by operation

	TierCacheHitsTotal   prometheus.Counter
	TierCacheMissesTotal prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		ChecksTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "chalk_usage_checks_total",
			Help: "Total number of quota evaluations",
		}, []string{"action", "tier"}),
		RecordsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "chalk_usage_records_total",
			Help: "Total number of usage increments that landed",
		}, []string{"action", "tier"}),
		DenialsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "chalk_usage_denials_total",
			Help: "Total number of denied actions by limiting window",
		}, []string{"action", "tier", "window"}),
		ResetsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "chalk_usage_resets_total",
			Help: "Total number of admin usage resets",
		}),
		TierUpdates: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "chalk_usage_tier_updates_total",
			Help: "Total number of admin tier updates by new tier",
		}, []string{"tier"}),
		StoreErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "chalk_usage_store_errors_total",
			Help: "Total number of store failures by operation",
		}, []string{"operation"}),
		TierCacheHitsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "chalk_usage_tier_cache_hits_total",
			Help: "Total number of tier cache hits",
		}),
		TierCacheMissesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "chalk_usage_tier_cache_misses_total",
			Help: "Total number of tier cache misses",
		}),
	}
}

func (m *Metrics) RecordCheck(action, tier string) {
	m.ChecksTotal.WithLabelValues(action, tier).Inc()
}

func (m *Metrics) RecordUsage(action, tier string) {
	m.RecordsTotal.WithLabelValues(action, tier).Inc()
}

func (m *Metrics) RecordDenial(action, tier, window string) {
	m.DenialsTotal.WithLabelValues(action, tier, window).Inc()
}

func (m *Metrics) RecordReset() {
	m.ResetsTotal.Inc()
}

func (m *Metrics) RecordTierUpdate(tier string) {
	m.TierUpdates.WithLabelValues(tier).Inc()
}

func (m *Metrics) RecordStoreError(operation string) {
	m.StoreErrors.WithLabelValues(operation).Inc()
}

func (m *Metrics) RecordTierCacheHit() {
	m.TierCacheHitsTotal.Inc()
}

func (m *Metrics) RecordTierCacheMiss() {
	m.TierCacheMissesTotal.Inc()
}
