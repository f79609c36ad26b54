// Package metrics exposes Prometheus metrics for governance operations.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds all governance metrics. A nil *Registry is valid and
// records nothing, so instrumentation points need no nil checks.
type Registry struct {
	checkpointsCreated *prometheus.CounterVec
	decisions          *prometheus.CounterVec
	executions         *prometheus.CounterVec
	executionDuration  prometheus.Histogram
	quotaUsed          prometheus.Gauge
}

// NewRegistry creates and registers governance metrics with reg.
func NewRegistry(reg prometheus.Registerer) *Registry {
	r := &Registry{
		checkpointsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mutgate_checkpoints_created_total",
			Help: "Checkpoints created, by action.",
		}, []string{"action"}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mutgate_checkpoint_decisions_total",
			Help: "Approval decisions recorded, by outcome.",
		}, []string{"outcome"}),
		executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mutgate_executions_total",
			Help: "Mutation executions, by outcome.",
		}, []string{"outcome"}),
		executionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mutgate_execution_duration_seconds",
			Help:    "Wall time of mutation execution including rollback.",
			Buckets: prometheus.DefBuckets,
		}),
		quotaUsed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mutgate_quota_used",
			Help: "Current usage counter value.",
		}),
	}
	reg.MustRegister(r.checkpointsCreated, r.decisions, r.executions, r.executionDuration, r.quotaUsed)
	return r
}

// RecordCheckpointCreated counts a new checkpoint.
func (r *Registry) RecordCheckpointCreated(action string) {
	if r == nil {
		return
	}
	r.checkpointsCreated.WithLabelValues(action).Inc()
}

// RecordDecision counts an approve or reject.
func (r *Registry) RecordDecision(outcome string) {
	if r == nil {
		return
	}
	r.decisions.WithLabelValues(outcome).Inc()
}

// RecordExecution counts an execution outcome and its duration.
func (r *Registry) RecordExecution(outcome string, duration time.Duration) {
	if r == nil {
		return
	}
	r.executions.WithLabelValues(outcome).Inc()
	r.executionDuration.Observe(duration.Seconds())
}

// SetQuotaUsed updates the usage gauge.
func (r *Registry) SetQuotaUsed(used int64) {
	if r == nil {
		return
	}
	r.quotaUsed.Set(float64(used))
}
