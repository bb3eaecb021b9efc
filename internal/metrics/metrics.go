// Package metrics defines the Prometheus collectors of the roommates service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "roommates"

// Owner repair outcomes.
const (
	RepairTransferred = "transferred"
	RepairRecovered   = "recovered"
	RepairPlaceholder = "placeholder"
	RepairFailed      = "failed"
)

// Metrics holds every collector. A nil *Metrics is valid and records nothing,
// so services and tests can run without a registry.
type Metrics struct {
	registry *prometheus.Registry

	rpcRequests        *prometheus.CounterVec
	rpcDuration        *prometheus.HistogramVec
	ownerRepairs       *prometheus.CounterVec
	membershipChanges  *prometheus.CounterVec
	assignmentsCreated prometheus.Counter
	schedulerRuns      *prometheus.CounterVec
}

// New registers the collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		rpcRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_requests_total",
			Help:      "RPC calls by procedure and result code.",
		}, []string{"procedure", "code"}),
		rpcDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rpc_duration_seconds",
			Help:      "RPC latency by procedure.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"procedure"}),
		ownerRepairs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "owner_repairs_total",
			Help:      "Broken owner references handled while reading a group, by outcome.",
		}, []string{"outcome"}),
		membershipChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "membership_changes_total",
			Help:      "Successful membership operations by kind.",
		}, []string{"operation"}),
		assignmentsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assignments_created_total",
			Help:      "Task assignments created by the scheduler or manual assignment.",
		}),
		schedulerRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduler_runs_total",
			Help:      "Weekly scheduler runs by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(
		m.rpcRequests,
		m.rpcDuration,
		m.ownerRepairs,
		m.membershipChanges,
		m.assignmentsCreated,
		m.schedulerRuns,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRPC records one finished call.
func (m *Metrics) ObserveRPC(procedure, code string, d time.Duration) {
	if m == nil {
		return
	}
	m.rpcRequests.WithLabelValues(procedure, code).Inc()
	m.rpcDuration.WithLabelValues(procedure).Observe(d.Seconds())
}

// OwnerRepair records the outcome of a broken owner reference.
func (m *Metrics) OwnerRepair(outcome string) {
	if m == nil {
		return
	}
	m.ownerRepairs.WithLabelValues(outcome).Inc()
}

// MembershipChange records a successful create, join, leave, remove or transfer.
func (m *Metrics) MembershipChange(operation string) {
	if m == nil {
		return
	}
	m.membershipChanges.WithLabelValues(operation).Inc()
}

// AssignmentsCreated adds n new assignments.
func (m *Metrics) AssignmentsCreated(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.assignmentsCreated.Add(float64(n))
}

// SchedulerRun records one group's weekly run ("ok" or "error").
func (m *Metrics) SchedulerRun(result string) {
	if m == nil {
		return
	}
	m.schedulerRuns.WithLabelValues(result).Inc()
}
