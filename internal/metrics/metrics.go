// Package metrics holds the Prometheus collectors shared by the worker pool
// and the database pools.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "docbridge"

// Bridge holds collectors for the offload worker pool.
type Bridge struct {
	TasksSubmitted prometheus.Counter
	TasksCompleted prometheus.Counter
	TasksFailed    prometheus.Counter
	TasksRejected  prometheus.Counter
	ActiveWorkers  prometheus.Gauge
	QueueDepth     prometheus.Gauge
	QueueWait      prometheus.Histogram
	TaskLatency    prometheus.Histogram
}

func NewBridge(reg prometheus.Registerer) *Bridge {
	m := &Bridge{
		TasksSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "bridge",
			Name: "tasks_submitted_total",
			Help: "Total number of operations submitted to the worker pool",
		}),
		TasksCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "bridge",
			Name: "tasks_completed_total",
			Help: "Total number of operations that returned without error",
		}),
		TasksFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "bridge",
			Name: "tasks_failed_total",
			Help: "Total number of operations that returned an error or panicked",
		}),
		TasksRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "bridge",
			Name: "tasks_rejected_total",
			Help: "Total number of submissions rejected because the queue was full or the pool closed",
		}),
		ActiveWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "bridge",
			Name: "active_workers",
			Help: "Number of workers currently running an operation",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "bridge",
			Name: "queue_depth",
			Help: "Number of operations waiting for a worker",
		}),
		QueueWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "bridge",
			Name:    "queue_wait_seconds",
			Help:    "Time between submission and a worker picking the operation up",
			Buckets: prometheus.DefBuckets,
		}),
		TaskLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "bridge",
			Name:    "task_latency_seconds",
			Help:    "Histogram of operation execution latency",
			Buckets: prometheus.DefBuckets,
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.TasksSubmitted,
			m.TasksCompleted,
			m.TasksFailed,
			m.TasksRejected,
			m.ActiveWorkers,
			m.QueueDepth,
			m.QueueWait,
			m.TaskLatency,
		)
	}
	return m
}

// Pool holds per-backend connection pool gauges, labelled by backend name.
type Pool struct {
	Open    *prometheus.GaugeVec
	InUse   *prometheus.GaugeVec
	Idle    *prometheus.GaugeVec
	Waits   *prometheus.GaugeVec
	Warmups *prometheus.CounterVec
}

func NewPool(reg prometheus.Registerer) *Pool {
	labels := []string{"backend"}
	m := &Pool{
		Open: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "pool",
			Name: "open_connections",
			Help: "Established connections, in use and idle",
		}, labels),
		InUse: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "pool",
			Name: "in_use_connections",
			Help: "Connections currently borrowed",
		}, labels),
		Idle: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "pool",
			Name: "idle_connections",
			Help: "Connections kept warm in the pool",
		}, labels),
		Waits: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "pool",
			Name: "wait_count",
			Help: "Cumulative number of borrows that had to wait for a free connection",
		}, labels),
		Warmups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "pool",
			Name: "warmups_total",
			Help: "Maintenance runs that re-established the minimum warm connections",
		}, labels),
	}
	if reg != nil {
		reg.MustRegister(m.Open, m.InUse, m.Idle, m.Waits, m.Warmups)
	}
	return m
}
