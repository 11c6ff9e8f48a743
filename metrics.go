// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package rpcframe

import (
	"github.com/prometheus/client_golang/prometheus"
)

// metrics is a passive observer wired into the Server, Session and
// WorkerPool. It never introduces a lock shared with the hot path: the
// labeled counters below are prometheus.*Vec values and the rest are plain
// prometheus Gauge/Counter values, all synchronized inside the prometheus
// library, so instrumentation cannot become a new source of contention or
// change the ordering guarantees described in spec.md §5.
type metrics struct {
	framesReceived  *prometheus.CounterVec
	framesSent      *prometheus.CounterVec
	dispatchErrors  *prometheus.CounterVec
	activeSessions  prometheus.Gauge
	activeStreams   prometheus.Gauge
	poolQueueDepth  prometheus.Gauge
	poolTasksDone   prometheus.Counter
}

// newMetrics constructs a fresh metrics set and registers it with reg. A
// nil reg is accepted (metrics then collect but are never exported),
// matching how optional dependencies are threaded through this package's
// functional options.
func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		framesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rpcframe",
			Name:      "frames_received_total",
			Help:      "Frames received, labeled by message_type.",
		}, []string{"message_type"}),
		framesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rpcframe",
			Name:      "frames_sent_total",
			Help:      "Frames sent, labeled by message_type.",
		}, []string{"message_type"}),
		dispatchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rpcframe",
			Name:      "dispatch_errors_total",
			Help:      "Dispatch/handler errors, labeled by reason.",
		}, []string{"reason"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rpcframe",
			Name:      "active_sessions",
			Help:      "Currently open sessions.",
		}),
		activeStreams: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rpcframe",
			Name:      "active_streams",
			Help:      "Currently open streams across all sessions.",
		}),
		poolQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rpcframe",
			Name:      "pool_queue_depth",
			Help:      "Pending tasks in the worker pool queue.",
		}),
		poolTasksDone: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rpcframe",
			Name:      "pool_tasks_completed_total",
			Help:      "Worker pool tasks completed.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.framesReceived, m.framesSent, m.dispatchErrors,
			m.activeSessions, m.activeStreams,
			m.poolQueueDepth, m.poolTasksDone,
		)
	}
	return m
}

// noopMetrics is used when a caller does not supply a registry: every
// method is safe to call on a nil *metrics receiver is avoided by
// constructing an unregistered (reg=nil) instance instead, so hot-path
// call sites never need a nil check.
func noopMetrics() *metrics { return newMetrics(nil) }
