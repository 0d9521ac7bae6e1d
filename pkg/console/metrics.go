// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package console

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/yeetrun/lycaon/pkg/caprpc"
)

// Metrics collects console metrics on a private registry.
type Metrics struct {
	Registry *prometheus.Registry

	sessionsActive prometheus.Gauge
	sessionsTotal  *prometheus.CounterVec
	calls          *prometheus.CounterVec
	callDuration   *prometheus.HistogramVec
}

var _ caprpc.Observer = (*Metrics)(nil)

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		sessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "lycaon",
			Name:      "sessions_active",
			Help:      "Number of open console sessions.",
		}),
		sessionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lycaon",
			Name:      "sessions_total",
			Help:      "Console sessions accepted, by transport.",
		}, []string{"transport"}),
		calls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lycaon",
			Name:      "calls_total",
			Help:      "Capability calls dispatched, by interface, method and result.",
		}, []string{"interface", "method", "result"}),
		callDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "lycaon",
			Name:      "call_duration_seconds",
			Help:      "Capability call latency.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}, []string{"interface", "method"}),
	}
}

func (m *Metrics) sessionOpened(transport string) {
	m.sessionsActive.Inc()
	m.sessionsTotal.WithLabelValues(transport).Inc()
}

func (m *Metrics) sessionClosed() {
	m.sessionsActive.Dec()
}

// ObserveCall implements caprpc.Observer.
func (m *Metrics) ObserveCall(iface, method string, d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = string(caprpc.ExceptionTypeOf(err))
	}
	m.calls.WithLabelValues(iface, method, result).Inc()
	m.callDuration.WithLabelValues(iface, method).Observe(d.Seconds())
}
