// SPDX-License-Identifier: Apache-2.0
package connector

import (
	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "forcemove"

// Metrics counts the store operations of a Connector.
type Metrics struct {
	registry   *prometheus.Registry
	operations *prometheus.CounterVec
	events     prometheus.Counter
}

// NewMetrics creates the counters on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "operations_total",
			Help:      "Number of store operations by name and result.",
		}, []string{"op", "result"}),
		events: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "events_total",
			Help:      "Number of published events.",
		}),
	}
	m.registry.MustRegister(m.operations, m.events)
	return m
}

// Registry returns the registry the counters are registered at.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Operations returns the operation counter vector.
func (m *Metrics) Operations() *prometheus.CounterVec {
	return m.operations
}

// Events returns the published events counter.
func (m *Metrics) Events() prometheus.Counter {
	return m.events
}

func (m *Metrics) observe(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.operations.WithLabelValues(op, result).Inc()
}
