// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector aggregates Prometheus metrics for the A2A client.
type Collector struct {
	// Remote API call metrics
	apiRequestsTotal   *prometheus.CounterVec
	apiRequestDuration *prometheus.HistogramVec

	// Workflow metrics
	workflowStepsTotal *prometheus.CounterVec
	workflowRunsTotal  *prometheus.CounterVec

	// Payment metrics
	paymentsTotal        *prometheus.CounterVec
	paymentLamportsTotal prometheus.Counter

	logger *zap.Logger
}

// NewCollector creates a metrics collector registered on the default
// Prometheus registry under the given namespace.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.apiRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "Total number of remote API requests",
		},
		[]string{"operation", "status"},
	)

	c.apiRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "api_request_duration_seconds",
			Help:      "Remote API request duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"operation"},
	)

	c.workflowStepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_steps_total",
			Help:      "Total number of executed workflow steps",
		},
		[]string{"workflow", "step", "outcome"},
	)

	c.workflowRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_runs_total",
			Help:      "Total number of workflow runs",
		},
		[]string{"workflow", "outcome"},
	)

	c.paymentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_total",
			Help:      "Total number of submitted transfers",
		},
		[]string{"outcome"},
	)

	c.paymentLamportsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_lamports_total",
			Help:      "Total transferred amount in lamports",
		},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// RecordAPIRequest records one remote API call.
func (c *Collector) RecordAPIRequest(operation, status string, duration time.Duration) {
	c.apiRequestsTotal.WithLabelValues(operation, status).Inc()
	c.apiRequestDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordWorkflowStep records the outcome of one workflow step.
func (c *Collector) RecordWorkflowStep(workflow, step, outcome string) {
	c.workflowStepsTotal.WithLabelValues(workflow, step, outcome).Inc()
}

// RecordWorkflowRun records the terminal outcome of one workflow run.
func (c *Collector) RecordWorkflowRun(workflow, outcome string) {
	c.workflowRunsTotal.WithLabelValues(workflow, outcome).Inc()
}

// RecordPayment records a submitted transfer and its amount.
func (c *Collector) RecordPayment(outcome string, lamports int64) {
	c.paymentsTotal.WithLabelValues(outcome).Inc()
	if lamports > 0 {
		c.paymentLamportsTotal.Add(float64(lamports))
	}
}
