// Package metrics collects Prometheus metrics for remote API calls,
// workflow step outcomes, and submitted payments.
package metrics
