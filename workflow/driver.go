// Package workflow sequences the multi-agent demo scenarios. A Driver runs a
// fixed list of named steps; REQUIRED steps abort the run on failure while
// OPTIONAL steps log and continue with degraded expectations.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/a2aflow/internal/metrics"
)

// State is the workflow phase a step belongs to. Aborted and Summary are
// terminal; every state may transition directly to Aborted.
type State string

const (
	StateStart        State = "start"
	StateProvisioning State = "provisioning"
	StateDiscovery    State = "discovery"
	StateFunding      State = "funding"
	StateMessaging    State = "messaging"
	StateSettlement   State = "settlement"
	StateConfirmation State = "confirmation"
	StateSummary      State = "summary"
	StateAborted      State = "aborted"
)

// ErrSkipStep signals from inside a step that its preconditions are absent
// and the step should be recorded as skipped rather than failed. Meaningful
// for OPTIONAL steps only.
var ErrSkipStep = errors.New("workflow: step skipped")

// ErrAborted is returned by Run when a REQUIRED step fails.
var ErrAborted = errors.New("workflow: aborted")

// Step is one unit of a scenario.
type Step struct {
	// Name identifies the step in logs and the summary.
	Name string
	// State is the phase the driver enters when the step starts.
	State State
	// Required steps abort the run on failure; optional ones log and continue.
	Required bool
	// Run does the work. Returning ErrSkipStep marks the step skipped.
	Run func(ctx context.Context) error
}

// Driver executes a scenario's steps in order and produces a Summary.
type Driver struct {
	name      string
	logger    *zap.Logger
	collector *metrics.Collector
	steps     []Step
	state     State
	summary   *Summary
}

// NewDriver creates a Driver for the named scenario. collector may be nil.
func NewDriver(name string, logger *zap.Logger, collector *metrics.Collector) *Driver {
	return &Driver{
		name:      name,
		logger:    logger.With(zap.String("workflow", name)),
		collector: collector,
		state:     StateStart,
		summary:   newSummary(name),
	}
}

// Summary returns the run summary. Steps may record facts and notes on it
// while the run is in progress.
func (d *Driver) Summary() *Summary { return d.summary }

// Add appends steps to the scenario.
func (d *Driver) Add(steps ...Step) {
	d.steps = append(d.steps, steps...)
}

// State returns the current phase.
func (d *Driver) State() State { return d.state }

// Run executes all steps. The returned Summary is non-nil even on abort so
// callers can always report what succeeded before the failure.
func (d *Driver) Run(ctx context.Context) (*Summary, error) {
	summary := d.summary
	summary.StartedAt = time.Now()

	for _, step := range d.steps {
		if err := ctx.Err(); err != nil {
			d.abort(summary, step.Name, err)
			return summary, fmt.Errorf("%w: %v", ErrAborted, err)
		}

		d.state = step.State
		d.logger.Info("step starting",
			zap.String("step", step.Name),
			zap.String("state", string(step.State)),
			zap.Bool("required", step.Required),
		)

		start := time.Now()
		err := step.Run(ctx)
		elapsed := time.Since(start)

		switch {
		case err == nil:
			summary.record(step, OutcomeOK, "", elapsed)
			d.recordStep(step.Name, string(OutcomeOK))
			d.logger.Info("step done",
				zap.String("step", step.Name),
				zap.Duration("duration", elapsed),
			)

		case errors.Is(err, ErrSkipStep):
			summary.record(step, OutcomeSkipped, err.Error(), elapsed)
			d.recordStep(step.Name, string(OutcomeSkipped))
			d.logger.Warn("step skipped",
				zap.String("step", step.Name),
				zap.Error(err),
			)

		case !step.Required:
			summary.record(step, OutcomeDegraded, err.Error(), elapsed)
			d.recordStep(step.Name, string(OutcomeDegraded))
			d.logger.Warn("optional step failed, continuing",
				zap.String("step", step.Name),
				zap.Error(err),
			)

		default:
			summary.record(step, OutcomeFailed, err.Error(), elapsed)
			d.recordStep(step.Name, string(OutcomeFailed))
			d.abort(summary, step.Name, err)
			return summary, fmt.Errorf("%w: step %s: %v", ErrAborted, step.Name, err)
		}
	}

	d.state = StateSummary
	summary.finish(StateSummary)
	d.recordRun("completed")
	return summary, nil
}

func (d *Driver) abort(summary *Summary, step string, err error) {
	d.state = StateAborted
	summary.finish(StateAborted)
	d.recordRun("aborted")
	d.logger.Error("workflow aborted",
		zap.String("step", step),
		zap.Error(err),
	)
}

func (d *Driver) recordStep(step, outcome string) {
	if d.collector != nil {
		d.collector.RecordWorkflowStep(d.name, step, outcome)
	}
}

func (d *Driver) recordRun(outcome string) {
	if d.collector != nil {
		d.collector.RecordWorkflowRun(d.name, outcome)
	}
}
