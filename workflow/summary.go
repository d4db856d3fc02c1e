package workflow

import (
	"fmt"
	"strings"
	"time"
)

// StepOutcome classifies how a step ended.
type StepOutcome string

const (
	OutcomeOK       StepOutcome = "ok"
	OutcomeSkipped  StepOutcome = "skipped"
	OutcomeDegraded StepOutcome = "degraded"
	OutcomeFailed   StepOutcome = "failed"
)

// StepResult is the recorded outcome of one step.
type StepResult struct {
	Name     string        `json:"name"`
	State    State         `json:"state"`
	Outcome  StepOutcome   `json:"outcome"`
	Detail   string        `json:"detail,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Summary is the structured record of one workflow run. It is emitted on
// both completion and abort, so it always reports what succeeded before any
// failure.
type Summary struct {
	Workflow   string       `json:"workflow"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Final      State        `json:"final_state"`
	Steps      []StepResult `json:"steps"`
	// Notes carry degraded-expectation annotations, e.g. a warning that the
	// payment will likely fail because funding was skipped.
	Notes []string `json:"notes,omitempty"`
	// Facts are key run artifacts: agent ids, wallet addresses, the
	// transaction hash.
	Facts map[string]string `json:"facts,omitempty"`
}

func newSummary(workflow string) *Summary {
	return &Summary{
		Workflow:  workflow,
		StartedAt: time.Now(),
		Facts:     make(map[string]string),
	}
}

func (s *Summary) record(step Step, outcome StepOutcome, detail string, d time.Duration) {
	s.Steps = append(s.Steps, StepResult{
		Name:     step.Name,
		State:    step.State,
		Outcome:  outcome,
		Detail:   detail,
		Duration: d,
	})
}

func (s *Summary) finish(final State) {
	s.FinishedAt = time.Now()
	s.Final = final
}

// AddNote appends a degraded-expectation annotation.
func (s *Summary) AddNote(format string, args ...any) {
	s.Notes = append(s.Notes, fmt.Sprintf(format, args...))
}

// SetFact records a run artifact under a stable key.
func (s *Summary) SetFact(key, value string) {
	s.Facts[key] = value
}

// Succeeded reports whether the run reached the Summary state.
func (s *Summary) Succeeded() bool {
	return s.Final == StateSummary
}

// Outcome returns the recorded outcome of a named step, or "" if the step
// never ran.
func (s *Summary) Outcome(step string) StepOutcome {
	for _, r := range s.Steps {
		if r.Name == step {
			return r.Outcome
		}
	}
	return ""
}

// String renders the summary for operators.
func (s *Summary) String() string {
	var b strings.Builder
	status := "COMPLETED"
	if !s.Succeeded() {
		status = "ABORTED"
	}
	fmt.Fprintf(&b, "workflow %s: %s in %s\n", s.Workflow, status, s.FinishedAt.Sub(s.StartedAt).Round(time.Millisecond))
	for _, r := range s.Steps {
		fmt.Fprintf(&b, "  [%-8s] %-24s %s", r.Outcome, r.Name, r.Duration.Round(time.Millisecond))
		if r.Detail != "" {
			fmt.Fprintf(&b, "  (%s)", r.Detail)
		}
		b.WriteByte('\n')
	}
	for _, n := range s.Notes {
		fmt.Fprintf(&b, "  note: %s\n", n)
	}
	for k, v := range s.Facts {
		fmt.Fprintf(&b, "  %s: %s\n", k, v)
	}
	return b.String()
}
