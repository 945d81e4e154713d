package pipeline

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// StageStatus is the observable state of one stage within a run.
type StageStatus string

const (
	StatePending    StageStatus = "pending"
	StateProcessing StageStatus = "processing"
	StateCompleted  StageStatus = "completed"
	StateFailed     StageStatus = "failed"
)

// ErrStageOrderViolation indicates a caller tried to skip a stage, revisit a
// completed one, or touch a terminal run. It is a programming error, never an
// expected runtime condition.
var ErrStageOrderViolation = errors.New("pipeline: stage order violation")

// StageInfo is a read-only snapshot of one stage in a run.
type StageInfo struct {
	Stage       Stage
	Status      StageStatus
	Progress    int // 0-100 within the stage, only meaningful while processing
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// Run tracks the stage machine for one document. It is safe for concurrent
// use; the ingestion worker writes transitions while API handlers read
// snapshots.
type Run struct {
	mu     sync.Mutex
	stages []StageInfo
	cur    int // index of the stage currently processing, or next to begin
	failed bool
	err    error

	now func() time.Time // overridable in tests
}

// NewRun returns a run with every stage pending.
func NewRun() *Run {
	r := &Run{now: time.Now}
	r.stages = make([]StageInfo, len(Order))
	for i, s := range Order {
		r.stages[i] = StageInfo{Stage: s, Status: StatePending}
	}
	return r
}

// Begin marks stage as processing. The stage must be exactly the next pending
// stage and no other stage may be processing.
func (r *Run) Begin(stage Stage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failed {
		return fmt.Errorf("%w: begin %q on failed run", ErrStageOrderViolation, stage)
	}
	i := Index(stage)
	if i < 0 {
		return fmt.Errorf("%w: unknown stage %q", ErrStageOrderViolation, stage)
	}
	if i != r.cur || r.stages[i].Status != StatePending {
		return fmt.Errorf("%w: begin %q out of order (current %q)", ErrStageOrderViolation, stage, Order[r.cur])
	}
	now := r.now()
	r.stages[i].Status = StateProcessing
	r.stages[i].Progress = 0
	r.stages[i].StartedAt = &now
	return nil
}

// Complete marks the currently processing stage as done.
func (r *Run) Complete(stage Stage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failed {
		return fmt.Errorf("%w: complete %q on failed run", ErrStageOrderViolation, stage)
	}
	i := Index(stage)
	if i < 0 || i != r.cur || r.stages[i].Status != StateProcessing {
		return fmt.Errorf("%w: complete %q not processing", ErrStageOrderViolation, stage)
	}
	now := r.now()
	r.stages[i].Status = StateCompleted
	r.stages[i].Progress = 100
	r.stages[i].CompletedAt = &now
	r.cur++
	return nil
}

// Fail terminates the run at the currently processing stage (or, if no stage
// is processing, at the next pending one). Every later stage stays pending
// permanently.
func (r *Run) Fail(cause error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failed {
		return fmt.Errorf("%w: fail on failed run", ErrStageOrderViolation)
	}
	if r.cur >= len(r.stages) {
		return fmt.Errorf("%w: fail on completed run", ErrStageOrderViolation)
	}
	now := r.now()
	r.stages[r.cur].Status = StateFailed
	r.stages[r.cur].CompletedAt = &now
	r.failed = true
	r.err = cause
	return nil
}

// SetProgress reports in-stage percentage for the processing stage.
// Values are clamped to [0,100] and never decrease within the stage.
func (r *Run) SetProgress(pct int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failed || r.cur >= len(r.stages) || r.stages[r.cur].Status != StateProcessing {
		return fmt.Errorf("%w: progress with no processing stage", ErrStageOrderViolation)
	}
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	if pct > r.stages[r.cur].Progress {
		r.stages[r.cur].Progress = pct
	}
	return nil
}

// Current returns the stage the run sits at: the one processing, or the next
// pending one. For a completed run it returns the last stage.
func (r *Run) Current() Stage {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cur >= len(r.stages) {
		return Order[len(Order)-1]
	}
	return r.stages[r.cur].Stage
}

// Status reports the document-level status string: the current stage name
// while the run is live, or a terminal "completed"/"failed".
func (r *Run) Status() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failed {
		return StatusFailed
	}
	if r.cur >= len(r.stages) {
		return StatusCompleted
	}
	return string(r.stages[r.cur].Stage)
}

// Failed reports whether the run terminated with an error, and the cause.
func (r *Run) Failed() (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failed, r.err
}

// StageEnabled reports whether a stage's detail view may be shown: the stage
// has been reached (processing) or finished (completed).
func (r *Run) StageEnabled(stage Stage) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := Index(stage)
	if i < 0 {
		return false
	}
	st := r.stages[i].Status
	return st == StateProcessing || st == StateCompleted
}

// ResultsReady reports whether the terminal results view (chunk listing) is
// available: every stage completed.
func (r *Run) ResultsReady() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.failed && r.cur >= len(r.stages)
}

// OverallProgress returns the 0-100 run percentage: completed stages plus the
// in-stage fraction of the processing stage. Monotonic within a run.
func (r *Run) OverallProgress() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cur >= len(r.stages) {
		return 100
	}
	total := r.cur * 100
	if r.stages[r.cur].Status == StateProcessing {
		total += r.stages[r.cur].Progress
	}
	return total / len(r.stages)
}

// Snapshot copies the per-stage states in pipeline order.
func (r *Run) Snapshot() []StageInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]StageInfo, len(r.stages))
	copy(out, r.stages)
	return out
}
