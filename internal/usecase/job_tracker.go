package usecase

import (
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/Master-Gamer-glitch/HelixHeal/internal/domain"
	"github.com/Master-Gamer-glitch/HelixHeal/internal/domain/model"
)

// Snapshot is a consistent read of the tracker state. Readers never get a
// partially applied transition.
type Snapshot struct {
	Status         model.JobStatus  `json:"status"`
	JobID          string           `json:"job_id,omitempty"`
	RunID          string           `json:"run_id,omitempty"`
	ElapsedSeconds int              `json:"elapsed_seconds"`
	Result         *model.RunResult `json:"result,omitempty"`
	Config         model.JobConfig  `json:"-"`
}

// JobTracker is the single source of truth for the tracked run: form config,
// lifecycle status, job id, last polled result and the elapsed counter. It is
// explicitly constructed (no package singleton) and safe for concurrent use;
// every multi-field transition happens under one lock.
//
// Valid status edges: idle -> running -> {completed, failed}, and any -> idle
// via Reset. Each submission mints a run id (ULID); mutators carrying a stale
// run id are rejected, which guards against in-flight poll responses landing
// after a reset or a newer submission.
type JobTracker struct {
	mu      sync.Mutex
	cfg     model.JobConfig
	status  model.JobStatus
	jobID   string
	runID   string
	result  *model.RunResult
	elapsed int
}

func NewJobTracker() *JobTracker {
	return &JobTracker{status: model.JobStatusIdle}
}

// SetConfig replaces the form config. No validation and no side effects; the
// submission path validates.
func (t *JobTracker) SetConfig(cfg model.JobConfig) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cfg = cfg
}

// Config returns the current form config.
func (t *JobTracker) Config() model.JobConfig {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cfg
}

// Snapshot returns a copy of the current state.
func (t *JobTracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := Snapshot{
		Status:         t.status,
		JobID:          t.jobID,
		RunID:          t.runID,
		ElapsedSeconds: t.elapsed,
		Config:         t.cfg,
	}
	if t.result != nil {
		cp := *t.result
		s.Result = &cp
	}
	return s
}

// Begin starts a new run: status becomes running, the previous result, job id
// and elapsed counter are cleared, and a fresh run id is minted. The whole
// transition is one atomic update. Fails with domain.ErrRunActive while a run
// is live; the caller must Reset (or observe a terminal status) first.
func (t *JobTracker) Begin() (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch {
	case t.status == model.JobStatusRunning:
		return "", domain.ErrRunActive
	case t.status.Terminal():
		return "", domain.ErrResetRequired
	}
	t.status = model.JobStatusRunning
	t.jobID = ""
	t.result = nil
	t.elapsed = 0
	t.runID = ulid.Make().String()
	return t.runID, nil
}

// AttachJob records the job id returned by the creation request.
func (t *JobTracker) AttachJob(runID, jobID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if runID != t.runID || t.status != model.JobStatusRunning {
		return domain.ErrStaleResult
	}
	t.jobID = jobID
	return nil
}

// FailRun marks the run failed with an error-shaped result. Used when the
// creation request itself fails; the user must Reset before retrying.
func (t *JobTracker) FailRun(runID string, cause error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if runID != t.runID || t.status != model.JobStatusRunning {
		return domain.ErrStaleResult
	}
	t.status = model.JobStatusFailed
	t.result = &model.RunResult{
		Status:      model.RunStatusFailed,
		CurrentStep: "Submission failed",
		Error:       cause.Error(),
	}
	return nil
}

// ApplyResult overwrites the stored result with a polled payload,
// last-write-wins. Payloads carrying a stale run id, or arriving after a
// terminal transition, are discarded with domain.ErrStaleResult. When the
// payload reports a terminal remote status the tracker status follows it
// (normalized) and terminal is reported true, exactly once per run.
func (t *JobTracker) ApplyResult(runID string, res *model.RunResult) (terminal bool, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if runID != t.runID || t.status != model.JobStatusRunning {
		return false, domain.ErrStaleResult
	}
	t.result = res
	if res.Status.Terminal() {
		t.status = res.Status.Normalize()
		return true, nil
	}
	return false, nil
}

// TickElapsed advances the elapsed counter by one second. It only counts while
// the run it was started for is still running; once the status leaves running
// the value freezes for display.
func (t *JobTracker) TickElapsed(runID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if runID == t.runID && t.status == model.JobStatusRunning {
		t.elapsed++
	}
	return t.elapsed
}

// Reset restores the initial empty state. Valid in every status, including
// mid-run; the remote job keeps running server-side, only observation stops.
func (t *JobTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cfg = model.JobConfig{}
	t.status = model.JobStatusIdle
	t.jobID = ""
	t.runID = ""
	t.result = nil
	t.elapsed = 0
}
