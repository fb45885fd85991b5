//go:build !integration

package sched_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/Master-Gamer-glitch/HelixHeal/internal/domain"
	"github.com/Master-Gamer-glitch/HelixHeal/internal/domain/model"
	"github.com/Master-Gamer-glitch/HelixHeal/internal/infra/sched"
	"github.com/Master-Gamer-glitch/HelixHeal/internal/usecase"
)

const pollEvery = 2 * time.Second

func validConfig() model.JobConfig {
	return model.JobConfig{
		RepoURL:    "https://github.com/a/b",
		TeamName:   "X",
		TeamLeader: "Y",
	}
}

func newTestRunner(t *testing.T, agent *mockAgent, archive *memArchive) (*sched.Runner, *usecase.JobTracker, *testingclock.FakeClock) {
	t.Helper()
	logger := zerolog.Nop()
	fc := testingclock.NewFakeClock(time.Now())
	tracker := usecase.NewJobTracker()
	var r *sched.Runner
	if archive != nil {
		r = sched.NewRunner(tracker, agent, archive, nil, fc, pollEvery, &logger)
	} else {
		r = sched.NewRunner(tracker, agent, nil, nil, fc, pollEvery, &logger)
	}
	t.Cleanup(r.Close)
	return r, tracker, fc
}

// eventually polls cond until it holds or the deadline passes. Timer delivery
// from the fake clock is asynchronous, so assertions after a Step go through
// this instead of reading state immediately.
func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal(msg)
}

// stepUntil advances the fake clock by d repeatedly until cond holds.
func stepUntil(t *testing.T, fc *testingclock.FakeClock, d time.Duration, cond func() bool, msg string) {
	t.Helper()
	for i := 0; i < 500; i++ {
		if cond() {
			return
		}
		fc.Step(d)
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestRunner_Submit(t *testing.T) {
	t.Run("should reject invalid input with no request and no state change", func(t *testing.T) {
		agent := newMockAgent()
		r, tracker, _ := newTestRunner(t, agent, nil)

		cases := []model.JobConfig{
			{TeamName: "X", TeamLeader: "Y"},                                        // missing repo
			{RepoURL: "https://github.com/a/b", TeamLeader: "Y"},                    // missing team
			{RepoURL: "https://github.com/a/b", TeamName: "X"},                      // missing leader
			{RepoURL: "   ", TeamName: " ", TeamLeader: "\t"},                       // whitespace only
			{RepoURL: "https://github.com/a/b", TeamName: "X", TeamLeader: "Y", RetryLimit: 99}, // bad retry limit
		}
		for _, cfg := range cases {
			if _, err := r.Submit(context.Background(), cfg); !errors.Is(err, domain.ErrInvalidArgument) {
				t.Fatalf("expected ErrInvalidArgument for %+v, got: %v", cfg, err)
			}
		}
		if agent.CreateCalls() != 0 {
			t.Fatalf("invalid submissions issued %d create requests", agent.CreateCalls())
		}
		if got := tracker.Snapshot().Status; got != model.JobStatusIdle {
			t.Fatalf("status changed to %q on invalid submit", got)
		}
	})

	t.Run("should start running with cleared result and zero elapsed", func(t *testing.T) {
		agent := newMockAgent()
		r, tracker, _ := newTestRunner(t, agent, nil)

		jobID, err := r.Submit(context.Background(), validConfig())
		if err != nil {
			t.Fatalf("submit: %v", err)
		}
		if jobID != "job-1" {
			t.Fatalf("expected job-1, got %q", jobID)
		}
		snap := tracker.Snapshot()
		if snap.Status != model.JobStatusRunning || snap.ElapsedSeconds != 0 || snap.Result != nil {
			t.Fatalf("unexpected post-submit state: %+v", snap)
		}
		if snap.JobID != "job-1" {
			t.Fatalf("job id not stored, got %q", snap.JobID)
		}
		if agent.CreateCalls() != 1 {
			t.Fatalf("expected exactly one create request, got %d", agent.CreateCalls())
		}
	})

	t.Run("should pass trimmed fields and the default retry limit to the agent", func(t *testing.T) {
		agent := newMockAgent()
		var got model.JobConfig
		agent.CreateFunc = func(ctx context.Context, cfg model.JobConfig) (string, error) {
			got = cfg
			return "abc", nil
		}
		r, _, _ := newTestRunner(t, agent, nil)

		if _, err := r.Submit(context.Background(), model.JobConfig{
			RepoURL:    " https://github.com/a/b ",
			TeamName:   " X",
			TeamLeader: "Y ",
		}); err != nil {
			t.Fatalf("submit: %v", err)
		}
		if got.RepoURL != "https://github.com/a/b" || got.TeamName != "X" || got.TeamLeader != "Y" {
			t.Fatalf("fields not trimmed: %+v", got)
		}
		if got.RetryLimit != model.DefaultRetryLimit {
			t.Fatalf("expected default retry limit, got %d", got.RetryLimit)
		}
		if got.GithubToken != "" {
			t.Fatalf("unexpected token %q", got.GithubToken)
		}
	})

	t.Run("should refuse a second submission while a run is live", func(t *testing.T) {
		agent := newMockAgent()
		r, _, _ := newTestRunner(t, agent, nil)

		if _, err := r.Submit(context.Background(), validConfig()); err != nil {
			t.Fatalf("first submit: %v", err)
		}
		if _, err := r.Submit(context.Background(), validConfig()); !errors.Is(err, domain.ErrRunActive) {
			t.Fatalf("expected ErrRunActive, got: %v", err)
		}
		if agent.CreateCalls() != 1 {
			t.Fatalf("second submit reached the agent: %d calls", agent.CreateCalls())
		}
	})

	t.Run("should mark the run failed and start no timers when creation fails", func(t *testing.T) {
		agent := newMockAgent()
		agent.CreateFunc = func(ctx context.Context, cfg model.JobConfig) (string, error) {
			return "", errors.New("connection refused")
		}
		r, tracker, fc := newTestRunner(t, agent, nil)

		if _, err := r.Submit(context.Background(), validConfig()); err == nil {
			t.Fatal("expected an error")
		}
		snap := tracker.Snapshot()
		if snap.Status != model.JobStatusFailed {
			t.Fatalf("expected failed, got %q", snap.Status)
		}
		if snap.Result == nil || snap.Result.Error == "" {
			t.Fatalf("expected error-shaped result, got %+v", snap.Result)
		}
		if fc.HasWaiters() {
			t.Fatal("timers were started for a failed submission")
		}
		fc.Step(10 * pollEvery)
		time.Sleep(20 * time.Millisecond)
		if agent.FetchCalls() != 0 {
			t.Fatalf("polling started after failed creation: %d fetches", agent.FetchCalls())
		}
	})
}

func TestRunner_PollLoop(t *testing.T) {
	t.Run("should apply polled results last-write-wins", func(t *testing.T) {
		agent := newMockAgent()
		var progress int32
		agent.FetchFunc = func(ctx context.Context, jobID string) (*model.RunResult, error) {
			return &model.RunResult{
				Status:   model.RunStatusRunning,
				Progress: int(atomic.AddInt32(&progress, 10)),
			}, nil
		}
		r, tracker, fc := newTestRunner(t, agent, nil)

		if _, err := r.Submit(context.Background(), validConfig()); err != nil {
			t.Fatalf("submit: %v", err)
		}
		stepUntil(t, fc, pollEvery, func() bool {
			snap := tracker.Snapshot()
			return snap.Result != nil && snap.Result.Progress >= 20
		}, "poll results never applied")

		if got := tracker.Snapshot().Status; got != model.JobStatusRunning {
			t.Fatalf("expected still running, got %q", got)
		}
	})

	t.Run("should skip a failed tick and keep polling", func(t *testing.T) {
		agent := newMockAgent()
		var calls int32
		agent.FetchFunc = func(ctx context.Context, jobID string) (*model.RunResult, error) {
			if atomic.AddInt32(&calls, 1) <= 2 {
				return nil, errors.New("transient network error")
			}
			return &model.RunResult{Status: model.RunStatusRunning, Progress: 42}, nil
		}
		r, tracker, fc := newTestRunner(t, agent, nil)

		if _, err := r.Submit(context.Background(), validConfig()); err != nil {
			t.Fatalf("submit: %v", err)
		}
		stepUntil(t, fc, pollEvery, func() bool {
			snap := tracker.Snapshot()
			return snap.Result != nil && snap.Result.Progress == 42
		}, "loop did not survive failed ticks")

		if agent.FetchCalls() < 3 {
			t.Fatalf("expected at least 3 fetches, got %d", agent.FetchCalls())
		}
		if got := tracker.Snapshot().Status; got != model.JobStatusRunning {
			t.Fatalf("transient errors must not surface: status %q", got)
		}
	})

	t.Run("should stop both timers and archive the run on a terminal payload", func(t *testing.T) {
		agent := newMockAgent()
		var calls int32
		agent.FetchFunc = func(ctx context.Context, jobID string) (*model.RunResult, error) {
			if atomic.AddInt32(&calls, 1) == 1 {
				return &model.RunResult{Status: model.RunStatusRunning, Progress: 42}, nil
			}
			return &model.RunResult{
				Repository: "https://github.com/a/b",
				Team:       model.TeamInfo{Name: "X", Leader: "Y"},
				Status:     model.RunStatusCompleted,
				Progress:   100,
				Score:      model.ScoreBreakdown{FinalScore: 87},
			}, nil
		}
		archive := newMemArchive()
		r, tracker, fc := newTestRunner(t, agent, archive)

		if _, err := r.Submit(context.Background(), validConfig()); err != nil {
			t.Fatalf("submit: %v", err)
		}
		stepUntil(t, fc, pollEvery, func() bool {
			return tracker.Snapshot().Status == model.JobStatusCompleted
		}, "run never completed")

		snap := tracker.Snapshot()
		if snap.Result == nil || snap.Result.Progress != 100 {
			t.Fatalf("final result not stored: %+v", snap.Result)
		}

		// The archive write is the last thing the poll loop does, so once it
		// lands the teardown has happened. The fake ticker cannot observe
		// cancellation directly; assert the effects instead: extra ticks must
		// move neither the fetch count nor the elapsed counter.
		eventually(t, func() bool { return len(archive.Saved()) == 1 }, "terminal run was not archived")
		fetched := agent.FetchCalls()
		frozen := tracker.Snapshot().ElapsedSeconds
		fc.Step(10 * pollEvery)
		time.Sleep(20 * time.Millisecond)
		if agent.FetchCalls() != fetched {
			t.Fatalf("polling continued after terminal status: %d -> %d", fetched, agent.FetchCalls())
		}
		if got := tracker.Snapshot().ElapsedSeconds; got != frozen {
			t.Fatalf("elapsed kept counting after terminal status: %d -> %d", frozen, got)
		}

		saved := archive.Saved()[0]
		if saved.JobID != "job-1" || saved.Status != model.JobStatusCompleted || saved.FinalScore != 87 {
			t.Fatalf("archived run mismatch: %+v", saved)
		}
		if saved.TeamName != "X" || saved.TeamLeader != "Y" {
			t.Fatalf("archived team mismatch: %+v", saved)
		}
	})

	t.Run("should freeze the elapsed counter when the run fails remotely", func(t *testing.T) {
		agent := newMockAgent()
		var terminal atomic.Bool
		agent.FetchFunc = func(ctx context.Context, jobID string) (*model.RunResult, error) {
			if terminal.Load() {
				return &model.RunResult{Status: model.RunStatusFailed, Error: "retry limit exhausted"}, nil
			}
			return &model.RunResult{Status: model.RunStatusRunning}, nil
		}
		r, tracker, fc := newTestRunner(t, agent, nil)

		if _, err := r.Submit(context.Background(), validConfig()); err != nil {
			t.Fatalf("submit: %v", err)
		}

		// Accumulate a few elapsed seconds, one step per expected tick.
		for i := 1; i <= 3; i++ {
			want := i
			stepUntil(t, fc, time.Second, func() bool {
				return tracker.Snapshot().ElapsedSeconds >= want
			}, "elapsed tick missed")
		}

		terminal.Store(true)
		stepUntil(t, fc, pollEvery, func() bool {
			return tracker.Snapshot().Status == model.JobStatusFailed
		}, "run never failed")

		frozen := tracker.Snapshot().ElapsedSeconds
		fc.Step(5 * time.Second)
		time.Sleep(20 * time.Millisecond)
		if got := tracker.Snapshot().ElapsedSeconds; got != frozen {
			t.Fatalf("elapsed kept counting after terminal status: %d -> %d", frozen, got)
		}
	})
}

func TestRunner_Reset(t *testing.T) {
	t.Run("should cancel timers and restore idle state", func(t *testing.T) {
		agent := newMockAgent()
		r, tracker, fc := newTestRunner(t, agent, nil)

		if _, err := r.Submit(context.Background(), validConfig()); err != nil {
			t.Fatalf("submit: %v", err)
		}
		stepUntil(t, fc, pollEvery, func() bool { return agent.FetchCalls() >= 1 }, "polling never started")

		r.Reset()
		// Let the cancelled loops drain before counting fetches.
		time.Sleep(20 * time.Millisecond)

		snap := tracker.Snapshot()
		if snap.Status != model.JobStatusIdle || snap.JobID != "" || snap.Result != nil || snap.ElapsedSeconds != 0 {
			t.Fatalf("reset left state behind: %+v", snap)
		}

		fetched := agent.FetchCalls()
		fc.Step(10 * pollEvery)
		time.Sleep(20 * time.Millisecond)
		if agent.FetchCalls() != fetched {
			t.Fatal("polling survived reset")
		}
	})

	t.Run("should be safe with no active run", func(t *testing.T) {
		agent := newMockAgent()
		r, tracker, _ := newTestRunner(t, agent, nil)
		r.Reset()
		r.Reset()
		if got := tracker.Snapshot().Status; got != model.JobStatusIdle {
			t.Fatalf("expected idle, got %q", got)
		}
	})

	t.Run("should allow a fresh submission after reset with no cross-run leakage", func(t *testing.T) {
		agent := newMockAgent()
		var job atomic.Int32
		agent.CreateFunc = func(ctx context.Context, cfg model.JobConfig) (string, error) {
			if job.Add(1) == 1 {
				return "job-1", nil
			}
			return "job-2", nil
		}
		r, tracker, fc := newTestRunner(t, agent, nil)

		if _, err := r.Submit(context.Background(), validConfig()); err != nil {
			t.Fatalf("first submit: %v", err)
		}
		r.Reset()

		jobID, err := r.Submit(context.Background(), validConfig())
		if err != nil {
			t.Fatalf("second submit: %v", err)
		}
		if jobID != "job-2" {
			t.Fatalf("expected job-2, got %q", jobID)
		}
		stepUntil(t, fc, pollEvery, func() bool {
			return tracker.Snapshot().Result != nil
		}, "second run never polled")
		if got := tracker.Snapshot().JobID; got != "job-2" {
			t.Fatalf("state from prior run leaked: job id %q", got)
		}
	})

	t.Run("should keep a new run's timers while the previous run is still archiving", func(t *testing.T) {
		agent := newMockAgent()
		var job atomic.Int32
		agent.CreateFunc = func(ctx context.Context, cfg model.JobConfig) (string, error) {
			if job.Add(1) == 1 {
				return "job-1", nil
			}
			return "job-2", nil
		}
		var secondFetches atomic.Int32
		agent.FetchFunc = func(ctx context.Context, jobID string) (*model.RunResult, error) {
			if jobID == "job-1" {
				return &model.RunResult{Status: model.RunStatusCompleted, Progress: 100}, nil
			}
			secondFetches.Add(1)
			return &model.RunResult{Status: model.RunStatusRunning, Progress: 10}, nil
		}

		archive := newMemArchive()
		entered := make(chan struct{})
		release := make(chan struct{})
		archive.SaveFunc = func(ctx context.Context, run *model.ArchivedRun) error {
			if run.JobID == "job-1" {
				close(entered)
				<-release
			}
			return nil
		}
		r, tracker, fc := newTestRunner(t, agent, archive)
		var releaseOnce sync.Once
		releaseArchive := func() { releaseOnce.Do(func() { close(release) }) }
		t.Cleanup(releaseArchive) // Close waits on the loop; never leave it blocked

		if _, err := r.Submit(context.Background(), validConfig()); err != nil {
			t.Fatalf("first submit: %v", err)
		}
		stepUntil(t, fc, pollEvery, func() bool {
			return tracker.Snapshot().Status == model.JobStatusCompleted
		}, "first run never completed")
		select {
		case <-entered:
		case <-time.After(3 * time.Second):
			t.Fatal("archive write never started")
		}

		// Reset and resubmit while the first run's loop is stuck in the
		// archive write. Its late return must not tear down the new timers.
		r.Reset()
		jobID, err := r.Submit(context.Background(), validConfig())
		if err != nil {
			t.Fatalf("second submit: %v", err)
		}
		if jobID != "job-2" {
			t.Fatalf("expected job-2, got %q", jobID)
		}
		releaseArchive()

		stepUntil(t, fc, pollEvery, func() bool {
			return secondFetches.Load() >= 2
		}, "second run stopped being polled")
		snap := tracker.Snapshot()
		if snap.Status != model.JobStatusRunning || snap.JobID != "job-2" {
			t.Fatalf("second run stranded: status %q job id %q", snap.Status, snap.JobID)
		}
		if snap.Result == nil || snap.Result.Progress != 10 {
			t.Fatalf("second run results not applied: %+v", snap.Result)
		}
	})
}
