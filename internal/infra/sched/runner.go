package sched

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"k8s.io/utils/clock"

	"github.com/Master-Gamer-glitch/HelixHeal/internal/domain"
	"github.com/Master-Gamer-glitch/HelixHeal/internal/domain/model"
	"github.com/Master-Gamer-glitch/HelixHeal/internal/domain/ports/adapter"
	"github.com/Master-Gamer-glitch/HelixHeal/internal/domain/ports/repository"
	"github.com/Master-Gamer-glitch/HelixHeal/internal/infra/logging"
	"github.com/Master-Gamer-glitch/HelixHeal/internal/infra/metrics"
	"github.com/Master-Gamer-glitch/HelixHeal/internal/usecase"
)

const (
	DefaultPollInterval = 2 * time.Second
	elapsedInterval     = time.Second
	archiveTimeout      = 5 * time.Second
)

// Runner drives the run lifecycle around the JobTracker: it validates and
// submits runs, owns the poll loop and the elapsed ticker as explicit
// cancellation tokens, and tears both down on terminal status or reset.
// At most one poll loop and one elapsed ticker are live at any time.
type Runner struct {
	tracker   *usecase.JobTracker
	agent     adapter.AgentService
	archive   repository.RunArchive    // nil disables archiving
	cache     repository.SnapshotCache // nil disables snapshot caching
	clock     clock.WithTicker
	pollEvery time.Duration
	log       *zerolog.Logger

	mu         sync.Mutex
	gen        uint64 // bumped per timer start; guards late teardown
	cancelPoll context.CancelFunc
	cancelTick context.CancelFunc
	wg         sync.WaitGroup
}

func NewRunner(
	tracker *usecase.JobTracker,
	agent adapter.AgentService,
	archive repository.RunArchive,
	cache repository.SnapshotCache,
	clk clock.WithTicker,
	pollEvery time.Duration,
	logger *zerolog.Logger,
) *Runner {
	if clk == nil {
		clk = clock.RealClock{}
	}
	if pollEvery <= 0 {
		pollEvery = DefaultPollInterval
	}
	runLog := logger.With().Str("component", "Runner").Logger()
	return &Runner{
		tracker:   tracker,
		agent:     agent,
		archive:   archive,
		cache:     cache,
		clock:     clk,
		pollEvery: pollEvery,
		log:       &runLog,
	}
}

// Submit validates the form config and starts a new run. Invalid input is
// rejected before any state change or network call. While a run is live (or
// terminal but not yet reset) submission is refused. On a successful creation
// response the poll loop and elapsed ticker are started; on a failed creation
// the run is marked failed and no timers start.
func (r *Runner) Submit(ctx context.Context, cfg model.JobConfig) (string, error) {
	cfg = cfg.Trimmed()
	if !cfg.Validate() {
		metrics.IncSubmission("invalid")
		return "", domain.ErrInvalidArgument
	}

	runID, err := r.tracker.Begin()
	if err != nil {
		metrics.IncSubmission("busy")
		return "", err
	}
	r.tracker.SetConfig(cfg)
	ctx = logging.WithRunID(ctx, runID)

	jobID, err := r.agent.CreateJob(ctx, cfg)
	if err != nil {
		metrics.IncSubmission("agent_error")
		if failErr := r.tracker.FailRun(runID, err); failErr != nil {
			// The run was reset while the request was in flight; nothing to mark.
			r.log.Debug().Str("run_id", runID).Msg("submission superseded before failure could be recorded")
		}
		return "", fmt.Errorf("submit run: %w", err)
	}

	if err := r.tracker.AttachJob(runID, jobID); err != nil {
		// Reset won the race: discard the response, start nothing.
		r.log.Warn().Str("job_id", jobID).Msg("submission superseded by reset; discarding created job")
		return "", err
	}

	r.startTimers(runID, jobID)
	metrics.IncSubmission("accepted")
	r.log.Info().Str("job_id", jobID).Str("repo", cfg.RepoURL).Str("team", cfg.TeamName).Msg("run submitted")
	return jobID, nil
}

// Reset restores the tracker to its initial state and cancels both timers.
// The tracker clears first so that a submission racing with the reset either
// observes the cleared state and starts nothing, or starts timers that the
// cancellation below tears down. Safe to call in any state.
func (r *Runner) Reset() {
	r.tracker.Reset()
	r.stop()
	r.log.Info().Msg("run state reset")
}

// Snapshot exposes the tracker state for the render layer.
func (r *Runner) Snapshot() usecase.Snapshot {
	return r.tracker.Snapshot()
}

// Close stops any live timers and waits for their goroutines to drain.
func (r *Runner) Close() {
	r.stop()
	r.wg.Wait()
}

func (r *Runner) startTimers(runID, jobID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// A reset can land between the creation response and this point; a run
	// that is no longer current gets no timers.
	snap := r.tracker.Snapshot()
	if snap.RunID != runID || snap.Status != model.JobStatusRunning {
		r.log.Warn().Str("job_id", jobID).Msg("run superseded before timers could start")
		return
	}

	r.stopLocked()
	r.gen++

	pollCtx, cancelPoll := context.WithCancel(context.Background())
	tickCtx, cancelTick := context.WithCancel(context.Background())
	r.cancelPoll = cancelPoll
	r.cancelTick = cancelTick

	r.wg.Add(2)
	go r.pollLoop(pollCtx, r.gen, runID, jobID)
	go r.elapsedLoop(tickCtx, runID)
}

func (r *Runner) stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopLocked()
}

// stopGen cancels the timers only while they still belong to generation gen.
// A poll loop finishing late (a blocking archive write, a stale response) must
// never tear down a newer run's timers.
func (r *Runner) stopGen(gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gen != gen {
		return
	}
	r.stopLocked()
}

func (r *Runner) stopLocked() {
	if r.cancelPoll != nil {
		r.cancelPoll()
		r.cancelPoll = nil
	}
	if r.cancelTick != nil {
		r.cancelTick()
		r.cancelTick = nil
	}
}

// pollLoop fetches the run status on a fixed cadence until a terminal payload
// is observed or the loop is cancelled. A failed tick is skipped and polling
// continues on the next one; there is no backoff.
func (r *Runner) pollLoop(ctx context.Context, gen uint64, runID, jobID string) {
	defer r.wg.Done()
	ctx = logging.WithJobID(logging.WithRunID(ctx, runID), jobID)
	log := r.log.With().Str("job_id", jobID).Str("run_id", runID).Logger()
	log.Info().Dur("interval", r.pollEvery).Msg("poll loop started")

	ticker := r.clock.NewTicker(r.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Msg("poll loop cancelled")
			return
		case <-ticker.C():
			start := r.clock.Now()
			res, err := r.agent.FetchStatus(ctx, jobID)
			metrics.ObservePollLatency(float64(r.clock.Since(start).Milliseconds()), err == nil)
			if err != nil {
				metrics.IncPollTick("error")
				log.Warn().Err(err).Msg("status fetch failed; retrying next tick")
				continue
			}

			terminal, err := r.tracker.ApplyResult(runID, res)
			if err != nil {
				metrics.IncPollTick("stale")
				log.Debug().Msg("discarding stale poll response")
				r.stopGen(gen)
				return
			}
			metrics.IncPollTick("ok")
			r.cacheSnapshot(jobID, res)

			if terminal {
				snap := r.tracker.Snapshot()
				status := res.Status.Normalize()
				// Cancel both timers before the archive write: it can block,
				// and a reset plus resubmit during that window must not lose
				// the new run's timers to a late teardown.
				r.stopGen(gen)
				metrics.IncRunTerminal(string(status), snap.ElapsedSeconds)
				log.Info().
					Str("status", string(status)).
					Int("elapsed_seconds", snap.ElapsedSeconds).
					Int("final_score", res.Score.FinalScore).
					Msg("run reached terminal status")
				r.archiveRun(jobID, res, snap.ElapsedSeconds)
				return
			}
		}
	}
}

// elapsedLoop increments the elapsed counter once per second. It has no
// awareness of the run outcome; it is stopped externally by the poll loop on
// terminal status or by Reset, and the counter freezes at its last value.
func (r *Runner) elapsedLoop(ctx context.Context, runID string) {
	defer r.wg.Done()
	ticker := r.clock.NewTicker(elapsedInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			r.tracker.TickElapsed(runID)
		}
	}
}

func (r *Runner) cacheSnapshot(jobID string, res *model.RunResult) {
	if r.cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
	defer cancel()
	if err := r.cache.StoreSnapshot(ctx, jobID, res); err != nil {
		r.log.Warn().Err(err).Str("job_id", jobID).Msg("snapshot cache write failed")
	}
}

func (r *Runner) archiveRun(jobID string, res *model.RunResult, elapsedSeconds int) {
	if r.archive == nil {
		return
	}
	run := &model.ArchivedRun{
		ID:             uuid.NewString(),
		JobID:          jobID,
		Repository:     res.Repository,
		TeamName:       res.Team.Name,
		TeamLeader:     res.Team.Leader,
		Branch:         res.BranchCreated,
		Status:         res.Status.Normalize(),
		FinalScore:     res.Score.FinalScore,
		Progress:       res.Progress,
		ElapsedSeconds: elapsedSeconds,
		Result:         *res,
		FinishedAt:     r.clock.Now().UTC(),
	}
	ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
	defer cancel()
	if err := r.archive.Save(ctx, run); err != nil {
		r.log.Error().Err(err).Str("job_id", jobID).Msg("failed to archive run")
	}
}
