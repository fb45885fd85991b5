package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/Master-Gamer-glitch/HelixHeal/internal/config"
	"github.com/Master-Gamer-glitch/HelixHeal/internal/domain/model"
	"github.com/Master-Gamer-glitch/HelixHeal/internal/infra/adapters/agentapi"
	"github.com/Master-Gamer-glitch/HelixHeal/internal/infra/logging"
	"github.com/Master-Gamer-glitch/HelixHeal/internal/infra/sched"
	"github.com/Master-Gamer-glitch/HelixHeal/internal/usecase"
)

// watch submits a single run from the command line and follows it to a
// terminal status, printing progress as the dashboard would render it.
func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	repoURL := flag.String("repo", "", "repository URL to fix")
	team := flag.String("team", "", "team name")
	leader := flag.String("leader", "", "team leader")
	token := flag.String("token", "", "GitHub token (optional)")
	retries := flag.Int("retries", model.DefaultRetryLimit, "max fix iterations (1-10)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, true)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.Log, true)

	agent, err := agentapi.NewClient(cfg.Agent.BaseURL, cfg.Agent.RequestTimeout, logger)
	if err != nil {
		log.Fatalf("agent client: %v", err)
	}

	tracker := usecase.NewJobTracker()
	runner := sched.NewRunner(tracker, agent, nil, nil, nil, cfg.Agent.PollInterval, logger)
	defer runner.Close()

	jobID, err := runner.Submit(context.Background(), model.JobConfig{
		RepoURL:     *repoURL,
		TeamName:    *team,
		TeamLeader:  *leader,
		GithubToken: *token,
		RetryLimit:  *retries,
	})
	if err != nil {
		log.Fatalf("submit: %v", err)
	}
	fmt.Printf("job %s submitted, polling %s every %s\n", jobID, cfg.Agent.BaseURL, cfg.Agent.PollInterval)

	lastStep := ""
	for {
		time.Sleep(time.Second)
		snap := tracker.Snapshot()
		if snap.Result != nil && snap.Result.CurrentStep != lastStep {
			lastStep = snap.Result.CurrentStep
			fmt.Printf("[%4ds] %3d%%  %s\n", snap.ElapsedSeconds, snap.Result.Progress, lastStep)
		}
		if snap.Status.Terminal() {
			printOutcome(snap)
			if snap.Status == model.JobStatusFailed {
				os.Exit(1)
			}
			return
		}
	}
}

func printOutcome(snap usecase.Snapshot) {
	fmt.Printf("run %s after %ds\n", snap.Status, snap.ElapsedSeconds)
	res := snap.Result
	if res == nil {
		return
	}
	if res.Error != "" {
		fmt.Printf("error: %s\n", res.Error)
	}
	fmt.Printf("score: base=%d speed=%+d efficiency=%+d ci=%+d final=%d\n",
		res.Score.BaseScore, res.Score.SpeedBonus, -res.Score.EfficiencyPenalty,
		-res.Score.CIPenalty, res.Score.FinalScore)
	for _, fix := range res.Fixes {
		line := ""
		if fix.Line != nil {
			line = fmt.Sprintf(":%d", *fix.Line)
		}
		fmt.Printf("  fix %s%s [%s] %s\n", fix.File, line, fix.BugType, fix.Description)
	}
	for _, tp := range res.CITimeline {
		fmt.Printf("  ci #%d %s (%d failures)\n", tp.Iteration, tp.Status, len(tp.Failures))
	}
}
