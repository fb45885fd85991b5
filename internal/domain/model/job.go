package model

import (
	"net/url"
	"strings"
	"time"
)

// JobStatus is the dashboard-side lifecycle status of the tracked run.
type JobStatus string

const (
	JobStatusIdle      JobStatus = "idle"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Terminal reports whether no further transitions are possible without a reset.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// RunStatus is the status vocabulary of the remote agent service.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "RUNNING"
	RunStatusCompleted RunStatus = "COMPLETED"
	RunStatusFailed    RunStatus = "FAILED"
)

// Terminal reports whether the remote service will never change this status again.
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// Normalize maps a remote status onto the dashboard vocabulary.
func (s RunStatus) Normalize() JobStatus {
	switch s {
	case RunStatusCompleted:
		return JobStatusCompleted
	case RunStatusFailed:
		return JobStatusFailed
	default:
		return JobStatusRunning
	}
}

const (
	DefaultRetryLimit = 5
	MinRetryLimit     = 1
	MaxRetryLimit     = 10
)

// JobConfig carries the user-supplied submission form fields.
type JobConfig struct {
	RepoURL     string `json:"repo_url"`
	TeamName    string `json:"team_name"`
	TeamLeader  string `json:"team_leader"`
	GithubToken string `json:"github_token,omitempty"`
	RetryLimit  int    `json:"retry_limit"`
}

// Trimmed returns a copy with surrounding whitespace removed from every field
// and the retry limit defaulted when unset.
func (c JobConfig) Trimmed() JobConfig {
	out := JobConfig{
		RepoURL:     strings.TrimSpace(c.RepoURL),
		TeamName:    strings.TrimSpace(c.TeamName),
		TeamLeader:  strings.TrimSpace(c.TeamLeader),
		GithubToken: strings.TrimSpace(c.GithubToken),
		RetryLimit:  c.RetryLimit,
	}
	if out.RetryLimit == 0 {
		out.RetryLimit = DefaultRetryLimit
	}
	return out
}

// Validate checks the trimmed form fields the way the submission path requires:
// repo URL present and URL-shaped, team name and leader present, retry limit in
// bounds. It does not mutate the config.
func (c JobConfig) Validate() bool {
	if c.TeamName == "" || c.TeamLeader == "" {
		return false
	}
	u, err := url.Parse(c.RepoURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return false
	}
	return c.RetryLimit >= MinRetryLimit && c.RetryLimit <= MaxRetryLimit
}

// BugType classifies a detected bug, as reported by the remote classifier.
type BugType string

const (
	BugTypeLinting     BugType = "LINTING"
	BugTypeSyntax      BugType = "SYNTAX"
	BugTypeLogic       BugType = "LOGIC"
	BugTypeTypeError   BugType = "TYPE_ERROR"
	BugTypeImport      BugType = "IMPORT"
	BugTypeIndentation BugType = "INDENTATION"
	BugTypeUnknown     BugType = "UNKNOWN"
)

// CIStatus is the per-iteration CI verdict.
type CIStatus string

const (
	CIStatusPassed  CIStatus = "PASSED"
	CIStatusFailed  CIStatus = "FAILED"
	CIStatusPending CIStatus = "PENDING"
)

type TeamInfo struct {
	Name   string `json:"name"`
	Leader string `json:"leader"`
}

type ScoreBreakdown struct {
	BaseScore         int `json:"base_score"`
	SpeedBonus        int `json:"speed_bonus"`
	EfficiencyPenalty int `json:"efficiency_penalty"`
	CIPenalty         int `json:"ci_penalty"`
	FinalScore        int `json:"final_score"`
}

type FixProposal struct {
	File          string  `json:"file"`
	Line          *int    `json:"line,omitempty"`
	BugType       BugType `json:"bug_type"`
	OriginalCode  string  `json:"original_code,omitempty"`
	FixedCode     string  `json:"fixed_code,omitempty"`
	Description   string  `json:"description"`
	CommitMessage string  `json:"commit_message"`
	Status        string  `json:"status"`
}

type CITimepoint struct {
	Iteration    int      `json:"iteration"`
	Status       CIStatus `json:"status"`
	Timestamp    string   `json:"timestamp"`
	Failures     []string `json:"failures"`
	PostStatus   CIStatus `json:"post_status,omitempty"`
	PostFailures []string `json:"post_failures,omitempty"`
}

// RunResult is the status payload polled from the remote agent service. It is
// stored last-write-wins: every applied poll replaces the previous value whole.
type RunResult struct {
	Repository    string                 `json:"repository"`
	Team          TeamInfo               `json:"team"`
	BranchCreated string                 `json:"branch_created"`
	Summary       map[string]interface{} `json:"summary,omitempty"`
	Score         ScoreBreakdown         `json:"score"`
	Fixes         []FixProposal          `json:"fixes"`
	CITimeline    []CITimepoint          `json:"ci_timeline"`
	Status        RunStatus              `json:"status"`
	Progress      int                    `json:"progress"`
	CurrentStep   string                 `json:"current_step"`
	Error         string                 `json:"error,omitempty"`
}

// ArchivedRun is a terminal run persisted for the history and leaderboard views.
type ArchivedRun struct {
	ID             string    `json:"id"`
	JobID          string    `json:"job_id"`
	Repository     string    `json:"repository"`
	TeamName       string    `json:"team_name"`
	TeamLeader     string    `json:"team_leader"`
	Branch         string    `json:"branch"`
	Status         JobStatus `json:"status"`
	FinalScore     int       `json:"final_score"`
	Progress       int       `json:"progress"`
	ElapsedSeconds int       `json:"elapsed_seconds"`
	Result         RunResult `json:"result"`
	FinishedAt     time.Time `json:"finished_at"`
}

// LeaderboardEntry is one ranked row: a team's best archived run.
type LeaderboardEntry struct {
	Rank       int    `json:"rank"`
	TeamName   string `json:"team_name"`
	TeamLeader string `json:"team_leader"`
	BestScore  int    `json:"best_score"`
	Runs       int    `json:"runs"`
}
