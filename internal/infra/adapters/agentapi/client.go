package agentapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Master-Gamer-glitch/HelixHeal/internal/domain/model"
	"github.com/Master-Gamer-glitch/HelixHeal/internal/domain/ports/adapter"
	"github.com/Master-Gamer-glitch/HelixHeal/internal/infra/logging"
)

var _ adapter.AgentService = (*Client)(nil)

// Client talks to the remote code-fixing agent service over its REST API.
// Every method issues exactly one request; retry policy belongs to the caller
// (and for job creation there is none, by contract).
type Client struct {
	baseURL string
	client  *http.Client
	log     *zerolog.Logger
}

func NewClient(baseURL string, timeout time.Duration, logger *zerolog.Logger) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if _, err := url.Parse(baseURL); err != nil || baseURL == "" {
		return nil, fmt.Errorf("invalid agent base url %q", baseURL)
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	cl := logger.With().Str("component", "AgentClient").Logger()
	return &Client{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		log:     &cl,
	}, nil
}

type createRequest struct {
	RepoURL     string `json:"repo_url"`
	TeamName    string `json:"team_name"`
	TeamLeader  string `json:"team_leader"`
	GithubToken string `json:"github_token,omitempty"`
	RetryLimit  int    `json:"retry_limit"`
}

type createResponse struct {
	Status model.RunStatus `json:"status"`
	JobID  string          `json:"job_id"`
}

// CreateJob issues POST /run-agent and returns the job id to poll. The token
// field is omitted from the body when empty.
func (c *Client) CreateJob(ctx context.Context, cfg model.JobConfig) (string, error) {
	body := createRequest{
		RepoURL:     cfg.RepoURL,
		TeamName:    cfg.TeamName,
		TeamLeader:  cfg.TeamLeader,
		GithubToken: cfg.GithubToken,
		RetryLimit:  cfg.RetryLimit,
	}
	b, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal create request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/run-agent", bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		logging.With(ctx, c.log).Warn().Str("status", resp.Status).Str("repo", cfg.RepoURL).Msg("create job rejected")
		return "", fmt.Errorf("create job: agent returned %s", resp.Status)
	}
	var out createResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		logging.With(ctx, c.log).Warn().Err(err).Msg("create response malformed")
		return "", fmt.Errorf("decode create response: %w", err)
	}
	if out.JobID == "" {
		return "", fmt.Errorf("create job: empty job_id in response")
	}
	return out.JobID, nil
}

// FetchStatus issues GET /status/{job_id} and decodes the run result payload.
func (c *Client) FetchStatus(ctx context.Context, jobID string) (*model.RunResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/status/"+url.PathEscape(jobID), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch status: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		logging.With(ctx, c.log).Warn().Str("status", resp.Status).Msg("status fetch rejected")
		return nil, fmt.Errorf("fetch status: agent returned %s", resp.Status)
	}
	var res model.RunResult
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		logging.With(ctx, c.log).Warn().Err(err).Msg("status response malformed")
		return nil, fmt.Errorf("decode status response: %w", err)
	}
	return &res, nil
}

// Health issues GET /health. Used as a startup reachability check; callers log
// the outcome and carry on either way.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("agent health: %s", resp.Status)
	}
	return nil
}
