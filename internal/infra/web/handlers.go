package web

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Master-Gamer-glitch/HelixHeal/internal/domain"
	"github.com/Master-Gamer-glitch/HelixHeal/internal/domain/model"
)

type submitRequest struct {
	RepoURL     string `json:"repo_url"`
	TeamName    string `json:"team_name"`
	TeamLeader  string `json:"team_leader"`
	GithubToken string `json:"github_token,omitempty"`
	RetryLimit  int    `json:"retry_limit,omitempty"`
}

type submitResponse struct {
	JobID  string          `json:"job_id"`
	Status model.JobStatus `json:"status"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	jobID, err := s.runner.Submit(r.Context(), model.JobConfig{
		RepoURL:     req.RepoURL,
		TeamName:    req.TeamName,
		TeamLeader:  req.TeamLeader,
		GithubToken: req.GithubToken,
		RetryLimit:  req.RetryLimit,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidArgument):
			http.Error(w, "repo_url, team_name and team_leader are required", http.StatusBadRequest)
		case errors.Is(err, domain.ErrRunActive), errors.Is(err, domain.ErrResetRequired):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			// Create request failed; the run is already marked failed.
			http.Error(w, "agent service rejected the run", http.StatusBadGateway)
		}
		return
	}

	writeJSON(w, http.StatusAccepted, submitResponse{JobID: jobID, Status: model.JobStatusRunning})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.runner.Snapshot())
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.runner.Reset()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	ctx := r.Context()

	if s.cache != nil {
		if res, err := s.cache.GetSnapshot(ctx, jobID); err == nil {
			writeJSON(w, http.StatusOK, res)
			return
		}
	}
	if s.archive == nil {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	run, err := s.archive.FindByJobID(ctx, jobID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			http.Error(w, "Not found", http.StatusNotFound)
			return
		}
		s.log.Error().Err(err).Str("job_id", jobID).Msg("archive lookup failed")
		http.Error(w, "Failed to load run", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, run.Result)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		http.Error(w, domain.ErrArchiveDisabled.Error(), http.StatusServiceUnavailable)
		return
	}
	runs, err := s.archive.ListRecent(r.Context(), queryLimit(r, 20))
	if err != nil {
		s.log.Error().Err(err).Msg("history query failed")
		http.Error(w, "Failed to load history", http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []model.ArchivedRun{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		http.Error(w, domain.ErrArchiveDisabled.Error(), http.StatusServiceUnavailable)
		return
	}
	entries, err := s.archive.Leaderboard(r.Context(), queryLimit(r, 10))
	if err != nil {
		s.log.Error().Err(err).Msg("leaderboard query failed")
		http.Error(w, "Failed to load leaderboard", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []model.LeaderboardEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleDeleteRun(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		http.Error(w, domain.ErrArchiveDisabled.Error(), http.StatusServiceUnavailable)
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.archive.Delete(r.Context(), id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			http.Error(w, "Not found", http.StatusNotFound)
			return
		}
		s.log.Error().Err(err).Str("id", id).Msg("delete run failed")
		http.Error(w, "Failed to delete run", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type adminLoginRequest struct {
	APIKey string `json:"api_key"`
}

func (s *Server) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	if s.auth == nil || s.apiKey == "" {
		s.log.Error().Msg("admin API key is not configured")
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	var req adminLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.APIKey != s.apiKey {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	token, err := s.auth.Mint(w)
	if err != nil {
		http.Error(w, "Failed to create session", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "helixheal-dashboard"})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func queryLimit(r *http.Request, def int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	if n > 100 {
		return 100
	}
	return n
}
