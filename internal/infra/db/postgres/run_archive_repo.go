package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/Master-Gamer-glitch/HelixHeal/internal/domain"
	"github.com/Master-Gamer-glitch/HelixHeal/internal/domain/model"
	"github.com/Master-Gamer-glitch/HelixHeal/internal/domain/ports/repository"
)

var _ repository.RunArchive = (*RunArchiveRepo)(nil)

type RunArchiveRepo struct {
	pool *pgxpool.Pool
}

func NewRunArchiveRepo(pool *pgxpool.Pool) *RunArchiveRepo {
	return &RunArchiveRepo{pool: pool}
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
  id              UUID PRIMARY KEY,
  job_id          TEXT NOT NULL UNIQUE,
  repository      TEXT NOT NULL,
  team_name       TEXT NOT NULL,
  team_leader     TEXT NOT NULL,
  branch          TEXT NOT NULL DEFAULT '',
  status          TEXT NOT NULL,
  final_score     INT  NOT NULL DEFAULT 0,
  progress        INT  NOT NULL DEFAULT 0,
  elapsed_seconds INT  NOT NULL DEFAULT 0,
  result          JSONB NOT NULL,
  finished_at     TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS runs_finished_at_idx ON runs (finished_at DESC);
CREATE INDEX IF NOT EXISTS runs_team_score_idx  ON runs (team_name, final_score DESC);
`

// EnsureSchema creates the runs table when missing.
func (r *RunArchiveRepo) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure runs schema: %w", err)
	}
	return nil
}

func (r *RunArchiveRepo) Save(ctx context.Context, run *model.ArchivedRun) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	payload, err := json.Marshal(run.Result)
	if err != nil {
		return fmt.Errorf("marshal run result: %w", err)
	}

	const q = `
INSERT INTO runs (id, job_id, repository, team_name, team_leader, branch, status,
                  final_score, progress, elapsed_seconds, result, finished_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12);`

	_, err = r.pool.Exec(ctx, q,
		run.ID, run.JobID, run.Repository, run.TeamName, run.TeamLeader, run.Branch,
		string(run.Status), run.FinalScore, run.Progress, run.ElapsedSeconds, payload, run.FinishedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("save run: %w", err)
	}
	return nil
}

func (r *RunArchiveRepo) ListRecent(ctx context.Context, limit int) ([]model.ArchivedRun, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `
SELECT id, job_id, repository, team_name, team_leader, branch, status,
       final_score, progress, elapsed_seconds, result, finished_at
  FROM runs
 ORDER BY finished_at DESC
 LIMIT $1;`

	rows, err := r.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []model.ArchivedRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *run)
	}
	return out, rows.Err()
}

func (r *RunArchiveRepo) Leaderboard(ctx context.Context, limit int) ([]model.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	const q = `
SELECT team_name,
       (array_agg(team_leader ORDER BY final_score DESC))[1] AS team_leader,
       MAX(final_score) AS best_score,
       COUNT(*)         AS runs
  FROM runs
 WHERE status = 'completed'
 GROUP BY team_name
 ORDER BY best_score DESC, team_name
 LIMIT $1;`

	rows, err := r.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("leaderboard: %w", err)
	}
	defer rows.Close()

	var out []model.LeaderboardEntry
	for rows.Next() {
		var e model.LeaderboardEntry
		if err := rows.Scan(&e.TeamName, &e.TeamLeader, &e.BestScore, &e.Runs); err != nil {
			return nil, err
		}
		e.Rank = len(out) + 1
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *RunArchiveRepo) FindByJobID(ctx context.Context, jobID string) (*model.ArchivedRun, error) {
	const q = `
SELECT id, job_id, repository, team_name, team_leader, branch, status,
       final_score, progress, elapsed_seconds, result, finished_at
  FROM runs
 WHERE job_id = $1;`

	run, err := scanRun(r.pool.QueryRow(ctx, q, jobID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return run, nil
}

func (r *RunArchiveRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM runs WHERE id = $1;`, id)
	if err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*model.ArchivedRun, error) {
	var (
		run     model.ArchivedRun
		status  string
		payload []byte
	)
	err := row.Scan(&run.ID, &run.JobID, &run.Repository, &run.TeamName, &run.TeamLeader,
		&run.Branch, &status, &run.FinalScore, &run.Progress, &run.ElapsedSeconds,
		&payload, &run.FinishedAt)
	if err != nil {
		return nil, err
	}
	run.Status = model.JobStatus(status)
	if err := json.Unmarshal(payload, &run.Result); err != nil {
		return nil, fmt.Errorf("decode run result: %w", err)
	}
	return &run, nil
}
