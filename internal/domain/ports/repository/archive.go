package repository

import (
	"context"

	"github.com/Master-Gamer-glitch/HelixHeal/internal/domain/model"
)

// RunArchive persists terminal runs for the history and leaderboard views.
type RunArchive interface {
	Save(ctx context.Context, run *model.ArchivedRun) error
	ListRecent(ctx context.Context, limit int) ([]model.ArchivedRun, error)
	Leaderboard(ctx context.Context, limit int) ([]model.LeaderboardEntry, error)
	FindByJobID(ctx context.Context, jobID string) (*model.ArchivedRun, error)
	Delete(ctx context.Context, id string) error
}

// SnapshotCache keeps the latest polled result per job id with a TTL, so the
// dashboard can show a run's last known state without hitting the archive.
type SnapshotCache interface {
	StoreSnapshot(ctx context.Context, jobID string, res *model.RunResult) error
	GetSnapshot(ctx context.Context, jobID string) (*model.RunResult, error)
}
