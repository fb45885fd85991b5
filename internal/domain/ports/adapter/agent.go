package adapter

import (
	"context"

	"github.com/Master-Gamer-glitch/HelixHeal/internal/domain/model"
)

// AgentService is the remote code-fixing agent API the dashboard drives.
// CreateJob issues exactly one creation request per call; neither method
// retries internally.
type AgentService interface {
	CreateJob(ctx context.Context, cfg model.JobConfig) (jobID string, err error)
	FetchStatus(ctx context.Context, jobID string) (*model.RunResult, error)
	Health(ctx context.Context) error
}
