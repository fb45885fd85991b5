package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Master-Gamer-glitch/HelixHeal/internal/domain"
	"github.com/Master-Gamer-glitch/HelixHeal/internal/domain/model"
	"github.com/Master-Gamer-glitch/HelixHeal/internal/domain/ports/repository"
)

var _ repository.SnapshotCache = (*SnapshotCache)(nil)

// SnapshotCache keeps the last polled result per job id with a TTL.
type SnapshotCache struct {
	client RedisClient
	ttl    time.Duration
}

func NewSnapshotCache(client RedisClient, ttl time.Duration) *SnapshotCache {
	return &SnapshotCache{client: client, ttl: ttl}
}

func (c *SnapshotCache) StoreSnapshot(ctx context.Context, jobID string, res *model.RunResult) error {
	data, err := json.Marshal(res)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, "run_snapshot:"+jobID, data, c.ttl)
}

func (c *SnapshotCache) GetSnapshot(ctx context.Context, jobID string) (*model.RunResult, error) {
	data, err := c.client.Get(ctx, "run_snapshot:"+jobID)
	if err != nil {
		if IsNil(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	var res model.RunResult
	if err := json.Unmarshal([]byte(data), &res); err != nil {
		return nil, err
	}
	return &res, nil
}
