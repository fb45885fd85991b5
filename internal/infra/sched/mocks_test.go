//go:build !integration

package sched_test

import (
	"context"
	"sync"

	"github.com/Master-Gamer-glitch/HelixHeal/internal/domain"
	"github.com/Master-Gamer-glitch/HelixHeal/internal/domain/model"
)

// mockAgent is a hand-rolled AgentService with per-call hooks and counters.
type mockAgent struct {
	mu          sync.Mutex
	createCalls int
	fetchCalls  int

	CreateFunc func(ctx context.Context, cfg model.JobConfig) (string, error)
	FetchFunc  func(ctx context.Context, jobID string) (*model.RunResult, error)
}

func newMockAgent() *mockAgent {
	return &mockAgent{
		CreateFunc: func(ctx context.Context, cfg model.JobConfig) (string, error) {
			return "job-1", nil
		},
		FetchFunc: func(ctx context.Context, jobID string) (*model.RunResult, error) {
			return &model.RunResult{Status: model.RunStatusRunning}, nil
		},
	}
}

func (m *mockAgent) CreateJob(ctx context.Context, cfg model.JobConfig) (string, error) {
	m.mu.Lock()
	m.createCalls++
	m.mu.Unlock()
	return m.CreateFunc(ctx, cfg)
}

func (m *mockAgent) FetchStatus(ctx context.Context, jobID string) (*model.RunResult, error) {
	m.mu.Lock()
	m.fetchCalls++
	m.mu.Unlock()
	return m.FetchFunc(ctx, jobID)
}

func (m *mockAgent) Health(ctx context.Context) error { return nil }

func (m *mockAgent) CreateCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createCalls
}

func (m *mockAgent) FetchCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fetchCalls
}

// memArchive is a small in-memory RunArchive used by unit tests.
type memArchive struct {
	mu   sync.Mutex
	runs []*model.ArchivedRun

	SaveFunc func(ctx context.Context, run *model.ArchivedRun) error // optional pre-write hook
}

func newMemArchive() *memArchive { return &memArchive{} }

func (m *memArchive) Save(ctx context.Context, run *model.ArchivedRun) error {
	if m.SaveFunc != nil {
		if err := m.SaveFunc(ctx, run); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.runs {
		if r.JobID == run.JobID {
			return domain.ErrAlreadyExists
		}
	}
	cp := *run
	m.runs = append(m.runs, &cp)
	return nil
}

func (m *memArchive) ListRecent(ctx context.Context, limit int) ([]model.ArchivedRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.ArchivedRun
	for i := len(m.runs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, *m.runs[i])
	}
	return out, nil
}

func (m *memArchive) Leaderboard(ctx context.Context, limit int) ([]model.LeaderboardEntry, error) {
	return nil, nil
}

func (m *memArchive) FindByJobID(ctx context.Context, jobID string) (*model.ArchivedRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.runs {
		if r.JobID == jobID {
			cp := *r
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memArchive) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, r := range m.runs {
		if r.ID == id {
			m.runs = append(m.runs[:i], m.runs[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *memArchive) Saved() []*model.ArchivedRun {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.ArchivedRun, len(m.runs))
	copy(out, m.runs)
	return out
}
