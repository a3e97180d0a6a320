package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"datahound/internal/model"
)

// MemoryStore keeps projects in process memory. It backs tests and the
// default server mode when no store directory is configured.
type MemoryStore struct {
	mu       sync.RWMutex
	projects map[string]*model.Project
	leases   map[string]time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		projects: make(map[string]*model.Project),
		leases:   make(map[string]time.Time),
	}
}

func (s *MemoryStore) UpsertProject(ctx context.Context, id, prompt string) (*model.Project, error) {
	if id == "" {
		return nil, fmt.Errorf("empty project id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.projects[id]; ok {
		return p.Clone(), nil
	}

	now := time.Now()
	p := &model.Project{
		ID:        id,
		Prompt:    prompt,
		Status:    model.ProjectRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.projects[id] = p
	return p.Clone(), nil
}

func (s *MemoryStore) GetProject(ctx context.Context, id string) (*model.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.projects[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, id)
	}
	return p.Clone(), nil
}

func (s *MemoryStore) ListProjects(ctx context.Context) ([]ProjectSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ProjectSummary, 0, len(s.projects))
	for _, p := range s.projects {
		out = append(out, ProjectSummary{
			ID:         p.ID,
			Prompt:     p.Prompt,
			Status:     p.Status,
			Candidates: len(p.Candidates),
			UpdatedAt:  p.UpdatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (s *MemoryStore) SetIntent(ctx context.Context, id string, intent model.Intent) error {
	return s.mutate(id, func(p *model.Project) error {
		in := intent
		in.Features = append([]string(nil), intent.Features...)
		in.SearchQueries = append([]string(nil), intent.SearchQueries...)
		p.Intent = &in
		p.UpdatedAt = time.Now()
		return nil
	})
}

func (s *MemoryStore) SetDiscoveryChain(ctx context.Context, id string, chain []string) error {
	return s.mutate(id, func(p *model.Project) error {
		return setChain(p, chain)
	})
}

func (s *MemoryStore) AppendCandidates(ctx context.Context, id string, cands []model.Candidate) (int, error) {
	added := 0
	err := s.mutate(id, func(p *model.Project) error {
		added = appendCandidates(p, cands)
		return nil
	})
	return added, err
}

func (s *MemoryStore) UpdateCandidate(ctx context.Context, id, identifier string, patch CandidatePatch) error {
	return s.mutate(id, func(p *model.Project) error {
		return applyPatch(p, identifier, patch)
	})
}

func (s *MemoryStore) SetSelected(ctx context.Context, id string, sel model.SelectedSource) error {
	return s.mutate(id, func(p *model.Project) error {
		return setSelected(p, sel)
	})
}

func (s *MemoryStore) SetProjectStatus(ctx context.Context, id string, status model.ProjectStatus, lastErr string) error {
	return s.mutate(id, func(p *model.Project) error {
		p.Status = status
		p.LastError = lastErr
		p.UpdatedAt = time.Now()
		return nil
	})
}

func (s *MemoryStore) AcquireLease(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if until, held := s.leases[id]; held && time.Now().Before(until) {
		return false, nil
	}
	s.leases[id] = time.Now().Add(ttl)
	return true, nil
}

func (s *MemoryStore) ReleaseLease(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.leases, id)
	return nil
}

func (s *MemoryStore) mutate(id string, fn func(*model.Project) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.projects[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrProjectNotFound, id)
	}
	return fn(p)
}
