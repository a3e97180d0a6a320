package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"datahound/internal/model"
)

// DiskStore persists one JSON document per project. Filenames are
// hashed from the project ID so arbitrary IDs stay path-safe. Leases
// live next to the documents so a second process on the same store
// honors them too.
type DiskStore struct {
	dir string
	mu  sync.Mutex
}

// NewDiskStore creates the store layout under dir.
func NewDiskStore(dir string) (*DiskStore, error) {
	for _, sub := range []string{"projects", "leases"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}
	return &DiskStore{dir: dir}, nil
}

func (s *DiskStore) UpsertProject(ctx context.Context, id, prompt string) (*model.Project, error) {
	if id == "" {
		return nil, fmt.Errorf("empty project id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.read(id)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, ErrProjectNotFound) {
		return nil, err
	}

	now := time.Now()
	p = &model.Project{
		ID:        id,
		Prompt:    prompt,
		Status:    model.ProjectRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.write(p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *DiskStore) GetProject(ctx context.Context, id string) (*model.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read(id)
}

func (s *DiskStore) ListProjects(ctx context.Context) ([]ProjectSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(filepath.Join(s.dir, "projects"))
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}

	var out []ProjectSummary
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, "projects", e.Name()))
		if err != nil {
			continue
		}
		var p model.Project
		if err := json.Unmarshal(data, &p); err != nil {
			continue
		}
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

func (s *DiskStore) SetIntent(ctx context.Context, id string, intent model.Intent) error {
	return s.mutate(id, func(p *model.Project) error {
		in := intent
		in.Features = append([]string(nil), intent.Features...)
		in.SearchQueries = append([]string(nil), intent.SearchQueries...)
		p.Intent = &in
		p.UpdatedAt = time.Now()
		return nil
	})
}

func (s *DiskStore) SetDiscoveryChain(ctx context.Context, id string, chain []string) error {
	return s.mutate(id, func(p *model.Project) error {
		return setChain(p, chain)
	})
}

func (s *DiskStore) AppendCandidates(ctx context.Context, id string, cands []model.Candidate) (int, error) {
	added := 0
	err := s.mutate(id, func(p *model.Project) error {
		added = appendCandidates(p, cands)
		return nil
	})
	return added, err
}

func (s *DiskStore) UpdateCandidate(ctx context.Context, id, identifier string, patch CandidatePatch) error {
	return s.mutate(id, func(p *model.Project) error {
		return applyPatch(p, identifier, patch)
	})
}

func (s *DiskStore) SetSelected(ctx context.Context, id string, sel model.SelectedSource) error {
	return s.mutate(id, func(p *model.Project) error {
		return setSelected(p, sel)
	})
}

func (s *DiskStore) SetProjectStatus(ctx context.Context, id string, status model.ProjectStatus, lastErr string) error {
	return s.mutate(id, func(p *model.Project) error {
		p.Status = status
		p.LastError = lastErr
		p.UpdatedAt = time.Now()
		return nil
	})
}

type leaseFile struct {
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *DiskStore) AcquireLease(ctx context.Context, id string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.leasePath(id)
	if data, err := os.ReadFile(path); err == nil {
		var lf leaseFile
		if json.Unmarshal(data, &lf) == nil && time.Now().Before(lf.ExpiresAt) {
			return false, nil
		}
	}

	data, err := json.Marshal(leaseFile{ExpiresAt: time.Now().Add(ttl)})
	if err != nil {
		return false, err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return false, fmt.Errorf("write lease: %w", err)
	}
	return true, nil
}

func (s *DiskStore) ReleaseLease(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.leasePath(id))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (s *DiskStore) mutate(id string, fn func(*model.Project) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.read(id)
	if err != nil {
		return err
	}
	if err := fn(p); err != nil {
		return err
	}
	return s.write(p)
}

func (s *DiskStore) read(id string) (*model.Project, error) {
	data, err := os.ReadFile(s.projectPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, id)
		}
		return nil, fmt.Errorf("read project %s: %w", id, err)
	}

	var p model.Project
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse project %s: %w", id, err)
	}
	return &p, nil
}

func (s *DiskStore) write(p *model.Project) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal project %s: %w", p.ID, err)
	}
	if err := os.WriteFile(s.projectPath(p.ID), data, 0644); err != nil {
		return fmt.Errorf("write project %s: %w", p.ID, err)
	}
	return nil
}

func (s *DiskStore) projectPath(id string) string {
	return filepath.Join(s.dir, "projects", hashName(id)+".json")
}

func (s *DiskStore) leasePath(id string) string {
	return filepath.Join(s.dir, "leases", hashName(id)+".lease")
}

func hashName(id string) string {
	sum := sha256.Sum256([]byte(id))
	return hex.EncodeToString(sum[:])
}
