package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"datahound/internal/model"
)

var (
	// ErrProjectNotFound is returned for reads of unknown project IDs.
	ErrProjectNotFound = errors.New("project not found")
	// ErrCandidateNotFound is returned when an identifier-addressed
	// update targets a candidate the project does not hold.
	ErrCandidateNotFound = errors.New("candidate not found")
	// ErrChainSealed is returned when a second, different discovery
	// chain write is attempted. The chain is write-once per project.
	ErrChainSealed = errors.New("discovery chain already set")
	// ErrAlreadySelected guards against a run silently replacing a
	// previously selected source.
	ErrAlreadySelected = errors.New("project already has a selected source")
)

// CandidatePatch is a field-scoped candidate update. Nil fields are left
// untouched. Status changes are validated against the lifecycle graph
// before any field is applied.
type CandidatePatch struct {
	Status         *model.Status
	RelevanceScore *int
	SourceType     *string
	Enrichment     *model.Enrichment
	RetryAfter     *time.Time
}

// ProjectSummary is the list-view projection of a project.
type ProjectSummary struct {
	ID         string              `json:"id"`
	Prompt     string              `json:"prompt"`
	Status     model.ProjectStatus `json:"status"`
	Candidates int                 `json:"candidates"`
	UpdatedAt  time.Time           `json:"updated_at"`
}

// ProjectStore is the persistence contract for discovery projects.
// Candidates are always addressed by identifier, never by position.
type ProjectStore interface {
	UpsertProject(ctx context.Context, id, prompt string) (*model.Project, error)
	GetProject(ctx context.Context, id string) (*model.Project, error)
	ListProjects(ctx context.Context) ([]ProjectSummary, error)

	SetIntent(ctx context.Context, id string, intent model.Intent) error
	SetDiscoveryChain(ctx context.Context, id string, chain []string) error
	AppendCandidates(ctx context.Context, id string, cands []model.Candidate) (int, error)
	UpdateCandidate(ctx context.Context, id, identifier string, patch CandidatePatch) error
	SetSelected(ctx context.Context, id string, sel model.SelectedSource) error
	SetProjectStatus(ctx context.Context, id string, status model.ProjectStatus, lastErr string) error

	// AcquireLease takes the advisory per-project run lock. It returns
	// false when another run holds a live lease.
	AcquireLease(ctx context.Context, id string, ttl time.Duration) (bool, error)
	ReleaseLease(ctx context.Context, id string) error
}

// appendCandidates merges new candidates into p, dropping entries whose
// identifier is empty or already present. The first occurrence wins;
// later duplicates contribute nothing, including their metadata.
func appendCandidates(p *model.Project, cands []model.Candidate) int {
	seen := make(map[string]bool, len(p.Candidates))
	for i := range p.Candidates {
		seen[p.Candidates[i].Identifier] = true
	}

	now := time.Now()
	added := 0
	for _, c := range cands {
		if c.Identifier == "" || seen[c.Identifier] {
			continue
		}
		seen[c.Identifier] = true
		if c.Status == "" {
			c.Status = model.StatusPending
		}
		if c.DiscoveredAt.IsZero() {
			c.DiscoveredAt = now
		}
		c.UpdatedAt = now
		p.Candidates = append(p.Candidates, c.Clone())
		added++
	}
	if added > 0 {
		p.UpdatedAt = now
	}
	return added
}

// applyPatch updates one candidate in place. The status transition is
// checked first so an illegal change leaves every field untouched.
func applyPatch(p *model.Project, identifier string, patch CandidatePatch) error {
	c := p.Candidate(identifier)
	if c == nil {
		return fmt.Errorf("%w: %s", ErrCandidateNotFound, identifier)
	}

	if patch.Status != nil {
		if !patch.Status.Valid() {
			return fmt.Errorf("unknown status %q", *patch.Status)
		}
		if !model.CanTransition(c.Status, *patch.Status) {
			return &model.ErrInvalidTransition{From: c.Status, To: *patch.Status}
		}
	}

	if patch.Status != nil {
		c.Status = *patch.Status
	}
	if patch.RelevanceScore != nil {
		v := *patch.RelevanceScore
		c.RelevanceScore = &v
	}
	if patch.SourceType != nil {
		c.SourceType = *patch.SourceType
	}
	if patch.Enrichment != nil {
		e := *patch.Enrichment
		e.FeaturesFound = append([]string(nil), patch.Enrichment.FeaturesFound...)
		c.Enrichment = &e
	}
	if patch.RetryAfter != nil {
		v := *patch.RetryAfter
		c.RetryAfter = &v
	}

	now := time.Now()
	c.UpdatedAt = now
	p.UpdatedAt = now
	return nil
}

// setChain enforces the write-once discovery chain. Rewriting the same
// chain is an idempotent no-op.
func setChain(p *model.Project, chain []string) error {
	if len(p.DiscoveryChain) > 0 {
		if equalChain(p.DiscoveryChain, chain) {
			return nil
		}
		return ErrChainSealed
	}
	p.DiscoveryChain = append([]string(nil), chain...)
	p.UpdatedAt = time.Now()
	return nil
}

func equalChain(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// setSelected installs the winning-source snapshot. Replacing a live
// selection with a different identifier is refused; the previous
// candidate must first leave the selected state through an explicit
// promotion flow.
func setSelected(p *model.Project, sel model.SelectedSource) error {
	if p.Selected != nil && p.Selected.Identifier != sel.Identifier {
		if prev := p.Candidate(p.Selected.Identifier); prev != nil && prev.Status == model.StatusSelected {
			return fmt.Errorf("%w: %s", ErrAlreadySelected, p.Selected.Identifier)
		}
	}
	if sel.SelectedAt.IsZero() {
		sel.SelectedAt = time.Now()
	}
	sel.FeaturesFound = append([]string(nil), sel.FeaturesFound...)
	p.Selected = &sel
	p.UpdatedAt = time.Now()
	return nil
}
