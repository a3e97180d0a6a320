package model

import (
	"sort"
	"time"
)

// ProjectStatus is the coarse state of a discovery run
type ProjectStatus string

const (
	ProjectRunning   ProjectStatus = "running"
	ProjectCompleted ProjectStatus = "completed"
	ProjectFailed    ProjectStatus = "failed"
)

// Project is the persistent record of one discovery task. It accumulates
// candidates across runs and survives indefinitely; nothing in the
// pipeline deletes projects.
type Project struct {
	ID             string           `json:"id"`
	Prompt         string           `json:"prompt"`
	Intent         *Intent          `json:"intent,omitempty"`
	DiscoveryChain []string         `json:"discovery_chain,omitempty"` // Stage list, written once per project
	Candidates     []Candidate      `json:"candidates"`                // Identifier-unique
	Selected       *SelectedSource  `json:"selected,omitempty"`
	Status         ProjectStatus    `json:"status"`
	LastError      string           `json:"last_error,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// SelectedSource is the denormalized snapshot of the winning candidate,
// kept on the project so consumers never re-scan the candidate list.
type SelectedSource struct {
	Identifier     string          `json:"identifier"`
	URL            string          `json:"url"`
	Title          string          `json:"title,omitempty"`
	RelevanceScore int             `json:"relevance_score"`
	SourceType     string          `json:"source_type,omitempty"`
	QualityRating  int             `json:"quality_rating,omitempty"`
	Credibility    CredibilityTier `json:"credibility"`
	FeaturesFound  []string        `json:"features_found,omitempty"`
	SelectedAt     time.Time       `json:"selected_at"`
}

// SourceStats summarizes candidate counts per lifecycle status.
type SourceStats struct {
	Total       int `json:"total"`
	Pending     int `json:"pending"`
	Validated   int `json:"validated"`
	Rejected    int `json:"rejected"`
	Crawling    int `json:"crawling"`
	Selected    int `json:"selected"`
	Backup      int `json:"backup"`
	Failed      int `json:"failed"`
	RateLimited int `json:"rate_limited"`
	HighQuality int `json:"high_quality"` // Scored above the relevance threshold
}

// Stats rolls up candidate counts. threshold marks the high-quality line.
func (p *Project) Stats(threshold int) SourceStats {
	s := SourceStats{Total: len(p.Candidates)}
	for i := range p.Candidates {
		c := &p.Candidates[i]
		switch c.Status {
		case StatusPending:
			s.Pending++
		case StatusValidated:
			s.Validated++
		case StatusRejected:
			s.Rejected++
		case StatusCrawling:
			s.Crawling++
		case StatusSelected:
			s.Selected++
		case StatusBackup:
			s.Backup++
		case StatusFailed:
			s.Failed++
		case StatusRateLimited:
			s.RateLimited++
		}
		if c.RelevanceScore != nil && *c.RelevanceScore > threshold {
			s.HighQuality++
		}
	}
	return s
}

// Candidate returns a pointer to the candidate with the given identifier,
// or nil when absent.
func (p *Project) Candidate(identifier string) *Candidate {
	for i := range p.Candidates {
		if p.Candidates[i].Identifier == identifier {
			return &p.Candidates[i]
		}
	}
	return nil
}

// Backups returns non-selected survivors ordered by relevance score
// descending; ties keep candidate-list order.
func (p *Project) Backups() []Candidate {
	var out []Candidate
	for _, c := range p.Candidates {
		if c.Status == StatusBackup {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return score(out[i]) > score(out[j])
	})
	return out
}

func score(c Candidate) int {
	if c.RelevanceScore == nil {
		return 0
	}
	return *c.RelevanceScore
}

// Clone returns a deep copy of the project.
func (p *Project) Clone() *Project {
	out := *p
	out.DiscoveryChain = append([]string(nil), p.DiscoveryChain...)
	if p.Intent != nil {
		in := *p.Intent
		in.Features = append([]string(nil), p.Intent.Features...)
		in.SearchQueries = append([]string(nil), p.Intent.SearchQueries...)
		out.Intent = &in
	}
	if p.Selected != nil {
		sel := *p.Selected
		sel.FeaturesFound = append([]string(nil), p.Selected.FeaturesFound...)
		out.Selected = &sel
	}
	out.Candidates = make([]Candidate, len(p.Candidates))
	for i := range p.Candidates {
		out.Candidates[i] = p.Candidates[i].Clone()
	}
	return &out
}
