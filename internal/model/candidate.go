package model

import (
	"fmt"
	"time"
)

// Status tracks a candidate through the discovery lifecycle
type Status string

const (
	StatusPending     Status = "pending"      // Discovered, not yet scored
	StatusValidated   Status = "validated"    // Scored above the relevance threshold
	StatusRejected    Status = "rejected"     // Scored at or below the threshold
	StatusCrawling    Status = "crawling"     // Enrichment in progress
	StatusSelected    Status = "selected"     // Chosen as the primary source
	StatusBackup      Status = "backup"       // Validated but outranked by the selected source
	StatusFailed      Status = "failed"       // Enrichment or access failed
	StatusRateLimited Status = "rate_limited" // Provider throttled or denied access; retry later
	StatusCleaned     Status = "cleaned"      // Reserved for wire compatibility; never produced
)

// transitions is the legal edge set of the candidate state machine.
// A backup or rate-limited candidate may be promoted back to crawling
// when the selected source later fails.
var transitions = map[Status][]Status{
	StatusPending:     {StatusValidated, StatusRejected},
	StatusValidated:   {StatusCrawling, StatusBackup},
	StatusCrawling:    {StatusSelected, StatusFailed, StatusRateLimited},
	StatusBackup:      {StatusCrawling},
	StatusRateLimited: {StatusCrawling},
	StatusSelected:    {},
	StatusRejected:    {},
	StatusFailed:      {},
}

// Valid reports whether s is a known lifecycle status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusValidated, StatusRejected, StatusCrawling,
		StatusSelected, StatusBackup, StatusFailed, StatusRateLimited, StatusCleaned:
		return true
	}
	return false
}

// Terminal reports whether s has no outgoing transitions.
func (s Status) Terminal() bool {
	return s == StatusSelected || s == StatusRejected || s == StatusFailed
}

// CanTransition reports whether from -> to is a legal state change.
// A transition to the current status is always allowed (idempotent updates).
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ErrInvalidTransition is returned when a status change would skip or
// revert a lifecycle state.
type ErrInvalidTransition struct {
	From Status
	To   Status
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("invalid status transition %s -> %s", e.From, e.To)
}

// CredibilityTier classifies how much trust a candidate's host earns
type CredibilityTier int

const (
	TierUnknown CredibilityTier = 0 // Not yet classified
	TierHigh    CredibilityTier = 1 // Government, academic, or curated dataset hosts
	TierMedium  CredibilityTier = 2 // Ordinary HTTPS hosts
	TierLow     CredibilityTier = 3 // Unencrypted or otherwise weak hosts
)

func (t CredibilityTier) String() string {
	switch t {
	case TierHigh:
		return "high"
	case TierMedium:
		return "medium"
	case TierLow:
		return "low"
	default:
		return "unknown"
	}
}

// Candidate is a single discovered data source. Identifier is the dedup
// and addressing key: a normalized URL for web sources, an owner/name
// ref for dataset sources. Stores never address candidates by index.
type Candidate struct {
	Identifier     string      `json:"identifier"`
	URL            string      `json:"url"`                       // Raw URL as reported by the provider
	Title          string      `json:"title,omitempty"`
	Snippet        string      `json:"snippet,omitempty"`
	Provider       string      `json:"provider,omitempty"`        // Which provider discovered it
	SourceType     string      `json:"source_type,omitempty"`     // Judge's type tag: API, Dataset, Article, Irrelevant
	Status         Status      `json:"status"`
	RelevanceScore *int        `json:"relevance_score,omitempty"` // 0-100, set only once scored
	Enrichment     *Enrichment `json:"enrichment,omitempty"`
	RetryAfter     *time.Time  `json:"retry_after,omitempty"`     // Earliest moment a rate-limited source may be retried
	DiscoveredAt   time.Time   `json:"discovered_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// Enrichment holds what the crawl and schema analysis learned about a
// candidate's actual content.
type Enrichment struct {
	FeaturesFound []string        `json:"features_found,omitempty"`
	QualityRating int             `json:"quality_rating,omitempty"` // 0-100 from schema analysis
	Credibility   CredibilityTier `json:"credibility"`
	Sample        string          `json:"sample,omitempty"`         // Truncated content sample
	LastCrawledAt time.Time       `json:"last_crawled_at"`
}

// Transition applies a status change, enforcing the lifecycle graph.
func (c *Candidate) Transition(to Status) error {
	if !to.Valid() {
		return fmt.Errorf("unknown status %q", to)
	}
	if !CanTransition(c.Status, to) {
		return &ErrInvalidTransition{From: c.Status, To: to}
	}
	if c.Status == to {
		return nil
	}
	c.Status = to
	c.UpdatedAt = time.Now()
	return nil
}

// Scored reports whether the candidate has a persisted relevance score.
func (c *Candidate) Scored() bool {
	return c.RelevanceScore != nil
}

// Clone returns a deep copy so store snapshots never alias live state.
func (c Candidate) Clone() Candidate {
	out := c
	if c.RelevanceScore != nil {
		v := *c.RelevanceScore
		out.RelevanceScore = &v
	}
	if c.RetryAfter != nil {
		v := *c.RetryAfter
		out.RetryAfter = &v
	}
	if c.Enrichment != nil {
		e := *c.Enrichment
		e.FeaturesFound = append([]string(nil), c.Enrichment.FeaturesFound...)
		out.Enrichment = &e
	}
	return out
}
