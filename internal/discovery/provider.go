// Package discovery finds, scores, and enriches candidate data sources
// for a parsed task intent.
package discovery

import (
	"context"

	"datahound/internal/model"
)

// RawCandidate is a single provider hit before normalization and dedup.
type RawCandidate struct {
	URL        string
	Title      string
	Snippet    string
	SourceType string // Optional hint; a dataset catalog knows what it serves
}

// Provider searches one backend for candidate data sources.
// Implementations honor ctx cancellation and return at most limit hits;
// an error marks the whole provider as failed for this run.
type Provider interface {
	Name() string
	Search(ctx context.Context, intent model.Intent, limit int) ([]RawCandidate, error)
}
