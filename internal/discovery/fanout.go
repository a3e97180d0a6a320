package discovery

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"datahound/internal/model"
	"datahound/internal/worker"
)

// FanOut runs every registered provider in parallel and merges their
// hits into deduplicated candidates. Provider failures are logged and
// swallowed; one dead backend never sinks a discovery run.
type FanOut struct {
	providers []Provider
	timeout   time.Duration // Budget per provider
	maxPer    int           // Hit cap per provider query
	logger    *slog.Logger
}

// NewFanOut builds the fan-out over the given providers. Order matters:
// it decides merge precedence when two providers report the same source.
func NewFanOut(providers []Provider, cfg model.DiscoveryConfig, logger *slog.Logger) *FanOut {
	timeout := cfg.ProviderTimeout
	if timeout == 0 {
		timeout = 45 * time.Second
	}
	maxPer := cfg.MaxPerQuery
	if maxPer <= 0 {
		maxPer = 10
	}
	return &FanOut{providers: providers, timeout: timeout, maxPer: maxPer, logger: logger}
}

// Chain lists the provider names in registration order, for the
// project's discovery chain record.
func (f *FanOut) Chain() []string {
	names := make([]string, 0, len(f.providers))
	for _, p := range f.providers {
		names = append(names, p.Name())
	}
	return names
}

type providerBatch struct {
	index int
	name  string
	hits  []RawCandidate
	err   error
}

// Discover fans the intent out across all providers and returns unique
// pending candidates. Merge order is provider registration order, then
// each provider's own result order; the first occurrence of an identity
// wins and later duplicates contribute nothing.
func (f *FanOut) Discover(ctx context.Context, intent model.Intent) []model.Candidate {
	if len(f.providers) == 0 {
		return nil
	}

	pool := worker.NewPool[providerBatch](ctx, len(f.providers))
	pool.Start()
	for i, p := range f.providers {
		i, p := i, p
		pool.Submit(func(ctx context.Context) providerBatch {
			ctx, cancel := context.WithTimeout(ctx, f.timeout)
			defer cancel()
			hits, err := p.Search(ctx, intent, f.maxPer)
			return providerBatch{index: i, name: p.Name(), hits: hits, err: err}
		})
	}
	batches := pool.Wait()

	// Results arrive in completion order; restore registration order so
	// the merge is deterministic.
	sort.Slice(batches, func(i, j int) bool { return batches[i].index < batches[j].index })

	seen := make(map[string]bool)
	var out []model.Candidate
	for _, batch := range batches {
		if batch.err != nil {
			f.logger.Warn("provider failed", "provider", batch.name, "error", batch.err)
			continue
		}
		f.logger.Debug("provider finished", "provider", batch.name, "hits", len(batch.hits))
		for _, hit := range batch.hits {
			if hit.URL == "" {
				continue
			}
			identity := Identity(hit.URL)
			if identity == "" || seen[identity] {
				continue
			}
			seen[identity] = true
			out = append(out, model.Candidate{
				Identifier: identity,
				URL:        hit.URL,
				Title:      hit.Title,
				Snippet:    hit.Snippet,
				Provider:   batch.name,
				SourceType: hit.SourceType,
				Status:     model.StatusPending,
			})
		}
	}
	f.logger.Info("discovery fan-out complete", "providers", len(f.providers), "unique", len(out))
	return out
}
