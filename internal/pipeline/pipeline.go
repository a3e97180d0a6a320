// Package pipeline runs one discovery project end to end: intent
// parsing, provider fan-out, relevance scoring, and the enrichment
// cascade, persisting progress after every stage.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"datahound/internal/cache"
	"datahound/internal/cascade"
	"datahound/internal/discovery"
	"datahound/internal/llm"
	"datahound/internal/model"
	"datahound/internal/store"
)

// ErrRunInProgress reports that another run holds the project's lease.
var ErrRunInProgress = errors.New("a discovery run is already in progress for this project")

// Pipeline drives a discovery run. All collaborators are injected;
// nothing here is process-global.
type Pipeline struct {
	store    store.ProjectStore
	judge    llm.Judge
	fanout   *discovery.FanOut
	scorer   *discovery.Scorer
	enricher *discovery.Enricher
	leaseTTL time.Duration
	logger   *slog.Logger
}

// New assembles the pipeline from configuration. The websearch and
// feed providers register only when configured; the curated catalog is
// always last in the chain.
func New(st store.ProjectStore, judge llm.Judge, jc *cache.JudgmentCache, scraper discovery.ContentScraper, cfg *model.Config, logger *slog.Logger) *Pipeline {
	var providers []discovery.Provider
	if cfg.Discovery.SearchEndpoint != "" {
		providers = append(providers, discovery.NewWebSearch(cfg.Discovery, cfg.HTTP))
	}
	if cfg.Discovery.FeedTemplate != "" {
		providers = append(providers, discovery.NewFeedSearch(cfg.Discovery, cfg.HTTP))
	}
	providers = append(providers, discovery.NewCatalog())

	leaseTTL := cfg.Discovery.LeaseTTL
	if leaseTTL <= 0 {
		leaseTTL = 2 * time.Minute
	}

	return &Pipeline{
		store:    st,
		judge:    judge,
		fanout:   discovery.NewFanOut(providers, cfg.Discovery, logger),
		scorer:   discovery.NewScorer(judge, jc, st, cfg.Discovery, logger),
		enricher: discovery.NewEnricher(scraper, judge, st, cfg.Credibility, logger),
		leaseTTL: leaseTTL,
		logger:   logger,
	}
}

// Chain returns the provider stage list in registration order.
func (p *Pipeline) Chain() []string {
	return p.fanout.Chain()
}

// Run executes one full discovery pass for the project. A stage
// failure marks the project failed with the cause; candidate states
// persisted by earlier stages are never reverted.
func (p *Pipeline) Run(ctx context.Context, projectID, prompt string) (*model.Project, error) {
	acquired, err := p.store.AcquireLease(ctx, projectID, p.leaseTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire lease: %w", err)
	}
	if !acquired {
		return nil, fmt.Errorf("%w: %s", ErrRunInProgress, projectID)
	}
	defer func() {
		// The lease must clear even when the run's context is gone.
		if rerr := p.store.ReleaseLease(context.Background(), projectID); rerr != nil {
			p.logger.Warn("lease release failed", "project", projectID, "error", rerr)
		}
	}()

	if _, err := p.store.UpsertProject(ctx, projectID, prompt); err != nil {
		return nil, fmt.Errorf("upsert project: %w", err)
	}
	if err := p.store.SetProjectStatus(ctx, projectID, model.ProjectRunning, ""); err != nil {
		return nil, fmt.Errorf("mark project running: %w", err)
	}
	if err := p.store.SetDiscoveryChain(ctx, projectID, p.fanout.Chain()); err != nil {
		return nil, p.fail(ctx, projectID, fmt.Errorf("set discovery chain: %w", err))
	}

	p.logger.Info("discovery run starting", "project", projectID, "chain", p.fanout.Chain())

	intent, err := p.judge.ParseIntent(ctx, prompt)
	if err != nil {
		return nil, p.fail(ctx, projectID, fmt.Errorf("parse intent: %w", err))
	}
	if err := p.store.SetIntent(ctx, projectID, *intent); err != nil {
		return nil, fmt.Errorf("persist intent: %w", err)
	}

	found := p.fanout.Discover(ctx, *intent)
	if len(found) == 0 {
		return nil, p.fail(ctx, projectID, errors.New("no candidates found by any provider"))
	}
	added, err := p.store.AppendCandidates(ctx, projectID, found)
	if err != nil {
		return nil, fmt.Errorf("persist candidates: %w", err)
	}
	p.logger.Info("candidates persisted", "project", projectID, "found", len(found), "new", added)

	// Score the project's whole list, not just this run's finds, so
	// candidates left pending by an earlier run get another chance.
	project, err := p.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("load project: %w", err)
	}
	outcome, err := p.scorer.Score(ctx, projectID, *intent, project.Candidates)
	if err != nil {
		return nil, p.fail(ctx, projectID, fmt.Errorf("score candidates: %w", err))
	}
	p.logger.Info("scoring finished", "project", projectID,
		"scored", outcome.Scored, "cache_hits", outcome.CacheHits,
		"validated", len(outcome.Validated), "rejected", outcome.Rejected)

	project, err = p.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("load project: %w", err)
	}
	var validated []model.Candidate
	for _, c := range project.Candidates {
		if c.Status == model.StatusValidated {
			validated = append(validated, c)
		}
	}

	selected, err := p.enricher.Enrich(ctx, projectID, *intent, validated)
	if err != nil {
		if errors.Is(err, cascade.ErrExhausted) {
			err = fmt.Errorf("no usable source: %w", err)
		}
		return nil, p.fail(ctx, projectID, err)
	}
	if selected == nil {
		return nil, p.fail(ctx, projectID, errors.New("no usable source: no candidate passed validation"))
	}

	if err := p.store.SetProjectStatus(ctx, projectID, model.ProjectCompleted, ""); err != nil {
		return nil, fmt.Errorf("mark project completed: %w", err)
	}

	final, err := p.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("load project: %w", err)
	}
	p.logger.Info("discovery run complete",
		"project", projectID, "selected", selected.Identifier, "score", selected.RelevanceScore)
	return final, nil
}

// fail records the cause on the project and passes it through.
func (p *Pipeline) fail(ctx context.Context, projectID string, cause error) error {
	p.logger.Error("discovery run failed", "project", projectID, "error", cause)
	if err := p.store.SetProjectStatus(ctx, projectID, model.ProjectFailed, cause.Error()); err != nil {
		p.logger.Warn("could not record project failure", "project", projectID, "error", err)
	}
	return cause
}
