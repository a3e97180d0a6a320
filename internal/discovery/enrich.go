package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"datahound/internal/cascade"
	"datahound/internal/llm"
	"datahound/internal/model"
	"datahound/internal/scrape"
	"datahound/internal/store"
)

// maxStoredSample caps the content sample persisted per candidate.
const maxStoredSample = 5000

// ContentScraper fetches one URL's readable content.
type ContentScraper interface {
	Scrape(ctx context.Context, rawURL string) (*scrape.Result, error)
}

// Enricher runs the post-scoring stage: crawl the best validated
// candidate, analyze its schema, classify credibility, and record the
// selection, cascading to backups when a crawl fails.
type Enricher struct {
	scraper ContentScraper
	judge   llm.Judge
	store   store.ProjectStore
	cred    model.CredibilityConfig
	logger  *slog.Logger
	now     func() time.Time
}

// NewEnricher wires the enrichment stage.
func NewEnricher(scraper ContentScraper, judge llm.Judge, st store.ProjectStore, cred model.CredibilityConfig, logger *slog.Logger) *Enricher {
	return &Enricher{
		scraper: scraper,
		judge:   judge,
		store:   st,
		cred:    cred,
		logger:  logger,
		now:     time.Now,
	}
}

type enrichResult struct {
	enr   *model.Enrichment
	title string
}

// Enrich selects and enriches the best validated candidate. Candidates
// are ranked by relevance score, ties broken by discovery order. Rate
// limits and access denials advance the cascade; persistence errors
// abort it. A nil SelectedSource with a nil error means there was
// nothing to enrich; cascade.ErrExhausted means every candidate failed.
func (e *Enricher) Enrich(ctx context.Context, projectID string, intent model.Intent, validated []model.Candidate) (*model.SelectedSource, error) {
	if len(validated) == 0 {
		e.logger.Info("no validated candidates to enrich", "project", projectID)
		return nil, nil
	}
	ranked := cascade.Rank(validated, candidateScore)

	var captured enrichResult
	hooks := cascade.Hooks[model.Candidate]{
		OnAttempt: func(c model.Candidate) error {
			e.logger.Info("crawling candidate", "identifier", c.Identifier, "score", candidateScore(c))
			return e.setStatus(ctx, projectID, c.Identifier, model.StatusCrawling)
		},
		OnFailure: func(c model.Candidate, attemptErr error) error {
			return e.markFailure(ctx, projectID, c, attemptErr)
		},
		OnSuccess: func(c model.Candidate) error {
			status := model.StatusSelected
			patch := store.CandidatePatch{Status: &status, Enrichment: captured.enr}
			return e.store.UpdateCandidate(ctx, projectID, c.Identifier, patch)
		},
		OnRemaining: func(c model.Candidate) error {
			return e.setStatus(ctx, projectID, c.Identifier, model.StatusBackup)
		},
	}

	res, winner, err := cascade.Run(ctx, ranked, func(ctx context.Context, c model.Candidate) (enrichResult, error) {
		out, err := e.attempt(ctx, intent, c)
		if err == nil {
			captured = out
		}
		return out, err
	}, hooks)
	if err != nil {
		return nil, err
	}

	sel := model.SelectedSource{
		Identifier:     winner.Identifier,
		URL:            winner.URL,
		Title:          pickTitle(winner.Title, res.title),
		RelevanceScore: candidateScore(winner),
		SourceType:     winner.SourceType,
		QualityRating:  res.enr.QualityRating,
		Credibility:    res.enr.Credibility,
		FeaturesFound:  append([]string(nil), res.enr.FeaturesFound...),
		SelectedAt:     e.now(),
	}
	if err := e.store.SetSelected(ctx, projectID, sel); err != nil {
		return nil, fmt.Errorf("record selected source: %w", err)
	}
	e.logger.Info("source selected",
		"identifier", winner.Identifier,
		"quality", sel.QualityRating,
		"credibility", sel.Credibility.String())
	return &sel, nil
}

// attempt crawls one candidate and assembles its enrichment.
func (e *Enricher) attempt(ctx context.Context, intent model.Intent, c model.Candidate) (enrichResult, error) {
	page, err := e.scraper.Scrape(ctx, c.URL)
	if err != nil {
		return enrichResult{}, err
	}

	report := e.analyzeSchema(ctx, intent, page)

	enr := &model.Enrichment{
		FeaturesFound: report.FeaturesFound,
		QualityRating: report.QualityRating,
		Credibility:   CredibilityFor(c.URL, e.cred),
		Sample:        clipSample(page.Sample, maxStoredSample),
		LastCrawledAt: e.now(),
	}
	return enrichResult{enr: enr, title: page.Title}, nil
}

// analyzeSchema asks the judge what the sample actually contains. When
// the judge is unreachable the extractor's own feature sniff stands in,
// with no quality rating.
func (e *Enricher) analyzeSchema(ctx context.Context, intent model.Intent, page *scrape.Result) *llm.SchemaReport {
	report, err := e.judge.DetectSchema(ctx, llm.SchemaRequest{
		Target:   intent.Target,
		Features: intent.Features,
		Sample:   page.Sample,
	})
	if err != nil {
		e.logger.Warn("schema detection failed, keeping extractor features", "error", err)
		return &llm.SchemaReport{FeaturesFound: page.Features}
	}
	return report
}

func (e *Enricher) markFailure(ctx context.Context, projectID string, c model.Candidate, attemptErr error) error {
	var limited *scrape.RateLimitedError
	if errors.As(attemptErr, &limited) {
		e.logger.Warn("candidate rate limited",
			"identifier", c.Identifier, "retry_after", limited.RetryAfter)
		status := model.StatusRateLimited
		retryAt := limited.RetryAfter
		patch := store.CandidatePatch{Status: &status, RetryAfter: &retryAt}
		return e.store.UpdateCandidate(ctx, projectID, c.Identifier, patch)
	}
	e.logger.Warn("candidate enrichment failed",
		"identifier", c.Identifier, "error", attemptErr)
	return e.setStatus(ctx, projectID, c.Identifier, model.StatusFailed)
}

func (e *Enricher) setStatus(ctx context.Context, projectID, identifier string, status model.Status) error {
	return e.store.UpdateCandidate(ctx, projectID, identifier, store.CandidatePatch{Status: &status})
}

func candidateScore(c model.Candidate) int {
	if c.RelevanceScore == nil {
		return 0
	}
	return *c.RelevanceScore
}

func pickTitle(candidateTitle, pageTitle string) string {
	if candidateTitle != "" {
		return candidateTitle
	}
	return pageTitle
}

// clipSample truncates to at most n bytes without splitting a rune.
func clipSample(s string, n int) string {
	if len(s) <= n {
		return s
	}
	s = s[:n]
	for len(s) > 0 && !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}
