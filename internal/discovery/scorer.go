package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"datahound/internal/cache"
	"datahound/internal/llm"
	"datahound/internal/model"
	"datahound/internal/store"
)

// Scorer walks pending candidates in merge order, judging each one's
// relevance to the intent, and stops early once the quality target is
// met. Judgments are cached by identity so repeat runs skip the judge.
type Scorer struct {
	judge     llm.Judge
	cache     *cache.JudgmentCache
	store     store.ProjectStore
	threshold int
	target    int
	delay     time.Duration
	logger    *slog.Logger

	sleep func(context.Context, time.Duration) error
}

// NewScorer wires the scoring loop. cache may be nil (every candidate
// hits the judge).
func NewScorer(judge llm.Judge, jc *cache.JudgmentCache, st store.ProjectStore, cfg model.DiscoveryConfig, logger *slog.Logger) *Scorer {
	threshold := cfg.RelevanceThreshold
	if threshold <= 0 {
		threshold = 70
	}
	target := cfg.QualityTarget
	if target <= 0 {
		target = 5
	}
	return &Scorer{
		judge:     judge,
		cache:     jc,
		store:     st,
		threshold: threshold,
		target:    target,
		delay:     cfg.ScoreDelay,
		logger:    logger,
		sleep:     sleepContext,
	}
}

// ScoreOutcome summarizes one scoring pass.
type ScoreOutcome struct {
	Scored    int               // Judge calls made
	CacheHits int               // Judgments reused without a call
	Rejected  int               // Scored at or below the threshold
	Failed    int               // Judge errors; candidates left pending
	Validated []model.Candidate // Above-threshold candidates, in scored order
}

// Score judges candidates in order until the quality target is reached.
// Candidates the judge cannot score stay pending for a later run; a
// persistence failure aborts the pass.
func (s *Scorer) Score(ctx context.Context, projectID string, intent model.Intent, candidates []model.Candidate) (*ScoreOutcome, error) {
	out := &ScoreOutcome{}

	for _, candidate := range candidates {
		if len(out.Validated) >= s.target {
			s.logger.Info("quality target reached, stopping early",
				"validated", len(out.Validated), "target", s.target)
			break
		}
		if err := ctx.Err(); err != nil {
			return out, err
		}
		// Scoring applies to pending candidates only.
		if candidate.Status != model.StatusPending {
			continue
		}

		judgment, hit := s.cache.Lookup(candidate.Identifier)
		if hit {
			out.CacheHits++
			s.logger.Debug("judgment cache hit", "identifier", candidate.Identifier)
		} else {
			var err error
			judgment, err = s.judge.ScoreRelevance(ctx, llm.RelevanceRequest{
				Target:   intent.Target,
				Features: intent.Features,
				Title:    titleOf(candidate),
				Snippet:  candidate.Snippet,
			})
			if err != nil {
				if ctx.Err() != nil {
					return out, ctx.Err()
				}
				s.logger.Warn("scoring failed, candidate stays pending",
					"identifier", candidate.Identifier, "error", err)
				out.Failed++
				continue
			}
			out.Scored++
			if err := s.cache.Store(candidate.Identifier, judgment); err != nil {
				s.logger.Warn("judgment cache write failed", "error", err)
			}
			// Pace the judge, not the loop: cache hits skip this.
			if s.delay > 0 {
				if err := s.sleep(ctx, s.delay); err != nil {
					return out, err
				}
			}
		}

		status := model.StatusRejected
		if judgment.Score > s.threshold {
			status = model.StatusValidated
		}
		score := judgment.Score
		sourceType := judgment.SourceType
		patch := store.CandidatePatch{Status: &status, RelevanceScore: &score, SourceType: &sourceType}
		if err := s.store.UpdateCandidate(ctx, projectID, candidate.Identifier, patch); err != nil {
			return out, fmt.Errorf("persist judgment for %s: %w", candidate.Identifier, err)
		}

		if status == model.StatusValidated {
			c := candidate.Clone()
			c.Status = status
			c.RelevanceScore = &score
			c.SourceType = sourceType
			out.Validated = append(out.Validated, c)
			s.logger.Info("candidate validated",
				"identifier", candidate.Identifier, "score", score, "type", sourceType)
		} else {
			out.Rejected++
			s.logger.Debug("candidate rejected",
				"identifier", candidate.Identifier, "score", score)
		}
	}
	return out, nil
}

// titleOf falls back to the URL so the judge always sees something.
func titleOf(c model.Candidate) string {
	if c.Title != "" {
		return c.Title
	}
	return c.URL
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
