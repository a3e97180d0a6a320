package discovery

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"datahound/internal/cascade"
	"datahound/internal/llm"
	"datahound/internal/logging"
	"datahound/internal/model"
	"datahound/internal/scrape"
	"datahound/internal/store"
)

type stubScraper struct {
	pages map[string]*scrape.Result
	errs  map[string]error
	calls []string
}

func (s *stubScraper) Scrape(_ context.Context, rawURL string) (*scrape.Result, error) {
	s.calls = append(s.calls, rawURL)
	if err, ok := s.errs[rawURL]; ok {
		return nil, err
	}
	if page, ok := s.pages[rawURL]; ok {
		return page, nil
	}
	return nil, errors.New("no stub for " + rawURL)
}

func validatedCandidate(id string, score int) model.Candidate {
	s := score
	return model.Candidate{
		Identifier:     id,
		URL:            "https://" + id,
		Title:          "Title " + id,
		Status:         model.StatusValidated,
		RelevanceScore: &s,
		SourceType:     model.SourceDataset,
	}
}

func newTestEnricher(scraper ContentScraper, judge llm.Judge, st store.ProjectStore) *Enricher {
	return NewEnricher(scraper, judge, st, model.CredibilityConfig{}, logging.Nop())
}

func defaultSchemaJudge() *testJudge {
	return &testJudge{schemaFn: func(req llm.SchemaRequest) (*llm.SchemaReport, error) {
		return &llm.SchemaReport{FeaturesFound: []string{"station", "pm2.5"}, QualityRating: 82}, nil
	}}
}

func TestEnricher_SelectsTopCandidate(t *testing.T) {
	cands := []model.Candidate{
		validatedCandidate("low.example.com", 75),
		validatedCandidate("high.example.gov", 92),
	}
	st := store.NewMemoryStore()
	seedProject(t, st, "p1", cands)

	scraper := &stubScraper{pages: map[string]*scrape.Result{
		"https://high.example.gov": {
			Title:  "Hourly Air Data",
			Sample: "station,pm2.5\nA,12.1",
		},
	}}
	enricher := newTestEnricher(scraper, defaultSchemaJudge(), st)

	sel, err := enricher.Enrich(context.Background(), "p1", model.Intent{Target: "pm2.5"}, cands)
	if err != nil {
		t.Fatalf("Enrich failed: %v", err)
	}
	if sel == nil {
		t.Fatal("Expected a selected source")
	}

	if sel.Identifier != "high.example.gov" {
		t.Errorf("Expected highest-scored candidate selected, got %s", sel.Identifier)
	}
	if sel.RelevanceScore != 92 {
		t.Errorf("Expected relevance 92, got %d", sel.RelevanceScore)
	}
	if sel.QualityRating != 82 {
		t.Errorf("Expected quality 82, got %d", sel.QualityRating)
	}
	if sel.Credibility != model.TierHigh {
		t.Errorf("Expected high credibility for .gov, got %s", sel.Credibility)
	}

	// Only the winner is crawled.
	if len(scraper.calls) != 1 || scraper.calls[0] != "https://high.example.gov" {
		t.Errorf("Unexpected scrape calls: %v", scraper.calls)
	}

	project, _ := st.GetProject(context.Background(), "p1")
	winner := project.Candidate("high.example.gov")
	if winner.Status != model.StatusSelected {
		t.Errorf("Expected winner selected, got %s", winner.Status)
	}
	if winner.Enrichment == nil {
		t.Fatal("Expected enrichment persisted")
	}
	if len(winner.Enrichment.FeaturesFound) != 2 {
		t.Errorf("Expected 2 features, got %v", winner.Enrichment.FeaturesFound)
	}
	if winner.Enrichment.Sample == "" {
		t.Error("Expected a stored sample")
	}
	loser := project.Candidate("low.example.com")
	if loser.Status != model.StatusBackup {
		t.Errorf("Expected runner-up marked backup, got %s", loser.Status)
	}
	if project.Selected == nil || project.Selected.Identifier != "high.example.gov" {
		t.Errorf("Expected project selection recorded, got %+v", project.Selected)
	}
}

func TestEnricher_CascadesOnFailure(t *testing.T) {
	cands := []model.Candidate{
		validatedCandidate("best.example.com", 95),
		validatedCandidate("backup.example.com", 80),
	}
	st := store.NewMemoryStore()
	seedProject(t, st, "p1", cands)

	scraper := &stubScraper{
		errs: map[string]error{
			"https://best.example.com": &scrape.DeniedError{URL: "https://best.example.com", StatusCode: 403},
		},
		pages: map[string]*scrape.Result{
			"https://backup.example.com": {Title: "Backup", Sample: "data"},
		},
	}
	enricher := newTestEnricher(scraper, defaultSchemaJudge(), st)

	sel, err := enricher.Enrich(context.Background(), "p1", model.Intent{}, cands)
	if err != nil {
		t.Fatalf("Enrich failed: %v", err)
	}
	if sel.Identifier != "backup.example.com" {
		t.Errorf("Expected fallback selected, got %s", sel.Identifier)
	}

	project, _ := st.GetProject(context.Background(), "p1")
	if got := project.Candidate("best.example.com").Status; got != model.StatusFailed {
		t.Errorf("Expected denied candidate failed, got %s", got)
	}
	if got := project.Candidate("backup.example.com").Status; got != model.StatusSelected {
		t.Errorf("Expected fallback selected, got %s", got)
	}
}

func TestEnricher_RateLimitedCandidate(t *testing.T) {
	retryAt := time.Now().Add(time.Hour).Truncate(time.Second)
	cands := []model.Candidate{
		validatedCandidate("throttled.example.com", 95),
		validatedCandidate("open.example.com", 80),
	}
	st := store.NewMemoryStore()
	seedProject(t, st, "p1", cands)

	scraper := &stubScraper{
		errs: map[string]error{
			"https://throttled.example.com": &scrape.RateLimitedError{
				URL:        "https://throttled.example.com",
				StatusCode: 429,
				RetryAfter: retryAt,
			},
		},
		pages: map[string]*scrape.Result{
			"https://open.example.com": {Title: "Open", Sample: "data"},
		},
	}
	enricher := newTestEnricher(scraper, defaultSchemaJudge(), st)

	sel, err := enricher.Enrich(context.Background(), "p1", model.Intent{}, cands)
	if err != nil {
		t.Fatalf("Enrich failed: %v", err)
	}
	if sel.Identifier != "open.example.com" {
		t.Errorf("Expected open candidate selected, got %s", sel.Identifier)
	}

	project, _ := st.GetProject(context.Background(), "p1")
	throttled := project.Candidate("throttled.example.com")
	if throttled.Status != model.StatusRateLimited {
		t.Errorf("Expected rate_limited status, got %s", throttled.Status)
	}
	if throttled.RetryAfter == nil || !throttled.RetryAfter.Equal(retryAt) {
		t.Errorf("Expected retry_after %v, got %v", retryAt, throttled.RetryAfter)
	}
}

func TestEnricher_Exhausted(t *testing.T) {
	cands := []model.Candidate{
		validatedCandidate("one.example.com", 90),
		validatedCandidate("two.example.com", 85),
	}
	st := store.NewMemoryStore()
	seedProject(t, st, "p1", cands)

	scraper := &stubScraper{errs: map[string]error{
		"https://one.example.com": errors.New("connection refused"),
		"https://two.example.com": errors.New("connection refused"),
	}}
	enricher := newTestEnricher(scraper, defaultSchemaJudge(), st)

	_, err := enricher.Enrich(context.Background(), "p1", model.Intent{}, cands)
	if !errors.Is(err, cascade.ErrExhausted) {
		t.Fatalf("Expected ErrExhausted, got %v", err)
	}

	project, _ := st.GetProject(context.Background(), "p1")
	for _, id := range []string{"one.example.com", "two.example.com"} {
		if got := project.Candidate(id).Status; got != model.StatusFailed {
			t.Errorf("Expected %s failed, got %s", id, got)
		}
	}
	if project.Selected != nil {
		t.Errorf("Expected no selection, got %+v", project.Selected)
	}
}

func TestEnricher_SchemaDetectionDegrades(t *testing.T) {
	cands := []model.Candidate{validatedCandidate("site.example.com", 90)}
	st := store.NewMemoryStore()
	seedProject(t, st, "p1", cands)

	scraper := &stubScraper{pages: map[string]*scrape.Result{
		"https://site.example.com": {
			Title:    "Site",
			Sample:   "station,pm2.5\nA,1.0",
			Features: []string{"station", "pm2.5"},
		},
	}}
	judge := &testJudge{schemaFn: func(llm.SchemaRequest) (*llm.SchemaReport, error) {
		return nil, errors.New("judge down")
	}}
	enricher := newTestEnricher(scraper, judge, st)

	sel, err := enricher.Enrich(context.Background(), "p1", model.Intent{}, cands)
	if err != nil {
		t.Fatalf("Enrich failed: %v", err)
	}
	if sel.QualityRating != 0 {
		t.Errorf("Expected zero quality without the judge, got %d", sel.QualityRating)
	}
	if len(sel.FeaturesFound) != 2 {
		t.Errorf("Expected extractor features kept, got %v", sel.FeaturesFound)
	}
}

func TestEnricher_RanksByScore(t *testing.T) {
	// Discovery order differs from score order; score must win.
	cands := []model.Candidate{
		validatedCandidate("second.example.com", 60),
		validatedCandidate("first.example.com", 95),
	}
	st := store.NewMemoryStore()
	seedProject(t, st, "p1", cands)

	scraper := &stubScraper{pages: map[string]*scrape.Result{
		"https://first.example.com": {Title: "First", Sample: "data"},
	}}
	enricher := newTestEnricher(scraper, defaultSchemaJudge(), st)

	sel, err := enricher.Enrich(context.Background(), "p1", model.Intent{}, cands)
	if err != nil {
		t.Fatalf("Enrich failed: %v", err)
	}
	if sel.Identifier != "first.example.com" {
		t.Errorf("Expected highest score attempted first, got %s", sel.Identifier)
	}
	if len(scraper.calls) != 1 || scraper.calls[0] != "https://first.example.com" {
		t.Errorf("Unexpected scrape order: %v", scraper.calls)
	}
}

func TestEnricher_ClipsStoredSample(t *testing.T) {
	cands := []model.Candidate{validatedCandidate("big.example.com", 90)}
	st := store.NewMemoryStore()
	seedProject(t, st, "p1", cands)

	scraper := &stubScraper{pages: map[string]*scrape.Result{
		"https://big.example.com": {Title: "Big", Sample: strings.Repeat("x", 9000)},
	}}
	enricher := newTestEnricher(scraper, defaultSchemaJudge(), st)

	if _, err := enricher.Enrich(context.Background(), "p1", model.Intent{}, cands); err != nil {
		t.Fatalf("Enrich failed: %v", err)
	}

	project, _ := st.GetProject(context.Background(), "p1")
	sample := project.Candidate("big.example.com").Enrichment.Sample
	if len(sample) != maxStoredSample {
		t.Errorf("Expected sample clipped to %d bytes, got %d", maxStoredSample, len(sample))
	}
}

func TestEnricher_NoValidatedCandidates(t *testing.T) {
	st := store.NewMemoryStore()
	seedProject(t, st, "p1", nil)
	enricher := newTestEnricher(&stubScraper{}, defaultSchemaJudge(), st)

	sel, err := enricher.Enrich(context.Background(), "p1", model.Intent{}, nil)
	if err != nil {
		t.Fatalf("Expected no error for empty input, got %v", err)
	}
	if sel != nil {
		t.Errorf("Expected nil selection, got %+v", sel)
	}
}
