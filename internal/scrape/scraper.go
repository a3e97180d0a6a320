package scrape

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"datahound/internal/model"
	"datahound/internal/util"
	"datahound/internal/worker"
)

// Cooldown windows for throttled hosts. A 429 without Retry-After
// parks the host for an hour; gateway and request timeouts for half
// that.
const (
	defaultRetryAfter = 3600 * time.Second
	timeoutRetryAfter = 1800 * time.Second
)

// DeniedError reports an access-denied fetch (401/403 or robots.txt).
type DeniedError struct {
	URL        string
	StatusCode int // 0 when robots.txt denied the fetch
}

func (e *DeniedError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("scrape %s: denied by robots.txt", e.URL)
	}
	return fmt.Sprintf("scrape %s: access denied (status %d)", e.URL, e.StatusCode)
}

// RateLimitedError reports a throttled fetch and when to retry.
type RateLimitedError struct {
	URL        string
	StatusCode int
	RetryAfter time.Time
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("scrape %s: rate limited until %s", e.URL, e.RetryAfter.Format(time.RFC3339))
}

// Result is one successful scrape.
type Result struct {
	Title    string
	Sample   string
	Features []string
	FinalURL string
}

// Scraper fetches pages politely: robots.txt gate, per-host rate
// limiting, and cooldowns for hosts that throttle us.
type Scraper struct {
	fetcher *Fetcher
	robots  *util.RobotsChecker
	limiter *worker.Limiter

	now func() time.Time
}

// NewScraper creates a Scraper from the HTTP configuration.
func NewScraper(cfg model.HTTPConfig) *Scraper {
	return &Scraper{
		fetcher: NewFetcher(cfg),
		robots:  util.NewRobotsChecker(cfg.UserAgent, cfg.Timeout),
		limiter: worker.NewLimiter(1, 2),
		now:     time.Now,
	}
}

// Scrape fetches and extracts one URL. Denials and throttling come
// back as typed errors so callers can label the candidate instead of
// treating them as hard failures.
func (s *Scraper) Scrape(ctx context.Context, rawURL string) (*Result, error) {
	if until, ok := s.limiter.Snoozed(rawURL); ok {
		return nil, &RateLimitedError{URL: rawURL, RetryAfter: until}
	}

	allowed, crawlDelay, err := s.robots.CanFetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, &DeniedError{URL: rawURL}
	}
	if crawlDelay > 0 {
		if u, err := url.Parse(rawURL); err == nil {
			s.limiter.SetHostRate(u.Host, 1/crawlDelay.Seconds(), 1)
		}
	}

	if err := s.limiter.Wait(ctx, rawURL); err != nil {
		return nil, err
	}

	fetched, err := s.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return nil, err
	}

	switch {
	case fetched.StatusCode == http.StatusUnauthorized || fetched.StatusCode == http.StatusForbidden:
		return nil, &DeniedError{URL: rawURL, StatusCode: fetched.StatusCode}

	case fetched.StatusCode == http.StatusTooManyRequests:
		until := s.now().Add(retryAfterIn(fetched.RetryAfter, defaultRetryAfter))
		s.limiter.Snooze(rawURL, until)
		return nil, &RateLimitedError{URL: rawURL, StatusCode: fetched.StatusCode, RetryAfter: until}

	case fetched.StatusCode == http.StatusGatewayTimeout || fetched.StatusCode == http.StatusRequestTimeout:
		until := s.now().Add(timeoutRetryAfter)
		s.limiter.Snooze(rawURL, until)
		return nil, &RateLimitedError{URL: rawURL, StatusCode: fetched.StatusCode, RetryAfter: until}

	case fetched.StatusCode < 200 || fetched.StatusCode >= 300:
		return nil, fmt.Errorf("scrape %s: unexpected status %d", rawURL, fetched.StatusCode)
	}

	page := ExtractPage(fetched.Body, fetched.ContentType)
	if page.Text == "" {
		return nil, fmt.Errorf("scrape %s: no readable content", rawURL)
	}

	return &Result{
		Title:    page.Title,
		Sample:   page.Text,
		Features: page.Features,
		FinalURL: fetched.FinalURL,
	}, nil
}

// retryAfterIn converts a Retry-After header into a wait duration.
func retryAfterIn(header string, fallback time.Duration) time.Duration {
	if header == "" {
		return fallback
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(header)); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(header); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return fallback
}
