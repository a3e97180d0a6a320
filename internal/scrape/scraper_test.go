package scrape

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"datahound/internal/model"
)

func testScraper() *Scraper {
	return NewScraper(model.HTTPConfig{
		Timeout:      5 * time.Second,
		UserAgent:    "datahound/0.1",
		MaxBodyBytes: 1 << 20,
		MaxRedirects: 3,
	})
}

func TestScraper_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><head><title>Dataset</title></head><body><table><tr><th>a</th><th>b</th></tr></table></body></html>`))
	}))
	defer server.Close()

	result, err := testScraper().Scrape(context.Background(), server.URL+"/data")
	if err != nil {
		t.Fatalf("Scrape failed: %v", err)
	}

	if result.Title != "Dataset" {
		t.Errorf("Expected title Dataset, got %q", result.Title)
	}
	if len(result.Features) != 2 {
		t.Errorf("Expected 2 features, got %v", result.Features)
	}
	if result.FinalURL == "" {
		t.Error("Expected final URL to be set")
	}
}

func TestScraper_AccessDenied(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/robots.txt" {
				http.NotFound(w, r)
				return
			}
			w.WriteHeader(status)
		}))

		_, err := testScraper().Scrape(context.Background(), server.URL+"/private")
		server.Close()

		var denied *DeniedError
		if !errors.As(err, &denied) {
			t.Fatalf("Expected DeniedError for status %d, got %v", status, err)
		}
		if denied.StatusCode != status {
			t.Errorf("Expected status %d in error, got %d", status, denied.StatusCode)
		}
	}
}

func TestScraper_RobotsDenied(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			_, _ = w.Write([]byte("User-agent: *\nDisallow: /private\n"))
			return
		}
		t.Errorf("Unexpected fetch of %s past robots.txt", r.URL.Path)
	}))
	defer server.Close()

	_, err := testScraper().Scrape(context.Background(), server.URL+"/private/data.csv")

	var denied *DeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("Expected DeniedError, got %v", err)
	}
	if denied.StatusCode != 0 {
		t.Errorf("Expected robots denial (status 0), got %d", denied.StatusCode)
	}
}

func TestScraper_RateLimited(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Retry-After", "60")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	scraper := testScraper()
	before := time.Now()

	_, err := scraper.Scrape(context.Background(), server.URL+"/data")

	var limited *RateLimitedError
	if !errors.As(err, &limited) {
		t.Fatalf("Expected RateLimitedError, got %v", err)
	}

	wait := limited.RetryAfter.Sub(before)
	if wait < 55*time.Second || wait > 65*time.Second {
		t.Errorf("Expected Retry-After header to be honored (~60s), got %v", wait)
	}

	// The host is now parked: a second scrape short-circuits without
	// touching the network.
	served := atomic.LoadInt32(&requests)
	_, err = scraper.Scrape(context.Background(), server.URL+"/other")
	if !errors.As(err, &limited) {
		t.Fatalf("Expected RateLimitedError from cooldown, got %v", err)
	}
	if got := atomic.LoadInt32(&requests); got != served {
		t.Errorf("Expected no further requests while parked, got %d more", got-served)
	}
}

func TestScraper_RateLimited_DefaultWindow(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	before := time.Now()
	_, err := testScraper().Scrape(context.Background(), server.URL+"/data")

	var limited *RateLimitedError
	if !errors.As(err, &limited) {
		t.Fatalf("Expected RateLimitedError, got %v", err)
	}
	wait := limited.RetryAfter.Sub(before)
	if wait < defaultRetryAfter-time.Minute || wait > defaultRetryAfter+time.Minute {
		t.Errorf("Expected default cooldown near %v, got %v", defaultRetryAfter, wait)
	}
}

func TestScraper_UpstreamTimeout(t *testing.T) {
	for _, status := range []int{http.StatusGatewayTimeout, http.StatusRequestTimeout} {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/robots.txt" {
				http.NotFound(w, r)
				return
			}
			w.WriteHeader(status)
		}))

		before := time.Now()
		_, err := testScraper().Scrape(context.Background(), server.URL+"/data")
		server.Close()

		var limited *RateLimitedError
		if !errors.As(err, &limited) {
			t.Fatalf("Expected RateLimitedError for status %d, got %v", status, err)
		}
		wait := limited.RetryAfter.Sub(before)
		if wait < timeoutRetryAfter-time.Minute || wait > timeoutRetryAfter+time.Minute {
			t.Errorf("Expected cooldown near %v for status %d, got %v", timeoutRetryAfter, status, wait)
		}
	}
}

func TestScraper_HardStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		http.NotFound(w, r)
	}))
	defer server.Close()

	_, err := testScraper().Scrape(context.Background(), server.URL+"/gone")
	if err == nil {
		t.Fatal("Expected error, got nil")
	}

	var denied *DeniedError
	var limited *RateLimitedError
	if errors.As(err, &denied) || errors.As(err, &limited) {
		t.Fatalf("Expected a plain error for 404, got %T", err)
	}
}

func TestFetcher_LimitsBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 4096)))
	}))
	defer server.Close()

	fetcher := NewFetcher(model.HTTPConfig{
		Timeout:      5 * time.Second,
		UserAgent:    "datahound/0.1",
		MaxBodyBytes: 1024,
	})

	result, err := fetcher.Fetch(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(result.Body) != 1024 {
		t.Errorf("Expected body capped at 1024 bytes, got %d", len(result.Body))
	}
}

func TestFetcher_SendsUserAgent(t *testing.T) {
	var gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
	}))
	defer server.Close()

	fetcher := NewFetcher(model.HTTPConfig{Timeout: 5 * time.Second, UserAgent: "datahound/0.1"})
	if _, err := fetcher.Fetch(context.Background(), server.URL); err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if gotUA != "datahound/0.1" {
		t.Errorf("Expected User-Agent datahound/0.1, got %q", gotUA)
	}
}

func TestRetryAfterIn(t *testing.T) {
	if got := retryAfterIn("120", time.Hour); got != 2*time.Minute {
		t.Errorf("Expected 2m for seconds header, got %v", got)
	}
	if got := retryAfterIn("", time.Hour); got != time.Hour {
		t.Errorf("Expected fallback for empty header, got %v", got)
	}
	if got := retryAfterIn("soon", time.Hour); got != time.Hour {
		t.Errorf("Expected fallback for junk header, got %v", got)
	}

	at := time.Now().Add(10 * time.Minute).UTC().Format(http.TimeFormat)
	got := retryAfterIn(at, time.Hour)
	if got < 9*time.Minute || got > 11*time.Minute {
		t.Errorf("Expected ~10m for HTTP-date header, got %v", got)
	}
}
