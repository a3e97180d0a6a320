package discovery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"datahound/internal/model"
	"datahound/internal/util"
)

// WebSearch queries a JSON search API for live web results. Deployments
// answer in slightly different shapes, so the response parser accepts a
// bare hit list, a {"web": [...]} wrapper, and a {"results": [...]}
// wrapper.
type WebSearch struct {
	endpoint   string
	apiKey     string
	userAgent  string
	httpClient *http.Client
}

type webSearchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

type webSearchHit struct {
	URL         string `json:"url"`
	Link        string `json:"link"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Snippet     string `json:"snippet"`
}

// NewWebSearch builds the provider from the discovery and HTTP config.
func NewWebSearch(cfg model.DiscoveryConfig, httpCfg model.HTTPConfig) *WebSearch {
	timeout := httpCfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &WebSearch{
		endpoint:  strings.TrimSuffix(cfg.SearchEndpoint, "/"),
		apiKey:    cfg.SearchAPIKey,
		userAgent: httpCfg.UserAgent,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy: util.NewProxyFunc(httpCfg.HTTPProxy, httpCfg.HTTPSProxy),
			},
		},
	}
}

func (w *WebSearch) Name() string {
	return "websearch"
}

// Search runs every intent query against the search API. A query that
// errors is skipped so one bad query cannot sink the rest; the last
// error surfaces only when no query produced anything.
func (w *WebSearch) Search(ctx context.Context, intent model.Intent, limit int) ([]RawCandidate, error) {
	if w.endpoint == "" {
		return nil, fmt.Errorf("websearch: no endpoint configured")
	}

	queries := intent.SearchQueries
	if len(queries) == 0 && intent.Target != "" {
		queries = []string{intent.Target}
	}

	var out []RawCandidate
	var lastErr error
	for _, query := range queries {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		hits, err := w.search(ctx, query, limit)
		if err != nil {
			lastErr = err
			continue
		}
		for _, hit := range hits {
			href := hit.URL
			if href == "" {
				href = hit.Link
			}
			if href == "" {
				continue
			}
			snippet := hit.Description
			if snippet == "" {
				snippet = hit.Snippet
			}
			out = append(out, RawCandidate{URL: href, Title: hit.Title, Snippet: snippet})
		}
	}
	if len(out) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return out, nil
}

// search performs one API call.
func (w *WebSearch) search(ctx context.Context, query string, limit int) ([]webSearchHit, error) {
	body, err := json.Marshal(webSearchRequest{Query: query, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if w.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+w.apiKey)
	}
	if w.userAgent != "" {
		httpReq.Header.Set("User-Agent", w.userAgent)
	}

	httpResp, err := w.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if httpResp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("search API rate limited (429)")
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search API error (%d): %s", httpResp.StatusCode, firstBytes(respBody, 200))
	}

	return parseSearchHits(respBody)
}

// parseSearchHits handles the response shapes the API is known to
// produce: {"data": [...]}, {"data": {"web": [...]}},
// {"data": {"results": [...]}}, {"results": [...]}, or a bare list.
func parseSearchHits(body []byte) ([]webSearchHit, error) {
	var bare []webSearchHit
	if err := json.Unmarshal(body, &bare); err == nil {
		return bare, nil
	}

	var envelope struct {
		Data    json.RawMessage `json:"data"`
		Results []webSearchHit  `json:"results"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	if len(envelope.Data) > 0 {
		var list []webSearchHit
		if err := json.Unmarshal(envelope.Data, &list); err == nil {
			return list, nil
		}
		var nested struct {
			Web     []webSearchHit `json:"web"`
			Results []webSearchHit `json:"results"`
		}
		if err := json.Unmarshal(envelope.Data, &nested); err == nil {
			if len(nested.Web) > 0 {
				return nested.Web, nil
			}
			if len(nested.Results) > 0 {
				return nested.Results, nil
			}
		}
	}
	return envelope.Results, nil
}

func firstBytes(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return string(b)
}
