package discovery

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"datahound/internal/model"
)

// FeedSearch discovers sources through a query-parameterized RSS or
// Atom endpoint, for portals that expose their catalog search as a
// feed. The template holds one %s that receives the escaped query.
type FeedSearch struct {
	template   string
	userAgent  string
	httpClient *http.Client
}

// NewFeedSearch builds the provider. The template comes from
// discovery.feed_template, e.g.
// https://example.org/datasets.rss?q=%s.
func NewFeedSearch(cfg model.DiscoveryConfig, httpCfg model.HTTPConfig) *FeedSearch {
	timeout := httpCfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &FeedSearch{
		template:   cfg.FeedTemplate,
		userAgent:  httpCfg.UserAgent,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (f *FeedSearch) Name() string {
	return "feed"
}

// Search fetches the feed once per query and flattens the items.
// Queries that fail to fetch or parse are skipped.
func (f *FeedSearch) Search(ctx context.Context, intent model.Intent, limit int) ([]RawCandidate, error) {
	if f.template == "" {
		return nil, fmt.Errorf("feed: no template configured")
	}

	queries := intent.SearchQueries
	if len(queries) == 0 && intent.Target != "" {
		queries = []string{intent.Target}
	}

	parser := gofeed.NewParser()
	out := make([]RawCandidate, 0, limit)

	for _, query := range queries {
		if len(out) >= limit {
			break
		}
		if ctx.Err() != nil {
			return out, ctx.Err()
		}

		feedURL := fmt.Sprintf(f.template, url.QueryEscape(query))
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
		if err != nil {
			continue
		}
		if f.userAgent != "" {
			req.Header.Set("User-Agent", f.userAgent)
		}
		resp, err := f.httpClient.Do(req)
		if err != nil {
			continue
		}
		feed, err := parser.Parse(resp.Body)
		resp.Body.Close()
		if err != nil {
			continue
		}

		for _, it := range feed.Items {
			if len(out) >= limit {
				break
			}
			link := strings.TrimSpace(it.Link)
			if link == "" {
				continue
			}
			out = append(out, RawCandidate{
				URL:     link,
				Title:   strings.TrimSpace(it.Title),
				Snippet: strings.TrimSpace(it.Description),
			})
		}
	}
	return out, nil
}
