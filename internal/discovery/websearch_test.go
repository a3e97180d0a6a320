package discovery

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"datahound/internal/model"
)

func newTestWebSearch(t *testing.T, handler http.HandlerFunc) *WebSearch {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewWebSearch(
		model.DiscoveryConfig{SearchEndpoint: server.URL, SearchAPIKey: "test-key"},
		model.HTTPConfig{Timeout: 5 * time.Second, UserAgent: "datahound/0.1"},
	)
}

func TestWebSearch_Search(t *testing.T) {
	var gotAuth string
	var gotReq webSearchRequest

	ws := newTestWebSearch(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("Failed to decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"data": []map[string]string{
				{"url": "https://epa.gov/air-data", "title": "EPA Air Data", "description": "Hourly PM2.5 readings"},
				{"link": "https://example.com/aqi", "title": "AQI Archive", "snippet": "Historical AQI"},
			},
		})
	})

	intent := model.Intent{SearchQueries: []string{"pm2.5 dataset"}}
	got, err := ws.Search(context.Background(), intent, 10)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	if gotAuth != "Bearer test-key" {
		t.Errorf("Expected bearer auth, got %q", gotAuth)
	}
	if gotReq.Query != "pm2.5 dataset" {
		t.Errorf("Expected query forwarded, got %q", gotReq.Query)
	}
	if gotReq.Limit != 10 {
		t.Errorf("Expected limit 10, got %d", gotReq.Limit)
	}

	if len(got) != 2 {
		t.Fatalf("Expected 2 hits, got %d", len(got))
	}
	if got[0].URL != "https://epa.gov/air-data" || got[0].Snippet != "Hourly PM2.5 readings" {
		t.Errorf("Unexpected first hit: %+v", got[0])
	}
	if got[1].URL != "https://example.com/aqi" || got[1].Snippet != "Historical AQI" {
		t.Errorf("Expected link and snippet fallbacks, got %+v", got[1])
	}
}

func TestWebSearch_ResponseShapes(t *testing.T) {
	hit := map[string]string{"url": "https://example.com/data", "title": "Data"}

	tests := []struct {
		name string
		body any
	}{
		{"bare list", []any{hit}},
		{"data list", map[string]any{"data": []any{hit}}},
		{"data web wrapper", map[string]any{"data": map[string]any{"web": []any{hit}}}},
		{"data results wrapper", map[string]any{"data": map[string]any{"results": []any{hit}}}},
		{"top-level results", map[string]any{"results": []any{hit}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ws := newTestWebSearch(t, func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(tt.body)
			})
			got, err := ws.Search(context.Background(), model.Intent{SearchQueries: []string{"q"}}, 5)
			if err != nil {
				t.Fatalf("Search failed: %v", err)
			}
			if len(got) != 1 || got[0].URL != "https://example.com/data" {
				t.Errorf("Expected 1 parsed hit, got %+v", got)
			}
		})
	}
}

func TestWebSearch_QueryFailureSkipped(t *testing.T) {
	var calls atomic.Int32
	ws := newTestWebSearch(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]string{{"url": "https://example.com/ok", "title": "OK"}},
		})
	})

	intent := model.Intent{SearchQueries: []string{"bad query", "good query"}}
	got, err := ws.Search(context.Background(), intent, 5)
	if err != nil {
		t.Fatalf("Expected partial success, got error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Expected 1 hit from the surviving query, got %d", len(got))
	}
}

func TestWebSearch_AllQueriesFail(t *testing.T) {
	ws := newTestWebSearch(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := ws.Search(context.Background(), model.Intent{SearchQueries: []string{"q"}}, 5)
	if err == nil {
		t.Fatal("Expected an error when every query fails")
	}
}

func TestWebSearch_TargetFallbackQuery(t *testing.T) {
	var gotReq webSearchRequest
	ws := newTestWebSearch(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotReq)
		json.NewEncoder(w).Encode(map[string]any{"data": []any{}})
	})

	_, err := ws.Search(context.Background(), model.Intent{Target: "air quality"}, 5)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if gotReq.Query != "air quality" {
		t.Errorf("Expected target used as query, got %q", gotReq.Query)
	}
}

func TestWebSearch_NoEndpoint(t *testing.T) {
	ws := NewWebSearch(model.DiscoveryConfig{}, model.HTTPConfig{})
	_, err := ws.Search(context.Background(), model.Intent{SearchQueries: []string{"q"}}, 5)
	if err == nil {
		t.Fatal("Expected an error without an endpoint")
	}
}
