package keyworddata

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func serveEnvelope(t *testing.T, results ...interface{}) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, _, ok := r.BasicAuth(); !ok {
			t.Error("expected basic auth credentials on the request")
		}
		raw := make([]json.RawMessage, 0, len(results))
		for _, result := range results {
			b, err := json.Marshal(result)
			if err != nil {
				t.Fatal(err)
			}
			raw = append(raw, b)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status_code": 20000,
			"tasks": []map[string]interface{}{
				{"status_code": 20000, "result": raw},
			},
		})
	}))
}

func TestAnalyzeKeyword(t *testing.T) {
	srv := serveEnvelope(t, map[string]interface{}{
		"keyword":       "espresso machine",
		"search_volume": 74000,
		"cpc":           1.35,
		"competition":   0.82,
	})
	defer srv.Close()

	client := NewClient("login", "password", srv.URL)
	metrics, err := client.AnalyzeKeyword(context.Background(), "espresso machine", "2840")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if metrics.SearchVolume != 74000 {
		t.Errorf("expected search volume 74000, got %d", metrics.SearchVolume)
	}
}

func TestAnalyzeKeywordEmptyResult(t *testing.T) {
	srv := serveEnvelope(t)
	defer srv.Close()

	client := NewClient("login", "password", srv.URL)
	if _, err := client.AnalyzeKeyword(context.Background(), "espresso machine", "2840"); err == nil {
		t.Fatal("expected an error for an empty result set")
	}
}

func TestSerpResults(t *testing.T) {
	srv := serveEnvelope(t,
		map[string]interface{}{"position": 1, "url": "https://example.com/a", "domain": "example.com", "title": "A"},
		map[string]interface{}{"position": 2, "url": "https://example.org/b", "domain": "example.org", "title": "B"},
	)
	defer srv.Close()

	client := NewClient("login", "password", srv.URL)
	entries, err := client.SerpResults(context.Background(), "espresso machine", "2840")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 2 || entries[0].Position != 1 {
		t.Errorf("unexpected entries: %+v", entries)
	}
}

func TestTaskErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status_code": 20000,
			"tasks": []map[string]interface{}{
				{"status_code": 40501, "status_message": "invalid field"},
			},
		})
	}))
	defer srv.Close()

	client := NewClient("login", "password", srv.URL)
	if _, err := client.SerpResults(context.Background(), "espresso machine", "2840"); err == nil {
		t.Fatal("expected a task-level error to surface")
	}
}
