// Package keyworddata wraps the keyword-data provider's REST API directly
// (no SDK dependency).
package keyworddata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// KeywordMetrics is the provider's view of one keyword.
type KeywordMetrics struct {
	Keyword        string  `json:"keyword"`
	SearchVolume   int     `json:"search_volume"`
	CPC            float64 `json:"cpc"`
	Competition    float64 `json:"competition"`
	Difficulty     int     `json:"keyword_difficulty"`
	MonthlyTrend   []int   `json:"monthly_trend,omitempty"`
	RelatedKeyword []struct {
		Keyword      string `json:"keyword"`
		SearchVolume int    `json:"search_volume"`
	} `json:"related_keywords,omitempty"`
}

// CompetitorEntry is one domain competing for a target domain's keywords.
type CompetitorEntry struct {
	Domain          string  `json:"domain"`
	CommonKeywords  int     `json:"common_keywords"`
	OrganicTraffic  float64 `json:"organic_traffic"`
	OrganicKeywords int     `json:"organic_keywords"`
}

// SerpEntry is one organic result for a keyword query.
type SerpEntry struct {
	Position    int    `json:"position"`
	URL         string `json:"url"`
	Domain      string `json:"domain"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// Client calls the keyword-data provider's REST API using basic auth.
type Client struct {
	login      string
	password   string
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a keyword-data API client. baseURL may be empty for the
// production endpoint.
func NewClient(login, password, baseURL string) *Client {
	if baseURL == "" {
		baseURL = "https://api.dataforseo.com"
	}
	return &Client{
		login:      login,
		password:   password,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    baseURL,
	}
}

// AnalyzeKeyword fetches search volume and difficulty data for one keyword.
func (c *Client) AnalyzeKeyword(ctx context.Context, keyword, locationCode string) (*KeywordMetrics, error) {
	payload := []map[string]interface{}{{
		"keyword":       keyword,
		"location_code": locationCode,
		"language_code": "en",
	}}

	results, err := c.post(ctx, "/v3/keywords_data/google_ads/search_volume/live", payload)
	if err != nil {
		return nil, fmt.Errorf("analyze keyword: %w", err)
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("analyze keyword: empty result for %q", keyword)
	}

	var metrics KeywordMetrics
	if err := json.Unmarshal(results[0], &metrics); err != nil {
		return nil, fmt.Errorf("analyze keyword: parse result: %w", err)
	}
	if metrics.Keyword == "" {
		metrics.Keyword = keyword
	}
	return &metrics, nil
}

// CompetitorDomains fetches domains competing with the target domain.
func (c *Client) CompetitorDomains(ctx context.Context, domain string) ([]CompetitorEntry, error) {
	payload := []map[string]interface{}{{
		"target":        domain,
		"language_code": "en",
		"limit":         20,
	}}

	results, err := c.post(ctx, "/v3/dataforseo_labs/google/competitors_domain/live", payload)
	if err != nil {
		return nil, fmt.Errorf("competitor domains: %w", err)
	}

	entries := make([]CompetitorEntry, 0, len(results))
	for _, raw := range results {
		var entry CompetitorEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			return nil, fmt.Errorf("competitor domains: parse result: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// SerpResults fetches the organic results page for a keyword.
func (c *Client) SerpResults(ctx context.Context, keyword, locationCode string) ([]SerpEntry, error) {
	payload := []map[string]interface{}{{
		"keyword":       keyword,
		"location_code": locationCode,
		"language_code": "en",
		"depth":         10,
	}}

	results, err := c.post(ctx, "/v3/serp/google/organic/live/regular", payload)
	if err != nil {
		return nil, fmt.Errorf("serp results: %w", err)
	}

	entries := make([]SerpEntry, 0, len(results))
	for _, raw := range results {
		var entry SerpEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			return nil, fmt.Errorf("serp results: parse result: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// taskEnvelope is the provider's standard response wrapper: a task batch
// where each task carries its own status and result array.
type taskEnvelope struct {
	StatusCode    int    `json:"status_code"`
	StatusMessage string `json:"status_message"`
	Tasks         []struct {
		StatusCode    int               `json:"status_code"`
		StatusMessage string            `json:"status_message"`
		Result        []json.RawMessage `json:"result"`
	} `json:"tasks"`
}

func (c *Client) post(ctx context.Context, path string, payload interface{}) ([]json.RawMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.login, c.password)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("keyword API request failed: %w", err)
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, resp.Body); err != nil {
		return nil, fmt.Errorf("read keyword API response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("keyword API error (%d): %s", resp.StatusCode, buf.String())
	}

	var envelope taskEnvelope
	if err := json.Unmarshal(buf.Bytes(), &envelope); err != nil {
		return nil, fmt.Errorf("parse keyword API response: %w", err)
	}
	if envelope.StatusCode >= 40000 {
		return nil, fmt.Errorf("keyword API error (%d): %s", envelope.StatusCode, envelope.StatusMessage)
	}

	var results []json.RawMessage
	for _, task := range envelope.Tasks {
		if task.StatusCode >= 40000 {
			return nil, fmt.Errorf("keyword API task error (%d): %s", task.StatusCode, task.StatusMessage)
		}
		results = append(results, task.Result...)
	}
	return results, nil
}
