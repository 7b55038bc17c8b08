package handlers

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/keywordpilot/backend/internal/contentgen"
	"github.com/keywordpilot/backend/internal/keyworddata"
	"github.com/keywordpilot/backend/internal/models"
)

// KeywordDataClient is the keyword-data provider surface the feature
// handlers use.
type KeywordDataClient interface {
	AnalyzeKeyword(ctx context.Context, keyword, locationCode string) (*keyworddata.KeywordMetrics, error)
	CompetitorDomains(ctx context.Context, domain string) ([]keyworddata.CompetitorEntry, error)
	SerpResults(ctx context.Context, keyword, locationCode string) ([]keyworddata.SerpEntry, error)
}

// badRequestError carries a validation failure out of Parse. The gate
// answers it with 400 before any credits are charged.
type badRequestError struct{ msg string }

func (e *badRequestError) Error() string { return e.msg }

func requiredField(name string) error {
	return &badRequestError{msg: name + " is required"}
}

func invalidJSON(err error) error {
	return &badRequestError{msg: "invalid JSON payload: " + err.Error()}
}

type keywordPayload struct {
	Keyword      string `json:"keyword"`
	LocationCode string `json:"location_code"`
}

type domainPayload struct {
	Domain string `json:"domain"`
}

type outlinePayload struct {
	Keyword  string `json:"keyword"`
	Audience string `json:"audience"`
}

type titlesPayload struct {
	Keyword string `json:"keyword"`
	Count   int    `json:"count"`
}

const defaultLocationCode = "2840" // United States

func parseKeywordPayload(body []byte) (any, error) {
	var payload keywordPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, invalidJSON(err)
	}
	payload.Keyword = strings.TrimSpace(payload.Keyword)
	if payload.Keyword == "" {
		return nil, requiredField("keyword")
	}
	if payload.LocationCode == "" {
		payload.LocationCode = defaultLocationCode
	}
	return payload, nil
}

// AnalyzeKeyword returns search volume and difficulty data for a keyword.
func AnalyzeKeyword(client KeywordDataClient) FeatureHandler {
	return FeatureHandler{
		Parse: parseKeywordPayload,
		Run: func(ctx context.Context, user *models.User, req any) (any, error) {
			payload := req.(keywordPayload)
			return client.AnalyzeKeyword(ctx, payload.Keyword, payload.LocationCode)
		},
	}
}

// CompetitorAnalysis returns domains competing with the target domain.
func CompetitorAnalysis(client KeywordDataClient) FeatureHandler {
	return FeatureHandler{
		Parse: func(body []byte) (any, error) {
			var payload domainPayload
			if err := json.Unmarshal(body, &payload); err != nil {
				return nil, invalidJSON(err)
			}
			payload.Domain = strings.TrimSpace(payload.Domain)
			if payload.Domain == "" {
				return nil, requiredField("domain")
			}
			return payload, nil
		},
		Run: func(ctx context.Context, user *models.User, req any) (any, error) {
			return client.CompetitorDomains(ctx, req.(domainPayload).Domain)
		},
	}
}

// SerpAnalysis returns the organic results page for a keyword.
func SerpAnalysis(client KeywordDataClient) FeatureHandler {
	return FeatureHandler{
		Parse: parseKeywordPayload,
		Run: func(ctx context.Context, user *models.User, req any) (any, error) {
			payload := req.(keywordPayload)
			return client.SerpResults(ctx, payload.Keyword, payload.LocationCode)
		},
	}
}

// ContentOutline generates an article outline targeting a keyword.
func ContentOutline(svc contentgen.Service) FeatureHandler {
	return FeatureHandler{
		Parse: func(body []byte) (any, error) {
			var payload outlinePayload
			if err := json.Unmarshal(body, &payload); err != nil {
				return nil, invalidJSON(err)
			}
			payload.Keyword = strings.TrimSpace(payload.Keyword)
			if payload.Keyword == "" {
				return nil, requiredField("keyword")
			}
			return payload, nil
		},
		Run: func(ctx context.Context, user *models.User, req any) (any, error) {
			payload := req.(outlinePayload)
			return svc.GenerateOutline(ctx, payload.Keyword, payload.Audience)
		},
	}
}

// TitleGeneration generates candidate article titles for a keyword.
func TitleGeneration(svc contentgen.Service) FeatureHandler {
	return FeatureHandler{
		Parse: func(body []byte) (any, error) {
			var payload titlesPayload
			if err := json.Unmarshal(body, &payload); err != nil {
				return nil, invalidJSON(err)
			}
			payload.Keyword = strings.TrimSpace(payload.Keyword)
			if payload.Keyword == "" {
				return nil, requiredField("keyword")
			}
			return payload, nil
		},
		Run: func(ctx context.Context, user *models.User, req any) (any, error) {
			payload := req.(titlesPayload)
			titles, err := svc.GenerateTitles(ctx, payload.Keyword, payload.Count)
			if err != nil {
				return nil, err
			}
			return map[string]any{"titles": titles}, nil
		},
	}
}
