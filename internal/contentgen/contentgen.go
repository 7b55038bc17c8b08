// Package contentgen generates SEO content drafts with an LLM.
package contentgen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// Outline is a generated article outline for a target keyword.
type Outline struct {
	Title    string   `json:"title"`
	Sections []string `json:"sections"`
}

// Service is the content-generation surface the feature handlers use.
type Service interface {
	GenerateOutline(ctx context.Context, keyword, audience string) (*Outline, error)
	GenerateTitles(ctx context.Context, keyword string, count int) ([]string, error)
}

type completionClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// GPTService generates content via the OpenAI chat completion API.
type GPTService struct {
	client completionClient
	model  string
}

// NewGPTService builds the service. An empty API key leaves the provider
// unconfigured: requests fail with ErrNotConfigured instead of startup failing.
func NewGPTService(apiKey string) *GPTService {
	svc := &GPTService{model: openai.GPT4o}
	if apiKey != "" {
		svc.client = openai.NewClient(apiKey)
	}
	return svc
}

// ErrNotConfigured is returned when no API key was provided at startup.
var ErrNotConfigured = errors.New("contentgen: provider not configured")

const outlineSystemPrompt = "You are an SEO content strategist. Respond only with JSON matching " +
	`{"title": string, "sections": [string]}. No markdown fences, no commentary.`

// GenerateOutline produces an article outline targeting the keyword.
func (s *GPTService) GenerateOutline(ctx context.Context, keyword, audience string) (*Outline, error) {
	if s.client == nil {
		return nil, ErrNotConfigured
	}

	prompt := fmt.Sprintf("Create an article outline targeting the keyword %q.", keyword)
	if audience != "" {
		prompt += fmt.Sprintf(" The audience is: %s.", audience)
	}

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: outlineSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens: 500,
	})
	if err != nil {
		return nil, fmt.Errorf("contentgen: generate outline: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("contentgen: generate outline: empty response")
	}

	var outline Outline
	if err := json.Unmarshal([]byte(stripFences(resp.Choices[0].Message.Content)), &outline); err != nil {
		return nil, fmt.Errorf("contentgen: parse outline: %w", err)
	}
	if outline.Title == "" || len(outline.Sections) == 0 {
		return nil, fmt.Errorf("contentgen: outline response missing title or sections")
	}
	return &outline, nil
}

// GenerateTitles produces candidate article titles for the keyword.
func (s *GPTService) GenerateTitles(ctx context.Context, keyword string, count int) ([]string, error) {
	if s.client == nil {
		return nil, ErrNotConfigured
	}
	if count <= 0 || count > 20 {
		count = 5
	}

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleSystem,
				Content: "You are an SEO copywriter. Respond only with a JSON array of strings. " +
					"No markdown fences, no commentary.",
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: fmt.Sprintf("Write %d compelling article titles targeting the keyword %q.", count, keyword),
			},
		},
		MaxTokens: 300,
	})
	if err != nil {
		return nil, fmt.Errorf("contentgen: generate titles: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("contentgen: generate titles: empty response")
	}

	var titles []string
	if err := json.Unmarshal([]byte(stripFences(resp.Choices[0].Message.Content)), &titles); err != nil {
		return nil, fmt.Errorf("contentgen: parse titles: %w", err)
	}
	if len(titles) == 0 {
		return nil, fmt.Errorf("contentgen: titles response was empty")
	}
	if len(titles) > count {
		titles = titles[:count]
	}
	return titles, nil
}

// stripFences removes a markdown code fence if the model added one despite
// the instructions. Models do this often enough to handle it.
func stripFences(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	return strings.TrimSpace(content)
}
