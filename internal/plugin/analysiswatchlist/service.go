package analysiswatchlist

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/haasonsaas/groupchat/internal/llm"
)

// Service parses free-form watchlist descriptions into structured
// components and scores agent messages against them, both via a single
// llm.Client so either configured provider (Anthropic or OpenAI) exercises
// the same code path.
type Service struct {
	client llm.Client
}

// NewService returns a Service backed by client.
func NewService(client llm.Client) *Service {
	return &Service{client: client}
}

type parsedComponent struct {
	Label       string `json:"label"`
	Description string `json:"description"`
}

type parseResponse struct {
	Components []parsedComponent `json:"components"`
}

// ParsePrompt extracts 2-5 components from a user's free-form description
// of what to watch for. It returns an empty slice (not an error) on a
// malformed LLM response, matching the original service's "fail open"
// behavior for this one-shot setup call.
func (s *Service) ParsePrompt(ctx context.Context, prompt string) ([]Component, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, nil
	}

	text := fmt.Sprintf(parseComponentsPrompt, prompt)
	result, err := s.client.Create(ctx, []llm.Message{
		{Role: llm.RoleUser, Content: text},
	}, llm.Options{})
	if err != nil {
		return nil, fmt.Errorf("parsing watchlist prompt: %w", err)
	}

	var parsed parseResponse
	if err := json.Unmarshal([]byte(extractJSON(result.Content)), &parsed); err != nil {
		return nil, nil
	}

	components := make([]Component, 0, len(parsed.Components))
	for _, c := range parsed.Components {
		label := strings.TrimSpace(c.Label)
		description := strings.TrimSpace(c.Description)
		if label == "" || description == "" {
			continue
		}
		components = append(components, NewComponent(label, description))
	}
	return components, nil
}

type scoreItem struct {
	Label string `json:"label"`
	Score int    `json:"score"`
}

type reasoningItem struct {
	Label     string `json:"label"`
	Reasoning string `json:"reasoning"`
}

type scoreResponse struct {
	ComponentScores    []scoreItem     `json:"component_scores"`
	ComponentReasoning []reasoningItem `json:"component_reasoning"`
}

// ScoreMessage scores message against every component, returning a score
// for each. On any parsing failure it falls back to a default score of 5
// for every component rather than erroring, matching the original's
// "never let analysis scoring crash the run" posture.
func (s *Service) ScoreMessage(ctx context.Context, message string, components []Component, toolCallFacts, stateOfRun string, triggerThreshold int) (map[string]Score, error) {
	if strings.TrimSpace(message) == "" || len(components) == 0 {
		return map[string]Score{}, nil
	}

	prompt := buildScoringPrompt(message, components, toolCallFacts, stateOfRun, triggerThreshold)
	result, err := s.client.Create(ctx, []llm.Message{
		{Role: llm.RoleUser, Content: prompt},
	}, llm.Options{})
	if err != nil {
		return defaultScores(components, "default score - analysis error"), nil
	}

	var parsed scoreResponse
	if err := json.Unmarshal([]byte(extractJSON(result.Content)), &parsed); err != nil {
		return defaultScores(components, "default score - JSON parsing failed"), nil
	}
	if len(parsed.ComponentScores) == 0 {
		return defaultScores(components, "default score - analysis unavailable"), nil
	}

	reasoningByLabel := make(map[string]string, len(parsed.ComponentReasoning))
	for _, r := range parsed.ComponentReasoning {
		reasoningByLabel[r.Label] = r.Reasoning
	}

	scores := make(map[string]Score, len(parsed.ComponentScores))
	for _, item := range parsed.ComponentScores {
		scores[item.Label] = Score{
			Value:     clamp(item.Score),
			Reasoning: reasoningByLabel[item.Label],
		}
	}
	return scores, nil
}

func defaultScores(components []Component, reasoning string) map[string]Score {
	out := make(map[string]Score, len(components))
	for _, c := range components {
		out[c.Label] = Score{Value: 5, Reasoning: reasoning}
	}
	return out
}

// extractJSON trims leading/trailing prose a model sometimes wraps JSON in,
// by taking the substring between the first '{' and the last '}'.
func extractJSON(s string) string {
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start == -1 || end == -1 || end < start {
		return s
	}
	return s[start : end+1]
}
