package generate

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// GeminiGenerator implements Generator using Gemini text generation.
type GeminiGenerator struct {
	client        *genai.Client
	model         string
	promptBuilder *PromptBuilder
}

func NewGeminiGenerator(ctx context.Context, apiKey string, modelName string) (*GeminiGenerator, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &GeminiGenerator{
		client:        client,
		model:         modelName,
		promptBuilder: &PromptBuilder{},
	}, nil
}

func (g *GeminiGenerator) ProposePatch(ctx context.Context, req Request) (*Proposal, error) {
	prompt := g.promptBuilder.BuildPatchPrompt(req)

	contents := genai.Text(prompt)
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return nil, err
	}

	text := cleanJSONOutput(resp.Text())
	if text == "" {
		return nil, fmt.Errorf("empty model response")
	}

	var proposal Proposal
	if err := json.Unmarshal([]byte(text), &proposal); err != nil {
		return nil, fmt.Errorf("failed to parse model response as proposal: %w", err)
	}
	return &proposal, nil
}

func cleanJSONOutput(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimSuffix(text, "```")
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(text, "```")
	}
	return strings.TrimSpace(text)
}
