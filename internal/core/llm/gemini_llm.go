package llm

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/citevault/citevault/internal/core"
)

type GeminiLLM struct {
	client    *genai.Client
	modelName string
}

var _ core.LLMProvider = (*GeminiLLM)(nil)

func NewGeminiLLM(ctx context.Context, apiKey, modelName string) (*GeminiLLM, error) {
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	if modelName == "" {
		modelName = "gemini-1.5-flash"
	}
	return &GeminiLLM{client: cl, modelName: modelName}, nil
}

func (g *GeminiLLM) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

// Generate produces one answer and reports token usage for the audit log.
func (g *GeminiLLM) Generate(ctx context.Context, systemPrompt, userPrompt string) (*core.GenerateResult, error) {
	m := g.client.GenerativeModel(g.modelName)
	m.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(systemPrompt)},
	}

	resp, err := m.GenerateContent(ctx, genai.Text(userPrompt))
	if err != nil {
		return nil, fmt.Errorf("gemini generate: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("gemini generate: empty response")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			sb.WriteString(string(t))
		}
	}

	res := &core.GenerateResult{Text: sb.String()}
	if resp.UsageMetadata != nil {
		res.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
		res.CompletionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return res, nil
}
