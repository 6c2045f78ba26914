package core

import "context"

// GenerateResult carries the model answer plus token usage for audit logging.
type GenerateResult struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
}

type EmbeddingProvider interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

type LLMProvider interface {
	Generate(ctx context.Context, systemPrompt string, userPrompt string) (*GenerateResult, error)
}
