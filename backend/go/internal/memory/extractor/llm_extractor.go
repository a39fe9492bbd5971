package extractor

import (
	"ai_mem/backend/go/internal/llm"
	"ai_mem/backend/go/internal/models"
	"context"
	"errors"
	"fmt"
)

// LLMExtractor extracts facts by prompting a language model and parsing its
// reply with ExtractFacts.
type LLMExtractor struct {
	llm llm.LLM
}

// NewLLMExtractor creates a new LLMExtractor.
func NewLLMExtractor(model llm.LLM) *LLMExtractor {
	return &LLMExtractor{llm: model}
}

// Extract sends the fact retrieval transcript for text and parses the reply.
// An error means generation itself failed. An empty or unparseable reply is
// not an error and yields no facts.
func (e *LLMExtractor) Extract(ctx context.Context, text string) ([]string, string, error) {
	req := &models.GenerateContentRequest{
		Messages: []models.Message{
			{Role: models.SpeakerSystem, Content: factRetrievalPrompt},
			{Role: models.SpeakerUser, Content: userPrompt(text)},
		},
	}
	resp, err := e.llm.GenerateContent(ctx, req)
	if errors.Is(err, llm.ErrEmptyResponse) {
		return []string{}, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate content: %w", err)
	}
	return ExtractFacts(resp.Text), resp.Text, nil
}
