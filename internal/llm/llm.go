// Package llm adapts an Eino ChatModel to the single text-generation
// contract the retrieval core needs. The same collaborator serves four
// call sites: safety classification, category classification, web-result
// distillation, and final answer generation — each differing only in its
// prompt and system instructions.
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// Generator produces text from a prompt under optional system instructions.
// Implementations must be safe to call from multiple goroutines.
type Generator interface {
	// Generate returns the model's text response for the given prompt.
	// system may be empty.
	Generate(ctx context.Context, prompt, system string) (string, error)
}

// ChatModelGenerator implements Generator on top of an Eino ChatModel.
type ChatModelGenerator struct {
	// model is the underlying chat model.
	model model.BaseChatModel
}

// NewChatModelGenerator wraps an Eino ChatModel as a Generator.
func NewChatModelGenerator(m model.BaseChatModel) (*ChatModelGenerator, error) {
	if m == nil {
		return nil, fmt.Errorf("llm: chat model must not be nil")
	}
	return &ChatModelGenerator{model: m}, nil
}

// Generate sends the prompt (plus optional system message) to the model and
// returns the trimmed response content.
func (g *ChatModelGenerator) Generate(ctx context.Context, prompt, system string) (string, error) {
	var msgs []*schema.Message
	if system != "" {
		msgs = append(msgs, schema.SystemMessage(system))
	}
	msgs = append(msgs, schema.UserMessage(prompt))

	resp, err := g.model.Generate(ctx, msgs)
	if err != nil {
		return "", fmt.Errorf("llm: generate failed: %w", err)
	}
	return strings.TrimSpace(resp.Content), nil
}
