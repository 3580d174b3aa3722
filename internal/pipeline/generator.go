// File path: internal/pipeline/generator.go
package pipeline

import (
	"context"
	"strings"

	"github.com/nicodishanthj/vitaplan/internal/llm"
	"github.com/nicodishanthj/vitaplan/internal/llm/providers"
)

// Prompt is one rendered stage request.
type Prompt struct {
	Stage  StageID
	System string
	User   string
}

// Generator produces the narrative for a stage.
type Generator interface {
	Generate(ctx context.Context, prompt Prompt) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, prompt Prompt) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, prompt Prompt) (string, error) {
	return f(ctx, prompt)
}

// ProviderGenerator sends prompts to an llm.Provider as a system and user message.
type ProviderGenerator struct {
	provider llm.Provider
}

func NewProviderGenerator(provider llm.Provider) *ProviderGenerator {
	return &ProviderGenerator{provider: provider}
}

func (g *ProviderGenerator) Name() string {
	if g == nil || g.provider == nil {
		return ""
	}
	return g.provider.Name()
}

func (g *ProviderGenerator) Generate(ctx context.Context, prompt Prompt) (string, error) {
	messages := make([]llm.Message, 0, 2)
	if system := strings.TrimSpace(prompt.System); system != "" {
		messages = append(messages, llm.Message{Role: providers.RoleSystem, Content: system})
	}
	messages = append(messages, llm.Message{Role: providers.RoleUser, Content: prompt.User})
	out, err := g.provider.Chat(ctx, messages)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}
