// File path: internal/llm/providers/local.go
package providers

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

type Message struct {
	Role    string
	Content string
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Provider interface {
	Chat(ctx context.Context, messages []Message) (string, error)
	Embed(ctx context.Context, input []string) ([][]float32, error)
	Name() string
}

// LocalDimension is the width of the hashed bag-of-words vectors.
const LocalDimension = 256

// LocalProvider is an offline stand-in: chat echoes the prompt and embeddings are
// hashed term counts, so similarity still favours overlapping vocabulary.
type LocalProvider struct{}

func NewLocalProvider() *LocalProvider {
	return &LocalProvider{}
}

func (l *LocalProvider) Chat(ctx context.Context, messages []Message) (string, error) {
	if len(messages) == 0 {
		return "", fmt.Errorf("no messages provided")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	last := messages[len(messages)-1].Content
	return "[local-stub] " + strings.TrimSpace(last), nil
}

func (l *LocalProvider) Embed(ctx context.Context, input []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vectors := make([][]float32, len(input))
	for i, text := range input {
		vectors[i] = hashedVector(text)
	}
	return vectors, nil
}

func (l *LocalProvider) Name() string {
	return "local"
}

func hashedVector(text string) []float32 {
	vec := make([]float32, LocalDimension)
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, field := range fields {
		h := fnv.New32a()
		_, _ = h.Write([]byte(field))
		vec[h.Sum32()%LocalDimension]++
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v * v)
	}
	if norm == 0 {
		return vec
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}
