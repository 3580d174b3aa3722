// File path: internal/llm/llm.go
package llm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"github.com/nicodishanthj/vitaplan/internal/common"
	"github.com/nicodishanthj/vitaplan/internal/llm/providers"
)

type Message = providers.Message

type Provider = providers.Provider

// NewProvider selects OpenAI when an API key is configured and the local provider
// otherwise. The result is wrapped with rate limiting and bounded retry.
func NewProvider(cfg Config) Provider {
	logger := common.Logger()
	var base Provider
	if cfg.APIKey != "" {
		opts := []option.RequestOption{
			option.WithAPIKey(cfg.APIKey),
			option.WithRequestTimeout(cfg.HTTPTimeout),
			// Retries are owned by the Resilient wrapper.
			option.WithMaxRetries(0),
		}
		if cfg.Endpoint != "" {
			logger.Info().Str("endpoint", cfg.Endpoint).Msg("llm: configuring OpenAI client with custom endpoint")
			opts = append(opts, option.WithBaseURL(cfg.Endpoint))
		}
		client := openai.NewClient(opts...)
		logger.Info().Msg("llm: OpenAI provider selected")
		base = providers.NewOpenAIProvider(client, cfg.ChatModel, cfg.EmbedModel, cfg.Temperature)
	} else {
		logger.Warn().Msg("llm: OPENAI_API_KEY not set; falling back to local provider")
		base = providers.NewLocalProvider()
	}
	return NewResilient(base,
		WithRetries(cfg.MaxRetries, cfg.RetryBackoff),
		WithRateLimit(cfg.RateLimit, cfg.RateBurst),
	)
}

var errNoMessages = errors.New("no messages provided")

// normalizeMessages lower-cases roles and defaults a blank role to user. The input
// slice is left untouched.
func normalizeMessages(messages []Message) ([]Message, error) {
	if len(messages) == 0 {
		return nil, errNoMessages
	}
	out := make([]Message, len(messages))
	for i, msg := range messages {
		role := strings.ToLower(strings.TrimSpace(msg.Role))
		switch role {
		case "":
			role = providers.RoleUser
		case providers.RoleSystem, providers.RoleUser, providers.RoleAssistant:
		default:
			return nil, fmt.Errorf("message %d: unknown role %q", i, msg.Role)
		}
		out[i] = Message{Role: role, Content: msg.Content}
	}
	return out, nil
}
