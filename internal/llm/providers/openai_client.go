// File path: internal/llm/providers/openai_client.go
package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/openai/openai-go/v2"

	"github.com/nicodishanthj/vitaplan/internal/common"
)

type OpenAIProvider struct {
	client      openai.Client
	chatModel   string
	embedModel  string
	temperature float64
}

func NewOpenAIProvider(client openai.Client, chatModel, embedModel string, temperature float64) *OpenAIProvider {
	logger := common.Logger()
	logger.Info().Str("chat_model", chatModel).Str("embed_model", embedModel).Msg("llm: OpenAI provider configured")
	return &OpenAIProvider{client: client, chatModel: chatModel, embedModel: embedModel, temperature: temperature}
}

func (o *OpenAIProvider) Chat(ctx context.Context, messages []Message) (string, error) {
	logger := common.Logger()
	logger.Debug().Str("model", o.chatModel).Int("messages", len(messages)).Msg("llm: sending chat completion request")
	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(o.chatModel),
		Temperature: openai.Float(o.temperature),
	}
	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			params.Messages = append(params.Messages, openai.SystemMessage(msg.Content))
		case RoleAssistant:
			params.Messages = append(params.Messages, openai.AssistantMessage(msg.Content))
		default:
			params.Messages = append(params.Messages, openai.UserMessage(msg.Content))
		}
	}
	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		logger.Error().Err(err).Msg("llm: chat completion failed")
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices returned")
	}
	logger.Debug().Msg("llm: chat completion succeeded")
	return resp.Choices[0].Message.Content, nil
}

func (o *OpenAIProvider) Embed(ctx context.Context, input []string) ([][]float32, error) {
	if len(input) == 0 {
		return nil, nil
	}
	logger := common.Logger()
	logger.Debug().Str("model", o.embedModel).Int("items", len(input)).Msg("llm: creating embeddings")
	resp, err := o.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(o.embedModel),
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: input},
	})
	if err != nil {
		logger.Error().Err(err).Msg("llm: embedding request failed")
		return nil, err
	}
	vectors := make([][]float32, 0, len(resp.Data))
	for _, data := range resp.Data {
		vec := make([]float32, len(data.Embedding))
		for i, v := range data.Embedding {
			vec[i] = float32(v)
		}
		vectors = append(vectors, vec)
	}
	logger.Debug().Int("returned", len(vectors)).Msg("llm: embedding request succeeded")
	return vectors, nil
}

func (o *OpenAIProvider) Name() string {
	return "openai"
}

// IsPermanent reports API errors that a retry cannot fix, such as bad requests or
// authentication failures. Rate limiting stays retryable.
func IsPermanent(err error) bool {
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 && apiErr.StatusCode != http.StatusTooManyRequests
}
