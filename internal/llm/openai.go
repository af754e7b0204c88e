// Package llm adapts hosted language models to core.Oracle.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/book-expert/podcast-service/internal/core"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gpt-4o-mini"

// MaxStopSequences is the most stop sequences the chat completions API accepts.
const MaxStopSequences = 4

var (
	// ErrAPIKeyMissing is returned when no API key is configured.
	ErrAPIKeyMissing = errors.New("openai api key missing")
	// ErrEmptyChoices is returned when the API answers without choices.
	ErrEmptyChoices = errors.New("openai: empty choices")
	// ErrTooManyStops is returned when a request carries more stop sequences than allowed.
	ErrTooManyStops = errors.New("too many stop sequences")
	// ErrUnknownRole is returned for a conversation turn with an unsupported role.
	ErrUnknownRole = errors.New("unknown conversation role")
)

// OpenAIConfig configures OpenAIOracle.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// OpenAIOracle implements core.Oracle with the chat completions API.
type OpenAIOracle struct {
	client openai.Client
	model  string
}

// NewOpenAIOracle creates an oracle. SDK-level retries are disabled; wrap
// the oracle in a RetryingOracle to retry transient failures.
func NewOpenAIOracle(cfg OpenAIConfig) (*OpenAIOracle, error) {
	if cfg.APIKey == "" {
		return nil, ErrAPIKeyMissing
	}

	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}

	return &OpenAIOracle{client: openai.NewClient(opts...), model: cfg.Model}, nil
}

// Complete implements core.Oracle.
func (o *OpenAIOracle) Complete(ctx context.Context, req core.CompletionRequest) (string, error) {
	if len(req.Stop) > MaxStopSequences {
		return "", fmt.Errorf("%w: %d > %d", ErrTooManyStops, len(req.Stop), MaxStopSequences)
	}

	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Turns))

	for _, turn := range req.Turns {
		switch turn.Role {
		case core.RoleSystem:
			msgs = append(msgs, openai.SystemMessage(turn.Content))
		case core.RoleUser:
			msgs = append(msgs, openai.UserMessage(turn.Content))
		case core.RoleAssistant:
			msgs = append(msgs, openai.ChatCompletionMessageParamOfAssistant(turn.Content))
		default:
			return "", fmt.Errorf("%w: %q", ErrUnknownRole, turn.Role)
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:            openai.ChatModel(o.model),
		Messages:         msgs,
		Temperature:      openai.Float(req.Temperature),
		PresencePenalty:  openai.Float(req.PresencePenalty),
		FrequencyPenalty: openai.Float(req.FrequencyPenalty),
	}

	if req.MaxOutputTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxOutputTokens))
	}

	if len(req.Stop) > 0 {
		params.Stop = openai.ChatCompletionNewParamsStopUnion{OfStringArray: req.Stop}
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai chat completion failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", ErrEmptyChoices
	}

	return resp.Choices[0].Message.Content, nil
}
