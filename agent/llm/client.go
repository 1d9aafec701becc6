package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/shared"

	contractx "github.com/ringlet/callbook/agent/contract"
	openrouterx "github.com/ringlet/callbook/pkg/openrouter"
)

// Client implements contract.LLMClient over the OpenAI-compatible SDK. Every
// call runs under a hard deadline; a timeout surfaces as ErrLLMTimeout and
// any other completion failure as ErrLLMUnavailable, so collection steps can
// treat both as a recoverable NotFound.
type Client struct {
	api         *openaisdk.Client
	model       string
	temperature float64
	maxTokens   int64
	timeout     time.Duration
}

var _ contractx.LLMClient = (*Client)(nil)

func New(api *openaisdk.Client, cfg openrouterx.Config) (*Client, error) {
	if api == nil {
		return nil, errors.New("openai client is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		return nil, fmt.Errorf("%w: model is required", contractx.ErrValidation)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxTokens := cfg.MaxCompletionToken
	if maxTokens <= 0 {
		maxTokens = 400
	}
	return &Client{
		api:         api,
		model:       model,
		temperature: cfg.Temperature,
		maxTokens:   int64(maxTokens),
		timeout:     timeout,
	}, nil
}

// Complete sends one system+user exchange and returns the raw completion
// text. Extractors ask for JSON in the system prompt; the client only
// enforces the JSON response format and non-emptiness.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	completion, err := c.api.Chat.Completions.New(ctx, openaisdk.ChatCompletionNewParams{
		Model: openaisdk.ChatModel(c.model),
		Messages: []openaisdk.ChatCompletionMessageParamUnion{
			openaisdk.SystemMessage(system),
			openaisdk.UserMessage(user),
		},
		Temperature: openaisdk.Float(c.temperature),
		MaxTokens:   openaisdk.Int(c.maxTokens),
		ResponseFormat: openaisdk.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		},
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %v", contractx.ErrLLMTimeout, err)
		}
		return "", fmt.Errorf("%w: %v", contractx.ErrLLMUnavailable, err)
	}

	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices returned", contractx.ErrLLMMalformed)
	}
	content := strings.TrimSpace(completion.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("%w: empty completion", contractx.ErrLLMMalformed)
	}
	return content, nil
}
