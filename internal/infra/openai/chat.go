// Package openai answers conversations through any OpenAI-compatible chat
// completions endpoint, including a local llama.cpp server.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"jarvis/internal/application"
	"jarvis/internal/domain"
)

type Config struct {
	BaseURL      string
	APIKey       string
	Model        string
	MaxTokens    int
	SystemPrompt string
	Timeout      time.Duration
}

type ChatClient struct {
	client       oai.Client
	model        string
	maxTokens    int
	systemPrompt string
}

func NewChatClient(cfg Config) (*ChatClient, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("openai: model must not be empty")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	// a turn makes exactly one attempt
	reqOpts := []option.RequestOption{
		option.WithMaxRetries(0),
		option.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
	}
	if cfg.APIKey != "" {
		reqOpts = append(reqOpts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.BaseURL))
	}

	return &ChatClient{
		client:       oai.NewClient(reqOpts...),
		model:        cfg.Model,
		maxTokens:    cfg.MaxTokens,
		systemPrompt: cfg.SystemPrompt,
	}, nil
}

func (c *ChatClient) Respond(ctx context.Context, req application.InferenceRequest) (string, error) {
	if req.Empty() {
		return "", nil
	}

	params := c.buildParams(req.Turns)
	if len(params.Messages) == 0 {
		return "", nil
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func (c *ChatClient) buildParams(turns []domain.Turn) oai.ChatCompletionNewParams {
	var messages []oai.ChatCompletionMessageParamUnion
	for _, t := range turns {
		if t.Content == "" {
			continue
		}
		switch t.Role {
		case domain.RoleAssistant:
			messages = append(messages, oai.AssistantMessage(t.Content))
		default:
			messages = append(messages, oai.UserMessage(t.Content))
		}
	}
	if len(messages) > 0 && c.systemPrompt != "" {
		messages = append([]oai.ChatCompletionMessageParamUnion{oai.SystemMessage(c.systemPrompt)}, messages...)
	}

	params := oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(c.model),
		Messages: messages,
	}
	if c.maxTokens > 0 {
		params.MaxTokens = param.NewOpt(int64(c.maxTokens))
	}
	return params
}
