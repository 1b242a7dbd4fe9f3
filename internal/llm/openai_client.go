package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

type chatClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIConfig configures any OpenAI-compatible endpoint (OpenAI, OpenRouter, Ollama /v1).
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	// Headers are added to every request, e.g. HTTP-Referer and X-Title for OpenRouter.
	Headers map[string]string
	Timeout time.Duration
}

// OpenAIClient implements Client over the chat completions API.
type OpenAIClient struct {
	api chatClient
}

// NewOpenAIClient builds a client for cfg.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		// Local servers such as Ollama ignore the key but the header must be present.
		apiKey = "unused"
	}
	conf := openai.DefaultConfig(apiKey)
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		conf.BaseURL = strings.TrimRight(base, "/")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	conf.HTTPClient = &http.Client{
		Timeout:   timeout,
		Transport: &headerTransport{base: http.DefaultTransport, headers: cfg.Headers},
	}
	return &OpenAIClient{api: openai.NewClientWithConfig(conf)}
}

// NewOpenAIClientWithAPI wraps an existing chat completion client.
func NewOpenAIClientWithAPI(api chatClient) *OpenAIClient {
	if api == nil {
		panic("llm: openai chat client cannot be nil")
	}
	return &OpenAIClient{api: api}
}

// Complete implements Client.
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (Response, error) {
	if strings.TrimSpace(req.Model) == "" {
		return Response{}, errors.New("llm: openai model is required")
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(req.System)+len(req.Messages))
	for _, block := range req.System {
		if strings.TrimSpace(block) == "" {
			continue
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: block})
	}
	for _, msg := range req.Messages {
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}
		switch msg.Role {
		case RoleSystem:
			messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: content})
		case RoleUser:
			messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: content})
		case RoleAssistant:
			messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: content})
		default:
			return Response{}, fmt.Errorf("llm: unsupported role %q", msg.Role)
		}
	}

	chatReq := openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = int(req.MaxTokens)
	}
	if req.Temperature > 0 {
		chatReq.Temperature = req.Temperature
	}
	if req.TopP > 0 {
		chatReq.TopP = req.TopP
	}

	resp, err := c.api.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return Response{}, classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return Response{}, ErrEmptyResponse
	}

	choice := resp.Choices[0]
	return Response{
		Text:       strings.TrimSpace(choice.Message.Content),
		StopReason: string(choice.FinishReason),
		Usage: TokenUsage{
			InputTokens:  int32(resp.Usage.PromptTokens),
			OutputTokens: int32(resp.Usage.CompletionTokens),
			TotalTokens:  int32(resp.Usage.TotalTokens),
		},
	}, nil
}

func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && isTransientStatus(apiErr.HTTPStatusCode) {
		return Transient(fmt.Errorf("llm: openai completion failed: %w", err))
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && isTransientStatus(reqErr.HTTPStatusCode) {
		return Transient(fmt.Errorf("llm: openai completion failed: %w", err))
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Transient(fmt.Errorf("llm: openai completion timed out: %w", err))
	}
	return fmt.Errorf("llm: openai completion failed: %w", err)
}

type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if len(t.headers) == 0 {
		return t.base.RoundTrip(req)
	}
	clone := req.Clone(req.Context())
	for k, v := range t.headers {
		if strings.TrimSpace(v) != "" {
			clone.Header.Set(k, v)
		}
	}
	return t.base.RoundTrip(clone)
}
