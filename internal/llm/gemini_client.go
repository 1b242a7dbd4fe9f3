package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// GeminiClient implements Client using Google's Gemini API.
type GeminiClient struct {
	client  *genai.Client
	modelID string
}

// NewGeminiClient creates a Gemini client. modelID is used when a request names no model.
func NewGeminiClient(ctx context.Context, apiKey, modelID string) (*GeminiClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("llm: gemini api key is required")
	}
	if strings.TrimSpace(modelID) == "" {
		modelID = "gemini-2.5-flash"
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("llm: failed to create gemini client: %w", err)
	}
	return &GeminiClient{client: client, modelID: modelID}, nil
}

// Complete implements Client.
func (c *GeminiClient) Complete(ctx context.Context, req Request) (Response, error) {
	history, last, system := geminiContents(req)
	if last == "" {
		return Response{}, errors.New("llm: gemini requires a final user message")
	}

	modelID := req.Model
	if strings.TrimSpace(modelID) == "" {
		modelID = c.modelID
	}
	model := c.client.GenerativeModel(modelID)
	if req.Temperature >= 0 {
		model.SetTemperature(req.Temperature)
	}
	if req.TopP > 0 {
		model.SetTopP(req.TopP)
	}
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(req.MaxTokens)
	}
	if system != "" {
		model.SystemInstruction = genai.NewUserContent(genai.Text(system))
	}

	cs := model.StartChat()
	cs.History = history
	resp, err := cs.SendMessage(ctx, genai.Text(last))
	if err != nil {
		return Response{}, classifyGeminiError(err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return Response{}, ErrEmptyResponse
	}

	candidate := resp.Candidates[0]
	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}
	out := Response{
		Text:       strings.TrimSpace(text.String()),
		StopReason: candidate.FinishReason.String(),
	}
	if resp.UsageMetadata != nil {
		out.Usage = TokenUsage{
			InputTokens:  resp.UsageMetadata.PromptTokenCount,
			OutputTokens: resp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:  resp.UsageMetadata.TotalTokenCount,
		}
	}
	return out, nil
}

// Close releases resources held by the Gemini client.
func (c *GeminiClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// geminiContents splits a request into chat history, the final user message and
// one system instruction.
func geminiContents(req Request) ([]*genai.Content, string, string) {
	systemParts := make([]string, 0, len(req.System))
	for _, s := range req.System {
		if strings.TrimSpace(s) != "" {
			systemParts = append(systemParts, s)
		}
	}

	turns := make([]Message, 0, len(req.Messages))
	for _, msg := range req.Messages {
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}
		if msg.Role == RoleSystem {
			systemParts = append(systemParts, content)
			continue
		}
		turns = append(turns, Message{Role: msg.Role, Content: content})
	}

	if len(turns) == 0 || turns[len(turns)-1].Role != RoleUser {
		return nil, "", strings.Join(systemParts, "\n\n")
	}

	history := make([]*genai.Content, 0, len(turns)-1)
	for _, msg := range turns[:len(turns)-1] {
		role := "user"
		if msg.Role == RoleAssistant {
			role = "model"
		}
		history = append(history, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(msg.Content)}})
	}
	return history, turns[len(turns)-1].Content, strings.Join(systemParts, "\n\n")
}

func classifyGeminiError(err error) error {
	wrapped := fmt.Errorf("llm: gemini completion failed: %w", err)
	var gErr *googleapi.Error
	if errors.As(err, &gErr) && isTransientStatus(gErr.Code) {
		return Transient(wrapped)
	}
	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.ResourceExhausted, codes.Unavailable, codes.Aborted:
			return Transient(wrapped)
		}
	}
	return wrapped
}
