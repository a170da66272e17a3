package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/chadiek/support-trainer/internal/gateway"
)

// DefaultBaseURL points at Cerebras' OpenAI-compatible API.
const DefaultBaseURL = "https://api.cerebras.ai/v1"

// Provider is the hosted model behind the gateway, reached through any
// OpenAI-compatible chat completions endpoint.
type Provider struct {
	client *openai.Client
	apiKey string
	Model  string
}

// NewProvider builds a Provider. An empty baseURL uses DefaultBaseURL; a nil
// httpClient uses one with a 30s timeout.
func NewProvider(apiKey, baseURL, model string, httpClient *http.Client) *Provider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(baseURL, "/")
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	cfg.HTTPClient = httpClient
	return &Provider{client: openai.NewClientWithConfig(cfg), apiKey: apiKey, Model: model}
}

// Chat replays history as user/assistant messages under the system
// instruction and asks for a reply to message.
func (p *Provider) Chat(ctx context.Context, systemInstruction string, history []gateway.Turn, message string) (string, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: systemInstruction})
	for _, t := range history {
		role := openai.ChatMessageRoleUser
		if t.Role == gateway.SpeakerModel {
			role = openai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: t.Text()})
	}
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: message})
	return p.complete(ctx, msgs)
}

// Generate completes a single user prompt.
func (p *Provider) Generate(ctx context.Context, prompt string) (string, error) {
	return p.complete(ctx, []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleUser, Content: prompt}})
}

func (p *Provider) complete(ctx context.Context, msgs []openai.ChatCompletionMessage) (string, error) {
	if p.apiKey == "" {
		return "", errors.New("llm: api key missing")
	}
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    p.Model,
		Messages: msgs,
	})
	if err != nil {
		return "", fmt.Errorf("llm: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("llm: empty choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
