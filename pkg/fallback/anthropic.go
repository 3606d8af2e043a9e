package fallback

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/tinyland-inc/picowarden/pkg/logger"
)

const (
	defaultAnthropicBaseURL = "https://api.anthropic.com"
	defaultAnthropicModel   = "claude-sonnet-4-5"
)

type AnthropicResponder struct {
	client    *anthropic.Client
	baseURL   string
	model     string
	system    string
	maxTokens int64
	history   *History
}

func NewAnthropicResponder(cfg Config) *AnthropicResponder {
	baseURL := normalizeBaseURL(cfg.APIBase)
	client := anthropic.NewClient(
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(baseURL),
	)
	return newAnthropicResponder(&client, baseURL, cfg)
}

func newAnthropicResponder(client *anthropic.Client, baseURL string, cfg Config) *AnthropicResponder {
	model := cfg.Model
	if model == "" {
		model = defaultAnthropicModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &AnthropicResponder{
		client:    client,
		baseURL:   baseURL,
		model:     model,
		system:    cfg.SystemPrompt,
		maxTokens: int64(maxTokens),
		history:   NewHistory(cfg.HistoryTurns),
	}
}

func (p *AnthropicResponder) BaseURL() string { return p.baseURL }

func (p *AnthropicResponder) Respond(ctx context.Context, req Request) (string, error) {
	text := userText(req)
	params := buildParams(p.system, p.history.Get(req.ChatID), text, p.model, p.maxTokens)

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("claude API call: %w", err)
	}
	reply := parseResponse(resp)
	logger.DebugCF("fallback", "Anthropic reply", map[string]any{
		"chat_id":       req.ChatID,
		"input_tokens":  resp.Usage.InputTokens,
		"output_tokens": resp.Usage.OutputTokens,
		"stop_reason":   string(resp.StopReason),
	})
	if reply != "" {
		p.history.Append(req.ChatID, text, reply)
	}
	return reply, nil
}

func buildParams(system string, history []Turn, text, model string, maxTokens int64) anthropic.MessageNewParams {
	messages := make([]anthropic.MessageParam, 0, len(history)+1)
	for _, t := range history {
		switch t.Role {
		case "user":
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(t.Content)))
		case "assistant":
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(t.Content)))
		}
	}
	messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(text)))

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		Messages:  messages,
		MaxTokens: maxTokens,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	return params
}

func parseResponse(resp *anthropic.Message) string {
	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.AsText().Text)
		}
	}
	return strings.TrimSpace(sb.String())
}

func normalizeBaseURL(apiBase string) string {
	base := strings.TrimSpace(apiBase)
	if base == "" {
		return defaultAnthropicBaseURL
	}

	base = strings.TrimRight(base, "/")
	if b, ok := strings.CutSuffix(base, "/v1"); ok {
		base = b
	}
	if base == "" {
		return defaultAnthropicBaseURL
	}

	return base
}
