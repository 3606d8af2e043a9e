package fallback

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/tinyland-inc/picowarden/pkg/logger"
)

const defaultOpenAIModel = "gpt-4o-mini"

type OpenAIResponder struct {
	client    openai.Client
	model     string
	system    string
	maxTokens int64
	history   *History
}

func NewOpenAIResponder(cfg Config) *OpenAIResponder {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if base := strings.TrimSpace(cfg.APIBase); base != "" {
		opts = append(opts, option.WithBaseURL(base))
	}
	model := cfg.Model
	if model == "" {
		model = defaultOpenAIModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &OpenAIResponder{
		client:    openai.NewClient(opts...),
		model:     model,
		system:    cfg.SystemPrompt,
		maxTokens: int64(maxTokens),
		history:   NewHistory(cfg.HistoryTurns),
	}
}

func (p *OpenAIResponder) Respond(ctx context.Context, req Request) (string, error) {
	text := userText(req)
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(p.history.Get(req.ChatID))+2)
	if p.system != "" {
		messages = append(messages, openai.SystemMessage(p.system))
	}
	for _, t := range p.history.Get(req.ChatID) {
		switch t.Role {
		case "user":
			messages = append(messages, openai.UserMessage(t.Content))
		case "assistant":
			messages = append(messages, openai.AssistantMessage(t.Content))
		}
	}
	messages = append(messages, openai.UserMessage(text))

	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:               openai.ChatModel(p.model),
		Messages:            messages,
		MaxCompletionTokens: openai.Int(p.maxTokens),
	})
	if err != nil {
		return "", fmt.Errorf("openai API call: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai API returned no choices")
	}
	reply := strings.TrimSpace(resp.Choices[0].Message.Content)
	logger.DebugCF("fallback", "OpenAI reply", map[string]any{
		"chat_id":       req.ChatID,
		"finish_reason": resp.Choices[0].FinishReason,
		"total_tokens":  resp.Usage.TotalTokens,
	})
	if reply != "" {
		p.history.Append(req.ChatID, text, reply)
	}
	return reply, nil
}
