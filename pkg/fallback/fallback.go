// Package fallback produces a conversational reply when no command or
// pending session claims a message.
package fallback

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Request is one message eligible for a conversational reply.
type Request struct {
	ChatID     string
	SenderID   string
	SenderName string
	Text       string
	IsGroup    bool
}

type Responder interface {
	Respond(ctx context.Context, req Request) (string, error)
}

// ResponderFunc adapts a function to Responder.
type ResponderFunc func(ctx context.Context, req Request) (string, error)

func (f ResponderFunc) Respond(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"

	DefaultMaxTokens    = 1024
	DefaultHistoryTurns = 6
)

type Config struct {
	Provider     string
	Model        string
	APIKey       string
	APIBase      string
	SystemPrompt string
	MaxTokens    int
	HistoryTurns int
}

// New builds the responder selected by cfg.Provider.
func New(cfg Config) (Responder, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("fallback: api key is required")
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.HistoryTurns <= 0 {
		cfg.HistoryTurns = DefaultHistoryTurns
	}
	switch strings.ToLower(cfg.Provider) {
	case ProviderAnthropic, "claude", "":
		return NewAnthropicResponder(cfg), nil
	case ProviderOpenAI, "gpt":
		return NewOpenAIResponder(cfg), nil
	default:
		return nil, fmt.Errorf("fallback: unknown provider %q", cfg.Provider)
	}
}

type Turn struct {
	Role    string // "user" or "assistant"
	Content string
}

// History keeps the last few exchanges of every chat.
type History struct {
	maxTurns int

	mu    sync.Mutex
	chats map[string][]Turn
}

func NewHistory(maxTurns int) *History {
	if maxTurns <= 0 {
		maxTurns = DefaultHistoryTurns
	}
	return &History{maxTurns: maxTurns, chats: make(map[string][]Turn)}
}

// Get returns a copy of the chat's turns, oldest first.
func (h *History) Get(chatID string) []Turn {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Turn(nil), h.chats[chatID]...)
}

// Append records one exchange and drops the oldest turns past the limit.
func (h *History) Append(chatID, user, assistant string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	turns := append(h.chats[chatID],
		Turn{Role: "user", Content: user},
		Turn{Role: "assistant", Content: assistant},
	)
	if limit := h.maxTurns * 2; len(turns) > limit {
		turns = append([]Turn(nil), turns[len(turns)-limit:]...)
	}
	h.chats[chatID] = turns
}

func (h *History) Reset(chatID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.chats, chatID)
}

func userText(req Request) string {
	if req.IsGroup && req.SenderName != "" {
		return req.SenderName + ": " + req.Text
	}
	return req.Text
}
