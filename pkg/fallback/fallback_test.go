package fallback

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildParams_HistoryAndSystem(t *testing.T) {
	history := []Turn{
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
	}
	params := buildParams("Be brief", history, "how are you?", "claude-test", 256)

	assert.Equal(t, "claude-test", string(params.Model))
	assert.EqualValues(t, 256, params.MaxTokens)
	require.Len(t, params.System, 1)
	assert.Equal(t, "Be brief", params.System[0].Text)
	assert.Len(t, params.Messages, 3)
}

func TestBuildParams_NoSystem(t *testing.T) {
	params := buildParams("", nil, "hi", "m", 10)
	assert.Empty(t, params.System)
	assert.Len(t, params.Messages, 1)
}

func TestNormalizeBaseURL(t *testing.T) {
	assert.Equal(t, "https://api.anthropic.com", normalizeBaseURL(""))
	assert.Equal(t, "https://api.anthropic.com", normalizeBaseURL("https://api.anthropic.com/v1/"))
	assert.Equal(t, "http://proxy.local", normalizeBaseURL(" http://proxy.local/ "))
}

func TestHistory_BoundedPerChat(t *testing.T) {
	h := NewHistory(2)
	h.Append("a", "u1", "a1")
	h.Append("a", "u2", "a2")
	h.Append("a", "u3", "a3")
	h.Append("b", "x", "y")

	turns := h.Get("a")
	require.Len(t, turns, 4)
	assert.Equal(t, "u2", turns[0].Content)
	assert.Equal(t, "a3", turns[3].Content)
	assert.Len(t, h.Get("b"), 2)

	h.Reset("a")
	assert.Empty(t, h.Get("a"))
}

func TestAnthropicResponder_RoundTrip(t *testing.T) {
	var requests int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		requests++
		var reqBody map[string]any
		json.NewDecoder(r.Body).Decode(&reqBody)
		msgs, _ := reqBody["messages"].([]any)

		resp := map[string]any{
			"id":          "msg_test",
			"type":        "message",
			"role":        "assistant",
			"model":       reqBody["model"],
			"stop_reason": "end_turn",
			"content": []map[string]any{
				{"type": "text", "text": "reply " + string(rune('0'+len(msgs)))},
			},
			"usage": map[string]any{"input_tokens": 3, "output_tokens": 2},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := anthropic.NewClient(
		anthropicoption.WithAPIKey("test-key"),
		anthropicoption.WithBaseURL(server.URL),
	)
	p := newAnthropicResponder(&client, server.URL, Config{Model: "claude-test", HistoryTurns: 4})

	got, err := p.Respond(t.Context(), Request{ChatID: "c1", Text: "hello"})
	require.NoError(t, err)
	assert.Equal(t, "reply 1", got)

	got, err = p.Respond(t.Context(), Request{ChatID: "c1", Text: "again"})
	require.NoError(t, err)
	assert.Equal(t, "reply 3", got, "history is sent with the second request")
	assert.Equal(t, 2, requests)
}

func TestOpenAIResponder_RoundTrip(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		resp := map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   "gpt-test",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": " hi there "},
			}},
			"usage": map[string]any{"prompt_tokens": 1, "completion_tokens": 2, "total_tokens": 3},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	p := NewOpenAIResponder(Config{APIKey: "sk-test", APIBase: server.URL, Model: "gpt-test"})
	got, err := p.Respond(context.Background(), Request{ChatID: "c1", Text: "hello", IsGroup: true, SenderName: "Ann"})
	require.NoError(t, err)
	assert.Equal(t, "hi there", got)
	assert.Len(t, p.history.Get("c1"), 2)
	assert.Equal(t, "Ann: hello", p.history.Get("c1")[0].Content)
}

func TestNew_SelectsProvider(t *testing.T) {
	r, err := New(Config{Provider: "openai", APIKey: "k"})
	require.NoError(t, err)
	assert.IsType(t, &OpenAIResponder{}, r)

	r, err = New(Config{APIKey: "k"})
	require.NoError(t, err)
	assert.IsType(t, &AnthropicResponder{}, r)

	_, err = New(Config{Provider: "openai"})
	assert.Error(t, err)
	_, err = New(Config{Provider: "llama", APIKey: "k"})
	assert.Error(t, err)
}
