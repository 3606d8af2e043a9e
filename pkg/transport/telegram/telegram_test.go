package telegram

import (
	"testing"

	"github.com/mymmrac/telego"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinyland-inc/picowarden/pkg/bus"
)

func TestMessageEvent_GroupWithMention(t *testing.T) {
	msg := &telego.Message{
		MessageID: 77,
		Chat:      telego.Chat{ID: -1001, Type: "supergroup"},
		From:      &telego.User{ID: 42, FirstName: "Ann", LastName: "Lee"},
		Text:      "héllo @WardenBot what's up",
		Entities:  []telego.MessageEntity{{Type: "mention", Offset: 6, Length: 10}},
	}

	ev, ok := messageEvent(msg, "999", "wardenbot")
	require.True(t, ok)
	assert.Equal(t, "-1001", ev.ChatID)
	assert.Equal(t, "42", ev.SenderID)
	assert.Equal(t, "Ann Lee", ev.SenderName)
	assert.Equal(t, "77", ev.MessageID)
	assert.Equal(t, bus.EventMessage, ev.Kind)
	assert.True(t, ev.IsGroup())
	assert.True(t, ev.MentionsSelf)
	assert.False(t, ev.ReplyToSelf)
	assert.False(t, ev.IsFromSelf)
}

func TestMessageEvent_PrivateReplyAndCaption(t *testing.T) {
	msg := &telego.Message{
		MessageID:      5,
		Chat:           telego.Chat{ID: 42, Type: "private"},
		From:           &telego.User{ID: 42, Username: "ann"},
		Caption:        "look at this",
		ReplyToMessage: &telego.Message{From: &telego.User{ID: 999}},
	}

	ev, ok := messageEvent(msg, "999", "wardenbot")
	require.True(t, ok)
	assert.False(t, ev.IsGroup())
	assert.Equal(t, "look at this", ev.Content)
	assert.Equal(t, "ann", ev.SenderName)
	assert.True(t, ev.ReplyToSelf)
}

func TestMessageEvent_Skips(t *testing.T) {
	_, ok := messageEvent(&telego.Message{Chat: telego.Chat{ID: 1}, Text: "x"}, "9", "")
	assert.False(t, ok, "no sender")

	_, ok = messageEvent(&telego.Message{Chat: telego.Chat{ID: 1}, From: &telego.User{ID: 2}}, "9", "")
	assert.False(t, ok, "no text")

	ev, ok := messageEvent(&telego.Message{Chat: telego.Chat{ID: 1, Type: "group"}, From: &telego.User{ID: 9}, Text: "/ping"}, "9", "")
	require.True(t, ok)
	assert.True(t, ev.IsFromSelf)
}

func TestMessageEvent_BadEntityIgnored(t *testing.T) {
	msg := &telego.Message{
		Chat:     telego.Chat{ID: 1, Type: "group"},
		From:     &telego.User{ID: 2},
		Text:     "@x",
		Entities: []telego.MessageEntity{{Type: "mention", Offset: 0, Length: 40}},
	}
	ev, ok := messageEvent(msg, "9", "wardenbot")
	require.True(t, ok)
	assert.False(t, ev.MentionsSelf)
}

func TestCallbackEvent(t *testing.T) {
	q := &telego.CallbackQuery{
		ID:      "cb1",
		From:    telego.User{ID: 42, FirstName: "Ann"},
		Data:    "/ping",
		Message: &telego.Message{MessageID: 3, Chat: telego.Chat{ID: -5, Type: "group"}},
	}
	ev, ok := callbackEvent(q)
	require.True(t, ok)
	assert.Equal(t, bus.EventButton, ev.Kind)
	assert.Equal(t, "/ping", ev.ButtonID)
	assert.Equal(t, "-5", ev.ChatID)
	assert.True(t, ev.IsGroup())

	_, ok = callbackEvent(&telego.CallbackQuery{Data: "/ping"})
	assert.False(t, ok)
}

func TestParseID(t *testing.T) {
	id, err := parseID("-1001")
	require.NoError(t, err)
	assert.Equal(t, int64(-1001), id)

	_, err = parseID("abc")
	assert.Error(t, err)
}
