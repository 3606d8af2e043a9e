// Package transport defines the chat-platform capabilities the dispatcher
// and moderation pipeline consume, plus shared helpers for implementations.
package transport

import (
	"context"
	"errors"
	"time"
)

// ErrUnsupported is returned by transports for operations the platform
// cannot perform (e.g. muting on a platform without timeouts).
var ErrUnsupported = errors.New("operation not supported by transport")

// MessageHandle identifies a message the transport has sent.
type MessageHandle struct {
	ChatID    string
	MessageID string
}

// Member is one participant of a group chat.
type Member struct {
	ID      string
	IsAdmin bool
}

type Sender interface {
	SendMessage(ctx context.Context, chatID, content string) (MessageHandle, error)
}

type GroupDirectory interface {
	GetGroupMembers(ctx context.Context, groupID string) ([]Member, error)
}

// MemberLookup is implemented by transports that can answer for a single
// member without listing the whole group. Identity resolution prefers it.
type MemberLookup interface {
	GetGroupMember(ctx context.Context, groupID, userID string) (Member, error)
}

// Moderator performs enforcement actions in group chats.
type Moderator interface {
	DeleteMessage(ctx context.Context, chatID, messageID, senderID string) error
	RemoveMember(ctx context.Context, groupID, userID string) error
	MuteMember(ctx context.Context, groupID, userID string, d time.Duration) error
}

type Reactor interface {
	React(ctx context.Context, chatID, messageID, emoji string) error
}

// Transport is a full chat-platform connection.
type Transport interface {
	Sender
	GroupDirectory
	Moderator
	Reactor

	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	IsRunning() bool
	// SelfID is the bot's own identity on the platform, empty until started.
	SelfID() string
}
