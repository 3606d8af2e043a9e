// Package transporttest provides an in-memory Transport that records every
// call, for use in tests of packages that consume transports.
package transporttest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tinyland-inc/picowarden/pkg/transport"
)

type Sent struct {
	ChatID  string
	Content string
}

type Deleted struct {
	ChatID    string
	MessageID string
	SenderID  string
}

type Removed struct {
	GroupID string
	UserID  string
}

type Muted struct {
	GroupID  string
	UserID   string
	Duration time.Duration
}

type Reaction struct {
	ChatID    string
	MessageID string
	Emoji     string
}

// Fake is a transport.Transport double. Members maps group ids to their
// member lists; the *Err fields make the matching call fail.
type Fake struct {
	mu sync.Mutex

	Members    map[string][]transport.Member
	MembersErr error
	SendErr    error
	DeleteErr  error
	RemoveErr  error
	ReactErr   error
	Self       string

	sent        []Sent
	deleted     []Deleted
	removed     []Removed
	muted       []Muted
	reactions   []Reaction
	memberCalls int
	running     bool
}

func New() *Fake {
	return &Fake{Members: make(map[string][]transport.Member), Self: "bot"}
}

func (f *Fake) Name() string { return "fake" }

func (f *Fake) Start(context.Context) error {
	f.mu.Lock()
	f.running = true
	f.mu.Unlock()
	return nil
}

func (f *Fake) Stop(context.Context) error {
	f.mu.Lock()
	f.running = false
	f.mu.Unlock()
	return nil
}

func (f *Fake) IsRunning() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

func (f *Fake) SelfID() string { return f.Self }

func (f *Fake) SendMessage(_ context.Context, chatID, content string) (transport.MessageHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SendErr != nil {
		return transport.MessageHandle{}, f.SendErr
	}
	f.sent = append(f.sent, Sent{ChatID: chatID, Content: content})
	return transport.MessageHandle{ChatID: chatID, MessageID: fmt.Sprintf("m%d", len(f.sent))}, nil
}

func (f *Fake) GetGroupMembers(_ context.Context, groupID string) ([]transport.Member, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.memberCalls++
	if f.MembersErr != nil {
		return nil, f.MembersErr
	}
	return append([]transport.Member(nil), f.Members[groupID]...), nil
}

func (f *Fake) DeleteMessage(_ context.Context, chatID, messageID, senderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.DeleteErr != nil {
		return f.DeleteErr
	}
	f.deleted = append(f.deleted, Deleted{ChatID: chatID, MessageID: messageID, SenderID: senderID})
	return nil
}

func (f *Fake) RemoveMember(_ context.Context, groupID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.RemoveErr != nil {
		return f.RemoveErr
	}
	f.removed = append(f.removed, Removed{GroupID: groupID, UserID: userID})
	return nil
}

func (f *Fake) MuteMember(_ context.Context, groupID, userID string, d time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.muted = append(f.muted, Muted{GroupID: groupID, UserID: userID, Duration: d})
	return nil
}

func (f *Fake) React(_ context.Context, chatID, messageID, emoji string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ReactErr != nil {
		return f.ReactErr
	}
	f.reactions = append(f.reactions, Reaction{ChatID: chatID, MessageID: messageID, Emoji: emoji})
	return nil
}

func (f *Fake) Sent() []Sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Sent(nil), f.sent...)
}

func (f *Fake) Deleted() []Deleted {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Deleted(nil), f.deleted...)
}

func (f *Fake) Removed() []Removed {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Removed(nil), f.removed...)
}

func (f *Fake) Muted() []Muted {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Muted(nil), f.muted...)
}

func (f *Fake) Reactions() []Reaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Reaction(nil), f.reactions...)
}

func (f *Fake) MemberCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.memberCalls
}

var _ transport.Transport = (*Fake)(nil)
