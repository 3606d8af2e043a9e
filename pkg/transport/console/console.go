// Package console is a local transport: lines typed at a terminal become
// inbound events and bot output is printed back.
package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/chzyer/readline"
	"github.com/google/uuid"

	"github.com/tinyland-inc/picowarden/pkg/bus"
	"github.com/tinyland-inc/picowarden/pkg/transport"
)

const (
	Name    = "console"
	ChatID  = "console"
	GroupID = "console-group"
	SelfID  = "picowarden"
)

// LineReader yields one line per call and io.EOF at the end of input.
// *readline.Instance satisfies it.
type LineReader interface {
	Readline() (string, error)
}

type Options struct {
	SenderID   string
	SenderName string
	Out        io.Writer
}

// Transport simulates one user talking to the bot. The ":group" and
// ":direct" meta lines switch between a direct chat and a simulated group
// in which the user is an admin.
type Transport struct {
	*transport.BaseTransport
	senderID   string
	senderName string

	mu    sync.Mutex
	out   io.Writer
	group bool
}

func New(mb *bus.MessageBus, opts Options) *Transport {
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	sender := opts.SenderID
	if sender == "" {
		sender = "console-user"
	}
	name := opts.SenderName
	if name == "" {
		name = "you"
	}
	return &Transport{
		BaseTransport: transport.NewBaseTransport(Name, mb, nil),
		senderID:      sender,
		senderName:    name,
		out:           out,
	}
}

func (t *Transport) Start(context.Context) error {
	t.SetSelfID(SelfID)
	t.SetRunning(true)
	return nil
}

func (t *Transport) Stop(context.Context) error {
	t.SetRunning(false)
	return nil
}

func (t *Transport) chat() (string, bus.Peer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.group {
		return GroupID, bus.Peer{Kind: bus.PeerGroup, ID: GroupID}
	}
	return ChatID, bus.Peer{Kind: bus.PeerDirect, ID: ChatID}
}

// ProcessLine turns one input line into an event. It reports false when the
// line asks to quit.
func (t *Transport) ProcessLine(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	switch line {
	case "":
		return true
	case ":quit", ":exit":
		return false
	case ":group", ":direct":
		t.mu.Lock()
		t.group = line == ":group"
		t.mu.Unlock()
		t.printf("[now in %s chat]\n", strings.TrimPrefix(line, ":"))
		return true
	}

	chatID, peer := t.chat()
	t.HandleEvents(ctx, bus.InboundEvent{
		ChatID:       chatID,
		SenderID:     t.senderID,
		SenderName:   t.senderName,
		MessageID:    uuid.NewString(),
		Content:      line,
		Kind:         bus.EventMessage,
		Peer:         peer,
		MentionsSelf: strings.Contains(strings.ToLower(line), "@"+SelfID),
	})
	return true
}

// Serve feeds lines from r until EOF, an interrupt, ":quit" or ctx ends.
func (t *Transport) Serve(ctx context.Context, r LineReader) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		line, err := r.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if !t.ProcessLine(ctx, line) {
			return nil
		}
	}
}

// NewReadline builds the interactive line editor used by Serve.
func NewReadline(historyFile string) (*readline.Instance, error) {
	return readline.NewEx(&readline.Config{
		Prompt:          "\033[32m> \033[0m",
		HistoryFile:     historyFile,
		HistoryLimit:    100,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
}

func (t *Transport) printf(format string, args ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.out, format, args...)
}

func (t *Transport) SendMessage(_ context.Context, chatID, content string) (transport.MessageHandle, error) {
	t.printf("\n🤖 %s\n\n", content)
	return transport.MessageHandle{ChatID: chatID, MessageID: uuid.NewString()}, nil
}

func (t *Transport) GetGroupMembers(_ context.Context, groupID string) ([]transport.Member, error) {
	if groupID != GroupID {
		return nil, nil
	}
	return []transport.Member{
		{ID: t.senderID, IsAdmin: true},
		{ID: SelfID, IsAdmin: true},
	}, nil
}

func (t *Transport) DeleteMessage(_ context.Context, chatID, messageID, senderID string) error {
	t.printf("[deleted message %s from %s in %s]\n", messageID, senderID, chatID)
	return nil
}

func (t *Transport) RemoveMember(_ context.Context, groupID, userID string) error {
	t.printf("[removed %s from %s]\n", userID, groupID)
	return nil
}

func (t *Transport) MuteMember(_ context.Context, groupID, userID string, d time.Duration) error {
	t.printf("[muted %s in %s for %s]\n", userID, groupID, d)
	return nil
}

func (t *Transport) React(_ context.Context, _, messageID, emoji string) error {
	t.printf("[reacted %s to %s]\n", emoji, messageID)
	return nil
}

var _ transport.Transport = (*Transport)(nil)
