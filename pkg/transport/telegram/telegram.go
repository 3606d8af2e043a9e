// Package telegram adapts the Telegram Bot API to the transport interface
// using long polling.
package telegram

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf16"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/tinyland-inc/picowarden/pkg/bus"
	"github.com/tinyland-inc/picowarden/pkg/logger"
	"github.com/tinyland-inc/picowarden/pkg/transport"
)

const Name = "telegram"

type Options struct {
	Token     string
	Proxy     string
	AllowFrom []string
}

type Transport struct {
	*transport.BaseTransport
	bot      *telego.Bot
	username string

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(mb *bus.MessageBus, opts Options) (*Transport, error) {
	var botOpts []telego.BotOption
	if opts.Proxy != "" {
		proxyURL, err := url.Parse(opts.Proxy)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL %q: %w", opts.Proxy, err)
		}
		botOpts = append(botOpts, telego.WithHTTPClient(&http.Client{
			Transport: &http.Transport{Proxy: http.ProxyURL(proxyURL)},
		}))
	}
	bot, err := telego.NewBot(opts.Token, botOpts...)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &Transport{
		BaseTransport: transport.NewBaseTransport(Name, mb, opts.AllowFrom),
		bot:           bot,
	}, nil
}

func (t *Transport) Start(ctx context.Context) error {
	me, err := t.bot.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("telegram getMe: %w", err)
	}
	t.SetSelfID(strconv.FormatInt(me.ID, 10))
	t.username = me.Username

	runCtx, cancel := context.WithCancel(context.Background())
	updates, err := t.bot.UpdatesViaLongPolling(runCtx, &telego.GetUpdatesParams{
		Timeout:        30,
		AllowedUpdates: []string{"message", "callback_query"},
	})
	if err != nil {
		cancel()
		return fmt.Errorf("telegram long polling: %w", err)
	}
	t.cancel = cancel
	t.SetRunning(true)
	logger.InfoCF("transport.telegram", "Telegram bot connected", map[string]any{"username": me.Username})

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		for update := range updates {
			t.handleUpdate(runCtx, update)
		}
	}()
	return nil
}

func (t *Transport) Stop(context.Context) error {
	if t.cancel != nil {
		t.cancel()
	}
	t.wg.Wait()
	t.SetRunning(false)
	return nil
}

func (t *Transport) handleUpdate(ctx context.Context, update telego.Update) {
	switch {
	case update.Message != nil:
		if ev, ok := messageEvent(update.Message, t.SelfID(), t.username); ok {
			t.HandleEvents(ctx, ev)
		}
	case update.CallbackQuery != nil:
		q := update.CallbackQuery
		if err := t.bot.AnswerCallbackQuery(ctx, &telego.AnswerCallbackQueryParams{CallbackQueryID: q.ID}); err != nil {
			logger.DebugCF("transport.telegram", "Answer callback failed", map[string]any{"error": err.Error()})
		}
		if ev, ok := callbackEvent(q); ok {
			t.HandleEvents(ctx, ev)
		}
	}
}

func displayName(u *telego.User) string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		name = u.Username
	}
	return name
}

func peerFor(chat telego.Chat) bus.Peer {
	id := strconv.FormatInt(chat.ID, 10)
	if chat.Type == "private" {
		return bus.Peer{Kind: bus.PeerDirect, ID: id}
	}
	return bus.Peer{Kind: bus.PeerGroup, ID: id}
}

// messageEvent converts a Telegram message. Messages without text or
// caption, or without a sender, are skipped.
func messageEvent(msg *telego.Message, selfID, username string) (bus.InboundEvent, bool) {
	if msg.From == nil {
		return bus.InboundEvent{}, false
	}
	content := msg.Text
	entities := msg.Entities
	if content == "" {
		content = msg.Caption
		entities = msg.CaptionEntities
	}
	if content == "" {
		return bus.InboundEvent{}, false
	}

	senderID := strconv.FormatInt(msg.From.ID, 10)
	ev := bus.InboundEvent{
		ChatID:     strconv.FormatInt(msg.Chat.ID, 10),
		SenderID:   senderID,
		SenderName: displayName(msg.From),
		MessageID:  strconv.Itoa(msg.MessageID),
		Content:    content,
		Kind:       bus.EventMessage,
		Peer:       peerFor(msg.Chat),
		IsFromSelf: senderID == selfID,
		Raw:        msg,
	}
	if username != "" {
		mention := "@" + strings.ToLower(username)
		units := utf16.Encode([]rune(content))
		for _, e := range entities {
			if e.Type != "mention" || e.Offset < 0 || e.Offset+e.Length > len(units) {
				continue
			}
			// Entity offsets count UTF-16 code units.
			text := string(utf16.Decode(units[e.Offset : e.Offset+e.Length]))
			if strings.ToLower(text) == mention {
				ev.MentionsSelf = true
				break
			}
		}
	}
	if r := msg.ReplyToMessage; r != nil && r.From != nil {
		ev.ReplyToSelf = strconv.FormatInt(r.From.ID, 10) == selfID
	}
	return ev, true
}

// callbackEvent converts an inline keyboard press into a button event.
func callbackEvent(q *telego.CallbackQuery) (bus.InboundEvent, bool) {
	msg, ok := q.Message.(*telego.Message)
	if !ok || msg == nil || q.Data == "" {
		return bus.InboundEvent{}, false
	}
	return bus.InboundEvent{
		ChatID:     strconv.FormatInt(msg.Chat.ID, 10),
		SenderID:   strconv.FormatInt(q.From.ID, 10),
		SenderName: displayName(&q.From),
		MessageID:  strconv.Itoa(msg.MessageID),
		Content:    q.Data,
		Kind:       bus.EventButton,
		ButtonID:   q.Data,
		Peer:       peerFor(msg.Chat),
		Raw:        q,
	}, true
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid telegram id %q: %w", s, err)
	}
	return id, nil
}

func (t *Transport) SendMessage(ctx context.Context, chatID, content string) (transport.MessageHandle, error) {
	id, err := parseID(chatID)
	if err != nil {
		return transport.MessageHandle{}, err
	}
	msg, err := t.bot.SendMessage(ctx, tu.Message(tu.ID(id), content))
	if err != nil {
		return transport.MessageHandle{}, err
	}
	return transport.MessageHandle{ChatID: chatID, MessageID: strconv.Itoa(msg.MessageID)}, nil
}

func (t *Transport) GetGroupMembers(ctx context.Context, groupID string) ([]transport.Member, error) {
	id, err := parseID(groupID)
	if err != nil {
		return nil, err
	}
	// The Bot API only lists administrators; everyone else is implicitly a
	// plain member.
	admins, err := t.bot.GetChatAdministrators(ctx, &telego.GetChatAdministratorsParams{ChatID: tu.ID(id)})
	if err != nil {
		return nil, err
	}
	members := make([]transport.Member, 0, len(admins))
	for _, a := range admins {
		u := a.MemberUser()
		members = append(members, transport.Member{ID: strconv.FormatInt(u.ID, 10), IsAdmin: true})
	}
	return members, nil
}

func (t *Transport) DeleteMessage(ctx context.Context, chatID, messageID, _ string) error {
	id, err := parseID(chatID)
	if err != nil {
		return err
	}
	mid, err := strconv.Atoi(messageID)
	if err != nil {
		return fmt.Errorf("invalid message id %q: %w", messageID, err)
	}
	return t.bot.DeleteMessage(ctx, &telego.DeleteMessageParams{ChatID: tu.ID(id), MessageID: mid})
}

// RemoveMember bans and immediately unbans, which kicks without a permanent
// ban.
func (t *Transport) RemoveMember(ctx context.Context, groupID, userID string) error {
	gid, err := parseID(groupID)
	if err != nil {
		return err
	}
	uid, err := parseID(userID)
	if err != nil {
		return err
	}
	if err := t.bot.BanChatMember(ctx, &telego.BanChatMemberParams{ChatID: tu.ID(gid), UserID: uid}); err != nil {
		return err
	}
	return t.bot.UnbanChatMember(ctx, &telego.UnbanChatMemberParams{ChatID: tu.ID(gid), UserID: uid, OnlyIfBanned: true})
}

func (t *Transport) MuteMember(ctx context.Context, groupID, userID string, d time.Duration) error {
	gid, err := parseID(groupID)
	if err != nil {
		return err
	}
	uid, err := parseID(userID)
	if err != nil {
		return err
	}
	no := false
	return t.bot.RestrictChatMember(ctx, &telego.RestrictChatMemberParams{
		ChatID:      tu.ID(gid),
		UserID:      uid,
		Permissions: telego.ChatPermissions{CanSendMessages: &no},
		UntilDate:   time.Now().Add(d).Unix(),
	})
}

func (t *Transport) React(ctx context.Context, chatID, messageID, emoji string) error {
	id, err := parseID(chatID)
	if err != nil {
		return err
	}
	mid, err := strconv.Atoi(messageID)
	if err != nil {
		return fmt.Errorf("invalid message id %q: %w", messageID, err)
	}
	return t.bot.SetMessageReaction(ctx, &telego.SetMessageReactionParams{
		ChatID:    tu.ID(id),
		MessageID: mid,
		Reaction:  []telego.ReactionType{&telego.ReactionTypeEmoji{Type: "emoji", Emoji: emoji}},
	})
}

var _ transport.Transport = (*Transport)(nil)
