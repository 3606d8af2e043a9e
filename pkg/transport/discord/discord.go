// Package discord adapts a Discord bot session to the transport interface.
// Chat ids are channel ids; group operations resolve the owning guild.
package discord

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/tinyland-inc/picowarden/pkg/bus"
	"github.com/tinyland-inc/picowarden/pkg/logger"
	"github.com/tinyland-inc/picowarden/pkg/transport"
)

const (
	Name = "discord"

	memberPageSize = 1000
	adminPerms     = discordgo.PermissionAdministrator | discordgo.PermissionManageMessages
)

type Options struct {
	Token     string
	AllowFrom []string
}

type Transport struct {
	*transport.BaseTransport
	session *discordgo.Session
	ctx     context.Context
	cancel  context.CancelFunc
}

func New(mb *bus.MessageBus, opts Options) (*Transport, error) {
	session, err := discordgo.New("Bot " + opts.Token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent |
		discordgo.IntentsGuildMembers
	return &Transport{
		BaseTransport: transport.NewBaseTransport(Name, mb, opts.AllowFrom),
		session:       session,
	}, nil
}

func (t *Transport) Start(context.Context) error {
	t.ctx, t.cancel = context.WithCancel(context.Background())
	t.session.AddHandler(t.onMessage)
	t.session.AddHandler(t.onInteraction)
	if err := t.session.Open(); err != nil {
		t.cancel()
		return fmt.Errorf("open discord session: %w", err)
	}
	if u := t.session.State.User; u != nil {
		t.SetSelfID(u.ID)
		logger.InfoCF("transport.discord", "Discord bot connected", map[string]any{"username": u.Username})
	}
	t.SetRunning(true)
	return nil
}

func (t *Transport) Stop(context.Context) error {
	if t.cancel != nil {
		t.cancel()
	}
	t.SetRunning(false)
	return t.session.Close()
}

func (t *Transport) onMessage(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if ev, ok := messageEvent(m.Message, t.SelfID()); ok {
		t.HandleEvents(t.ctx, ev)
	}
}

func (t *Transport) onInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionMessageComponent {
		return
	}
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredMessageUpdate,
	})
	if err != nil {
		logger.DebugCF("transport.discord", "Interaction ack failed", map[string]any{"error": err.Error()})
	}
	if ev, ok := buttonEvent(i.Interaction); ok {
		t.HandleEvents(t.ctx, ev)
	}
}

// messageEvent converts a Discord message. Direct messages have no guild.
// A leading bot mention is stripped so "@bot /ping" parses as a command.
func messageEvent(m *discordgo.Message, selfID string) (bus.InboundEvent, bool) {
	if m == nil || m.Author == nil {
		return bus.InboundEvent{}, false
	}
	content := m.Content
	mentioned := false
	for _, u := range m.Mentions {
		if u != nil && u.ID == selfID {
			mentioned = true
			break
		}
	}
	if mentioned {
		for _, tag := range []string{"<@" + selfID + ">", "<@!" + selfID + ">"} {
			content = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(content), tag))
		}
	}
	if content == "" {
		return bus.InboundEvent{}, false
	}

	ev := bus.InboundEvent{
		ChatID:       m.ChannelID,
		SenderID:     m.Author.ID,
		SenderName:   authorName(m.Author, m.Member),
		MessageID:    m.ID,
		Content:      content,
		Kind:         bus.EventMessage,
		Peer:         peerFor(m.ChannelID, m.GuildID),
		IsFromSelf:   m.Author.ID == selfID,
		MentionsSelf: mentioned,
		Raw:          m,
	}
	if ref := m.ReferencedMessage; ref != nil && ref.Author != nil {
		ev.ReplyToSelf = ref.Author.ID == selfID
	}
	if m.GuildID != "" {
		ev.Metadata = map[string]string{"guild_id": m.GuildID}
	}
	return ev, true
}

func buttonEvent(i *discordgo.Interaction) (bus.InboundEvent, bool) {
	if i == nil || i.Type != discordgo.InteractionMessageComponent {
		return bus.InboundEvent{}, false
	}
	data := i.MessageComponentData()
	var user *discordgo.User
	switch {
	case i.Member != nil && i.Member.User != nil:
		user = i.Member.User
	case i.User != nil:
		user = i.User
	}
	if user == nil || data.CustomID == "" {
		return bus.InboundEvent{}, false
	}
	ev := bus.InboundEvent{
		ChatID:     i.ChannelID,
		SenderID:   user.ID,
		SenderName: authorName(user, i.Member),
		Content:    data.CustomID,
		Kind:       bus.EventButton,
		ButtonID:   data.CustomID,
		Peer:       peerFor(i.ChannelID, i.GuildID),
		Raw:        i,
	}
	if i.Message != nil {
		ev.MessageID = i.Message.ID
	}
	return ev, true
}

func peerFor(channelID, guildID string) bus.Peer {
	if guildID == "" {
		return bus.Peer{Kind: bus.PeerDirect, ID: channelID}
	}
	return bus.Peer{Kind: bus.PeerGroup, ID: channelID}
}

func authorName(u *discordgo.User, m *discordgo.Member) string {
	if m != nil && m.Nick != "" {
		return m.Nick
	}
	if u.GlobalName != "" {
		return u.GlobalName
	}
	return u.Username
}

func (t *Transport) guildOf(channelID string) (string, error) {
	if ch, err := t.session.State.Channel(channelID); err == nil && ch.GuildID != "" {
		return ch.GuildID, nil
	}
	ch, err := t.session.Channel(channelID)
	if err != nil {
		return "", err
	}
	if ch.GuildID == "" {
		return "", fmt.Errorf("channel %s is not in a guild", channelID)
	}
	return ch.GuildID, nil
}

func (t *Transport) SendMessage(ctx context.Context, chatID, content string) (transport.MessageHandle, error) {
	msg, err := t.session.ChannelMessageSend(chatID, content, discordgo.WithContext(ctx))
	if err != nil {
		return transport.MessageHandle{}, err
	}
	return transport.MessageHandle{ChatID: chatID, MessageID: msg.ID}, nil
}

func isAdmin(perms int64) bool {
	return perms&adminPerms != 0
}

// GetGroupMember computes one user's permissions in the channel. This is the
// path identity resolution takes, so large guilds are never listed per message.
func (t *Transport) GetGroupMember(ctx context.Context, groupID, userID string) (transport.Member, error) {
	perms, err := t.session.UserChannelPermissions(userID, groupID, discordgo.WithContext(ctx))
	if err != nil {
		return transport.Member{}, err
	}
	return transport.Member{ID: userID, IsAdmin: isAdmin(perms)}, nil
}

// GetGroupMembers lists every guild member with their permissions in the
// channel, paging with the after cursor. Administrators and message managers
// count as group admins.
func (t *Transport) GetGroupMembers(ctx context.Context, groupID string) ([]transport.Member, error) {
	guildID, err := t.guildOf(groupID)
	if err != nil {
		return nil, err
	}
	fetch := func(after string) ([]*discordgo.Member, error) {
		return t.session.GuildMembers(guildID, after, memberPageSize, discordgo.WithContext(ctx))
	}
	perms := func(userID string) (int64, error) {
		return t.session.UserChannelPermissions(userID, groupID, discordgo.WithContext(ctx))
	}
	return collectMembers(fetch, perms)
}

func collectMembers(
	fetch func(after string) ([]*discordgo.Member, error),
	perms func(userID string) (int64, error),
) ([]transport.Member, error) {
	var (
		members []transport.Member
		after   string
	)
	for {
		page, err := fetch(after)
		if err != nil {
			return nil, err
		}
		last := after
		for _, m := range page {
			if m == nil || m.User == nil {
				continue
			}
			p, err := perms(m.User.ID)
			if err != nil {
				logger.DebugCF("transport.discord", "Permission lookup failed", map[string]any{
					"user":  m.User.ID,
					"error": err.Error(),
				})
			}
			members = append(members, transport.Member{ID: m.User.ID, IsAdmin: isAdmin(p)})
			last = m.User.ID
		}
		if len(page) < memberPageSize || last == after {
			return members, nil
		}
		after = last
	}
}

func (t *Transport) DeleteMessage(ctx context.Context, chatID, messageID, _ string) error {
	return t.session.ChannelMessageDelete(chatID, messageID, discordgo.WithContext(ctx))
}

func (t *Transport) RemoveMember(ctx context.Context, groupID, userID string) error {
	guildID, err := t.guildOf(groupID)
	if err != nil {
		return err
	}
	return t.session.GuildMemberDeleteWithReason(guildID, userID, "moderation", discordgo.WithContext(ctx))
}

func (t *Transport) MuteMember(ctx context.Context, groupID, userID string, d time.Duration) error {
	guildID, err := t.guildOf(groupID)
	if err != nil {
		return err
	}
	until := time.Now().Add(d)
	return t.session.GuildMemberTimeout(guildID, userID, &until, discordgo.WithContext(ctx))
}

func (t *Transport) React(ctx context.Context, chatID, messageID, emoji string) error {
	return t.session.MessageReactionAdd(chatID, messageID, emoji, discordgo.WithContext(ctx))
}

var (
	_ transport.Transport    = (*Transport)(nil)
	_ transport.MemberLookup = (*Transport)(nil)
)
