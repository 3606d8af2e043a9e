package bus

// Peer identifies the routing peer for a message (direct or group chat).
type Peer struct {
	Kind string `json:"kind"` // "direct" | "group"
	ID   string `json:"id"`
}

const (
	PeerDirect = "direct"
	PeerGroup  = "group"
)

// EventKind distinguishes the shapes of inbound events a transport can emit.
type EventKind string

const (
	EventMessage EventKind = "message"
	EventStatus  EventKind = "status" // status/story broadcast notification
	EventButton  EventKind = "button" // interactive button or callback reply
)

// InboundEvent is one chat event as delivered by a transport. It is built
// once by the transport and never mutated afterwards.
type InboundEvent struct {
	Channel      string            `json:"channel"`
	ChatID       string            `json:"chat_id"`
	SenderID     string            `json:"sender_id,omitempty"`
	SenderName   string            `json:"sender_name,omitempty"`
	MessageID    string            `json:"message_id,omitempty"`
	Content      string            `json:"content"`
	Kind         EventKind         `json:"kind"`
	ButtonID     string            `json:"button_id,omitempty"`
	Peer         Peer              `json:"peer"`
	IsFromSelf   bool              `json:"is_from_self,omitempty"`
	MentionsSelf bool              `json:"mentions_self,omitempty"`
	ReplyToSelf  bool              `json:"reply_to_self,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`

	// Raw is the platform payload. Only transports and moderation look at it.
	Raw any `json:"-"`
}

// EffectiveSender returns the sender id, falling back to the chat id for
// direct chats where the platform omits the sender.
func (e InboundEvent) EffectiveSender() string {
	if e.SenderID != "" {
		return e.SenderID
	}
	return e.ChatID
}

func (e InboundEvent) IsGroup() bool {
	return e.Peer.Kind == PeerGroup
}
