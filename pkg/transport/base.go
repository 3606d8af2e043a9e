package transport

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/tinyland-inc/picowarden/pkg/bus"
	"github.com/tinyland-inc/picowarden/pkg/logger"
)

// BaseTransport carries the state every transport shares: its name, the bus
// it publishes to, the sender allow-list and its running flag.
type BaseTransport struct {
	bus       *bus.MessageBus
	running   atomic.Bool
	name      string
	allowList []string

	mu     sync.RWMutex
	selfID string
}

func NewBaseTransport(name string, mb *bus.MessageBus, allowList []string) *BaseTransport {
	return &BaseTransport{
		bus:       mb,
		name:      name,
		allowList: allowList,
	}
}

func (t *BaseTransport) Name() string {
	return t.name
}

func (t *BaseTransport) IsRunning() bool {
	return t.running.Load()
}

func (t *BaseTransport) SetRunning(running bool) {
	t.running.Store(running)
}

func (t *BaseTransport) SelfID() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.selfID
}

func (t *BaseTransport) SetSelfID(id string) {
	t.mu.Lock()
	t.selfID = id
	t.mu.Unlock()
}

// IsAllowed reports whether senderID may reach the dispatcher. An empty
// allow-list admits everyone.
func (t *BaseTransport) IsAllowed(senderID string) bool {
	if len(t.allowList) == 0 {
		return true
	}

	// Compound sender ids look like "123456|username".
	idPart := senderID
	userPart := ""
	if idx := strings.Index(senderID, "|"); idx > 0 {
		idPart = senderID[:idx]
		userPart = senderID[idx+1:]
	}

	for _, allowed := range t.allowList {
		trimmed := strings.TrimPrefix(allowed, "@")
		allowedID := trimmed
		allowedUser := ""
		if idx := strings.Index(trimmed, "|"); idx > 0 {
			allowedID = trimmed[:idx]
			allowedUser = trimmed[idx+1:]
		}

		if senderID == allowed ||
			idPart == trimmed ||
			idPart == allowedID ||
			(allowedUser != "" && senderID == allowedUser) ||
			(userPart != "" && (userPart == trimmed || userPart == allowedUser)) {
			return true
		}
	}

	return false
}

// HandleEvents stamps the transport name on each event, drops senders outside
// the allow-list and publishes what remains to the bus as one batch.
func (t *BaseTransport) HandleEvents(ctx context.Context, events ...bus.InboundEvent) {
	batch := make([]bus.InboundEvent, 0, len(events))
	for _, ev := range events {
		if !ev.IsFromSelf && !t.IsAllowed(ev.EffectiveSender()) {
			logger.DebugCF("transport."+t.name, "Sender not in allow list", map[string]any{
				"sender": ev.EffectiveSender(),
			})
			continue
		}
		ev.Channel = t.name
		batch = append(batch, ev)
	}
	if len(batch) == 0 {
		return
	}
	if err := t.bus.PublishInbound(ctx, batch...); err != nil {
		logger.WarnCF("transport."+t.name, "Failed to publish inbound batch", map[string]any{
			"error": err.Error(),
			"size":  len(batch),
		})
	}
}
