package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tinyland-inc/picowarden/pkg/bus"
)

// EventObserver is an opt-in interface. The dispatcher hands every inbound
// event to a transport implementing it before routing the event.
type EventObserver interface {
	Observe(ev bus.InboundEvent)
}

// DefaultMaxRoutes bounds how many chat and sender ids Multi remembers.
const DefaultMaxRoutes = 10000

// Multi fans a single Transport surface out over several platform
// transports. Chat ids are routed to the transport that last delivered an
// event for them; with a single transport everything goes to it.
type Multi struct {
	transports []Transport
	byName     map[string]Transport

	mu        sync.RWMutex
	routes    map[string]string
	order     []string
	maxRoutes int
}

func NewMulti(transports ...Transport) *Multi {
	m := &Multi{
		transports: transports,
		byName:     make(map[string]Transport, len(transports)),
		routes:     make(map[string]string),
		maxRoutes:  DefaultMaxRoutes,
	}
	for _, t := range transports {
		m.byName[t.Name()] = t
	}
	return m
}

// SetMaxRoutes changes the route bound. n <= 0 keeps the current bound.
func (m *Multi) SetMaxRoutes(n int) {
	if n <= 0 {
		return
	}
	m.mu.Lock()
	m.maxRoutes = n
	m.evictLocked()
	m.mu.Unlock()
}

// Observe records which transport delivered ev. Routes are evicted oldest
// first once the bound is exceeded; a chat that speaks again is re-learned.
func (m *Multi) Observe(ev bus.InboundEvent) {
	if ev.Channel == "" || len(m.transports) < 2 {
		return
	}
	m.mu.Lock()
	m.rememberLocked(ev.ChatID, ev.Channel)
	if ev.SenderID != "" {
		m.rememberLocked(ev.SenderID, ev.Channel)
	}
	m.evictLocked()
	m.mu.Unlock()
}

func (m *Multi) rememberLocked(id, channel string) {
	if _, ok := m.routes[id]; !ok {
		m.order = append(m.order, id)
	}
	m.routes[id] = channel
}

func (m *Multi) evictLocked() {
	for len(m.routes) > m.maxRoutes && len(m.order) > 0 {
		oldest := m.order[0]
		m.order = m.order[1:]
		delete(m.routes, oldest)
	}
}

// RouteCount returns the number of remembered routes.
func (m *Multi) RouteCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.routes)
}

func (m *Multi) route(id string) (Transport, error) {
	if len(m.transports) == 1 {
		return m.transports[0], nil
	}
	m.mu.RLock()
	name, ok := m.routes[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no transport route for chat %q", id)
	}
	t, ok := m.byName[name]
	if !ok {
		return nil, fmt.Errorf("transport %q not registered", name)
	}
	return t, nil
}

// Get returns the transport registered under name.
func (m *Multi) Get(name string) (Transport, bool) {
	t, ok := m.byName[name]
	return t, ok
}

func (m *Multi) Names() []string {
	names := make([]string, 0, len(m.transports))
	for _, t := range m.transports {
		names = append(names, t.Name())
	}
	return names
}

func (m *Multi) Name() string { return "multi" }

func (m *Multi) Start(ctx context.Context) error {
	var errs []error
	for _, t := range m.transports {
		if err := t.Start(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", t.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (m *Multi) Stop(ctx context.Context) error {
	var errs []error
	for _, t := range m.transports {
		if err := t.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", t.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (m *Multi) IsRunning() bool {
	for _, t := range m.transports {
		if t.IsRunning() {
			return true
		}
	}
	return false
}

// SelfID is only meaningful for a single transport.
func (m *Multi) SelfID() string {
	if len(m.transports) == 1 {
		return m.transports[0].SelfID()
	}
	return ""
}

func (m *Multi) SendMessage(ctx context.Context, chatID, content string) (MessageHandle, error) {
	t, err := m.route(chatID)
	if err != nil {
		return MessageHandle{}, err
	}
	return t.SendMessage(ctx, chatID, content)
}

func (m *Multi) GetGroupMembers(ctx context.Context, groupID string) ([]Member, error) {
	t, err := m.route(groupID)
	if err != nil {
		return nil, err
	}
	return t.GetGroupMembers(ctx, groupID)
}

// GetGroupMember returns ErrUnsupported when the routed transport cannot
// look up a single member.
func (m *Multi) GetGroupMember(ctx context.Context, groupID, userID string) (Member, error) {
	t, err := m.route(groupID)
	if err != nil {
		return Member{}, err
	}
	ml, ok := t.(MemberLookup)
	if !ok {
		return Member{}, ErrUnsupported
	}
	return ml.GetGroupMember(ctx, groupID, userID)
}

func (m *Multi) DeleteMessage(ctx context.Context, chatID, messageID, senderID string) error {
	t, err := m.route(chatID)
	if err != nil {
		return err
	}
	return t.DeleteMessage(ctx, chatID, messageID, senderID)
}

func (m *Multi) RemoveMember(ctx context.Context, groupID, userID string) error {
	t, err := m.route(groupID)
	if err != nil {
		return err
	}
	return t.RemoveMember(ctx, groupID, userID)
}

func (m *Multi) MuteMember(ctx context.Context, groupID, userID string, d time.Duration) error {
	t, err := m.route(groupID)
	if err != nil {
		return err
	}
	return t.MuteMember(ctx, groupID, userID, d)
}

func (m *Multi) React(ctx context.Context, chatID, messageID, emoji string) error {
	t, err := m.route(chatID)
	if err != nil {
		return err
	}
	return t.React(ctx, chatID, messageID, emoji)
}

var (
	_ Transport    = (*Multi)(nil)
	_ MemberLookup = (*Multi)(nil)
)
