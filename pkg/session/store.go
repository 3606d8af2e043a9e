// Package session keeps short-lived pending interactions, such as "the bot
// asked this chat to reply with a number", keyed by chat and kind.
package session

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tinyland-inc/picowarden/pkg/logger"
)

// Kind discriminates the multi-step flows sharing the store.
type Kind string

const (
	KindSizeChoice        Kind = "size-choice"
	KindMediaFormatChoice Kind = "media-format-choice"
	KindModeChoice        Kind = "mode-choice"
)

const DefaultTTL = 2 * time.Minute

type Session struct {
	ID        string
	ChatID    string
	Kind      Kind
	Payload   any
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Predicate decides whether an incoming text answers a pending session.
type Predicate func(text string) bool

type key struct {
	chatID string
	kind   Kind
}

// Store holds at most one session per (chat, kind). All operations are
// single critical sections, so check-and-remove in TryConsume is atomic.
type Store struct {
	mu       sync.Mutex
	sessions map[key]*Session
	now      func() time.Time
}

func NewStore() *Store {
	return &Store{
		sessions: make(map[key]*Session),
		now:      time.Now,
	}
}

// SetClock replaces the time source.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

// Start records a pending session, replacing any earlier one of the same
// kind for the chat.
func (s *Store) Start(chatID string, kind Kind, payload any, ttl time.Duration) Session {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	sess := &Session{
		ID:        uuid.NewString(),
		ChatID:    chatID,
		Kind:      kind,
		Payload:   payload,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	if _, replaced := s.sessions[key{chatID, kind}]; replaced {
		logger.DebugCF("session", "Replacing pending session", map[string]any{
			"chat": chatID,
			"kind": string(kind),
		})
	}
	s.sessions[key{chatID, kind}] = sess
	return *sess
}

// TryConsume removes and returns the payload of the pending (chatID, kind)
// session when it is live and pred(text) holds. Expired sessions are removed
// and never returned.
func (s *Store) TryConsume(chatID string, kind Kind, text string, pred Predicate) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key{chatID, kind}
	sess, ok := s.sessions[k]
	if !ok {
		return nil, false
	}
	if !s.now().Before(sess.ExpiresAt) {
		delete(s.sessions, k)
		return nil, false
	}
	if pred != nil && !pred(text) {
		return nil, false
	}
	delete(s.sessions, k)
	return sess.Payload, true
}

// Peek returns a copy of the live session for (chatID, kind).
func (s *Store) Peek(chatID string, kind Kind) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[key{chatID, kind}]
	if !ok || !s.now().Before(sess.ExpiresAt) {
		return Session{}, false
	}
	return *sess, true
}

func (s *Store) Cancel(chatID string, kind Kind) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key{chatID, kind}
	_, ok := s.sessions[k]
	delete(s.sessions, k)
	return ok
}

// CancelAll drops every session of a chat and returns how many there were.
func (s *Store) CancelAll(chatID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k := range s.sessions {
		if k.chatID == chatID {
			delete(s.sessions, k)
			n++
		}
	}
	return n
}

// Pending lists the kinds with a live session in chatID.
func (s *Store) Pending(chatID string) []Kind {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	var kinds []Kind
	for k, sess := range s.sessions {
		if k.chatID == chatID && now.Before(sess.ExpiresAt) {
			kinds = append(kinds, k.kind)
		}
	}
	return kinds
}

// Sweep removes expired sessions and returns how many it removed.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	removed := 0
	for k, sess := range s.sessions {
		if !now.Before(sess.ExpiresAt) {
			delete(s.sessions, k)
			removed++
		}
	}
	if removed > 0 {
		logger.DebugCF("session", "Swept expired sessions", map[string]any{"removed": removed})
	}
	return removed
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// IntInRange accepts texts that are an integer within [lo, hi].
func IntInRange(lo, hi int) Predicate {
	return func(text string) bool {
		n, err := strconv.Atoi(strings.TrimSpace(text))
		return err == nil && n >= lo && n <= hi
	}
}

// OneOf accepts texts equal to one of words, case-insensitively.
func OneOf(words ...string) Predicate {
	return func(text string) bool {
		text = strings.TrimSpace(text)
		for _, w := range words {
			if strings.EqualFold(text, w) {
				return true
			}
		}
		return false
	}
}

// Any accepts every text.
func Any(string) bool { return true }
