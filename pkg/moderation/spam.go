package moderation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tinyland-inc/picowarden/pkg/identity"
)

type spamKey struct {
	groupID  string
	senderID string
}

type spamCounter struct {
	count           int
	windowStartedAt time.Time
	expiresAt       time.Time
}

// SpamInspector counts messages per sender and group inside a sliding-start
// window and fires once the threshold is reached.
type SpamInspector struct {
	digits int

	mu       sync.Mutex
	counters map[spamKey]*spamCounter
	now      func() time.Time
}

func NewSpamInspector(significantDigits int) *SpamInspector {
	return &SpamInspector{
		digits:   significantDigits,
		counters: make(map[spamKey]*spamCounter),
		now:      time.Now,
	}
}

func (s *SpamInspector) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *SpamInspector) Name() string { return "spam" }

func (s *SpamInspector) key(groupID, senderID string) spamKey {
	norm := identity.Normalize(senderID, s.digits)
	if norm == "" {
		norm = senderID
	}
	return spamKey{groupID: groupID, senderID: norm}
}

func (s *SpamInspector) Inspect(_ context.Context, in Inspection) (Verdict, error) {
	gs := in.Settings
	if !gs.Spam.Enabled || in.exempt(gs.Spam) {
		return Noop(s.Name()), nil
	}

	k := s.key(in.Event.ChatID, in.Event.EffectiveSender())
	threshold := gs.spamThreshold()

	s.mu.Lock()
	now := s.now()
	c, ok := s.counters[k]
	if !ok || !now.Before(c.expiresAt) {
		c = &spamCounter{windowStartedAt: now, expiresAt: now.Add(gs.spamWindow())}
		s.counters[k] = c
	}
	c.count++
	count := c.count
	if count >= threshold {
		delete(s.counters, k)
	}
	s.mu.Unlock()

	if count < threshold {
		return Noop(s.Name()), nil
	}
	reason := fmt.Sprintf("sent %d messages in %s", count, gs.spamWindow())
	return verdictFor(s.Name(), gs.Spam.Action, gs.muteDuration(), reason), nil
}

// Count returns the live counter for a sender in a group, 0 when none.
func (s *SpamInspector) Count(groupID, senderID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.counters[s.key(groupID, senderID)]
	if !ok || !s.now().Before(c.expiresAt) {
		return 0
	}
	return c.count
}

// Sweep drops expired counters and returns how many were removed.
func (s *SpamInspector) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	removed := 0
	for k, c := range s.counters {
		if !now.Before(c.expiresAt) {
			delete(s.counters, k)
			removed++
		}
	}
	return removed
}

func (s *SpamInspector) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.counters)
}
