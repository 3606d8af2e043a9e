package moderation

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/tinyland-inc/picowarden/pkg/identity"
	"github.com/tinyland-inc/picowarden/pkg/settings"
)

func warningsKey(groupID string) string { return "warnings:" + groupID }

// ProfanityInspector matches whole words from the group's list. Each hit
// deletes the message and adds a persistent warning; reaching the warn limit
// applies the configured action and clears the sender's warnings.
type ProfanityInspector struct {
	store  settings.Store
	digits int

	mu       sync.Mutex
	patterns map[string]*regexp.Regexp
}

func NewProfanityInspector(store settings.Store, significantDigits int) *ProfanityInspector {
	return &ProfanityInspector{
		store:    store,
		digits:   significantDigits,
		patterns: make(map[string]*regexp.Regexp),
	}
}

func (p *ProfanityInspector) Name() string { return "profanity" }

func (p *ProfanityInspector) pattern(words []string) *regexp.Regexp {
	quoted := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.TrimSpace(w)
		if w != "" {
			quoted = append(quoted, regexp.QuoteMeta(strings.ToLower(w)))
		}
	}
	if len(quoted) == 0 {
		return nil
	}
	key := strings.Join(quoted, "|")

	p.mu.Lock()
	defer p.mu.Unlock()
	if re, ok := p.patterns[key]; ok {
		return re
	}
	re := regexp.MustCompile(`(?i)(?:^|[^\p{L}\p{N}_])(?:` + key + `)(?:$|[^\p{L}\p{N}_])`)
	p.patterns[key] = re
	return re
}

// Match reports whether text contains one of words as a whole word.
func (p *ProfanityInspector) Match(text string, words []string) bool {
	re := p.pattern(words)
	return re != nil && re.MatchString(text)
}

func (p *ProfanityInspector) senderKey(senderID string) string {
	if n := identity.Normalize(senderID, p.digits); n != "" {
		return n
	}
	return senderID
}

func (p *ProfanityInspector) Inspect(ctx context.Context, in Inspection) (Verdict, error) {
	gs := in.Settings
	if !gs.Profanity.Enabled || in.exempt(gs.Profanity) {
		return Noop(p.Name()), nil
	}
	if !p.Match(in.Event.Content, gs.Words) {
		return Noop(p.Name()), nil
	}

	groupID := in.Event.ChatID
	sender := p.senderKey(in.Event.EffectiveSender())
	limit := gs.warnLimit()

	p.mu.Lock()
	defer p.mu.Unlock()
	warnings := map[string]int{}
	if _, err := p.store.Load(ctx, warningsKey(groupID), &warnings); err != nil {
		return Verdict{}, fmt.Errorf("load warnings: %w", err)
	}
	warnings[sender]++
	count := warnings[sender]
	escalate := count >= limit
	if escalate {
		delete(warnings, sender)
	}
	if err := p.store.Save(ctx, warningsKey(groupID), warnings); err != nil {
		return Verdict{}, fmt.Errorf("save warnings: %w", err)
	}

	if escalate {
		v := verdictFor(p.Name(), gs.Profanity.Action, gs.muteDuration(),
			fmt.Sprintf("reached %d/%d warnings for prohibited language", count, limit))
		v.DeleteMessage = true
		return v, nil
	}
	return Verdict{
		Inspector:     p.Name(),
		Action:        ActionWarn,
		DeleteMessage: true,
		Reason:        fmt.Sprintf("prohibited language, warning %d/%d", count, limit),
	}, nil
}

// Warnings returns the stored warning count of a sender in a group.
func (p *ProfanityInspector) Warnings(ctx context.Context, groupID, senderID string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	warnings := map[string]int{}
	if _, err := p.store.Load(ctx, warningsKey(groupID), &warnings); err != nil {
		return 0, err
	}
	return warnings[p.senderKey(senderID)], nil
}

// ResetWarnings clears a sender's warnings and reports whether any existed.
func (p *ProfanityInspector) ResetWarnings(ctx context.Context, groupID, senderID string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	warnings := map[string]int{}
	if _, err := p.store.Load(ctx, warningsKey(groupID), &warnings); err != nil {
		return false, err
	}
	k := p.senderKey(senderID)
	if _, ok := warnings[k]; !ok {
		return false, nil
	}
	delete(warnings, k)
	return true, p.store.Save(ctx, warningsKey(groupID), warnings)
}
