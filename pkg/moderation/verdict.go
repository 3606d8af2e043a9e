// Package moderation inspects group messages for spam, profanity and links
// and enforces the resulting verdicts through the transport.
package moderation

import (
	"fmt"
	"strings"
	"time"
)

type Action string

const (
	ActionNone   Action = "none"
	ActionDelete Action = "delete"
	ActionWarn   Action = "warn"
	ActionMute   Action = "mute"
	ActionKick   Action = "kick"
)

// ParseAction accepts the user-facing action names, case-insensitively.
func ParseAction(s string) (Action, error) {
	switch a := Action(strings.ToLower(strings.TrimSpace(s))); a {
	case ActionNone, ActionDelete, ActionWarn, ActionMute, ActionKick:
		return a, nil
	default:
		return "", fmt.Errorf("unknown moderation action %q", s)
	}
}

// Verdict is what one inspector decided for one message. DeleteMessage is
// independent of Action so a profanity hit can both delete and warn.
type Verdict struct {
	Inspector     string
	Action        Action
	DeleteMessage bool
	Duration      time.Duration
	Reason        string
}

func Noop(inspector string) Verdict {
	return Verdict{Inspector: inspector, Action: ActionNone}
}

func (v Verdict) IsNoop() bool {
	return !v.DeleteMessage && (v.Action == ActionNone || v.Action == "")
}

// verdictFor turns a configured action into a verdict. Every action except
// warn also removes the offending message.
func verdictFor(inspector string, a Action, mute time.Duration, reason string) Verdict {
	v := Verdict{Inspector: inspector, Action: a, Reason: reason}
	switch a {
	case ActionDelete, ActionKick, ActionMute:
		v.DeleteMessage = true
	}
	if a == ActionMute {
		v.Duration = mute
	}
	return v
}
