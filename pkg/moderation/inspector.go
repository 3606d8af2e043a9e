package moderation

import (
	"context"

	"github.com/tinyland-inc/picowarden/pkg/bus"
)

// Inspection is the input of one inspector run.
type Inspection struct {
	Event    bus.InboundEvent
	Settings GroupSettings
	// Same reports whether two raw sender ids name the same person.
	Same func(a, b string) bool
}

func (in Inspection) exempt(c ConcernSettings) bool {
	sender := in.Event.EffectiveSender()
	for _, id := range c.Exemptions {
		if in.Same != nil && in.Same(id, sender) {
			return true
		}
		if id == sender {
			return true
		}
	}
	return false
}

// Inspector checks one concern. Inspectors never see each other's verdicts.
type Inspector interface {
	Name() string
	Inspect(ctx context.Context, in Inspection) (Verdict, error)
}
