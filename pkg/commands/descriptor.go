// Package commands holds the reloadable table of chat commands.
package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tinyland-inc/picowarden/pkg/bus"
	"github.com/tinyland-inc/picowarden/pkg/identity"
	"github.com/tinyland-inc/picowarden/pkg/utils"
)

// ErrInvalidDescriptor wraps every descriptor validation failure.
var ErrInvalidDescriptor = errors.New("invalid command descriptor")

// Reply sends content back to the chat the command came from.
type Reply func(ctx context.Context, content string) error

// Request is everything a handler gets to see about one invocation.
type Request struct {
	ChatID     string
	Command    string // name as typed, lower-cased, without prefix
	Args       []string
	Event      bus.InboundEvent
	Verdict    identity.Verdict
	Privileged bool
	Reply      Reply
}

// ArgString returns the arguments joined back with single spaces.
func (r *Request) ArgString() string {
	return strings.Join(r.Args, " ")
}

type Handler func(ctx context.Context, req *Request) error

type Descriptor struct {
	Name          string
	Aliases       []string
	Description   string
	Usage         string
	Category      string
	RequiresOwner bool
	RequiresAdmin bool
	GroupOnly     bool
	Handler       Handler

	// Origin is set by the registry: "manual" or the name of the source.
	Origin string
}

func (d Descriptor) Validate() error {
	if err := utils.ValidateCommandName(d.Name); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDescriptor, err)
	}
	if strings.ToLower(d.Name) != d.Name {
		return fmt.Errorf("%w: command name %q must be lower-case", ErrInvalidDescriptor, d.Name)
	}
	for _, a := range d.Aliases {
		if err := utils.ValidateCommandName(a); err != nil {
			return fmt.Errorf("%w: alias %q: %v", ErrInvalidDescriptor, a, err)
		}
	}
	if d.Handler == nil {
		return fmt.Errorf("%w: command %q has no handler", ErrInvalidDescriptor, d.Name)
	}
	return nil
}

// Allows reports whether a sender with verdict v may run the command.
func (d Descriptor) Allows(v identity.Verdict) bool {
	if d.RequiresOwner && !v.IsOwner {
		return false
	}
	if d.RequiresAdmin && !v.Privileged() {
		return false
	}
	return true
}
