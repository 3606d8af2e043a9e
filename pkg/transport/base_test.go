package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinyland-inc/picowarden/pkg/bus"
)

func TestBaseTransport_IsAllowed(t *testing.T) {
	tests := []struct {
		name      string
		allowList []string
		senderID  string
		want      bool
	}{
		{name: "empty allowlist allows all", senderID: "anyone", want: true},
		{name: "exact match", allowList: []string{"111"}, senderID: "111", want: true},
		{name: "mismatch", allowList: []string{"111"}, senderID: "222", want: false},
		{name: "compound sender matches numeric entry", allowList: []string{"123456"}, senderID: "123456|alice", want: true},
		{name: "compound sender matches @username entry", allowList: []string{"@alice"}, senderID: "123456|alice", want: true},
		{name: "numeric sender matches compound entry", allowList: []string{"123456|alice"}, senderID: "123456", want: true},
		{name: "username mismatch", allowList: []string{"@bob"}, senderID: "123456|alice", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bt := NewBaseTransport("test", nil, tt.allowList)
			assert.Equal(t, tt.want, bt.IsAllowed(tt.senderID))
		})
	}
}

func TestBaseTransport_HandleEventsFiltersAndStamps(t *testing.T) {
	mb := bus.NewMessageBus()
	bt := NewBaseTransport("telegram", mb, []string{"alice"})

	bt.HandleEvents(context.Background(),
		bus.InboundEvent{ChatID: "g", SenderID: "alice", Content: "hi"},
		bus.InboundEvent{ChatID: "g", SenderID: "mallory", Content: "spam"},
		bus.InboundEvent{ChatID: "g", SenderID: "bot", Content: "self", IsFromSelf: true},
	)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	batch, ok := mb.ConsumeInbound(ctx)
	require.True(t, ok)
	require.Len(t, batch, 2)
	assert.Equal(t, "alice", batch[0].SenderID)
	assert.Equal(t, "telegram", batch[0].Channel)
	assert.True(t, batch[1].IsFromSelf)
}

func TestBaseTransport_SelfID(t *testing.T) {
	bt := NewBaseTransport("x", nil, nil)
	assert.Empty(t, bt.SelfID())
	bt.SetSelfID("42")
	assert.Equal(t, "42", bt.SelfID())
	bt.SetRunning(true)
	assert.True(t, bt.IsRunning())
}
