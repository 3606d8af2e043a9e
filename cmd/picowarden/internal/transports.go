package internal

import (
	"github.com/tinyland-inc/picowarden/pkg/bus"
	"github.com/tinyland-inc/picowarden/pkg/config"
	"github.com/tinyland-inc/picowarden/pkg/transport"
	"github.com/tinyland-inc/picowarden/pkg/transport/bridge"
	"github.com/tinyland-inc/picowarden/pkg/transport/discord"
	"github.com/tinyland-inc/picowarden/pkg/transport/telegram"
)

// ConfiguredTransports builds every platform transport enabled in the
// channels section.
func ConfiguredTransports(ch config.ChannelsConfig) TransportFactory {
	return func(mb *bus.MessageBus) ([]transport.Transport, error) {
		var ts []transport.Transport
		if ch.Telegram.Enabled {
			t, err := telegram.New(mb, telegram.Options{
				Token:     ch.Telegram.Token,
				Proxy:     ch.Telegram.Proxy,
				AllowFrom: ch.Telegram.AllowFrom,
			})
			if err != nil {
				return nil, err
			}
			ts = append(ts, t)
		}
		if ch.Discord.Enabled {
			t, err := discord.New(mb, discord.Options{
				Token:     ch.Discord.Token,
				AllowFrom: ch.Discord.AllowFrom,
			})
			if err != nil {
				return nil, err
			}
			ts = append(ts, t)
		}
		if ch.Bridge.Enabled {
			ts = append(ts, bridge.New(mb, bridge.Options{
				Name:      ch.Bridge.Name,
				URL:       ch.Bridge.URL,
				AllowFrom: ch.Bridge.AllowFrom,
			}))
		}
		return ts, nil
	}
}
