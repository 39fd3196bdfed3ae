package service

import (
	"netmirror/internal/hub"
	"netmirror/internal/logging"
)

// Literal tokens that live clients react to
const (
	SignalMirrorUpdated = "netbox_updated"
	SignalRegionUpdated = "region_updated"
)

// Signaler pushes a token to every live channel
type Signaler interface {
	Signal(token string) hub.Result
}

// BridgeNotifications subscribes the live fan-out to mirror changes: a
// completed sync and every direct region mutation signal all channels.
func BridgeNotifications(bus *EventBus, live Signaler) {
	bus.Subscribe(EventSyncCompleted, "live-signal", signalHandler(live, SignalMirrorUpdated))
	bus.Subscribe(EventRegionUpdated, "live-signal", signalHandler(live, SignalRegionUpdated))
	bus.Subscribe(EventRegionDeleted, "live-signal", signalHandler(live, SignalRegionUpdated))
}

func signalHandler(live Signaler, token string) HandlerFunc {
	return func(ev Event) error {
		res := live.Signal(token)
		if res.Failed > 0 {
			logging.Warn().
				Str("event", string(ev.Type)).
				Str("signal", token).
				Int("delivered", res.Delivered).
				Int("failed", res.Failed).
				Msg("Live signal partially delivered")
		}
		return nil
	}
}
