// Package hub fans live notifications out to websocket clients.
//
// The hub keeps a registry of open channels. Relay forwards one client's
// message to every other client; Signal sends a bare token to everyone.
// Both iterate a snapshot of the registry sorted by channel id, so delivery
// order is stable, and a channel that fails to accept a message is removed
// and closed without affecting the others.
package hub

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"netmirror/internal/logging"
	"netmirror/internal/metrics"
)

var (
	// ErrSlowClient is returned when a channel's send queue is full
	ErrSlowClient = errors.New("client send queue full")
	// ErrChannelClosed is returned when sending to a closed channel
	ErrChannelClosed = errors.New("channel closed")
)

// Channel is one live duplex connection
type Channel interface {
	ID() uint64
	// Send queues a text message; it must not block on the network
	Send(msg []byte) error
	Close() error
}

// Result reports the outcome of a broadcast
type Result struct {
	Delivered int
	Failed    int
}

// Options configures a Hub
type Options struct {
	// SendBuffer is the per-client outgoing queue length
	SendBuffer int
	// CheckOrigin validates websocket upgrade origins; nil allows all
	CheckOrigin func(r *http.Request) bool
}

// Hub maintains the set of open channels
type Hub struct {
	mu       sync.Mutex
	channels map[uint64]Channel
	closed   bool

	sendBuffer int
	upgrader   websocket.Upgrader
}

// New creates a new Hub
func New(opts Options) *Hub {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 64
	}
	checkOrigin := opts.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &Hub{
		channels:   make(map[uint64]Channel),
		sendBuffer: opts.SendBuffer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
			CheckOrigin:      checkOrigin,
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

// Register adds a channel. It returns false after the hub has shut down,
// in which case the caller owns closing the channel.
func (h *Hub) Register(ch Channel) bool {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return false
	}
	h.channels[ch.ID()] = ch
	total := len(h.channels)
	h.mu.Unlock()

	metrics.LiveChannels.Inc()
	logging.Info().Uint64("channel_id", ch.ID()).Int("total_channels", total).Msg("Live channel connected")
	return true
}

// Unregister removes and closes a channel. Unknown channels are ignored.
func (h *Hub) Unregister(ch Channel) {
	if h.remove(ch.ID()) {
		_ = ch.Close()
	}
}

func (h *Hub) remove(id uint64) bool {
	h.mu.Lock()
	_, ok := h.channels[id]
	delete(h.channels, id)
	total := len(h.channels)
	h.mu.Unlock()

	if ok {
		metrics.LiveChannels.Dec()
		logging.Info().Uint64("channel_id", id).Int("total_channels", total).Msg("Live channel disconnected")
	}
	return ok
}

// Count returns the number of open channels
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.channels)
}

// Relay sends msg verbatim to every open channel except the sender
func (h *Hub) Relay(from uint64, msg []byte) Result {
	return h.broadcast("relay", msg, from, true)
}

// Signal sends token to every open channel
func (h *Hub) Signal(token string) Result {
	return h.broadcast("signal", []byte(token), 0, false)
}

func (h *Hub) broadcast(mode string, msg []byte, exclude uint64, hasExclude bool) Result {
	var res Result
	for _, ch := range h.snapshot() {
		if hasExclude && ch.ID() == exclude {
			continue
		}
		if err := ch.Send(msg); err != nil {
			res.Failed++
			metrics.LiveSendFailures.WithLabelValues(mode).Inc()
			logging.Warn().Err(err).Uint64("channel_id", ch.ID()).Str("mode", mode).Msg("Dropping live channel")
			h.Unregister(ch)
			continue
		}
		res.Delivered++
	}
	return res
}

// snapshot copies the registry sorted by channel id
func (h *Hub) snapshot() []Channel {
	h.mu.Lock()
	out := make([]Channel, 0, len(h.channels))
	for _, ch := range h.channels {
		out = append(out, ch)
	}
	h.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Run blocks until ctx is done, then closes every channel and refuses new
// ones. It fits a suture.Service.
func (h *Hub) Run(ctx context.Context) error {
	<-ctx.Done()

	h.mu.Lock()
	h.closed = true
	channels := h.channels
	h.channels = make(map[uint64]Channel)
	h.mu.Unlock()

	for _, ch := range channels {
		metrics.LiveChannels.Dec()
		_ = ch.Close()
	}
	logging.Info().
		Str("component", "live-hub").
		Int("channels_closed", len(channels)).
		Msg("Live hub stopped")
	return ctx.Err()
}

// ServeHTTP upgrades the request to a websocket and serves the channel
// until either side closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error
		logging.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("Websocket upgrade failed")
		return
	}

	client := newClient(h, conn, h.sendBuffer)
	if !h.Register(client) {
		_ = client.Close()
		return
	}
	client.start()
}
