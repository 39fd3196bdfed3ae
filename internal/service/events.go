package service

import (
	"fmt"
	"sync"

	"netmirror/internal/logging"
	"netmirror/internal/metrics"
)

// EventType defines the type of event
type EventType string

const (
	EventSyncStarted      EventType = "sync_started"
	EventDeviceAdded      EventType = "device_added"
	EventConnectionAdded  EventType = "connection_added"
	EventRegionAdded      EventType = "region_added"
	EventSyncCompleted    EventType = "sync_completed"
	EventSyncFailed       EventType = "sync_failed"
	EventRegionUpdated    EventType = "region_updated"
	EventRegionDeleted    EventType = "region_deleted"
	EventPositionsUpdated EventType = "positions_updated"
)

// Event represents an event that occurred in the system
type Event struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload,omitempty"`
}

// HandlerFunc reacts to a published event
type HandlerFunc func(Event) error

// HandlerFailure records one handler that errored or panicked
type HandlerFailure struct {
	Handler string
	Err     error
}

// PublishResult reports how a single publish went
type PublishResult struct {
	Delivered int
	Failures  []HandlerFailure
}

type subscription struct {
	name    string
	handler HandlerFunc
}

// EventBus dispatches events synchronously to subscribers in subscription
// order. Subscriptions live for the life of the bus.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]subscription
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]subscription),
	}
}

// Subscribe registers a named handler for an event type
func (eb *EventBus) Subscribe(eventType EventType, name string, handler HandlerFunc) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscription{name: name, handler: handler})
}

// Publish invokes every handler for the event type before returning.
// A failing handler never prevents the remaining handlers from running.
func (eb *EventBus) Publish(event Event) PublishResult {
	eb.mu.RLock()
	subs := make([]subscription, len(eb.subscribers[event.Type]))
	copy(subs, eb.subscribers[event.Type])
	eb.mu.RUnlock()

	var result PublishResult
	for _, sub := range subs {
		if err := invoke(sub.handler, event); err != nil {
			logging.Error().
				Err(err).
				Str("event", string(event.Type)).
				Str("handler", sub.name).
				Msg("Event handler failed")
			metrics.BusHandlerFailures.WithLabelValues(string(event.Type)).Inc()
			result.Failures = append(result.Failures, HandlerFailure{Handler: sub.name, Err: err})
			continue
		}
		result.Delivered++
	}
	return result
}

func invoke(handler HandlerFunc, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()
	return handler(event)
}
