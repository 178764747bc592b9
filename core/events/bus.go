// Package events provides a simple event bus for publish/subscribe patterns.
// Service handlers publish their results here (e.g. "mosenergosbyt_push_result").
package events

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Event names fired by the indications services.
const (
	PushResult        = "mosenergosbyt_push_result"
	CalculationResult = "mosenergosbyt_calculation_result"
)

// Event represents a published event.
type Event struct {
	// Name is the event type (e.g., "mosenergosbyt_push_result").
	Name string `json:"event_type"`

	// Service is the service call that fired the event.
	Service string `json:"service,omitempty"`

	// CallID links the event to the journaled call.
	CallID string `json:"call_id,omitempty"`

	// Data contains the event payload.
	Data map[string]any `json:"data"`

	FiredAt time.Time `json:"time_fired"`
}

// Handler is a function that processes an event.
type Handler func(ctx context.Context, event Event) error

// Bus is a simple publish/subscribe event bus.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	logger   zerolog.Logger
}

// NewBus creates a new event bus.
func NewBus(logger zerolog.Logger) *Bus {
	return &Bus{
		handlers: make(map[string][]Handler),
		logger:   logger,
	}
}

// Subscribe registers a handler for an event.
// The handler will be called whenever the event is published.
// Supports wildcard subscriptions:
//   - "mosenergosbyt_push_result" - exact match
//   - "mosenergosbyt_*" - every event with that prefix
//   - "*" - all events
func (b *Bus) Subscribe(event string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[event] = append(b.handlers[event], handler)
}

// Publish emits an event to all matching handlers.
// Handlers are called synchronously in registration order.
// If any handler returns an error, publishing continues but errors are logged.
func (b *Bus) Publish(ctx context.Context, event Event) {
	if event.FiredAt.IsZero() {
		event.FiredAt = time.Now().UTC()
	}

	b.mu.RLock()
	matched := b.match(event.Name)
	b.mu.RUnlock()

	b.logger.Debug().
		Str("event", event.Name).
		Str("service", event.Service).
		Int("handlers", len(matched)).
		Msg("event fired")

	for _, handler := range matched {
		if err := handler(ctx, event); err != nil {
			b.logger.Error().
				Err(err).
				Str("event", event.Name).
				Msg("event handler error")
		}
	}
}

// PublishAsync emits an event asynchronously.
// The function returns immediately; handlers run in a goroutine.
func (b *Bus) PublishAsync(ctx context.Context, event Event) {
	go b.Publish(ctx, event)
}

// HasSubscribers checks if any handlers are registered for an event.
func (b *Bus) HasSubscribers(event string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.match(event)) > 0
}

// match collects handlers for name. Callers hold b.mu.
func (b *Bus) match(name string) []Handler {
	var matched []Handler

	if handlers, ok := b.handlers[name]; ok {
		matched = append(matched, handlers...)
	}

	for pattern, handlers := range b.handlers {
		if pattern == "*" || !strings.HasSuffix(pattern, "*") {
			continue
		}
		if strings.HasPrefix(name, strings.TrimSuffix(pattern, "*")) {
			matched = append(matched, handlers...)
		}
	}

	// Global wildcard last
	if handlers, ok := b.handlers["*"]; ok {
		matched = append(matched, handlers...)
	}

	return matched
}
