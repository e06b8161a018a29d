package runtime

import (
	"fmt"
	"sync"
	"time"
)

// EventType represents the type of pipeline event.
type EventType string

const (
	EventRunStart            EventType = "run_start"
	EventStageStart          EventType = "stage_start"
	EventStageEnd            EventType = "stage_end"
	EventStageError          EventType = "stage_error"
	EventRetry               EventType = "retry"
	EventRunComplete         EventType = "run_complete"
	EventMemoryPersistFailed EventType = "memory_persist_failed"
)

// Event data keys.
const (
	DataRunID    = "run_id"
	DataQuery    = "query"
	DataStage    = "stage"
	DataAgent    = "agent"
	DataIndex    = "index"
	DataTotal    = "total"
	DataDuration = "duration"
	DataError    = "error"
	DataAttempt  = "attempt"
	DataDelay    = "delay"
	DataSource   = "source"
)

// Event is one step of a pipeline run as seen by observers.
type Event struct {
	Type      EventType
	Timestamp time.Time
	SessionID string
	Data      map[string]interface{}
}

// String returns the data value for key formatted as text, or "".
func (e Event) String(key string) string {
	v, ok := e.Data[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Int returns the integer data value for key, or 0.
func (e Event) Int(key string) int {
	switch v := e.Data[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

type EventHandler func(Event)

// EventBus fans events out to subscribers synchronously, in subscription
// order. Handlers may publish further events.
type EventBus struct {
	mu          sync.RWMutex
	handlers    map[EventType][]EventHandler
	allHandlers []EventHandler
}

func NewEventBus() *EventBus {
	return &EventBus{
		handlers: make(map[EventType][]EventHandler),
	}
}

// Subscribe registers a handler for one event type. Handlers for a type run
// before the catch-all handlers.
func (eb *EventBus) Subscribe(eventType EventType, handler EventHandler) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.handlers[eventType] = append(eb.handlers[eventType], handler)
}

// SubscribeAll registers a handler for every event type.
func (eb *EventBus) SubscribeAll(handler EventHandler) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.allHandlers = append(eb.allHandlers, handler)
}

// Publish sends an event to all registered handlers. A nil bus drops it.
func (eb *EventBus) Publish(event Event) {
	if eb == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	eb.mu.RLock()
	specific := append([]EventHandler(nil), eb.handlers[event.Type]...)
	all := append([]EventHandler(nil), eb.allHandlers...)
	eb.mu.RUnlock()

	for _, handler := range specific {
		handler(event)
	}
	for _, handler := range all {
		handler(event)
	}
}

func (eb *EventBus) PublishSimple(eventType EventType, sessionID string) {
	eb.Publish(Event{Type: eventType, SessionID: sessionID})
}

func (eb *EventBus) PublishWithData(eventType EventType, sessionID string, data map[string]interface{}) {
	eb.Publish(Event{
		Type:      eventType,
		SessionID: sessionID,
		Data:      data,
	})
}
