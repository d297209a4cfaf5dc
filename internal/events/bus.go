package events

import (
	"sync"
	"time"
)

// EventType identifies the kind of event carried on the bus.
type EventType string

const (
	EventTradingCycle       EventType = "trading_cycle"
	EventMarketClosed       EventType = "market_closed"
	EventMarketHoursBlocked EventType = "market_hours_blocked"
	EventAutoExit           EventType = "auto_exit"
	EventTradingEnabled     EventType = "trading_enabled"
	EventTradingDisabled    EventType = "trading_disabled"
	EventError              EventType = "error"
)

// Event is a single broadcastable occurrence with a component-specific payload.
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber handles a published event.
type Subscriber func(Event)

// EventBus fans out published events to interested subscribers.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber
}

// NewEventBus creates an empty event bus.
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]Subscriber),
		allSubs:     make([]Subscriber, 0),
	}
}

// Subscribe registers a subscriber for a specific event type.
func (eb *EventBus) Subscribe(eventType EventType, subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for every event type.
func (eb *EventBus) SubscribeAll(subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.allSubs = append(eb.allSubs, subscriber)
}

// Publish dispatches an event to all matching subscribers without blocking the caller.
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if subs, ok := eb.subscribers[event.Type]; ok {
		for _, sub := range subs {
			go sub(event)
		}
	}

	for _, sub := range eb.allSubs {
		go sub(event)
	}
}

// PublishTradingCycle broadcasts the outcome of one orchestrator tick.
func (eb *EventBus) PublishTradingCycle(decisions map[string]interface{}, stats map[string]interface{}) {
	eb.Publish(Event{
		Type: EventTradingCycle,
		Data: map[string]interface{}{
			"decisions":  decisions,
			"statistics": stats,
		},
	})
}

// PublishMarketClosed announces the market has transitioned to closed.
func (eb *EventBus) PublishMarketClosed(status string) {
	eb.Publish(Event{
		Type: EventMarketClosed,
		Data: map[string]interface{}{
			"status": status,
		},
	})
}

// PublishMarketHoursBlocked announces a tick was short-circuited by the market clock.
func (eb *EventBus) PublishMarketHoursBlocked(window string, reason string) {
	eb.Publish(Event{
		Type: EventMarketHoursBlocked,
		Data: map[string]interface{}{
			"window": window,
			"reason": reason,
		},
	})
}

// PublishAutoExit announces a forced SELL emitted by the exit engine.
func (eb *EventBus) PublishAutoExit(agentID, symbol, reason string, quantity, price float64) {
	eb.Publish(Event{
		Type: EventAutoExit,
		Data: map[string]interface{}{
			"agent_id": agentID,
			"symbol":   symbol,
			"reason":   reason,
			"quantity": quantity,
			"price":    price,
		},
	})
}

// PublishTradingEnabled announces the orchestrator was toggled on.
func (eb *EventBus) PublishTradingEnabled() {
	eb.Publish(Event{Type: EventTradingEnabled, Data: map[string]interface{}{}})
}

// PublishTradingDisabled announces the orchestrator was toggled off.
func (eb *EventBus) PublishTradingDisabled() {
	eb.Publish(Event{Type: EventTradingDisabled, Data: map[string]interface{}{}})
}

// PublishError announces a recovered-from failure for operator visibility.
func (eb *EventBus) PublishError(source, message string, err error) {
	data := map[string]interface{}{
		"source":  source,
		"message": message,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	eb.Publish(Event{
		Type: EventError,
		Data: data,
	})
}

// ============================================================================
// Broadcast callback indirection: packages outside events (control, orchestrator)
// register a transport callback here so domain code never imports the
// transport/control layer directly, avoiding import cycles.
// ============================================================================

// BroadcastFunc carries a raw event payload to whatever transport is wired in.
type BroadcastFunc func(data interface{})

var (
	broadcastMu   sync.RWMutex
	broadcastFunc BroadcastFunc
)

// SetBroadcastFunc wires the transport callback used by BroadcastEvent.
func SetBroadcastFunc(fn BroadcastFunc) {
	broadcastMu.Lock()
	defer broadcastMu.Unlock()
	broadcastFunc = fn
}

// BroadcastEvent hands an event to the wired transport, if any, without blocking.
func BroadcastEvent(data interface{}) {
	broadcastMu.RLock()
	fn := broadcastFunc
	broadcastMu.RUnlock()
	if fn != nil {
		go fn(data)
	}
}
