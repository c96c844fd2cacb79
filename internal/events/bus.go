package events

import (
	"sync"
	"time"
)

// EventType is the closed set of system events
type EventType string

const (
	EventTickCompleted      EventType = "TICK_COMPLETED"
	EventTradeExecuted      EventType = "TRADE_EXECUTED"
	EventPositionExited     EventType = "POSITION_EXITED"
	EventScanCompleted      EventType = "SCAN_COMPLETED"
	EventCircuitBreaker     EventType = "CIRCUIT_BREAKER"
	EventTradingModeChanged EventType = "TRADING_MODE_CHANGED"
	EventBotStarted         EventType = "BOT_STARTED"
	EventBotStopped         EventType = "BOT_STOPPED"
	EventError              EventType = "ERROR"
)

// Event is one system event
type Event struct {
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

// Subscriber handles events; it runs on its own goroutine per event
type Subscriber func(Event)

// Bus fans events out to subscribers. Publishing never blocks the caller.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber
}

// NewBus creates an event bus
func NewBus() *Bus {
	return &Bus{subscribers: make(map[EventType][]Subscriber)}
}

// Subscribe registers a subscriber for one event type
func (b *Bus) Subscribe(eventType EventType, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], sub)
}

// SubscribeAll registers a subscriber for every event
func (b *Bus) SubscribeAll(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.allSubs = append(b.allSubs, sub)
}

// Publish delivers the event to all matching subscribers
func (b *Bus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subscribers[event.Type] {
		go sub(event)
	}
	for _, sub := range b.allSubs {
		go sub(event)
	}
}

// PublishTickCompleted publishes one pipeline outcome
func (b *Bus) PublishTickCompleted(ticker, status, kind, decision, reason string) {
	b.Publish(Event{
		Type: EventTickCompleted,
		Data: map[string]any{
			"ticker":   ticker,
			"status":   status,
			"kind":     kind,
			"decision": decision,
			"reason":   reason,
		},
	})
}

// PublishTradeExecuted publishes one filled order
func (b *Bus) PublishTradeExecuted(ticker, side string, price, amount, total float64) {
	b.Publish(Event{
		Type: EventTradeExecuted,
		Data: map[string]any{
			"ticker": ticker,
			"side":   side,
			"price":  price,
			"amount": amount,
			"total":  total,
		},
	})
}

// PublishPositionExited publishes a management or strategy exit
func (b *Bus) PublishPositionExited(ticker, trigger string, pnl float64) {
	b.Publish(Event{
		Type: EventPositionExited,
		Data: map[string]any{
			"ticker":  ticker,
			"trigger": trigger,
			"pnl":     pnl,
		},
	})
}

// PublishScanCompleted publishes one scanner run summary
func (b *Bus) PublishScanCompleted(scanned, selected int, duration time.Duration) {
	b.Publish(Event{
		Type: EventScanCompleted,
		Data: map[string]any{
			"scanned":     scanned,
			"selected":    selected,
			"duration_ms": duration.Milliseconds(),
		},
	})
}

// PublishCircuitBreaker publishes a trading block
func (b *Bus) PublishCircuitBreaker(reason string, dailyPct, weeklyPct float64) {
	b.Publish(Event{
		Type: EventCircuitBreaker,
		Data: map[string]any{
			"reason":         reason,
			"daily_pnl_pct":  dailyPct,
			"weekly_pnl_pct": weeklyPct,
		},
	})
}

// PublishError publishes a component error
func (b *Bus) PublishError(source, message string, err error) {
	data := map[string]any{
		"source":  source,
		"message": message,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	b.Publish(Event{Type: EventError, Data: data})
}
