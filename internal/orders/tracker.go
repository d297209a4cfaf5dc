// Package orders tracks the lifecycle of every filled order from entry
// to close: an in-memory position-state cache per (agent, symbol) plus
// an append-only structured event log, logged through zerolog in the
// same shape the source platform used for its own order audit trail.
package orders

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Position status constants, mirroring the lifecycle a filled entry
// moves through as exits (including partial take-profits) land.
const (
	StatusActive  = "ACTIVE"
	StatusPartial = "PARTIAL"
	StatusClosed  = "CLOSED"
)

// Event type constants for the append-only ledger.
const (
	EventEntryFilled = "ENTRY_FILLED"
	EventExitFilled  = "EXIT_FILLED"
)

// ImpactDirection classifies whether a closing fill's realized PnL
// favored or hurt the position, for the event log's dollar-impact line.
type ImpactDirection string

const (
	ImpactBetter  ImpactDirection = "BETTER"
	ImpactWorse   ImpactDirection = "WORSE"
	ImpactNeutral ImpactDirection = "NEUTRAL"
)

// PositionState is the ledger's current view of one (agent, symbol)
// position, from entry fill through full close.
type PositionState struct {
	AgentID           string
	Symbol            string
	EntryOrderID      string
	EntrySide         string
	EntryPrice        float64
	EntryQuantity     float64
	EntryFilledAt     time.Time
	Status            string
	RemainingQuantity float64
	RealizedPnL       float64
	UpdatedAt         time.Time
	ClosedAt          *time.Time
}

// Event is one append-only ledger entry: an entry fill or an exit fill
// (full or partial), with the realized dollar impact of exits.
type Event struct {
	AgentID         string
	Symbol          string
	OrderID         string
	EventType       string
	Price           float64
	Quantity        float64
	RealizedPnL     float64
	ImpactDirection ImpactDirection
	Reason          string
	CreatedAt       time.Time
}

// Ledger is the in-memory order/position tracker. It is safe for
// concurrent use; one Ledger is shared across every agent.
type Ledger struct {
	mu         sync.RWMutex
	logger     zerolog.Logger
	positions  map[string]*PositionState // keyed by agentID|symbol
	events     []Event
}

// NewLedger builds an empty Ledger logging through logger.
func NewLedger(logger zerolog.Logger) *Ledger {
	return &Ledger{
		logger:    logger.With().Str("component", "orders.Ledger").Logger(),
		positions: make(map[string]*PositionState),
	}
}

func key(agentID, symbol string) string { return agentID + "|" + symbol }

// RecordEntry opens (or adds to, on a weighted-average re-entry) a
// position's tracked state on a filled BUY and appends an
// ENTRY_FILLED event.
func (l *Ledger) RecordEntry(agentID, symbol, orderID string, price, quantity float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	k := key(agentID, symbol)
	now := time.Now()
	pos, exists := l.positions[k]
	if !exists || pos.Status == StatusClosed {
		pos = &PositionState{
			AgentID:           agentID,
			Symbol:            symbol,
			EntryOrderID:      orderID,
			EntrySide:         "BUY",
			EntryPrice:        price,
			EntryQuantity:     quantity,
			EntryFilledAt:     now,
			Status:            StatusActive,
			RemainingQuantity: quantity,
		}
	} else {
		totalQty := pos.RemainingQuantity + quantity
		pos.EntryPrice = (pos.EntryPrice*pos.RemainingQuantity + price*quantity) / totalQty
		pos.RemainingQuantity = totalQty
		pos.Status = StatusActive
	}
	pos.UpdatedAt = now
	l.positions[k] = pos

	l.appendLocked(Event{
		AgentID:   agentID,
		Symbol:    symbol,
		OrderID:   orderID,
		EventType: EventEntryFilled,
		Price:     price,
		Quantity:  quantity,
		CreatedAt: now,
	})

	l.logger.Info().
		Str("agent_id", agentID).
		Str("symbol", symbol).
		Str("order_id", orderID).
		Float64("price", price).
		Float64("quantity", quantity).
		Msg("position entry filled")
}

// RecordExit reduces a tracked position's remaining quantity on a
// filled SELL (full exit, a forced exit-engine SELL, or a partial
// take-profit), closing it once remaining quantity hits zero, and
// appends an EXIT_FILLED event carrying the realized dollar impact.
func (l *Ledger) RecordExit(agentID, symbol, orderID string, price, quantity, realizedPnL float64, reason string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	k := key(agentID, symbol)
	now := time.Now()
	pos, exists := l.positions[k]
	if !exists {
		l.logger.Warn().
			Str("agent_id", agentID).
			Str("symbol", symbol).
			Msg("exit fill recorded with no tracked entry")
		return
	}

	pos.RemainingQuantity -= quantity
	pos.RealizedPnL += realizedPnL
	pos.UpdatedAt = now
	if pos.RemainingQuantity <= 1e-9 {
		pos.Status = StatusClosed
		closedAt := now
		pos.ClosedAt = &closedAt
	} else {
		pos.Status = StatusPartial
	}

	l.appendLocked(Event{
		AgentID:         agentID,
		Symbol:          symbol,
		OrderID:         orderID,
		EventType:       EventExitFilled,
		Price:           price,
		Quantity:        quantity,
		RealizedPnL:     realizedPnL,
		ImpactDirection: impactDirectionFor(realizedPnL),
		Reason:          reason,
		CreatedAt:       now,
	})

	l.logger.Info().
		Str("agent_id", agentID).
		Str("symbol", symbol).
		Str("order_id", orderID).
		Float64("price", price).
		Float64("quantity", quantity).
		Float64("realized_pnl", realizedPnL).
		Str("impact", string(impactDirectionFor(realizedPnL))).
		Str("reason", reason).
		Str("status", pos.Status).
		Msg("position exit filled")
}

// impactDirectionFor classifies a closing fill's realized PnL.
func impactDirectionFor(pnl float64) ImpactDirection {
	switch {
	case pnl > 0:
		return ImpactBetter
	case pnl < 0:
		return ImpactWorse
	default:
		return ImpactNeutral
	}
}

// appendLocked appends ev to the event log. Callers must hold l.mu.
func (l *Ledger) appendLocked(ev Event) {
	l.events = append(l.events, ev)
}

// Position returns a copy of the tracked state for (agentID, symbol),
// if any.
func (l *Ledger) Position(agentID, symbol string) (PositionState, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	pos, ok := l.positions[key(agentID, symbol)]
	if !ok {
		return PositionState{}, false
	}
	return *pos, true
}

// RecentEvents returns the last n ledger events across all agents and
// symbols, oldest first, for the control surface's audit views.
func (l *Ledger) RecentEvents(n int) []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if n > len(l.events) {
		n = len(l.events)
	}
	out := make([]Event, n)
	copy(out, l.events[len(l.events)-n:])
	return out
}
