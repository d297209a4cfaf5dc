// Package agent implements the solo trading agent's per-tick decision
// loop: assemble context, invoke an LLM, validate its decision, run the
// decision through the gate stack, size the resulting position, submit
// it to the broker, and fold the outcome back into memory, exit levels,
// and the circuit breaker.
package agent

import (
	"context"
	"sync"
	"time"

	"github.com/koshedutech/equities-trader/internal/broker"
	"github.com/koshedutech/equities-trader/internal/circuit"
	"github.com/koshedutech/equities-trader/internal/database"
	"github.com/koshedutech/equities-trader/internal/earnings"
	"github.com/koshedutech/equities-trader/internal/events"
	"github.com/koshedutech/equities-trader/internal/exit"
	"github.com/koshedutech/equities-trader/internal/indicators"
	"github.com/koshedutech/equities-trader/internal/llm"
	"github.com/koshedutech/equities-trader/internal/logging"
	"github.com/koshedutech/equities-trader/internal/memory"
	"github.com/koshedutech/equities-trader/internal/orders"
	"github.com/koshedutech/equities-trader/internal/smartmoney"
	"github.com/koshedutech/equities-trader/internal/symbols"
)

// autocritiqueEvery is how often (in successful analyze_market calls)
// the agent regenerates its autocritique monologue.
const autocritiqueEvery = 5

// PositionHolding is one symbol's open position within an Agent's own
// ledger (distinct from, but kept consistent with, the broker's
// internal bookkeeping).
type PositionHolding struct {
	Qty           float64
	AvgEntryPrice float64
}

// TradeRecord is one entry in an agent's append-only trade history.
// HOLD records carry an empty symbol and zero quantity and are never
// marked executed.
type TradeRecord struct {
	Decision   string
	Symbol     string
	Quantity   float64
	Price      float64
	Reasoning  string
	Confidence float64
	Timestamp  time.Time
	Executed   bool
	OrderID    string
	PnL        float64
}

// Agent is the mutable per-agent ledger: capital, positions, trade
// history, and the autocritique state, matching the Agent entity of
// the data model. It is safe for concurrent use.
type Agent struct {
	ID              string
	Name            string
	ModelHandle     string
	PersonalityText string
	InitialCapital  float64

	mu                  sync.Mutex
	CurrentCapital      float64
	TotalFees           float64
	TradeCount          int
	WinningTrades       int
	LosingTrades        int
	Positions           map[string]*PositionHolding
	History             []TradeRecord
	LastAutocritique    string
	AutocritiqueCounter int
}

// NewAgent seeds a fresh Agent with initialCapital and no positions.
func NewAgent(id, name, modelHandle, personalityText string, initialCapital float64) *Agent {
	return &Agent{
		ID:              id,
		Name:            name,
		ModelHandle:     modelHandle,
		PersonalityText: personalityText,
		InitialCapital:  initialCapital,
		CurrentCapital:  initialCapital,
		Positions:       make(map[string]*PositionHolding),
	}
}

// Capital returns the agent's current capital.
func (a *Agent) Capital() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.CurrentCapital
}

// Position returns a copy of the agent's holding in symbol, if any.
func (a *Agent) Position(symbol string) (PositionHolding, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	pos, ok := a.Positions[symbol]
	if !ok {
		return PositionHolding{}, false
	}
	return *pos, true
}

// PositionQty returns the agent's held quantity in symbol, 0 if flat.
func (a *Agent) PositionQty(symbol string) float64 {
	pos, ok := a.Position(symbol)
	if !ok {
		return 0
	}
	return pos.Qty
}

// PositionCount reports how many symbols the agent currently holds.
func (a *Agent) PositionCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.Positions)
}

// Stats is a consistent snapshot of the agent's trade counters, safe
// to read without racing applyFill.
type Stats struct {
	TradeCount     int
	WinningTrades  int
	LosingTrades   int
	InitialCapital float64
}

// Snapshot returns a consistent copy of the agent's trade counters.
func (a *Agent) Snapshot() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Stats{
		TradeCount:     a.TradeCount,
		WinningTrades:  a.WinningTrades,
		LosingTrades:   a.LosingTrades,
		InitialCapital: a.InitialCapital,
	}
}

// PerformancePct reports the agent's all-time return, used as the
// Consortium's performance weight and the agent leaderboard's ranking.
func (a *Agent) PerformancePct() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.InitialCapital <= 0 {
		return 0
	}
	return (a.CurrentCapital - a.InitialCapital) / a.InitialCapital * 100
}

// applyFill updates positions and capital for an executed order,
// weighted-averaging the entry price on an add-to BUY and deleting the
// position once a SELL brings quantity to zero or below. It returns
// the realized PnL, which is 0 for a BUY.
func (a *Agent) applyFill(decision, symbol string, qty, price, fee float64) float64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	realizedPnL := 0.0

	switch decision {
	case database.DecisionBuy:
		cost := qty*price + fee
		a.CurrentCapital -= cost
		a.TotalFees += fee

		pos, exists := a.Positions[symbol]
		if !exists {
			a.Positions[symbol] = &PositionHolding{Qty: qty, AvgEntryPrice: price}
		} else {
			newQty := pos.Qty + qty
			pos.AvgEntryPrice = (pos.AvgEntryPrice*pos.Qty + price*qty) / newQty
			pos.Qty = newQty
		}

	case database.DecisionSell:
		proceeds := qty*price - fee
		a.CurrentCapital += proceeds
		a.TotalFees += fee

		if pos, exists := a.Positions[symbol]; exists {
			realizedPnL = (price - pos.AvgEntryPrice) * qty
			pos.Qty -= qty
			if pos.Qty <= 0 {
				delete(a.Positions, symbol)
			}
			if realizedPnL > 0 {
				a.WinningTrades++
			} else if realizedPnL < 0 {
				a.LosingTrades++
			}
		}
	}

	a.TradeCount++
	return realizedPnL
}

// recordHistory appends a TradeRecord to the agent's history.
func (a *Agent) recordHistory(rec TradeRecord) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.History = append(a.History, rec)
}

// recentHistory returns a copy of the agent's last n trade records.
func (a *Agent) recentHistory(n int) []TradeRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	if n > len(a.History) {
		n = len(a.History)
	}
	out := make([]TradeRecord, n)
	copy(out, a.History[len(a.History)-n:])
	return out
}

// bumpAutocritiqueCounter increments the counter and reports whether it
// just crossed the autocritique threshold (and should be reset by the
// caller once the critique is persisted).
func (a *Agent) bumpAutocritiqueCounter() (count int, due bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.AutocritiqueCounter++
	return a.AutocritiqueCounter, a.AutocritiqueCounter >= autocritiqueEvery
}

func (a *Agent) resetAutocritiqueCounter(critique string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.AutocritiqueCounter = 0
	a.LastAutocritique = critique
}

// MoverCandidate is one candidate symbol offered to the LLM, with its
// latest price and technical analysis.
type MoverCandidate struct {
	Symbol   string
	Price    float64
	Analysis indicators.Analysis
}

// TickInput bundles the per-tick market context shared across every
// agent's AnalyzeMarket call: the global smart-money read, the
// candidate symbol set with technical analysis, and any per-symbol
// smart-money snapshots the gate stack needs.
type TickInput struct {
	VIX              float64
	FearGreed        float64
	OverallSentiment string
	Movers           []MoverCandidate
	SmartMoney       map[string]smartmoney.Snapshot
	Feedback         string
}

// LLMClient is the subset of *llm.Client's behavior AnalyzeMarket
// depends on, narrowed to an interface so a fake transport can be
// injected in tests without making network calls. *llm.Client
// satisfies this implicitly.
type LLMClient interface {
	GenerateResponse(ctx context.Context, model, systemPrompt, userContent string, temperature float64, maxTokens int) (llm.Response, error)
}

// Dependencies bundles every external collaborator a BaseAgent needs.
// Exactly one PaperBroker/Broker instance is expected per agent.
type Dependencies struct {
	Broker     broker.Broker
	LLM        LLMClient
	Model      string
	Memory     *memory.Store
	Patterns   *memory.PatternIndex
	Earnings   *earnings.Calendar
	SmartMoney *smartmoney.Aggregator
	Whitelist  *symbols.Whitelist
	Breaker    *circuit.Breaker
	Exits      *exit.Engine
	Events     *events.EventBus
	Repo       *database.Repository
	Log        *logging.Logger
	Orders     *orders.Ledger

	FeePerTrade float64
	Temperature float64
	MaxTokens   int

	// AllowSymbolSubstitution controls whether a whitelist rejection is
	// allowed to fall back to a suggested sector leader instead of
	// simply failing with a reason. Defaults to false (reject-with-reason).
	AllowSymbolSubstitution bool
}

// BaseAgent is the enriched per-agent decision loop: analyze_market +
// execute_trade, accepting smart-money data, technical data, and
// last-attempt feedback, and returning (bool, reason) from
// ExecuteTrade.
type BaseAgent struct {
	Agent *Agent
	deps  Dependencies
}

// NewBaseAgent wires an Agent to its dependencies.
func NewBaseAgent(a *Agent, deps Dependencies) *BaseAgent {
	return &BaseAgent{Agent: a, deps: deps}
}
