// Package exit tracks per-position stop-loss, take-profit, trailing,
// time, and signal exit levels and sweeps them on every tick to decide
// whether a position should be force-closed ahead of any new LLM
// decision.
package exit

import (
	"sync"
	"time"

	"github.com/koshedutech/equities-trader/internal/smartmoney"
)

const (
	trailingActivationPct = 0.04
	trailingDistancePct   = 0.015

	timeExitHoldingDays    = 10
	timeExitPnLBandPct     = 0.01
	partialTakeProfitPct   = 0.06

	baseStopLossPct   = 0.03
	baseTakeProfitPct = 0.06

	minStopLossPct   = 0.02
	maxStopLossPct   = 0.06
	minTakeProfitPct = 0.04
	maxTakeProfitPct = 0.15
)

// Reason identifies which rule triggered a forced exit.
type Reason string

const (
	ReasonStopLoss     Reason = "STOP_LOSS"
	ReasonTakeProfit   Reason = "TAKE_PROFIT"
	ReasonTrailingStop Reason = "TRAILING_STOP"
	ReasonTimeExit     Reason = "TIME_EXIT"
	ReasonSignalExit   Reason = "SIGNAL_EXIT"
)

// Severity is how urgently a forced exit must be acted on.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
)

// RiskLevel mirrors the qualitative risk band attached to a decision,
// used by create_exit_levels to widen or narrow SL/TP.
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// Level is the set of exit thresholds tracked for one open position.
// It's long-only: equities positions here are always BUY-then-SELL.
type Level struct {
	AgentID  string
	Symbol   string
	Quantity float64

	EntryPrice      float64
	StopLossPrice   float64
	TakeProfitPrice float64

	TrailingActive    bool
	HighestPriceSeen  float64
	TrailingStopPrice float64

	PartialTaken bool

	OpenedAt time.Time
}

// Signal is a forced-exit instruction the orchestrator must execute as
// a SELL, bypassing the LLM.
type Signal struct {
	AgentID       string
	Symbol        string
	Reason        Reason
	Severity      Severity
	Quantity      float64 // quantity to sell; full position unless a partial take-profit
	Price         float64
	LessonLearned string
}

// Engine tracks exit levels for every open (agent, symbol) position.
type Engine struct {
	mu     sync.Mutex
	levels map[string]*Level // keyed by agentID+"|"+symbol
}

// New returns an empty Engine.
func New() *Engine {
	return &Engine{levels: make(map[string]*Level)}
}

func key(agentID, symbol string) string { return agentID + "|" + symbol }

// Register records a new ExitLevel for a freshly opened position,
// computed via CreateExitLevels.
func (e *Engine) Register(level Level) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.levels[key(level.AgentID, level.Symbol)] = &level
}

// Remove drops a position's ExitLevel, used on a full SELL close.
func (e *Engine) Remove(agentID, symbol string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.levels, key(agentID, symbol))
}

// Get returns a copy of a tracked position's level, if any.
func (e *Engine) Get(agentID, symbol string) (Level, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	lvl, ok := e.levels[key(agentID, symbol)]
	if !ok {
		return Level{}, false
	}
	return *lvl, true
}

// PriceSource supplies the current market price for a symbol.
type PriceSource func(symbol string) (float64, bool)

// Sweep evaluates every tracked level against currentPrice (from
// priceSource) and the smart-money overall signal for its symbol,
// returning forced-exit signals in priority order: stop-loss,
// take-profit, trailing-stop, time-exit, signal-exit. At most one
// signal per position is emitted per sweep.
func (e *Engine) Sweep(priceSource PriceSource, overallSignal func(symbol string) smartmoney.Sentiment) []Signal {
	e.mu.Lock()
	defer e.mu.Unlock()

	var signals []Signal
	for _, lvl := range e.levels {
		price, ok := priceSource(lvl.Symbol)
		if !ok {
			continue
		}

		if sig, ok := evaluate(lvl, price, overallSignal); ok {
			signals = append(signals, sig)
		}
	}
	return signals
}

// evaluate runs the five-rule cascade against one position. Caller
// must hold e.mu.
func evaluate(lvl *Level, price float64, overallSignal func(symbol string) smartmoney.Sentiment) (Signal, bool) {
	pnlPct := (price - lvl.EntryPrice) / lvl.EntryPrice

	if price <= lvl.StopLossPrice {
		return Signal{
			AgentID: lvl.AgentID, Symbol: lvl.Symbol, Reason: ReasonStopLoss, Severity: SeverityCritical,
			Quantity: lvl.Quantity, Price: price, LessonLearned: "Stop-loss triggered; cut losses per plan.",
		}, true
	}

	if price >= lvl.TakeProfitPrice {
		return Signal{
			AgentID: lvl.AgentID, Symbol: lvl.Symbol, Reason: ReasonTakeProfit, Severity: SeverityHigh,
			Quantity: lvl.Quantity, Price: price, LessonLearned: "Take-profit target reached.",
		}, true
	}

	if pnlPct >= trailingActivationPct {
		lvl.TrailingActive = true
	}
	if lvl.TrailingActive {
		if price > lvl.HighestPriceSeen {
			lvl.HighestPriceSeen = price
		}
		lvl.TrailingStopPrice = lvl.HighestPriceSeen * (1 - trailingDistancePct)

		if price <= lvl.TrailingStopPrice {
			return Signal{
				AgentID: lvl.AgentID, Symbol: lvl.Symbol, Reason: ReasonTrailingStop, Severity: SeverityHigh,
				Quantity: lvl.Quantity, Price: price,
				LessonLearned: "Trailing stop captured gains after a run-up.",
			}, true
		}
	}

	holdingDays := time.Since(lvl.OpenedAt).Hours() / 24
	if holdingDays >= timeExitHoldingDays && absFloat(pnlPct) < timeExitPnLBandPct {
		return Signal{
			AgentID: lvl.AgentID, Symbol: lvl.Symbol, Reason: ReasonTimeExit, Severity: SeverityMedium,
			Quantity: lvl.Quantity, Price: price, LessonLearned: "Position stagnated; time exit freed up capital.",
		}, true
	}

	if overallSignal != nil && overallSignal(lvl.Symbol) == smartmoney.SentimentStrongBearish && pnlPct > 0 {
		return Signal{
			AgentID: lvl.AgentID, Symbol: lvl.Symbol, Reason: ReasonSignalExit, Severity: SeverityMedium,
			Quantity: lvl.Quantity, Price: price, LessonLearned: "Exited on strong bearish smart-money signal while profitable.",
		}, true
	}

	return Signal{}, false
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// CreateExitLevels computes adaptive stop-loss and take-profit
// percentages for a freshly opened position from its entry conditions
// and returns the Level ready to Register.
func CreateExitLevels(agentID, symbol string, entry, quantity, confidence, vix float64, risk RiskLevel, smartSignal smartmoney.Sentiment) Level {
	slPct := adaptiveStopLossPct(confidence, vix, risk)
	tpPct := adaptiveTakeProfitPct(confidence, vix, risk, smartSignal)

	return Level{
		AgentID:         agentID,
		Symbol:          symbol,
		Quantity:        quantity,
		EntryPrice:      entry,
		StopLossPrice:   entry * (1 - slPct),
		TakeProfitPrice: entry * (1 + tpPct),
		OpenedAt:        time.Now(),
	}
}

func adaptiveStopLossPct(confidence, vix float64, risk RiskLevel) float64 {
	pct := baseStopLossPct

	switch {
	case vix > 30:
		pct *= 0.8
	case vix < 15:
		pct *= 1.1
	}

	switch {
	case confidence < 60:
		pct *= 0.8
	case confidence >= 85:
		pct *= 1.1
	}

	if risk == RiskHigh {
		pct *= 0.85
	}

	return clamp(pct, minStopLossPct, maxStopLossPct)
}

func adaptiveTakeProfitPct(confidence, vix float64, risk RiskLevel, smartSignal smartmoney.Sentiment) float64 {
	pct := baseTakeProfitPct

	switch {
	case vix > 30:
		pct *= 0.8
	case vix < 15:
		pct *= 1.1
	}

	switch {
	case confidence < 60:
		pct *= 0.8
	case confidence >= 85:
		pct *= 1.1
	}

	if risk == RiskHigh {
		pct *= 0.85
	}

	switch smartSignal {
	case smartmoney.SentimentStrongBullish, smartmoney.SentimentBullish:
		pct *= 1.1
	case smartmoney.SentimentStrongBearish, smartmoney.SentimentBearish:
		pct *= 0.9
	}

	return clamp(pct, minTakeProfitPct, maxTakeProfitPct)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// PartialTakeProfit reports whether a position has crossed the
// optional partial take-profit threshold and hasn't already been
// partially taken. When true, the caller should sell half the
// remaining quantity and leave the trailing stop armed on the rest.
func PartialTakeProfit(lvl *Level, price float64) bool {
	if lvl.PartialTaken {
		return false
	}
	pnlPct := (price - lvl.EntryPrice) / lvl.EntryPrice
	return pnlPct >= partialTakeProfitPct
}
