package agent

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/koshedutech/equities-trader/internal/broker"
	"github.com/koshedutech/equities-trader/internal/database"
	"github.com/koshedutech/equities-trader/internal/exit"
	"github.com/koshedutech/equities-trader/internal/gates"
	"github.com/koshedutech/equities-trader/internal/llm"
	"github.com/koshedutech/equities-trader/internal/memory"
	"github.com/koshedutech/equities-trader/internal/signal"
	"github.com/koshedutech/equities-trader/internal/sizing"
	"github.com/koshedutech/equities-trader/internal/smartmoney"
	"github.com/koshedutech/equities-trader/internal/tradingerrors"
)

// orderLimitMarkup nudges a limit order's price past the quote so a
// paper-trading fill doesn't stall on a crossed market.
const orderLimitMarkup = 0.001

// ExecuteTrade carries a validated Decision through the gate stack,
// sizing, and the broker, folding the outcome back into the agent's
// ledger, the learning memory, the exit engine, and the circuit
// breaker. It returns whether an order was placed and a human-readable
// reason when it was not.
func (ba *BaseAgent) ExecuteTrade(ctx context.Context, in TickInput, decision llm.Decision) (bool, string) {
	agentID := ba.Agent.ID
	symbol := strings.ToUpper(strings.TrimSpace(decision.Symbol))

	if decision.Decision == llm.ActionHold {
		ba.Agent.recordHistory(TradeRecord{
			Decision:   string(llm.ActionHold),
			Reasoning:  decision.Reasoning,
			Confidence: decision.Confidence,
			Timestamp:  time.Now(),
		})
		return false, "HOLD"
	}

	if ba.deps.Whitelist != nil {
		check := ba.deps.Whitelist.Check(symbol, ba.deps.AllowSymbolSubstitution)
		if !check.Allowed {
			if check.Suggested == "" {
				return false, check.Reason
			}
			symbol = check.Suggested
		}
	}

	heldQty := ba.Agent.PositionQty(symbol)
	if decision.Decision == llm.ActionSell && heldQty <= 0 {
		return false, fmt.Sprintf("no open position in %s to sell", symbol)
	}

	if decision.Decision == llm.ActionBuy && ba.deps.Earnings != nil {
		info, err := ba.deps.Earnings.Check(ctx, symbol)
		if err == nil && info.ShouldAvoidBuy {
			return false, info.Message
		}
	}

	if ba.deps.Breaker != nil {
		if ok, reason := ba.deps.Breaker.CanTrade(agentID, ba.Agent.Capital()); !ok {
			return false, reason
		}
	}

	analysis, price, found := findAnalysis(in.Movers, symbol)
	if !found {
		quote, err := ba.quoteFor(ctx, symbol)
		if err != nil {
			return false, fmt.Sprintf("no market data for %s", symbol)
		}
		price = quote
	}

	gateResult := gates.Evaluate(string(decision.Decision), analysis)
	if !gateResult.CanProceed {
		return false, strings.Join(gateResult.Messages, "; ")
	}

	snap := ba.smartMoneySnapshot(ctx, in, symbol)

	combined := signal.Combine(signal.Input{
		Decision:   string(decision.Decision),
		Confidence: decision.Confidence,
		VIX:        in.VIX,
		FearGreed:  in.FearGreed,
		SmartMoney: snap,
		Memory:     ba.memoryAggregates(ctx, symbol, decision.Confidence),
	})
	if !combined.ShouldProceed {
		return false, combined.Reasoning
	}

	quantity := ba.sizeOrder(ctx, decision, in.VIX, snap, combined, price, heldQty)
	if quantity <= 0 {
		return false, "sized quantity rounded to zero"
	}

	order, err := ba.submitOrder(ctx, decision.Decision, symbol, quantity, price)
	if err != nil {
		return false, fmt.Sprintf("broker rejected order: %v", err)
	}

	fee := ba.deps.FeePerTrade
	realizedPnL := ba.Agent.applyFill(string(decision.Decision), symbol, order.FilledQty, order.FilledPrice, fee)

	ba.persistFill(ctx, decision, symbol, order, fee, realizedPnL, snap, nil)

	if ba.deps.Breaker != nil && decision.Decision == llm.ActionSell {
		ba.deps.Breaker.RecordTradeResult(agentID, realizedPnL, ba.Agent.Capital())
	}

	ba.Agent.recordHistory(TradeRecord{
		Decision:   string(decision.Decision),
		Symbol:     symbol,
		Quantity:   order.FilledQty,
		Price:      order.FilledPrice,
		Reasoning:  decision.Reasoning,
		Confidence: decision.Confidence,
		Timestamp:  time.Now(),
		Executed:   true,
		OrderID:    order.ID,
		PnL:        realizedPnL,
	})

	return true, order.ID
}

// quoteFor falls back to the broker's live quote when a symbol was not
// among the tick's pre-analyzed movers (e.g. a SELL of a held position
// the mover scan didn't surface).
func (ba *BaseAgent) quoteFor(ctx context.Context, symbol string) (float64, error) {
	if ba.deps.Broker == nil {
		return 0, tradingerrors.Wrap(tradingerrors.ErrExternalUnavailable, "no broker configured")
	}
	quote, err := ba.deps.Broker.GetLatestQuote(ctx, symbol)
	if err != nil {
		return 0, err
	}
	return (quote.BidPrice + quote.AskPrice) / 2, nil
}

// smartMoneySnapshot prefers the tick's pre-fetched snapshot and falls
// back to a direct aggregator call for a symbol the tick didn't cover.
func (ba *BaseAgent) smartMoneySnapshot(ctx context.Context, in TickInput, symbol string) *smartmoney.Snapshot {
	if snap, ok := in.SmartMoney[symbol]; ok {
		return &snap
	}
	if ba.deps.SmartMoney == nil {
		return nil
	}
	snap, err := ba.deps.SmartMoney.Snapshot(ctx, symbol)
	if err != nil {
		return nil
	}
	return &snap
}

// memoryAggregates assembles the combiner's view of this agent's track
// record on symbol and at confidence's bucket.
func (ba *BaseAgent) memoryAggregates(ctx context.Context, symbol string, confidence float64) *signal.MemoryAggregates {
	agg := &signal.MemoryAggregates{}
	if ba.deps.Memory == nil {
		return agg
	}

	if symCtx, err := ba.deps.Memory.GetSymbolSpecificContext(ctx, symbol); err == nil && symCtx != nil {
		wins, total := 0, 0
		for _, t := range symCtx.RecentTrades {
			if t.ClosedAt == nil {
				continue
			}
			total++
			if t.Success == database.SuccessTrue {
				wins++
			}
		}
		if total > 0 {
			agg.SymbolWinRate = float64(wins) / float64(total)
			agg.HasSymbolHistory = true
		}
	}

	if groups, err := ba.deps.Memory.GetAgentPerformanceByCriteria(ctx, ba.Agent.ID, memory.CriterionConfidenceBucket); err == nil {
		if winRate, ok := confidenceBucketWinRate(groups, confidence); ok {
			agg.ConfidenceBucketWinRate = winRate
			agg.HasConfidenceBucket = true
		}
	}

	if pre, err := ba.deps.Memory.GetPreDecisionContext(ctx, ba.Agent.ID, ""); err == nil {
		agg.RecentNegativeLessons = len(pre.RecentLosses)
	}

	return agg
}

// sizeOrder turns the combined signal and Kelly sizing output into a
// concrete share quantity. A BUY is the Kelly dollar amount times the
// combiner and breaker multipliers, divided by price and rounded down;
// it is not checked against available capital. A SELL is the decision's
// quantity (rounded down) when it is below the held quantity, else the
// full holding.
func (ba *BaseAgent) sizeOrder(ctx context.Context, decision llm.Decision, vix float64, snap *smartmoney.Snapshot, combined signal.Result, price, heldQty float64) float64 {
	if decision.Decision == llm.ActionSell {
		if decision.Quantity > 0 && decision.Quantity < heldQty {
			return math.Floor(decision.Quantity)
		}
		return heldQty
	}

	var stats *database.AgentStatisticsRow
	if ba.deps.Repo != nil {
		stats, _ = ba.deps.Repo.GetAgentStatistics(ctx, ba.Agent.ID)
	}
	wins, losses := 0, 0
	if ba.deps.Breaker != nil {
		wins, losses = ba.deps.Breaker.Streaks(ba.Agent.ID)
	}

	ps := sizing.PositionSize(stats, sizing.Input{
		Capital:           ba.Agent.Capital(),
		Confidence:        combined.FinalConfidence,
		VIX:               vix,
		RiskLevel:         sizing.RiskLevel(decision.RiskLevel),
		SmartMoney:        smartMoneySignFor(snap),
		ConsecutiveWins:   wins,
		ConsecutiveLosses: losses,
	})

	dollarAmount := ps.RecommendedAmount * combined.SizingMultiplier
	if ba.deps.Breaker != nil {
		dollarAmount *= ba.deps.Breaker.GetSizingMultiplier(ba.Agent.ID)
	}
	if price <= 0 {
		return 0
	}
	return math.Floor(dollarAmount / price)
}

// smartMoneySignFor maps a smart-money snapshot's directional sentiment
// onto the Kelly sizer's coarser three-way sign.
func smartMoneySignFor(snap *smartmoney.Snapshot) sizing.SmartMoneySign {
	if snap == nil {
		return sizing.SmartMoneyNeutral
	}
	switch snap.Sentiment {
	case smartmoney.SentimentBullish, smartmoney.SentimentStrongBullish:
		return sizing.SmartMoneyBullish
	case smartmoney.SentimentBearish, smartmoney.SentimentStrongBearish:
		return sizing.SmartMoneyBearish
	default:
		return sizing.SmartMoneyNeutral
	}
}

// submitOrder converts the decision into a broker OrderRequest as a
// marked-up limit order, falling back to a market order when the
// broker rejects the limit.
func (ba *BaseAgent) submitOrder(ctx context.Context, action llm.Action, symbol string, quantity, price float64) (broker.Order, error) {
	side := broker.SideBuy
	limitPrice := price * (1 + orderLimitMarkup)
	if action == llm.ActionSell {
		side = broker.SideSell
		limitPrice = price * (1 - orderLimitMarkup)
	}

	order, err := ba.deps.Broker.SubmitOrder(ctx, broker.OrderRequest{
		Symbol:     symbol,
		Qty:        quantity,
		Side:       side,
		Type:       broker.OrderTypeLimit,
		TIF:        broker.TIFDay,
		LimitPrice: limitPrice,
	})
	if err == nil && order.Status != "REJECTED" {
		return order, nil
	}

	return ba.deps.Broker.SubmitOrder(ctx, broker.OrderRequest{
		Symbol: symbol,
		Qty:    quantity,
		Side:   side,
		Type:   broker.OrderTypeMarket,
		TIF:    broker.TIFDay,
	})
}

// persistFill writes the trade, position, capital delta, and learning
// memory for a filled order. Persistence failures are logged rather
// than propagated, since the in-memory ledger is already authoritative
// for this tick.
func (ba *BaseAgent) persistFill(ctx context.Context, decision llm.Decision, symbol string, order broker.Order, fee, realizedPnL float64, snap *smartmoney.Snapshot, lesson *string) {
	agentID := ba.Agent.ID

	if ba.deps.Repo != nil {
		orderID := order.ID
		win := realizedPnL > 0
		var winPtr *bool
		if decision.Decision == llm.ActionSell {
			winPtr = &win
		}

		trade := &database.TradeRow{
			ID:         orderID,
			AgentID:    agentID,
			Decision:   string(decision.Decision),
			Symbol:     symbol,
			Quantity:   decimal.NewFromFloat(order.FilledQty),
			Price:      decimal.NewFromFloat(order.FilledPrice),
			Reasoning:  decision.Reasoning,
			Confidence: decision.Confidence,
			Executed:   true,
			OrderID:    &orderID,
			PnL:        decimal.NewFromFloat(realizedPnL),
		}
		if err := ba.deps.Repo.InsertTrade(ctx, trade); err != nil && ba.deps.Log != nil {
			ba.deps.Log.Warn("agent: insert trade failed", "agent", agentID, "error", err.Error())
		}

		qty, avgPrice := 0.0, 0.0
		if pos, ok := ba.Agent.Position(symbol); ok {
			qty, avgPrice = pos.Qty, pos.AvgEntryPrice
		}
		posRow := &database.PositionRow{
			AgentID:       agentID,
			Symbol:        symbol,
			Quantity:      decimal.NewFromFloat(qty),
			AvgEntryPrice: decimal.NewFromFloat(avgPrice),
		}
		if err := ba.deps.Repo.UpsertPosition(ctx, posRow); err != nil && ba.deps.Log != nil {
			ba.deps.Log.Warn("agent: upsert position failed", "agent", agentID, "error", err.Error())
		}

		capitalDelta := -(order.FilledQty*order.FilledPrice + fee)
		if decision.Decision == llm.ActionSell {
			capitalDelta = order.FilledQty*order.FilledPrice - fee
		}
		if err := ba.deps.Repo.UpdateAgentCapital(ctx, agentID, decimal.NewFromFloat(capitalDelta), decimal.NewFromFloat(fee), winPtr); err != nil && ba.deps.Log != nil {
			ba.deps.Log.Warn("agent: update capital failed", "agent", agentID, "error", err.Error())
		}
	}

	if ba.deps.Orders != nil {
		switch decision.Decision {
		case llm.ActionBuy:
			ba.deps.Orders.RecordEntry(agentID, symbol, order.ID, order.FilledPrice, order.FilledQty)
		case llm.ActionSell:
			ba.deps.Orders.RecordExit(agentID, symbol, order.ID, order.FilledPrice, order.FilledQty, realizedPnL, decision.Reasoning)
		}
	}

	if ba.deps.Memory == nil {
		return
	}

	market := memory.MarketContext{VIXLevel: 0}
	smCtx := memory.SmartMoneyContext{}
	if snap != nil {
		market.VIXLevel = snap.VIX
		market.Sentiment = string(snap.Sentiment)
		smCtx.DarkPoolRatio = snap.DarkPool.Estimated
		smCtx.OptionsSentiment = string(snap.Options.Sentiment)
		smCtx.InsiderActivity = string(snap.Insider.NetSentiment)
	}

	switch decision.Decision {
	case llm.ActionBuy:
		if err := ba.deps.Memory.CreateTradeMemory(ctx, agentID, order.ID, symbol, string(decision.Decision),
			decimal.NewFromFloat(order.FilledPrice), decimal.NewFromFloat(order.FilledQty), decision.Reasoning, decision.Confidence, market, smCtx); err != nil && ba.deps.Log != nil {
			ba.deps.Log.Warn("agent: create trade memory failed", "agent", agentID, "error", err.Error())
		}
		if ba.deps.Exits != nil {
			level := exit.CreateExitLevels(agentID, symbol, order.FilledPrice, order.FilledQty, decision.Confidence, market.VIXLevel, exit.RiskLevel(decision.RiskLevel), sentimentFor(snap))
			ba.deps.Exits.Register(level)
		}

	case llm.ActionSell:
		pnl := decimal.NewFromFloat(realizedPnL)
		var lesson *string
		if _, err := ba.deps.Memory.CloseTradeMemory(ctx, agentID, symbol, string(llm.ActionBuy), decimal.NewFromFloat(order.FilledPrice), &pnl, lesson, 0, 0); err != nil && ba.deps.Log != nil {
			ba.deps.Log.Warn("agent: close trade memory failed", "agent", agentID, "error", err.Error())
		}
		if ba.Agent.PositionQty(symbol) <= 0 && ba.deps.Exits != nil {
			ba.deps.Exits.Remove(agentID, symbol)
		}
	}
}

// sentimentFor maps a smart-money snapshot onto the exit engine's
// coarser sentiment input, defaulting to neutral when no snapshot was
// available for this symbol.
func sentimentFor(snap *smartmoney.Snapshot) smartmoney.Sentiment {
	if snap == nil {
		return smartmoney.SentimentNeutral
	}
	return snap.Sentiment
}
