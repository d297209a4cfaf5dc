// Package orchestrator runs the periodic trading cycle: a market-hours
// gate, an exit-engine sweep, bounded-concurrency per-agent dispatch,
// the Consortium meta-agent, and persistence/broadcast of the round's
// results. It owns the only goroutine that mutates agent state outside
// of a tick.
package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/koshedutech/equities-trader/internal/agent"
	"github.com/koshedutech/equities-trader/internal/broker"
	"github.com/koshedutech/equities-trader/internal/circuit"
	"github.com/koshedutech/equities-trader/internal/database"
	"github.com/koshedutech/equities-trader/internal/events"
	"github.com/koshedutech/equities-trader/internal/exit"
	"github.com/koshedutech/equities-trader/internal/indicators"
	"github.com/koshedutech/equities-trader/internal/llm"
	"github.com/koshedutech/equities-trader/internal/logging"
	"github.com/koshedutech/equities-trader/internal/marketclock"
	"github.com/koshedutech/equities-trader/internal/smartmoney"
	"github.com/koshedutech/equities-trader/internal/symbols"
	"github.com/koshedutech/equities-trader/internal/tradingerrors"
)

// maxConcurrentAgents bounds how many solo agents analyze and execute
// at once within a single tick.
const maxConcurrentAgents = 6

// topMoversLimit is the number of candidate symbols offered to agents
// per tick, after the whitelist filter.
const topMoversLimit = 10

// performanceSnapshotInterval is how often the independent capital/
// performance snapshot ticker fires, regardless of the trading cycle.
const performanceSnapshotInterval = 60 * time.Second

// Member is one roster entry the orchestrator dispatches to every tick.
type Member struct {
	Agent *agent.BaseAgent
}

// Dependencies bundles every shared collaborator the orchestrator
// fans a tick out across. Agent-owned dependencies (broker, LLM,
// memory, etc.) live on each agent.BaseAgent already; these are the
// ones the orchestrator itself drives directly.
type Dependencies struct {
	Clock      *marketclock.Calendar
	Exits      *exit.Engine
	SmartMoney *smartmoney.Aggregator
	Whitelist  *symbols.Whitelist
	Breaker    *circuit.Breaker
	Repo       *database.Repository
	Events     *events.EventBus
	Log        *logging.Logger

	// Broker is used for account/positions/movers/market-data reads
	// shared across the tick; each agent still submits its own orders
	// through its own Dependencies.Broker.
	Broker broker.Broker

	TickInterval time.Duration
}

// AgentResult captures one member's outcome within a tick, keyed by
// agent ID for the broadcast payload.
type AgentResult struct {
	AgentID    string
	AgentName  string
	Decision   llm.Decision
	Executed   bool
	Reason     string
	Error      string
	Capital    float64
	Positions  int
}

// Orchestrator runs the periodic tick and the independent performance
// snapshot ticker. At most one tick is ever in flight; a tick fired
// while the previous is still running is dropped.
type Orchestrator struct {
	deps       Dependencies
	members    []Member
	consortium *agent.Consortium

	ticking  int32 // atomic: 1 while a tick is in flight
	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup

	tradingEnabled int32 // atomic: 1 = enabled (default)
}

// New builds an Orchestrator over the given solo members and meta-agent.
func New(deps Dependencies, members []Member, consortium *agent.Consortium) *Orchestrator {
	return &Orchestrator{
		deps:           deps,
		members:        members,
		consortium:     consortium,
		stopCh:         make(chan struct{}),
		tradingEnabled: 1,
	}
}

// SetTradingEnabled toggles whether Tick runs the agent dispatch at
// all; the exit sweep and market-hours check still run regardless,
// since open positions are protected independent of the toggle.
func (o *Orchestrator) SetTradingEnabled(enabled bool) {
	if enabled {
		atomic.StoreInt32(&o.tradingEnabled, 1)
		o.deps.Events.PublishTradingEnabled()
	} else {
		atomic.StoreInt32(&o.tradingEnabled, 0)
		o.deps.Events.PublishTradingDisabled()
	}
}

// TradingEnabled reports the current toggle state.
func (o *Orchestrator) TradingEnabled() bool {
	return atomic.LoadInt32(&o.tradingEnabled) == 1
}

// Run starts the tick scheduler and the independent performance
// snapshot ticker, blocking until ctx is cancelled or Stop is called.
func (o *Orchestrator) Run(ctx context.Context) {
	interval := o.deps.TickInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	tickTicker := time.NewTicker(interval)
	defer tickTicker.Stop()
	snapTicker := time.NewTicker(performanceSnapshotInterval)
	defer snapTicker.Stop()

	o.wg.Add(1)
	defer o.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-o.stopCh:
			return
		case <-tickTicker.C:
			o.fireTick(ctx)
		case <-snapTicker.C:
			o.snapshotPerformance(ctx)
		}
	}
}

// Stop halts the scheduler loop. It does not cancel an in-flight tick.
func (o *Orchestrator) Stop() {
	o.stopOnce.Do(func() { close(o.stopCh) })
	o.wg.Wait()
}

// ForceTick runs a single tick immediately, subject to the same
// single-flight guard as the scheduled ticks, and reports whether it
// actually ran (false if a tick was already in flight).
func (o *Orchestrator) ForceTick(ctx context.Context) bool {
	return o.fireTick(ctx)
}

// fireTick enforces the at-most-one-tick-in-flight rule and runs Tick
// in the background, reporting whether it started.
func (o *Orchestrator) fireTick(ctx context.Context) bool {
	if !atomic.CompareAndSwapInt32(&o.ticking, 0, 1) {
		if o.deps.Log != nil {
			o.deps.Log.Warn("orchestrator: dropping tick, previous tick still running")
		}
		return false
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer atomic.StoreInt32(&o.ticking, 0)
		o.Tick(ctx)
	}()
	return true
}

// Tick runs one full trading cycle synchronously. Callers normally
// reach it only through fireTick/ForceTick, which enforce the
// single-flight guard; it is exported for tests that need a direct,
// synchronous call.
func (o *Orchestrator) Tick(ctx context.Context) {
	log := logging.TickContext(fmt.Sprintf("%d", time.Now().UnixNano()), len(o.members))
	start := time.Now()

	reading := o.deps.Clock.Read(time.Now())
	if reading.Blocked() {
		o.deps.Events.PublishMarketHoursBlocked(string(reading.Window), reading.Reason)
		log.Info("orchestrator: tick skipped, market hours blocked", "window", reading.Window, "reason", reading.Reason)
		return
	}

	o.sweepExits(ctx, log)

	if !o.TradingEnabled() {
		log.Info("orchestrator: trading disabled, exit sweep only")
		return
	}

	in, err := o.buildTickInput(ctx)
	if err != nil {
		o.deps.Events.PublishError("orchestrator", "failed to assemble tick input", err)
		log.Error("orchestrator: failed to assemble tick input", "error", err.Error())
		return
	}

	results := o.dispatchMembers(ctx, in)
	consortiumResult := o.dispatchConsortium(ctx, in)
	if consortiumResult != nil {
		results = append(results, *consortiumResult)
	}

	o.broadcastCycle(results)
	log.Info("orchestrator: tick complete", "duration_ms", time.Since(start).Milliseconds(), "agents", len(results))
}

// sweepExits runs the exit engine's full sweep, executing any forced
// SELL immediately through the owning agent's broker and emitting an
// auto_exit event per closed position.
func (o *Orchestrator) sweepExits(ctx context.Context, log *logging.Logger) {
	priceSource := func(symbol string) (float64, bool) {
		quote, err := o.deps.Broker.GetLatestQuote(ctx, symbol)
		if err != nil {
			return 0, false
		}
		return (quote.BidPrice + quote.AskPrice) / 2, true
	}
	overallSignal := func(symbol string) smartmoney.Sentiment {
		snap, err := o.deps.SmartMoney.Snapshot(ctx, symbol)
		if err != nil {
			return smartmoney.SentimentNeutral
		}
		return snap.Sentiment
	}

	signals := o.deps.Exits.Sweep(priceSource, overallSignal)
	for _, sig := range signals {
		member := o.memberByID(sig.AgentID)
		if member == nil {
			continue
		}

		qty := member.Agent.Agent.PositionQty(sig.Symbol)
		if qty <= 0 {
			o.deps.Exits.Remove(sig.AgentID, sig.Symbol)
			continue
		}

		decision := llm.Decision{
			Decision:  llm.ActionSell,
			Symbol:    sig.Symbol,
			Quantity:  qty,
			Reasoning: string(sig.Reason),
		}
		executed, reason := member.Agent.ExecuteTrade(ctx, agent.TickInput{}, decision)
		if !executed {
			log.Warn("orchestrator: forced exit failed to execute", "agent", sig.AgentID, "symbol", sig.Symbol, "reason", reason)
			continue
		}

		o.deps.Events.PublishAutoExit(sig.AgentID, sig.Symbol, string(sig.Reason), qty, sig.Price)
	}
}

func (o *Orchestrator) memberByID(agentID string) *Member {
	for i := range o.members {
		if o.members[i].Agent.Agent.ID == agentID {
			return &o.members[i]
		}
	}
	if o.consortium != nil && o.consortium.Self.Agent.ID == agentID {
		return &Member{Agent: o.consortium.Self}
	}
	return nil
}

// buildTickInput fetches the shared global smart-money read and the
// per-symbol technical analysis for up to topMoversLimit whitelisted
// top movers, concurrently.
func (o *Orchestrator) buildTickInput(ctx context.Context) (agent.TickInput, error) {
	movers, err := o.deps.Broker.GetMovers(ctx, topMoversLimit*2)
	if err != nil {
		return agent.TickInput{}, fmt.Errorf("orchestrator: fetch movers: %w", err)
	}

	candidates := whitelistedCandidates(o.deps.Whitelist, movers, topMoversLimit)

	globalSnap, err := o.deps.SmartMoney.Snapshot(ctx, "SPY")
	if err != nil {
		return agent.TickInput{}, fmt.Errorf("orchestrator: global smart-money snapshot: %w", err)
	}

	group, gctx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(int64(maxConcurrentAgents))

	moverResults := make([]agent.MoverCandidate, len(candidates))
	snapResults := make(map[string]smartmoney.Snapshot, len(candidates))
	var snapMu sync.Mutex

	for i, symbol := range candidates {
		i, symbol := i, symbol
		group.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)

			bars, err := o.deps.Broker.GetMarketData(gctx, symbol, broker.Timeframe1Day, 60)
			if err != nil {
				return nil // a single symbol's data failure doesn't fail the tick
			}
			if len(bars) < indicators.MinimumBars {
				return nil
			}

			quote, err := o.deps.Broker.GetLatestQuote(gctx, symbol)
			if err != nil {
				return nil
			}

			analysis := indicators.Analyze(toIndicatorBars(bars))
			moverResults[i] = agent.MoverCandidate{Symbol: symbol, Price: (quote.BidPrice + quote.AskPrice) / 2, Analysis: analysis}

			snap, err := o.deps.SmartMoney.Snapshot(gctx, symbol)
			if err == nil {
				snapMu.Lock()
				snapResults[symbol] = snap
				snapMu.Unlock()
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return agent.TickInput{}, fmt.Errorf("orchestrator: technical analysis fan-out: %w", err)
	}

	movers2 := make([]agent.MoverCandidate, 0, len(moverResults))
	for _, m := range moverResults {
		if m.Symbol != "" {
			movers2 = append(movers2, m)
		}
	}
	sort.Slice(movers2, func(i, j int) bool { return movers2[i].Symbol < movers2[j].Symbol })

	return agent.TickInput{
		VIX:              globalSnap.VIX,
		FearGreed:        globalSnap.FearGreed,
		OverallSentiment: overallSentimentBand(globalSnap.VIX, globalSnap.FearGreed),
		Movers:           movers2,
		SmartMoney:       snapResults,
	}, nil
}

// overallSentimentBand classifies the shared market read per the
// orchestrator's own VIX/fear-greed thresholds, distinct from any
// single symbol's smart-money sentiment score.
func overallSentimentBand(vix, fearGreed float64) string {
	switch {
	case vix < 18 && fearGreed > 55:
		return "BULLISH"
	case vix > 25 || fearGreed < 40:
		return "BEARISH"
	default:
		return "NEUTRAL"
	}
}

// whitelistedCandidates dedupes and filters a Movers payload against
// the whitelist, capped at limit symbols.
func whitelistedCandidates(wl *symbols.Whitelist, movers broker.Movers, limit int) []string {
	seen := make(map[string]bool)
	out := make([]string, 0, limit)

	add := func(symbol string) {
		if len(out) >= limit || seen[symbol] {
			return
		}
		seen[symbol] = true
		if wl.Check(symbol, false).Allowed {
			out = append(out, symbol)
		}
	}

	for _, s := range movers.Gainers {
		add(s)
	}
	for _, s := range movers.Losers {
		add(s)
	}
	for _, s := range movers.HighVolume {
		add(s)
	}
	return out
}

func toIndicatorBars(bars []broker.Bar) []indicators.Bar {
	out := make([]indicators.Bar, len(bars))
	for i, b := range bars {
		out[i] = indicators.Bar{Open: b.Open, High: b.High, Low: b.Low, Close: b.Close, Volume: b.Volume}
	}
	return out
}

// dispatchMembers runs every solo agent's analyze/execute turn
// concurrently, bounded by maxConcurrentAgents, after a per-agent
// circuit breaker check.
func (o *Orchestrator) dispatchMembers(ctx context.Context, in agent.TickInput) []AgentResult {
	results := make([]AgentResult, len(o.members))
	sem := semaphore.NewWeighted(int64(maxConcurrentAgents))
	var wg sync.WaitGroup

	for i, m := range o.members {
		i, m := i, m
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := sem.Acquire(ctx, 1); err != nil {
				results[i] = AgentResult{AgentID: m.Agent.Agent.ID, AgentName: m.Agent.Agent.Name, Error: err.Error()}
				return
			}
			defer sem.Release(1)
			results[i] = o.runMember(ctx, m, in)
		}()
	}
	wg.Wait()
	return results
}

func (o *Orchestrator) runMember(ctx context.Context, m Member, in agent.TickInput) AgentResult {
	a := m.Agent.Agent
	result := AgentResult{AgentID: a.ID, AgentName: a.Name}

	canTrade, reason := o.deps.Breaker.CanTrade(a.ID, a.Capital())
	if !canTrade {
		result.Reason = reason
		result.Capital = a.Capital()
		return result
	}

	decision, err := m.Agent.AnalyzeMarket(ctx, in)
	if err != nil {
		result.Error = err.Error()
		result.Capital = a.Capital()
		if tradingerrors.Classify(err) == tradingerrors.KindExternalUnavailable && o.deps.Log != nil {
			o.deps.Log.Warn("orchestrator: agent analyze unavailable, skipping tick", "agent", a.Name, "error", err.Error())
		}
		return result
	}
	result.Decision = decision

	// ParseError/ValidationError already come back from AnalyzeMarket as
	// a HOLD decision rather than an error, so every decision (real or
	// synthesized HOLD) runs through ExecuteTrade the same way and gets
	// a TradeRecord.
	executed, reason := m.Agent.ExecuteTrade(ctx, in, decision)
	result.Executed = executed
	result.Reason = reason

	result.Capital = a.Capital()
	result.Positions = a.PositionCount()
	return result
}

// dispatchConsortium runs the meta-agent after every solo member has
// completed its own turn, per the documented ordering.
func (o *Orchestrator) dispatchConsortium(ctx context.Context, in agent.TickInput) *AgentResult {
	if o.consortium == nil {
		return nil
	}

	a := o.consortium.Self.Agent
	decision, executed, reason := o.consortium.Run(ctx, in)
	return &AgentResult{
		AgentID:   a.ID,
		AgentName: a.Name,
		Decision:  decision,
		Executed:  executed,
		Reason:    reason,
		Capital:   a.Capital(),
		Positions: a.PositionCount(),
	}
}

// broadcastCycle persists nothing itself (agents persist their own
// fills) but publishes the trading_cycle event carrying every member's
// decision and capital/position snapshot, keyed by agent ID.
func (o *Orchestrator) broadcastCycle(results []AgentResult) {
	decisions := make(map[string]interface{}, len(results))
	stats := make(map[string]interface{}, len(results))
	for _, r := range results {
		decisions[r.AgentID] = map[string]interface{}{
			"agent_name": r.AgentName,
			"decision":   r.Decision.Decision,
			"symbol":     r.Decision.Symbol,
			"confidence": r.Decision.Confidence,
			"reasoning":  r.Decision.Reasoning,
			"executed":   r.Executed,
			"reason":     r.Reason,
			"error":      r.Error,
		}
		stats[r.AgentID] = map[string]interface{}{
			"capital":   r.Capital,
			"positions": r.Positions,
		}
	}
	o.deps.Events.PublishTradingCycle(decisions, stats)
}

// snapshotPerformance records each agent's current capital/performance
// to the chart store every performanceSnapshotInterval, independent of
// the trading cycle's own cadence.
func (o *Orchestrator) snapshotPerformance(ctx context.Context) {
	if o.deps.Repo == nil {
		return
	}

	record := func(id string, a *agent.Agent) {
		stats := a.Snapshot()
		winRate := 0.0
		if stats.WinningTrades+stats.LosingTrades > 0 {
			winRate = float64(stats.WinningTrades) / float64(stats.WinningTrades+stats.LosingTrades) * 100
		}
		snap := &database.PerformanceSnapshotRow{
			AgentID:        id,
			CurrentCapital: decimal.NewFromFloat(a.Capital()),
			TotalPnL:       decimal.NewFromFloat(a.Capital() - stats.InitialCapital),
			WinRate:        winRate,
			TradeCount:     stats.TradeCount,
			SnapshotAt:     time.Now(),
		}
		if err := o.deps.Repo.InsertPerformanceSnapshot(ctx, snap); err != nil && o.deps.Log != nil {
			o.deps.Log.Warn("orchestrator: performance snapshot failed", "agent", id, "error", err.Error())
		}
	}

	for _, m := range o.members {
		record(m.Agent.Agent.ID, m.Agent.Agent)
	}
	if o.consortium != nil {
		record(o.consortium.Self.Agent.ID, o.consortium.Self.Agent)
	}
}

// LeaderboardEntry is one agent's ranked standing for the control
// surface's "list agents / leaderboard" method.
type LeaderboardEntry struct {
	AgentID        string  `json:"agent_id"`
	Name           string  `json:"name"`
	ModelHandle    string  `json:"model_handle"`
	Capital        float64 `json:"capital"`
	InitialCapital float64 `json:"initial_capital"`
	PerformancePct float64 `json:"performance_pct"`
	TradeCount     int     `json:"trade_count"`
	WinningTrades  int     `json:"winning_trades"`
	LosingTrades   int     `json:"losing_trades"`
	Positions      int     `json:"positions"`
	IsConsortium   bool    `json:"is_consortium"`
}

// Leaderboard returns every roster member (solo agents plus the
// Consortium) ranked by all-time performance, descending. It is the
// core's typed answer to the §6 control surface's "list agents /
// leaderboard" method; the thin HTTP adapter only serializes it.
func (o *Orchestrator) Leaderboard() []LeaderboardEntry {
	entries := make([]LeaderboardEntry, 0, len(o.members)+1)
	add := func(a *agent.Agent, isConsortium bool) {
		stats := a.Snapshot()
		entries = append(entries, LeaderboardEntry{
			AgentID:        a.ID,
			Name:           a.Name,
			ModelHandle:    a.ModelHandle,
			Capital:        a.Capital(),
			InitialCapital: stats.InitialCapital,
			PerformancePct: a.PerformancePct(),
			TradeCount:     stats.TradeCount,
			WinningTrades:  stats.WinningTrades,
			LosingTrades:   stats.LosingTrades,
			Positions:      a.PositionCount(),
			IsConsortium:   isConsortium,
		})
	}

	for _, m := range o.members {
		add(m.Agent.Agent, false)
	}
	if o.consortium != nil {
		add(o.consortium.Self.Agent, true)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].PerformancePct > entries[j].PerformancePct
	})
	return entries
}
