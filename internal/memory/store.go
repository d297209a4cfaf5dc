// Package memory is the Learning Memory layer: it records trade
// outcomes, derives per-symbol/sector/confidence statistics from them,
// and formats that history into prompt-ready context for an agent's
// next decision.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/koshedutech/equities-trader/internal/database"
	"github.com/koshedutech/equities-trader/internal/symbols"
)

// historyLimit bounds how many closed memories a single aggregate query
// considers; recent history dominates agent behavior far more than the
// long tail, and an unbounded scan would grow without limit over time.
const historyLimit = 500

// MarketContext is the embedded market snapshot captured at trade-memory
// creation time.
type MarketContext struct {
	Sentiment   string
	VIXLevel    float64
	Trend       string
	RSI         float64
	VolumeRatio float64
}

// SmartMoneyContext is the embedded smart-money snapshot captured at
// trade-memory creation time.
type SmartMoneyContext struct {
	DarkPoolRatio    float64
	OptionsSentiment string
	InsiderActivity  string
}

// Store is the Learning Memory service, backed by the trade_memories,
// agent_statistics, and winning_patterns tables.
type Store struct {
	repo *database.Repository
}

// NewStore builds a Store over repo.
func NewStore(repo *database.Repository) *Store {
	return &Store{repo: repo}
}

// CreateTradeMemory records a new trade memory with success=unknown,
// resolving the symbol's sector via the static whitelist mapping.
func (s *Store) CreateTradeMemory(ctx context.Context, agentID, tradeID, symbol, decision string, entryPrice, quantity decimal.Decimal, reasoning string, confidence float64, market MarketContext, smartMoney SmartMoneyContext) error {
	row := &database.TradeMemoryRow{
		ID:               fmt.Sprintf("%s-%d", tradeID, time.Now().UnixNano()),
		AgentID:          agentID,
		TradeID:          tradeID,
		Symbol:           symbol,
		Sector:           symbols.SectorOf(symbol),
		Decision:         decision,
		EntryPrice:       entryPrice,
		Quantity:         quantity,
		Reasoning:        reasoning,
		Confidence:       confidence,
		Success:          database.SuccessUnknown,
		MarketSentiment:  market.Sentiment,
		VIXLevel:         market.VIXLevel,
		MarketTrend:      market.Trend,
		RSIValue:         market.RSI,
		VolumeRatio:      market.VolumeRatio,
		DarkPoolRatio:    smartMoney.DarkPoolRatio,
		OptionsSentiment: smartMoney.OptionsSentiment,
		InsiderActivity:  smartMoney.InsiderActivity,
	}
	return s.repo.CreateTradeMemory(ctx, row)
}

// CloseResult is what CloseTradeMemory reports back to its caller, so
// the orchestrator can log the realized outcome and feed the winning
// pattern (if any) into the pattern index.
type CloseResult struct {
	PnL              decimal.Decimal
	PnLPercent       float64
	Success          bool
	HoldingHours     float64
	WinningPattern   *database.WinningPatternRow // nil unless this closed as a qualifying win
}

// CloseTradeMemory closes the most recent open memory for (agentID,
// symbol) — matching by symbol rather than trade ID, since an exiting
// SELL only knows the symbol it's exiting, not the ID of the trade that
// opened the position. If no open memory exists the exit still happened
// (capital and positions already moved) but no memory is created or
// updated; this returns (nil, nil) rather than an error in that case.
func (s *Store) CloseTradeMemory(ctx context.Context, agentID, symbol, entryDecision string, exitPrice decimal.Decimal, pnl *decimal.Decimal, lesson *string, currentRSI, currentVolumeRatio float64) (*CloseResult, error) {
	open, err := s.repo.GetOpenTradeMemoryBySymbol(ctx, agentID, symbol)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("memory: find open memory for %s/%s: %w", agentID, symbol, err)
	}

	var realizedPnL decimal.Decimal
	if pnl != nil {
		realizedPnL = *pnl
	} else {
		realizedPnL = computePnL(open.Decision, open.EntryPrice, exitPrice, open.Quantity)
	}

	notional := open.EntryPrice.Mul(open.Quantity)
	pnlPercent := 0.0
	if !notional.IsZero() {
		pnlPercentDecimal := realizedPnL.Div(notional)
		pnlPercent, _ = pnlPercentDecimal.Float64()
	}

	success := realizedPnL.IsPositive()
	successState := database.SuccessFalse
	if success {
		successState = database.SuccessTrue
	}

	holdingHours := time.Since(open.CreatedAt).Hours()

	if err := s.repo.CloseTradeMemory(ctx, open.ID, exitPrice, realizedPnL, pnlPercent, successState, holdingHours, lesson); err != nil {
		return nil, fmt.Errorf("memory: close memory %s: %w", open.ID, err)
	}

	if err := s.updateAgentStatistics(ctx, agentID); err != nil {
		return nil, fmt.Errorf("memory: update statistics for %s: %w", agentID, err)
	}

	result := &CloseResult{
		PnL:          realizedPnL,
		PnLPercent:   pnlPercent,
		Success:      success,
		HoldingHours: holdingHours,
	}

	if success && pnlPercent > 0.5 {
		now := time.Now()
		pattern := &database.WinningPatternRow{
			ID:              fmt.Sprintf("%s-pattern-%d", open.ID, now.UnixNano()),
			AgentID:         agentID,
			Symbol:          open.Symbol,
			Sector:          open.Sector,
			EntryHour:       open.CreatedAt.Hour(),
			EntryMinute:     open.CreatedAt.Minute(),
			DayOfWeek:       int(open.CreatedAt.Weekday()),
			RSIAtEntry:      open.RSIValue,
			VolumeRatio:     open.VolumeRatio,
			Trend:           open.MarketTrend,
			VIXLevel:        open.VIXLevel,
			MarketSentiment: open.MarketSentiment,
			PatternType:     detectPatternType(open.Decision, open.RSIValue, open.VolumeRatio, pnlPercent),
			PnLPercent:      pnlPercent,
		}
		if err := s.repo.InsertWinningPattern(ctx, pattern); err != nil {
			return nil, fmt.Errorf("memory: insert winning pattern: %w", err)
		}
		result.WinningPattern = pattern
	}

	return result, nil
}

func computePnL(decision string, entry, exit, quantity decimal.Decimal) decimal.Decimal {
	if decision == database.DecisionSell {
		return entry.Sub(exit).Mul(quantity)
	}
	return exit.Sub(entry).Mul(quantity)
}

// detectPatternType classifies a winning trade's setup into one of the
// named pattern types, using the same entry decision, RSI, and volume
// context the trade was opened with.
func detectPatternType(decision string, rsi, volumeRatio, pnlPercent float64) string {
	switch {
	case decision == database.DecisionBuy && rsi < 35:
		return "dip_buy"
	case decision == database.DecisionBuy && volumeRatio > 1.5 && pnlPercent > 2:
		return "breakout"
	case decision == database.DecisionBuy && rsi >= 50 && rsi <= 65:
		return "momentum"
	case decision == database.DecisionBuy:
		return "trend_following"
	case decision == database.DecisionSell && rsi > 65:
		return "overbought_sell"
	case decision == database.DecisionSell && volumeRatio > 1.5:
		return "distribution"
	default:
		return "profit_taking"
	}
}

// GetSimilarTrades returns closed memories for a symbol, newest first.
func (s *Store) GetSimilarTrades(ctx context.Context, symbol string, limit int) ([]*database.TradeMemoryRow, error) {
	return s.repo.GetSimilarTrades(ctx, symbol, limit)
}

// PerformanceCriterion selects which dimension GetAgentPerformanceByCriteria
// groups by.
type PerformanceCriterion string

const (
	CriterionSector           PerformanceCriterion = "sector"
	CriterionConfidenceBucket PerformanceCriterion = "confidence_bucket"
	CriterionMarketSentiment  PerformanceCriterion = "market_sentiment"
	CriterionVIXLevel         PerformanceCriterion = "vix_level"
)

// GroupStats is the aggregate outcome for one bucket of a criterion.
type GroupStats struct {
	Key      string
	Total    int
	Wins     int
	Losses   int
	WinRate  float64
	AvgPnL   float64
	TotalPnL float64
}

// GetAgentPerformanceByCriteria groups an agent's closed trade memories
// by criterion and returns per-bucket win/loss aggregates.
func (s *Store) GetAgentPerformanceByCriteria(ctx context.Context, agentID string, criterion PerformanceCriterion) ([]GroupStats, error) {
	memories, err := s.repo.GetAgentPerformanceByCriteria(ctx, agentID, "", historyLimit)
	if err != nil {
		return nil, fmt.Errorf("memory: load performance history for %s: %w", agentID, err)
	}

	groups := make(map[string]*GroupStats)
	for _, m := range memories {
		if m.Success == database.SuccessUnknown || m.PnL == nil {
			continue
		}

		key := bucketKey(criterion, m)
		g, ok := groups[key]
		if !ok {
			g = &GroupStats{Key: key}
			groups[key] = g
		}

		pnl, _ := m.PnL.Float64()
		g.Total++
		g.TotalPnL += pnl
		if m.Success == database.SuccessTrue {
			g.Wins++
		} else {
			g.Losses++
		}
	}

	out := make([]GroupStats, 0, len(groups))
	for _, g := range groups {
		if g.Total > 0 {
			g.WinRate = float64(g.Wins) / float64(g.Total) * 100
			g.AvgPnL = g.TotalPnL / float64(g.Total)
		}
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func bucketKey(criterion PerformanceCriterion, m *database.TradeMemoryRow) string {
	switch criterion {
	case CriterionSector:
		return m.Sector
	case CriterionMarketSentiment:
		return m.MarketSentiment
	case CriterionVIXLevel:
		return vixBucket(m.VIXLevel)
	case CriterionConfidenceBucket:
		return confidenceBucket(m.Confidence)
	default:
		return "unknown"
	}
}

func confidenceBucket(confidence float64) string {
	switch {
	case confidence < 60:
		return "50-60"
	case confidence < 70:
		return "60-70"
	case confidence < 80:
		return "70-80"
	case confidence < 90:
		return "80-90"
	default:
		return "90-100"
	}
}

func vixBucket(vix float64) string {
	switch {
	case vix < 15:
		return "low"
	case vix < 25:
		return "normal"
	case vix < 35:
		return "elevated"
	default:
		return "extreme"
	}
}

// FormatMemoryContextForAgent produces a prompt-ready text block: up to
// three symbol-specific lessons, performance by confidence bucket,
// performance on the current sector, and recent trades on this symbol.
// Agent-wide (global) statistics are not included. Returns "" when there
// is no history at all.
func (s *Store) FormatMemoryContextForAgent(ctx context.Context, agentID, symbol, sector, sentiment string) (string, error) {
	similar, err := s.repo.GetSimilarTrades(ctx, symbol, 5)
	if err != nil {
		return "", fmt.Errorf("memory: format context, similar trades: %w", err)
	}
	bySector, err := s.GetAgentPerformanceByCriteria(ctx, agentID, CriterionSector)
	if err != nil {
		return "", err
	}
	byConfidence, err := s.GetAgentPerformanceByCriteria(ctx, agentID, CriterionConfidenceBucket)
	if err != nil {
		return "", err
	}

	if len(similar) == 0 && len(bySector) == 0 && len(byConfidence) == 0 {
		return "", nil
	}

	var b strings.Builder

	lessons := lessonsFrom(similar, 3)
	if len(lessons) > 0 {
		b.WriteString("Lessons from past trades on " + symbol + ":\n")
		for _, l := range lessons {
			b.WriteString("- " + l + "\n")
		}
	}

	if len(byConfidence) > 0 {
		b.WriteString("Performance by confidence level:\n")
		for _, g := range byConfidence {
			fmt.Fprintf(&b, "- %s confidence: %d trades, %.0f%% win rate, avg P&L %.2f\n", g.Key, g.Total, g.WinRate, g.AvgPnL)
		}
	}

	if g := findGroup(bySector, sector); g != nil {
		fmt.Fprintf(&b, "Performance in %s sector: %d trades, %.0f%% win rate, total P&L %.2f\n", sector, g.Total, g.WinRate, g.TotalPnL)
	}

	if len(similar) > 0 {
		b.WriteString(fmt.Sprintf("Recent trades on %s:\n", symbol))
		for i, m := range similar {
			if i >= 3 {
				break
			}
			pnlPercent := 0.0
			if m.PnLPercent != nil {
				pnlPercent = *m.PnLPercent
			}
			fmt.Fprintf(&b, "- %s at confidence %.0f, result %.2f%%\n", m.Decision, m.Confidence, pnlPercent)
		}
	}

	return strings.TrimSpace(b.String()), nil
}

func lessonsFrom(memories []*database.TradeMemoryRow, limit int) []string {
	var lessons []string
	for _, m := range memories {
		if m.LessonLearned != nil && *m.LessonLearned != "" {
			lessons = append(lessons, *m.LessonLearned)
		}
		if len(lessons) >= limit {
			break
		}
	}
	return lessons
}

func findGroup(groups []GroupStats, key string) *GroupStats {
	for i := range groups {
		if groups[i].Key == key {
			return &groups[i]
		}
	}
	return nil
}

// PreDecisionContext is the broader context surfaced before a symbol has
// been chosen: stats by confidence and sector, recent losing trades
// with their lessons, and a global win-rate summary.
type PreDecisionContext struct {
	ByConfidence  []GroupStats
	BySector      []GroupStats
	RecentLosses  []*database.TradeMemoryRow
	GlobalWinRate float64
	GlobalTrades  int
}

// GetPreDecisionContext assembles the context an agent consults before
// choosing a symbol.
func (s *Store) GetPreDecisionContext(ctx context.Context, agentID, sentiment string) (*PreDecisionContext, error) {
	byConfidence, err := s.GetAgentPerformanceByCriteria(ctx, agentID, CriterionConfidenceBucket)
	if err != nil {
		return nil, err
	}
	bySector, err := s.GetAgentPerformanceByCriteria(ctx, agentID, CriterionSector)
	if err != nil {
		return nil, err
	}

	memories, err := s.repo.GetAgentPerformanceByCriteria(ctx, agentID, "", historyLimit)
	if err != nil {
		return nil, fmt.Errorf("memory: load pre-decision context for %s: %w", agentID, err)
	}

	var losses []*database.TradeMemoryRow
	totalWins, totalClosed := 0, 0
	for _, m := range memories {
		if m.Success == database.SuccessUnknown {
			continue
		}
		totalClosed++
		if m.Success == database.SuccessTrue {
			totalWins++
		} else if len(losses) < 3 {
			losses = append(losses, m)
		}
	}

	winRate := 0.0
	if totalClosed > 0 {
		winRate = float64(totalWins) / float64(totalClosed) * 100
	}

	return &PreDecisionContext{
		ByConfidence:  byConfidence,
		BySector:      bySector,
		RecentLosses:  losses,
		GlobalWinRate: winRate,
		GlobalTrades:  totalClosed,
	}, nil
}

// SymbolContext is the history surfaced for a symbol already chosen.
type SymbolContext struct {
	RecentTrades []*database.TradeMemoryRow
}

// GetSymbolSpecificContext surfaces historical performance on symbol
// after it has already been chosen. The winning-pattern recommendation
// score is attached by the caller (internal/memory's sibling patterns
// index, via GetPatternRecommendation) since it needs the pattern
// index's in-memory state, not the repository.
func (s *Store) GetSymbolSpecificContext(ctx context.Context, symbol string) (*SymbolContext, error) {
	trades, err := s.repo.GetSimilarTrades(ctx, symbol, 10)
	if err != nil {
		return nil, fmt.Errorf("memory: symbol context for %s: %w", symbol, err)
	}
	return &SymbolContext{RecentTrades: trades}, nil
}

// updateAgentStatistics recomputes and upserts an agent's aggregate
// statistics (win rate, win/loss ratio, avg win/loss pct, Kelly
// fraction) from its full closed-trade history.
func (s *Store) updateAgentStatistics(ctx context.Context, agentID string) error {
	memories, err := s.repo.GetAgentPerformanceByCriteria(ctx, agentID, "", historyLimit)
	if err != nil {
		return err
	}

	var (
		total, wins, losses int
		sumWinPct, sumLossPct float64
	)
	for _, m := range memories {
		if m.Success == database.SuccessUnknown || m.PnLPercent == nil {
			continue
		}
		total++
		if m.Success == database.SuccessTrue {
			wins++
			sumWinPct += *m.PnLPercent
		} else {
			losses++
			sumLossPct += *m.PnLPercent
		}
	}

	if total == 0 {
		return nil
	}

	winRate := float64(wins) / float64(total) * 100
	avgWinPct := 0.0
	if wins > 0 {
		avgWinPct = sumWinPct / float64(wins)
	}
	avgLossPct := 0.0
	if losses > 0 {
		avgLossPct = sumLossPct / float64(losses)
	}
	winLossRatio := 0.0
	if avgLossPct != 0 {
		winLossRatio = -avgWinPct / avgLossPct
	}

	kelly := kellyFraction(float64(wins)/float64(total), avgWinPct, avgLossPct)

	stats := &database.AgentStatisticsRow{
		AgentID:       agentID,
		TotalTrades:   total,
		WinRate:       winRate,
		WinLossRatio:  winLossRatio,
		AvgWinPct:     avgWinPct,
		AvgLossPct:    avgLossPct,
		KellyFraction: kelly,
	}
	return s.repo.UpsertAgentStatistics(ctx, stats)
}

// kellyFraction computes the classic Kelly criterion f* = p - (1-p)/b,
// where b is the win/loss payoff ratio, clamped to [0, 1]. The sizing
// engine (internal/sizing) applies its own fractional-Kelly scaling on
// top of this raw value.
func kellyFraction(winProb, avgWinPct, avgLossPct float64) float64 {
	if avgLossPct == 0 || avgWinPct == 0 {
		return 0
	}
	payoffRatio := avgWinPct / -avgLossPct
	if payoffRatio <= 0 {
		return 0
	}

	f := winProb - (1-winProb)/payoffRatio
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
