package database

import (
	"time"

	"github.com/shopspring/decimal"
)

// Decision enum values shared across TradeRecord, TradeMemory and Decision.
const (
	DecisionBuy  = "BUY"
	DecisionSell = "SELL"
	DecisionHold = "HOLD"
)

// SuccessState is the tri-state outcome of a TradeMemory.
type SuccessState string

const (
	SuccessUnknown SuccessState = "unknown"
	SuccessTrue    SuccessState = "true"
	SuccessFalse   SuccessState = "false"
)

// AgentRow is the persisted shape of an Agent.
type AgentRow struct {
	ID                  string          `json:"id"`
	Name                string          `json:"name"`
	ModelHandle         string          `json:"model_handle"`
	PersonalityText     string          `json:"personality_text"`
	InitialCapital      decimal.Decimal `json:"initial_capital"`
	CurrentCapital      decimal.Decimal `json:"current_capital"`
	TotalFees           decimal.Decimal `json:"total_fees"`
	TradeCount          int             `json:"trade_count"`
	WinningTrades       int             `json:"winning_trades"`
	LosingTrades        int             `json:"losing_trades"`
	LastAutocritique    *string         `json:"last_autocritique,omitempty"`
	AutocritiqueCounter int             `json:"autocritique_counter"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// PositionRow is the persisted shape of one agent's open position in a symbol.
type PositionRow struct {
	AgentID       string          `json:"agent_id"`
	Symbol        string          `json:"symbol"`
	Quantity      decimal.Decimal `json:"quantity"`
	AvgEntryPrice decimal.Decimal `json:"avg_entry_price"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// TradeRow is the persisted shape of a TradeRecord.
type TradeRow struct {
	ID         string          `json:"id"`
	AgentID    string          `json:"agent_id"`
	Decision   string          `json:"decision"`
	Symbol     string          `json:"symbol"`
	Quantity   decimal.Decimal `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	Reasoning  string          `json:"reasoning"`
	Confidence float64         `json:"confidence"`
	Executed   bool            `json:"executed"`
	OrderID    *string         `json:"order_id,omitempty"`
	PnL        decimal.Decimal `json:"pnl"`
	CreatedAt  time.Time       `json:"created_at"`
}

// PerformanceSnapshotRow is a point-in-time capital/performance snapshot.
type PerformanceSnapshotRow struct {
	ID             int64           `json:"id"`
	AgentID        string          `json:"agent_id"`
	CurrentCapital decimal.Decimal `json:"current_capital"`
	TotalPnL       decimal.Decimal `json:"total_pnl"`
	WinRate        float64         `json:"win_rate"`
	TradeCount     int             `json:"trade_count"`
	SnapshotAt     time.Time       `json:"snapshot_at"`
}

// AutocritiqueRow is one append-only autocritique monologue for an agent.
type AutocritiqueRow struct {
	ID        int64     `json:"id"`
	AgentID   string    `json:"agent_id"`
	Critique  string    `json:"critique"`
	CreatedAt time.Time `json:"created_at"`
}

// TradeMemoryRow is the persisted shape of a TradeMemory.
type TradeMemoryRow struct {
	ID                   string          `json:"id"`
	AgentID              string          `json:"agent_id"`
	TradeID              string          `json:"trade_id"`
	Symbol               string          `json:"symbol"`
	Sector               string          `json:"sector"`
	Decision             string          `json:"decision"`
	EntryPrice           decimal.Decimal `json:"entry_price"`
	Quantity             decimal.Decimal `json:"quantity"`
	Reasoning            string          `json:"reasoning"`
	Confidence           float64         `json:"confidence"`
	CreatedAt            time.Time       `json:"created_at"`
	ClosedAt             *time.Time      `json:"closed_at,omitempty"`
	ExitPrice            *decimal.Decimal `json:"exit_price,omitempty"`
	PnL                  *decimal.Decimal `json:"pnl,omitempty"`
	PnLPercent           *float64        `json:"pnl_percent,omitempty"`
	Success              SuccessState    `json:"success"`
	HoldingDurationHours *float64        `json:"holding_duration_hours,omitempty"`
	LessonLearned        *string         `json:"lesson_learned,omitempty"`
	MarketSentiment      string          `json:"market_sentiment"`
	VIXLevel             float64         `json:"vix_level"`
	MarketTrend          string          `json:"market_trend"`
	RSIValue             float64         `json:"rsi_value"`
	VolumeRatio          float64         `json:"volume_ratio"`
	DarkPoolRatio        float64         `json:"dark_pool_ratio"`
	OptionsSentiment     string          `json:"options_sentiment"`
	InsiderActivity      string          `json:"insider_activity"`
}

// AgentStatisticsRow is the persisted shape of AgentStatistics.
type AgentStatisticsRow struct {
	AgentID      string    `json:"agent_id"`
	TotalTrades  int       `json:"total_trades"`
	WinRate      float64   `json:"win_rate"`
	WinLossRatio float64   `json:"win_loss_ratio"`
	AvgWinPct    float64   `json:"avg_win_pct"`
	AvgLossPct   float64   `json:"avg_loss_pct"`
	KellyFraction float64  `json:"kelly_fraction"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// WinningPatternRow is the persisted shape of a WinningPattern.
type WinningPatternRow struct {
	ID              string    `json:"id"`
	AgentID         string    `json:"agent_id"`
	Symbol          string    `json:"symbol"`
	Sector          string    `json:"sector"`
	EntryHour       int       `json:"entry_hour"`
	EntryMinute     int       `json:"entry_minute"`
	DayOfWeek       int       `json:"day_of_week"`
	RSIAtEntry      float64   `json:"rsi_at_entry"`
	MACDSignal      string    `json:"macd_signal"`
	VolumeRatio     float64   `json:"volume_ratio"`
	Trend           string    `json:"trend"`
	PriceVsSMA20    float64   `json:"price_vs_sma20"`
	VIXLevel        float64   `json:"vix_level"`
	MarketSentiment string    `json:"market_sentiment"`
	Catalyst        string    `json:"catalyst"`
	PatternType     string    `json:"pattern_type"`
	PnLPercent      float64   `json:"pnl_percent"`
	CreatedAt       time.Time `json:"created_at"`
}

// MarketContextRow is a captured smart-money global snapshot.
type MarketContextRow struct {
	ID             int64     `json:"id"`
	VIXLevel       float64   `json:"vix_level"`
	FearGreedIndex float64   `json:"fear_greed_index"`
	OverallSignal  string    `json:"overall_signal"`
	CapturedAt     time.Time `json:"captured_at"`
}

// TradingSessionRow tracks one orchestrator run for operational history.
type TradingSessionRow struct {
	ID             int64      `json:"id"`
	StartedAt      time.Time  `json:"started_at"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
	TradingEnabled bool       `json:"trading_enabled"`
	TicksRun       int        `json:"ticks_run"`
}
