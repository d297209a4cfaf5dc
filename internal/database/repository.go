package database

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// Repository provides data access methods over the persistence contract:
// agents, trades, positions, performance_snapshots, autocritiques,
// trade_memories, agent_statistics, winning_patterns, market_context,
// trading_sessions.
type Repository struct {
	db *DB
}

// NewRepository creates a new repository.
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// HealthCheck performs a database health check.
func (r *Repository) HealthCheck(ctx context.Context) error {
	return r.db.Pool.Ping(ctx)
}

// GetDB returns the underlying DB instance for direct pool access.
func (r *Repository) GetDB() *DB {
	return r.db
}

// ============================================================================
// AGENTS
// ============================================================================

// UpsertAgent creates an agent on first sight or updates its roster fields
// (name, model handle, personality) on subsequent starts, leaving capital
// and trade counters untouched so a restart never resets performance.
func (r *Repository) UpsertAgent(ctx context.Context, agent *AgentRow) error {
	query := `
		INSERT INTO agents (id, name, model_handle, personality_text, initial_capital, current_capital)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (name) DO UPDATE SET
			model_handle = EXCLUDED.model_handle,
			personality_text = EXCLUDED.personality_text,
			updated_at = NOW()
		RETURNING id, current_capital, total_fees, trade_count, winning_trades, losing_trades,
		          last_autocritique, autocritique_counter, created_at, updated_at
	`
	return r.db.Pool.QueryRow(
		ctx, query,
		agent.ID, agent.Name, agent.ModelHandle, agent.PersonalityText, agent.InitialCapital,
	).Scan(
		&agent.ID, &agent.CurrentCapital, &agent.TotalFees, &agent.TradeCount,
		&agent.WinningTrades, &agent.LosingTrades, &agent.LastAutocritique,
		&agent.AutocritiqueCounter, &agent.CreatedAt, &agent.UpdatedAt,
	)
}

// GetAgentByName retrieves an agent by its unique name.
func (r *Repository) GetAgentByName(ctx context.Context, name string) (*AgentRow, error) {
	query := `
		SELECT id, name, model_handle, personality_text, initial_capital, current_capital,
		       total_fees, trade_count, winning_trades, losing_trades, last_autocritique,
		       autocritique_counter, created_at, updated_at
		FROM agents WHERE name = $1
	`
	agent := &AgentRow{}
	err := r.db.Pool.QueryRow(ctx, query, name).Scan(
		&agent.ID, &agent.Name, &agent.ModelHandle, &agent.PersonalityText,
		&agent.InitialCapital, &agent.CurrentCapital, &agent.TotalFees, &agent.TradeCount,
		&agent.WinningTrades, &agent.LosingTrades, &agent.LastAutocritique,
		&agent.AutocritiqueCounter, &agent.CreatedAt, &agent.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return agent, nil
}

// ListAgents returns every agent, ordered by current capital descending for
// leaderboard display.
func (r *Repository) ListAgents(ctx context.Context) ([]*AgentRow, error) {
	query := `
		SELECT id, name, model_handle, personality_text, initial_capital, current_capital,
		       total_fees, trade_count, winning_trades, losing_trades, last_autocritique,
		       autocritique_counter, created_at, updated_at
		FROM agents ORDER BY current_capital DESC
	`
	rows, err := r.db.Pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var agents []*AgentRow
	for rows.Next() {
		agent := &AgentRow{}
		if err := rows.Scan(
			&agent.ID, &agent.Name, &agent.ModelHandle, &agent.PersonalityText,
			&agent.InitialCapital, &agent.CurrentCapital, &agent.TotalFees, &agent.TradeCount,
			&agent.WinningTrades, &agent.LosingTrades, &agent.LastAutocritique,
			&agent.AutocritiqueCounter, &agent.CreatedAt, &agent.UpdatedAt,
		); err != nil {
			return nil, err
		}
		agents = append(agents, agent)
	}
	return agents, rows.Err()
}

// UpdateAgentCapital applies a fill's capital and fee effect to an agent and
// bumps its trade/win/loss counters. win is nil for trades that do not close
// a position (entries aren't scored until exit).
func (r *Repository) UpdateAgentCapital(ctx context.Context, agentID string, capitalDelta, fee decimal.Decimal, win *bool) error {
	query := `
		UPDATE agents
		SET current_capital = current_capital + $2,
		    total_fees = total_fees + $3,
		    trade_count = trade_count + 1,
		    winning_trades = winning_trades + CASE WHEN $4::boolean IS TRUE THEN 1 ELSE 0 END,
		    losing_trades = losing_trades + CASE WHEN $4::boolean IS FALSE THEN 1 ELSE 0 END,
		    updated_at = NOW()
		WHERE id = $1
	`
	_, err := r.db.Pool.Exec(ctx, query, agentID, capitalDelta, fee, win)
	return err
}

// RecordAutocritique stores an autocritique and resets the agent's decision
// counter that gates the next one (every 5 successful decisions).
func (r *Repository) RecordAutocritique(ctx context.Context, agentID, critique string) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `INSERT INTO autocritiques (agent_id, critique) VALUES ($1, $2)`, agentID, critique); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
		UPDATE agents SET last_autocritique = $2, autocritique_counter = 0, updated_at = NOW()
		WHERE id = $1
	`, agentID, critique); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// IncrementAutocritiqueCounter bumps an agent's decision counter after a
// successful decision; callers trigger an autocritique once it reaches 5.
func (r *Repository) IncrementAutocritiqueCounter(ctx context.Context, agentID string) (int, error) {
	var counter int
	err := r.db.Pool.QueryRow(ctx, `
		UPDATE agents SET autocritique_counter = autocritique_counter + 1, updated_at = NOW()
		WHERE id = $1 RETURNING autocritique_counter
	`, agentID).Scan(&counter)
	return counter, err
}

// ListAutocritiques returns the most recent autocritiques for an agent.
func (r *Repository) ListAutocritiques(ctx context.Context, agentID string, limit int) ([]*AutocritiqueRow, error) {
	query := `
		SELECT id, agent_id, critique, created_at FROM autocritiques
		WHERE agent_id = $1 ORDER BY created_at DESC LIMIT $2
	`
	rows, err := r.db.Pool.Query(ctx, query, agentID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*AutocritiqueRow
	for rows.Next() {
		a := &AutocritiqueRow{}
		if err := rows.Scan(&a.ID, &a.AgentID, &a.Critique, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ============================================================================
// POSITIONS
// ============================================================================

// UpsertPosition applies a weighted-average entry update (BUY add) or
// replaces the row outright (reconciliation) for one agent/symbol.
func (r *Repository) UpsertPosition(ctx context.Context, pos *PositionRow) error {
	query := `
		INSERT INTO positions (agent_id, symbol, quantity, avg_entry_price)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (agent_id, symbol) DO UPDATE SET
			quantity = EXCLUDED.quantity,
			avg_entry_price = EXCLUDED.avg_entry_price,
			updated_at = NOW()
	`
	_, err := r.db.Pool.Exec(ctx, query, pos.AgentID, pos.Symbol, pos.Quantity, pos.AvgEntryPrice)
	return err
}

// DeletePosition removes a position once its quantity reaches zero (full exit).
func (r *Repository) DeletePosition(ctx context.Context, agentID, symbol string) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM positions WHERE agent_id = $1 AND symbol = $2`, agentID, symbol)
	return err
}

// GetPosition retrieves a single agent/symbol position, or nil if flat.
func (r *Repository) GetPosition(ctx context.Context, agentID, symbol string) (*PositionRow, error) {
	query := `SELECT agent_id, symbol, quantity, avg_entry_price, updated_at FROM positions WHERE agent_id = $1 AND symbol = $2`
	pos := &PositionRow{}
	err := r.db.Pool.QueryRow(ctx, query, agentID, symbol).Scan(&pos.AgentID, &pos.Symbol, &pos.Quantity, &pos.AvgEntryPrice, &pos.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return pos, nil
}

// GetPositionsByAgent returns every open position held by an agent.
func (r *Repository) GetPositionsByAgent(ctx context.Context, agentID string) ([]*PositionRow, error) {
	query := `SELECT agent_id, symbol, quantity, avg_entry_price, updated_at FROM positions WHERE agent_id = $1 ORDER BY symbol`
	rows, err := r.db.Pool.Query(ctx, query, agentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*PositionRow
	for rows.Next() {
		pos := &PositionRow{}
		if err := rows.Scan(&pos.AgentID, &pos.Symbol, &pos.Quantity, &pos.AvgEntryPrice, &pos.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, pos)
	}
	return out, rows.Err()
}

// ============================================================================
// TRADES
// ============================================================================

// InsertTrade appends an executed or attempted trade record. Trades are
// never updated: a position's realized outcome lives on its TradeMemory.
func (r *Repository) InsertTrade(ctx context.Context, trade *TradeRow) error {
	query := `
		INSERT INTO trades (id, agent_id, decision, symbol, quantity, price, reasoning, confidence, executed, order_id, pnl)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING
		RETURNING created_at
	`
	err := r.db.Pool.QueryRow(
		ctx, query,
		trade.ID, trade.AgentID, trade.Decision, trade.Symbol, trade.Quantity, trade.Price,
		trade.Reasoning, trade.Confidence, trade.Executed, trade.OrderID, trade.PnL,
	).Scan(&trade.CreatedAt)
	if err == pgx.ErrNoRows {
		// Already recorded by an earlier retry of the same tick; idempotent no-op.
		return nil
	}
	return err
}

// GetTradesByAgent retrieves an agent's trade history, most recent first.
func (r *Repository) GetTradesByAgent(ctx context.Context, agentID string, limit int) ([]*TradeRow, error) {
	query := `
		SELECT id, agent_id, decision, symbol, quantity, price, reasoning, confidence, executed, order_id, pnl, created_at
		FROM trades WHERE agent_id = $1 ORDER BY created_at DESC LIMIT $2
	`
	return r.queryTrades(ctx, query, agentID, limit)
}

// GetRecentTrades retrieves the most recent trades across all agents.
func (r *Repository) GetRecentTrades(ctx context.Context, limit int) ([]*TradeRow, error) {
	query := `
		SELECT id, agent_id, decision, symbol, quantity, price, reasoning, confidence, executed, order_id, pnl, created_at
		FROM trades ORDER BY created_at DESC LIMIT $1
	`
	return r.queryTrades(ctx, query, limit)
}

func (r *Repository) queryTrades(ctx context.Context, query string, args ...interface{}) ([]*TradeRow, error) {
	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []*TradeRow
	for rows.Next() {
		t := &TradeRow{}
		if err := rows.Scan(
			&t.ID, &t.AgentID, &t.Decision, &t.Symbol, &t.Quantity, &t.Price,
			&t.Reasoning, &t.Confidence, &t.Executed, &t.OrderID, &t.PnL, &t.CreatedAt,
		); err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// ============================================================================
// PERFORMANCE SNAPSHOTS
// ============================================================================

// InsertPerformanceSnapshot records a point-in-time capital/performance
// reading, taken independently of trading cycles on its own interval.
func (r *Repository) InsertPerformanceSnapshot(ctx context.Context, snap *PerformanceSnapshotRow) error {
	query := `
		INSERT INTO performance_snapshots (agent_id, current_capital, total_pnl, win_rate, trade_count)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, snapshot_at
	`
	return r.db.Pool.QueryRow(
		ctx, query, snap.AgentID, snap.CurrentCapital, snap.TotalPnL, snap.WinRate, snap.TradeCount,
	).Scan(&snap.ID, &snap.SnapshotAt)
}

// GetPerformanceHistory retrieves an agent's recent snapshots, oldest first,
// for charting capital curves.
func (r *Repository) GetPerformanceHistory(ctx context.Context, agentID string, limit int) ([]*PerformanceSnapshotRow, error) {
	query := `
		SELECT id, agent_id, current_capital, total_pnl, win_rate, trade_count, snapshot_at
		FROM (
			SELECT * FROM performance_snapshots WHERE agent_id = $1 ORDER BY snapshot_at DESC LIMIT $2
		) recent ORDER BY snapshot_at ASC
	`
	rows, err := r.db.Pool.Query(ctx, query, agentID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*PerformanceSnapshotRow
	for rows.Next() {
		s := &PerformanceSnapshotRow{}
		if err := rows.Scan(&s.ID, &s.AgentID, &s.CurrentCapital, &s.TotalPnL, &s.WinRate, &s.TradeCount, &s.SnapshotAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ============================================================================
// TRADE MEMORIES
// ============================================================================

// CreateTradeMemory opens a memory entry at trade entry time; Success stays
// "unknown" until the position closes.
func (r *Repository) CreateTradeMemory(ctx context.Context, m *TradeMemoryRow) error {
	if m.Success == "" {
		m.Success = SuccessUnknown
	}
	query := `
		INSERT INTO trade_memories (
			id, agent_id, trade_id, symbol, sector, decision, entry_price, quantity, reasoning,
			confidence, success, market_sentiment, vix_level, market_trend, rsi_value, volume_ratio,
			dark_pool_ratio, options_sentiment, insider_activity
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		ON CONFLICT (id) DO NOTHING
		RETURNING created_at
	`
	err := r.db.Pool.QueryRow(
		ctx, query,
		m.ID, m.AgentID, m.TradeID, m.Symbol, m.Sector, m.Decision, m.EntryPrice, m.Quantity,
		m.Reasoning, m.Confidence, m.Success, m.MarketSentiment, m.VIXLevel, m.MarketTrend,
		m.RSIValue, m.VolumeRatio, m.DarkPoolRatio, m.OptionsSentiment, m.InsiderActivity,
	).Scan(&m.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil
	}
	return err
}

// CloseTradeMemory writes the realized outcome of a trade memory. Closing an
// already-closed memory is a no-op so a duplicate exit signal can't corrupt
// the recorded pnl.
func (r *Repository) CloseTradeMemory(ctx context.Context, id string, exitPrice, pnl decimal.Decimal, pnlPercent float64, success SuccessState, holdingHours float64, lesson *string) error {
	query := `
		UPDATE trade_memories
		SET closed_at = NOW(), exit_price = $2, pnl = $3, pnl_percent = $4, success = $5,
		    holding_duration_hours = $6, lesson_learned = $7
		WHERE id = $1 AND closed_at IS NULL
	`
	_, err := r.db.Pool.Exec(ctx, query, id, exitPrice, pnl, pnlPercent, success, holdingHours, lesson)
	return err
}

// GetSimilarTrades retrieves closed memories for a symbol, most recent
// first, to ground pre-decision context with genuine history.
func (r *Repository) GetSimilarTrades(ctx context.Context, symbol string, limit int) ([]*TradeMemoryRow, error) {
	query := `
		SELECT id, agent_id, trade_id, symbol, sector, decision, entry_price, quantity, reasoning,
		       confidence, created_at, closed_at, exit_price, pnl, pnl_percent, success,
		       holding_duration_hours, lesson_learned, market_sentiment, vix_level, market_trend,
		       rsi_value, volume_ratio, dark_pool_ratio, options_sentiment, insider_activity
		FROM trade_memories
		WHERE symbol = $1 AND closed_at IS NOT NULL
		ORDER BY closed_at DESC LIMIT $2
	`
	return r.queryTradeMemories(ctx, query, symbol, limit)
}

// GetAgentPerformanceByCriteria retrieves an agent's closed memories
// matching a sector (optional, empty means any), used to bucket
// performance by sector/confidence/sentiment/VIX band at the call site.
func (r *Repository) GetAgentPerformanceByCriteria(ctx context.Context, agentID, sector string, limit int) ([]*TradeMemoryRow, error) {
	if sector == "" {
		query := `
			SELECT id, agent_id, trade_id, symbol, sector, decision, entry_price, quantity, reasoning,
			       confidence, created_at, closed_at, exit_price, pnl, pnl_percent, success,
			       holding_duration_hours, lesson_learned, market_sentiment, vix_level, market_trend,
			       rsi_value, volume_ratio, dark_pool_ratio, options_sentiment, insider_activity
			FROM trade_memories
			WHERE agent_id = $1 AND closed_at IS NOT NULL
			ORDER BY closed_at DESC LIMIT $2
		`
		return r.queryTradeMemories(ctx, query, agentID, limit)
	}
	query := `
		SELECT id, agent_id, trade_id, symbol, sector, decision, entry_price, quantity, reasoning,
		       confidence, created_at, closed_at, exit_price, pnl, pnl_percent, success,
		       holding_duration_hours, lesson_learned, market_sentiment, vix_level, market_trend,
		       rsi_value, volume_ratio, dark_pool_ratio, options_sentiment, insider_activity
		FROM trade_memories
		WHERE agent_id = $1 AND sector = $2 AND closed_at IS NOT NULL
		ORDER BY closed_at DESC LIMIT $3
	`
	return r.queryTradeMemories(ctx, query, agentID, sector, limit)
}

// GetOpenTradeMemory finds the still-open memory for a trade, used to
// resolve which memory row to close on exit.
func (r *Repository) GetOpenTradeMemory(ctx context.Context, tradeID string) (*TradeMemoryRow, error) {
	query := `
		SELECT id, agent_id, trade_id, symbol, sector, decision, entry_price, quantity, reasoning,
		       confidence, created_at, closed_at, exit_price, pnl, pnl_percent, success,
		       holding_duration_hours, lesson_learned, market_sentiment, vix_level, market_trend,
		       rsi_value, volume_ratio, dark_pool_ratio, options_sentiment, insider_activity
		FROM trade_memories WHERE trade_id = $1 AND closed_at IS NULL
	`
	rows, err := r.queryTradeMemories(ctx, query, tradeID)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, pgx.ErrNoRows
	}
	return rows[0], nil
}

// GetOpenTradeMemoryBySymbol finds the most recently opened still-open
// memory for (agent, symbol), used to match an exiting SELL back to the
// memory its entering BUY created when the caller only has the symbol,
// not the original trade ID, in hand.
func (r *Repository) GetOpenTradeMemoryBySymbol(ctx context.Context, agentID, symbol string) (*TradeMemoryRow, error) {
	query := `
		SELECT id, agent_id, trade_id, symbol, sector, decision, entry_price, quantity, reasoning,
		       confidence, created_at, closed_at, exit_price, pnl, pnl_percent, success,
		       holding_duration_hours, lesson_learned, market_sentiment, vix_level, market_trend,
		       rsi_value, volume_ratio, dark_pool_ratio, options_sentiment, insider_activity
		FROM trade_memories
		WHERE agent_id = $1 AND symbol = $2 AND closed_at IS NULL
		ORDER BY created_at DESC LIMIT 1
	`
	rows, err := r.queryTradeMemories(ctx, query, agentID, symbol)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, pgx.ErrNoRows
	}
	return rows[0], nil
}

func (r *Repository) queryTradeMemories(ctx context.Context, query string, args ...interface{}) ([]*TradeMemoryRow, error) {
	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*TradeMemoryRow
	for rows.Next() {
		m := &TradeMemoryRow{}
		if err := rows.Scan(
			&m.ID, &m.AgentID, &m.TradeID, &m.Symbol, &m.Sector, &m.Decision, &m.EntryPrice,
			&m.Quantity, &m.Reasoning, &m.Confidence, &m.CreatedAt, &m.ClosedAt, &m.ExitPrice,
			&m.PnL, &m.PnLPercent, &m.Success, &m.HoldingDurationHours, &m.LessonLearned,
			&m.MarketSentiment, &m.VIXLevel, &m.MarketTrend, &m.RSIValue, &m.VolumeRatio,
			&m.DarkPoolRatio, &m.OptionsSentiment, &m.InsiderActivity,
		); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ============================================================================
// AGENT STATISTICS
// ============================================================================

// UpsertAgentStatistics writes the recomputed statistics row used by the
// Kelly sizer, replacing any prior values for the agent wholesale.
func (r *Repository) UpsertAgentStatistics(ctx context.Context, s *AgentStatisticsRow) error {
	query := `
		INSERT INTO agent_statistics (agent_id, total_trades, win_rate, win_loss_ratio, avg_win_pct, avg_loss_pct, kelly_fraction)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (agent_id) DO UPDATE SET
			total_trades = EXCLUDED.total_trades,
			win_rate = EXCLUDED.win_rate,
			win_loss_ratio = EXCLUDED.win_loss_ratio,
			avg_win_pct = EXCLUDED.avg_win_pct,
			avg_loss_pct = EXCLUDED.avg_loss_pct,
			kelly_fraction = EXCLUDED.kelly_fraction,
			updated_at = NOW()
	`
	_, err := r.db.Pool.Exec(ctx, query, s.AgentID, s.TotalTrades, s.WinRate, s.WinLossRatio, s.AvgWinPct, s.AvgLossPct, s.KellyFraction)
	return err
}

// GetAgentStatistics retrieves an agent's statistics row, or nil if the
// agent has no recorded trades yet (the sizer falls back to defaults).
func (r *Repository) GetAgentStatistics(ctx context.Context, agentID string) (*AgentStatisticsRow, error) {
	query := `
		SELECT agent_id, total_trades, win_rate, win_loss_ratio, avg_win_pct, avg_loss_pct, kelly_fraction, updated_at
		FROM agent_statistics WHERE agent_id = $1
	`
	s := &AgentStatisticsRow{}
	err := r.db.Pool.QueryRow(ctx, query, agentID).Scan(
		&s.AgentID, &s.TotalTrades, &s.WinRate, &s.WinLossRatio, &s.AvgWinPct, &s.AvgLossPct, &s.KellyFraction, &s.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// ============================================================================
// WINNING PATTERNS
// ============================================================================

// InsertWinningPattern appends a pattern detected from a closed trade memory
// whose pnl_percent cleared the success threshold.
func (r *Repository) InsertWinningPattern(ctx context.Context, p *WinningPatternRow) error {
	query := `
		INSERT INTO winning_patterns (
			id, agent_id, symbol, sector, entry_hour, entry_minute, day_of_week, rsi_at_entry,
			macd_signal, volume_ratio, trend, price_vs_sma20, vix_level, market_sentiment,
			catalyst, pattern_type, pnl_percent
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		RETURNING created_at
	`
	return r.db.Pool.QueryRow(
		ctx, query,
		p.ID, p.AgentID, p.Symbol, p.Sector, p.EntryHour, p.EntryMinute, p.DayOfWeek, p.RSIAtEntry,
		p.MACDSignal, p.VolumeRatio, p.Trend, p.PriceVsSMA20, p.VIXLevel, p.MarketSentiment,
		p.Catalyst, p.PatternType, p.PnLPercent,
	).Scan(&p.CreatedAt)
}

// ListWinningPatternsSince retrieves patterns captured within the rolling
// window used to build the winning-patterns index (default 30 days).
func (r *Repository) ListWinningPatternsSince(ctx context.Context, since time.Time) ([]*WinningPatternRow, error) {
	query := `
		SELECT id, agent_id, symbol, sector, entry_hour, entry_minute, day_of_week, rsi_at_entry,
		       macd_signal, volume_ratio, trend, price_vs_sma20, vix_level, market_sentiment,
		       catalyst, pattern_type, pnl_percent, created_at
		FROM winning_patterns WHERE created_at >= $1
		ORDER BY created_at DESC
	`
	rows, err := r.db.Pool.Query(ctx, query, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*WinningPatternRow
	for rows.Next() {
		p := &WinningPatternRow{}
		if err := rows.Scan(
			&p.ID, &p.AgentID, &p.Symbol, &p.Sector, &p.EntryHour, &p.EntryMinute, &p.DayOfWeek,
			&p.RSIAtEntry, &p.MACDSignal, &p.VolumeRatio, &p.Trend, &p.PriceVsSMA20, &p.VIXLevel,
			&p.MarketSentiment, &p.Catalyst, &p.PatternType, &p.PnLPercent, &p.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ============================================================================
// MARKET CONTEXT
// ============================================================================

// InsertMarketContext records the shared smart-money snapshot computed once
// per tick, for historical correlation with trade outcomes.
func (r *Repository) InsertMarketContext(ctx context.Context, m *MarketContextRow) error {
	query := `
		INSERT INTO market_context (vix_level, fear_greed_index, overall_signal)
		VALUES ($1, $2, $3)
		RETURNING id, captured_at
	`
	return r.db.Pool.QueryRow(ctx, query, m.VIXLevel, m.FearGreedIndex, m.OverallSignal).Scan(&m.ID, &m.CapturedAt)
}

// GetLatestMarketContext retrieves the most recently captured snapshot.
func (r *Repository) GetLatestMarketContext(ctx context.Context) (*MarketContextRow, error) {
	query := `SELECT id, vix_level, fear_greed_index, overall_signal, captured_at FROM market_context ORDER BY captured_at DESC LIMIT 1`
	m := &MarketContextRow{}
	err := r.db.Pool.QueryRow(ctx, query).Scan(&m.ID, &m.VIXLevel, &m.FearGreedIndex, &m.OverallSignal, &m.CapturedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// ============================================================================
// TRADING SESSIONS
// ============================================================================

// CreateTradingSession opens a new operational session record, used to
// bound uptime/tick-count reporting on the control surface.
func (r *Repository) CreateTradingSession(ctx context.Context, tradingEnabled bool) (*TradingSessionRow, error) {
	query := `
		INSERT INTO trading_sessions (trading_enabled) VALUES ($1)
		RETURNING id, started_at, ended_at, trading_enabled, ticks_run
	`
	s := &TradingSessionRow{}
	err := r.db.Pool.QueryRow(ctx, query, tradingEnabled).Scan(&s.ID, &s.StartedAt, &s.EndedAt, &s.TradingEnabled, &s.TicksRun)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// IncrementSessionTicks bumps a session's tick counter after each completed
// orchestrator tick.
func (r *Repository) IncrementSessionTicks(ctx context.Context, sessionID int64) error {
	_, err := r.db.Pool.Exec(ctx, `UPDATE trading_sessions SET ticks_run = ticks_run + 1 WHERE id = $1`, sessionID)
	return err
}

// EndTradingSession marks a session closed, e.g. on graceful shutdown.
func (r *Repository) EndTradingSession(ctx context.Context, sessionID int64) error {
	_, err := r.db.Pool.Exec(ctx, `UPDATE trading_sessions SET ended_at = NOW() WHERE id = $1`, sessionID)
	return err
}

// SetSessionTradingEnabled flips the persisted trading-enabled flag for the
// current session, mirroring the in-memory toggle exposed on the control surface.
func (r *Repository) SetSessionTradingEnabled(ctx context.Context, sessionID int64, enabled bool) error {
	_, err := r.db.Pool.Exec(ctx, `UPDATE trading_sessions SET trading_enabled = $2 WHERE id = $1`, sessionID, enabled)
	return err
}
