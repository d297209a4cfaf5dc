package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps the PostgreSQL connection pool
type DB struct {
	Pool *pgxpool.Pool
}

// Config holds database configuration
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// NewDB creates a new database connection
func NewDB(cfg Config) (*DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	log.Printf("connected to PostgreSQL database: %s", cfg.Database)

	return &DB{Pool: pool}, nil
}

// Close closes the database connection
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		log.Println("database connection closed")
	}
}

// RunMigrations creates the tables named in the Persistence contract:
// agents, trades, positions, performance_snapshots, autocritiques,
// trade_memories, agent_statistics, winning_patterns, market_context,
// trading_sessions.
func (db *DB) RunMigrations(ctx context.Context) error {
	log.Println("running database migrations...")

	migrations := []string{
		`CREATE TABLE IF NOT EXISTS agents (
			id VARCHAR(64) PRIMARY KEY,
			name VARCHAR(100) NOT NULL UNIQUE,
			model_handle VARCHAR(100) NOT NULL,
			personality_text TEXT,
			initial_capital DECIMAL(20, 8) NOT NULL,
			current_capital DECIMAL(20, 8) NOT NULL,
			total_fees DECIMAL(20, 8) NOT NULL DEFAULT 0,
			trade_count INT NOT NULL DEFAULT 0,
			winning_trades INT NOT NULL DEFAULT 0,
			losing_trades INT NOT NULL DEFAULT 0,
			last_autocritique TEXT,
			autocritique_counter INT NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS trades (
			id VARCHAR(64) PRIMARY KEY,
			agent_id VARCHAR(64) NOT NULL REFERENCES agents(id) ON DELETE CASCADE,
			decision VARCHAR(4) NOT NULL,
			symbol VARCHAR(20) NOT NULL,
			quantity DECIMAL(20, 8) NOT NULL,
			price DECIMAL(20, 8) NOT NULL,
			reasoning TEXT,
			confidence DECIMAL(5, 2) NOT NULL DEFAULT 0,
			executed BOOLEAN NOT NULL DEFAULT FALSE,
			order_id VARCHAR(64),
			pnl DECIMAL(20, 8) NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_agent ON trades(agent_id)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_created_at ON trades(created_at)`,

		`CREATE TABLE IF NOT EXISTS positions (
			agent_id VARCHAR(64) NOT NULL REFERENCES agents(id) ON DELETE CASCADE,
			symbol VARCHAR(20) NOT NULL,
			quantity DECIMAL(20, 8) NOT NULL,
			avg_entry_price DECIMAL(20, 8) NOT NULL,
			updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
			PRIMARY KEY (agent_id, symbol)
		)`,

		`CREATE TABLE IF NOT EXISTS performance_snapshots (
			id BIGSERIAL PRIMARY KEY,
			agent_id VARCHAR(64) NOT NULL REFERENCES agents(id) ON DELETE CASCADE,
			current_capital DECIMAL(20, 8) NOT NULL,
			total_pnl DECIMAL(20, 8) NOT NULL,
			win_rate DECIMAL(5, 2),
			trade_count INT NOT NULL DEFAULT 0,
			snapshot_at TIMESTAMP NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_perf_snapshots_agent ON performance_snapshots(agent_id, snapshot_at)`,

		`CREATE TABLE IF NOT EXISTS autocritiques (
			id BIGSERIAL PRIMARY KEY,
			agent_id VARCHAR(64) NOT NULL REFERENCES agents(id) ON DELETE CASCADE,
			critique TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_autocritiques_agent ON autocritiques(agent_id, created_at)`,

		`CREATE TABLE IF NOT EXISTS trade_memories (
			id VARCHAR(64) PRIMARY KEY,
			agent_id VARCHAR(64) NOT NULL REFERENCES agents(id) ON DELETE CASCADE,
			trade_id VARCHAR(64) NOT NULL,
			symbol VARCHAR(20) NOT NULL,
			sector VARCHAR(50) NOT NULL DEFAULT 'Unknown',
			decision VARCHAR(4) NOT NULL,
			entry_price DECIMAL(20, 8) NOT NULL,
			quantity DECIMAL(20, 8) NOT NULL,
			reasoning TEXT,
			confidence DECIMAL(5, 2) NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			closed_at TIMESTAMP,
			exit_price DECIMAL(20, 8),
			pnl DECIMAL(20, 8),
			pnl_percent DECIMAL(10, 4),
			success VARCHAR(7) NOT NULL DEFAULT 'unknown',
			holding_duration_hours DECIMAL(10, 2),
			lesson_learned TEXT,
			market_sentiment VARCHAR(20),
			vix_level DECIMAL(6, 2),
			market_trend VARCHAR(20),
			rsi_value DECIMAL(6, 2),
			volume_ratio DECIMAL(10, 4),
			dark_pool_ratio DECIMAL(6, 4),
			options_sentiment VARCHAR(20),
			insider_activity VARCHAR(20)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trade_memories_agent ON trade_memories(agent_id)`,
		`CREATE INDEX IF NOT EXISTS idx_trade_memories_symbol ON trade_memories(symbol)`,
		`CREATE INDEX IF NOT EXISTS idx_trade_memories_success ON trade_memories(success)`,
		`CREATE INDEX IF NOT EXISTS idx_trade_memories_closed_at ON trade_memories(closed_at)`,

		`CREATE TABLE IF NOT EXISTS agent_statistics (
			agent_id VARCHAR(64) PRIMARY KEY REFERENCES agents(id) ON DELETE CASCADE,
			total_trades INT NOT NULL DEFAULT 0,
			win_rate DECIMAL(5, 4) NOT NULL DEFAULT 0,
			win_loss_ratio DECIMAL(10, 4) NOT NULL DEFAULT 0,
			avg_win_pct DECIMAL(10, 4) NOT NULL DEFAULT 0,
			avg_loss_pct DECIMAL(10, 4) NOT NULL DEFAULT 0,
			kelly_fraction DECIMAL(10, 6) NOT NULL DEFAULT 0,
			updated_at TIMESTAMP NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS winning_patterns (
			id VARCHAR(64) PRIMARY KEY,
			agent_id VARCHAR(64) NOT NULL REFERENCES agents(id) ON DELETE CASCADE,
			symbol VARCHAR(20) NOT NULL,
			sector VARCHAR(50),
			entry_hour INT,
			entry_minute INT,
			day_of_week INT,
			rsi_at_entry DECIMAL(6, 2),
			macd_signal VARCHAR(20),
			volume_ratio DECIMAL(10, 4),
			trend VARCHAR(20),
			price_vs_sma20 DECIMAL(10, 4),
			vix_level DECIMAL(6, 2),
			market_sentiment VARCHAR(20),
			catalyst VARCHAR(100),
			pattern_type VARCHAR(30) NOT NULL,
			pnl_percent DECIMAL(10, 4) NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_winning_patterns_symbol ON winning_patterns(symbol)`,
		`CREATE INDEX IF NOT EXISTS idx_winning_patterns_created_at ON winning_patterns(created_at)`,

		`CREATE TABLE IF NOT EXISTS market_context (
			id BIGSERIAL PRIMARY KEY,
			vix_level DECIMAL(6, 2),
			fear_greed_index DECIMAL(6, 2),
			overall_signal VARCHAR(20),
			captured_at TIMESTAMP NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_market_context_captured_at ON market_context(captured_at)`,

		`CREATE TABLE IF NOT EXISTS trading_sessions (
			id BIGSERIAL PRIMARY KEY,
			started_at TIMESTAMP NOT NULL DEFAULT NOW(),
			ended_at TIMESTAMP,
			trading_enabled BOOLEAN NOT NULL DEFAULT TRUE,
			ticks_run INT NOT NULL DEFAULT 0
		)`,
	}

	for i, migration := range migrations {
		if _, err := db.Pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	log.Println("database migrations completed")
	return nil
}

// HealthCheck performs a database health check
func (db *DB) HealthCheck(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}
