// Command server wires every subsystem of the equities-trader core
// together and runs the periodic trading cycle behind a thin HTTP/
// WebSocket control surface, the same top-level shape as the
// teacher's own main.go: load config, build structured logging, wire
// collaborators bottom-up, start the background loop, serve control
// traffic, and shut down gracefully on SIGINT/SIGTERM.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/koshedutech/equities-trader/config"
	"github.com/koshedutech/equities-trader/internal/agent"
	"github.com/koshedutech/equities-trader/internal/broker"
	"github.com/koshedutech/equities-trader/internal/cache"
	"github.com/koshedutech/equities-trader/internal/circuit"
	"github.com/koshedutech/equities-trader/internal/control"
	"github.com/koshedutech/equities-trader/internal/database"
	"github.com/koshedutech/equities-trader/internal/earnings"
	"github.com/koshedutech/equities-trader/internal/events"
	"github.com/koshedutech/equities-trader/internal/exit"
	"github.com/koshedutech/equities-trader/internal/llm"
	"github.com/koshedutech/equities-trader/internal/logging"
	"github.com/koshedutech/equities-trader/internal/marketclock"
	"github.com/koshedutech/equities-trader/internal/marketdata"
	"github.com/koshedutech/equities-trader/internal/memory"
	"github.com/koshedutech/equities-trader/internal/orchestrator"
	"github.com/koshedutech/equities-trader/internal/orders"
	"github.com/koshedutech/equities-trader/internal/secrets"
	"github.com/koshedutech/equities-trader/internal/smartmoney"
	"github.com/koshedutech/equities-trader/internal/symbols"

	"github.com/rs/zerolog"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(&logging.Config{
		Level:       cfg.LoggingConfig.Level,
		Output:      cfg.LoggingConfig.Output,
		JSONFormat:  cfg.LoggingConfig.JSONFormat,
		IncludeFile: cfg.LoggingConfig.IncludeFile,
		Component:   "main",
	})
	logging.SetDefault(logger)
	logger.Info("structured logging initialized")

	bus := events.NewEventBus()

	resolver, err := secrets.NewResolver(cfg.VaultConfig)
	if err != nil {
		logger.Fatal("failed to build secrets resolver", "error", err.Error())
	}
	ctx := context.Background()
	cfg.LLM = secrets.ResolveLLMKeys(ctx, resolver, cfg.LLM)

	whitelist := symbols.New()
	calendar, err := buildMarketCalendar()
	if err != nil {
		logger.Fatal("failed to build market calendar", "error", err.Error())
	}

	ttlCache := buildTTLCache(cfg.RedisConfig, logger)

	sim := marketdata.NewSimulated()
	smartMoneyAgg := smartmoney.NewAggregator(smartmoney.Sources{
		VIX:           sim,
		Options:       sim,
		FiveDayVolume: sim,
		Insider:       sim,
		FearGreed:     sim,
	}, ttlCache)
	earningsCal := earnings.NewCalendar(sim, ttlCache)

	db, err := database.NewDB(database.Config{
		Host:     cfg.DatabaseConfig.Host,
		Port:     cfg.DatabaseConfig.Port,
		User:     cfg.DatabaseConfig.User,
		Password: cfg.DatabaseConfig.Password,
		Database: cfg.DatabaseConfig.Database,
		SSLMode:  cfg.DatabaseConfig.SSLMode,
	})
	if err != nil {
		logger.Fatal("failed to connect to database", "error", err.Error())
	}
	if err := db.RunMigrations(ctx); err != nil {
		logger.Fatal("failed to run migrations", "error", err.Error())
	}
	repo := database.NewRepository(db)

	memStore := memory.NewStore(repo)
	patterns := memory.NewPatternIndex(repo)
	breaker := circuit.New(cfg.CircuitBreakerConfig)
	exitEngine := exit.New()
	orderLedger := orders.NewLedger(zerolog.New(os.Stdout).With().Timestamp().Str("component", "orders").Logger())

	llmClient := llm.NewClient(llm.ClientConfig{
		Provider: llm.Provider(cfg.LLM.Provider),
		APIKey:   apiKeyFor(cfg.LLM),
		Timeout:  time.Duration(cfg.LLM.RequestTimeoutSeconds) * time.Second,
	})

	seedPrices := marketdata.SeedPrices(whitelist.Symbols())

	members := make([]orchestrator.Member, 0, len(cfg.Agents))
	consortiumMembers := make([]*agent.BaseAgent, 0, len(cfg.Agents))
	for i, spec := range cfg.Agents {
		a := agent.NewAgent(fmt.Sprintf("agent-%d", i+1), spec.Name, spec.ModelHandle, spec.PersonalityText, cfg.TradingConfig.InitialCapitalPerAgent)
		paperBroker := broker.NewPaperBroker(calendar, cfg.TradingConfig.InitialCapitalPerAgent, cfg.TradingConfig.SimulatedFeePerTrade, seedPrices)
		base := agent.NewBaseAgent(a, agent.Dependencies{
			Broker:      paperBroker,
			LLM:         llmClient,
			Model:       spec.ModelHandle,
			Memory:      memStore,
			Patterns:    patterns,
			Earnings:    earningsCal,
			SmartMoney:  smartMoneyAgg,
			Whitelist:   whitelist,
			Breaker:     breaker,
			Exits:       exitEngine,
			Events:      bus,
			Repo:        repo,
			Log:         logger,
			Orders:      orderLedger,
			FeePerTrade: cfg.TradingConfig.SimulatedFeePerTrade,
			Temperature: 0.4,
			MaxTokens:   1024,
		})
		members = append(members, orchestrator.Member{Agent: base})
		consortiumMembers = append(consortiumMembers, base)
	}

	consortiumAgent := agent.NewAgent("consortium", "Consortium", "", "", cfg.TradingConfig.InitialCapitalPerAgent)
	consortiumBroker := broker.NewPaperBroker(calendar, cfg.TradingConfig.InitialCapitalPerAgent, cfg.TradingConfig.SimulatedFeePerTrade, seedPrices)
	consortiumBase := agent.NewBaseAgent(consortiumAgent, agent.Dependencies{
		Broker:      consortiumBroker,
		LLM:         llmClient,
		Memory:      memStore,
		Patterns:    patterns,
		Earnings:    earningsCal,
		SmartMoney:  smartMoneyAgg,
		Whitelist:   whitelist,
		Breaker:     breaker,
		Exits:       exitEngine,
		Events:      bus,
		Repo:        repo,
		Log:         logger,
		Orders:      orderLedger,
		FeePerTrade: cfg.TradingConfig.SimulatedFeePerTrade,
		Temperature: 0.4,
		MaxTokens:   1024,
	})
	consortium := agent.NewConsortium("consortium", "Consortium", consortiumMembers, consortiumBase)

	orch := orchestrator.New(orchestrator.Dependencies{
		Clock:        calendar,
		Exits:        exitEngine,
		SmartMoney:   smartMoneyAgg,
		Whitelist:    whitelist,
		Breaker:      breaker,
		Repo:         repo,
		Events:       bus,
		Log:          logger,
		Broker:       consortiumBroker,
		TickInterval: time.Duration(cfg.TradingConfig.TradingIntervalMinutes) * time.Minute,
	}, members, consortium)

	tickCtx, cancelTick := context.WithCancel(context.Background())
	go orch.Run(tickCtx)
	logger.Info("orchestrator started", "interval_minutes", cfg.TradingConfig.TradingIntervalMinutes, "agents", len(members))

	hub := control.NewHub(bus, logger)
	go hub.Run()

	var tokenMgr *control.TokenManager
	if cfg.AuthConfig.Enabled {
		operatorToken := os.Getenv("CONTROL_TOKEN")
		if operatorToken == "" {
			logger.Warn("CONTROL_TOKEN not set, generating an ephemeral session-only token")
			operatorToken = fmt.Sprintf("ephemeral-%d", time.Now().UnixNano())
			logger.Info("ephemeral control token", "token", operatorToken)
		}
		tokenMgr, err = control.NewTokenManager(cfg.AuthConfig.JWTSecret, operatorToken, cfg.AuthConfig.AccessTokenDuration)
		if err != nil {
			logger.Fatal("failed to build control token manager", "error", err.Error())
		}
	}

	srv := control.NewServer(control.Config{
		AllowedOrigins: splitOrigins(cfg.ServerConfig.AllowedOrigins),
		ProductionMode: !isDev(),
	}, orch, repo, hub, tokenMgr)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.ServerConfig.Host, cfg.ServerConfig.Port),
		Handler:      srv.Handler(),
		ReadTimeout:  time.Duration(cfg.ServerConfig.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.ServerConfig.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("control surface listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("control surface failed", "error", err.Error())
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	cancelTick()
	orch.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ServerConfig.ShutdownTimeout)*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("control surface shutdown error", "error", err.Error())
	}
	db.Close()
	logger.Info("shutdown complete")
}

func buildTTLCache(cfg config.RedisConfig, logger *logging.Logger) cache.TTLCache {
	if !cfg.Enabled {
		return cache.NewMemoryCache()
	}
	svc, err := cache.NewCacheService(cfg)
	if err != nil {
		logger.Warn("redis cache unavailable, falling back to in-memory cache", "error", err.Error())
		return cache.NewMemoryCache()
	}
	return cache.NewRedisTTLCache(svc)
}

func apiKeyFor(cfg config.LLMConfig) string {
	switch llm.Provider(cfg.Provider) {
	case llm.ProviderOpenAI:
		return cfg.OpenAIAPIKey
	case llm.ProviderDeepSeek:
		return cfg.DeepSeekAPIKey
	default:
		return cfg.AnthropicAPIKey
	}
}

func splitOrigins(raw string) []string {
	if raw == "" || raw == "*" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(raw); i++ {
		if i == len(raw) || raw[i] == ',' {
			if i > start {
				out = append(out, raw[start:i])
			}
			start = i + 1
		}
	}
	return out
}

func isDev() bool {
	return os.Getenv("GIN_MODE") != "release"
}

// buildMarketCalendar loads the exchange holiday set from
// MARKET_HOLIDAYS_FILE when configured, otherwise falls back to a
// baked-in NYSE holiday set covering the current year.
func buildMarketCalendar() (*marketclock.Calendar, error) {
	if path := os.Getenv("MARKET_HOLIDAYS_FILE"); path != "" {
		return marketclock.NewCalendar(path)
	}
	year := time.Now().Year()
	holidays := map[string]string{
		fmt.Sprintf("%d-01-01", year): "New Year's Day",
		fmt.Sprintf("%d-07-04", year): "Independence Day",
		fmt.Sprintf("%d-12-25", year): "Christmas Day",
	}
	return marketclock.NewCalendarFromHolidays(holidays), nil
}
