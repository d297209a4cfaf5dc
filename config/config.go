package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config aggregates every component's configuration. The bulk loads from an
// optional config.json with environment-variable overrides (the teacher's
// hybrid style); the agent roster and LLM provider settings load purely
// from the environment via envconfig, since they vary per deployment and
// have no sensible file-checked-into-git default.
type Config struct {
	TradingConfig        TradingConfig        `json:"trading"`
	DatabaseConfig       DatabaseConfig       `json:"database"`
	ServerConfig         ServerConfig         `json:"server"`
	AuthConfig           AuthConfig           `json:"auth"`
	VaultConfig          VaultConfig          `json:"vault"`
	RedisConfig          RedisConfig          `json:"redis"`
	LoggingConfig        LoggingConfig        `json:"logging"`
	CircuitBreakerConfig CircuitBreakerConfig `json:"circuit_breaker"`

	Agents []AgentSpec
	LLM    LLMConfig
}

// TradingConfig holds the orchestrator-wide trading parameters.
type TradingConfig struct {
	TradingIntervalMinutes int     `json:"trading_interval_minutes"`
	InitialCapitalPerAgent float64 `json:"initial_capital_per_agent"`
	SimulatedFeePerTrade   float64 `json:"simulated_fee_per_trade"`
	MaxPositionPercent     float64 `json:"max_position_percent"`
	PaperTrading           bool    `json:"paper_trading"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

// LoggingConfig controls the structured logger's verbosity and output.
type LoggingConfig struct {
	Level       string `json:"level"`        // DEBUG, INFO, WARN, ERROR
	Output      string `json:"output"`       // stdout, stderr, or file path
	JSONFormat  bool   `json:"json_format"`  // Output as JSON
	IncludeFile bool   `json:"include_file"` // Include file and line number
}

// CircuitBreakerConfig holds the multi-tier circuit breaker's
// drawdown and losing-streak thresholds.
type CircuitBreakerConfig struct {
	Enabled                bool    `json:"enabled"`
	DailyDrawdownPercent   float64 `json:"daily_drawdown_percent"`
	WeeklyDrawdownPercent  float64 `json:"weekly_drawdown_percent"`
	ConsecutiveLossLimit   int     `json:"consecutive_loss_limit"`
	DailyPauseHours        int     `json:"daily_pause_hours"`
	WeeklyPauseDays        int     `json:"weekly_pause_days"`
	ConsecutivePauseHours  int     `json:"consecutive_pause_hours"`
}

// ServerConfig holds the control surface's HTTP server configuration.
type ServerConfig struct {
	Port            int    `json:"port"`
	Host            string `json:"host"`
	AllowedOrigins  string `json:"allowed_origins"` // CORS allowed origins
	TLSEnabled      bool   `json:"tls_enabled"`
	TLSCertFile     string `json:"tls_cert_file"`
	TLSKeyFile      string `json:"tls_key_file"`
	ReadTimeout     int    `json:"read_timeout"`     // Seconds
	WriteTimeout    int    `json:"write_timeout"`    // Seconds
	ShutdownTimeout int    `json:"shutdown_timeout"` // Seconds
}

// AuthConfig holds the control surface's single-operator authentication
// configuration. There is one administrative account, not per-user tenancy.
type AuthConfig struct {
	Enabled             bool          `json:"enabled"`
	JWTSecret           string        `json:"jwt_secret"`
	AdminUsername       string        `json:"admin_username"`
	AdminPasswordHash   string        `json:"admin_password_hash"` // bcrypt hash
	AccessTokenDuration time.Duration `json:"access_token_duration"`
	MinPasswordLength   int           `json:"min_password_length"`
	MaxLoginAttempts    int           `json:"max_login_attempts"`
	LockoutDuration     time.Duration `json:"lockout_duration"`
}

// VaultConfig holds HashiCorp Vault configuration for resolving LLM and
// broker API keys out of band when VaultConfig.Enabled is set; env vars
// remain the default when it isn't.
type VaultConfig struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Token      string `json:"token"`
	MountPath  string `json:"mount_path"`  // KV secrets engine mount path
	SecretPath string `json:"secret_path"` // Path prefix for API keys
	TLSEnabled bool   `json:"tls_enabled"`
	CACert     string `json:"ca_cert"`
}

// RedisConfig holds Redis configuration for the earnings/smart-money/
// winning-patterns TTL caches.
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

// AgentSpec describes one roster entry: a named agent, its LLM model
// handle, and its personality text for prompt assembly.
type AgentSpec struct {
	Name            string
	ModelHandle     string
	PersonalityText string
}

// LLMConfig holds the multi-provider LLM transport settings, bound
// entirely from the environment since API keys never belong in a
// checked-in config file.
type LLMConfig struct {
	Provider              string `envconfig:"LLM_PROVIDER" default:"claude"`
	AnthropicAPIKey       string `envconfig:"ANTHROPIC_API_KEY"`
	OpenAIAPIKey          string `envconfig:"OPENAI_API_KEY"`
	DeepSeekAPIKey        string `envconfig:"DEEPSEEK_API_KEY"`
	RequestTimeoutSeconds int    `envconfig:"LLM_REQUEST_TIMEOUT_SECONDS" default:"120"`
}

// agentsEnv binds the roster's agent names; per-agent model handle and
// personality text are resolved individually since envconfig cannot bind
// a slice of structs directly.
type agentsEnv struct {
	Names []string `envconfig:"AGENT_NAMES" default:"Consortium-Alpha,Consortium-Beta,Consortium-Gamma"`
}

// Load reads the base config from config.json (if present), applies
// environment overrides for the JSON-backed sections, then binds the
// envconfig-only sections (agent roster, LLM provider).
func Load() (*Config, error) {
	cfg, err := loadFromFile("config.json")
	if err != nil {
		cfg = &Config{}
	}

	applyEnvOverrides(cfg)

	var llm LLMConfig
	if err := envconfig.Process("", &llm); err != nil {
		return nil, fmt.Errorf("failed to load LLM config: %w", err)
	}
	cfg.LLM = llm

	agents, err := loadAgentRoster()
	if err != nil {
		return nil, fmt.Errorf("failed to load agent roster: %w", err)
	}
	cfg.Agents = agents

	return cfg, nil
}

// loadAgentRoster binds AGENT_NAMES and then, for each name, looks up
// AGENT_<SANITIZED_NAME>_MODEL and AGENT_<SANITIZED_NAME>_PERSONALITY.
func loadAgentRoster() ([]AgentSpec, error) {
	var env agentsEnv
	if err := envconfig.Process("", &env); err != nil {
		return nil, err
	}

	specs := make([]AgentSpec, 0, len(env.Names))
	for _, name := range env.Names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		key := envKeyFromName(name)
		specs = append(specs, AgentSpec{
			Name:            name,
			ModelHandle:     getEnvOrDefault("AGENT_"+key+"_MODEL", "claude-3-haiku-20240307"),
			PersonalityText: getEnvOrDefault("AGENT_"+key+"_PERSONALITY", ""),
		})
	}
	return specs, nil
}

func envKeyFromName(name string) string {
	upper := strings.ToUpper(name)
	var b strings.Builder
	for _, r := range upper {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

// applyEnvOverrides applies environment variable overrides to the
// JSON-backed sections of the config.
func applyEnvOverrides(cfg *Config) {
	// Trading config
	cfg.TradingConfig.TradingIntervalMinutes = getEnvIntOrDefault("TRADING_INTERVAL_MINUTES", orInt(cfg.TradingConfig.TradingIntervalMinutes, 5))
	cfg.TradingConfig.InitialCapitalPerAgent = getEnvFloatOrDefault("TRADING_INITIAL_CAPITAL_PER_AGENT", orFloat(cfg.TradingConfig.InitialCapitalPerAgent, 10000))
	cfg.TradingConfig.SimulatedFeePerTrade = getEnvFloatOrDefault("TRADING_SIMULATED_FEE_PER_TRADE", orFloat(cfg.TradingConfig.SimulatedFeePerTrade, 1.0))
	cfg.TradingConfig.MaxPositionPercent = getEnvFloatOrDefault("TRADING_MAX_POSITION_PERCENT", orFloat(cfg.TradingConfig.MaxPositionPercent, 2.0))
	cfg.TradingConfig.PaperTrading = getEnvOrDefault("TRADING_PAPER_TRADING", "true") == "true"

	// Database config
	cfg.DatabaseConfig.Host = getEnvOrDefault("DB_HOST", orString(cfg.DatabaseConfig.Host, "localhost"))
	cfg.DatabaseConfig.Port = getEnvIntOrDefault("DB_PORT", orInt(cfg.DatabaseConfig.Port, 5432))
	cfg.DatabaseConfig.User = getEnvOrDefault("DB_USER", orString(cfg.DatabaseConfig.User, "postgres"))
	cfg.DatabaseConfig.Password = getEnvOrDefault("DB_PASSWORD", cfg.DatabaseConfig.Password)
	cfg.DatabaseConfig.Database = getEnvOrDefault("DB_NAME", orString(cfg.DatabaseConfig.Database, "equities_trader"))
	cfg.DatabaseConfig.SSLMode = getEnvOrDefault("DB_SSLMODE", orString(cfg.DatabaseConfig.SSLMode, "disable"))

	// Logging config
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", orString(cfg.LoggingConfig.Level, "INFO"))
	cfg.LoggingConfig.Output = getEnvOrDefault("LOG_OUTPUT", orString(cfg.LoggingConfig.Output, "stdout"))
	cfg.LoggingConfig.JSONFormat = getEnvOrDefault("LOG_JSON", "true") == "true"
	cfg.LoggingConfig.IncludeFile = getEnvOrDefault("LOG_INCLUDE_FILE", "false") == "true"

	// Circuit breaker config
	cfg.CircuitBreakerConfig.Enabled = getEnvOrDefault("CIRCUIT_BREAKER_ENABLED", "true") == "true"
	cfg.CircuitBreakerConfig.DailyDrawdownPercent = getEnvFloatOrDefault("CIRCUIT_DAILY_DRAWDOWN_PERCENT", orFloat(cfg.CircuitBreakerConfig.DailyDrawdownPercent, 5.0))
	cfg.CircuitBreakerConfig.WeeklyDrawdownPercent = getEnvFloatOrDefault("CIRCUIT_WEEKLY_DRAWDOWN_PERCENT", orFloat(cfg.CircuitBreakerConfig.WeeklyDrawdownPercent, 10.0))
	cfg.CircuitBreakerConfig.ConsecutiveLossLimit = getEnvIntOrDefault("CIRCUIT_CONSECUTIVE_LOSS_LIMIT", orInt(cfg.CircuitBreakerConfig.ConsecutiveLossLimit, 5))
	cfg.CircuitBreakerConfig.DailyPauseHours = getEnvIntOrDefault("CIRCUIT_DAILY_PAUSE_HOURS", orInt(cfg.CircuitBreakerConfig.DailyPauseHours, 24))
	cfg.CircuitBreakerConfig.WeeklyPauseDays = getEnvIntOrDefault("CIRCUIT_WEEKLY_PAUSE_DAYS", orInt(cfg.CircuitBreakerConfig.WeeklyPauseDays, 7))
	cfg.CircuitBreakerConfig.ConsecutivePauseHours = getEnvIntOrDefault("CIRCUIT_CONSECUTIVE_PAUSE_HOURS", orInt(cfg.CircuitBreakerConfig.ConsecutivePauseHours, 4))

	// Server config
	cfg.ServerConfig.Port = getEnvIntOrDefault("WEB_PORT", orInt(cfg.ServerConfig.Port, 8080))
	cfg.ServerConfig.Host = getEnvOrDefault("WEB_HOST", orString(cfg.ServerConfig.Host, "0.0.0.0"))
	cfg.ServerConfig.AllowedOrigins = getEnvOrDefault("SERVER_ALLOWED_ORIGINS", orString(cfg.ServerConfig.AllowedOrigins, "*"))
	cfg.ServerConfig.TLSEnabled = getEnvOrDefault("SERVER_TLS_ENABLED", "false") == "true"
	cfg.ServerConfig.TLSCertFile = getEnvOrDefault("SERVER_TLS_CERT", cfg.ServerConfig.TLSCertFile)
	cfg.ServerConfig.TLSKeyFile = getEnvOrDefault("SERVER_TLS_KEY", cfg.ServerConfig.TLSKeyFile)
	cfg.ServerConfig.ReadTimeout = getEnvIntOrDefault("SERVER_READ_TIMEOUT", orInt(cfg.ServerConfig.ReadTimeout, 30))
	cfg.ServerConfig.WriteTimeout = getEnvIntOrDefault("SERVER_WRITE_TIMEOUT", orInt(cfg.ServerConfig.WriteTimeout, 30))
	cfg.ServerConfig.ShutdownTimeout = getEnvIntOrDefault("SERVER_SHUTDOWN_TIMEOUT", orInt(cfg.ServerConfig.ShutdownTimeout, 10))

	// Auth config - always applied from environment, credentials never checked in
	cfg.AuthConfig.Enabled = getEnvOrDefault("AUTH_ENABLED", "true") == "true"
	cfg.AuthConfig.JWTSecret = getEnvOrDefault("AUTH_JWT_SECRET", cfg.AuthConfig.JWTSecret)
	cfg.AuthConfig.AdminUsername = getEnvOrDefault("AUTH_ADMIN_USERNAME", orString(cfg.AuthConfig.AdminUsername, "admin"))
	cfg.AuthConfig.AdminPasswordHash = getEnvOrDefault("AUTH_ADMIN_PASSWORD_HASH", cfg.AuthConfig.AdminPasswordHash)
	cfg.AuthConfig.AccessTokenDuration = getEnvDurationOrDefault("AUTH_ACCESS_TOKEN_DURATION", 8*time.Hour)
	cfg.AuthConfig.MinPasswordLength = getEnvIntOrDefault("AUTH_MIN_PASSWORD_LENGTH", orInt(cfg.AuthConfig.MinPasswordLength, 8))
	cfg.AuthConfig.MaxLoginAttempts = getEnvIntOrDefault("AUTH_MAX_LOGIN_ATTEMPTS", orInt(cfg.AuthConfig.MaxLoginAttempts, 5))
	cfg.AuthConfig.LockoutDuration = getEnvDurationOrDefault("AUTH_LOCKOUT_DURATION", 15*time.Minute)

	// Vault config
	cfg.VaultConfig.Enabled = getEnvOrDefault("VAULT_ENABLED", "false") == "true"
	cfg.VaultConfig.Address = getEnvOrDefault("VAULT_ADDR", orString(cfg.VaultConfig.Address, "http://localhost:8200"))
	cfg.VaultConfig.Token = getEnvOrDefault("VAULT_TOKEN", cfg.VaultConfig.Token)
	cfg.VaultConfig.MountPath = getEnvOrDefault("VAULT_MOUNT_PATH", orString(cfg.VaultConfig.MountPath, "secret"))
	cfg.VaultConfig.SecretPath = getEnvOrDefault("VAULT_SECRET_PATH", orString(cfg.VaultConfig.SecretPath, "equities-trader/api-keys"))
	cfg.VaultConfig.TLSEnabled = getEnvOrDefault("VAULT_TLS_ENABLED", "false") == "true"

	// Redis config
	cfg.RedisConfig.Enabled = getEnvOrDefault("REDIS_ENABLED", "true") == "true"
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDRESS", orString(cfg.RedisConfig.Address, "localhost:6379"))
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", cfg.RedisConfig.DB)
	cfg.RedisConfig.PoolSize = getEnvIntOrDefault("REDIS_POOL_SIZE", orInt(cfg.RedisConfig.PoolSize, 10))
}

func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return &config, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// orInt/orFloat/orString let a value already set by config.json win over
// the hardcoded spec default, while still allowing an explicit env var to
// override either.
func orInt(v, fallback int) int {
	if v != 0 {
		return v
	}
	return fallback
}

func orFloat(v, fallback float64) float64 {
	if v != 0 {
		return v
	}
	return fallback
}

func orString(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}

// GenerateSampleConfig creates a sample configuration file for the
// JSON-backed sections (the agent roster and LLM settings are env-only and
// intentionally excluded).
func GenerateSampleConfig(filename string) error {
	config := Config{
		TradingConfig: TradingConfig{
			TradingIntervalMinutes: 5,
			InitialCapitalPerAgent: 10000,
			SimulatedFeePerTrade:   1.0,
			MaxPositionPercent:     2.0,
			PaperTrading:           true,
		},
		DatabaseConfig: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "postgres",
			Database: "equities_trader",
			SSLMode:  "disable",
		},
		LoggingConfig: LoggingConfig{
			Level:       "INFO",
			Output:      "stdout",
			JSONFormat:  true,
			IncludeFile: false,
		},
		CircuitBreakerConfig: CircuitBreakerConfig{
			Enabled:               true,
			DailyDrawdownPercent:  5.0,
			WeeklyDrawdownPercent: 10.0,
			ConsecutiveLossLimit:  5,
			DailyPauseHours:       24,
			WeeklyPauseDays:       7,
			ConsecutivePauseHours: 4,
		},
		ServerConfig: ServerConfig{
			Port:            8080,
			Host:            "0.0.0.0",
			AllowedOrigins:  "*",
			ReadTimeout:     30,
			WriteTimeout:    30,
			ShutdownTimeout: 10,
		},
		RedisConfig: RedisConfig{
			Enabled:  true,
			Address:  "localhost:6379",
			PoolSize: 10,
		},
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filename, data, 0644)
}
