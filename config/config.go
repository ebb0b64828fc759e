package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"gammaTradeBot/internal/adapters/logger" // Import the logger package for LogLevel
)

// Config holds all application configuration.
type Config struct {
	// Instrument
	Symbol string // Underlying index symbol (e.g., "SPX")

	// Capital & Risk Limits
	StartingCapital float64 // Paper account baseline, immutable after seeding
	MaxPositionPct  float64 // Max entry notional as fraction of available capital (e.g., 0.05)
	MaxDeltaPct     float64 // Max portfolio delta notional as fraction of equity
	MaxDailyTrades  int     // Max entries per day
	MaxDailyLossPct float64 // Daily realized loss cap as fraction of starting capital
	MaxDrawdownPct  float64 // Max peak-to-trough equity drawdown
	MaxContracts    int     // Liquidity cap per position

	// Cost Model
	SpreadCapture            float64 // Fraction of the spread captured back from the touch; 0.5 fills at mid
	ImpactBpsPerContract     float64 // Market impact in basis points per contract
	MaxImpactBps             float64 // Impact cap in basis points
	CommissionPerContract    float64
	RegulatoryFeePerContract float64
	MinCommission            float64 // Floor per order

	// Exit Engine
	HardStopPct     float64       // Unrealized loss percent that triggers the hard stop (positive, e.g. 50)
	AdvisoryTimeout time.Duration // Budget for the advisory call before falling back

	// Backtest Validator
	ProvenTradeThreshold int     // Closed trades needed before stats are trusted
	MinWinRate           float64 // Proven strategies below this win rate are rejected

	// Scheduling
	TickInterval   time.Duration // Management pass cadence
	RequestTimeout time.Duration // Per external call budget

	// External services
	MarketDataURL    string
	MarketDataAPIKey string
	AdvisorURL       string
	WebhookURL       string // Notification webhook; empty disables notifications
	MetricsAddr      string // Prometheus listen address; empty disables the listener

	// Database
	DBPath string

	// Logging
	LogLevel logger.LogLevel
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	cfg.Symbol = getEnv("SYMBOL", "SPX")
	if cfg.Symbol == "" {
		errs = append(errs, "SYMBOL must be set")
	}

	// Capital & risk limits
	cfg.StartingCapital, err = getEnvAsFloatRequired("STARTING_CAPITAL", 100000.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid STARTING_CAPITAL: %v", err))
	} else if cfg.StartingCapital <= 0 {
		errs = append(errs, "STARTING_CAPITAL must be positive")
	}

	cfg.MaxPositionPct, err = getEnvAsFloatRequired("MAX_POSITION_PCT", 0.05)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MAX_POSITION_PCT: %v", err))
	} else if cfg.MaxPositionPct <= 0 || cfg.MaxPositionPct > 1.0 {
		errs = append(errs, "MAX_POSITION_PCT must be in (0.0, 1.0]")
	}

	cfg.MaxDeltaPct, err = getEnvAsFloatRequired("MAX_DELTA_PCT", 0.50)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MAX_DELTA_PCT: %v", err))
	} else if cfg.MaxDeltaPct <= 0 {
		errs = append(errs, "MAX_DELTA_PCT must be positive")
	}

	cfg.MaxDailyTrades, err = getEnvAsIntRequired("MAX_DAILY_TRADES", 10)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MAX_DAILY_TRADES: %v", err))
	} else if cfg.MaxDailyTrades <= 0 {
		errs = append(errs, "MAX_DAILY_TRADES must be positive")
	}

	cfg.MaxDailyLossPct, err = getEnvAsFloatRequired("MAX_DAILY_LOSS_PCT", 0.03)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MAX_DAILY_LOSS_PCT: %v", err))
	} else if cfg.MaxDailyLossPct <= 0 || cfg.MaxDailyLossPct >= 1.0 {
		errs = append(errs, "MAX_DAILY_LOSS_PCT must be between 0.0 and 1.0 (exclusive)")
	}

	cfg.MaxDrawdownPct, err = getEnvAsFloatRequired("MAX_DRAWDOWN_PCT", 0.15)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid MAX_DRAWDOWN_PCT: %v", err))
	} else if cfg.MaxDrawdownPct <= 0 || cfg.MaxDrawdownPct >= 1.0 {
		errs = append(errs, "MAX_DRAWDOWN_PCT must be between 0.0 and 1.0 (exclusive)")
	}

	cfg.MaxContracts = getEnvAsInt("MAX_CONTRACTS", 500)
	if cfg.MaxContracts <= 0 {
		errs = append(errs, "MAX_CONTRACTS must be positive")
	}

	// Cost model
	cfg.SpreadCapture, err = getEnvAsFloatRequired("SPREAD_CAPTURE", 0.5)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid SPREAD_CAPTURE: %v", err))
	} else if cfg.SpreadCapture < 0 || cfg.SpreadCapture > 1.0 {
		errs = append(errs, "SPREAD_CAPTURE must be in [0.0, 1.0]")
	}

	cfg.ImpactBpsPerContract = getEnvAsFloat("IMPACT_BPS_PER_CONTRACT", 2.0)
	if cfg.ImpactBpsPerContract < 0 {
		errs = append(errs, "IMPACT_BPS_PER_CONTRACT cannot be negative")
	}
	cfg.MaxImpactBps = getEnvAsFloat("MAX_IMPACT_BPS", 25.0)
	if cfg.MaxImpactBps < 0 {
		errs = append(errs, "MAX_IMPACT_BPS cannot be negative")
	}
	cfg.CommissionPerContract = getEnvAsFloat("COMMISSION_PER_CONTRACT", 0.65)
	cfg.RegulatoryFeePerContract = getEnvAsFloat("REGULATORY_FEE_PER_CONTRACT", 0.02)
	cfg.MinCommission = getEnvAsFloat("MIN_COMMISSION", 1.00)
	if cfg.CommissionPerContract < 0 || cfg.RegulatoryFeePerContract < 0 || cfg.MinCommission < 0 {
		errs = append(errs, "commission settings cannot be negative")
	}

	// Exit engine
	cfg.HardStopPct, err = getEnvAsFloatRequired("HARD_STOP_PCT", 50.0)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid HARD_STOP_PCT: %v", err))
	} else if cfg.HardStopPct <= 0 || cfg.HardStopPct > 100 {
		errs = append(errs, "HARD_STOP_PCT must be in (0, 100]")
	}

	advisoryTimeoutSeconds := getEnvAsInt("ADVISORY_TIMEOUT_SECONDS", 10)
	if advisoryTimeoutSeconds <= 0 {
		errs = append(errs, "ADVISORY_TIMEOUT_SECONDS must be positive")
	}
	cfg.AdvisoryTimeout = time.Duration(advisoryTimeoutSeconds) * time.Second

	// Backtest validator
	cfg.ProvenTradeThreshold = getEnvAsInt("PROVEN_TRADE_THRESHOLD", 10)
	if cfg.ProvenTradeThreshold <= 0 {
		errs = append(errs, "PROVEN_TRADE_THRESHOLD must be positive")
	}
	cfg.MinWinRate = getEnvAsFloat("MIN_WIN_RATE", 0.40)
	if cfg.MinWinRate < 0 || cfg.MinWinRate >= 1.0 {
		errs = append(errs, "MIN_WIN_RATE must be in [0.0, 1.0)")
	}

	// Scheduling
	tickSeconds := getEnvAsInt("TICK_INTERVAL_SECONDS", 60)
	if tickSeconds <= 0 {
		errs = append(errs, "TICK_INTERVAL_SECONDS must be positive")
	}
	cfg.TickInterval = time.Duration(tickSeconds) * time.Second

	requestTimeoutSeconds := getEnvAsInt("REQUEST_TIMEOUT_SECONDS", 10)
	if requestTimeoutSeconds <= 0 {
		errs = append(errs, "REQUEST_TIMEOUT_SECONDS must be positive")
	}
	cfg.RequestTimeout = time.Duration(requestTimeoutSeconds) * time.Second

	// External services
	cfg.MarketDataURL = getEnv("MARKET_DATA_URL", "")
	if cfg.MarketDataURL == "" {
		errs = append(errs, "MARKET_DATA_URL must be set")
	}
	cfg.MarketDataAPIKey = getEnv("MARKET_DATA_API_KEY", "")
	cfg.AdvisorURL = getEnv("ADVISOR_URL", "") // Empty means no advisory; exits use fallback rules only
	cfg.WebhookURL = getEnv("WEBHOOK_URL", "")
	cfg.MetricsAddr = getEnv("METRICS_ADDR", ":9090")

	// Database
	cfg.DBPath = getEnv("DB_PATH", "./data/gamma_trade_bot.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	// Logging
	logLevelStr := getEnv("LOG_LEVEL", "INFO")
	cfg.LogLevel = logger.ParseLevel(logLevelStr)

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}

	return cfg, nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsIntRequired(key string, defaultValue int) (int, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		// Use default if env var is not set at all
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		// Return error if env var is set but invalid
		return 0, fmt.Errorf("invalid integer value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloatRequired(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}
