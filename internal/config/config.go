package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// ConfirmPolicy selects when a settlement counts as successful.
type ConfirmPolicy string

const (
	// ConfirmBroadcast: success once the node accepts the raw transaction.
	ConfirmBroadcast ConfirmPolicy = "broadcast"
	// ConfirmMined: success only after a receipt is observed.
	ConfirmMined ConfirmPolicy = "mined"
)

// Config holds all application configuration.
// Values are loaded from environment variables with sensible defaults.
type Config struct {
	// Server
	Port     int
	LogLevel string

	// Chat webhook
	WebhookVerifyToken string

	// Persistence. Empty DatabaseURL switches to the in-memory store
	// (local development and tests).
	DatabaseURL string

	// Lending policy
	MinLoanAmount       float64
	MaxLoanAmount       float64
	BaseInterestRate    float64
	SavingsInterestRate float64
	DefaultLoanMonths   int
	MinEligibleScore    int

	// Scoring
	ScoreCacheTTL time.Duration

	// Chain / settlement
	ChainRPCURL     string
	ChainPrivateKey string // hex-encoded service custody key
	ContractAddress string
	GasLimit        uint64
	GasPriceGwei    int64
	// UnitsPerRupee divides rupee amounts into the chain's native unit.
	// A documented placeholder rate, not a live exchange rate.
	UnitsPerRupee int64
	SettleTimeout time.Duration
	SettlePolicy  ConfirmPolicy

	// Resilience
	MaxRetries     int
	InitialBackoff time.Duration
	MaxConcurrency int

	// Observability
	OTLPEndpoint string
}

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		WebhookVerifyToken: getEnv("WEBHOOK_VERIFY_TOKEN", ""),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		MinLoanAmount:       getEnvFloat("MIN_LOAN_AMOUNT", 500),
		MaxLoanAmount:       getEnvFloat("MAX_LOAN_AMOUNT", 5000),
		BaseInterestRate:    getEnvFloat("BASE_INTEREST_RATE", 0.03),
		SavingsInterestRate: getEnvFloat("SAVINGS_INTEREST_RATE", 0.08),
		DefaultLoanMonths:   getEnvInt("DEFAULT_LOAN_MONTHS", 6),
		MinEligibleScore:    getEnvInt("MIN_ELIGIBLE_SCORE", 400),

		ScoreCacheTTL: getEnvDuration("SCORE_CACHE_TTL", 5*time.Minute),

		ChainRPCURL:     getEnv("CHAIN_RPC_URL", "https://rpc-amoy.polygon.technology"),
		ChainPrivateKey: getEnv("CHAIN_PRIVATE_KEY", ""),
		ContractAddress: getEnv("CONTRACT_ADDRESS", ""),
		GasLimit:        uint64(getEnvInt("CHAIN_GAS_LIMIT", 100000)),
		GasPriceGwei:    int64(getEnvInt("CHAIN_GAS_PRICE_GWEI", 20)),
		UnitsPerRupee:   int64(getEnvInt("CHAIN_UNITS_PER_RUPEE", 1000)),
		SettleTimeout:   getEnvDuration("SETTLE_TIMEOUT", 15*time.Second),
		SettlePolicy:    ConfirmPolicy(getEnv("SETTLE_CONFIRM_POLICY", string(ConfirmBroadcast))),

		MaxRetries:     getEnvInt("MAX_RETRIES", 3),
		InitialBackoff: getEnvDuration("INITIAL_BACKOFF", 100*time.Millisecond),
		MaxConcurrency: getEnvInt("MAX_CONCURRENCY", 50),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
	}
}

// Validate rejects configurations the engine cannot run with. A missing
// contract address is deliberately NOT fatal: the settlement gateway then
// fails closed, returning unsuccessful results instead of panicking.
func (c *Config) Validate() error {
	if c.MinLoanAmount <= 0 || c.MaxLoanAmount <= c.MinLoanAmount {
		return fmt.Errorf("loan bounds invalid: min=%.2f max=%.2f", c.MinLoanAmount, c.MaxLoanAmount)
	}
	if c.BaseInterestRate < 0 {
		return fmt.Errorf("base interest rate must be >= 0, got %f", c.BaseInterestRate)
	}
	if c.DefaultLoanMonths <= 0 {
		return fmt.Errorf("default loan duration must be > 0 months, got %d", c.DefaultLoanMonths)
	}
	if c.UnitsPerRupee <= 0 {
		return fmt.Errorf("units-per-rupee conversion must be > 0, got %d", c.UnitsPerRupee)
	}
	if c.SettlePolicy != ConfirmBroadcast && c.SettlePolicy != ConfirmMined {
		return fmt.Errorf("unknown settle confirm policy %q", c.SettlePolicy)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
