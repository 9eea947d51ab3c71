// Package config provides configuration loading and management for the application.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Config holds all application configuration
type Config struct {
	// HTTP server port
	Port      string
	LogLevel  string
	LogFormat string

	// JSON-RPC endpoints per chain
	ArbitrumRPCURL string
	PolygonRPCURL  string

	// Hex private key for submissions; empty runs read-only
	PrivateKey string

	OvertimeSportsAMM   string
	OvertimeSubgraphURL string
	OvertimeAPIURL      string
	OvertimeAPIKey      string
	AzuroCoreAddress    string
	AzuroSubgraphURL    string
	SubgraphAPIKey      string

	// Azuro deploys separate contracts and subgraphs on Polygon
	AzuroPolygonCoreAddress string
	AzuroPolygonSubgraphURL string

	// ArbitrumSportsVenue selects which provider serves (arbitrum, sports):
	// VenueOvertime or VenueAzuro
	ArbitrumSportsVenue string

	// Per-stage timeouts of the quote cascade
	OnChainTimeout time.Duration
	IndexerTimeout time.Duration
	RESTTimeout    time.Duration
	IndexerMaxAge  time.Duration

	// Executor settings
	WaitBudget       time.Duration
	PollInterval     time.Duration
	Confirmations    uint64
	GasBufferPercent uint64
	OddsTolerance    decimal.Decimal

	PartnerRPS float64

	// Redis address; memory stores when empty
	RedisAddr     string
	RedisPassword string
	QuoteCacheTTL time.Duration
	ExecutionTTL  time.Duration

	// OpenTelemetry endpoint for observability
	OtelEndpoint string

	AuditWebhookURL    string
	AuditWebhookAPIKey string
	AuditBatchSize     int
	AuditInterval      time.Duration

	BreakerFailures int
	BreakerReset    time.Duration

	// Inbound HTTP rate limit
	RequestRPS   float64
	RequestBurst int
}

// Sports venues selectable for Arbitrum
const (
	VenueOvertime = "overtime"
	VenueAzuro    = "azuro"
)

// Load creates a new Config from environment variables. A .env file in the
// working directory is read first when present; real environment wins.
func Load() Config {
	if err := godotenv.Load(); err == nil {
		logrus.Debug("Loaded environment from .env")
	}

	return Config{
		Port:                    GetEnvOrDefault("PORT", "8080"),
		LogLevel:                strings.ToLower(GetEnvOrDefault("LOG_LEVEL", "info")),
		LogFormat:               strings.ToLower(GetEnvOrDefault("LOG_FORMAT", "json")),
		ArbitrumRPCURL:          GetEnvOrDefault("ARBITRUM_RPC_URL", "https://arb1.arbitrum.io/rpc"),
		PolygonRPCURL:           GetEnvOrDefault("POLYGON_RPC_URL", "https://polygon-rpc.com"),
		PrivateKey:              GetEnvOrDefault("ETH_PRIVATE_KEY", ""),
		OvertimeSportsAMM:       GetEnvOrDefault("OVERTIME_SPORTS_AMM", ""),
		OvertimeSubgraphURL:     GetEnvOrDefault("OVERTIME_SUBGRAPH_URL", ""),
		OvertimeAPIURL:          GetEnvOrDefault("OVERTIME_API_URL", ""),
		OvertimeAPIKey:          GetEnvOrDefault("OVERTIME_API_KEY", ""),
		AzuroCoreAddress:        GetEnvOrDefault("AZURO_CORE_ADDRESS", ""),
		AzuroSubgraphURL:        GetEnvOrDefault("AZURO_SUBGRAPH_URL", ""),
		SubgraphAPIKey:          GetEnvOrDefault("SUBGRAPH_API_KEY", ""),
		AzuroPolygonCoreAddress: GetEnvOrDefault("AZURO_POLYGON_CORE_ADDRESS", ""),
		AzuroPolygonSubgraphURL: GetEnvOrDefault("AZURO_POLYGON_SUBGRAPH_URL", ""),
		ArbitrumSportsVenue:     sportsVenue("ARBITRUM_SPORTS_VENUE"),
		OnChainTimeout:          GetEnvAsDuration("ONCHAIN_TIMEOUT", 2*time.Second),
		IndexerTimeout:          GetEnvAsDuration("INDEXER_TIMEOUT", 5*time.Second),
		RESTTimeout:             GetEnvAsDuration("REST_TIMEOUT", 8*time.Second),
		IndexerMaxAge:           GetEnvAsDuration("INDEXER_MAX_AGE", 2*time.Minute),
		WaitBudget:              GetEnvAsDuration("WAIT_BUDGET", 2*time.Minute),
		PollInterval:            GetEnvAsDuration("POLL_INTERVAL", 2*time.Second),
		Confirmations:           uint64(max(GetEnvAsInt("CONFIRMATIONS", 1), 1)),
		GasBufferPercent:        uint64(max(GetEnvAsInt("GAS_BUFFER_PERCENT", 20), 0)),
		OddsTolerance:           GetEnvAsDecimal("ODDS_TOLERANCE", decimal.RequireFromString("0.05")),
		PartnerRPS:              GetEnvAsFloat("PARTNER_RPS", 5),
		RedisAddr:               GetEnvOrDefault("REDIS_ADDR", ""),
		RedisPassword:           GetEnvOrDefault("REDIS_PASSWORD", ""),
		QuoteCacheTTL:           GetEnvAsDuration("QUOTE_CACHE_TTL", 24*time.Hour),
		ExecutionTTL:            GetEnvAsDuration("EXECUTION_TTL", 7*24*time.Hour),
		OtelEndpoint:            GetEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		AuditWebhookURL:         GetEnvOrDefault("AUDIT_WEBHOOK_URL", ""),
		AuditWebhookAPIKey:      GetEnvOrDefault("AUDIT_WEBHOOK_API_KEY", ""),
		AuditBatchSize:          GetEnvAsInt("AUDIT_BATCH_SIZE", 50),
		AuditInterval:           GetEnvAsDuration("AUDIT_INTERVAL", 30*time.Second),
		BreakerFailures:         GetEnvAsInt("BREAKER_FAILURES", 3),
		BreakerReset:            GetEnvAsDuration("BREAKER_RESET", 30*time.Second),
		RequestRPS:              GetEnvAsFloat("REQUEST_RPS", 50),
		RequestBurst:            GetEnvAsInt("REQUEST_BURST", 100),
	}
}

// GetEnv retrieves an environment variable and whether it is set to a non-empty value
func GetEnv(key string) (string, bool) {
	value, exists := os.LookupEnv(key)
	return value, exists && value != ""
}

// GetEnvOrDefault retrieves an environment variable or returns the default value if not set
func GetEnvOrDefault(key, defaultValue string) string {
	if value, exists := GetEnv(key); exists {
		return value
	}
	return defaultValue
}

// GetEnvAsInt retrieves an environment variable as an integer with a default value
func GetEnvAsInt(key string, defaultValue int) int {
	if value, exists := GetEnv(key); exists {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		} else {
			warnInvalid(key, err, defaultValue)
		}
	}
	return defaultValue
}

// GetEnvAsFloat retrieves an environment variable as a float with a default value
func GetEnvAsFloat(key string, defaultValue float64) float64 {
	if value, exists := GetEnv(key); exists {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		} else {
			warnInvalid(key, err, defaultValue)
		}
	}
	return defaultValue
}

// GetEnvAsDecimal retrieves an environment variable as an exact decimal
func GetEnvAsDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value, exists := GetEnv(key); exists {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		} else {
			warnInvalid(key, err, defaultValue)
		}
	}
	return defaultValue
}

// GetEnvAsDuration retrieves an environment variable as a duration with a default value
func GetEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := GetEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		} else {
			warnInvalid(key, err, defaultValue)
		}
	}
	return defaultValue
}

// GetEnvAsBool retrieves an environment variable as a boolean with a default value
func GetEnvAsBool(key string, defaultValue bool) bool {
	if value, exists := GetEnv(key); exists {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		} else {
			warnInvalid(key, err, defaultValue)
		}
	}
	return defaultValue
}

func sportsVenue(key string) string {
	value := strings.ToLower(GetEnvOrDefault(key, VenueOvertime))
	switch value {
	case VenueOvertime, VenueAzuro:
		return value
	}
	logrus.Warnf("Invalid value in %s: %q, using default: %v", key, value, VenueOvertime)
	return VenueOvertime
}

func warnInvalid(key string, err error, defaultValue interface{}) {
	logrus.Warnf("Invalid value in %s: %v, using default: %v", key, err, defaultValue)
}
