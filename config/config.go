package config

import (
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

type Config struct {
	// Server configuration
	Port        string
	Environment string

	// Redis configuration
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// PubNub configuration (realtime notifications)
	PubNubPublishKey   string
	PubNubSubscribeKey string
	PubNubSecretKey    string

	// Settlement listener configuration (payment provider channel)
	SettlementSubKey    string
	SettlementSecret    string
	SettlementUUID      string
	SettlementChannel   string
	SettlementCipherKey string

	// Credential configuration
	CredentialEncKey string // hex encoded, 32 bytes
	CredentialMACKey string
	CredentialTTL    time.Duration

	// Bid configuration
	BidClockSkew  time.Duration
	SweepInterval time.Duration

	// Increment tier configuration
	TierLowCeiling decimal.Decimal
	TierMidCeiling decimal.Decimal
	TierLowStep    decimal.Decimal
	TierMidPercent decimal.Decimal
	TierHighStep   decimal.Decimal

	// Rate limiting
	ScanRatePerMinute int
	BidRatePerMinute  int

	// Monitoring
	EnableMetrics bool
	MetricsPort   string
}

func LoadConfig() *Config {
	return &Config{
		// Server
		Port:        getEnv("PORT", "8090"),
		Environment: getEnv("ENVIRONMENT", "development"),

		// Redis
		RedisURL:      getEnv("REDIS_URL", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		// PubNub
		PubNubPublishKey:   getEnv("PUBNUB_PUBLISH_KEY", ""),
		PubNubSubscribeKey: getEnv("PUBNUB_SUBSCRIBE_KEY", ""),
		PubNubSecretKey:    getEnv("PUBNUB_SECRET_KEY", ""),

		// Settlement listener
		SettlementSubKey:    getEnv("SETTLEMENT_SUB_KEY", ""),
		SettlementSecret:    getEnv("SETTLEMENT_SECRET", ""),
		SettlementUUID:      getEnv("SETTLEMENT_UUID", "ticket-exchange"),
		SettlementChannel:   getEnv("SETTLEMENT_CHANNEL", "settlement-notifications"),
		SettlementCipherKey: getEnv("SETTLEMENT_CIPHER_KEY", ""),

		// Credentials: short TTL, the code is shown once at a gate
		CredentialEncKey: getEnv("CREDENTIAL_ENC_KEY", ""),
		CredentialMACKey: getEnv("CREDENTIAL_MAC_KEY", ""),
		CredentialTTL:    getEnvAsDuration("CREDENTIAL_TTL", "5m"),

		// Bids
		BidClockSkew:  getEnvAsDuration("BID_CLOCK_SKEW", "2m"),
		SweepInterval: getEnvAsDuration("AUCTION_SWEEP_INTERVAL", "30s"),

		// Increment tiers
		TierLowCeiling: getEnvAsDecimal("TIER_LOW_CEILING", "0.5"),
		TierMidCeiling: getEnvAsDecimal("TIER_MID_CEILING", "5"),
		TierLowStep:    getEnvAsDecimal("TIER_LOW_STEP", "0.01"),
		TierMidPercent: getEnvAsDecimal("TIER_MID_PERCENT", "5"),
		TierHighStep:   getEnvAsDecimal("TIER_HIGH_STEP", "0.5"),

		// Rate limiting
		ScanRatePerMinute: getEnvAsInt("SCAN_RATE_PER_MINUTE", 60),
		BidRatePerMinute:  getEnvAsInt("BID_RATE_PER_MINUTE", 30),

		// Monitoring
		EnableMetrics: getEnvAsBool("ENABLE_METRICS", true),
		MetricsPort:   getEnv("METRICS_PORT", "9090"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	// If parsing fails, try to parse default value
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}

func getEnvAsDecimal(key string, defaultValue string) decimal.Decimal {
	valueStr := getEnv(key, defaultValue)
	if value, err := decimal.NewFromString(valueStr); err == nil {
		return value
	}
	value, _ := decimal.NewFromString(defaultValue)
	return value
}
