package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Config is centralized process configuration.
// Keep infra values and governance thresholds here and pass typed config
// into builders.
type Config struct {
	ServiceName string
	PostgresDSN string

	// LargeChangePoints is the per-member equity change, in percentage
	// points, above which validation raises a warning.
	LargeChangePoints decimal.Decimal
	// TotalDeviationPoints is how far a proposed post-update equity total
	// may drift from 100 before validation hard-fails.
	TotalDeviationPoints decimal.Decimal
	// ReconciliationTolerance is the maximum gap, in currency units,
	// between a distribution's allocated sum and its pool.
	ReconciliationTolerance decimal.Decimal
	// EquityTotalTolerance is the drift from 100% accepted when checking
	// the live member population.
	EquityTotalTolerance decimal.Decimal

	RelayBatchSize int
	RelayInterval  time.Duration
}

func Load() (Config, error) {
	service := os.Getenv("SERVICE_NAME")
	if service == "" {
		service = "equitas"
	}

	return Config{
		ServiceName: service,
		PostgresDSN: os.Getenv("POSTGRES_DSN"),

		LargeChangePoints:       envDecimal("LARGE_CHANGE_POINTS", "10"),
		TotalDeviationPoints:    envDecimal("TOTAL_DEVIATION_POINTS", "1"),
		ReconciliationTolerance: envDecimal("RECONCILIATION_TOLERANCE", "0.10"),
		EquityTotalTolerance:    envDecimal("EQUITY_TOTAL_TOLERANCE", "0.01"),

		RelayBatchSize: envInt("RELAY_BATCH_SIZE", 100),
		RelayInterval:  envDuration("RELAY_INTERVAL", 2*time.Second),
	}, nil
}

func envDecimal(name string, fallback string) decimal.Decimal {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw != "" {
		if value, err := decimal.NewFromString(raw); err == nil {
			return value
		}
	}
	return decimal.RequireFromString(fallback)
}

func envInt(name string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func envDuration(name string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}
