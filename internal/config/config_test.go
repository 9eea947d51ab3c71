package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "ETH_PRIVATE_KEY", "CONFIRMATIONS", "ODDS_TOLERANCE", "REDIS_ADDR", "ARBITRUM_SPORTS_VENUE"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	assert.Equal(t, "8080", cfg.Port)
	assert.Empty(t, cfg.PrivateKey)
	assert.Empty(t, cfg.RedisAddr)
	assert.Equal(t, 2*time.Second, cfg.OnChainTimeout)
	assert.Equal(t, 5*time.Second, cfg.IndexerTimeout)
	assert.Equal(t, 8*time.Second, cfg.RESTTimeout)
	assert.Equal(t, 2*time.Minute, cfg.WaitBudget)
	assert.Equal(t, uint64(1), cfg.Confirmations)
	assert.Equal(t, uint64(20), cfg.GasBufferPercent)
	assert.True(t, decimal.RequireFromString("0.05").Equal(cfg.OddsTolerance))
	assert.Equal(t, 3, cfg.BreakerFailures)
	assert.Equal(t, VenueOvertime, cfg.ArbitrumSportsVenue)
}

func TestArbitrumSportsVenue(t *testing.T) {
	tests := []struct {
		value string
		want  string
	}{
		{value: "", want: VenueOvertime},
		{value: "overtime", want: VenueOvertime},
		{value: "Azuro", want: VenueAzuro},
		{value: "thales", want: VenueOvertime},
	}
	for _, tt := range tests {
		t.Setenv("ARBITRUM_SPORTS_VENUE", tt.value)
		assert.Equal(t, tt.want, Load().ArbitrumSportsVenue, tt.value)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("WAIT_BUDGET", "30s")
	t.Setenv("CONFIRMATIONS", "3")
	t.Setenv("ODDS_TOLERANCE", "0.1")
	t.Setenv("PARTNER_RPS", "2.5")

	cfg := Load()
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 30*time.Second, cfg.WaitBudget)
	assert.Equal(t, uint64(3), cfg.Confirmations)
	assert.True(t, decimal.RequireFromString("0.1").Equal(cfg.OddsTolerance))
	assert.Equal(t, 2.5, cfg.PartnerRPS)
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("T_INT", "nope")
	t.Setenv("T_BOOL", "true")
	t.Setenv("T_DUR", "bad")
	t.Setenv("T_FLOAT", "1.5")

	tests := []struct {
		name string
		got  interface{}
		want interface{}
	}{
		{"invalid int falls back", GetEnvAsInt("T_INT", 7), 7},
		{"bool parsed", GetEnvAsBool("T_BOOL", false), true},
		{"missing bool default", GetEnvAsBool("T_MISSING", true), true},
		{"invalid duration falls back", GetEnvAsDuration("T_DUR", time.Second), time.Second},
		{"float parsed", GetEnvAsFloat("T_FLOAT", 0), 1.5},
		{"missing string default", GetEnvOrDefault("T_MISSING", "x"), "x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.got)
		})
	}
}
