package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Log.Level)

	// Scorer weights sum to 100.
	sum := cfg.Scorer.ExpectedReturnWeight +
		cfg.Scorer.SuccessProbWeight +
		cfg.Scorer.RelevanceWeight +
		cfg.Scorer.CostEfficiencyWeight +
		cfg.Scorer.PersonaFitWeight
	assert.InDelta(t, 100, sum, 1e-9)

	assert.InDelta(t, 60, cfg.Decision.Threshold, 1e-9)
	assert.Equal(t, 72, cfg.Decision.CooldownHours)
	assert.Equal(t, 300, cfg.Ledger.ReservationTTLSecs)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("OUTREACH_DECISION_THRESHOLD", "75")
	t.Setenv("OUTREACH_STORE_DRIVER", "postgres")

	cfg, err := Load()
	require.NoError(t, err)

	assert.InDelta(t, 75, cfg.Decision.Threshold, 1e-9)
	assert.Equal(t, "postgres", cfg.Store.Driver)
}

func TestInitLoggerBadLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "nope", Format: "json"})
	assert.Error(t, err)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	assert.NoError(t, err)
}
