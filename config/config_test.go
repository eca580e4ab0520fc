package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsAreRunnable(t *testing.T) {
	cfg := NewDefaultConfig()
	assert.Equal(t, ":8080", cfg.Server.ListenAddr)
	assert.Equal(t, 500*time.Millisecond, cfg.Matcher.Interval.Duration)
	assert.Equal(t, 500*time.Millisecond, cfg.Market.TickInterval.Duration)
	assert.True(t, cfg.Market.OpenOnStart)
	assert.NotEmpty(t, cfg.Instruments)
	assert.NotEmpty(t, cfg.Accounts)
	for _, inst := range cfg.Instruments {
		assert.Greater(t, inst.LotSize, int64(0))
		assert.Greater(t, inst.InitialPrice, 0.0)
	}
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, NewDefaultConfig(), cfg)
}

func TestLoadOverlaysFileOnDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "brokersim.toml")
	content := `
[server]
listen_addr = ":9090"
auth_token = "sekrit"

[market]
tick_interval = "250ms"
max_step_bps = 50

[matcher]
interval = "100ms"

[[instruments]]
symbol = "TEST"
name = "Test Co"
lot_size = 5
initial_price = 12.5

[[accounts]]
id = "carol"
opening_cash = 2500.0
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.ListenAddr)
	assert.Equal(t, "sekrit", cfg.Server.AuthToken)
	assert.Equal(t, 250*time.Millisecond, cfg.Market.TickInterval.Duration)
	assert.EqualValues(t, 50, cfg.Market.MaxStepBps)
	assert.Equal(t, 100*time.Millisecond, cfg.Matcher.Interval.Duration)

	require.Len(t, cfg.Instruments, 1)
	assert.Equal(t, "TEST", cfg.Instruments[0].Symbol)
	assert.EqualValues(t, 5, cfg.Instruments[0].LotSize)
	require.Len(t, cfg.Accounts, 1)
	assert.Equal(t, "carol", cfg.Accounts[0].ID)

	// Untouched sections keep their defaults.
	assert.EqualValues(t, 100, cfg.Market.SpreadBps)
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}
