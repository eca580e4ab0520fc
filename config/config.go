// Package config ties together the service's configuration, loadable from a
// TOML file on top of defaults.
package config

import (
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

type ServerConfig struct {
	ListenAddr string `toml:"listen_addr"`
	AuthToken  string `toml:"auth_token"`
	CORSOrigin string `toml:"cors_origin"`
}

type MarketConfig struct {
	// SpreadBps is the relative bid/ask spread in basis points.
	SpreadBps int64 `toml:"spread_bps"`
	// VolumeStep is the synthetic volume added per quote update.
	VolumeStep int64 `toml:"volume_step"`
	// TickInterval is the price-perturbation period.
	TickInterval Duration `toml:"tick_interval"`
	// MaxStepBps bounds each random price move, in basis points.
	MaxStepBps int64 `toml:"max_step_bps"`
	// Seed fixes the random stream; zero seeds from the clock.
	Seed int64 `toml:"seed"`
	// OpenOnStart moves the market straight to OPEN at boot.
	OpenOnStart bool `toml:"open_on_start"`
}

type MatcherConfig struct {
	Interval Duration `toml:"interval"`
}

type LoggingConfig struct {
	// Environment selects the zap preset: "dev" or "prod".
	Environment string `toml:"environment"`
}

type InstrumentConfig struct {
	Symbol       string  `toml:"symbol"`
	Name         string  `toml:"name"`
	LotSize      int64   `toml:"lot_size"`
	InitialPrice float64 `toml:"initial_price"`
}

type AccountConfig struct {
	ID          string  `toml:"id"`
	OpeningCash float64 `toml:"opening_cash"`
}

// Config aggregates every component's configuration.
type Config struct {
	Server      ServerConfig       `toml:"server"`
	Market      MarketConfig       `toml:"market"`
	Matcher     MatcherConfig      `toml:"matcher"`
	Logging     LoggingConfig      `toml:"logging"`
	Instruments []InstrumentConfig `toml:"instruments"`
	Accounts    []AccountConfig    `toml:"accounts"`
}

// NewDefaultConfig returns a runnable demo configuration: two instruments,
// two funded accounts, 500ms ticks and an open market.
func NewDefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			ListenAddr: ":8080",
			CORSOrigin: "*",
		},
		Market: MarketConfig{
			SpreadBps:    100,
			VolumeStep:   100,
			TickInterval: Duration{500 * time.Millisecond},
			MaxStepBps:   100,
			OpenOnStart:  true,
		},
		Matcher: MatcherConfig{
			Interval: Duration{500 * time.Millisecond},
		},
		Logging: LoggingConfig{
			Environment: "dev",
		},
		Instruments: []InstrumentConfig{
			{Symbol: "ACME", Name: "Acme Corp", LotSize: 1, InitialPrice: 100},
			{Symbol: "GLOBEX", Name: "Globex Industries", LotSize: 10, InitialPrice: 42.50},
		},
		Accounts: []AccountConfig{
			{ID: "alice", OpeningCash: 100000},
			{ID: "bob", OpeningCash: 100000},
		},
	}
}

// Load reads a TOML file over the defaults. An empty path returns the
// defaults unchanged.
func Load(path string) (Config, error) {
	cfg := NewDefaultConfig()
	if path == "" {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, errors.Wrapf(err, "loading config %s", path)
	}
	return cfg, nil
}
