package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"brokersim/config"
	"brokersim/engine"
	"brokersim/ledger"
	"brokersim/market"
	"brokersim/server"
)

func main() {
	configPath := flag.String("config", "", "path to TOML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}
	if addr := os.Getenv("LISTEN_ADDR"); addr != "" {
		cfg.Server.ListenAddr = addr
	}
	if token := os.Getenv("AUTH_TOKEN"); token != "" {
		cfg.Server.AuthToken = token
	}

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	feed := market.NewFeed(market.Config{
		Spread:     bps(cfg.Market.SpreadBps),
		VolumeStep: cfg.Market.VolumeStep,
	}, logger.Named("feed"))
	for _, inst := range cfg.Instruments {
		err := feed.AddInstrument(market.Instrument{
			Symbol:  inst.Symbol,
			Name:    inst.Name,
			LotSize: inst.LotSize,
		}, decimal.NewFromFloat(inst.InitialPrice))
		if err != nil {
			logger.Fatal("listing instrument failed", zap.String("symbol", inst.Symbol), zap.Error(err))
		}
	}

	ldg := ledger.New()
	for _, acct := range cfg.Accounts {
		account, err := ldg.CreateAccount(acct.ID)
		if err != nil {
			logger.Fatal("creating account failed", zap.String("account", acct.ID), zap.Error(err))
		}
		if acct.OpeningCash > 0 {
			if _, err := account.Deposit(decimal.NewFromFloat(acct.OpeningCash)); err != nil {
				logger.Fatal("funding account failed", zap.String("account", acct.ID), zap.Error(err))
			}
		}
	}

	broker := engine.NewBroker(engine.MatcherConfig{
		Interval: cfg.Matcher.Interval.Duration,
	}, feed, ldg, logger.Named("engine"))

	updater := market.NewUpdater(feed, market.UpdaterConfig{
		Interval: cfg.Market.TickInterval.Duration,
		MaxStep:  float64(cfg.Market.MaxStepBps) / 10000,
		Seed:     cfg.Market.Seed,
	}, logger.Named("updater"))

	if cfg.Market.OpenOnStart {
		if err := broker.OpenMarket(); err != nil {
			logger.Fatal("opening market failed", zap.Error(err))
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go updater.Start(ctx)
	go broker.Matcher().Start(ctx)

	srv := server.New(server.Config{
		ListenAddr: cfg.Server.ListenAddr,
		AuthToken:  cfg.Server.AuthToken,
		CORSOrigin: cfg.Server.CORSOrigin,
	}, broker, feed, logger.Named("server"))

	if err := srv.ListenAndServe(ctx); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	if cfg.Environment == "dev" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func bps(v int64) decimal.Decimal {
	return decimal.NewFromInt(v).Div(decimal.NewFromInt(10000))
}
