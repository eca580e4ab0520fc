package market

import (
	"context"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// UpdaterConfig controls the random-walk price process.
type UpdaterConfig struct {
	// Interval between perturbation passes.
	Interval time.Duration
	// MaxStep is the largest relative move per tick, e.g. 0.02 keeps every
	// step within ±2% of the previous last.
	MaxStep float64
	// Seed for the random stream; zero seeds from the wall clock.
	Seed int64
}

// NewDefaultUpdaterConfig returns a 500ms tick with ±1% steps.
func NewDefaultUpdaterConfig() UpdaterConfig {
	return UpdaterConfig{
		Interval: 500 * time.Millisecond,
		MaxStep:  0.01,
	}
}

// Updater perturbs every listed instrument's price on a fixed interval
// while the market is open. It is purely a data source: it contains no
// execution logic.
type Updater struct {
	feed *Feed
	cfg  UpdaterConfig
	log  *zap.Logger
	rng  *rand.Rand
}

func NewUpdater(feed *Feed, cfg UpdaterConfig, log *zap.Logger) *Updater {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Updater{
		feed: feed,
		cfg:  cfg,
		log:  log,
		rng:  rand.New(rand.NewSource(seed)),
	}
}

// Start runs perturbation passes until the context is canceled.
func (u *Updater) Start(ctx context.Context) {
	ticker := time.NewTicker(u.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			u.Step()
		}
	}
}

// Step applies one bounded random perturbation to every instrument. It is a
// no-op unless the market is open.
func (u *Updater) Step() {
	if u.feed.Status() != StatusOpen {
		return
	}
	for _, inst := range u.feed.Instruments() {
		q, err := u.feed.GetQuote(inst.Symbol)
		if err != nil {
			continue
		}
		next := u.perturb(q.Last)
		if err := u.feed.Update(inst.Symbol, next); err != nil {
			u.log.Warn("price update failed",
				zap.String("symbol", inst.Symbol),
				zap.Error(err),
			)
		}
	}
}

func (u *Updater) perturb(last decimal.Decimal) decimal.Decimal {
	step := (u.rng.Float64()*2 - 1) * u.cfg.MaxStep
	next := last.Mul(decimal.NewFromFloat(1 + step)).Round(2)
	if next.Sign() <= 0 {
		return last
	}
	return next
}
