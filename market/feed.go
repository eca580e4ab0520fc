package market

import (
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrInstrumentNotFound = errors.New("instrument not found")
	ErrInstrumentListed   = errors.New("instrument already listed")
	ErrInvalidInstrument  = errors.New("instrument symbol and lot size are required")
	ErrInvalidPrice       = errors.New("price must be positive")
	ErrBadTransition      = errors.New("invalid market status transition")
)

// QuoteFunc receives every new quote published for a subscribed symbol.
type QuoteFunc func(Quote)

// Config controls quote derivation on the feed.
type Config struct {
	// Spread is the relative bid/ask spread applied around last,
	// e.g. 0.01 quotes bid at last*0.995 and ask at last*1.005.
	Spread decimal.Decimal
	// VolumeStep is the synthetic volume added per update.
	VolumeStep int64
}

// NewDefaultConfig returns feed defaults: a 1% spread and 100 shares of
// synthetic volume per tick.
func NewDefaultConfig() Config {
	return Config{
		Spread:     decimal.NewFromFloat(0.01),
		VolumeStep: 100,
	}
}

// Feed holds the instrument catalog and the current quote per symbol.
type Feed struct {
	cfg Config
	log *zap.Logger

	mu          sync.RWMutex
	status      Status
	instruments map[string]Instrument
	quotes      map[string]Quote
	subs        map[string][]QuoteFunc

	now func() time.Time
}

// NewFeed builds an empty feed in PRE_OPEN.
func NewFeed(cfg Config, log *zap.Logger) *Feed {
	return &Feed{
		cfg:         cfg,
		log:         log,
		status:      StatusPreOpen,
		instruments: make(map[string]Instrument),
		quotes:      make(map[string]Quote),
		subs:        make(map[string][]QuoteFunc),
		now:         time.Now,
	}
}

// AddInstrument lists an instrument and publishes its opening quote.
func (f *Feed) AddInstrument(inst Instrument, initialPrice decimal.Decimal) error {
	if inst.Symbol == "" || inst.LotSize <= 0 {
		return ErrInvalidInstrument
	}
	if initialPrice.Sign() <= 0 {
		return ErrInvalidPrice
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.instruments[inst.Symbol]; ok {
		return errors.Wrap(ErrInstrumentListed, inst.Symbol)
	}
	f.instruments[inst.Symbol] = inst
	bid, ask := f.derive(initialPrice)
	f.quotes[inst.Symbol] = Quote{
		Symbol:    inst.Symbol,
		Last:      initialPrice,
		Bid:       bid,
		Ask:       ask,
		Open:      initialPrice,
		High:      initialPrice,
		Low:       initialPrice,
		Close:     initialPrice,
		Timestamp: f.now(),
	}
	return nil
}

// Instrument returns the listed instrument for a symbol.
func (f *Feed) Instrument(symbol string) (Instrument, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	inst, ok := f.instruments[symbol]
	if !ok {
		return Instrument{}, errors.Wrap(ErrInstrumentNotFound, symbol)
	}
	return inst, nil
}

// Instruments returns all listed instruments sorted by symbol.
func (f *Feed) Instruments() []Instrument {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]Instrument, 0, len(f.instruments))
	for _, inst := range f.instruments {
		out = append(out, inst)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// GetQuote returns the current quote snapshot for a symbol.
func (f *Feed) GetQuote(symbol string) (Quote, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	q, ok := f.quotes[symbol]
	if !ok {
		return Quote{}, errors.Wrap(ErrInstrumentNotFound, symbol)
	}
	return q, nil
}

// Update publishes a replacement quote with the given last price, deriving
// bid/ask from the configured spread and rolling volume/high/low forward.
// Subscribers for the symbol are notified in registration order; a panicking
// subscriber is isolated and does not stop delivery to the others.
func (f *Feed) Update(symbol string, last decimal.Decimal) error {
	if last.Sign() <= 0 {
		return ErrInvalidPrice
	}

	f.mu.Lock()
	prev, ok := f.quotes[symbol]
	if !ok {
		f.mu.Unlock()
		return errors.Wrap(ErrInstrumentNotFound, symbol)
	}
	q := prev
	q.Last = last
	q.Bid, q.Ask = f.derive(last)
	q.Volume += f.cfg.VolumeStep
	if last.GreaterThan(q.High) {
		q.High = last
	}
	if last.LessThan(q.Low) {
		q.Low = last
	}
	q.Timestamp = f.now()
	f.quotes[symbol] = q
	subs := append([]QuoteFunc(nil), f.subs[symbol]...)
	f.mu.Unlock()

	for _, fn := range subs {
		f.notify(fn, q)
	}
	return nil
}

// Subscribe registers fn for every future quote published for symbol.
func (f *Feed) Subscribe(symbol string, fn QuoteFunc) {
	f.mu.Lock()
	f.subs[symbol] = append(f.subs[symbol], fn)
	f.mu.Unlock()
}

// Status returns the current session state.
func (f *Feed) Status() Status {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.status
}

// SetStatus moves the session state machine. Only operator code calls this.
func (f *Feed) SetStatus(to Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.status == to {
		return nil
	}
	if !f.status.canTransition(to) {
		return errors.Wrapf(ErrBadTransition, "%s -> %s", f.status, to)
	}
	f.log.Info("market status changed",
		zap.Stringer("from", f.status),
		zap.Stringer("to", to),
	)
	f.status = to
	return nil
}

func (f *Feed) derive(last decimal.Decimal) (bid, ask decimal.Decimal) {
	half := last.Mul(f.cfg.Spread).Div(decimal.NewFromInt(2))
	return last.Sub(half), last.Add(half)
}

func (f *Feed) notify(fn QuoteFunc, q Quote) {
	defer func() {
		if r := recover(); r != nil {
			f.log.Error("quote subscriber panicked",
				zap.String("symbol", q.Symbol),
				zap.Any("panic", r),
			)
		}
	}()
	fn(q)
}
