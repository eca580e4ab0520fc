package engine

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"brokersim/ledger"
	"brokersim/market"
	"brokersim/metrics"
)

// MatcherConfig controls the matching sweep.
type MatcherConfig struct {
	// Interval between sweeps over the pending set.
	Interval time.Duration
}

// NewDefaultMatcherConfig returns a 500ms sweep interval.
func NewDefaultMatcherConfig() MatcherConfig {
	return MatcherConfig{Interval: 500 * time.Millisecond}
}

// Execution records one settled fill, published for observers.
type Execution struct {
	OrderID   string
	AccountID string
	Symbol    string
	Side      Side
	Quantity  int64
	Price     decimal.Decimal
	Timestamp time.Time
}

// Matcher reconciles the pending-order set against the feed on a fixed
// interval and executes orders whose trigger fires.
type Matcher struct {
	cfg     MatcherConfig
	log     *zap.Logger
	feed    *market.Feed
	ledger  *ledger.Ledger
	pending *PendingSet

	executions chan Execution
	now        func() time.Time
}

func NewMatcher(cfg MatcherConfig, feed *market.Feed, ldg *ledger.Ledger, pending *PendingSet, log *zap.Logger) *Matcher {
	return &Matcher{
		cfg:        cfg,
		log:        log,
		feed:       feed,
		ledger:     ldg,
		pending:    pending,
		executions: make(chan Execution, 64),
		now:        time.Now,
	}
}

// Executions exposes the stream of settled fills. Slow consumers drop
// events rather than stall the sweep.
func (m *Matcher) Executions() <-chan Execution {
	return m.executions
}

// Start runs sweeps until the context is canceled.
func (m *Matcher) Start(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// Sweep evaluates every pending order against its current quote and
// executes the triggered ones. It returns the number of executions, and is
// a no-op unless the market is open.
func (m *Matcher) Sweep() int {
	if m.feed.Status() != market.StatusOpen {
		return 0
	}

	executed := 0
	for _, ord := range m.pending.Active() {
		q, err := m.feed.GetQuote(ord.Symbol)
		if err != nil {
			continue
		}
		price, ok := ord.trigger(q)
		if !ok {
			continue
		}
		if m.execute(ord, price) {
			executed++
		}
	}
	return executed
}

// execute settles the order's full remaining quantity at price. The ledger
// application and the order's fill-state update happen inside the order's
// critical section, so a concurrent cancel either runs before (and the
// trade is skipped) or after (and fails on the terminal state), never
// interleaved. A transient ledger failure leaves the order untouched for
// re-evaluation on the next sweep.
func (m *Matcher) execute(ord *Order, price decimal.Decimal) bool {
	acct, err := m.ledger.Account(ord.AccountID)
	if err != nil {
		m.log.Error("pending order references unknown account",
			zap.String("order", ord.ID),
			zap.String("account", ord.AccountID),
		)
		return false
	}

	ord.mu.Lock()
	if ord.status != StatusOpen && ord.status != StatusPartiallyFilled {
		ord.mu.Unlock()
		m.pending.Remove(ord.ID)
		return false
	}
	quantity := ord.Quantity - ord.filled

	if _, err := acct.ApplyTrade(tradeSide(ord.Side), ord.Symbol, quantity, price); err != nil {
		ord.mu.Unlock()
		m.log.Debug("execution deferred",
			zap.String("order", ord.ID),
			zap.Error(err),
		)
		return false
	}

	// Cannot fail: the status and remaining quantity were checked above and
	// the lock has been held throughout.
	_ = ord.fillLocked(quantity, price)
	terminal := ord.status.Terminal()
	ord.mu.Unlock()

	if terminal {
		m.pending.Remove(ord.ID)
	}
	metrics.ExecutionRecorded(ord.Symbol)
	m.publish(Execution{
		OrderID:   ord.ID,
		AccountID: ord.AccountID,
		Symbol:    ord.Symbol,
		Side:      ord.Side,
		Quantity:  quantity,
		Price:     price,
		Timestamp: m.now(),
	})
	m.log.Info("order executed",
		zap.String("order", ord.ID),
		zap.String("symbol", ord.Symbol),
		zap.Stringer("side", ord.Side),
		zap.Int64("quantity", quantity),
		zap.String("price", price.String()),
	)
	return true
}

func (m *Matcher) publish(ex Execution) {
	select {
	case m.executions <- ex:
	default:
	}
}

func tradeSide(s Side) ledger.TradeSide {
	if s == Buy {
		return ledger.TradeBuy
	}
	return ledger.TradeSell
}
