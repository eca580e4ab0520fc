package engine

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"brokersim/ledger"
	"brokersim/market"
	"brokersim/metrics"
)

// OrderRequest is the admission payload for a new order. LimitPrice and
// StopPrice are consulted only for the order types that need them.
type OrderRequest struct {
	AccountID  string
	Symbol     string
	Side       Side
	Type       OrderType
	Quantity   int64
	LimitPrice decimal.Decimal
	StopPrice  decimal.Decimal
}

// Broker is the service object owning orders, the pending set and the
// matcher, wired to a feed and a ledger. It is the single admission point:
// an order only ever reaches the pending set through PlaceOrder.
type Broker struct {
	log     *zap.Logger
	feed    *market.Feed
	ledger  *ledger.Ledger
	pending *PendingSet
	matcher *Matcher

	mu     sync.RWMutex
	orders map[string]*Order

	newID func() string
	now   func() time.Time
}

func NewBroker(cfg MatcherConfig, feed *market.Feed, ldg *ledger.Ledger, log *zap.Logger) *Broker {
	pending := NewPendingSet()
	return &Broker{
		log:     log,
		feed:    feed,
		ledger:  ldg,
		pending: pending,
		matcher: NewMatcher(cfg, feed, ldg, pending, log),
		orders:  make(map[string]*Order),
		newID:   uuid.NewString,
		now:     time.Now,
	}
}

// Matcher returns the broker's matching engine, for starting its loop and
// consuming its execution stream.
func (b *Broker) Matcher() *Matcher {
	return b.matcher
}

// PlaceOrder validates the request against account state and market status
// and either admits the order as OPEN or rejects it permanently. The
// returned snapshot is non-nil whenever an order was constructed; on
// rejection it carries StatusRejected alongside the error.
func (b *Broker) PlaceOrder(req OrderRequest) (Snapshot, error) {
	ord := &Order{
		ID:         b.newID(),
		AccountID:  req.AccountID,
		Symbol:     req.Symbol,
		Side:       req.Side,
		Type:       req.Type,
		Quantity:   req.Quantity,
		LimitPrice: req.LimitPrice,
		StopPrice:  req.StopPrice,
		CreatedAt:  b.now(),
		status:     StatusPending,
	}

	if err := b.validate(req); err != nil {
		ord.reject()
		b.remember(ord)
		metrics.OrderRejected()
		b.log.Info("order rejected",
			zap.String("order", ord.ID),
			zap.String("account", req.AccountID),
			zap.String("symbol", req.Symbol),
			zap.Error(err),
		)
		return ord.Snapshot(), err
	}

	ord.open()
	b.remember(ord)
	b.pending.Add(ord)
	metrics.OrderPlaced()
	b.log.Info("order admitted",
		zap.String("order", ord.ID),
		zap.String("account", req.AccountID),
		zap.String("symbol", req.Symbol),
		zap.Stringer("side", req.Side),
		zap.Stringer("type", req.Type),
		zap.Int64("quantity", req.Quantity),
	)
	return ord.Snapshot(), nil
}

func (b *Broker) validate(req OrderRequest) error {
	if b.feed.Status() != market.StatusOpen {
		return ErrMarketClosed
	}
	inst, err := b.feed.Instrument(req.Symbol)
	if err != nil {
		return err
	}
	if req.Quantity <= 0 || req.Quantity%inst.LotSize != 0 {
		return errors.Wrapf(ErrInvalidQuantity, "lot size %d", inst.LotSize)
	}

	switch req.Type {
	case Market:
	case Limit:
		if req.LimitPrice.Sign() <= 0 {
			return ErrMissingLimitPrice
		}
	case StopLoss:
		if req.StopPrice.Sign() <= 0 {
			return ErrMissingStopPrice
		}
	case StopLimit:
		if req.LimitPrice.Sign() <= 0 {
			return ErrMissingLimitPrice
		}
		if req.StopPrice.Sign() <= 0 {
			return ErrMissingStopPrice
		}
	default:
		return errors.Errorf("unknown order type %d", req.Type)
	}

	acct, err := b.ledger.Account(req.AccountID)
	if err != nil {
		return err
	}
	quote, err := b.feed.GetQuote(req.Symbol)
	if err != nil {
		return err
	}

	if req.Side == Buy {
		cost := quote.Ask.Mul(decimal.NewFromInt(req.Quantity))
		if acct.Cash().LessThan(cost) {
			return errors.Wrapf(ledger.ErrInsufficientFunds, "need %s", cost)
		}
		return nil
	}
	h, ok := acct.Holding(req.Symbol)
	if !ok || h.Quantity < req.Quantity {
		return errors.Wrapf(ledger.ErrInsufficientHoldings, "need %d", req.Quantity)
	}
	return nil
}

// CancelOrder voids an order's unexecuted remainder and drops it from the
// pending set. A cancel that loses the race against a concurrent execution
// fails cleanly on the terminal state; callers should inspect the order's
// final status rather than trust this return value after the fact.
func (b *Broker) CancelOrder(id string) error {
	ord, ok := b.order(id)
	if !ok {
		return errors.Wrap(ErrOrderNotFound, id)
	}
	if err := ord.Cancel(); err != nil {
		return err
	}
	b.pending.Remove(id)
	metrics.OrderCancelled()
	b.log.Info("order cancelled", zap.String("order", id))
	return nil
}

// GetOrder returns a snapshot of any known order, terminal ones included.
func (b *Broker) GetOrder(id string) (Snapshot, error) {
	ord, ok := b.order(id)
	if !ok {
		return Snapshot{}, errors.Wrap(ErrOrderNotFound, id)
	}
	return ord.Snapshot(), nil
}

// ListOpenOrders returns the account's non-terminal orders, oldest first.
func (b *Broker) ListOpenOrders(accountID string) []Snapshot {
	pending := b.pending.ByAccount(accountID)
	out := make([]Snapshot, 0, len(pending))
	for _, ord := range pending {
		snap := ord.Snapshot()
		if snap.Status == StatusOpen || snap.Status == StatusPartiallyFilled {
			out = append(out, snap)
		}
	}
	return out
}

// Deposit credits an account.
func (b *Broker) Deposit(accountID string, amount decimal.Decimal) (ledger.Transaction, error) {
	acct, err := b.ledger.Account(accountID)
	if err != nil {
		return ledger.Transaction{}, err
	}
	return acct.Deposit(amount)
}

// Withdraw debits an account.
func (b *Broker) Withdraw(accountID string, amount decimal.Decimal) (ledger.Transaction, error) {
	acct, err := b.ledger.Account(accountID)
	if err != nil {
		return ledger.Transaction{}, err
	}
	return acct.Withdraw(amount)
}

// GetPortfolio values an account against the feed.
func (b *Broker) GetPortfolio(accountID string) (ledger.Portfolio, error) {
	acct, err := b.ledger.Account(accountID)
	if err != nil {
		return ledger.Portfolio{}, err
	}
	return acct.Portfolio(b.feed), nil
}

// OpenMarket moves the session to OPEN, enabling admission and matching.
func (b *Broker) OpenMarket() error {
	return b.feed.SetStatus(market.StatusOpen)
}

// CloseMarket halts admission and matching; pending orders wait untouched.
func (b *Broker) CloseMarket() error {
	return b.feed.SetStatus(market.StatusClosed)
}

func (b *Broker) remember(ord *Order) {
	b.mu.Lock()
	b.orders[ord.ID] = ord
	b.mu.Unlock()
}

func (b *Broker) order(id string) (*Order, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ord, ok := b.orders[id]
	return ord, ok
}
