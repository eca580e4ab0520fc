package ledger

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"brokersim/market"
)

var (
	ErrInvalidAmount        = errors.New("amount must be positive")
	ErrInvalidQuantity      = errors.New("quantity must be positive")
	ErrInvalidPrice         = errors.New("price must be positive")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrInsufficientHoldings = errors.New("insufficient holdings")
)

// TradeSide is the direction of a trade applied to an account.
type TradeSide int

const (
	TradeBuy TradeSide = iota
	TradeSell
)

// Holding is one position: share quantity and weighted-average cost basis.
// A holding is removed from the account when its quantity reaches zero.
type Holding struct {
	Symbol   string
	Quantity int64
	AvgPrice decimal.Decimal
}

// Account owns a cash balance, a holdings map and an append-only
// transaction log. One mutex guards all three together: any mutation that
// touches more than one of them happens in a single critical section, so a
// concurrent reader never observes partial state.
type Account struct {
	id string

	mu       sync.Mutex
	cash     decimal.Decimal
	holdings map[string]*Holding
	txns     []Transaction

	now func() time.Time
}

// NewAccount builds an account with zero cash. Fund it with Deposit so the
// transaction log stays complete.
func NewAccount(id string) *Account {
	return &Account{
		id:       id,
		cash:     decimal.Zero,
		holdings: make(map[string]*Holding),
		now:      time.Now,
	}
}

func (a *Account) ID() string { return a.id }

// Deposit credits cash and appends a transaction.
func (a *Account) Deposit(amount decimal.Decimal) (Transaction, error) {
	if amount.Sign() <= 0 {
		return Transaction{}, ErrInvalidAmount
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cash = a.cash.Add(amount)
	return a.appendLocked(TxDeposit, "", 0, decimal.Zero, amount), nil
}

// Withdraw debits cash. It fails with no state change when the amount
// exceeds the balance.
func (a *Account) Withdraw(amount decimal.Decimal) (Transaction, error) {
	if amount.Sign() <= 0 {
		return Transaction{}, ErrInvalidAmount
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cash.LessThan(amount) {
		return Transaction{}, ErrInsufficientFunds
	}
	a.cash = a.cash.Sub(amount)
	return a.appendLocked(TxWithdrawal, "", 0, decimal.Zero, amount.Neg()), nil
}

// ApplyTrade atomically settles one execution against the account. A buy
// debits cash and folds the fill into the holding's weighted-average cost
// basis; a sell reduces the holding (removing it at zero) and credits cash.
// Exactly one transaction is appended per successful call.
func (a *Account) ApplyTrade(side TradeSide, symbol string, quantity int64, price decimal.Decimal) (Transaction, error) {
	if quantity <= 0 {
		return Transaction{}, ErrInvalidQuantity
	}
	if price.Sign() <= 0 {
		return Transaction{}, ErrInvalidPrice
	}
	gross := price.Mul(decimal.NewFromInt(quantity))

	a.mu.Lock()
	defer a.mu.Unlock()

	switch side {
	case TradeBuy:
		if a.cash.LessThan(gross) {
			return Transaction{}, ErrInsufficientFunds
		}
		a.cash = a.cash.Sub(gross)
		h, ok := a.holdings[symbol]
		if !ok {
			h = &Holding{Symbol: symbol}
			a.holdings[symbol] = h
		}
		oldCost := h.AvgPrice.Mul(decimal.NewFromInt(h.Quantity))
		h.Quantity += quantity
		h.AvgPrice = oldCost.Add(gross).Div(decimal.NewFromInt(h.Quantity))
		return a.appendLocked(TxBuy, symbol, quantity, price, gross.Neg()), nil

	case TradeSell:
		h, ok := a.holdings[symbol]
		if !ok || h.Quantity < quantity {
			return Transaction{}, ErrInsufficientHoldings
		}
		h.Quantity -= quantity
		if h.Quantity == 0 {
			delete(a.holdings, symbol)
		}
		a.cash = a.cash.Add(gross)
		return a.appendLocked(TxSell, symbol, quantity, price, gross), nil

	default:
		return Transaction{}, errors.Errorf("unknown trade side %d", side)
	}
}

// Cash returns the current balance.
func (a *Account) Cash() decimal.Decimal {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cash
}

// Holding returns the position for one symbol, if any.
func (a *Account) Holding(symbol string) (Holding, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	h, ok := a.holdings[symbol]
	if !ok {
		return Holding{}, false
	}
	return *h, true
}

// Holdings returns a snapshot of all positions sorted by symbol.
func (a *Account) Holdings() []Holding {
	a.mu.Lock()
	out := make([]Holding, 0, len(a.holdings))
	for _, h := range a.holdings {
		out = append(out, *h)
	}
	a.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Transactions returns a copy of the ordered transaction log.
func (a *Account) Transactions() []Transaction {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Transaction(nil), a.txns...)
}

func (a *Account) appendLocked(typ TransactionType, symbol string, quantity int64, price, amount decimal.Decimal) Transaction {
	tx := Transaction{
		ID:        uuid.NewString(),
		AccountID: a.id,
		Type:      typ,
		Symbol:    symbol,
		Quantity:  quantity,
		Price:     price,
		Amount:    amount,
		Timestamp: a.now(),
	}
	a.txns = append(a.txns, tx)
	return tx
}

// QuoteSource prices holdings for portfolio valuation.
type QuoteSource interface {
	GetQuote(symbol string) (market.Quote, error)
}

// PortfolioValue is cash plus quantity*last over all holdings. The holdings
// snapshot is taken under the account lock; pricing happens outside it, so
// prices may be marginally stale relative to the snapshot. That is fine for
// a point-in-time estimate.
func (a *Account) PortfolioValue(src QuoteSource) decimal.Decimal {
	return a.Portfolio(src).TotalValue
}

// HoldingView is a priced position inside a portfolio snapshot.
type HoldingView struct {
	Holding
	LastPrice     decimal.Decimal
	MarketValue   decimal.Decimal
	UnrealizedPnL decimal.Decimal
}

// Portfolio is a point-in-time valuation of one account.
type Portfolio struct {
	AccountID  string
	Cash       decimal.Decimal
	Holdings   []HoldingView
	TotalValue decimal.Decimal
	PnL        decimal.Decimal
}

// Portfolio values the account against the quote source. Holdings with no
// quote are carried at cost.
func (a *Account) Portfolio(src QuoteSource) Portfolio {
	a.mu.Lock()
	cash := a.cash
	holdings := make([]Holding, 0, len(a.holdings))
	for _, h := range a.holdings {
		holdings = append(holdings, *h)
	}
	a.mu.Unlock()
	sort.Slice(holdings, func(i, j int) bool { return holdings[i].Symbol < holdings[j].Symbol })

	p := Portfolio{
		AccountID:  a.id,
		Cash:       cash,
		Holdings:   make([]HoldingView, 0, len(holdings)),
		TotalValue: cash,
	}
	for _, h := range holdings {
		last := h.AvgPrice
		if q, err := src.GetQuote(h.Symbol); err == nil {
			last = q.Last
		}
		qty := decimal.NewFromInt(h.Quantity)
		view := HoldingView{
			Holding:       h,
			LastPrice:     last,
			MarketValue:   last.Mul(qty),
			UnrealizedPnL: last.Sub(h.AvgPrice).Mul(qty),
		}
		p.Holdings = append(p.Holdings, view)
		p.TotalValue = p.TotalValue.Add(view.MarketValue)
		p.PnL = p.PnL.Add(view.UnrealizedPnL)
	}
	return p
}
