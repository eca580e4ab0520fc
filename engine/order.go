package engine

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"brokersim/market"
)

// Order is a request to trade with a small state machine:
//
//	PENDING -> {REJECTED | OPEN} -> {PARTIALLY_FILLED -> FILLED | CANCELLED}
//
// The identifying fields are fixed at creation. The mutable fill state is
// guarded by a per-order mutex so a concurrent cancel and a concurrent fill
// serialize correctly and exactly one wins.
type Order struct {
	ID         string
	AccountID  string
	Symbol     string
	Side       Side
	Type       OrderType
	Quantity   int64
	LimitPrice decimal.Decimal
	StopPrice  decimal.Decimal
	CreatedAt  time.Time

	mu        sync.Mutex
	filled    int64
	avgPrice  decimal.Decimal
	status    Status
	updatedAt time.Time
}

// Snapshot is an immutable copy of an order's state at one instant.
type Snapshot struct {
	ID           string
	AccountID    string
	Symbol       string
	Side         Side
	Type         OrderType
	Quantity     int64
	LimitPrice   decimal.Decimal
	StopPrice    decimal.Decimal
	Filled       int64
	AvgFillPrice decimal.Decimal
	Status       Status
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Snapshot copies the order under its lock.
func (o *Order) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return Snapshot{
		ID:           o.ID,
		AccountID:    o.AccountID,
		Symbol:       o.Symbol,
		Side:         o.Side,
		Type:         o.Type,
		Quantity:     o.Quantity,
		LimitPrice:   o.LimitPrice,
		StopPrice:    o.StopPrice,
		Filled:       o.filled,
		AvgFillPrice: o.avgPrice,
		Status:       o.status,
		CreatedAt:    o.CreatedAt,
		UpdatedAt:    o.updatedAt,
	}
}

// Status returns the current lifecycle state.
func (o *Order) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status
}

// Remaining returns the unexecuted quantity.
func (o *Order) Remaining() int64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.Quantity - o.filled
}

// Fill records an execution of quantity shares at price. The remaining
// check, the running-average recomputation and the status transition happen
// in one critical section.
func (o *Order) Fill(quantity int64, price decimal.Decimal) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.fillLocked(quantity, price)
}

// fillLocked requires o.mu to be held.
func (o *Order) fillLocked(quantity int64, price decimal.Decimal) error {
	if o.status != StatusOpen && o.status != StatusPartiallyFilled {
		return ErrOrderTerminal
	}
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	if price.Sign() <= 0 {
		return ErrInvalidPrice
	}
	if quantity > o.Quantity-o.filled {
		return ErrFillExceedsRemaining
	}

	total := o.avgPrice.Mul(decimal.NewFromInt(o.filled)).Add(price.Mul(decimal.NewFromInt(quantity)))
	o.filled += quantity
	o.avgPrice = total.Div(decimal.NewFromInt(o.filled))
	if o.filled == o.Quantity {
		o.status = StatusFilled
	} else {
		o.status = StatusPartiallyFilled
	}
	o.updatedAt = time.Now()
	return nil
}

// Cancel voids the unexecuted remainder. It is permitted only from OPEN or
// PARTIALLY_FILLED; already-executed quantity is left untouched.
func (o *Order) Cancel() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.status != StatusOpen && o.status != StatusPartiallyFilled {
		return ErrOrderTerminal
	}
	o.status = StatusCancelled
	o.updatedAt = time.Now()
	return nil
}

// open admits the order; only the gateway calls this, before the order is
// shared with the matcher.
func (o *Order) open() {
	o.mu.Lock()
	o.status = StatusOpen
	o.updatedAt = time.Now()
	o.mu.Unlock()
}

// reject terminates the order before admission.
func (o *Order) reject() {
	o.mu.Lock()
	o.status = StatusRejected
	o.updatedAt = time.Now()
	o.mu.Unlock()
}

// trigger evaluates the order against a quote and returns the execution
// price when the trigger condition holds. One exhaustive rule per order
// type:
//
//	MARKET      always triggers, at ask (buy) / bid (sell)
//	LIMIT       buy when ask <= limit, sell when bid >= limit, at limit
//	STOP_LOSS   sell when last <= stop at bid, buy when last >= stop at ask
//	STOP_LIMIT  arms like a stop, then executes like a limit
func (o *Order) trigger(q market.Quote) (decimal.Decimal, bool) {
	switch o.Type {
	case Market:
		if o.Side == Buy {
			return q.Ask, true
		}
		return q.Bid, true

	case Limit:
		return o.limitTrigger(q)

	case StopLoss:
		if !o.stopArmed(q) {
			return decimal.Zero, false
		}
		if o.Side == Buy {
			return q.Ask, true
		}
		return q.Bid, true

	case StopLimit:
		if !o.stopArmed(q) {
			return decimal.Zero, false
		}
		return o.limitTrigger(q)
	}
	return decimal.Zero, false
}

func (o *Order) limitTrigger(q market.Quote) (decimal.Decimal, bool) {
	if o.Side == Buy {
		if q.Ask.LessThanOrEqual(o.LimitPrice) {
			return o.LimitPrice, true
		}
		return decimal.Zero, false
	}
	if q.Bid.GreaterThanOrEqual(o.LimitPrice) {
		return o.LimitPrice, true
	}
	return decimal.Zero, false
}

func (o *Order) stopArmed(q market.Quote) bool {
	if o.Side == Sell {
		return q.Last.LessThanOrEqual(o.StopPrice)
	}
	return q.Last.GreaterThanOrEqual(o.StopPrice)
}
