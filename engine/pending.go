package engine

import (
	"sort"
	"sync"

	"brokersim/metrics"
)

// PendingSet holds the non-terminal orders awaiting matching. It has its
// own lock, independent of any account lock, so a slow account never blocks
// the matching sweep over other accounts' orders.
type PendingSet struct {
	mu     sync.RWMutex
	orders map[string]*Order
}

func NewPendingSet() *PendingSet {
	return &PendingSet{orders: make(map[string]*Order)}
}

// Add admits an order to the set.
func (p *PendingSet) Add(ord *Order) {
	p.mu.Lock()
	p.orders[ord.ID] = ord
	p.mu.Unlock()
	metrics.PendingOrdersInc()
}

// Remove takes an order out of the set once it is terminal.
func (p *PendingSet) Remove(id string) {
	p.mu.Lock()
	_, ok := p.orders[id]
	delete(p.orders, id)
	p.mu.Unlock()
	if ok {
		metrics.PendingOrdersDec()
	}
}

// Get looks up a pending order by id.
func (p *PendingSet) Get(id string) (*Order, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ord, ok := p.orders[id]
	return ord, ok
}

// Active returns the current members sorted by creation time, oldest first.
// The slice is a snapshot; the set may change while the caller iterates.
func (p *PendingSet) Active() []*Order {
	p.mu.RLock()
	out := make([]*Order, 0, len(p.orders))
	for _, ord := range p.orders {
		out = append(out, ord)
	}
	p.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// ByAccount returns the pending orders belonging to one account.
func (p *PendingSet) ByAccount(accountID string) []*Order {
	p.mu.RLock()
	out := make([]*Order, 0)
	for _, ord := range p.orders {
		if ord.AccountID == accountID {
			out = append(out, ord)
		}
	}
	p.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Len reports the number of pending orders.
func (p *PendingSet) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.orders)
}
