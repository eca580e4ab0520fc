package ledger

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrAccountExists   = errors.New("account already exists")
	ErrInvalidAccount  = errors.New("account id is required")
)

// Ledger owns every account in the service. It only guards the account map;
// each account carries its own lock for balance mutations.
type Ledger struct {
	mu       sync.RWMutex
	accounts map[string]*Account
}

func New() *Ledger {
	return &Ledger{accounts: make(map[string]*Account)}
}

// CreateAccount registers a new empty account.
func (l *Ledger) CreateAccount(id string) (*Account, error) {
	if id == "" {
		return nil, ErrInvalidAccount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.accounts[id]; ok {
		return nil, errors.Wrap(ErrAccountExists, id)
	}
	acct := NewAccount(id)
	l.accounts[id] = acct
	return acct, nil
}

// Account looks up an account by id.
func (l *Ledger) Account(id string) (*Account, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	acct, ok := l.accounts[id]
	if !ok {
		return nil, errors.Wrap(ErrAccountNotFound, id)
	}
	return acct, nil
}

// Accounts returns all accounts sorted by id.
func (l *Ledger) Accounts() []*Account {
	l.mu.RLock()
	out := make([]*Account, 0, len(l.accounts))
	for _, acct := range l.accounts {
		out = append(out, acct)
	}
	l.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}
