package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType labels one ledger entry.
type TransactionType string

const (
	TxDeposit    TransactionType = "DEPOSIT"
	TxWithdrawal TransactionType = "WITHDRAWAL"
	TxBuy        TransactionType = "BUY"
	TxSell       TransactionType = "SELL"
)

// Transaction is the immutable record of one executed trade or cash
// movement. It is created once, appended to the account log and never
// mutated afterwards.
type Transaction struct {
	ID        string
	AccountID string
	Type      TransactionType
	Symbol    string
	Quantity  int64
	Price     decimal.Decimal
	// Amount is the signed cash delta: positive credits the account.
	Amount    decimal.Decimal
	Timestamp time.Time
}
