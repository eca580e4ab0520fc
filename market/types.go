package market

import (
	"time"

	"github.com/shopspring/decimal"
)

// Instrument describes a tradable symbol. Instruments are immutable once
// listed on a feed.
type Instrument struct {
	Symbol  string
	Name    string
	LotSize int64
}

// Quote is the published snapshot for one instrument. A quote is replaced
// wholesale on every update and never patched field by field, so a copy
// handed to a reader is always self-consistent.
type Quote struct {
	Symbol    string
	Last      decimal.Decimal
	Bid       decimal.Decimal
	Ask       decimal.Decimal
	Volume    int64
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Timestamp time.Time
}
