package engine

import "github.com/pkg/errors"

var (
	ErrMarketClosed         = errors.New("market is not open")
	ErrOrderNotFound        = errors.New("order not found")
	ErrOrderTerminal        = errors.New("order is in a terminal state")
	ErrInvalidQuantity      = errors.New("quantity must be a positive multiple of the lot size")
	ErrInvalidPrice         = errors.New("price must be positive")
	ErrMissingLimitPrice    = errors.New("limit price is required for this order type")
	ErrMissingStopPrice     = errors.New("stop price is required for this order type")
	ErrFillExceedsRemaining = errors.New("fill exceeds remaining quantity")
)
