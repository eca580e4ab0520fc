package engine

// Side represents the direction of an order.
type Side int

const (
	// Buy indicates a bid order.
	Buy Side = iota
	// Sell indicates an ask order.
	Sell
)

func (s Side) String() string {
	if s == Buy {
		return "BUY"
	}
	return "SELL"
}

// OrderType represents the trigger style for an order.
type OrderType int

const (
	// Market orders trigger on every quote.
	Market OrderType = iota
	// Limit orders trigger when the quote crosses the limit price.
	Limit
	// StopLoss orders arm when last crosses the stop price and then execute
	// at the touch.
	StopLoss
	// StopLimit orders arm like a stop and then execute like a limit.
	StopLimit
)

func (t OrderType) String() string {
	switch t {
	case Market:
		return "MARKET"
	case Limit:
		return "LIMIT"
	case StopLoss:
		return "STOP_LOSS"
	case StopLimit:
		return "STOP_LIMIT"
	default:
		return "UNKNOWN"
	}
}

// Status is the order lifecycle state. Filled, Cancelled and Rejected are
// terminal.
type Status int

const (
	StatusPending Status = iota
	StatusRejected
	StatusOpen
	StatusPartiallyFilled
	StatusFilled
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "PENDING"
	case StatusRejected:
		return "REJECTED"
	case StatusOpen:
		return "OPEN"
	case StatusPartiallyFilled:
		return "PARTIALLY_FILLED"
	case StatusFilled:
		return "FILLED"
	case StatusCancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusFilled || s == StatusCancelled || s == StatusRejected
}
