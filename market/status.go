package market

// Status represents the trading session state. Admission and matching both
// refuse to proceed unless the market is StatusOpen.
type Status int

const (
	// StatusPreOpen is the session state before trading starts.
	StatusPreOpen Status = iota
	// StatusOpen allows order admission, matching and price updates.
	StatusOpen
	// StatusClosed halts admission and matching; resting orders wait.
	StatusClosed
	// StatusHoliday is a non-trading day.
	StatusHoliday
)

func (s Status) String() string {
	switch s {
	case StatusPreOpen:
		return "PRE_OPEN"
	case StatusOpen:
		return "OPEN"
	case StatusClosed:
		return "CLOSED"
	case StatusHoliday:
		return "HOLIDAY"
	default:
		return "UNKNOWN"
	}
}

var statusTransitions = map[Status][]Status{
	StatusPreOpen: {StatusOpen, StatusHoliday, StatusClosed},
	StatusOpen:    {StatusClosed},
	StatusClosed:  {StatusPreOpen, StatusOpen, StatusHoliday},
	StatusHoliday: {StatusPreOpen, StatusOpen},
}

func (s Status) canTransition(to Status) bool {
	for _, next := range statusTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}
