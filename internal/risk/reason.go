package risk

// Reason identifies why a signal was rejected.
type Reason uint8

const (
	ReasonNone Reason = iota
	ReasonLowConfidence
	ReasonSymbolMismatch
	ReasonSpreadTooWide
	ReasonLowVolatility
	ReasonPositionLimit
	ReasonCircuitBreaker
	ReasonTooFrequent
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonLowConfidence:
		return "low confidence"
	case ReasonSymbolMismatch:
		return "symbol mismatch"
	case ReasonSpreadTooWide:
		return "spread too wide"
	case ReasonLowVolatility:
		return "low volatility"
	case ReasonPositionLimit:
		return "position limit"
	case ReasonCircuitBreaker:
		return "circuit breaker engaged"
	case ReasonTooFrequent:
		return "signal too frequent"
	default:
		return "unknown"
	}
}

// Reasons lists every rejection reason.
func Reasons() []Reason {
	return []Reason{
		ReasonLowConfidence,
		ReasonSymbolMismatch,
		ReasonSpreadTooWide,
		ReasonLowVolatility,
		ReasonPositionLimit,
		ReasonCircuitBreaker,
		ReasonTooFrequent,
	}
}

// Decision is the outcome of a validation.
type Decision struct {
	Reason Reason
}

// Accepted reports whether the signal passed every check.
func (d Decision) Accepted() bool {
	return d.Reason == ReasonNone
}

func accept() Decision {
	return Decision{Reason: ReasonNone}
}

func reject(r Reason) Decision {
	return Decision{Reason: r}
}
