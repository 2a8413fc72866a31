package exception

import "errors"

// Order errors
var (
	ErrOrderNilBroker       = errors.New("order: nil broker")
	ErrOrderInvalidRequest  = errors.New("order: invalid request")
	ErrOrderInvalidLots     = errors.New("order: invalid lot size")
	ErrOrderHalted          = errors.New("order: circuit breaker engaged")
	ErrOrderDuplicateTicket = errors.New("order: ticket already tracked")
	ErrOrderUnknownTicket   = errors.New("order: ticket not tracked")
	ErrOrderDecodeResponse  = errors.New("order: decode response body")
	ErrOrderEmptyTicket     = errors.New("order: empty response ticket")
	ErrOrderPartialRejected = errors.New("order: partial close rejected")
	ErrOrderBadTransition   = errors.New("order: invalid exit stage transition")
	ErrOrderStopLoosened    = errors.New("order: stop loss would loosen")
)
