package exception

import "errors"

// Signal decode errors
var (
	ErrSignalEmptyPayload      = errors.New("signal: empty payload")
	ErrSignalMalformed         = errors.New("signal: malformed payload")
	ErrSignalMissingField      = errors.New("signal: missing required field")
	ErrSignalInvalidAction     = errors.New("signal: invalid action")
	ErrSignalInvalidConfidence = errors.New("signal: confidence out of range")
	ErrSignalUnknownType       = errors.New("signal: unknown message type")
	ErrSignalHold              = errors.New("signal: hold action")
)
