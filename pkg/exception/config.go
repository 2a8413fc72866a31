package exception

import "errors"

// Config errors
var (
	ErrConfigInvalid     = errors.New("config: invalid value")
	ErrConfigEmptySymbol = errors.New("config: engine symbol is empty")
)
