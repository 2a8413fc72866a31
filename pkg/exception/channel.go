package exception

import "errors"

// Signal channel errors
var (
	ErrChannelClosed       = errors.New("channel: closed")
	ErrChannelNotConnected = errors.New("channel: not connected")
	ErrChannelBusy         = errors.New("channel: outbound queue full")
	ErrChannelNilDialer    = errors.New("channel: nil dialer")
	ErrChannelUnknownKind  = errors.New("channel: unknown transport kind")
)
