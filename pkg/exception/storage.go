package exception

import "errors"

// Storage errors
var (
	ErrStorageQueueFull   = errors.New("storage: queue full")
	ErrStorageQueueClosed = errors.New("storage: queue closed")
	ErrStorageNotFound    = errors.New("storage: snapshot not found")
	ErrStorageClosed      = errors.New("storage: closed")
	ErrStorageBadMagic    = errors.New("storage: invalid record magic")
	ErrStorageBadVersion  = errors.New("storage: unsupported record version")
	ErrStorageChecksum    = errors.New("storage: record checksum mismatch")
	ErrStorageTooLarge    = errors.New("storage: record payload too large")
)
