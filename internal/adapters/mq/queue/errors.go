package queue

import "errors"

// Sentinel errors for publishers backed by a queue.
var (
	ErrFull   = errors.New("ledger event queue full")
	ErrClosed = errors.New("ledger event queue closed")
)
