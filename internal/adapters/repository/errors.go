package repository

import (
	"errors"

	"github.com/okian/homework/internal/domain/model"
)

// Sentinel kinds for store errors.
var (
	// ErrNotFound aliases the domain sentinel so callers can match either.
	ErrNotFound       = model.ErrNotFound
	ErrInvalidLimit   = errors.New("invalid leaderboard limit")
	ErrInvalidRecord  = errors.New("invalid ledger record")
	ErrUnknownDriver  = errors.New("unknown store driver")
	ErrCorruptedValue = errors.New("corrupted stored value")
)
