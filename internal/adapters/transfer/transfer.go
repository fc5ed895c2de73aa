// Package transfer provides clients for the reward token transfer primitive.
//
// A client sends an amount to one address and blocks until the transfer is
// confirmed. Clients never retry: a transfer whose outcome is unknown must be
// reconciled by an operator, not resent.
package transfer

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/homework/internal/domain/model"
)

// Modes accepted by New.
const (
	ModeSimulated = "simulated"
	ModeHTTP      = "http"
)

// Client transfers reward tokens.
type Client interface {
	Transfer(ctx context.Context, to string, amount int64) (string, error)
}

// ErrInvalidRequest is returned before any transfer is attempted.
var ErrInvalidRequest = errors.New("invalid transfer request")

func validate(to string, amount int64) error {
	if to == "" {
		return fmt.Errorf("%w: empty recipient", ErrInvalidRequest)
	}
	if amount <= 0 {
		return fmt.Errorf("%w: amount %d", ErrInvalidRequest, amount)
	}
	return nil
}

// unconfirmed marks errors where the signer may or may not have sent the tokens.
func unconfirmed(err error) error {
	return fmt.Errorf("%w: %w", model.ErrTransferUnconfirmed, err)
}
