package model

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the transport layer.
type Kind int

// Error kinds.
const (
	KindInternal Kind = iota
	KindAuth
	KindValidation
	KindState
	KindUpstream
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindValidation:
		return "validation"
	case KindState:
		return "state"
	case KindUpstream:
		return "upstream"
	case KindNotFound:
		return "not_found"
	default:
		return "internal"
	}
}

// Sentinel errors shared by the domain packages.
var (
	ErrInvalidSignature    = errors.New("invalid signature")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrMissingParticipant  = errors.New("participant address required")
	ErrUnknownWeek         = errors.New("unknown curriculum week")
	ErrNotMilestone        = errors.New("not a milestone week")
	ErrWeekNotCompleted    = errors.New("week not completed")
	ErrAlreadyRewarded     = errors.New("already rewarded")
	ErrNothingToClaim      = errors.New("nothing to claim")
	ErrClaimInProgress     = errors.New("claim in progress")
	ErrMilestoneIncomplete = errors.New("milestone prerequisites incomplete")
	ErrNotLinked           = errors.New("identity not linked")
	ErrTransferFailed      = errors.New("token transfer failed")
	ErrTransferUnconfirmed = errors.New("token transfer not confirmed")
	ErrNotFound            = errors.New("not found")
	ErrSubmissionDisabled  = errors.New("deliverable submission not configured")
)

// Error carries the failing operation and its Kind alongside the cause.
type Error struct {
	Op   string
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// E wraps err with op and kind. A nil err yields nil.
func E(op string, kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Kind: kind, Err: err}
}

// Ef wraps a formatted message around a sentinel so errors.Is keeps working.
func Ef(op string, kind Kind, sentinel error, format string, args ...any) error {
	return &Error{Op: op, Kind: kind, Err: fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))}
}

// KindOf reports the Kind of the outermost *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, ErrNotFound) {
		return KindNotFound
	}
	return KindInternal
}
