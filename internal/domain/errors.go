package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrLockHeld          = errors.New("lock already held")
	ErrInvalidParams     = errors.New("invalid parameters")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrCalibrationFailed = errors.New("lmsr calibration did not converge")

	// Venue error taxonomy. Only ErrVenueUnavailable is transient and worth
	// retrying; the rest are terminal for the affected leg.
	ErrVenueUnavailable      = errors.New("venue unavailable")
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
	ErrSlippageExceeded      = errors.New("slippage exceeded")
	ErrInsufficientShares    = errors.New("insufficient shares")
)

// VenueError wraps a venue taxonomy sentinel with the venue and market it
// concerns. Errors stay attached to the smallest entity involved: a leg-level
// venue error never becomes a slip-level failure on its own.
type VenueError struct {
	VenueID  string
	MarketID string
	Op       string // "quote", "buy", "sell", "claim"
	Err      error
}

func (e *VenueError) Error() string {
	return fmt.Sprintf("venue %s market %s: %s: %v", e.VenueID, e.MarketID, e.Op, e.Err)
}

func (e *VenueError) Unwrap() error { return e.Err }

// Transient reports whether the wrapped error is worth retrying with backoff.
func (e *VenueError) Transient() bool {
	return errors.Is(e.Err, ErrVenueUnavailable)
}

// TransitionError reports a rejected slip status change.
type TransitionError struct {
	SlipID string
	From   SlipStatus
	To     SlipStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("slip %s: invalid transition %s -> %s", e.SlipID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }
