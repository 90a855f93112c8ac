package service

import "errors"

// Integrity faults. These are surfaced to the caller, never turned into outcomes.
var (
	ErrLedgerCorrupted = errors.New("ticket ledger holds a negative ticket count")
	ErrWinnerMissing   = errors.New("selected winner does not resolve to a participant")
	ErrInvalidDuration = errors.New("draw duration must not be negative")
)
