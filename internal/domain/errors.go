package domain

import "errors"

// Validation errors are rejected before any I/O
var (
	ErrInvalidAmount   = errors.New("amount or quantity must be greater than zero")
	ErrInvalidArgument = errors.New("invalid argument")
)

// Business-rule violations, surfaced verbatim and never retried
var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrNoShortSelling    = errors.New("no position to sell: short selling is not allowed")
	ErrOversell          = errors.New("sell quantity exceeds held quantity")
)

// Price source errors
var (
	ErrNotFound         = errors.New("symbol not found")
	ErrRateLimited      = errors.New("rate limited by price source")
	ErrUnavailable      = errors.New("price source unavailable")
	ErrPriceUnavailable = errors.New("price unavailable")
)

// ErrCalendarUnavailable aborts a snapshot backfill run; the next run retries from the same cursor
var ErrCalendarUnavailable = errors.New("trading calendar unavailable")

// IsValidation reports whether err was caused by bad input
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidAmount) || errors.Is(err, ErrInvalidArgument)
}

// IsBusinessRule reports whether err is an accounting invariant violation
func IsBusinessRule(err error) bool {
	return errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrNoShortSelling) ||
		errors.Is(err, ErrOversell)
}
