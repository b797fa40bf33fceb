// Package domain defines domain-level errors for the marketdata feature.
package domain

import (
	"errors"
	"fmt"
)

// Errors returned while acquiring and normalizing upstream market data.
// Per-record and per-source errors are isolated by callers; only ErrMarketDataUnavailable is fatal
// for a scan.
var (
	// ErrUpstreamUnavailable indicates that one feed source failed (HTTP error, timeout, open breaker).
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrMarketDataUnavailable indicates that every source failed or returned no quotes.
	ErrMarketDataUnavailable = errors.New("market data unavailable")

	// ErrMalformedRecord indicates that a single upstream record could not be normalized.
	ErrMalformedRecord = errors.New("malformed record")

	// ErrUnrecognizedDateFormat indicates a date string outside the supported shapes.
	ErrUnrecognizedDateFormat = errors.New("unrecognized date format")

	// ErrScheduleUnavailable indicates that the response holds no usable table for the date,
	// typically because the market was closed.
	ErrScheduleUnavailable = errors.New("no data for date")

	// ErrInsufficientHistory indicates that fewer trading days than required are available.
	ErrInsufficientHistory = errors.New("insufficient history")
)

// RecordError は正規化に失敗したフィールドを保持します。errors.Is(err, ErrMalformedRecord) が真になります。
type RecordError struct {
	Field string
	Value string
	Err   error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("%s: field %s=%q: %v", ErrMalformedRecord, e.Field, e.Value, e.Err)
}

func (e *RecordError) Unwrap() []error {
	return []error{ErrMalformedRecord, e.Err}
}
