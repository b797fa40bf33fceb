// Package domain defines domain-level errors for the scanner feature.
package domain

import (
	"errors"

	mddomain "stock_scanner/internal/feature/marketdata/domain"
)

var (
	// ErrInsufficientHistory is returned when a symbol has too few trading days to score.
	ErrInsufficientHistory = mddomain.ErrInsufficientHistory

	// ErrMarketDataUnavailable is returned when no market snapshot could be obtained.
	ErrMarketDataUnavailable = mddomain.ErrMarketDataUnavailable

	// ErrEmptySymbolList is returned when a stage is invoked with no symbols.
	ErrEmptySymbolList = errors.New("empty symbol list")

	// ErrInvalidSymbol is returned when a symbol id is not a 4-character common-stock code.
	ErrInvalidSymbol = errors.New("invalid symbol")

	// ErrInvalidSettings is returned when a scan threshold is not positive.
	ErrInvalidSettings = errors.New("invalid scan settings")

	// ErrUnknownMarket is returned for a market filter other than TWSE, TPEX or all.
	ErrUnknownMarket = errors.New("unknown market")

	// ErrUnknownSector is returned when a sector has no listed symbols.
	ErrUnknownSector = errors.New("unknown sector")

	// ErrCacheUnavailable marks a cache read or write failure. Scans degrade to direct computation.
	ErrCacheUnavailable = errors.New("cache unavailable")

	// ErrInvalidTransition is returned when the scan state machine is driven out of order.
	ErrInvalidTransition = errors.New("invalid stage transition")
)
