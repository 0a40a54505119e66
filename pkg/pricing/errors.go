package pricing

import (
	"errors"
	"fmt"

	"github.com/ava-labs/wealthgain-indexer/internal/chainclient"
)

var (
	// ErrPriceUnavailable is returned when the price source has no data for the requested day.
	ErrPriceUnavailable = errors.New("price unavailable")

	// ErrPriceSource marks transport or response failures of the external price source.
	// It matches chainclient.ErrNetwork so drivers can retry both with the same policy.
	ErrPriceSource = fmt.Errorf("price source failure: %w", chainclient.ErrNetwork)

	ErrInvalidLogger = errors.New("logger is required")
	ErrInvalidSource = errors.New("price source is required")
	ErrInvalidStore  = errors.New("price store is required")
)
