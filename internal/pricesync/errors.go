package pricesync

import (
	"errors"
	"fmt"
)

// ErrAmbiguousTail means the overlap window was too short or empty to
// compare adjusted closes. The detector treats it as unchanged rather than
// forcing a full-history rewrite; the run report records the warning.
var ErrAmbiguousTail = errors.New("pricesync: overlap window too short to compare")

// FetchFailure isolates one ticker's provider error: the ticker is counted
// failed, its stored data stays untouched, and the run continues.
type FetchFailure struct {
	Ticker string
	Err    error
}

func (e *FetchFailure) Error() string {
	return fmt.Sprintf("fetch failed for %s: %v", e.Ticker, e.Err)
}

func (e *FetchFailure) Unwrap() error { return e.Err }

// StorageFailure wraps a constraint or transaction error during one
// ticker's commit. The ticker's transaction rolls back; the run continues.
type StorageFailure struct {
	Ticker string
	Err    error
}

func (e *StorageFailure) Error() string {
	return fmt.Sprintf("storage write failed for %s: %v", e.Ticker, e.Err)
}

func (e *StorageFailure) Unwrap() error { return e.Err }
