package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyInput is returned by Densify when there are no observations to
	// derive an hour range from.
	ErrEmptyInput = errors.New("densify: empty input, hour range is undefined")

	// ErrInvalidAggregate marks aggregated input that breaks the one row per
	// (location, hour) contract.
	ErrInvalidAggregate = errors.New("invalid aggregated counts")
)

// RetrievalError reports a failed download of a monthly file.
type RetrievalError struct {
	URL        string
	StatusCode int // 0 when the request never got a response
	Err        error
}

func (e *RetrievalError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("retrieve %s: status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("retrieve %s: %v", e.URL, e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }
