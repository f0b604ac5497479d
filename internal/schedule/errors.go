package schedule

import (
	"errors"
	"fmt"
)

// ErrMissingData reports a dataset that decoded but lacks calendar or
// departure data. Queries against it return empty results.
var ErrMissingData = errors.New("dataset missing schedule data")

// LoadError is returned when a dataset cannot be fetched or decoded.
// The previously loaded dataset, if any, is left in place.
type LoadError struct {
	Source string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load dataset from %s: %v", e.Source, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }
