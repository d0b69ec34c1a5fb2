package collector

import "fmt"

// FetchError is a failed provider call for one symbol.
type FetchError struct {
	Source string
	Symbol string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s: fetch %s: %v", e.Source, e.Symbol, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// DataUnavailableError is returned by SeriesCache when the provider could not
// deliver a series. It is never cached.
type DataUnavailableError struct {
	Symbol string
	Err    error
}

func (e *DataUnavailableError) Error() string {
	return fmt.Sprintf("data unavailable for %s: %v", e.Symbol, e.Err)
}

func (e *DataUnavailableError) Unwrap() error { return e.Err }
