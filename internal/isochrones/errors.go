package isochrones

import (
	"errors"
	"fmt"
)

var (
	// ErrLoad classifies failures to read or parse a source file.
	ErrLoad = errors.New("source load failed")

	// ErrExtraction classifies corrupt coordinate values in a batch.
	ErrExtraction = errors.New("coordinate extraction failed")

	// ErrAssembly classifies request bodies that could not be serialized.
	ErrAssembly = errors.New("request body assembly failed")

	// ErrFeedExhausted is returned by a queue feed with no records left, and
	// by any feed that holds no records at all.
	ErrFeedExhausted = errors.New("feed exhausted")

	// ErrInvalidBatchSize is returned when a draw asks for fewer than one record.
	ErrInvalidBatchSize = errors.New("batch size must be greater than 0")
)

// LoadError reports a source file that could not be turned into a feed.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load source %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() []error {
	return []error{ErrLoad, e.Err}
}

// ExtractionError reports a coordinate value that is present but not numeric.
type ExtractionError struct {
	Index int
	Lon   any
	Lat   any
	Err   error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("failed to parse coordinate values at index %d (lon=%v, lat=%v): %v", e.Index, e.Lon, e.Lat, e.Err)
}

func (e *ExtractionError) Unwrap() []error {
	return []error{ErrExtraction, e.Err}
}

// AssemblyError reports a request body that could not be built or serialized.
type AssemblyError struct {
	Reason string
	Err    error
}

func (e *AssemblyError) Error() string {
	if e.Err == nil {
		return "failed to create request body: " + e.Reason
	}
	return fmt.Sprintf("failed to create request body: %s: %v", e.Reason, e.Err)
}

func (e *AssemblyError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrAssembly}
	}
	return []error{ErrAssembly, e.Err}
}
