package dataset

import (
	"errors"
	"fmt"
)

// Common errors.
var (
	ErrIndexOutOfRange = errors.New("index out of range")
	ErrInvalidSplit    = errors.New("invalid split")
	ErrSampleRate      = errors.New("unexpected sample rate")
	ErrNoDownloader    = errors.New("dataset has no downloader")
	ErrAnnotations     = errors.New("malformed annotation table")
)

// DataIntegrityError reports a sample whose actual properties violate the
// invariants declared by its dataset.
type DataIntegrityError struct {
	Path     string // Audio file that failed the check
	Property string // Violated property (e.g. "sample_rate")
	Want     any
	Got      any
	Err      error // Sentinel the failure maps to
}

// Error implements the error interface.
func (e *DataIntegrityError) Error() string {
	return fmt.Sprintf("%s: %s: want %v, got %v", e.Path, e.Property, e.Want, e.Got)
}

// Unwrap returns the sentinel error.
func (e *DataIntegrityError) Unwrap() error {
	return e.Err
}

func indexError(index, length int) error {
	return fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, index, length)
}
