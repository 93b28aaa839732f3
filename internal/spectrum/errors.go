package spectrum

import (
	"errors"
	"fmt"

	"github.com/roman-kulish/spectra/internal/fit"
)

var (
	// ErrFileNotFound is returned by Load when the input path does not resolve.
	ErrFileNotFound = errors.New("file not found")

	// ErrParse indicates a record that does not yield two parseable numbers.
	ErrParse = errors.New("malformed record")

	// ErrInvalidArgument covers empty spectra, mismatched lengths, unknown
	// units and models, and bad indices.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrOutOfRange is an ErrInvalidArgument for indices outside the spectrum
	// or peak list.
	ErrOutOfRange = fmt.Errorf("%w: out of range", ErrInvalidArgument)

	// ErrDidNotConverge is returned when a fit exhausts its iteration budget.
	ErrDidNotConverge = fit.ErrDidNotConverge

	// ErrInvalidSubrange is returned when a subrange has fewer samples than
	// the model has parameters.
	ErrInvalidSubrange = fit.ErrInvalidSubrange
)

// ParseError describes a malformed input record.
type ParseError struct {
	Line   int    // 1-based record number
	Record string // Raw record text
	Err    error  // Underlying cause
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s at line %d %q: %s", ErrParse, e.Line, e.Record, e.Err)
}

func (e *ParseError) Unwrap() []error {
	return []error{ErrParse, e.Err}
}
