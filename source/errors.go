package source

import (
	"errors"
	"fmt"
	"math"
	"strconv"
)

var (
	// ErrFetch wraps every failure to obtain a payload.
	ErrFetch = errors.New("fetch failed")
	// ErrUnsupportedFormat is returned for locators with an unrecognized extension.
	ErrUnsupportedFormat = errors.New("unsupported format")
	// ErrUnsupportedPayload is returned when the payload is a known non-model file type.
	ErrUnsupportedPayload = errors.New("unsupported payload")
	// ErrNonFinite is wrapped by parse errors for NaN or infinite coordinates.
	ErrNonFinite = errors.New("non-finite number")
)

// ParseFloat parses a decimal coordinate. NaN and infinities are rejected
// with ErrNonFinite.
func ParseFloat(s string) (float32, error) {
	f, err := strconv.ParseFloat(s, 32)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %q", ErrNonFinite, s)
	}
	return float32(f), nil
}

// ParseError reports malformed geometry.
type ParseError struct {
	Format Format
	Line   int // 0 if unknown
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	msg := e.Format.String() + ": " + e.Reason
	if e.Line > 0 {
		msg = fmt.Sprintf("%s: line %d: %s", e.Format, e.Line, e.Reason)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Errorf returns a ParseError for format f.
func Errorf(f Format, line int, format string, a ...interface{}) *ParseError {
	return &ParseError{Format: f, Line: line, Reason: fmt.Sprintf(format, a...)}
}
