package tabular

import (
	"errors"
	"fmt"
)

// ErrParse is wrapped by every ParseError.
var ErrParse = errors.New("parse error")

// ParseError reports malformed tabular input. Line is the 1-based line
// number in the source and Row the 1-based data row; both are zero when the
// failure is not tied to a row.
type ParseError struct {
	Line   int
	Row    int
	Reason string
}

func (e *ParseError) Error() string {
	if e.Row > 0 {
		return fmt.Sprintf("parse error at line %d (row %d): %s", e.Line, e.Row, e.Reason)
	}
	if e.Line > 0 {
		return fmt.Sprintf("parse error at line %d: %s", e.Line, e.Reason)
	}
	return fmt.Sprintf("parse error: %s", e.Reason)
}

func (e *ParseError) Unwrap() error {
	return ErrParse
}
