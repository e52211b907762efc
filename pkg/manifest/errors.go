// SPDX-License-Identifier: MPL-2.0

package manifest

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrParse is the sentinel error wrapped by ParseError.
	ErrParse = errors.New("manifest parse error")
	// ErrValidation is the sentinel error wrapped by ValidationError.
	ErrValidation = errors.New("manifest validation failed")
)

type (
	// ParseError reports malformed manifest text. It always names the
	// fragment and line the problem was found at.
	ParseError struct {
		Source string
		Line   int
		Msg    string
		Err    error
	}

	// FieldError is one problem found while validating a merged manifest.
	FieldError struct {
		Section string
		Key     string
		Origin  Origin
		Msg     string
	}

	// ValidationError aggregates every FieldError found in one validation pass.
	ValidationError struct {
		Fields []FieldError
	}
)

// Error implements the error interface.
func (e *ParseError) Error() string {
	msg := e.Msg
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return fmt.Sprintf("%s:%d: %s", e.Source, e.Line, msg)
}

// Unwrap returns ErrParse for errors.Is() compatibility.
func (e *ParseError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrParse, e.Err}
	}
	return []error{ErrParse}
}

// Stage names the pipeline stage that produced the error.
func (e *ParseError) Stage() string { return "parse" }

// String formats the field error as "[section] key: message (origin)".
func (f FieldError) String() string {
	var b strings.Builder
	if f.Section != "" {
		fmt.Fprintf(&b, "[%s] ", f.Section)
	}
	if f.Key != "" {
		fmt.Fprintf(&b, "%s: ", f.Key)
	}
	b.WriteString(f.Msg)
	if f.Origin.Source != "" {
		fmt.Fprintf(&b, " (%s)", f.Origin)
	}
	return b.String()
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	switch len(e.Fields) {
	case 0:
		return ErrValidation.Error()
	case 1:
		return fmt.Sprintf("%s: %s", ErrValidation, e.Fields[0])
	}
	lines := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		lines[i] = "  - " + f.String()
	}
	return fmt.Sprintf("%s: %d problems:\n%s", ErrValidation, len(e.Fields), strings.Join(lines, "\n"))
}

// Unwrap returns ErrValidation for errors.Is() compatibility.
func (e *ValidationError) Unwrap() error { return ErrValidation }

// Stage names the pipeline stage that produced the error.
func (e *ValidationError) Stage() string { return "validate" }

// Add records a field error.
func (e *ValidationError) Add(section, key string, origin Origin, format string, args ...any) {
	e.Fields = append(e.Fields, FieldError{Section: section, Key: key, Origin: origin, Msg: fmt.Sprintf(format, args...)})
}

// OrNil returns e when it holds at least one field error and nil otherwise.
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}
