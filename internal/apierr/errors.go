// Package apierr holds the error taxonomy shared by the parser, the schema
// resolver and the interactive session.
//
// Each error type has a sentinel for errors.Is:
//
//   - ParseError matches ErrParse
//   - HeaderParseError matches ErrHeaderParse
//   - ReferenceError matches ErrReference, plus ErrCircularReference or
//     ErrMissingSchema depending on its flags
//
// Network failures are not errors here: the executor reports them as data.
package apierr

import (
	"errors"
	"fmt"
)

var (
	// ErrParse indicates the document text could not be turned into a model.
	ErrParse = errors.New("parse error")

	// ErrHeaderParse indicates the custom header text is not a JSON object of strings.
	ErrHeaderParse = errors.New("header parse error")

	// ErrReference indicates a $ref could not be followed.
	ErrReference = errors.New("reference error")

	// ErrCircularReference indicates a $ref points back at one of its ancestors.
	ErrCircularReference = errors.New("circular reference")

	// ErrMissingSchema indicates a $ref names a component that does not exist.
	ErrMissingSchema = errors.New("schema not found")
)

// ParseError represents a failure to parse an OpenAPI document.
type ParseError struct {
	// Source is the file path, URL or other identifier of the text (may be empty)
	Source string
	// Line is the 1-based line of the failure (0 if unknown)
	Line int
	// Column is the 1-based column of the failure (0 if unknown)
	Column int
	// Message describes the failure
	Message string
	// Cause is the underlying error, if any
	Cause error
}

// Error returns a human-readable error message.
func (e *ParseError) Error() string {
	msg := "parse error"
	if e.Source != "" {
		msg += " in " + e.Source
	}
	if e.Line > 0 {
		msg += fmt.Sprintf(" at line %d", e.Line)
		if e.Column > 0 {
			msg += fmt.Sprintf(", column %d", e.Column)
		}
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause for error chaining.
func (e *ParseError) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error type.
func (e *ParseError) Is(target error) bool {
	return target == ErrParse
}

// HeaderParseError is returned when the session's custom header text cannot
// be decoded. No request is sent when this happens.
type HeaderParseError struct {
	Message string
	Cause   error
}

func (e *HeaderParseError) Error() string {
	msg := "header parse error"
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *HeaderParseError) Unwrap() error {
	return e.Cause
}

func (e *HeaderParseError) Is(target error) bool {
	return target == ErrHeaderParse
}

// ReferenceError describes a $ref that was not expanded. Both flavours are
// recoverable: renderers show a marker in place of the schema.
type ReferenceError struct {
	// Ref is the $ref string as written in the document
	Ref string
	// Name is the component name extracted from Ref
	Name string
	// IsCircular is set when Ref is already on the current resolution path
	IsCircular bool
	// IsMissing is set when Name is absent from components.schemas
	IsMissing bool
}

// Error returns a human-readable error message.
func (e *ReferenceError) Error() string {
	switch {
	case e.IsCircular:
		return "circular reference: " + e.Ref
	case e.IsMissing:
		return "schema not found: " + e.Name
	default:
		return "reference error: " + e.Ref
	}
}

// Is reports whether target matches this error type.
func (e *ReferenceError) Is(target error) bool {
	if target == ErrReference {
		return true
	}
	if target == ErrCircularReference && e.IsCircular {
		return true
	}
	if target == ErrMissingSchema && e.IsMissing {
		return true
	}
	return false
}
