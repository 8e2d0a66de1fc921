// Package errors provides standardized error types and helpers for msakit.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for alignment parsing
var (
	// ErrUnrecognizedHeader indicates the first line names no known alignment program
	ErrUnrecognizedHeader = errors.New("unrecognized header")
	// ErrMalformedLine indicates a line that does not fit the block layout
	ErrMalformedLine = errors.New("malformed line")
	// ErrLengthMismatch indicates a fragment width inconsistent with the alignment
	ErrLengthMismatch = errors.New("length mismatch")
	// ErrDuplicateID indicates an identifier repeated where a new one is required
	ErrDuplicateID = errors.New("duplicate id")
)

// Sentinel errors for common cases
var (
	// ErrNotFound indicates a resource was not found
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput indicates invalid input or validation failure
	ErrInvalidInput = errors.New("invalid input")
	// ErrUnsupported indicates an unsupported operation or format
	ErrUnsupported = errors.New("unsupported")
)

// HeaderError reports a first line that matches none of the accepted program names.
type HeaderError struct {
	Line     string   // Offending header line, without terminator
	Accepted []string // Accepted program names, in match order
}

func (e *HeaderError) Error() string {
	return fmt.Sprintf("the header is not a recognised CLUSTAL header %q: expected one of %s",
		e.Line, strings.Join(e.Accepted, ","))
}

func (e *HeaderError) Unwrap() error {
	return ErrUnrecognizedHeader
}

// LineError reports a failure tied to one input line.
type LineError struct {
	Kind    error  // One of the parsing sentinels
	LineNo  int    // 1-based line number
	Line    string // Raw line content, without terminator
	Message string // Human-readable detail
	Err     error  // Underlying error, if any
}

func (e *LineError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	return fmt.Sprintf("line %d: %s: %q", e.LineNo, msg, e.Line)
}

// Unwrap exposes both the kind and the underlying cause to errors.Is.
func (e *LineError) Unwrap() []error {
	errs := []error{}
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// AlignmentError reports a mutation rejected by the alignment model.
type AlignmentError struct {
	Kind    error  // ErrLengthMismatch, ErrDuplicateID or ErrMalformedLine
	ID      string // Record identifier involved, if any
	Got     int    // Observed width or length
	Want    int    // Expected width or length
	Message string // Human-readable detail
}

func (e *AlignmentError) Error() string {
	switch {
	case e.ID != "" && e.Message != "":
		return fmt.Sprintf("record %q: %s", e.ID, e.Message)
	case e.ID != "":
		return fmt.Sprintf("record %q: %v: got %d, want %d", e.ID, e.Kind, e.Got, e.Want)
	default:
		return e.Message
	}
}

func (e *AlignmentError) Unwrap() error {
	if e.Kind != nil {
		return e.Kind
	}
	return ErrInvalidInput
}

// NotFoundError represents a resource not found error with context
type NotFoundError struct {
	Resource string // Type of resource (e.g., "alignment", "blob")
	ID       string // Identifier of the resource
	Err      error  // Underlying error, if any
}

func (e *NotFoundError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

func (e *NotFoundError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrNotFound
}

// ValidationError represents an input validation error with context
type ValidationError struct {
	Field   string // Field name that failed validation
	Value   string // Value that failed validation
	Message string // Human-readable error message
	Err     error  // Underlying error, if any
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// Unwrap exposes ErrInvalidInput and the underlying cause, if any.
func (e *ValidationError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrInvalidInput, e.Err}
	}
	return []error{ErrInvalidInput}
}

// IOError represents an I/O operation error with context
type IOError struct {
	Operation string // Operation being performed (e.g., "read", "open")
	Path      string // File/resource path involved
	Err       error  // Underlying error
}

func (e *IOError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("failed to %s %s: %v", e.Operation, e.Path, e.Err)
	}
	return fmt.Sprintf("failed to %s: %v", e.Operation, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// UnsupportedError represents an unsupported feature or format
type UnsupportedError struct {
	Feature string // Feature or format that is unsupported
	Reason  string // Why it's not supported
}

func (e *UnsupportedError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("unsupported %s: %s", e.Feature, e.Reason)
	}
	return fmt.Sprintf("unsupported %s", e.Feature)
}

func (e *UnsupportedError) Unwrap() error {
	return ErrUnsupported
}

// NewHeader creates a HeaderError
func NewHeader(line string, accepted []string) *HeaderError {
	return &HeaderError{
		Line:     line,
		Accepted: accepted,
	}
}

// NewLine creates a LineError of the given kind
func NewLine(kind error, lineNo int, line, message string) *LineError {
	return &LineError{
		Kind:    kind,
		LineNo:  lineNo,
		Line:    line,
		Message: message,
	}
}

// AtLine attaches line context to err. Errors that already carry a kind
// keep it; anything else is classified as ErrMalformedLine.
func AtLine(err error, lineNo int, line string) error {
	if err == nil {
		return nil
	}
	kind := ErrMalformedLine
	for _, k := range []error{ErrLengthMismatch, ErrDuplicateID, ErrMalformedLine} {
		if errors.Is(err, k) {
			kind = k
			break
		}
	}
	return &LineError{
		Kind:   kind,
		LineNo: lineNo,
		Line:   line,
		Err:    err,
	}
}

// NewNotFound creates a NotFoundError
func NewNotFound(resource, id string) *NotFoundError {
	return &NotFoundError{
		Resource: resource,
		ID:       id,
	}
}

// NewValidation creates a ValidationError
func NewValidation(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// NewIO creates an IOError
func NewIO(operation, path string, err error) *IOError {
	return &IOError{
		Operation: operation,
		Path:      path,
		Err:       err,
	}
}

// NewUnsupported creates an UnsupportedError
func NewUnsupported(feature, reason string) *UnsupportedError {
	return &UnsupportedError{
		Feature: feature,
		Reason:  reason,
	}
}

// Wrap adds context to an error. If err is nil, returns nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf adds formatted context to an error. If err is nil, returns nil.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	message := fmt.Sprintf(format, args...)
	return fmt.Errorf("%s: %w", message, err)
}

// Is wraps errors.Is for convenience
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As wraps errors.As for convenience
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
