// Package errors provides the error taxonomy shared by the conversion engine.
//
// Conversion failures are reported as *ConversionError values whose Kind is one
// of Syntax, Limit, Security, Encoding or Allocation. Each kind unwraps to a
// sentinel so callers can use errors.Is without inspecting the struct.
// Resource errors (not found, already exists, I/O, parse, unsupported) follow
// the same struct-plus-Unwrap pattern.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common cases
var (
	// ErrNotFound indicates a resource was not found
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput indicates invalid input or validation failure
	ErrInvalidInput = errors.New("invalid input")
	// ErrAlreadyExists indicates a resource already exists
	ErrAlreadyExists = errors.New("already exists")
	// ErrInternal indicates an internal system error
	ErrInternal = errors.New("internal error")
	// ErrUnsupported indicates an unsupported operation or format
	ErrUnsupported = errors.New("unsupported")
)

// Conversion sentinels, one per Kind.
var (
	ErrSyntax     = errors.New("syntax error")
	ErrLimit      = errors.New("limit exceeded")
	ErrSecurity   = errors.New("security violation")
	ErrEncoding   = errors.New("invalid text encoding")
	ErrAllocation = errors.New("allocation failure")
)

// Kind classifies a conversion failure.
type Kind int

const (
	// KindSyntax is malformed control word or delimiter structure.
	KindSyntax Kind = iota
	// KindLimit is a size, depth, table-dimension, numeric-range or timeout violation.
	KindLimit
	// KindSecurity is a forbidden control word or injection pattern.
	KindSecurity
	// KindEncoding is invalid text encoding.
	KindEncoding
	// KindAllocation means an output buffer could not be produced.
	KindAllocation
)

func (k Kind) String() string {
	switch k {
	case KindSyntax:
		return "syntax"
	case KindLimit:
		return "limit"
	case KindSecurity:
		return "security"
	case KindEncoding:
		return "encoding"
	case KindAllocation:
		return "allocation"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindSyntax:
		return ErrSyntax
	case KindLimit:
		return ErrLimit
	case KindSecurity:
		return ErrSecurity
	case KindEncoding:
		return ErrEncoding
	case KindAllocation:
		return ErrAllocation
	default:
		return ErrInternal
	}
}

// ConversionError is a failure of the conversion pipeline at a specific location.
type ConversionError struct {
	Kind    Kind
	Offset  int    // byte offset in the input, -1 when unknown
	Length  int    // length of the offending span in bytes, 0 when unknown
	Message string // human-readable detail
	Word    string // offending control word, if any
	Missing int    // closing delimiters missing at end of input
	Depth   int    // group depth at Offset
	Err     error  // underlying error, if any
}

func (e *ConversionError) Error() string {
	if e.Offset >= 0 {
		return fmt.Sprintf("%s error at offset %d: %s", e.Kind, e.Offset, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
}

func (e *ConversionError) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind.sentinel(), e.Err}
	}
	return []error{e.Kind.sentinel()}
}

// Recoverable reports whether the recovery engine may attempt a repair.
// Limit and Security errors never are.
func (e *ConversionError) Recoverable() bool {
	return e.Kind == KindSyntax || e.Kind == KindEncoding
}

// NewSyntax creates a Syntax ConversionError.
func NewSyntax(offset int, format string, args ...any) *ConversionError {
	return &ConversionError{Kind: KindSyntax, Offset: offset, Message: fmt.Sprintf(format, args...)}
}

// NewLimit creates a Limit ConversionError.
func NewLimit(offset int, format string, args ...any) *ConversionError {
	return &ConversionError{Kind: KindLimit, Offset: offset, Message: fmt.Sprintf(format, args...)}
}

// NewSecurity creates a Security ConversionError for a forbidden word.
func NewSecurity(offset int, word string) *ConversionError {
	return &ConversionError{
		Kind:    KindSecurity,
		Offset:  offset,
		Word:    word,
		Message: fmt.Sprintf("forbidden control word \\%s", word),
	}
}

// NewEncoding creates an Encoding ConversionError.
func NewEncoding(offset int, format string, args ...any) *ConversionError {
	return &ConversionError{Kind: KindEncoding, Offset: offset, Length: 1, Message: fmt.Sprintf(format, args...)}
}

// NewAllocation creates an Allocation ConversionError.
func NewAllocation(format string, args ...any) *ConversionError {
	return &ConversionError{Kind: KindAllocation, Offset: -1, Message: fmt.Sprintf(format, args...)}
}

// AsConversion extracts a *ConversionError from err.
func AsConversion(err error) (*ConversionError, bool) {
	var ce *ConversionError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// KindOf returns the Kind of err and whether err carries one.
func KindOf(err error) (Kind, bool) {
	if ce, ok := AsConversion(err); ok {
		return ce.Kind, true
	}
	return 0, false
}

// NotFoundError represents a resource not found error with context
type NotFoundError struct {
	Resource string // Type of resource (e.g., "template")
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

// AlreadyExistsError represents a resource that cannot be created twice.
type AlreadyExistsError struct {
	Resource string
	ID       string
}

func (e *AlreadyExistsError) Error() string {
	return fmt.Sprintf("%s already exists: %s", e.Resource, e.ID)
}

func (e *AlreadyExistsError) Unwrap() error {
	return ErrAlreadyExists
}

// ValidationError represents an input validation error with context
type ValidationError struct {
	Field   string // Field name that failed validation
	Message string // Human-readable error message
	Err     error  // Underlying error, if any
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

func (e *ValidationError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrInvalidInput
}

// IOError represents an I/O operation error with context
type IOError struct {
	Operation string // Operation being performed (e.g., "read", "write", "open")
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

// ParseError represents a parsing or deserialization error
type ParseError struct {
	Format  string // Format being parsed (e.g., "YAML", "XML", "template")
	Path    string // File path, if applicable
	Message string // Error details
	Err     error  // Underlying error, if any
}

func (e *ParseError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("failed to parse %s at %s: %s", e.Format, e.Path, e.Message)
	}
	return fmt.Sprintf("failed to parse %s: %s", e.Format, e.Message)
}

func (e *ParseError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrInvalidInput
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

// NewNotFound creates a NotFoundError
func NewNotFound(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// NewAlreadyExists creates an AlreadyExistsError
func NewAlreadyExists(resource, id string) *AlreadyExistsError {
	return &AlreadyExistsError{Resource: resource, ID: id}
}

// NewValidation creates a ValidationError
func NewValidation(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// NewIO creates an IOError
func NewIO(operation, path string, err error) *IOError {
	return &IOError{Operation: operation, Path: path, Err: err}
}

// NewParse creates a ParseError
func NewParse(format, path, message string) *ParseError {
	return &ParseError{Format: format, Path: path, Message: message}
}

// NewUnsupported creates an UnsupportedError
func NewUnsupported(feature, reason string) *UnsupportedError {
	return &UnsupportedError{Feature: feature, Reason: reason}
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
