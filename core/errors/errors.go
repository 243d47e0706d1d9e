// Package errors provides the error taxonomy shared by the document model,
// the XMI codec, the batcher and the storage layers.
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
	// ErrMalformed indicates an interchange payload that cannot be decoded
	ErrMalformed = errors.New("malformed interchange payload")
	// ErrOffset indicates an annotation span outside its document text
	ErrOffset = errors.New("annotation offset out of range")
	// ErrWriteConflict indicates a conditional update that was not applied
	ErrWriteConflict = errors.New("write conflict")
	// ErrSourceIO indicates a failure talking to the record source
	ErrSourceIO = errors.New("source i/o failure")
)

// NotFoundError represents a resource not found error with context
type NotFoundError struct {
	Resource string // Type of resource (e.g., "record", "resume log")
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

func (e *ValidationError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrInvalidInput
}

// IOError represents a local file operation error with context
type IOError struct {
	Operation string // Operation being performed (e.g., "read", "write", "open")
	Path      string // File path involved
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

// MalformedInterchangeError reports a structurally invalid XMI payload.
// A payload that fails this way is rejected as a whole.
type MalformedInterchangeError struct {
	Element   string // Qualified element name, if known
	Attribute string // Offending attribute, if any
	Value     string // Offending value, if any
	Message   string
	Err       error // Underlying parser error, if any
}

func (e *MalformedInterchangeError) Error() string {
	msg := "malformed xmi"
	if e.Element != "" {
		msg += " at <" + e.Element + ">"
	}
	if e.Attribute != "" {
		msg += fmt.Sprintf(" attribute %s=%q", e.Attribute, e.Value)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MalformedInterchangeError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrMalformed, e.Err}
	}
	return []error{ErrMalformed}
}

// OffsetError reports an annotation whose span does not fit its document.
type OffsetError struct {
	TypeURI string
	Name    string
	Begin   int
	End     int
	Length  int // Text length of the owning document
}

func (e *OffsetError) Error() string {
	return fmt.Sprintf("annotation {%s}%s [%d,%d) outside text of length %d",
		e.TypeURI, e.Name, e.Begin, e.End, e.Length)
}

func (e *OffsetError) Unwrap() error {
	return ErrOffset
}

// WriteConflictError reports that the record store rejected a conditional update.
type WriteConflictError struct {
	Collection string
	Key        string
	Operation  string
}

func (e *WriteConflictError) Error() string {
	return fmt.Sprintf("write conflict: %s %s/%s was not applied", e.Operation, e.Collection, e.Key)
}

func (e *WriteConflictError) Unwrap() error {
	return ErrWriteConflict
}

// SourceIOError wraps a driver or connection failure of the record source.
type SourceIOError struct {
	Operation string // e.g. "scan", "update"
	Key       string // Record key, if the failure concerns one record
	Err       error
}

func (e *SourceIOError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("source %s %s: %v", e.Operation, e.Key, e.Err)
	}
	return fmt.Sprintf("source %s: %v", e.Operation, e.Err)
}

func (e *SourceIOError) Unwrap() []error {
	return []error{ErrSourceIO, e.Err}
}

// Helper functions for creating common errors

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

// NewMalformed creates a MalformedInterchangeError for an element.
func NewMalformed(element, message string) *MalformedInterchangeError {
	return &MalformedInterchangeError{
		Element: element,
		Message: message,
	}
}

// NewWriteConflict creates a WriteConflictError
func NewWriteConflict(operation, collection, key string) *WriteConflictError {
	return &WriteConflictError{
		Collection: collection,
		Key:        key,
		Operation:  operation,
	}
}

// NewSourceIO creates a SourceIOError. If err is nil, returns nil.
func NewSourceIO(operation, key string, err error) error {
	if err == nil {
		return nil
	}
	return &SourceIOError{
		Operation: operation,
		Key:       key,
		Err:       err,
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

// New wraps errors.New for convenience
func New(text string) error {
	return errors.New(text)
}
