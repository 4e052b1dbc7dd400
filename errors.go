package docvault

import (
	"errors"
	"fmt"
)

// Error types represent different categories of errors

// ValidationError represents a configuration or parameter validation error
type ValidationError struct {
	Field   string // The field or parameter that failed validation
	Value   any    // The invalid value
	Message string // Human-readable error message
	Err     error  // Underlying error, if any
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// IOError represents a file system or network I/O error
type IOError struct {
	Operation string // "read", "write", "open", "remove", "fetch", etc.
	Path      string // File path or URL
	Message   string // Human-readable error message
	Err       error  // Underlying error
}

func (e *IOError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("io error: %s %s: %s", e.Operation, e.Path, e.Message)
	}
	return fmt.Sprintf("io error: %s: %s", e.Operation, e.Message)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// SecurityError reports a failed integrity check during cipher finalization.
// The usual cause is a wrong passphrase or key file rather than damaged media,
// so callers should say "wrong passphrase or corrupted document".
type SecurityError struct {
	Path    string // File path, if applicable
	Message string // Human-readable error message
	Err     error  // Underlying error
}

func (e *SecurityError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("security error: %s: %s", e.Path, e.Message)
	}
	return fmt.Sprintf("security error: %s", e.Message)
}

func (e *SecurityError) Unwrap() error {
	return e.Err
}

// CorruptionError represents a structurally invalid container or ciphertext
// framing that was detected after the cipher itself succeeded.
type CorruptionError struct {
	Path    string // File path
	Message string // Human-readable error message
	Err     error  // Underlying error
}

func (e *CorruptionError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("corruption error: %s: %s", e.Path, e.Message)
	}
	return fmt.Sprintf("corruption error: %s", e.Message)
}

func (e *CorruptionError) Unwrap() error {
	return e.Err
}

// EnvironmentError represents a missing or unusable cryptographic primitive.
// It aborts the current operation and is never shown to users as-is.
type EnvironmentError struct {
	Component string // "aes", "cbc", "pbkdf2", "rand", ...
	Message   string
	Err       error
}

func (e *EnvironmentError) Error() string {
	return fmt.Sprintf("environment error: %s: %s", e.Component, e.Message)
}

func (e *EnvironmentError) Unwrap() error {
	return e.Err
}

// Common sentinel errors
var (
	ErrCancelled          = errors.New("operation cancelled")
	ErrIntegrity          = errors.New("integrity check failed - wrong passphrase or corrupted document")
	ErrMalformedContainer = errors.New("malformed document container")
	ErrInvalidCiphertext  = errors.New("invalid ciphertext")
	ErrInvalidKey         = errors.New("invalid encryption key")
	ErrNoPassphrase       = errors.New("no passphrase set")
	ErrNilConfig          = errors.New("config cannot be nil")
	ErrNilFileSystem      = errors.New("filesystem cannot be nil")
	ErrUnsupportedScheme  = errors.New("unsupported locator scheme")
)

// Helper functions for creating structured errors

// NewValidationError creates a new validation error
func NewValidationError(field string, value any, message string) error {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// NewIOError creates a new I/O error
func NewIOError(operation, path string, err error) error {
	return &IOError{
		Operation: operation,
		Path:      path,
		Message:   err.Error(),
		Err:       err,
	}
}

// NewSecurityError creates a new security error
func NewSecurityError(path string, err error) error {
	return &SecurityError{
		Path:    path,
		Message: err.Error(),
		Err:     err,
	}
}

// NewCorruptionError creates a new corruption error wrapping ErrMalformedContainer
func NewCorruptionError(path string, message string) error {
	return &CorruptionError{
		Path:    path,
		Message: message,
		Err:     ErrMalformedContainer,
	}
}

// NewEnvironmentError creates a new environment error
func NewEnvironmentError(component string, err error) error {
	return &EnvironmentError{
		Component: component,
		Message:   err.Error(),
		Err:       err,
	}
}

// withPath returns err with its Path filled in when err is one of the
// path-carrying types and no path has been recorded yet.
func withPath(err error, path string) error {
	var se *SecurityError
	if errors.As(err, &se) && se.Path == "" {
		se.Path = path
	}
	var ce *CorruptionError
	if errors.As(err, &ce) && ce.Path == "" {
		ce.Path = path
	}
	var ie *IOError
	if errors.As(err, &ie) && ie.Path == "" {
		ie.Path = path
	}
	return err
}

// Error checking helpers

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsIOError checks if an error is an I/O error
func IsIOError(err error) bool {
	var ie *IOError
	return errors.As(err, &ie)
}

// IsSecurityError checks if an error is a security (integrity) error
func IsSecurityError(err error) bool {
	var se *SecurityError
	return errors.As(err, &se)
}

// IsCorruptionError checks if an error is a corruption error
func IsCorruptionError(err error) bool {
	var ce *CorruptionError
	return errors.As(err, &ce)
}

// IsEnvironmentError checks if an error is an environment error
func IsEnvironmentError(err error) bool {
	var ee *EnvironmentError
	return errors.As(err, &ee)
}

// IsCancelled checks if an operation was declined by a cancel hook
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}
