package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

var (
	Is     = errors.Is
	As     = errors.As
	New    = errors.New
	Unwrap = errors.Unwrap
	Join   = errors.Join
)

type ErrorCategory string

const (
	CategoryInput    ErrorCategory = "INPUT"     // Malformed or missing request data
	CategoryAuth     ErrorCategory = "AUTH"      // Missing credential
	CategoryConflict ErrorCategory = "CONFLICT"  // Identifier already in flight
	CategoryNotFound ErrorCategory = "NOT_FOUND" // Media or record absent
	CategoryProcess  ErrorCategory = "PROCESS"   // External tool failures
	CategoryIO       ErrorCategory = "IO"        // File system issues
	CategoryArchive  ErrorCategory = "ARCHIVE"   // Zip assembly failures
	CategoryContext  ErrorCategory = "CONTEXT"   // Context cancellation
	CategoryUnknown  ErrorCategory = "UNKNOWN"   // Unclassified errors
)

// Error represents a failure in the download or packaging pipeline.
type Error struct {
	Err        error         // Original error
	Category   ErrorCategory // General category
	Timestamp  time.Time     // When the error occurred
	Resource   string        // Identifier or path being processed
	StatusCode int           // Exit code for tool failures, 0 otherwise
	Details    map[string]interface{}
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Category == CategoryProcess && e.StatusCode != 0 {
		return fmt.Sprintf("[%s] %s (exit: %d): %v", e.Category, e.Resource, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %v", e.Category, e.Resource, e.Err)
}

// Unwrap provides the underlying cause for error unwrapping (compatible with errors.As)
func (e *Error) Unwrap() error {
	return e.Err
}

// Common sentinel errors
var (
	ErrMissingCredential = New("no authorization token provided")
	ErrMissingFilename   = New("no filename provided")
	ErrInvalidIdentifier = New("invalid media identifier")
	ErrNoFiles           = New("no files specified")
	ErrJobInProgress     = New("download already in progress")
	ErrNotFound          = New("file not found")
	ErrBinaryNotFound    = New("yt-dlp binary not found")
	ErrEmptyOutput       = New("download produced no usable file")
	ErrPathEscape        = New("path escapes working directory")
	ErrShuttingDown      = New("server is shutting down")
)

func newError(category ErrorCategory, err error, resource string) *Error {
	return &Error{
		Err:       err,
		Category:  category,
		Timestamp: time.Now(),
		Resource:  resource,
	}
}

// NewInputError creates an error for invalid client input
func NewInputError(err error, resource string) *Error {
	return newError(CategoryInput, err, resource)
}

// NewAuthError creates an error for a missing or empty credential
func NewAuthError(err error, resource string) *Error {
	return newError(CategoryAuth, err, resource)
}

// NewConflictError creates an error for an identifier that is already being fetched
func NewConflictError(err error, resource string) *Error {
	return newError(CategoryConflict, err, resource)
}

// NewNotFoundError creates an error for an absent media file
func NewNotFoundError(err error, resource string) *Error {
	return newError(CategoryNotFound, err, resource)
}

// NewIOError creates an I/O related error
func NewIOError(err error, resource string) *Error {
	return newError(CategoryIO, err, resource)
}

// NewArchiveError creates an error raised while writing a zip archive
func NewArchiveError(err error, resource string) *Error {
	return newError(CategoryArchive, err, resource)
}

// NewContextError creates a context cancellation error
func NewContextError(err error, resource string) *Error {
	return newError(CategoryContext, err, resource)
}

// NewProcessError creates an error for a failed tool run. exitCode is the
// process exit status, or 0 when the process never ran.
func NewProcessError(err error, resource string, exitCode int) *Error {
	e := newError(CategoryProcess, err, resource)
	e.StatusCode = exitCode
	return e
}

// MissingFilesError lists every requested item whose media file is absent.
type MissingFilesError struct {
	Missing []string
}

func (e *MissingFilesError) Error() string {
	return fmt.Sprintf("files not found: %s", strings.Join(e.Missing, ", "))
}

// Is lets errors.Is(err, ErrNotFound) match a MissingFilesError.
func (e *MissingFilesError) Is(target error) bool {
	return target == ErrNotFound
}

// IsCategory reports whether err carries the given category
func IsCategory(err error, category ErrorCategory) bool {
	var e *Error
	return As(err, &e) && e.Category == category
}

// GetExitCode extracts the tool exit code from an error if available
func GetExitCode(err error) (int, bool) {
	var e *Error
	if As(err, &e) && e.Category == CategoryProcess {
		return e.StatusCode, true
	}
	return 0, false
}

// HTTPStatus maps an error to the HTTP status the transport layer should use.
func HTTPStatus(err error) int {
	var missing *MissingFilesError
	if As(err, &missing) {
		return http.StatusNotFound
	}

	var e *Error
	if !As(err, &e) {
		switch {
		case Is(err, ErrNotFound):
			return http.StatusNotFound
		case Is(err, ErrShuttingDown):
			return http.StatusServiceUnavailable
		default:
			return http.StatusInternalServerError
		}
	}

	switch e.Category {
	case CategoryInput:
		return http.StatusBadRequest
	case CategoryAuth:
		return http.StatusUnauthorized
	case CategoryConflict:
		return http.StatusConflict
	case CategoryNotFound:
		return http.StatusNotFound
	case CategoryContext:
		if Is(e.Err, ErrShuttingDown) {
			return http.StatusServiceUnavailable
		}
		return 499
	default:
		return http.StatusInternalServerError
	}
}

// WithDetails adds additional context to an Error
func WithDetails(err error, details map[string]interface{}) error {
	var e *Error
	if !As(err, &e) {
		return err
	}

	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}

	for k, v := range details {
		e.Details[k] = v
	}

	return e
}
