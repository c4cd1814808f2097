// Package errors provides structured error handling for the media module.
// It defines error types, sentinel errors, and utility functions for consistent
// error handling across the module.
package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Error types for classification
type ErrorType string

const (
	// ErrorTypeAuthorization indicates the actor may not mutate the entity
	ErrorTypeAuthorization ErrorType = "authorization"
	// ErrorTypeValidation indicates input validation errors
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeCodec indicates a container could not be parsed or rewritten
	ErrorTypeCodec ErrorType = "codec"
	// ErrorTypeStorage indicates file read or replace errors
	ErrorTypeStorage ErrorType = "storage"
	// ErrorTypeConflict indicates a concurrent writer held the file
	ErrorTypeConflict ErrorType = "conflict"
	// ErrorTypeDatabase indicates database operation errors
	ErrorTypeDatabase ErrorType = "database"
	// ErrorTypeInternal indicates internal system errors
	ErrorTypeInternal ErrorType = "internal"
)

// Sentinel errors for common scenarios
var (
	// ErrForbidden indicates the actor owns no song on the album and is not privileged
	ErrForbidden = errors.New("forbidden")

	// ErrAlbumNotFound indicates an album ID doesn't exist
	ErrAlbumNotFound = errors.New("album not found")

	// ErrArtistNotFound indicates an artist ID doesn't exist
	ErrArtistNotFound = errors.New("artist not found")

	// ErrInvalidPayload indicates a malformed or disallowed cover image
	ErrInvalidPayload = errors.New("invalid cover payload")

	// ErrPayloadTooLarge indicates the decoded cover exceeds the configured limit
	ErrPayloadTooLarge = errors.New("cover payload too large")

	// ErrUnsupportedFormat indicates no codec recognises the file
	ErrUnsupportedFormat = errors.New("unsupported audio format")

	// ErrUnsupportedArtwork indicates the container cannot carry this image type
	ErrUnsupportedArtwork = errors.New("image type not supported by container")

	// ErrMalformedContainer indicates truncated or inconsistent container structure
	ErrMalformedContainer = errors.New("malformed container")

	// ErrSizeOverflow indicates a size or offset field cannot hold the new value
	ErrSizeOverflow = errors.New("container size field overflow")

	// ErrNoArtwork indicates the file carries no embedded picture
	ErrNoArtwork = errors.New("no embedded artwork")

	// ErrConcurrentWrite indicates the per-file lock could not be acquired in time
	ErrConcurrentWrite = errors.New("concurrent write conflict")

	// ErrIO indicates the storage layer failed
	ErrIO = errors.New("storage i/o failure")

	// ErrInsufficientSpace indicates the target volume cannot hold the staged file
	ErrInsufficientSpace = errors.New("insufficient disk space")

	// ErrCancelled indicates an operation was cancelled
	ErrCancelled = errors.New("operation cancelled")

	// ErrDatabaseOperation indicates a database operation failed
	ErrDatabaseOperation = errors.New("database operation failed")
)

// MediaError provides structured error information with context
type MediaError struct {
	Type    ErrorType              // Error classification
	Op      string                 // Operation that failed (e.g., "set_album_cover", "write_artwork")
	AlbumID string                 // Related album ID if applicable
	Path    string                 // Related file path if applicable
	Err     error                  // Underlying error
	Details map[string]interface{} // Additional context
}

// Error implements the error interface
func (e *MediaError) Error() string {
	switch {
	case e.Path != "":
		return fmt.Sprintf("%s error in %s [path=%s]: %v", e.Type, e.Op, e.Path, e.Err)
	case e.AlbumID != "":
		return fmt.Sprintf("%s error in %s [album=%s]: %v", e.Type, e.Op, e.AlbumID, e.Err)
	}
	return fmt.Sprintf("%s error in %s: %v", e.Type, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *MediaError) Unwrap() error {
	return e.Err
}

// Is implements error comparison for sentinel errors
func (e *MediaError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// New creates a new MediaError
func New(errType ErrorType, op string, err error) *MediaError {
	return &MediaError{
		Type:    errType,
		Op:      op,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// WithAlbum adds album context to the error
func (e *MediaError) WithAlbum(albumID string) *MediaError {
	e.AlbumID = albumID
	return e
}

// WithPath adds file path context to the error
func (e *MediaError) WithPath(path string) *MediaError {
	e.Path = path
	return e
}

// WithDetail adds a key-value detail to the error
func (e *MediaError) WithDetail(key string, value interface{}) *MediaError {
	e.Details[key] = value
	return e
}

// IsRecoverable returns true if the error might succeed on retry
func (e *MediaError) IsRecoverable() bool {
	if errors.Is(e.Err, ErrConcurrentWrite) {
		return true
	}
	return e.Type == ErrorTypeDatabase || e.Type == ErrorTypeInternal
}

// Error creation helpers

// AuthorizationError creates an authorization error
func AuthorizationError(op string, err error) *MediaError {
	return New(ErrorTypeAuthorization, op, err)
}

// ValidationError creates a validation error
func ValidationError(op string, err error) *MediaError {
	return New(ErrorTypeValidation, op, err)
}

// CodecError creates a container codec error
func CodecError(op string, err error) *MediaError {
	return New(ErrorTypeCodec, op, err)
}

// StorageError creates a storage error
func StorageError(op string, err error) *MediaError {
	return New(ErrorTypeStorage, op, err)
}

// ConflictError creates a concurrent write error
func ConflictError(op string, err error) *MediaError {
	return New(ErrorTypeConflict, op, err)
}

// DatabaseError creates a database operation error
func DatabaseError(op string, err error) *MediaError {
	return New(ErrorTypeDatabase, op, err)
}

// InternalError creates an internal system error
func InternalError(op string, err error) *MediaError {
	return New(ErrorTypeInternal, op, err)
}

// Reasonf wraps a sentinel with a formatted reason, e.g. Reasonf(ErrMalformedContainer, "atom %q truncated", typ).
func Reasonf(sentinel error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))
}

// FromContext converts a context error into ErrCancelled, keeping the cause.
func FromContext(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrCancelled, err)
	}
	return err
}

// Wrap wraps an error with operation context if it's not already a MediaError
func Wrap(err error, errType ErrorType, op string) error {
	if err == nil {
		return nil
	}

	var mErr *MediaError
	if errors.As(err, &mErr) {
		return err
	}

	return New(errType, op, err)
}

// GetType extracts the error type from an error
func GetType(err error) ErrorType {
	var mErr *MediaError
	if errors.As(err, &mErr) {
		return mErr.Type
	}
	return ErrorTypeInternal
}

// GetPath extracts the file path from an error
func GetPath(err error) string {
	var mErr *MediaError
	if errors.As(err, &mErr) {
		return mErr.Path
	}
	return ""
}

// IsRetryable reports whether the caller may retry with backoff.
func IsRetryable(err error) bool {
	var mErr *MediaError
	if errors.As(err, &mErr) {
		return mErr.IsRecoverable()
	}
	return errors.Is(err, ErrConcurrentWrite)
}

// HTTPStatus maps an error to the status code the API reports for it.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrAlbumNotFound), errors.Is(err, ErrArtistNotFound), errors.Is(err, ErrNoArtwork):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidPayload), errors.Is(err, ErrPayloadTooLarge):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrConcurrentWrite):
		return http.StatusConflict
	case errors.Is(err, ErrCancelled):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
