package tracking

import "errors"

var (
	ErrAuthenticationRequired = errors.New("authentication required")
	ErrSessionNotFound        = errors.New("tracking session not found")
	ErrNotSessionOwner        = errors.New("tracking session belongs to another user")
	ErrSessionClosed          = errors.New("tracking session is already closed")
	ErrInvalidCoordinate      = errors.New("invalid coordinate")
	ErrEmptyBatch             = errors.New("coordinate batch is empty")
	ErrBatchTooLarge          = errors.New("coordinate batch exceeds the size limit")
	ErrNoValidCoordinates     = errors.New("no valid coordinates in batch")
	ErrSessionIDRequired      = errors.New("session id is required")
)

// IsValidation reports whether err is caused by malformed input.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidCoordinate) ||
		errors.Is(err, ErrEmptyBatch) ||
		errors.Is(err, ErrNoValidCoordinates) ||
		errors.Is(err, ErrSessionIDRequired)
}
