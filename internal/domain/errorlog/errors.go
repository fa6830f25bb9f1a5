package errorlog

import "errors"

var (
	ErrAuthenticationRequired = errors.New("authentication required")
	// ErrForbidden is returned when a non-admin tries to resolve reports.
	ErrForbidden     = errors.New("only administrators can resolve error reports")
	ErrInvalidReport = errors.New("error type and message are required")
	ErrNoReports     = errors.New("no report ids given")
)
