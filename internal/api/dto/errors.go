package dto

// Error codes returned in ErrorResponse.Code.
const (
	CodeAuthenticationRequired = "AUTHENTICATION_REQUIRED"
	CodeForbidden              = "FORBIDDEN"
	CodeNotFound               = "NOT_FOUND"
	CodeValidation             = "VALIDATION"
	CodePayloadTooLarge        = "PAYLOAD_TOO_LARGE"
	CodeConflict               = "CONFLICT"
	CodeRateLimited            = "RATE_LIMITED"
	CodeUnavailable            = "UNAVAILABLE"
	CodeInternal               = "INTERNAL"
)

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Code    string            `json:"code"`
	Details map[string]string `json:"details,omitempty"`
}
