package dto

import "net/http"

// Error code constants organized by category
// Format: ERR_<CATEGORY>_<DESCRIPTION>

// General error codes
const (
	// ErrCodeUnknown is used when the error type is unknown
	ErrCodeUnknown = "ERR_UNKNOWN"
	// ErrCodeInternal is used for internal server errors
	ErrCodeInternal = "ERR_INTERNAL"
)

// Validation error codes
const (
	ErrCodeValidation = "ERR_VALIDATION"
	// ErrCodeInvalidCredential is used when a new credential fails the strength rules
	ErrCodeInvalidCredential = "ERR_INVALID_CREDENTIAL"
)

// Authentication error codes
const (
	// ErrCodeUnauthorized is used when authentication is required but missing/invalid
	ErrCodeUnauthorized = "ERR_UNAUTHORIZED"
	// ErrCodeAuthFailed is the single code for a failed login, whatever the cause
	ErrCodeAuthFailed = "ERR_AUTH_FAILED"
	// ErrCodeForbidden is used when the account lacks the required role
	ErrCodeForbidden    = "ERR_FORBIDDEN"
	ErrCodeTokenExpired = "ERR_TOKEN_EXPIRED"
	ErrCodeTokenInvalid = "ERR_TOKEN_INVALID"
	ErrCodeTokenRevoked = "ERR_TOKEN_REVOKED"
	// ErrCodeTokenMaxRefresh is used when a refresh token was rotated too often
	ErrCodeTokenMaxRefresh = "ERR_TOKEN_MAX_REFRESH"
)

// Resource error codes
const (
	ErrCodeNotFound      = "ERR_NOT_FOUND"
	ErrCodeAlreadyExists = "ERR_ALREADY_EXISTS"
	ErrCodeConflict      = "ERR_CONFLICT"
	// ErrCodeCollision is used when a derived username is held by another account
	ErrCodeCollision = "ERR_RECONCILIATION_COLLISION"
)

// Remote backend error codes
const (
	// ErrCodeBackendUnauthenticated is used when this service holds no session for the HR backend
	ErrCodeBackendUnauthenticated = "ERR_BACKEND_UNAUTHENTICATED"
	// ErrCodeBackendUnavailable is used when the HR backend cannot be reached
	ErrCodeBackendUnavailable = "ERR_BACKEND_UNAVAILABLE"
	ErrCodeBackendResponse    = "ERR_BACKEND_RESPONSE"
	// ErrCodeMutationRejected is used when the HR backend refused a change
	ErrCodeMutationRejected = "ERR_MUTATION_REJECTED"
)

// Input error codes
const (
	ErrCodeBadRequest   = "ERR_BAD_REQUEST"
	ErrCodeInvalidInput = "ERR_INVALID_INPUT"
	ErrCodeInvalidJSON  = "ERR_INVALID_JSON"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	// General errors
	ErrCodeUnknown:  http.StatusInternalServerError,
	ErrCodeInternal: http.StatusInternalServerError,

	// Validation errors -> 400 Bad Request
	ErrCodeValidation:        http.StatusBadRequest,
	ErrCodeInvalidCredential: http.StatusBadRequest,

	// Auth errors
	ErrCodeUnauthorized:    http.StatusUnauthorized,
	ErrCodeAuthFailed:      http.StatusUnauthorized,
	ErrCodeForbidden:       http.StatusForbidden,
	ErrCodeTokenExpired:    http.StatusUnauthorized,
	ErrCodeTokenInvalid:    http.StatusUnauthorized,
	ErrCodeTokenRevoked:    http.StatusUnauthorized,
	ErrCodeTokenMaxRefresh: http.StatusUnauthorized,

	// Resource errors
	ErrCodeNotFound:      http.StatusNotFound,
	ErrCodeAlreadyExists: http.StatusConflict,
	ErrCodeConflict:      http.StatusConflict,
	ErrCodeCollision:     http.StatusConflict,

	// Remote backend errors
	ErrCodeBackendUnauthenticated: http.StatusServiceUnavailable,
	ErrCodeBackendUnavailable:     http.StatusBadGateway,
	ErrCodeBackendResponse:        http.StatusBadGateway,
	ErrCodeMutationRejected:       http.StatusUnprocessableEntity,

	// Input errors -> 400 Bad Request
	ErrCodeBadRequest:   http.StatusBadRequest,
	ErrCodeInvalidInput: http.StatusBadRequest,
	ErrCodeInvalidJSON:  http.StatusBadRequest,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DomainErrorCodeMapping maps domain error codes to API error codes
var DomainErrorCodeMapping = map[string]string{
	"NOT_FOUND":                   ErrCodeNotFound,
	"ALREADY_EXISTS":              ErrCodeAlreadyExists,
	"INVALID_INPUT":               ErrCodeInvalidInput,
	"FORBIDDEN":                   ErrCodeForbidden,
	"INTERNAL_ERROR":              ErrCodeInternal,
	"UNAUTHENTICATED":             ErrCodeBackendUnauthenticated,
	"NETWORK_FAILURE":             ErrCodeBackendUnavailable,
	"UNRECOGNIZED_RESPONSE_SHAPE": ErrCodeBackendResponse,
	"MUTATION_REJECTED":           ErrCodeMutationRejected,
	"RECONCILIATION_COLLISION":    ErrCodeCollision,
	"CREDENTIAL_MISMATCH":         ErrCodeAuthFailed,
	"ACCOUNT_NOT_FOUND":           ErrCodeAuthFailed,
	"ACCOUNT_INACTIVE":            ErrCodeAuthFailed,
	"INVALID_CREDENTIAL":          ErrCodeInvalidCredential,
	"TOKEN_EXPIRED":               ErrCodeTokenExpired,
	"TOKEN_INVALID":               ErrCodeTokenInvalid,
	"TOKEN_REVOKED":               ErrCodeTokenRevoked,
	"TOKEN_MAX_REFRESH":           ErrCodeTokenMaxRefresh,
}

// NormalizeErrorCode converts a domain error code to the API format.
// Codes already in the API format or unknown codes are returned as-is.
func NormalizeErrorCode(code string) string {
	if apiCode, ok := DomainErrorCodeMapping[code]; ok {
		return apiCode
	}
	return code
}
