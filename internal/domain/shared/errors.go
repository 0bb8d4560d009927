package shared

import "errors"

// DomainError represents a domain-level error
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// Is reports whether target is a DomainError with the same code, so wrapped
// errors created with NewDomainError match the sentinels below via errors.Is.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// PublicAuthFailureMessage is the only message callers outside the process see
// for a failed authentication, whatever the underlying reason.
const PublicAuthFailureMessage = "Invalid username or password"

// Common domain errors
var (
	ErrNotFound      = NewDomainError("NOT_FOUND", "Resource not found")
	ErrAlreadyExists = NewDomainError("ALREADY_EXISTS", "Resource already exists")
	ErrInvalidInput  = NewDomainError("INVALID_INPUT", "Invalid input provided")
	ErrForbidden     = NewDomainError("FORBIDDEN", "Access to this resource is forbidden")

	// Gateway failures
	ErrUnauthenticated           = NewDomainError("UNAUTHENTICATED", "No valid session")
	ErrNetworkFailure            = NewDomainError("NETWORK_FAILURE", "Remote backend unreachable")
	ErrUnrecognizedResponseShape = NewDomainError("UNRECOGNIZED_RESPONSE_SHAPE", "Unrecognized response envelope")
	ErrMutationRejected          = NewDomainError("MUTATION_REJECTED", "Remote backend rejected the change")

	// Reconciliation and authentication failures
	ErrReconciliationCollision = NewDomainError("RECONCILIATION_COLLISION", "Username already belongs to another account")
	ErrCredentialMismatch      = NewDomainError("CREDENTIAL_MISMATCH", PublicAuthFailureMessage)
	ErrAccountNotFound         = NewDomainError("ACCOUNT_NOT_FOUND", PublicAuthFailureMessage)
	ErrAccountInactive         = NewDomainError("ACCOUNT_INACTIVE", PublicAuthFailureMessage)
	ErrInvalidCredential       = NewDomainError("INVALID_CREDENTIAL", "Credential does not meet requirements")
)

// IsAuthFailure reports whether err is one of the undifferentiated
// authentication failures.
func IsAuthFailure(err error) bool {
	var de *DomainError
	if !errors.As(err, &de) {
		return false
	}
	switch de.Code {
	case ErrCredentialMismatch.Code, ErrAccountNotFound.Code, ErrAccountInactive.Code:
		return true
	}
	return false
}
