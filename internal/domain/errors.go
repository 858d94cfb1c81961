package domain

import "fmt"

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     nil,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common domain error codes
const (
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeInvalidOperation = "INVALID_OPERATION"
	ErrCodeUnavailable      = "UNAVAILABLE"
	ErrCodeInternalError    = "INTERNAL_ERROR"
)

// Ownership validation errors. These are programmer/data errors and are
// rejected before any network or store call.
var (
	ErrMissingOwner                 = NewDomainError(ErrCodeValidation, "embedding owner requires a general item id or a wishlist id")
	ErrAmbiguousOwner               = NewDomainError(ErrCodeValidation, "embedding owner cannot have both a general item id and a wishlist id")
	ErrDonorOfferWithoutGeneralItem = NewDomainError(ErrCodeValidation, "donor offer id requires a general item id")
	ErrWrongDimensions              = NewDomainError(ErrCodeValidation, "embedding vector has wrong dimensions")
	ErrNoRemoveIdentifiers          = NewDomainError(ErrCodeValidation, "at least one embedding id or wishlist id is required")
)

// Not found errors
var (
	ErrEmbeddingNotFound    = NewDomainError(ErrCodeNotFound, "embedding not found")
	ErrDonorOfferNotFound   = NewDomainError(ErrCodeNotFound, "donor offer not found")
	ErrLineItemNotFound     = NewDomainError(ErrCodeNotFound, "line item not found")
	ErrDistributionNotFound = NewDomainError(ErrCodeNotFound, "distribution not found")
)

// Operation errors
var (
	ErrGeneralItemEmbeddingDelete = NewDomainError(ErrCodeInvalidOperation, "general item embeddings cannot be deleted directly")
	ErrPreviewInProgress          = NewDomainError(ErrCodeInvalidOperation, "a suggestion preview is already in progress for this offer")
	ErrNoActivePreview            = NewDomainError(ErrCodeInvalidOperation, "no suggestion preview is in progress for this offer")
)

// Configuration errors. Embedding generation fails closed before any store
// mutation when no client is configured.
var (
	ErrEmbeddingNotConfigured = NewDomainError(ErrCodeUnavailable, "embedding client is not configured")
)
