package services

import (
	"errors"
	"fmt"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeValidation        ErrorType = "validation"
	ErrorTypeEmbeddingFailure  ErrorType = "embedding_failure"
	ErrorTypeIndexUnavailable  ErrorType = "index_unavailable"
	ErrorTypeGenerationFailure ErrorType = "generation_failure"
	ErrorTypeInternal          ErrorType = "internal"
)

// DomainError represents a structured error with additional context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches any DomainError of the same type
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// WithDetail adds a detail to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// Sentinels for errors.Is. Never attach details to these; use the constructors below.
var (
	ErrEmbeddingFailure  = NewDomainError(ErrorTypeEmbeddingFailure, "embedding failed", nil)
	ErrIndexUnavailable  = NewDomainError(ErrorTypeIndexUnavailable, "catalog index unavailable", nil)
	ErrGenerationFailure = NewDomainError(ErrorTypeGenerationFailure, "answer generation failed", nil)
)

// NewValidationFailure reports a rejected input
func NewValidationFailure(message string) *DomainError {
	return NewDomainError(ErrorTypeValidation, message, nil)
}

// NewEmbeddingFailure reports that the embedding provider could not produce a usable vector
func NewEmbeddingFailure(message string, err error) *DomainError {
	return NewDomainError(ErrorTypeEmbeddingFailure, message, err)
}

// NewIndexUnavailable reports that the vector search backend failed
func NewIndexUnavailable(message string, err error) *DomainError {
	return NewDomainError(ErrorTypeIndexUnavailable, message, err)
}

// NewGenerationFailure reports a failed or empty completion
func NewGenerationFailure(message string, err error) *DomainError {
	return NewDomainError(ErrorTypeGenerationFailure, message, err)
}

// Error type checking helper functions

func isType(err error, errType ErrorType) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == errType
	}
	return false
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return isType(err, ErrorTypeValidation)
}

// IsEmbeddingFailure checks if an error came from the embedding stage
func IsEmbeddingFailure(err error) bool {
	return isType(err, ErrorTypeEmbeddingFailure)
}

// IsIndexUnavailable checks if an error came from the search stage
func IsIndexUnavailable(err error) bool {
	return isType(err, ErrorTypeIndexUnavailable)
}

// IsRetrievalFailure is true for embedding and search stage failures
func IsRetrievalFailure(err error) bool {
	return IsEmbeddingFailure(err) || IsIndexUnavailable(err)
}

// IsGenerationFailure checks if an error came from the completion stage
func IsGenerationFailure(err error) bool {
	return isType(err, ErrorTypeGenerationFailure)
}

// IsInternalError checks if an error is an internal error
func IsInternalError(err error) bool {
	return isType(err, ErrorTypeInternal)
}

// GetErrorType returns the ErrorType of a domain error, or empty string if not a domain error
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// GetErrorDetails returns the details map of a domain error, or nil if not a domain error
func GetErrorDetails(err error) map[string]interface{} {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Details
	}
	return nil
}
