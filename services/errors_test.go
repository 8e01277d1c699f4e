package services

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDomainError(t *testing.T) {
	baseErr := errors.New("connection refused")
	domainErr := NewDomainError(ErrorTypeIndexUnavailable, "search failed", baseErr)

	assert.Equal(t, ErrorTypeIndexUnavailable, domainErr.Type)
	assert.Equal(t, "search failed", domainErr.Message)
	assert.Equal(t, baseErr, domainErr.Err)
	assert.NotNil(t, domainErr.Details)
}

func TestDomainError_Error(t *testing.T) {
	tests := []struct {
		name    string
		err     *DomainError
		wantMsg string
	}{
		{
			name:    "error with wrapped error",
			err:     NewEmbeddingFailure("provider call failed", errors.New("timeout")),
			wantMsg: "embedding_failure: provider call failed (timeout)",
		},
		{
			name:    "error without wrapped error",
			err:     NewValidationFailure("messages are required"),
			wantMsg: "validation: messages are required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantMsg, tt.err.Error())
		})
	}
}

func TestDomainError_Unwrap(t *testing.T) {
	baseErr := errors.New("base error")
	domainErr := NewGenerationFailure("completion failed", baseErr)

	assert.Equal(t, baseErr, errors.Unwrap(domainErr))
	assert.True(t, errors.Is(domainErr, baseErr))
}

func TestDomainError_Is(t *testing.T) {
	err := NewIndexUnavailable("search failed", errors.New("boom"))
	wrapped := fmt.Errorf("answer: %w", err)

	assert.True(t, errors.Is(wrapped, ErrIndexUnavailable))
	assert.False(t, errors.Is(wrapped, ErrEmbeddingFailure))
	assert.False(t, errors.Is(wrapped, ErrGenerationFailure))
}

func TestDomainError_WithDetail(t *testing.T) {
	err := NewValidationFailure("bad top k").WithDetail("top_k", 0)

	details := GetErrorDetails(err)
	require.NotNil(t, details)
	assert.Equal(t, 0, details["top_k"])

	bare := &DomainError{Type: ErrorTypeInternal}
	bare.WithDetail("k", "v")
	assert.Equal(t, "v", bare.Details["k"])
}

func TestErrorTypeHelpers(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		validation bool
		embedding  bool
		index      bool
		generation bool
		internal   bool
	}{
		{name: "validation", err: NewValidationFailure("x"), validation: true},
		{name: "embedding", err: NewEmbeddingFailure("x", nil), embedding: true},
		{name: "index", err: NewIndexUnavailable("x", nil), index: true},
		{name: "generation", err: NewGenerationFailure("x", nil), generation: true},
		{name: "internal", err: NewDomainError(ErrorTypeInternal, "x", errors.New("y")), internal: true},
		{name: "plain error", err: errors.New("plain")},
		{name: "nil", err: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.validation, IsValidationError(tt.err))
			assert.Equal(t, tt.embedding, IsEmbeddingFailure(tt.err))
			assert.Equal(t, tt.index, IsIndexUnavailable(tt.err))
			assert.Equal(t, tt.embedding || tt.index, IsRetrievalFailure(tt.err))
			assert.Equal(t, tt.generation, IsGenerationFailure(tt.err))
			assert.Equal(t, tt.internal, IsInternalError(tt.err))
		})
	}
}

func TestGetErrorType(t *testing.T) {
	assert.Equal(t, ErrorTypeGenerationFailure, GetErrorType(fmt.Errorf("wrap: %w", NewGenerationFailure("x", nil))))
	assert.Equal(t, ErrorType(""), GetErrorType(errors.New("plain")))
	assert.Nil(t, GetErrorDetails(errors.New("plain")))
}
