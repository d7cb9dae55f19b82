package domain

import (
	"errors"
	"fmt"
)

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

// Is reports whether target is a DomainError carrying the same code.
// It lets callers match the sentinel values below with errors.Is even when
// the error was created with a more specific message.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return t.Code == e.Code
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

// Code returns the code of the outermost DomainError in err's chain, or an
// empty string when there is none.
func Code(err error) string {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return ""
}

// Error codes
const (
	ErrCodeMalformedRequest     = "MALFORMED_REQUEST"
	ErrCodeRequestTooLarge      = "REQUEST_TOO_LARGE"
	ErrCodeUnsupportedFormat    = "UNSUPPORTED_FORMAT"
	ErrCodeExtractionFailure    = "EXTRACTION_FAILURE"
	ErrCodeEmbeddingUnavailable = "EMBEDDING_UNAVAILABLE"
	ErrCodeGatewayUnavailable   = "GATEWAY_UNAVAILABLE"
	ErrCodeGatewayProtocol      = "GATEWAY_PROTOCOL_ERROR"
	ErrCodeContextTooLarge      = "CONTEXT_TOO_LARGE"
	ErrCodeGenerationFailure    = "GENERATION_FAILURE"
	ErrCodeNotFound             = "NOT_FOUND"
	ErrCodeInternalError        = "INTERNAL_ERROR"
)

// Request errors
var (
	ErrMalformedRequest   = NewDomainError(ErrCodeMalformedRequest, "malformed request")
	ErrMissingInstruction = NewDomainError(ErrCodeMalformedRequest, "instruction is required")
	ErrNoDocuments        = NewDomainError(ErrCodeMalformedRequest, "at least one document is required")
	ErrEmptyQuestion      = NewDomainError(ErrCodeMalformedRequest, "question is required")
	ErrInvalidSessionID   = NewDomainError(ErrCodeMalformedRequest, "invalid session id")
	ErrRequestTooLarge    = NewDomainError(ErrCodeRequestTooLarge, "request body too large")
)

// Document errors
var (
	ErrUnsupportedFormat = NewDomainError(ErrCodeUnsupportedFormat, "unsupported document format")
	ErrExtractionFailure = NewDomainError(ErrCodeExtractionFailure, "failed to extract document text")
	ErrContextTooLarge   = NewDomainError(ErrCodeContextTooLarge, "document exceeds the model input limit")
)

// Model errors
var (
	ErrEmbeddingUnavailable = NewDomainError(ErrCodeEmbeddingUnavailable, "embedding model unavailable")
	ErrGatewayUnavailable   = NewDomainError(ErrCodeGatewayUnavailable, "language model unavailable")
	ErrGatewayProtocol      = NewDomainError(ErrCodeGatewayProtocol, "malformed language model response")
	ErrGenerationFailure    = NewDomainError(ErrCodeGenerationFailure, "failed to generate answer")
)

// Not found errors
var (
	ErrSessionNotFound = NewDomainError(ErrCodeNotFound, "chat session not found")
)
