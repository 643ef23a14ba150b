package core

import (
	"fmt"
)

// Error represents an API error.
type Error struct {
	Type          ErrorType `json:"type"`
	Message       string    `json:"message"`
	Param         string    `json:"param,omitempty"`
	Code          string    `json:"code,omitempty"`
	RequestID     string    `json:"request_id,omitempty"`
	ProviderError any       `json:"provider_error,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (code: %s)", e.Type, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// ErrorType categorizes errors.
type ErrorType string

const (
	// ErrInvalidRequest covers malformed client input: bad JSON, missing
	// clientId, unknown actions.
	ErrInvalidRequest ErrorType = "invalid_request_error"
	// ErrInputRejected marks audio that never entered the pipeline (too
	// small, transcript empty after filtering). Reported in the action
	// response body, never as an HTTP failure.
	ErrInputRejected ErrorType = "input_rejected"
	// ErrDuplicate marks a transcript deduplicated against the previous
	// turn. Silently ignored.
	ErrDuplicate ErrorType = "duplicate_transcript"
	// ErrStaleResult marks a pipeline stage whose fencing token lost to a
	// newer turn. Never surfaced to the client.
	ErrStaleResult ErrorType = "stale_result"
	// ErrProvider covers transcription, completion, and synthesis backend
	// failures. Delivered to the client as an error outbox message.
	ErrProvider ErrorType = "provider_error"
	ErrNotFound ErrorType = "not_found_error"
	ErrAPI      ErrorType = "api_error"
)

// NewInvalidRequestError creates an invalid request error.
func NewInvalidRequestError(message string) *Error {
	return &Error{
		Type:    ErrInvalidRequest,
		Message: message,
	}
}

// NewInvalidRequestErrorWithParam creates an invalid request error with a parameter.
func NewInvalidRequestErrorWithParam(message, param string) *Error {
	return &Error{
		Type:    ErrInvalidRequest,
		Message: message,
		Param:   param,
	}
}

// NewInputRejectedError creates an input rejection with a machine-readable
// reason code ("audio_too_small", "empty_transcript").
func NewInputRejectedError(message, code string) *Error {
	return &Error{
		Type:    ErrInputRejected,
		Message: message,
		Code:    code,
	}
}

// NewDuplicateError marks a transcript as a near-duplicate of the last turn.
func NewDuplicateError(transcript string) *Error {
	return &Error{
		Type:    ErrDuplicate,
		Message: fmt.Sprintf("duplicate of previous utterance: %q", transcript),
		Code:    "duplicate",
	}
}

// NewStaleResultError marks work superseded by a newer turn.
func NewStaleResultError(stage, token string) *Error {
	return &Error{
		Type:    ErrStaleResult,
		Message: fmt.Sprintf("%s result discarded, response %s no longer current", stage, token),
	}
}

// NewNotFoundError creates a not found error.
func NewNotFoundError(message string) *Error {
	return &Error{
		Type:    ErrNotFound,
		Message: message,
	}
}

// NewAPIError creates a generic API error.
func NewAPIError(message string) *Error {
	return &Error{
		Type:    ErrAPI,
		Message: message,
	}
}

// NewProviderError creates a provider-specific error.
func NewProviderError(provider string, underlying error) *Error {
	return &Error{
		Type:          ErrProvider,
		Message:       fmt.Sprintf("%s: %v", provider, underlying),
		ProviderError: underlying.Error(),
	}
}

// Silent reports whether the error is an internal control-flow outcome that
// must not reach the client.
func (e *Error) Silent() bool {
	switch e.Type {
	case ErrStaleResult, ErrDuplicate:
		return true
	default:
		return false
	}
}

// Unwrap returns the underlying error for error wrapping.
func (e *Error) Unwrap() error {
	if ue, ok := e.ProviderError.(error); ok {
		return ue
	}
	return nil
}
