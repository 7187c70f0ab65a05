package errorutil

import (
	"errors"
	"fmt"
	"net/http"
)

// Codes carried by DomainError. They appear verbatim in HTTP error bodies.
const (
	CodeValidation   = "VALIDATION_FAILED"
	CodeNotFound     = "NOT_FOUND"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeForbidden    = "FORBIDDEN"
	CodeConflict     = "CONFLICT"
	CodeClaimLimit   = "CLAIM_LIMIT_REACHED"
	CodeBusy         = "BUSY"
	CodeInternal     = "INTERNAL_ERROR"
	CodeHTTP         = "HTTP_ERROR"
)

const internalMessage = "internal server error"

// DomainError is the error shape shared by services, commands and HTTP
// handlers. Message is safe to show to the caller; Err keeps the cause for logs.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError constructs a DomainError without a cause.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidation, message, http.StatusBadRequest, details)
}

// NewNotFound names the missing resource in the message; details is never nil.
func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return NewDomainError(CodeNotFound, resource+" not found", http.StatusNotFound, details)
}

func NewUnauthorized(message string) error {
	return NewDomainError(CodeUnauthorized, message, http.StatusUnauthorized, nil)
}

func NewForbidden(message string) error {
	return NewDomainError(CodeForbidden, message, http.StatusForbidden, nil)
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError(CodeConflict, message, http.StatusConflict, details)
}

// NewLimitReached reports that an agent already holds the permitted number of claims.
func NewLimitReached(limit, active int) error {
	msg := fmt.Sprintf("You have reached the claim limit (%d/%d). Close or unclaim a ticket first.", active, limit)
	return NewDomainError(CodeClaimLimit, msg, http.StatusConflict,
		map[string]any{"claim_limit": limit, "active_claims": active})
}

// NewBusy reports a contended resource the caller may retry.
func NewBusy(message string, err error) error {
	de := NewDomainError(CodeBusy, message, http.StatusServiceUnavailable, nil)
	de.Err = err
	return de
}

func NewInternalError(err error) error {
	de := NewDomainError(CodeInternal, internalMessage, http.StatusInternalServerError, nil)
	de.Err = err
	return de
}

// ToDomainError finds a DomainError in err's chain. Anything else becomes an
// internal error wrapping err.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var de *DomainError
	if errors.As(err, &de) {
		return de
	}
	return NewInternalError(err).(*DomainError)
}

func MapError(err error) error {
	return ToDomainError(err)
}

// HasCode reports whether err resolves to a DomainError with code.
func HasCode(err error, code string) bool {
	return err != nil && ToDomainError(err).Code == code
}

// IsInternal reports whether err should be treated as a server-side failure.
func IsInternal(err error) bool {
	return ToDomainError(err).HTTPStatus >= http.StatusInternalServerError
}
