package core

import (
	"errors"
	"fmt"
)

// Error code taxonomy shared by every wire adapter. Codes classify a failure;
// the adapters decide how to render them (HTTP status, JSON-RPC code).
const (
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeForbidden           = "FORBIDDEN"
	CodeRateLimited         = "RATE_LIMITED"
	CodeNotFound            = "NOT_FOUND"
	CodeInvalidState        = "INVALID_STATE"
	CodeExpired             = "EXPIRED"
	CodeAgentAccessDisabled = "AGENT_ACCESS_DISABLED"
	CodeSelfPurchase        = "SELF_PURCHASE"
	CodeInsufficientFunds   = "INSUFFICIENT_FUNDS"
	CodePaymentDeclined     = "PAYMENT_DECLINED"
	CodeValidation          = "VALIDATION"
	CodeInternal            = "INTERNAL"
)

// Error is the canonical typed error carried from the services to the wire
// adapters. Message is safe for external callers; Err holds the internal
// cause and is only ever logged.
type Error struct {
	Err     error
	Code    string
	Message string
	Extras  map[string]any
}

// NewError creates a typed error with an externally visible message.
func NewError(err error, code string, message string) *Error {
	return &Error{Err: err, Code: code, Message: message}
}

// NewErrorWithExtras creates a typed error carrying additional
// adapter-renderable fields (e.g. retry_after for rate limits).
func NewErrorWithExtras(err error, code string, message string, extras map[string]any) *Error {
	return &Error{Err: err, Code: code, Message: message, Extras: extras}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// AsError extracts a typed *Error from an error chain. When the chain carries
// no typed error the failure is classified as internal and the store-level
// detail is withheld from the external message.
func AsError(err error) *Error {
	var typed *Error
	if errors.As(err, &typed) {
		return typed
	}
	return &Error{Err: err, Code: CodeInternal, Message: "internal error"}
}

// Internal wraps an unexpected failure without leaking its detail.
func Internal(err error) *Error {
	return &Error{Err: err, Code: CodeInternal, Message: "internal error"}
}
