package core

import "net/http"

// Problem captures the information rendered in a REST error response body:
// {status, error, details?, code?}.
type Problem struct {
	Status  int    `json:"status"`
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	Code    string `json:"code,omitempty"`
}

// HTTPStatus maps an error code to its transport status.
func HTTPStatus(code string) int {
	switch code {
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden, CodeAgentAccessDisabled, CodeSelfPurchase:
		return http.StatusForbidden
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeNotFound:
		return http.StatusNotFound
	case CodeInvalidState, CodeExpired, CodeInsufficientFunds, CodeValidation:
		return http.StatusBadRequest
	case CodePaymentDeclined:
		return http.StatusPaymentRequired
	default:
		return http.StatusInternalServerError
	}
}

// ProblemFromError builds the REST error body for a typed error.
func ProblemFromError(err *Error) *Problem {
	status := HTTPStatus(err.Code)
	return &Problem{
		Status:  status,
		Error:   http.StatusText(status),
		Details: err.Message,
		Code:    err.Code,
	}
}
