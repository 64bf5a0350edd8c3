package mcp

import (
	"net/http"

	"github.com/cardmart/cardmart/engine/core"
)

// JSON-RPC 2.0 error codes. The standard codes cover protocol failures;
// the -32001..-32007 range carries the domain error taxonomy.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603

	CodeUnauthorized        = -32001
	CodeRateLimited         = -32002
	CodeForbidden           = -32003
	CodeNotFound            = -32004
	CodeInvalidState        = -32005
	CodeAgentAccessDisabled = -32006
	CodeSelfPurchase        = -32007
)

// rpcCode maps a domain error code to its JSON-RPC counterpart. Codes
// without a dedicated slot collapse onto the nearest one so the table
// stays closed.
func rpcCode(code string) int {
	switch code {
	case core.CodeUnauthorized:
		return CodeUnauthorized
	case core.CodeRateLimited:
		return CodeRateLimited
	case core.CodeForbidden:
		return CodeForbidden
	case core.CodeNotFound:
		return CodeNotFound
	case core.CodeInvalidState, core.CodeExpired,
		core.CodeInsufficientFunds, core.CodePaymentDeclined:
		return CodeInvalidState
	case core.CodeAgentAccessDisabled:
		return CodeAgentAccessDisabled
	case core.CodeSelfPurchase:
		return CodeSelfPurchase
	case core.CodeValidation:
		return CodeInvalidParams
	default:
		return CodeInternalError
	}
}

// httpStatus maps a JSON-RPC error code to the transport status carried
// alongside the error body.
func httpStatus(code int) int {
	switch code {
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeForbidden, CodeAgentAccessDisabled, CodeSelfPurchase:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeInvalidState, CodeParseError, CodeInvalidRequest,
		CodeMethodNotFound, CodeInvalidParams:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
