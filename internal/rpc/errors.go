package rpc

import (
	"errors"
	"fmt"

	"github.com/quantumauth-io/wallet-bridge/internal/assets"
	"github.com/quantumauth-io/wallet-bridge/internal/chains"
	"github.com/quantumauth-io/wallet-bridge/internal/pending"
	"github.com/quantumauth-io/wallet-bridge/internal/permissions"
	"github.com/quantumauth-io/wallet-bridge/internal/units"
	"github.com/quantumauth-io/wallet-bridge/internal/vault"
)

// JSON-RPC error codes (EIP-1474 / EIP-1193 style)
const (
	CodeParseError        = -32700
	CodeInvalidRequest    = -32600
	CodeMethodNotFound    = -32601
	CodeInvalidParams     = -32602
	CodeInternalError     = -32603
	CodeInsufficientFunds = -32000

	CodeUserRejected      = 4001
	CodeUnauthorized      = 4100
	CodeUnrecognizedChain = 4902
)

// Error is the error member of a response.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

func invalidParams(format string, args ...any) *Error {
	return &Error{Code: CodeInvalidParams, Message: fmt.Sprintf(format, args...)}
}

func unauthorized(msg string) *Error {
	return &Error{Code: CodeUnauthorized, Message: msg}
}

func userRejected(reason string) *Error {
	e := &Error{Code: CodeUserRejected, Message: "User rejected the request."}
	if reason != "" {
		e.Data = map[string]string{"reason": reason}
	}
	return e
}

var errAddressMismatch = invalidParams("address mismatch")

// toError converts any handler error into a response error.
func toError(err error) *Error {
	var rpcErr *Error
	if errors.As(err, &rpcErr) {
		return rpcErr
	}

	var cancelErr *pending.CancelError
	switch {
	case errors.Is(err, vault.ErrLocked), errors.Is(err, vault.ErrWrongPassword):
		return unauthorized("The wallet is locked.")
	case errors.Is(err, vault.ErrNoAccountSelected):
		return unauthorized("No accounts available.")
	case errors.Is(err, vault.ErrInvalidKey),
		errors.Is(err, vault.ErrInvalidMnemonic),
		errors.Is(err, vault.ErrInvalidAccountCount),
		errors.Is(err, vault.ErrAccountNotFound),
		errors.Is(err, vault.ErrWalletNotFound),
		errors.Is(err, chains.ErrInvalidChain),
		errors.Is(err, chains.ErrChainInUse),
		errors.Is(err, assets.ErrInvalidToken),
		errors.Is(err, units.ErrInvalidAmount),
		errors.Is(err, permissions.ErrInvalidOrigin):
		return &Error{Code: CodeInvalidParams, Message: err.Error()}
	case errors.Is(err, chains.ErrChainNotFound):
		return &Error{Code: CodeUnrecognizedChain, Message: err.Error()}
	case errors.Is(err, pending.ErrExpired):
		return userRejected("expired")
	case errors.As(err, &cancelErr):
		return userRejected(cancelErr.Reason)
	case errors.Is(err, pending.ErrCancelled), errors.Is(err, pending.ErrClosed):
		return userRejected("cancelled")
	default:
		// Dispatch logs the cause. Pages only see the code.
		return &Error{Code: CodeInternalError, Message: "Internal error"}
	}
}
