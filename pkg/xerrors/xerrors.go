// Package xerrors defines the simulator's typed error taxonomy. Every
// use-case method returns one of these (wrapped with errors.Is-compatible
// sentinels plus a structured *Error for the fields a client needs, like
// retry_after), never a bare fmt.Errorf string a caller has to pattern
// match against.
package xerrors

import (
	"errors"
	"fmt"
	"time"
)

// Code classifies an Error for API responses and log correlation.
type Code string

const (
	CodeRateLimited      Code = "RATE_LIMITED"
	CodeInvalidSymbol    Code = "INVALID_SYMBOL"
	CodeSymbolNotFound   Code = "SYMBOL_NOT_FOUND"
	CodeMissingPrice     Code = "MISSING_PRICE"
	CodeMissingStopPrice Code = "MISSING_STOP_PRICE"
	CodeValidationFailed Code = "VALIDATION_FAILED"
	CodeAccountError     Code = "ACCOUNT_ERROR"
	CodeOrderNotFound    Code = "ORDER_NOT_FOUND"
	CodeMissingOrderID   Code = "MISSING_ORDER_ID"
	CodeShardShutdown    Code = "SHARD_SHUTDOWN"
	CodeTimeout          Code = "TIMEOUT"
	CodeInternal         Code = "INTERNAL"
)

// Error is the structured form every use-case returns. RetryAfter is only
// meaningful when Code == CodeRateLimited.
type Error struct {
	Code       Code
	Message    string
	RetryAfter time.Duration
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is supports errors.Is(err, xerrors.RateLimited) style sentinel checks by
// comparing on Code alone, ignoring Message/RetryAfter/Cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func newCode(code Code) *Error { return &Error{Code: code} }

// Sentinel values for errors.Is comparisons; construct a fresh *Error with
// New for anything that needs a Message/Cause attached.
var (
	RateLimited      = newCode(CodeRateLimited)
	InvalidSymbol    = newCode(CodeInvalidSymbol)
	SymbolNotFound   = newCode(CodeSymbolNotFound)
	MissingPrice     = newCode(CodeMissingPrice)
	MissingStopPrice = newCode(CodeMissingStopPrice)
	ValidationFailed = newCode(CodeValidationFailed)
	AccountError     = newCode(CodeAccountError)
	OrderNotFound    = newCode(CodeOrderNotFound)
	MissingOrderID   = newCode(CodeMissingOrderID)
	ShardShutdown    = newCode(CodeShardShutdown)
	Timeout          = newCode(CodeTimeout)
	Internal         = newCode(CodeInternal)
)

// New builds an *Error with a human message and optional wrapped cause.
func New(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// NewRateLimited builds a CodeRateLimited error carrying retryAfter.
func NewRateLimited(retryAfter time.Duration) *Error {
	return &Error{Code: CodeRateLimited, Message: "rate limit exceeded", RetryAfter: retryAfter}
}

// As extracts an *Error from err, if any wraps one.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
