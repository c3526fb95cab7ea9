package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the domain layer.
var (
	ErrNotFound            = fmt.Errorf("not found")
	ErrInvalidInput        = fmt.Errorf("invalid input")
	ErrAgentNotFound       = fmt.Errorf("agent: %w", ErrNotFound)
	ErrSpecFormat          = fmt.Errorf("agent spec format error")
	ErrProviderUnavailable = fmt.Errorf("search provider unavailable")
	ErrRateLimit           = fmt.Errorf("rate limit exceeded")
	ErrConfigMissing       = fmt.Errorf("required configuration missing")
	ErrAuthInvalid         = fmt.Errorf("authentication failed")
	ErrCircuitOpen         = fmt.Errorf("circuit breaker open")
	ErrEmptyResponse       = fmt.Errorf("agent returned no message")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op     string // operation name (e.g., "Chat.Run")
	Err    error  // underlying sentinel or wrapped error
	Detail string // human-readable detail
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// FormatError reports an agent specification document that cannot be parsed.
// It always matches ErrSpecFormat under errors.Is.
type FormatError struct {
	Path   string
	Reason string
	Err    error // optional underlying parse error
}

func (e *FormatError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Path, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is makes every FormatError match ErrSpecFormat.
func (e *FormatError) Is(target error) bool { return target == ErrSpecFormat }

func (e *FormatError) Unwrap() error { return e.Err }

// IsRetryableError reports whether err is a transient error that may succeed on retry.
func IsRetryableError(err error) bool {
	return errors.Is(err, ErrRateLimit) || errors.Is(err, ErrProviderUnavailable)
}

// ErrorCode is a machine-parseable error category for monitoring and API responses.
type ErrorCode string

const (
	CodeUnknown             ErrorCode = "UNKNOWN"
	CodeNotFound            ErrorCode = "NOT_FOUND"
	CodeAgentNotFound       ErrorCode = "AGENT_NOT_FOUND"
	CodeInvalidInput        ErrorCode = "INVALID_INPUT"
	CodeSpecFormat          ErrorCode = "SPEC_FORMAT"
	CodeProviderUnavailable ErrorCode = "PROVIDER_UNAVAILABLE"
	CodeRateLimit           ErrorCode = "RATE_LIMIT"
	CodeConfigMissing       ErrorCode = "CONFIG_MISSING"
	CodeAuthInvalid         ErrorCode = "AUTH_INVALID"
	CodeCircuitOpen         ErrorCode = "CIRCUIT_OPEN"
	CodeEmptyResponse       ErrorCode = "EMPTY_RESPONSE"
)

// codeOrder lists sentinels from most to least specific; ErrAgentNotFound must
// precede ErrNotFound because it wraps it.
var codeOrder = []struct {
	err  error
	code ErrorCode
}{
	{ErrAgentNotFound, CodeAgentNotFound},
	{ErrNotFound, CodeNotFound},
	{ErrInvalidInput, CodeInvalidInput},
	{ErrSpecFormat, CodeSpecFormat},
	{ErrProviderUnavailable, CodeProviderUnavailable},
	{ErrRateLimit, CodeRateLimit},
	{ErrConfigMissing, CodeConfigMissing},
	{ErrAuthInvalid, CodeAuthInvalid},
	{ErrCircuitOpen, CodeCircuitOpen},
	{ErrEmptyResponse, CodeEmptyResponse},
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}
	for _, c := range codeOrder {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeUnknown
}
