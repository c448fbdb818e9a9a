package errors

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrorCode represents internal error codes for engine operations
type ErrorCode int

const (
	// Success
	ErrCodeOK ErrorCode = 0

	// Client errors (4xx equivalent)
	ErrCodeInvalidArgument ErrorCode = 1000
	ErrCodeNotFound        ErrorCode = 1001
	ErrCodeTypeMismatch    ErrorCode = 1002
	ErrCodeAlreadyExists   ErrorCode = 1003
	ErrCodeKeyTooLarge     ErrorCode = 1004
	ErrCodeValueTooLarge   ErrorCode = 1005

	// Contention and capacity errors
	ErrCodeBusy             ErrorCode = 1100
	ErrCodeAborted          ErrorCode = 1101
	ErrCodeCapacityExceeded ErrorCode = 1102
	ErrCodeTxClosed         ErrorCode = 1103

	// Server errors (5xx equivalent)
	ErrCodeInternal      ErrorCode = 2000
	ErrCodeCorruptedData ErrorCode = 2001
)

// StoreError represents a structured error with code and context
type StoreError struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Cause   error
}

// Error implements the error interface
func (e *StoreError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error
func (e *StoreError) Unwrap() error {
	return e.Cause
}

// ToGRPCStatus converts StoreError to a gRPC status for transport layers
// built on top of the engine
func (e *StoreError) ToGRPCStatus() *status.Status {
	return status.New(e.toGRPCCode(), e.Error())
}

// toGRPCCode maps internal error codes to gRPC codes
func (e *StoreError) toGRPCCode() codes.Code {
	switch e.Code {
	case ErrCodeOK:
		return codes.OK
	case ErrCodeInvalidArgument, ErrCodeKeyTooLarge, ErrCodeValueTooLarge:
		return codes.InvalidArgument
	case ErrCodeNotFound:
		return codes.NotFound
	case ErrCodeTypeMismatch, ErrCodeTxClosed:
		return codes.FailedPrecondition
	case ErrCodeAlreadyExists:
		return codes.AlreadyExists
	case ErrCodeBusy:
		return codes.Unavailable
	case ErrCodeAborted:
		return codes.Aborted
	case ErrCodeCapacityExceeded:
		return codes.ResourceExhausted
	case ErrCodeCorruptedData:
		return codes.DataLoss
	default:
		return codes.Internal
	}
}

// NewStoreError creates a new StoreError
func NewStoreError(code ErrorCode, message string, cause error) *StoreError {
	return &StoreError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Cause:   cause,
	}
}

// WithDetail adds a detail to the error
func (e *StoreError) WithDetail(key string, value interface{}) *StoreError {
	e.Details[key] = value
	return e
}

// Convenience constructors for common errors

func InvalidArgument(message string, cause error) *StoreError {
	return NewStoreError(ErrCodeInvalidArgument, message, cause)
}

func NotFound(key string) *StoreError {
	return NewStoreError(ErrCodeNotFound, fmt.Sprintf("key not found: %s", key), nil).
		WithDetail("key", key)
}

func FieldNotFound(key, field string) *StoreError {
	return NewStoreError(ErrCodeNotFound, fmt.Sprintf("field not found: %s.%s", key, field), nil).
		WithDetail("key", key).
		WithDetail("field", field)
}

func IndexNotFound(name string) *StoreError {
	return NewStoreError(ErrCodeNotFound, fmt.Sprintf("index not found: %s", name), nil).
		WithDetail("index", name)
}

func TypeMismatch(key, want, got string) *StoreError {
	return NewStoreError(ErrCodeTypeMismatch,
		fmt.Sprintf("wrong value kind for key %s: operation requires %s, holds %s", key, want, got), nil).
		WithDetail("key", key).
		WithDetail("want", want).
		WithDetail("got", got)
}

func AlreadyExists(name string) *StoreError {
	return NewStoreError(ErrCodeAlreadyExists, fmt.Sprintf("index already exists: %s", name), nil).
		WithDetail("index", name)
}

func KeyTooLarge(size, maxSize int) *StoreError {
	return NewStoreError(ErrCodeKeyTooLarge, fmt.Sprintf("key size %d exceeds maximum %d", size, maxSize), nil).
		WithDetail("size", size).
		WithDetail("max_size", maxSize)
}

func ValueTooLarge(size, maxSize int) *StoreError {
	return NewStoreError(ErrCodeValueTooLarge, fmt.Sprintf("value size %d exceeds maximum %d", size, maxSize), nil).
		WithDetail("size", size).
		WithDetail("max_size", maxSize)
}

func Busy(key string, cause error) *StoreError {
	return NewStoreError(ErrCodeBusy, fmt.Sprintf("lock acquisition timed out: %s", key), cause).
		WithDetail("key", key)
}

func Aborted(txID, conflictKey string) *StoreError {
	return NewStoreError(ErrCodeAborted,
		fmt.Sprintf("transaction %s aborted: watched key changed: %s", txID, conflictKey), nil).
		WithDetail("tx_id", txID).
		WithDetail("key", conflictKey)
}

func TxClosed(txID, state string) *StoreError {
	return NewStoreError(ErrCodeTxClosed,
		fmt.Sprintf("transaction %s already resolved: %s", txID, state), nil).
		WithDetail("tx_id", txID).
		WithDetail("state", state)
}

func CapacityExceeded(entries, limit int) *StoreError {
	return NewStoreError(ErrCodeCapacityExceeded,
		fmt.Sprintf("eviction budget exhausted: %d entries, limit %d", entries, limit), nil).
		WithDetail("entries", entries).
		WithDetail("limit", limit)
}

func InternalError(message string, cause error) *StoreError {
	return NewStoreError(ErrCodeInternal, message, cause)
}

func CorruptedData(message string, cause error) *StoreError {
	return NewStoreError(ErrCodeCorruptedData, message, cause)
}

// IsStoreError checks if an error is a StoreError
func IsStoreError(err error) bool {
	var se *StoreError
	return errors.As(err, &se)
}

// GetCode extracts the error code from an error
func GetCode(err error) ErrorCode {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Code
	}
	return ErrCodeInternal
}

// Predicates for callers that branch on the error class.

func IsNotFound(err error) bool         { return GetCode(err) == ErrCodeNotFound }
func IsTypeMismatch(err error) bool     { return GetCode(err) == ErrCodeTypeMismatch }
func IsBusy(err error) bool             { return GetCode(err) == ErrCodeBusy }
func IsAborted(err error) bool          { return GetCode(err) == ErrCodeAborted }
func IsAlreadyExists(err error) bool    { return GetCode(err) == ErrCodeAlreadyExists }
func IsCapacityExceeded(err error) bool { return GetCode(err) == ErrCodeCapacityExceeded }
