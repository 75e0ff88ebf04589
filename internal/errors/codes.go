package errors

import (
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
	ErrCodeInvalidArgument    ErrorCode = 1000
	ErrCodeKeyNotFound        ErrorCode = 1001
	ErrCodeNoValueAtTimestamp ErrorCode = 1002
	ErrCodeKeyTooLarge        ErrorCode = 1003
	ErrCodeValueTooLarge      ErrorCode = 1004
	ErrCodeInvalidNamespace   ErrorCode = 1005
	ErrCodeInvalidKey         ErrorCode = 1006

	// Server errors (5xx equivalent)
	ErrCodeInternal           ErrorCode = 2000
	ErrCodeCycleDetected      ErrorCode = 2001
	ErrCodeDuplicateNode      ErrorCode = 2002
	ErrCodeUnknownParent      ErrorCode = 2003
	ErrCodeAddressingFailure  ErrorCode = 2004
	ErrCodePersistenceFailure ErrorCode = 2005
	ErrCodeChecksumFailed     ErrorCode = 2006
	ErrCodeCorruptedReplay    ErrorCode = 2007
	ErrCodeResourceExhausted  ErrorCode = 2008
)

// EngineError represents a structured error with code and context
type EngineError struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Cause   error
}

// Error implements the error interface
func (e *EngineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error
func (e *EngineError) Unwrap() error {
	return e.Cause
}

// ToGRPCStatus converts EngineError to gRPC status
func (e *EngineError) ToGRPCStatus() *status.Status {
	return status.New(e.toGRPCCode(), e.Error())
}

// toGRPCCode maps internal error codes to gRPC codes
func (e *EngineError) toGRPCCode() codes.Code {
	switch e.Code {
	case ErrCodeOK:
		return codes.OK
	case ErrCodeInvalidArgument, ErrCodeKeyTooLarge, ErrCodeValueTooLarge,
		ErrCodeInvalidNamespace, ErrCodeInvalidKey, ErrCodeAddressingFailure:
		return codes.InvalidArgument
	case ErrCodeKeyNotFound, ErrCodeNoValueAtTimestamp:
		return codes.NotFound
	case ErrCodeCycleDetected, ErrCodeDuplicateNode, ErrCodeUnknownParent:
		return codes.FailedPrecondition
	case ErrCodeChecksumFailed, ErrCodeCorruptedReplay:
		return codes.DataLoss
	case ErrCodePersistenceFailure:
		return codes.Unavailable
	case ErrCodeResourceExhausted:
		return codes.ResourceExhausted
	default:
		return codes.Internal
	}
}

// NewEngineError creates a new EngineError
func NewEngineError(code ErrorCode, message string, cause error) *EngineError {
	return &EngineError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Cause:   cause,
	}
}

// WithDetail adds a detail to the error
func (e *EngineError) WithDetail(key string, value interface{}) *EngineError {
	e.Details[key] = value
	return e
}

// Convenience constructors for common errors

func InvalidArgument(message string, cause error) *EngineError {
	return NewEngineError(ErrCodeInvalidArgument, message, cause)
}

func KeyNotFound(namespace, key string) *EngineError {
	return NewEngineError(ErrCodeKeyNotFound, fmt.Sprintf("key not found: %s:%s", namespace, key), nil).
		WithDetail("namespace", namespace).
		WithDetail("key", key)
}

func NoValueAtTimestamp(namespace, key string, timestamp int64) *EngineError {
	return NewEngineError(ErrCodeNoValueAtTimestamp,
		fmt.Sprintf("no value for %s:%s at timestamp %d", namespace, key, timestamp), nil).
		WithDetail("namespace", namespace).
		WithDetail("key", key).
		WithDetail("timestamp", timestamp)
}

func KeyTooLarge(size, maxSize int) *EngineError {
	return NewEngineError(ErrCodeKeyTooLarge, fmt.Sprintf("key size %d exceeds maximum %d", size, maxSize), nil).
		WithDetail("size", size).
		WithDetail("max_size", maxSize)
}

func ValueTooLarge(size, maxSize int) *EngineError {
	return NewEngineError(ErrCodeValueTooLarge, fmt.Sprintf("value size %d exceeds maximum %d", size, maxSize), nil).
		WithDetail("size", size).
		WithDetail("max_size", maxSize)
}

func InvalidNamespace(namespace, reason string) *EngineError {
	return NewEngineError(ErrCodeInvalidNamespace, fmt.Sprintf("invalid namespace '%s': %s", namespace, reason), nil).
		WithDetail("namespace", namespace).
		WithDetail("reason", reason)
}

func InvalidKey(key, reason string) *EngineError {
	return NewEngineError(ErrCodeInvalidKey, fmt.Sprintf("invalid key '%s': %s", key, reason), nil).
		WithDetail("key", key).
		WithDetail("reason", reason)
}

func CycleDetected(writeID string) *EngineError {
	return NewEngineError(ErrCodeCycleDetected, fmt.Sprintf("recording %s would create a lineage cycle", writeID), nil).
		WithDetail("write_id", writeID)
}

func DuplicateNode(writeID string) *EngineError {
	return NewEngineError(ErrCodeDuplicateNode, fmt.Sprintf("lineage node already exists: %s", writeID), nil).
		WithDetail("write_id", writeID)
}

func UnknownParent(writeID, parentID string) *EngineError {
	return NewEngineError(ErrCodeUnknownParent,
		fmt.Sprintf("lineage parent %s of %s is not recorded", parentID, writeID), nil).
		WithDetail("write_id", writeID).
		WithDetail("parent_id", parentID)
}

func AddressingFailure(message string, cause error) *EngineError {
	return NewEngineError(ErrCodeAddressingFailure, message, cause)
}

func PersistenceFailure(message string, cause error) *EngineError {
	return NewEngineError(ErrCodePersistenceFailure, message, cause)
}

func ChecksumFailed(expected, actual uint32) *EngineError {
	return NewEngineError(ErrCodeChecksumFailed, fmt.Sprintf("checksum validation failed: expected %d, got %d", expected, actual), nil).
		WithDetail("expected", expected).
		WithDetail("actual", actual)
}

func CorruptedReplay(message string, cause error) *EngineError {
	return NewEngineError(ErrCodeCorruptedReplay, message, cause)
}

func InternalError(message string, cause error) *EngineError {
	return NewEngineError(ErrCodeInternal, message, cause)
}

func ResourceExhausted(resource string, current, limit int) *EngineError {
	return NewEngineError(ErrCodeResourceExhausted, fmt.Sprintf("%s exhausted: %d/%d", resource, current, limit), nil).
		WithDetail("resource", resource).
		WithDetail("current", current).
		WithDetail("limit", limit)
}

// IsEngineError checks if an error is an EngineError
func IsEngineError(err error) bool {
	_, ok := err.(*EngineError)
	return ok
}

// GetCode extracts the error code from an error
func GetCode(err error) ErrorCode {
	if ee, ok := err.(*EngineError); ok {
		return ee.Code
	}
	return ErrCodeInternal
}

// IsNotFound reports whether the error is one of the recoverable
// absent-result outcomes
func IsNotFound(err error) bool {
	code := GetCode(err)
	return code == ErrCodeKeyNotFound || code == ErrCodeNoValueAtTimestamp
}
