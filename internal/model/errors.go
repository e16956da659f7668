package model

import "fmt"

// ErrorCode is a stable, machine-readable error classification
type ErrorCode string

const (
	CodeMalformedFactStore ErrorCode = "MALFORMED_FACT_STORE"
)

// ErrMalformedFactStore matches (via errors.Is) any error raised because the
// top-level input is not a mapping of field name to a sequence of records.
var ErrMalformedFactStore = &CodedError{Code: CodeMalformedFactStore, Message: "fact store must map field names to arrays of records"}

// CodedError carries a stable code, a human message and an optional cause
type CodedError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func (e *CodedError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *CodedError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches on code so wrapped instances compare equal to the sentinel
func (e *CodedError) Is(target error) bool {
	t, ok := target.(*CodedError)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// MalformedFactStore builds an ErrMalformedFactStore instance with detail
func MalformedFactStore(format string, args ...interface{}) *CodedError {
	return &CodedError{Code: CodeMalformedFactStore, Message: fmt.Sprintf(format, args...)}
}

// MalformedFactStoreWrap is MalformedFactStore with an underlying cause
func MalformedFactStoreWrap(err error, format string, args ...interface{}) *CodedError {
	return &CodedError{Code: CodeMalformedFactStore, Message: fmt.Sprintf(format, args...), Err: err}
}
