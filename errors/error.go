package errors

import (
	"fmt"
	"time"
)

// ErrorCode 定义错误代码类型
type ErrorCode int

// 错误代码常量
const (
	ErrCodeSuccess ErrorCode = iota
	ErrCodeInvalidRequest
	ErrCodeServiceUnavailable
	ErrCodeTimeout
	ErrCodeInternalError
	ErrCodeNotFound
	ErrCodeBind
	ErrCodeInvalidState
)

// Error carries a code that callers match with errors.Is, plus optional
// details and an underlying cause.
type Error struct {
	Code      ErrorCode
	Message   string
	Details   map[string]interface{}
	Timestamp time.Time
	Cause     error
}

// New 创建新的错误
func New(code ErrorCode, message string) *Error {
	return &Error{
		Code:      code,
		Message:   message,
		Details:   make(map[string]interface{}),
		Timestamp: time.Now(),
	}
}

// Newf is New with a formatted message.
func Newf(code ErrorCode, format string, args ...interface{}) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// WithDetail 添加错误详情
func (e *Error) WithDetail(key string, value interface{}) *Error {
	e.Details[key] = value
	return e
}

// WithCause 设置错误原因
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	if target, ok := target.(*Error); ok {
		return e.Code == target.Code
	}
	return false
}

// MultiError 多错误集合
type MultiError struct {
	Errors []error
	Code   ErrorCode
}

func NewMultiError(errors []error) *MultiError {
	return &MultiError{
		Errors: errors,
		Code:   ErrCodeInternalError,
	}
}

func (e *MultiError) Add(err error) {
	e.Errors = append(e.Errors, err)
}

func (e *MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "no errors"
	}
	return fmt.Sprintf("%d errors: %v", len(e.Errors), e.Errors)
}

// Unwrap lets errors.Is and errors.As look at every collected error.
func (e *MultiError) Unwrap() []error {
	return e.Errors
}

func (e *MultiError) HasErrors() bool {
	return len(e.Errors) > 0
}

// ErrorOrNil returns nil when no error has been collected.
func (e *MultiError) ErrorOrNil() error {
	if e == nil || !e.HasErrors() {
		return nil
	}
	return e
}

// 预定义错误, only meant as errors.Is targets. Never mutate them.
var (
	ErrInvalidRequest     = New(ErrCodeInvalidRequest, "invalid request")
	ErrServiceUnavailable = New(ErrCodeServiceUnavailable, "service unavailable")
	ErrTimeout            = New(ErrCodeTimeout, "request timeout")
	ErrInternalError      = New(ErrCodeInternalError, "internal error")
	ErrNotFound           = New(ErrCodeNotFound, "not found")
	ErrBind               = New(ErrCodeBind, "bind failed")
	ErrInvalidState       = New(ErrCodeInvalidState, "invalid state")
)
