package errcode

import "fmt"

// Error represents a coded error. Errors with the same code match under errors.Is.
type Error struct {
	Code  int    `json:"code"`
	Msg   string `json:"msg"`
	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("errcode: %d, msg: %s: %v", e.Code, e.Msg, e.cause)
	}
	return fmt.Sprintf("errcode: %d, msg: %s", e.Code, e.Msg)
}

// New creates a new error with code and message
func New(code int, msg string) *Error {
	return &Error{Code: code, Msg: msg}
}

// Wrap returns a copy of e carrying err as its cause
func (e *Error) Wrap(err error) *Error {
	if err == nil {
		return e
	}
	return &Error{
		Code:  e.Code,
		Msg:   e.Msg,
		cause: err,
	}
}

// Unwrap returns the wrapped cause, if any
func (e *Error) Unwrap() error {
	return e.cause
}

// Is reports whether target is an *Error with the same code
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Common error codes
var (
	// Common errors (1xxx)
	ErrInvalidParam   = New(1001, "invalid parameter")
	ErrInternalServer = New(1002, "internal server error")
	ErrUnauthorized   = New(1003, "unauthorized")
	ErrNotFound       = New(1005, "not found")

	// Auth errors (2xxx)
	ErrTokenInvalid = New(2001, "token invalid")
	ErrTokenMissing = New(2003, "token missing")

	// Message errors (4xxx)
	ErrSendFailed     = New(4005, "message send failed")
	ErrFetchFailed    = New(4007, "fetch failed")
	ErrEmptyMessage   = New(4008, "message content is empty")
	ErrNoConversation = New(4009, "no conversation open")
	ErrSendInFlight   = New(4010, "a send is already in flight")

	// Connection errors (5xxx)
	ErrConnClosed    = New(5002, "connection closed")
	ErrConnectFailed = New(5005, "connect failed")
	ErrNotConnected  = New(5006, "not connected")
)

// IsConnectionError reports whether err belongs to the connection class (5xxx)
func IsConnectionError(err error) bool {
	return hasCodeIn(err, 5000, 5999)
}

func hasCodeIn(err error, lo, hi int) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Code >= lo && e.Code <= hi
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
