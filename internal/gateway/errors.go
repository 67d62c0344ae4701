package gateway

import "errors"

// Gateway errors
var (
	ErrConnClosed       = errors.New("connection closed")
	ErrWriteChannelFull = errors.New("write channel full")
	ErrKicked           = errors.New("kicked by server")
	ErrPanic            = errors.New("panic error")
)
