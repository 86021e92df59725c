package srt

import (
	"errors"
	"fmt"
)

// ErrNotActive is returned by operations on an endpoint whose Run failed
// or which has since been stopped.
var ErrNotActive = errors.New("srt: endpoint is not active")

// ErrNotFound is returned by Server.ReadSocketStats for a connection id
// that is not in the active set. CloseConnection on such an id is a no-op
// and returns nothing.
var ErrNotFound = errors.New("srt: connection not found")

// ConfigError wraps a setup failure inside Run: an invalid address, a
// bind failure, or a rejected socket option.
type ConfigError struct {
	Op  string
	Err error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("srt: config: %s: %v", e.Op, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// StreamRejectedError is raised by Client.Run when the server rejects the
// connection. Code is the normalized application-level code: the raw SRT
// reject reason with the PREDEFINED offset subtracted, matching
// ex_libsrt's StreamRejectedException::GetCode.
type StreamRejectedError struct {
	Code int
}

func (e *StreamRejectedError) Error() string {
	return fmt.Sprintf("srt: stream rejected by server (code=%d)", e.Code)
}

// TransportFatalError wraps any other SRT library error raised in the
// Client's worker loop; its message is delivered via on_socket_error.
type TransportFatalError struct {
	Message string
}

func (e *TransportFatalError) Error() string {
	return "srt: transport error: " + e.Message
}
