package protocol

import "fmt"

// ProtocolError indicates a malformed frame or payload.
// A single protocol error is recoverable, the offending
// input should be skipped rather than tearing down the session.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error: %s", e.Reason)
}

func errProtocol(format string, args ...interface{}) error {
	return &ProtocolError{Reason: fmt.Sprintf(format, args...)}
}
