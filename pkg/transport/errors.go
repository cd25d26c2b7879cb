package transport

import "fmt"

// TransportError wraps failures at the socket and handshake level,
// DNS failures, refused connections, handshake rejections and
// write failures all surface as this type.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %s", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func errTransport(op string, err error) error {
	return &TransportError{Op: op, Err: err}
}
