package client

import "fmt"

// OperationError reports an operation invoked while the session is in
// a state that forbids it. Operations that return it are no-ops.
type OperationError struct {
	Op    string
	State State
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("%s is not allowed while the session is %s", e.Op, e.State)
}

func errState(op string, state State) error {
	return &OperationError{Op: op, State: state}
}
