package analysis

import "fmt"

// NetworkError is a transport-level failure: no HTTP response was received.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network: %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ServerError is a non-2xx response whose error envelope decoded.
type ServerError struct {
	Stage   string
	Status  int
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("server: %s (status %d): %s", e.Stage, e.Status, e.Message)
}

// DecodeError is a 2xx response that failed to decode into the expected
// stage shape.
type DecodeError struct {
	Stage  string
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("invalid response for %s: %s", e.Stage, e.Reason)
}
