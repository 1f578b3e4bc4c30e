package payment

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition means a terminal intent was asked to take a
// different outcome than the one it settled on. Re-reporting the same
// outcome is a no-op, never an error.
var ErrInvalidTransition = errors.New("payment already resolved with a different outcome")

// ErrUnknownMethod means the requested payment method has no gateway.
var ErrUnknownMethod = errors.New("unsupported payment method")

// GatewayError wraps a failed call to a payment gateway.
type GatewayError struct {
	Gateway string
	Op      string
	Err     error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("%s %s failed: %v", e.Gateway, e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}
