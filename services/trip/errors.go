package trip

import (
	"errors"
	"fmt"
)

// ProviderError wraps a failed provider call. Retryable errors are
// transport faults and 5xx responses; a 4xx means the request itself
// is bad and retrying will not help.
type ProviderError struct {
	Op        string
	Retryable bool
	Err       error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s failed: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err is a provider fault worth retrying.
func IsRetryable(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}
