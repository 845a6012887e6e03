package resolver

import (
	"context"
	"errors"
	"net"
)

// transienter is implemented by errors (e.g. provider HTTP errors) that know
// whether retrying can help.
type transienter interface {
	Transient() bool
}

// IsTransient reports whether the error is a retryable external failure:
// timeouts, network errors, and provider rate limits. Validation failures
// and context cancellation are not transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var t transienter
	if errors.As(err, &t) {
		return t.Transient()
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return false
}
