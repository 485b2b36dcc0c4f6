package client

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
)

// TransportError is a failed write or read against the active strategy:
// a network error, a non-2xx proxy response, or a data-layer error.
type TransportError struct {
	Strategy Strategy
	Op       Target
	Status   int
	Err      error
}

func (e *TransportError) Error() string {
	if e == nil {
		return ""
	}
	if e.Status != 0 {
		return fmt.Sprintf("%s persistence: %s: status %d: %v", e.Strategy, e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s persistence: %s: %v", e.Strategy, e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ConfigurationError means the active strategy is missing something it needs.
// It is raised when a call is attempted and is never retried.
type ConfigurationError struct {
	Strategy Strategy
	Missing  string
}

func (e *ConfigurationError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s persistence is not configured: missing %s", e.Strategy, e.Missing)
}

func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// misconfigured fails every call with the same ConfigurationError.
type misconfigured struct {
	err *ConfigurationError
}

func (m misconfigured) execute(context.Context, Operation) (bool, error) {
	return false, m.err
}
