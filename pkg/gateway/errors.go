package gateway

import (
	"context"
	"fmt"
	"net"

	"github.com/pkg/errors"
	openai "github.com/sashabaranov/go-openai"
)

// ErrMissingCredential is returned before any network traffic when no API key
// is configured.
var ErrMissingCredential = errors.New("model gateway: missing API credential")

type FailureKind string

const (
	FailureTimeout   FailureKind = "timeout"
	FailureNetwork   FailureKind = "network"
	FailureStatus    FailureKind = "status"
	FailureMalformed FailureKind = "malformed"
)

// ExternalModelError is any non-success outcome of the model call. Callers
// fall back to the deterministic reply; it is never shown to end users.
type ExternalModelError struct {
	Kind   FailureKind
	Status int
	Err    error
}

func (e *ExternalModelError) Error() string {
	if e == nil {
		return ""
	}
	if e.Status != 0 {
		return fmt.Sprintf("model gateway: %s (status %d): %v", e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("model gateway: %s: %v", e.Kind, e.Err)
}

func (e *ExternalModelError) Unwrap() error { return e.Err }

func classify(ctx context.Context, err error) *ExternalModelError {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &ExternalModelError{Kind: FailureStatus, Status: apiErr.HTTPStatusCode, Err: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return &ExternalModelError{Kind: FailureStatus, Status: reqErr.HTTPStatusCode, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
		return &ExternalModelError{Kind: FailureTimeout, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return &ExternalModelError{Kind: FailureTimeout, Err: err}
		}
		return &ExternalModelError{Kind: FailureNetwork, Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return &ExternalModelError{Kind: FailureNetwork, Err: err}
	}
	return &ExternalModelError{Kind: FailureMalformed, Err: err}
}
