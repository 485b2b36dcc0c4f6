package assistant

import "fmt"

// ValidationError rejects input before any network call.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// PhaseError is an operation attempted in the wrong phase. It has no side effects.
type PhaseError struct {
	Phase Phase
	Op    string
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("%s is not allowed in phase %q", e.Op, e.Phase)
}
