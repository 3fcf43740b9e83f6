// Package kgerr defines the error taxonomy shared across the knowledge
// graph core. Validation failures are always surfaced to callers; they are
// distinct from the gatekeeper's silent rejection of semantically empty
// triplets, which is intentional filtering and produces no error at all.
package kgerr

import "fmt"

// ValidationError reports caller-supplied input that is out of range or
// malformed: sentiment outside [-1,1], missing identifiers, bad time input.
// Never corrected silently.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// Validationf builds a ValidationError with a formatted message.
func Validationf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// ExtractionError reports a malformed upstream extraction payload.
// Individual malformed triples are skipped with a warning; the batch
// continues.
type ExtractionError struct {
	Msg string
	Err error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// AgentNotFoundError reports an operation addressed to an agent the
// manager has never seen.
type AgentNotFoundError struct {
	Agent string
}

func (e *AgentNotFoundError) Error() string {
	return fmt.Sprintf("agent %q not found", e.Agent)
}
