package scheduler

import "fmt"

// Kind is the closed set of error kinds a scheduler run may terminate with.
type Kind string

const (
	KindNoRepository        Kind = "no_repository"
	KindBudgetExceeded      Kind = "budget_exceeded"
	KindMaxTurnsExceeded    Kind = "max_turns_exceeded"
	KindDoomLoop            Kind = "doom_loop"
	KindCancelled           Kind = "cancelled"
	KindJournalFailure      Kind = "journal_failure"
	KindPolicyDenied        Kind = "policy_denied"
	KindApprovalDenied      Kind = "approval_denied"
	KindToolExecutionError  Kind = "tool_execution_error"
	KindInvalidModelResponse Kind = "invalid_model_response"
)

// Error is the scheduler's structured error type; callers should use
// errors.As to recover the Kind rather than string-matching Error().
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("scheduler: %s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("scheduler: %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func newError(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}
