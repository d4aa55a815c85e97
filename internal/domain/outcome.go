package domain

// ResultKind tags a backend submission result.
type ResultKind string

const (
	ResultSuccess ResultKind = "success"
	ResultError   ResultKind = "error"
)

// SubmissionResult is the backend's answer to a submit call.
// Kind is empty when the backend answered with something unrecognised.
type SubmissionResult struct {
	Kind    ResultKind
	Message string
}

// FailureMessage exposes the backend-supplied message of an error result.
func (r SubmissionResult) FailureMessage() string {
	if r.Kind != ResultError {
		return ""
	}
	return r.Message
}

// OutcomeKind tags the result of one submission attempt.
type OutcomeKind string

const (
	OutcomeSuccess OutcomeKind = "success"
	OutcomeError   OutcomeKind = "error"
)

// Outcome is produced exactly once per submission attempt.
type Outcome struct {
	Kind    OutcomeKind `json:"kind"`
	Message string      `json:"message,omitempty"`
}

// Succeeded returns a success outcome.
func Succeeded() Outcome {
	return Outcome{Kind: OutcomeSuccess}
}

// Failed returns an error outcome carrying a user-facing message.
func Failed(message string) Outcome {
	return Outcome{Kind: OutcomeError, Message: message}
}

// OK reports whether the attempt succeeded.
func (o Outcome) OK() bool {
	return o.Kind == OutcomeSuccess
}
