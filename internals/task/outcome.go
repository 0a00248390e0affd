package task

import "errors"

// OutcomeKind classifies what happened to one executor invocation.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeRetryableFailure
	OutcomeFatalFailure
)

// ExecutionOutcome is the value-typed result of an executor call. The retry
// decision is a pure function of this value, not of a caught error type.
type ExecutionOutcome struct {
	Kind     OutcomeKind
	Outputs  map[string]any
	Findings []Finding
	Err      error
}

func Succeeded(outputs map[string]any, findings []Finding) ExecutionOutcome {
	return ExecutionOutcome{Kind: OutcomeSuccess, Outputs: outputs, Findings: findings}
}

func RetryableFailure(err error) ExecutionOutcome {
	return ExecutionOutcome{Kind: OutcomeRetryableFailure, Err: err}
}

func FatalFailure(err error) ExecutionOutcome {
	return ExecutionOutcome{Kind: OutcomeFatalFailure, Err: err}
}

// ClassifyError folds an executor error into an outcome. An *ExecutionError
// carries its own retryable flag; any other error is fatal.
func ClassifyError(err error) ExecutionOutcome {
	var execErr *ExecutionError
	if errors.As(err, &execErr) && execErr.Retryable {
		return RetryableFailure(err)
	}
	return FatalFailure(err)
}
