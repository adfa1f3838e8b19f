package executor

import (
	"fmt"
	"time"
)

// ErrorKind classifies execution failures. Each kind maps to a distinct
// failure mode a caller may want to branch on.
type ErrorKind int

const (
	// KindSecurityViolation marks code rejected by the pre-execution screen.
	KindSecurityViolation ErrorKind = iota
	// KindUnsupportedOperation marks a tool or language with no registered builder.
	KindUnsupportedOperation
	// KindLaunchFailure marks a container that could not be created or started.
	KindLaunchFailure
	// KindTimeout marks an execution force-killed at its deadline.
	KindTimeout
	// KindNonZeroExit marks a container that ran to completion with a non-zero exit code.
	KindNonZeroExit
	// KindInternalError marks everything else: bad arguments, log collection
	// failures, runtime faults.
	KindInternalError
)

// String returns the kind's wire name.
func (k ErrorKind) String() string {
	switch k {
	case KindSecurityViolation:
		return "security_violation"
	case KindUnsupportedOperation:
		return "unsupported_operation"
	case KindLaunchFailure:
		return "launch_failure"
	case KindTimeout:
		return "timeout"
	case KindNonZeroExit:
		return "non_zero_exit"
	default:
		return "internal_error"
	}
}

// Error is a classified execution failure.
type Error struct {
	Kind   ErrorKind
	Detail string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

// Result is the outcome of one tool invocation. Every invocation yields
// exactly one Result; there is no implicit retry.
type Result struct {
	Success  bool          `json:"success"`
	Output   string        `json:"output"`
	Error    string        `json:"error,omitempty"`
	Kind     string        `json:"error_kind,omitempty"`
	Duration time.Duration `json:"duration"`
	ExecID   string        `json:"exec_id"`
}

// failure builds a failed Result from a classified error.
func failure(execID string, kind ErrorKind, detail string, duration time.Duration) Result {
	return Result{
		Success:  false,
		Error:    detail,
		Kind:     kind.String(),
		Duration: duration,
		ExecID:   execID,
	}
}
