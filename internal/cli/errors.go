// Package cli wires the task engine to a project's plugin registry,
// artifact cache, catalog engine, state store, pipeline runner, and
// reservoir — turning a requested task key into a built task.Graph and
// running it. This is the layer cmd/alto calls into.
package cli

import "fmt"

// Exit codes per spec.md §6: "Exit code is 0 on success, non-zero
// equal to the failing task's exit code." Parse/config failures that
// never reach a task get the small reserved codes below; anything
// task.Outcome reports propagates that code verbatim.
const (
	ExitSuccess           = 0
	ExitInvalidInvocation = 2
	ExitConfigError       = 3
	ExitInternalError     = 4
)

// InvocationError carries the exit code a CLI-level (not task-level)
// failure should surface as.
type InvocationError struct {
	ExitCode int
	Message  string
}

func (e *InvocationError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func invalidInvocationf(format string, args ...any) error {
	return &InvocationError{ExitCode: ExitInvalidInvocation, Message: fmt.Sprintf(format, args...)}
}
