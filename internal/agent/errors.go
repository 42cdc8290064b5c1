package agent

import (
	"fmt"

	"github.com/jonathan/resume-optimizer/internal/tools"
)

// ToolError reports a failed tool invocation. The stage aborts; the call is
// not retried.
type ToolError struct {
	Stage string
	Tool  tools.Name
	Input string
	Cause error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("%s: tool %s failed for %q: %v", e.Stage, e.Tool, e.Input, e.Cause)
}

func (e *ToolError) Unwrap() error {
	return e.Cause
}

// ServiceError reports a failure of the reasoning service.
type ServiceError struct {
	Stage string
	Model string
	Cause error
}

func (e *ServiceError) Error() string {
	if e.Model != "" {
		return fmt.Sprintf("%s: reasoning service (%s) failed: %v", e.Stage, e.Model, e.Cause)
	}
	return fmt.Sprintf("%s: reasoning service failed: %v", e.Stage, e.Cause)
}

func (e *ServiceError) Unwrap() error {
	return e.Cause
}
