package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

// ErrAlreadyRun is returned when an Orchestrator is asked to run twice.
var ErrAlreadyRun = errors.New("orchestrator has already been used; create a new one per run")

// SetupStage names the work done before the first stage: knowledge ingest
// and clearing the previous run's artifacts.
const SetupStage = "setup"

// StageError is the single error returned for a halted run. It names the
// stage that failed and wraps its cause.
type StageError struct {
	Stage string
	Cause error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed: %v", e.Stage, e.Cause)
}

func (e *StageError) Unwrap() error {
	return e.Cause
}

// InputError lists every missing or invalid run input. It is returned before
// any side effect.
type InputError struct {
	Fields []string
	Cause  error
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid run inputs: %s", strings.Join(e.Fields, ", "))
}

func (e *InputError) Unwrap() error {
	return e.Cause
}
