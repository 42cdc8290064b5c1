package knowledge

import (
	"errors"
	"fmt"
	"strings"
)

// ErrIndexNotBuilt is returned by Query before the first successful Rebuild
// and after Dispose.
var ErrIndexNotBuilt = errors.New("knowledge index has not been built")

// ErrKnowledgeNotPermitted is returned by Query for stages that are not
// declared to need document context.
var ErrKnowledgeNotPermitted = errors.New("stage is not permitted to query the knowledge index")

// EmptyDocumentError reports that no usable input document was supplied.
type EmptyDocumentError struct {
	Reason string
}

func (e *EmptyDocumentError) Error() string {
	if e.Reason == "" {
		return "empty document"
	}
	return "empty document: " + e.Reason
}

// IndexConflictError reports that ingestion collided with state that should
// have been torn down. It indicates a teardown bug and must not be retried
// against the same state.
type IndexConflictError struct {
	Fingerprint string
	Found       []string
	Message     string
	Cause       error
}

func (e *IndexConflictError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "knowledge index conflict for document %s: %s", short(e.Fingerprint), e.Message)
	if len(e.Found) > 0 {
		found := make([]string, len(e.Found))
		for i, f := range e.Found {
			found[i] = short(f)
		}
		fmt.Fprintf(&sb, " (found %s)", strings.Join(found, ", "))
	}
	if e.Cause != nil {
		fmt.Fprintf(&sb, ": %v", e.Cause)
	}
	return sb.String()
}

func (e *IndexConflictError) Unwrap() error {
	return e.Cause
}

// TeardownReport lists what a teardown removed and what it failed to remove.
// Failures are informational only.
type TeardownReport struct {
	Removed []string
	Failed  map[string]error
}

func (r *TeardownReport) fail(path string, err error) {
	if r.Failed == nil {
		r.Failed = make(map[string]error)
	}
	r.Failed[path] = err
}

// OK reports whether every removal succeeded.
func (r TeardownReport) OK() bool {
	return len(r.Failed) == 0
}

func short(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}
