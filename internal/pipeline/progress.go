package pipeline

// Status of a progress event.
type Status string

// Progress statuses
const (
	StatusStarted   Status = "started"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// ProgressEvent represents a progress update during pipeline execution
type ProgressEvent struct {
	RunID    string `json:"run_id,omitempty"`
	Stage    string `json:"stage"`
	Category string `json:"category,omitempty"`
	Status   Status `json:"status"`
	Message  string `json:"message"`
	Artifact string `json:"artifact,omitempty"`
}

// ProgressCallback is called when pipeline progress occurs
type ProgressCallback func(event ProgressEvent)
