// Package artifacts stores the named outputs of pipeline stages.
package artifacts

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// Artifact names, one per stage.
const (
	JobAnalysis        = "job_analysis"
	ResumeOptimization = "resume_optimization"
	CompanyResearch    = "company_research"
	OptimizedResume    = "optimized_resume"
	FinalReport        = "final_report"
)

// Names lists every artifact in the order the pipeline produces them.
var Names = []string{JobAnalysis, ResumeOptimization, CompanyResearch, OptimizedResume, FinalReport}

// Kind is the serialization of an artifact's content.
type Kind string

const (
	KindJSON Kind = "json"
	KindText Kind = "text"
)

// Extension returns the file extension used for the kind.
func (k Kind) Extension() string {
	if k == KindJSON {
		return ".json"
	}
	return ".md"
}

// ErrNotFound is returned when an artifact has not been written.
var ErrNotFound = errors.New("artifact not found")

// Artifact is a validated stage output.
type Artifact struct {
	Name          string    `json:"name"`
	Stage         string    `json:"stage"`
	SchemaVersion string    `json:"schema_version"`
	Kind          Kind      `json:"kind"`
	Content       []byte    `json:"-"`
	Checksum      string    `json:"checksum"`
	ProducedAt    time.Time `json:"produced_at"`
}

// New builds an artifact and stamps its checksum and production time.
func New(name, stage, schemaVersion string, kind Kind, content []byte) Artifact {
	return Artifact{
		Name:          name,
		Stage:         stage,
		SchemaVersion: schemaVersion,
		Kind:          kind,
		Content:       content,
		Checksum:      Checksum(content),
		ProducedAt:    time.Now().UTC(),
	}
}

// Checksum returns the hex SHA-256 of content.
func Checksum(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// Store persists artifacts by name. Put overwrites; readers never observe a
// partially written artifact.
type Store interface {
	Put(ctx context.Context, a Artifact) error
	Get(ctx context.Context, name string) (*Artifact, error)
	Exists(ctx context.Context, name string) (bool, error)
	List(ctx context.Context) ([]Artifact, error)
	ClearAll(ctx context.Context) error
}

// WriteError reports a failure of the backing medium while persisting an artifact.
type WriteError struct {
	Name  string
	Cause error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("failed to write artifact %s: %v", e.Name, e.Cause)
}

func (e *WriteError) Unwrap() error {
	return e.Cause
}

// StaleError reports an artifact whose content no longer matches its recorded checksum.
type StaleError struct {
	Name     string
	Expected string
	Actual   string
}

func (e *StaleError) Error() string {
	return fmt.Sprintf("artifact %s is stale: checksum %s does not match recorded %s", e.Name, short(e.Actual), short(e.Expected))
}

// IsKnown reports whether name is one of the pipeline's artifacts.
func IsKnown(name string) bool {
	for _, n := range Names {
		if n == name {
			return true
		}
	}
	return false
}

func short(s string) string {
	if len(s) > 12 {
		return s[:12]
	}
	return s
}
