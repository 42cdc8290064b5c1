package db

import (
	"context"

	"github.com/google/uuid"

	"github.com/jonathan/resume-optimizer/internal/types"
)

// Tracker records pipeline runs and their stages.
type Tracker struct {
	db *DB
}

// NewTracker creates a run tracker over db.
func NewTracker(db *DB) *Tracker {
	return &Tracker{db: db}
}

// RunStarted records a new run.
func (t *Tracker) RunStarted(ctx context.Context, id uuid.UUID, in types.RunInputs) error {
	return t.db.CreateRun(ctx, id, in.CompanyName, in.JobURL, in.DocumentName)
}

// StepStarted records that a stage began.
func (t *Tracker) StepStarted(ctx context.Context, id uuid.UUID, stage, category string) error {
	_, err := t.db.StartRunStep(ctx, id, stage, category)
	return err
}

// StepFinished records a stage outcome and the checksum of its artifact.
func (t *Tracker) StepFinished(ctx context.Context, id uuid.UUID, stage, checksum string, stepErr error) error {
	if stepErr != nil {
		return t.db.FinishRunStep(ctx, id, stage, StepStatusFailed, "", errorText(stepErr))
	}
	return t.db.FinishRunStep(ctx, id, stage, StepStatusCompleted, checksum, nil)
}

// RunFinished records the run outcome and the ingested document fingerprint.
func (t *Tracker) RunFinished(ctx context.Context, id uuid.UUID, fingerprint string, runErr error) error {
	if runErr != nil {
		return t.db.CompleteRun(ctx, id, RunStatusFailed, fingerprint, errorText(runErr))
	}
	return t.db.CompleteRun(ctx, id, RunStatusCompleted, fingerprint, nil)
}

func errorText(err error) *string {
	s := err.Error()
	return &s
}
