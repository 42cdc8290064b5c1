package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const stepColumns = `id, run_id, step, category, status, started_at, completed_at,
	duration_ms, checksum, error_message, created_at, updated_at`

func scanStep(row pgx.Row) (*RunStep, error) {
	var step RunStep
	err := row.Scan(&step.ID, &step.RunID, &step.Step, &step.Category, &step.Status,
		&step.StartedAt, &step.CompletedAt, &step.DurationMs, &step.Checksum,
		&step.ErrorMessage, &step.CreatedAt, &step.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &step, nil
}

// StartRunStep records that a stage has started. Restarting a step resets it.
func (db *DB) StartRunStep(ctx context.Context, runID uuid.UUID, stepName, category string) (*RunStep, error) {
	step, err := scanStep(db.pool.QueryRow(ctx,
		`INSERT INTO run_steps (run_id, step, category, status, started_at)
		 VALUES ($1, $2, $3, $4, NOW())
		 ON CONFLICT (run_id, step) DO UPDATE
		 SET status = EXCLUDED.status, started_at = NOW(), completed_at = NULL,
		     duration_ms = NULL, checksum = NULL, error_message = NULL, updated_at = NOW()
		 RETURNING `+stepColumns,
		runID, stepName, category, StepStatusInProgress,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to start run step: %w", err)
	}
	return step, nil
}

// GetRunStep retrieves a run step by run_id and step name
func (db *DB) GetRunStep(ctx context.Context, runID uuid.UUID, stepName string) (*RunStep, error) {
	step, err := scanStep(db.pool.QueryRow(ctx,
		`SELECT `+stepColumns+` FROM run_steps WHERE run_id = $1 AND step = $2`,
		runID, stepName,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get run step: %w", err)
	}
	return step, nil
}

// ListRunSteps retrieves all steps for a run in execution order.
func (db *DB) ListRunSteps(ctx context.Context, runID uuid.UUID) ([]RunStep, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+stepColumns+` FROM run_steps WHERE run_id = $1 ORDER BY created_at`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list run steps: %w", err)
	}
	defer rows.Close()

	var steps []RunStep
	for rows.Next() {
		step, err := scanStep(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run step: %w", err)
		}
		steps = append(steps, *step)
	}
	return steps, rows.Err()
}

// FinishRunStep marks a step completed or failed and records its duration.
func (db *DB) FinishRunStep(ctx context.Context, runID uuid.UUID, stepName, status, checksum string, errorMsg *string) error {
	if status != StepStatusCompleted && status != StepStatusFailed {
		return fmt.Errorf("invalid final step status %q", status)
	}

	current, err := db.GetRunStep(ctx, runID, stepName)
	if err != nil {
		return err
	}
	if current == nil {
		return fmt.Errorf("step not found: %s", stepName)
	}

	now := time.Now()
	var durationMs *int
	if current.StartedAt != nil {
		d := int(now.Sub(*current.StartedAt).Milliseconds())
		durationMs = &d
	}

	_, err = db.pool.Exec(ctx,
		`UPDATE run_steps
		 SET status = $1, completed_at = $2, duration_ms = $3, checksum = NULLIF($4, ''),
		     error_message = $5, updated_at = NOW()
		 WHERE run_id = $6 AND step = $7`,
		status, now, durationMs, checksum, errorMsg, runID, stepName,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run step: %w", err)
	}
	return nil
}
