package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jonathan/resume-optimizer/internal/artifacts"
)

// ArtifactStore is an artifacts.Store backed by the stage_artifacts table.
// Each artifact name holds one row; Put replaces it in a single statement.
type ArtifactStore struct {
	db *DB
	// RunID attributes written artifacts to a pipeline run when set.
	RunID uuid.UUID
}

// NewArtifactStore creates a store over db.
func NewArtifactStore(db *DB) *ArtifactStore {
	return &ArtifactStore{db: db}
}

// ForRun returns a copy of the store that attributes writes to runID. The
// run must already be recorded in pipeline_runs.
func (s *ArtifactStore) ForRun(runID uuid.UUID) artifacts.Store {
	return &ArtifactStore{db: s.db, RunID: runID}
}

func (s *ArtifactStore) runRef() *uuid.UUID {
	if s.RunID == uuid.Nil {
		return nil
	}
	id := s.RunID
	return &id
}

var _ artifacts.Store = (*ArtifactStore)(nil)

// Put implements artifacts.Store.
func (s *ArtifactStore) Put(ctx context.Context, a artifacts.Artifact) error {
	if !artifacts.IsKnown(a.Name) {
		return &artifacts.WriteError{Name: a.Name, Cause: fmt.Errorf("unknown artifact")}
	}
	_, err := s.db.pool.Exec(ctx,
		`INSERT INTO stage_artifacts (name, stage, schema_version, kind, content, checksum, produced_at, run_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (name) DO UPDATE
		 SET stage = EXCLUDED.stage, schema_version = EXCLUDED.schema_version, kind = EXCLUDED.kind,
		     content = EXCLUDED.content, checksum = EXCLUDED.checksum,
		     produced_at = EXCLUDED.produced_at, run_id = EXCLUDED.run_id`,
		a.Name, a.Stage, a.SchemaVersion, string(a.Kind), a.Content, a.Checksum, a.ProducedAt, s.runRef(),
	)
	if err != nil {
		return &artifacts.WriteError{Name: a.Name, Cause: err}
	}
	return nil
}

const artifactColumns = `name, stage, schema_version, kind, content, checksum, produced_at`

func scanArtifact(row pgx.Row) (*artifacts.Artifact, error) {
	var a artifacts.Artifact
	var kind string
	if err := row.Scan(&a.Name, &a.Stage, &a.SchemaVersion, &kind, &a.Content, &a.Checksum, &a.ProducedAt); err != nil {
		return nil, err
	}
	a.Kind = artifacts.Kind(kind)
	if actual := artifacts.Checksum(a.Content); actual != a.Checksum {
		return nil, &artifacts.StaleError{Name: a.Name, Expected: a.Checksum, Actual: actual}
	}
	return &a, nil
}

// Get implements artifacts.Store.
func (s *ArtifactStore) Get(ctx context.Context, name string) (*artifacts.Artifact, error) {
	a, err := scanArtifact(s.db.pool.QueryRow(ctx,
		`SELECT `+artifactColumns+` FROM stage_artifacts WHERE name = $1`, name))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", artifacts.ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get artifact %s: %w", name, err)
	}
	return a, nil
}

// Exists implements artifacts.Store.
func (s *ArtifactStore) Exists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := s.db.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM stage_artifacts WHERE name = $1)`, name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check artifact %s: %w", name, err)
	}
	return exists, nil
}

// List implements artifacts.Store. Artifacts are returned in pipeline order.
func (s *ArtifactStore) List(ctx context.Context) ([]artifacts.Artifact, error) {
	rows, err := s.db.pool.Query(ctx,
		`SELECT `+artifactColumns+` FROM stage_artifacts WHERE name = ANY($1)
		 ORDER BY array_position($1, name)`, artifacts.Names)
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}
	defer rows.Close()

	var list []artifacts.Artifact
	for rows.Next() {
		a, err := scanArtifact(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan artifact: %w", err)
		}
		list = append(list, *a)
	}
	return list, rows.Err()
}

// ClearAll implements artifacts.Store.
func (s *ArtifactStore) ClearAll(ctx context.Context) error {
	if _, err := s.db.pool.Exec(ctx, `DELETE FROM stage_artifacts`); err != nil {
		return &artifacts.WriteError{Name: "*", Cause: err}
	}
	return nil
}
