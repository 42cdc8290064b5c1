// Package knowledge implements the per-run document index. An Index holds
// exactly one ingested document at a time; every Rebuild tears down the
// previous state before ingesting.
package knowledge

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/jonathan/resume-optimizer/internal/llm"
)

const (
	dbPrefix       = "knowledge-"
	embedBatchSize = 16
	embedWorkers   = 4
)

// stalePatterns are removed from the index directory on every teardown.
var stalePatterns = []string{
	dbPrefix + "*.db",
	dbPrefix + "*.db-wal",
	dbPrefix + "*.db-shm",
	dbPrefix + "*.db-journal",
	"*.tmp",
	"chroma-*",
}

// Options configure an Index.
type Options struct {
	// Dir holds the index database. It is created if missing.
	Dir string
	// Embedder ranks chunks by vector similarity. Nil means full-text ranking.
	Embedder llm.Embedder
	// ChunkTokens is the token budget per chunk.
	ChunkTokens int
	// Stages lists the stages allowed to query the index. Empty allows all.
	Stages []string
	Logger *slog.Logger
}

// Stats describes the currently ingested document.
type Stats struct {
	Fingerprint    string
	Size           int
	Chunks         int
	EmbeddingModel string
	Teardown       TeardownReport
}

// Index is an owned, explicitly scoped knowledge index.
type Index struct {
	dir      string
	embedder llm.Embedder
	chunker  *Chunker
	allowed  map[string]bool
	log      *slog.Logger

	mu          sync.Mutex
	db          *sql.DB
	path        string
	fingerprint string
	stats       Stats
}

// New creates an Index. Nothing is ingested until Rebuild.
func New(opts Options) (*Index, error) {
	if opts.Dir == "" {
		return nil, fmt.Errorf("knowledge index directory is required")
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}

	chunker, err := NewChunker(opts.ChunkTokens)
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var allowed map[string]bool
	if len(opts.Stages) > 0 {
		allowed = make(map[string]bool, len(opts.Stages))
		for _, s := range opts.Stages {
			allowed[s] = true
		}
	}

	return &Index{
		dir:      opts.Dir,
		embedder: opts.Embedder,
		chunker:  chunker,
		allowed:  allowed,
		log:      logger.With("component", "knowledge"),
	}, nil
}

// Rebuild tears down all existing index state, then ingests document into a
// fresh index scoped to its fingerprint. Teardown always runs, even when the
// document is identical to the one already ingested.
func (ix *Index) Rebuild(ctx context.Context, document []byte) (string, error) {
	if len(document) == 0 {
		return "", &EmptyDocumentError{Reason: "zero bytes"}
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	report := ix.teardownLocked()

	fp := Fingerprint(document)
	text, err := ExtractText(document)
	if err != nil {
		return "", err
	}

	chunks := ix.chunker.Split(text)
	if len(chunks) == 0 {
		return "", &EmptyDocumentError{Reason: "document produced no chunks"}
	}

	model := ix.embed(ctx, chunks)

	path := filepath.Join(ix.dir, fmt.Sprintf("%s%d.db", dbPrefix, time.Now().UnixNano()))
	db, err := openDB(path)
	if err != nil {
		return "", err
	}

	if err := ingest(ctx, db, fp, len(document), model, chunks); err != nil {
		_ = db.Close()
		return "", err
	}
	if err := verify(ctx, db, fp); err != nil {
		_ = db.Close()
		return "", err
	}

	ix.db = db
	ix.path = path
	ix.fingerprint = fp
	ix.stats = Stats{
		Fingerprint:    fp,
		Size:           len(document),
		Chunks:         len(chunks),
		EmbeddingModel: model,
		Teardown:       report,
	}

	ix.log.Info("knowledge index rebuilt",
		"fingerprint", short(fp),
		"bytes", len(document),
		"chunks", len(chunks),
		"embedding_model", model,
		"teardown_failures", len(report.Failed))
	return fp, nil
}

// Dispose tears the index down without ingesting anything. It is safe to
// call more than once.
func (ix *Index) Dispose() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	report := ix.teardownLocked()
	if !report.OK() {
		paths := make([]string, 0, len(report.Failed))
		for p := range report.Failed {
			paths = append(paths, p)
		}
		return fmt.Errorf("knowledge index dispose left %d file(s) behind: %s", len(paths), strings.Join(paths, ", "))
	}
	return nil
}

// Stats returns details of the current document. Fingerprint is empty when
// nothing is ingested.
func (ix *Index) Stats() Stats {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.stats
}

// Fingerprints returns the distinct document fingerprints currently stored.
func (ix *Index) Fingerprints(ctx context.Context) ([]string, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.db == nil {
		return nil, nil
	}
	return distinctFingerprints(ctx, ix.db)
}

// Query returns a handle for a stage that is declared to need document context.
func (ix *Index) Query(stage string) (*Handle, error) {
	if ix.allowed != nil && !ix.allowed[stage] {
		return nil, fmt.Errorf("%w: %s", ErrKnowledgeNotPermitted, stage)
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.db == nil {
		return nil, ErrIndexNotBuilt
	}
	return &Handle{index: ix, stage: stage, fingerprint: ix.fingerprint}, nil
}

// teardownLocked closes the open database and removes every index file in
// the directory. Failures are logged and reported, never returned.
func (ix *Index) teardownLocked() TeardownReport {
	var report TeardownReport

	if ix.db != nil {
		if err := ix.db.Close(); err != nil {
			ix.log.Warn("failed to close knowledge index", "path", ix.path, "error", err)
			report.fail(ix.path, err)
		}
	}
	ix.db = nil
	ix.path = ""
	ix.fingerprint = ""
	ix.stats = Stats{}

	for _, pattern := range stalePatterns {
		matches, err := filepath.Glob(filepath.Join(ix.dir, pattern))
		if err != nil {
			report.fail(pattern, err)
			continue
		}
		for _, m := range matches {
			if err := os.RemoveAll(m); err != nil && !errors.Is(err, os.ErrNotExist) {
				ix.log.Warn("failed to remove stale index file", "path", m, "error", err)
				report.fail(m, err)
				continue
			}
			report.Removed = append(report.Removed, m)
		}
	}

	if len(report.Removed) > 0 {
		ix.log.Debug("knowledge index torn down", "removed", len(report.Removed))
	}
	return report
}

// embed fills chunk embeddings in bounded parallel batches. Embedding is an
// enhancement; on failure the index falls back to full-text ranking.
func (ix *Index) embed(ctx context.Context, chunks []Chunk) string {
	if ix.embedder == nil {
		return ""
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedWorkers)

	for start := 0; start < len(chunks); start += embedBatchSize {
		end := min(start+embedBatchSize, len(chunks))
		batch := chunks[start:end]
		g.Go(func() error {
			texts := make([]string, len(batch))
			for i, c := range batch {
				texts[i] = c.Text
			}
			vecs, err := ix.embedder.Embed(gctx, texts)
			if err != nil {
				return err
			}
			if len(vecs) != len(batch) {
				return fmt.Errorf("embedder returned %d vectors for %d chunks", len(vecs), len(batch))
			}
			for i := range batch {
				batch[i].Embedding = vecs[i]
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		ix.log.Warn("chunk embedding failed, using full-text ranking", "error", err)
		for i := range chunks {
			chunks[i].Embedding = nil
		}
		return ""
	}
	return ix.embedder.Model()
}

func openDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open knowledge index: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		if isConstraintOrExists(err) {
			return nil, &IndexConflictError{Message: "index database already initialized", Cause: err}
		}
		return nil, fmt.Errorf("failed to create knowledge schema: %w", err)
	}
	return db, nil
}

func ingest(ctx context.Context, db *sql.DB, fp string, size int, model string, chunks []Chunk) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is safe to call after commit

	_, err = tx.ExecContext(ctx,
		`INSERT INTO documents (id, fingerprint, size, chunk_count, embedding_model, ingested_at)
		 VALUES (1, ?, ?, ?, ?, ?)`,
		fp, size, len(chunks), model, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return conflictOr(err, fp, "document record already present")
	}

	if err := insertChunks(ctx, tx, fp, chunks); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit knowledge ingest: %w", err)
	}
	return nil
}

func insertChunks(ctx context.Context, tx *sql.Tx, fp string, chunks []Chunk) error {
	chunkStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (fingerprint, ordinal, text, tokens, embedding) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare chunk statement: %w", err)
	}
	defer chunkStmt.Close() //nolint:errcheck // Close in defer is safe

	ftsStmt, err := tx.PrepareContext(ctx, `INSERT INTO chunks_fts (rowid, text) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare fts statement: %w", err)
	}
	defer ftsStmt.Close() //nolint:errcheck // Close in defer is safe

	for _, c := range chunks {
		res, err := chunkStmt.ExecContext(ctx, fp, c.Ordinal, c.Text, c.Tokens, encodeVector(c.Embedding))
		if err != nil {
			return conflictOr(err, fp, fmt.Sprintf("duplicate chunk %d", c.Ordinal))
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read chunk id: %w", err)
		}
		if _, err := ftsStmt.ExecContext(ctx, id, c.Text); err != nil {
			return fmt.Errorf("failed to index chunk %d: %w", c.Ordinal, err)
		}
	}
	return nil
}

// verify checks that the freshly ingested index holds exactly one document.
func verify(ctx context.Context, db *sql.DB, fp string) error {
	found, err := distinctFingerprints(ctx, db)
	if err != nil {
		return err
	}
	if len(found) != 1 || found[0] != fp {
		return &IndexConflictError{
			Fingerprint: fp,
			Found:       found,
			Message:     "index holds entries from another document",
		}
	}
	return nil
}

func distinctFingerprints(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT fingerprint FROM chunks UNION SELECT fingerprint FROM documents ORDER BY 1`)
	if err != nil {
		return nil, fmt.Errorf("failed to list fingerprints: %w", err)
	}
	defer rows.Close() //nolint:errcheck // Close in defer is safe

	var out []string
	for rows.Next() {
		var fp string
		if err := rows.Scan(&fp); err != nil {
			return nil, fmt.Errorf("failed to scan fingerprint: %w", err)
		}
		out = append(out, fp)
	}
	return out, rows.Err()
}

func conflictOr(err error, fp, msg string) error {
	if isConstraintOrExists(err) {
		return &IndexConflictError{Fingerprint: fp, Message: msg, Cause: err}
	}
	return fmt.Errorf("failed to write knowledge index: %w", err)
}

// isConstraintOrExists recognizes uniqueness violations and schema objects
// that survived a teardown.
func isConstraintOrExists(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_CHECK:
			return true
		}
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"unique", "duplicate", "upsert", "already exists"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
