package knowledge

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"unicode"
)

// Handle is a stage's read-only view of the index. It is bound to the
// document fingerprint current when it was issued and refuses to read once
// the index has been rebuilt or disposed.
type Handle struct {
	index       *Index
	stage       string
	fingerprint string
}

// Result is a ranked chunk.
type Result struct {
	Ordinal int
	Text    string
	Score   float64
}

// Fingerprint identifies the document the handle reads from.
func (h *Handle) Fingerprint() string {
	return h.fingerprint
}

// Stage is the stage the handle was issued to.
func (h *Handle) Stage() string {
	return h.stage
}

// lock acquires the index and confirms the handle is still current. The
// caller must unlock the index when err is nil.
func (h *Handle) lock() (*sql.DB, error) {
	h.index.mu.Lock()
	if h.index.db == nil || h.index.fingerprint != h.fingerprint {
		current := h.index.fingerprint
		h.index.mu.Unlock()
		var found []string
		if current != "" {
			found = []string{current}
		}
		return nil, &IndexConflictError{
			Fingerprint: h.fingerprint,
			Found:       found,
			Message:     "knowledge handle is stale",
		}
	}
	return h.index.db, nil
}

// Document returns the full document text in chunk order.
func (h *Handle) Document(ctx context.Context) (string, error) {
	db, err := h.lock()
	if err != nil {
		return "", err
	}
	defer h.index.mu.Unlock()

	chunks, err := loadChunks(ctx, db, h.fingerprint, false)
	if err != nil {
		return "", err
	}
	parts := make([]string, len(chunks))
	for i, c := range chunks {
		parts[i] = c.Text
	}
	return strings.Join(parts, "\n\n"), nil
}

// Search returns up to k chunks relevant to query, best first. With
// embeddings it ranks by cosine similarity, otherwise by FTS5 bm25. When
// nothing matches it returns the leading chunks.
func (h *Handle) Search(ctx context.Context, query string, k int) ([]Result, error) {
	if k <= 0 {
		k = 5
	}

	embedder := h.index.embedder
	var queryVec []float32
	if embedder != nil && h.index.Stats().EmbeddingModel != "" {
		vecs, err := embedder.Embed(ctx, []string{query})
		if err == nil && len(vecs) == 1 {
			queryVec = vecs[0]
		} else {
			h.index.log.Warn("query embedding failed, using full-text ranking", "stage", h.stage, "error", err)
		}
	}

	db, err := h.lock()
	if err != nil {
		return nil, err
	}
	defer h.index.mu.Unlock()

	if queryVec != nil {
		return vectorSearch(ctx, db, h.fingerprint, queryVec, k)
	}

	results, err := textSearch(ctx, db, query, k)
	if err != nil {
		return nil, err
	}
	if len(results) > 0 {
		return results, nil
	}
	return leading(ctx, db, h.fingerprint, k)
}

func vectorSearch(ctx context.Context, db *sql.DB, fp string, q []float32, k int) ([]Result, error) {
	chunks, err := loadChunks(ctx, db, fp, true)
	if err != nil {
		return nil, err
	}

	results := make([]Result, 0, len(chunks))
	for _, c := range chunks {
		results = append(results, Result{Ordinal: c.Ordinal, Text: c.Text, Score: cosine(q, c.Embedding)})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func textSearch(ctx context.Context, db *sql.DB, query string, k int) ([]Result, error) {
	match := ftsQuery(query)
	if match == "" {
		return nil, nil
	}

	rows, err := db.QueryContext(ctx, `
		SELECT c.ordinal, c.text, bm25(chunks_fts)
		FROM chunks_fts
		JOIN chunks c ON c.id = chunks_fts.rowid
		WHERE chunks_fts MATCH ?
		ORDER BY bm25(chunks_fts)
		LIMIT ?`, match, k)
	if err != nil {
		return nil, fmt.Errorf("failed to search knowledge index: %w", err)
	}
	defer rows.Close() //nolint:errcheck // Close in defer is safe

	var out []Result
	for rows.Next() {
		var r Result
		var rank float64
		if err := rows.Scan(&r.Ordinal, &r.Text, &rank); err != nil {
			return nil, fmt.Errorf("failed to scan search result: %w", err)
		}
		// bm25 is lower-is-better and negative
		r.Score = -rank
		out = append(out, r)
	}
	return out, rows.Err()
}

func leading(ctx context.Context, db *sql.DB, fp string, k int) ([]Result, error) {
	chunks, err := loadChunks(ctx, db, fp, false)
	if err != nil {
		return nil, err
	}
	if len(chunks) > k {
		chunks = chunks[:k]
	}
	out := make([]Result, len(chunks))
	for i, c := range chunks {
		out[i] = Result{Ordinal: c.Ordinal, Text: c.Text}
	}
	return out, nil
}

func loadChunks(ctx context.Context, db *sql.DB, fp string, withEmbeddings bool) ([]Chunk, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT ordinal, text, tokens, embedding FROM chunks WHERE fingerprint = ? ORDER BY ordinal`, fp)
	if err != nil {
		return nil, fmt.Errorf("failed to load chunks: %w", err)
	}
	defer rows.Close() //nolint:errcheck // Close in defer is safe

	var out []Chunk
	for rows.Next() {
		var c Chunk
		var blob []byte
		if err := rows.Scan(&c.Ordinal, &c.Text, &c.Tokens, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		if withEmbeddings {
			c.Embedding = decodeVector(blob)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ftsQuery turns free text into an FTS5 OR query of quoted terms so user
// text never reaches the FTS5 query syntax.
func ftsQuery(q string) string {
	seen := make(map[string]bool)
	var terms []string
	for _, f := range strings.FieldsFunc(strings.ToLower(q), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '+' && r != '#'
	}) {
		if len(f) < 2 || seen[f] {
			continue
		}
		seen[f] = true
		terms = append(terms, `"`+f+`"`)
	}
	return strings.Join(terms, " OR ")
}
