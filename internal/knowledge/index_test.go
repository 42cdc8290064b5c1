package knowledge

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIndex(t *testing.T, opts Options) *Index {
	t.Helper()
	if opts.Dir == "" {
		opts.Dir = t.TempDir()
	}
	ix, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ix.Dispose() })
	return ix
}

func resumeText(marker string) []byte {
	return []byte(fmt.Sprintf(`Jane Doe
Senior Backend Engineer

Summary
Backend engineer with eight years of Go and Postgres experience. Marker %s.

Experience
Built a Kubernetes operator that cut deploy time by 40 percent.
Led migration of billing services to event sourcing.

Education
BSc Computer Science`, marker))
}

func TestRebuild_SecondDocumentReplacesFirst(t *testing.T) {
	ctx := context.Background()
	ix := newTestIndex(t, Options{})

	fp1, err := ix.Rebuild(ctx, resumeText("DOC-ONE"))
	require.NoError(t, err)
	fp2, err := ix.Rebuild(ctx, resumeText("DOC-TWO"))
	require.NoError(t, err)
	require.NotEqual(t, fp1, fp2)

	fps, err := ix.Fingerprints(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{fp2}, fps)

	h, err := ix.Query("resume-optimization")
	require.NoError(t, err)
	doc, err := h.Document(ctx)
	require.NoError(t, err)
	assert.Contains(t, doc, "DOC-TWO")
	assert.NotContains(t, doc, "DOC-ONE")
}

func TestRebuild_SameDocumentStillTearsDown(t *testing.T) {
	ctx := context.Background()
	ix := newTestIndex(t, Options{})
	doc := resumeText("SAME")

	fp1, err := ix.Rebuild(ctx, doc)
	require.NoError(t, err)
	firstPath := ix.path

	fp2, err := ix.Rebuild(ctx, doc)
	require.NoError(t, err)

	assert.Equal(t, fp1, fp2)
	assert.NotEqual(t, firstPath, ix.path)
	assert.NoFileExists(t, firstPath)
	assert.NotEmpty(t, ix.Stats().Teardown.Removed)

	fps, err := ix.Fingerprints(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{fp1}, fps)
}

func TestRebuild_EmptyDocument(t *testing.T) {
	ix := newTestIndex(t, Options{})

	_, err := ix.Rebuild(context.Background(), nil)
	var empty *EmptyDocumentError
	require.ErrorAs(t, err, &empty)

	_, err = ix.Rebuild(context.Background(), []byte("  \n\n\t "))
	require.ErrorAs(t, err, &empty)

	_, err = ix.Query("resume-generation")
	assert.ErrorIs(t, err, ErrIndexNotBuilt)
}

func TestRebuild_RemovesStaleFiles(t *testing.T) {
	dir := t.TempDir()
	stale := []string{
		filepath.Join(dir, "knowledge-1.db"),
		filepath.Join(dir, "knowledge-1.db-wal"),
		filepath.Join(dir, "upload.tmp"),
		filepath.Join(dir, "chroma-embeddings"),
	}
	for _, p := range stale {
		require.NoError(t, os.WriteFile(p, []byte("old"), 0o644))
	}
	keep := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(keep, []byte("keep"), 0o644))

	ix := newTestIndex(t, Options{Dir: dir})
	_, err := ix.Rebuild(context.Background(), resumeText("X"))
	require.NoError(t, err)

	for _, p := range stale {
		assert.NoFileExists(t, p)
	}
	assert.FileExists(t, keep)
	assert.True(t, ix.Stats().Teardown.OK())
	assert.Len(t, ix.Stats().Teardown.Removed, len(stale))
}

func TestHandle_StaleAfterRebuild(t *testing.T) {
	ctx := context.Background()
	ix := newTestIndex(t, Options{})

	_, err := ix.Rebuild(ctx, resumeText("A"))
	require.NoError(t, err)
	h, err := ix.Query("resume-optimization")
	require.NoError(t, err)

	fp2, err := ix.Rebuild(ctx, resumeText("B"))
	require.NoError(t, err)

	_, err = h.Search(ctx, "kubernetes", 3)
	var conflict *IndexConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, []string{fp2}, conflict.Found)

	_, err = h.Document(ctx)
	require.ErrorAs(t, err, &conflict)
}

func TestHandle_StaleAfterDispose(t *testing.T) {
	ctx := context.Background()
	ix := newTestIndex(t, Options{})

	_, err := ix.Rebuild(ctx, resumeText("A"))
	require.NoError(t, err)
	h, err := ix.Query("resume-generation")
	require.NoError(t, err)

	require.NoError(t, ix.Dispose())
	require.NoError(t, ix.Dispose())

	_, err = h.Document(ctx)
	var conflict *IndexConflictError
	assert.ErrorAs(t, err, &conflict)
	assert.Empty(t, ix.Stats().Fingerprint)
}

func TestQuery_StagePermissions(t *testing.T) {
	ix := newTestIndex(t, Options{Stages: []string{"resume-optimization", "resume-generation"}})
	_, err := ix.Rebuild(context.Background(), resumeText("A"))
	require.NoError(t, err)

	_, err = ix.Query("company-research")
	assert.ErrorIs(t, err, ErrKnowledgeNotPermitted)

	h, err := ix.Query("resume-generation")
	require.NoError(t, err)
	assert.Equal(t, "resume-generation", h.Stage())
	assert.Equal(t, ix.Stats().Fingerprint, h.Fingerprint())
}

func TestSearch_FullText(t *testing.T) {
	ctx := context.Background()
	ix := newTestIndex(t, Options{ChunkTokens: 20})

	_, err := ix.Rebuild(ctx, resumeText("A"))
	require.NoError(t, err)
	require.Greater(t, ix.Stats().Chunks, 1)

	h, err := ix.Query("resume-optimization")
	require.NoError(t, err)

	results, err := h.Search(ctx, "Kubernetes", 2)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Contains(t, results[0].Text, "Kubernetes")
}

func TestSearch_NoMatchReturnsLeadingChunks(t *testing.T) {
	ctx := context.Background()
	ix := newTestIndex(t, Options{ChunkTokens: 20})

	_, err := ix.Rebuild(ctx, resumeText("A"))
	require.NoError(t, err)
	h, err := ix.Query("resume-optimization")
	require.NoError(t, err)

	results, err := h.Search(ctx, "zzzz qqqq", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 0, results[0].Ordinal)
}

// keywordEmbedder places each text on an axis per keyword it mentions.
type keywordEmbedder struct {
	keywords []string
	calls    int
}

func (e *keywordEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.calls++
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec := make([]float32, len(e.keywords)+1)
		vec[len(e.keywords)] = 0.01
		lower := strings.ToLower(t)
		for j, kw := range e.keywords {
			if strings.Contains(lower, kw) {
				vec[j] = 1
			}
		}
		out[i] = vec
	}
	return out, nil
}

func (e *keywordEmbedder) Model() string { return "keyword-test" }

type failingEmbedder struct{}

func (failingEmbedder) Embed(context.Context, []string) ([][]float32, error) {
	return nil, fmt.Errorf("rate limited")
}

func (failingEmbedder) Model() string { return "failing" }

func TestSearch_Embeddings(t *testing.T) {
	ctx := context.Background()
	emb := &keywordEmbedder{keywords: []string{"education", "kubernetes", "summary"}}
	ix := newTestIndex(t, Options{ChunkTokens: 20, Embedder: emb})

	_, err := ix.Rebuild(ctx, resumeText("A"))
	require.NoError(t, err)
	assert.Equal(t, "keyword-test", ix.Stats().EmbeddingModel)

	h, err := ix.Query("resume-optimization")
	require.NoError(t, err)

	results, err := h.Search(ctx, "what education does the candidate have", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Contains(t, results[0].Text, "Education")
	assert.InDelta(t, 1.0, results[0].Score, 0.01)
}

func TestRebuild_EmbeddingFailureFallsBackToFullText(t *testing.T) {
	ctx := context.Background()
	ix := newTestIndex(t, Options{Embedder: failingEmbedder{}})

	_, err := ix.Rebuild(ctx, resumeText("A"))
	require.NoError(t, err)
	assert.Empty(t, ix.Stats().EmbeddingModel)

	h, err := ix.Query("resume-optimization")
	require.NoError(t, err)
	results, err := h.Search(ctx, "billing", 1)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Contains(t, results[0].Text, "billing")
}

func TestInsertChunks_DuplicateOrdinalIsConflict(t *testing.T) {
	ctx := context.Background()
	db, err := openDB(filepath.Join(t.TempDir(), "knowledge-test.db"))
	require.NoError(t, err)
	defer db.Close()

	err = ingest(ctx, db, "fp", 10, "", []Chunk{
		{Ordinal: 0, Text: "one", Tokens: 1},
		{Ordinal: 0, Text: "two", Tokens: 1},
	})
	var conflict *IndexConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Contains(t, conflict.Error(), "duplicate chunk 0")
}

func TestVerify_MixedFingerprintsIsConflict(t *testing.T) {
	ctx := context.Background()
	db, err := openDB(filepath.Join(t.TempDir(), "knowledge-test.db"))
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, ingest(ctx, db, "aaa", 3, "", []Chunk{{Ordinal: 0, Text: "a", Tokens: 1}}))
	_, err = db.ExecContext(ctx,
		`INSERT INTO chunks (fingerprint, ordinal, text, tokens) VALUES ('bbb', 0, 'leak', 1)`)
	require.NoError(t, err)

	err = verify(ctx, db, "aaa")
	var conflict *IndexConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, []string{"aaa", "bbb"}, conflict.Found)
}

func TestNew_RequiresDir(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}
