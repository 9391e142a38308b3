package reembed

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/poiesic/ragchat/ai/mock"
	"github.com/poiesic/ragchat/core"
	"github.com/poiesic/ragchat/index"
	"github.com/poiesic/ragchat/storage"
	"github.com/poiesic/ragchat/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// constEmbedder returns the same unnormalized vector of the given dimension
// for every text.
type constEmbedder struct {
	dim   int
	calls atomic.Int32
	fail  error
}

func (e *constEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *constEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	e.calls.Add(1)
	if e.fail != nil {
		return nil, e.fail
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		v := make([]float32, e.dim)
		for j := range v {
			v[j] = 2
		}
		out[i] = v
	}
	return out, nil
}

var (
	oldFingerprint = core.Fingerprint{Provider: "mock", Model: "mock-embedding"}
	newFingerprint = core.Fingerprint{Provider: "mock", Model: "mock-embedding-v2"}
)

func setupTestIndex(t *testing.T, n int) storage.IndexRepository {
	t.Helper()

	repo, transcripts, backend, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() {
		repo.Close()
		transcripts.Close()
		backend.Close()
	})

	idx, err := index.New(repo, mock.NewMockEmbedder(), oldFingerprint, "docs")
	require.NoError(t, err)

	chunks := make([]core.Chunk, n)
	for i := range chunks {
		text := fmt.Sprintf("chunk number %d", i)
		chunks[i] = core.Chunk{
			ID:         core.ChunkID("doc.txt", "", i*10, text),
			Text:       text,
			SourceID:   "doc.txt",
			ChunkIndex: i,
			Start:      i * 10,
		}
	}
	_, err = idx.Build(context.Background(), chunks, index.ModeCreate)
	require.NoError(t, err)
	return repo
}

func TestNewReembedder(t *testing.T) {
	repo := setupTestIndex(t, 1)
	embedder := &constEmbedder{dim: 3}

	t.Run("nil repository", func(t *testing.T) {
		_, err := NewReembedder(nil, embedder, newFingerprint, "docs", nil, nil)
		assert.Equal(t, ErrRepositoryRequired, err)
	})

	t.Run("nil embedder", func(t *testing.T) {
		_, err := NewReembedder(repo, nil, newFingerprint, "docs", nil, nil)
		assert.Equal(t, ErrEmbedderRequired, err)
	})

	t.Run("invalid namespace", func(t *testing.T) {
		_, err := NewReembedder(repo, embedder, newFingerprint, "", nil, nil)
		assert.ErrorIs(t, err, core.ErrInvalidNamespace)
	})

	t.Run("invalid retries", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.MaxRetries = 0
		_, err := NewReembedder(repo, embedder, newFingerprint, "docs", cfg, nil)
		assert.ErrorIs(t, err, index.ErrInvalidMaxAttempts)
	})
}

func TestReembedder_Run(t *testing.T) {
	repo := setupTestIndex(t, 25)
	ctx := context.Background()
	before, err := repo.LoadManifest(ctx, "docs")
	require.NoError(t, err)

	embedder := &constEmbedder{dim: 3}
	cfg := DefaultConfig()
	cfg.BatchSize = 10
	var out bytes.Buffer

	r, err := NewReembedder(repo, embedder, newFingerprint, "docs", cfg, &out)
	require.NoError(t, err)

	published, err := r.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 25, published.Count)
	assert.Equal(t, "mock/mock-embedding-v2/3", published.Fingerprint.String())
	assert.Greater(t, published.Version, before.Version)
	assert.NotEqual(t, before.Generations, published.Generations)
	assert.Equal(t, int32(3), embedder.calls.Load())
	assert.Contains(t, out.String(), "Starting reembedding of 25 chunks")
	assert.Contains(t, out.String(), "Reembedding complete. Processed 25 chunks")

	// Chunks keep their order and get normalized vectors from the new model.
	var got []string
	err = repo.Scan(ctx, published, func(entry *core.IndexEntry) error {
		got = append(got, entry.Chunk.Text)
		assert.Len(t, entry.Vector, 3)
		assert.InDelta(t, 0.57735, entry.Vector[0], 1e-4)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 25)
	for i, text := range got {
		assert.Equal(t, fmt.Sprintf("chunk number %d", i), text)
	}

	// The index now opens with the new fingerprint and refuses the old one.
	idx, err := index.New(repo, embedder, newFingerprint, "docs")
	require.NoError(t, err)
	_, err = idx.Open(ctx)
	require.NoError(t, err)

	old, err := index.New(repo, mock.NewMockEmbedder(), oldFingerprint, "docs")
	require.NoError(t, err)
	_, err = old.Open(ctx)
	assert.ErrorIs(t, err, index.ErrIndexMismatch)
}

func TestReembedder_FailureKeepsIndex(t *testing.T) {
	repo := setupTestIndex(t, 5)
	ctx := context.Background()
	before, err := repo.LoadManifest(ctx, "docs")
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.MaxRetries = 2
	cfg.RetryDelay = time.Millisecond
	embedder := &constEmbedder{dim: 3, fail: errors.New("quota exceeded")}

	r, err := NewReembedder(repo, embedder, newFingerprint, "docs", cfg, nil)
	require.NoError(t, err)

	_, err = r.Run(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
	assert.Equal(t, int32(2), embedder.calls.Load())

	after, err := repo.LoadManifest(ctx, "docs")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestReembedder_NotFound(t *testing.T) {
	repo := setupTestIndex(t, 1)
	r, err := NewReembedder(repo, &constEmbedder{dim: 3}, newFingerprint, "missing", nil, nil)
	require.NoError(t, err)

	_, err = r.Run(context.Background())
	assert.ErrorIs(t, err, index.ErrIndexNotFound)
}

func TestChunkIterator_Batches(t *testing.T) {
	repo := setupTestIndex(t, 7)
	manifest, err := repo.LoadManifest(context.Background(), "docs")
	require.NoError(t, err)

	var sizes []int
	it := NewChunkIterator(repo, 3)
	err = it.ForEach(context.Background(), manifest, func(chunks []core.Chunk) error {
		sizes = append(sizes, len(chunks))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{3, 3, 1}, sizes)

	t.Run("stops on error", func(t *testing.T) {
		calls := 0
		stop := errors.New("stop")
		err := it.ForEach(context.Background(), manifest, func([]core.Chunk) error {
			calls++
			return stop
		})
		assert.ErrorIs(t, err, stop)
		assert.Equal(t, 1, calls)
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := it.ForEach(ctx, manifest, func([]core.Chunk) error { return nil })
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("default batch size", func(t *testing.T) {
		assert.Equal(t, DefaultBatchSize, NewChunkIterator(repo, 0).batchSize)
	})
}

func TestBatchProcessor_DimensionChange(t *testing.T) {
	repo := setupTestIndex(t, 1)
	ctx := context.Background()
	generation, err := repo.NextGeneration(ctx, "docs")
	require.NoError(t, err)

	embedder := &constEmbedder{dim: 3}
	bp := NewBatchProcessor(repo, embedder, 1, 0)
	require.NoError(t, bp.Process(ctx, "docs", generation, []core.Chunk{{ID: 1, Text: "a", SourceID: "x"}}))
	assert.Equal(t, 3, bp.Dimension())

	embedder.dim = 4
	err = bp.Process(ctx, "docs", generation, []core.Chunk{{ID: 2, Text: "b", SourceID: "x"}})
	assert.ErrorIs(t, err, ErrDimensionChanged)
	require.NoError(t, repo.DiscardGeneration(ctx, "docs", generation))
}
