package index

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/ragchat/ai/mock"
	"github.com/poiesic/ragchat/core"
	"github.com/poiesic/ragchat/storage"
	"github.com/poiesic/ragchat/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testFingerprint = core.Fingerprint{Provider: "mock", Model: "compass"}

// compassEmbedder maps the words north, east, south and west to 2-d
// directions and records every batch it is asked to embed.
type compassEmbedder struct {
	*mock.MockEmbedder
	mu      sync.Mutex
	batches [][]string
}

func newCompassEmbedder() *compassEmbedder {
	e := &compassEmbedder{MockEmbedder: mock.NewMockEmbedder()}
	e.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		e.mu.Lock()
		e.batches = append(e.batches, texts)
		e.mu.Unlock()
		out := make([][]float32, len(texts))
		for i, text := range texts {
			out[i] = direction(text)
		}
		return out, nil
	}
	return e
}

func (e *compassEmbedder) embedded() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	var all []string
	for _, batch := range e.batches {
		all = append(all, batch...)
	}
	return all
}

func direction(text string) []float32 {
	var x, y float32
	for _, word := range strings.Fields(text) {
		switch word {
		case "north":
			y++
		case "south":
			y--
		case "east":
			x++
		case "west":
			x--
		}
	}
	if x == 0 && y == 0 {
		x = 0.01
	}
	// Unnormalised on purpose; the index normalises.
	return []float32{3 * x, 3 * y}
}

func chunk(text string) core.Chunk {
	return core.Chunk{ID: core.IDFromContent(text), Text: text, SourceID: "compass.txt"}
}

func newTestRepo(t *testing.T) storage.IndexRepository {
	t.Helper()
	indexRepo, transcripts, backend, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() {
		transcripts.Close()
		indexRepo.Close()
		backend.Close()
	})
	return indexRepo
}

func newTestIndex(t *testing.T, repo storage.IndexRepository, embedder *compassEmbedder, opts ...Option) *Index {
	t.Helper()
	idx, err := New(repo, embedder, testFingerprint, "docs", append([]Option{WithRetries(1, time.Millisecond)}, opts...)...)
	require.NoError(t, err)
	return idx
}

func TestBuildAndQuery(t *testing.T) {
	repo := newTestRepo(t)
	embedder := newCompassEmbedder()
	idx := newTestIndex(t, repo, embedder, WithBatchSize(2))
	ctx := context.Background()

	chunks := []core.Chunk{
		chunk("north"), chunk("north east"), chunk("east"), chunk("south east"),
		chunk("south"), chunk("west"), chunk("north west"),
	}
	handle, err := idx.Build(ctx, chunks, ModeCreate)
	require.NoError(t, err)
	assert.Equal(t, 7, handle.Count())
	assert.Equal(t, 2, handle.Manifest().Fingerprint.Dimension, "dimension learned from embeddings")
	assert.Len(t, embedder.batches, 4, "7 chunks in batches of 2")

	t.Run("top k ordered by distance", func(t *testing.T) {
		results, err := handle.Query(ctx, "east", 3)
		require.NoError(t, err)
		require.Len(t, results, 3)
		assert.Equal(t, "east", results[0].Chunk.Text)
		assert.InDelta(t, 0, results[0].Distance, 1e-6)
		assert.ElementsMatch(t, []string{"north east", "south east"}, []string{results[1].Chunk.Text, results[2].Chunk.Text})
		for i := 1; i < len(results); i++ {
			assert.GreaterOrEqual(t, results[i].Distance, results[i-1].Distance)
		}
	})

	t.Run("ties in insertion order", func(t *testing.T) {
		results, err := handle.Query(ctx, "east", 3)
		require.NoError(t, err)
		assert.Equal(t, "north east", results[1].Chunk.Text, "north east was inserted before south east")
	})

	t.Run("k larger than index", func(t *testing.T) {
		results, err := handle.Query(ctx, "north", 50)
		require.NoError(t, err)
		assert.Len(t, results, 7)
	})

	t.Run("reopen", func(t *testing.T) {
		reopened, err := idx.Open(ctx)
		require.NoError(t, err)
		results, err := reopened.Query(ctx, "west", 1)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, "west", results[0].Chunk.Text)
	})
}

func TestQuery_DefaultTopK(t *testing.T) {
	repo := newTestRepo(t)
	idx := newTestIndex(t, repo, newCompassEmbedder())

	var chunks []core.Chunk
	for i := 0; i < 12; i++ {
		chunks = append(chunks, chunk(fmt.Sprintf("north %d", i)))
	}
	handle, err := idx.Build(context.Background(), chunks, ModeCreate)
	require.NoError(t, err)

	results, err := handle.Query(context.Background(), "north", 0)
	require.NoError(t, err)
	assert.Len(t, results, DefaultTopK)
}

func TestBuild_Create(t *testing.T) {
	repo := newTestRepo(t)
	idx := newTestIndex(t, repo, newCompassEmbedder())
	ctx := context.Background()

	_, err := idx.Build(ctx, []core.Chunk{chunk("north")}, ModeCreate)
	require.NoError(t, err)

	_, err = idx.Build(ctx, []core.Chunk{chunk("south")}, ModeCreate)
	assert.ErrorIs(t, err, ErrIndexExists)
}

func TestBuild_UpsertSkipsKnownChunks(t *testing.T) {
	repo := newTestRepo(t)
	embedder := newCompassEmbedder()
	idx := newTestIndex(t, repo, embedder)
	ctx := context.Background()

	_, err := idx.Build(ctx, []core.Chunk{chunk("north"), chunk("east")}, ModeUpsert)
	require.NoError(t, err)

	handle, err := idx.Build(ctx, []core.Chunk{chunk("north"), chunk("east"), chunk("west"), chunk("west")}, ModeUpsert)
	require.NoError(t, err)
	assert.Equal(t, 3, handle.Count())
	assert.Equal(t, []string{"north", "east", "west"}, embedder.embedded())

	results, err := handle.Query(ctx, "west", 10)
	require.NoError(t, err)
	assert.Len(t, results, 3, "no duplicates")

	again, err := idx.Build(ctx, []core.Chunk{chunk("west")}, ModeUpsert)
	require.NoError(t, err)
	assert.Equal(t, handle.Manifest().Version, again.Manifest().Version, "nothing new to publish")
}

func TestBuild_Overwrite(t *testing.T) {
	repo := newTestRepo(t)
	idx := newTestIndex(t, repo, newCompassEmbedder())
	ctx := context.Background()

	before, err := idx.Build(ctx, []core.Chunk{chunk("north"), chunk("south")}, ModeCreate)
	require.NoError(t, err)

	after, err := idx.Build(ctx, []core.Chunk{chunk("east")}, ModeOverwrite)
	require.NoError(t, err)
	assert.Equal(t, 1, after.Count())

	results, err := after.Query(ctx, "north", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "east", results[0].Chunk.Text)

	old := before.Manifest()
	found, err := repo.ContainsChunk(ctx, &old, core.IDFromContent("north"))
	require.NoError(t, err)
	assert.False(t, found, "replaced generation is dropped")
}

func TestHandle_FollowsRepublish(t *testing.T) {
	repo := newTestRepo(t)
	idx := newTestIndex(t, repo, newCompassEmbedder())
	ctx := context.Background()

	_, err := idx.Build(ctx, []core.Chunk{chunk("north"), chunk("south")}, ModeCreate)
	require.NoError(t, err)
	handle, err := idx.Open(ctx)
	require.NoError(t, err)

	_, err = idx.Build(ctx, []core.Chunk{chunk("east")}, ModeOverwrite)
	require.NoError(t, err)

	results, err := handle.Query(ctx, "north", 10)
	require.NoError(t, err)
	require.Len(t, results, 1, "handle opened before the overwrite sees the new index")
	assert.Equal(t, "east", results[0].Chunk.Text)
	assert.Equal(t, 1, handle.Count())

	_, err = idx.Build(ctx, []core.Chunk{chunk("west")}, ModeUpsert)
	require.NoError(t, err)
	require.NoError(t, handle.Refresh(ctx))
	assert.Equal(t, 2, handle.Count())

	results, err = handle.Query(ctx, "west", 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "west", results[0].Chunk.Text)

	t.Run("incompatible rebuild", func(t *testing.T) {
		other, err := New(repo, newCompassEmbedder(), core.Fingerprint{Provider: "mock", Model: "other"}, "docs")
		require.NoError(t, err)
		_, err = other.Build(ctx, []core.Chunk{chunk("north")}, ModeOverwrite)
		require.NoError(t, err)

		_, err = handle.Query(ctx, "north", 1)
		assert.ErrorIs(t, err, ErrIndexMismatch)
	})

	t.Run("deleted", func(t *testing.T) {
		require.NoError(t, idx.Delete(ctx))
		_, err := handle.Query(ctx, "north", 1)
		assert.ErrorIs(t, err, ErrIndexNotFound)
	})
}

func TestQuery_SingleEmbeddingAttempt(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	_, err := newTestIndex(t, repo, newCompassEmbedder()).Build(ctx, []core.Chunk{chunk("north")}, ModeCreate)
	require.NoError(t, err)

	down := func() *mock.MockEmbedder {
		e := mock.NewMockEmbedder()
		e.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
			return nil, errors.New("embedding service down")
		}
		return e
	}

	t.Run("default", func(t *testing.T) {
		embedder := down()
		idx, err := New(repo, embedder, testFingerprint, "docs", WithRetries(5, time.Millisecond))
		require.NoError(t, err)
		handle, err := idx.Open(ctx)
		require.NoError(t, err)

		_, err = handle.Query(ctx, "north", 1)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "embedding service down")
		assert.Equal(t, 1, embedder.CallCount(), "build retries do not apply to queries")
	})

	t.Run("opt in", func(t *testing.T) {
		embedder := down()
		idx, err := New(repo, embedder, testFingerprint, "docs", WithQueryRetries(3, time.Millisecond))
		require.NoError(t, err)
		handle, err := idx.Open(ctx)
		require.NoError(t, err)

		_, err = handle.Query(ctx, "north", 1)
		require.Error(t, err)
		assert.Equal(t, 3, embedder.CallCount())
	})

	_, err = New(repo, down(), testFingerprint, "docs", WithQueryRetries(0, 0))
	assert.ErrorIs(t, err, ErrInvalidMaxAttempts)
}

func TestFingerprintMismatch(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	original := newTestIndex(t, repo, newCompassEmbedder())
	_, err := original.Build(ctx, []core.Chunk{chunk("north")}, ModeCreate)
	require.NoError(t, err)

	other, err := New(repo, newCompassEmbedder(), core.Fingerprint{Provider: "mock", Model: "other"}, "docs")
	require.NoError(t, err)

	_, err = other.Open(ctx)
	assert.ErrorIs(t, err, ErrIndexMismatch)
	assert.Contains(t, err.Error(), "mock/compass/2")
	assert.Contains(t, err.Error(), "mock/other/0")

	_, err = other.Build(ctx, []core.Chunk{chunk("south")}, ModeUpsert)
	assert.ErrorIs(t, err, ErrIndexMismatch)

	handle, err := other.Build(ctx, []core.Chunk{chunk("south")}, ModeOverwrite)
	require.NoError(t, err, "overwrite may change the embedding model")
	assert.Equal(t, "other", handle.Manifest().Fingerprint.Model)
}

func TestQuery_DimensionMismatch(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	idx := newTestIndex(t, repo, newCompassEmbedder())
	handle, err := idx.Build(ctx, []core.Chunk{chunk("north")}, ModeCreate)
	require.NoError(t, err)

	wide := mock.NewMockEmbedder()
	wideIdx, err := New(repo, wide, testFingerprint, "docs")
	require.NoError(t, err)

	_, err = wideIdx.Query(ctx, handle, "north", 1)
	assert.ErrorIs(t, err, ErrIndexMismatch)
}

func TestOpen_NotFound(t *testing.T) {
	idx := newTestIndex(t, newTestRepo(t), newCompassEmbedder())
	_, err := idx.Open(context.Background())
	assert.ErrorIs(t, err, ErrIndexNotFound)
}

func TestEmptyIndex(t *testing.T) {
	embedder := newCompassEmbedder()
	idx := newTestIndex(t, newTestRepo(t), embedder)
	ctx := context.Background()

	handle, err := idx.Build(ctx, nil, ModeCreate)
	require.NoError(t, err)
	assert.Equal(t, 0, handle.Count())

	results, err := handle.Query(ctx, "north", 5)
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
	assert.Empty(t, embedder.embedded(), "empty index needs no query embedding")
}

func TestBuild_EmbeddingFailure(t *testing.T) {
	repo := newTestRepo(t)
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, errors.New("embedding service down")
	}
	idx, err := New(repo, embedder, testFingerprint, "docs", WithRetries(3, time.Millisecond))
	require.NoError(t, err)
	ctx := context.Background()

	_, err = idx.Build(ctx, []core.Chunk{chunk("north")}, ModeCreate)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embedding service down")
	assert.Equal(t, 3, embedder.CallCount(), "retried up to the attempt limit")

	_, err = idx.Open(ctx)
	assert.ErrorIs(t, err, ErrIndexNotFound, "failed build publishes nothing")
}

func TestBuild_CallTimeout(t *testing.T) {
	embedder := mock.NewMockEmbedder()
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	idx, err := New(newTestRepo(t), embedder, testFingerprint, "docs",
		WithRetries(1, time.Millisecond), WithCallTimeout(10*time.Millisecond))
	require.NoError(t, err)

	_, err = idx.Build(context.Background(), []core.Chunk{chunk("north")}, ModeCreate)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBuild_InvalidChunk(t *testing.T) {
	idx := newTestIndex(t, newTestRepo(t), newCompassEmbedder())
	_, err := idx.Build(context.Background(), []core.Chunk{{Text: "no source"}}, ModeCreate)
	assert.ErrorIs(t, err, core.ErrInvalidChunk)

	_, err = idx.Build(context.Background(), nil, BuildMode(9))
	assert.ErrorIs(t, err, ErrInvalidBuildMode)
}

func TestDelete(t *testing.T) {
	idx := newTestIndex(t, newTestRepo(t), newCompassEmbedder())
	ctx := context.Background()

	_, err := idx.Build(ctx, []core.Chunk{chunk("north")}, ModeCreate)
	require.NoError(t, err)
	require.NoError(t, idx.Delete(ctx))

	_, err = idx.Open(ctx)
	assert.ErrorIs(t, err, ErrIndexNotFound)
}

func TestNew_Validation(t *testing.T) {
	repo := newTestRepo(t)
	_, err := New(nil, mock.NewMockEmbedder(), testFingerprint, "docs")
	assert.ErrorIs(t, err, ErrRepositoryRequired)
	_, err = New(repo, nil, testFingerprint, "docs")
	assert.ErrorIs(t, err, ErrEmbedderRequired)
	_, err = New(repo, mock.NewMockEmbedder(), testFingerprint, "a/b")
	assert.ErrorIs(t, err, core.ErrInvalidNamespace)
	_, err = New(repo, mock.NewMockEmbedder(), testFingerprint, "docs", WithBatchSize(0))
	assert.Error(t, err)
}

func TestParseBuildMode(t *testing.T) {
	tests := []struct {
		in   string
		want BuildMode
	}{
		{"create", ModeCreate},
		{"UPSERT", ModeUpsert},
		{" overwrite ", ModeOverwrite},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseBuildMode(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, strings.TrimSpace(strings.ToLower(tt.in)), got.String())
		})
	}

	_, err := ParseBuildMode("append")
	assert.ErrorIs(t, err, ErrInvalidBuildMode)
}
