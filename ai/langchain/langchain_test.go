package langchain

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/fake"
)

func TestGenerator_Generate(t *testing.T) {
	ctx := context.Background()

	t.Run("returns model answer", func(t *testing.T) {
		gen, err := NewGenerator(fake.NewFakeLLM([]string{"The sky is blue."}), 0, "test-generator")
		require.NoError(t, err)

		answer, err := gen.Generate(ctx, "What colour is the sky?")
		require.NoError(t, err)
		assert.Equal(t, "The sky is blue.", answer)
	})

	t.Run("cycles through responses", func(t *testing.T) {
		gen, err := newGenerator(fake.NewFakeLLM([]string{"first", "second"}), 0, "test-generator")
		require.NoError(t, err)

		a1, err := gen.Generate(ctx, "q1")
		require.NoError(t, err)
		a2, err := gen.Generate(ctx, "q2")
		require.NoError(t, err)

		assert.Equal(t, "first", a1)
		assert.Equal(t, "second", a2)
	})

	t.Run("strips reasoning block", func(t *testing.T) {
		gen, err := NewGenerator(fake.NewFakeLLM([]string{"<think>checking context</think>\n  Paris.  "}), 0, "test-generator")
		require.NoError(t, err)

		answer, err := gen.Generate(ctx, "prompt")
		require.NoError(t, err)
		assert.Equal(t, "Paris.", answer)
	})

	t.Run("empty completion is an error", func(t *testing.T) {
		gen, err := NewGenerator(fake.NewFakeLLM([]string{"   "}), 0, "test-generator")
		require.NoError(t, err)

		_, err = gen.Generate(ctx, "prompt")
		assert.ErrorIs(t, err, ErrNoChoices)
	})

	t.Run("model error propagates", func(t *testing.T) {
		gen, err := NewGenerator(fake.NewFakeLLM(nil), 0, "test-generator")
		require.NoError(t, err)

		_, err = gen.Generate(ctx, "prompt")
		assert.Error(t, err)
	})

	t.Run("nil client", func(t *testing.T) {
		_, err := NewGenerator(nil, 0, "test-generator")
		assert.ErrorIs(t, err, ErrClientRequired)
	})
}

func TestEmbedder(t *testing.T) {
	ctx := context.Background()

	var seen [][]string
	client := embeddings.EmbedderClientFunc(func(ctx context.Context, texts []string) ([][]float32, error) {
		batch := make([]string, len(texts))
		copy(batch, texts)
		seen = append(seen, batch)

		out := make([][]float32, len(texts))
		for i, text := range texts {
			out[i] = []float32{float32(len(text)), 1}
		}
		return out, nil
	})

	t.Run("embeds single text", func(t *testing.T) {
		seen = nil
		emb, err := NewEmbedder(client, 0, "test-embedder")
		require.NoError(t, err)

		vector, err := emb.EmbedText(ctx, "hello")
		require.NoError(t, err)
		assert.Equal(t, []float32{5, 1}, vector)
	})

	t.Run("batches and preserves order", func(t *testing.T) {
		seen = nil
		emb, err := NewEmbedder(client, 2, "test-embedder")
		require.NoError(t, err)

		texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}
		vectors, err := emb.EmbedTexts(ctx, texts)
		require.NoError(t, err)
		require.Len(t, vectors, 5)
		for i, text := range texts {
			assert.Equal(t, float32(len(text)), vectors[i][0])
		}
		assert.Len(t, seen, 3, "five texts in batches of two")
	})

	t.Run("does not mutate caller slice", func(t *testing.T) {
		emb, err := NewEmbedder(client, 0, "test-embedder")
		require.NoError(t, err)

		texts := []string{"line one\nline two"}
		_, err = emb.EmbedTexts(ctx, texts)
		require.NoError(t, err)
		assert.True(t, strings.Contains(texts[0], "\n"))
	})

	t.Run("client error propagates", func(t *testing.T) {
		failing := embeddings.EmbedderClientFunc(func(ctx context.Context, texts []string) ([][]float32, error) {
			return nil, errors.New("service unavailable")
		})
		emb, err := NewEmbedder(failing, 0, "test-embedder")
		require.NoError(t, err)

		_, err = emb.EmbedText(ctx, "hello")
		assert.ErrorContains(t, err, "service unavailable")
	})

	t.Run("nil client", func(t *testing.T) {
		_, err := NewEmbedder(nil, 0, "test-embedder")
		assert.ErrorIs(t, err, ErrClientRequired)
	})
}

func TestCleanCompletion(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "  answer \n", want: "answer"},
		{name: "reasoning block", in: "<think>hmm</think>answer", want: "answer"},
		{name: "two blocks", in: "<think>a</think>one <think>b</think>two", want: "one two"},
		{name: "unterminated block", in: "answer<think>never closed", want: "answer"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cleanCompletion(tt.in))
		})
	}
}
