package reembed

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/poiesic/docket/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockEmbedder struct {
	embedTextFunc  func(ctx context.Context, text string) ([]float32, error)
	embedTextsFunc func(ctx context.Context, texts []string) ([][]float32, error)
}

func (m *mockEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if m.embedTextFunc != nil {
		return m.embedTextFunc(ctx, text)
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

func (m *mockEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if m.embedTextsFunc != nil {
		return m.embedTextsFunc(ctx, texts)
	}
	// Default: return unnormalized vectors for each text
	result := make([][]float32, len(texts))
	for i := range texts {
		result[i] = []float32{1.0, 2.0, 2.0} // magnitude = 3.0
	}
	return result, nil
}

func storedChunks(t *testing.T, n int) ([]*core.Chunk, func() []*core.Chunk) {
	t.Helper()
	index := setupTestIndex(t)
	addChunks(t, index, "org_1", n)

	read := func() []*core.Chunk {
		page, err := index.List(context.Background(), "org_1", "", 100)
		require.NoError(t, err)
		return page.Chunks
	}
	return read(), read
}

func processorFor(t *testing.T, embedder *mockEmbedder) *BatchProcessor {
	t.Helper()
	index := setupTestIndex(t)
	return NewBatchProcessor(index, embedder, 3, 10*time.Millisecond)
}

func TestBatchProcessor_Process(t *testing.T) {
	ctx := context.Background()
	index := setupTestIndex(t)
	addChunks(t, index, "org_1", 2)
	page, err := index.List(ctx, "org_1", "", 10)
	require.NoError(t, err)

	processor := NewBatchProcessor(index, &mockEmbedder{}, 3, 10*time.Millisecond)
	require.NoError(t, processor.Process(ctx, page.Chunks))

	updated, err := index.List(ctx, "org_1", "", 10)
	require.NoError(t, err)
	require.Len(t, updated.Chunks, 2)
	for _, chunk := range updated.Chunks {
		require.Len(t, chunk.Vector, 3, "vector replaced by the new model's")
		var magnitude float32
		for _, v := range chunk.Vector {
			magnitude += v * v
		}
		assert.InDelta(t, 1.0, magnitude, 0.01, "vector should be normalized")
		assert.Equal(t, core.StatusReady, chunk.Status, "status is untouched")
		assert.NotEmpty(t, chunk.Text, "text is untouched")
	}
}

func TestBatchProcessor_EmptyBatch(t *testing.T) {
	processor := processorFor(t, &mockEmbedder{})
	require.NoError(t, processor.Process(context.Background(), nil), "empty batch should not error")
}

func TestBatchProcessor_EmbeddingError(t *testing.T) {
	chunks, _ := storedChunks(t, 1)
	expectedErr := errors.New("embedding error")
	processor := processorFor(t, &mockEmbedder{
		embedTextsFunc: func(ctx context.Context, texts []string) ([][]float32, error) {
			return nil, expectedErr
		},
	})

	err := processor.Process(context.Background(), chunks)
	require.Error(t, err)
	assert.ErrorIs(t, err, expectedErr)
}

func TestBatchProcessor_Retry(t *testing.T) {
	ctx := context.Background()
	index := setupTestIndex(t)
	addChunks(t, index, "org_1", 1)
	page, err := index.List(ctx, "org_1", "", 10)
	require.NoError(t, err)

	attempts := 0
	embedder := &mockEmbedder{
		embedTextsFunc: func(ctx context.Context, texts []string) ([][]float32, error) {
			attempts++
			if attempts < 2 {
				return nil, errors.New("temporary error")
			}
			result := make([][]float32, len(texts))
			for i := range texts {
				result[i] = []float32{1.0, 0.0, 0.0}
			}
			return result, nil
		},
	}
	processor := NewBatchProcessor(index, embedder, 3, 10*time.Millisecond)

	require.NoError(t, processor.Process(ctx, page.Chunks))
	assert.Equal(t, 2, attempts, "should retry on failure")

	updated, err := index.List(ctx, "org_1", "", 10)
	require.NoError(t, err)
	assert.Equal(t, []float32{1.0, 0.0, 0.0}, updated.Chunks[0].Vector)
}

func TestBatchProcessor_ContextCancellation(t *testing.T) {
	chunks, _ := storedChunks(t, 1)
	ctx, cancel := context.WithCancel(context.Background())
	processor := processorFor(t, &mockEmbedder{
		embedTextsFunc: func(ctx context.Context, texts []string) ([][]float32, error) {
			cancel()
			return nil, errors.New("error")
		},
	})

	err := processor.Process(ctx, chunks)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBatchProcessor_CountMismatch(t *testing.T) {
	chunks, _ := storedChunks(t, 2)
	processor := processorFor(t, &mockEmbedder{
		embedTextsFunc: func(ctx context.Context, texts []string) ([][]float32, error) {
			return [][]float32{{1, 0}}, nil
		},
	})

	err := processor.Process(context.Background(), chunks)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embedding count mismatch")
}
