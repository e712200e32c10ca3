package mock

import (
	"context"
	"testing"

	"github.com/poiesic/docket/ai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockEmbedder_SharedWordsScoreHigher(t *testing.T) {
	e := NewMockEmbedder()
	ctx := context.Background()

	query, err := e.EmbedText(ctx, "refund policy")
	require.NoError(t, err)
	related, err := e.EmbedText(ctx, "Our refund policy lasts 30 days")
	require.NoError(t, err)
	unrelated, err := e.EmbedText(ctx, "Shipping takes a week")
	require.NoError(t, err)

	assert.Greater(t, ai.DotProduct(query, related), ai.DotProduct(query, unrelated))
	assert.Equal(t, 3, e.CallCount())
}

func TestMockEmbedder_UnitLength(t *testing.T) {
	vectors, err := NewMockEmbedder().EmbedTexts(context.Background(), []string{"alpha beta", "!!!"})
	require.NoError(t, err)
	for _, v := range vectors {
		assert.InDelta(t, 1.0, ai.DotProduct(v, v), 1e-4)
	}
}

func TestMockSummarizer_Default(t *testing.T) {
	s := NewMockSummarizer()
	answer, err := s.Summarize(context.Background(), "be brief", "First sentence. Second sentence.", "q")
	require.NoError(t, err)
	assert.Equal(t, "First sentence.", answer)
	assert.Equal(t, "be brief", s.LastInstruction())
	assert.Equal(t, 1, s.CallCount())
}

func TestMockProvider(t *testing.T) {
	p := NewMockProvider()
	require.NotNil(t, p.Embedder())
	require.NotNil(t, p.Summarizer())
	require.NotNil(t, p.ImageDescriber())

	desc, err := p.ImageDescriber().DescribeImage(context.Background(), "image/png", []byte{1})
	require.NoError(t, err)
	assert.Contains(t, desc, "image/png")
	assert.NoError(t, p.Close())
}
