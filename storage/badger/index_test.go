package badger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/docket/ai/mock"
	"github.com/poiesic/docket/core"
	"github.com/poiesic/docket/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStores(t *testing.T) (*Stores, *mock.MockEmbedder) {
	t.Helper()
	embedder := mock.NewMockEmbedder()
	stores, err := NewMemoryStores(embedder)
	require.NoError(t, err)
	t.Cleanup(func() { stores.Close() })
	return stores, embedder
}

func readyChunk(namespace, displayName, text string, i, total int) *core.Chunk {
	return &core.Chunk{
		Namespace:   namespace,
		Key:         core.ChunkKey(displayName, i, total),
		Text:        text,
		ContentHash: core.HashText(text),
		Status:      core.StatusReady,
		Metadata: core.ChunkMetadata{
			DisplayName: displayName,
			ChunkIndex:  i,
			TotalChunks: total,
		},
	}
}

func placeholder(namespace, displayName string) *core.Chunk {
	return &core.Chunk{
		Namespace: namespace,
		Key:       core.PlaceholderKey(displayName),
		Status:    core.StatusPending,
		Metadata: core.ChunkMetadata{
			DisplayName: displayName,
			Placeholder: true,
		},
	}
}

func TestNewDocumentIndex_RequiresDeps(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	defer backend.Close()

	_, err = NewDocumentIndex(nil, mock.NewMockEmbedder())
	assert.ErrorIs(t, err, ErrBackendRequired)

	_, err = NewDocumentIndex(backend, nil)
	assert.ErrorIs(t, err, ErrEmbedderRequired)
}

func TestDocumentIndex_AddIsIdempotentOnHash(t *testing.T) {
	stores, embedder := newTestStores(t)
	ctx := context.Background()

	id, created, err := stores.Index.Add(ctx, readyChunk("org_1", "Guide", "Refunds take five days.", 0, 1))
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, core.EntryID("org_1", "Guide"), id)
	assert.Equal(t, 1, embedder.CallCount())

	again, created, err := stores.Index.Add(ctx, readyChunk("org_1", "Guide", "Refunds take five days.", 0, 1))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, id, again)
	assert.Equal(t, 1, embedder.CallCount(), "unchanged content must not be re-embedded")

	_, created, err = stores.Index.Add(ctx, readyChunk("org_1", "Guide", "Refunds take ten days.", 0, 1))
	require.NoError(t, err)
	assert.True(t, created)

	stored, err := stores.Index.Get(ctx, "org_1", "Guide")
	require.NoError(t, err)
	assert.Equal(t, "Refunds take ten days.", stored.Text)
	assert.NotEmpty(t, stored.Vector)
}

func TestDocumentIndex_PlaceholderAlwaysOverwrites(t *testing.T) {
	stores, embedder := newTestStores(t)
	ctx := context.Background()

	_, created, err := stores.Index.Add(ctx, placeholder("org_1", "Guide"))
	require.NoError(t, err)
	assert.True(t, created)

	_, created, err = stores.Index.Add(ctx, placeholder("org_1", "Guide"))
	require.NoError(t, err)
	assert.True(t, created)
	assert.Zero(t, embedder.CallCount(), "placeholders are not embedded")
}

func TestDocumentIndex_AddValidates(t *testing.T) {
	stores, _ := newTestStores(t)

	_, _, err := stores.Index.Add(context.Background(), &core.Chunk{Namespace: "org_1", Status: core.StatusReady})
	assert.ErrorIs(t, err, core.ErrInvalidChunk)
}

func TestDocumentIndex_AddEmbedderFailure(t *testing.T) {
	stores, embedder := newTestStores(t)
	embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		return nil, errors.New("embedding service down")
	}

	_, _, err := stores.Index.Add(context.Background(), readyChunk("org_1", "Guide", "text", 0, 1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embedding service down")

	_, err = stores.Index.Get(context.Background(), "org_1", "Guide")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestDocumentIndex_SearchRanksAndIsolatesNamespaces(t *testing.T) {
	stores, _ := newTestStores(t)
	ctx := context.Background()

	docs := map[string]string{
		"Refunds":  "Refunds are processed within five business days of the request.",
		"Shipping": "Orders ship from our warehouse in two to three days.",
		"Careers":  "We are hiring engineers and designers in every office.",
	}
	for name, text := range docs {
		_, _, err := stores.Index.Add(ctx, readyChunk("org_1", name, text, 0, 1))
		require.NoError(t, err)
	}
	_, _, err := stores.Index.Add(ctx, readyChunk("org_2", "Refunds", "Refunds are processed within five business days.", 0, 1))
	require.NoError(t, err)
	_, _, err = stores.Index.Add(ctx, placeholder("org_1", "Pending"))
	require.NoError(t, err)

	hits, err := stores.Index.Search(ctx, "org_1", "how are refunds processed", 10)
	require.NoError(t, err)
	require.Len(t, hits, 3, "placeholders are never returned")

	assert.Equal(t, "Refunds", hits[0].Chunk.Metadata.DisplayName)
	for _, h := range hits {
		assert.Equal(t, "org_1", h.Chunk.Namespace)
	}
	for i := 1; i < len(hits); i++ {
		assert.GreaterOrEqual(t, hits[i-1].Score, hits[i].Score)
	}

	hits, err = stores.Index.Search(ctx, "org_1", "refunds", 1)
	require.NoError(t, err)
	assert.Len(t, hits, 1)

	_, err = stores.Index.Search(ctx, "org_1", "refunds", 0)
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)
}

func TestDocumentIndex_VerbatimBoost(t *testing.T) {
	stores, _ := newTestStores(t)
	ctx := context.Background()

	_, _, err := stores.Index.Add(ctx, readyChunk("org_1", "Policy", "The warranty covers accidental damage for one year.", 0, 1))
	require.NoError(t, err)

	hits, err := stores.Index.Search(ctx, "org_1", "warranty accidental damage", 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Greater(t, hits[0].Score, float32(DefaultVerbatimBoost))
}

func TestDocumentIndex_ListPaginates(t *testing.T) {
	stores, _ := newTestStores(t)
	ctx := context.Background()

	const total = 25
	for i := range total {
		_, _, err := stores.Index.Add(ctx, readyChunk("org_1", fmt.Sprintf("Doc %02d", i), fmt.Sprintf("content %d", i), 0, 1))
		require.NoError(t, err)
	}
	_, _, err := stores.Index.Add(ctx, readyChunk("org_10", "Other", "other namespace", 0, 1))
	require.NoError(t, err)

	seen := map[core.ID]bool{}
	cursor := ""
	pages := 0
	for {
		page, err := stores.Index.List(ctx, "org_1", cursor, 10)
		require.NoError(t, err)
		pages++
		for _, c := range page.Chunks {
			assert.Equal(t, "org_1", c.Namespace)
			assert.False(t, seen[c.ID], "entry listed twice")
			seen[c.ID] = true
		}
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	assert.Len(t, seen, total)
	assert.Equal(t, 3, pages)

	_, err = stores.Index.List(ctx, "org_1", "not-a-cursor", 10)
	assert.ErrorIs(t, err, storage.ErrInvalidCursor)
}

func TestDocumentIndex_DeleteAndDocumentEntries(t *testing.T) {
	stores, _ := newTestStores(t)
	ctx := context.Background()
	doc := core.DocumentID{Namespace: "org_1", DisplayName: "Manual"}

	_, _, err := stores.Index.Add(ctx, placeholder("org_1", "Manual"))
	require.NoError(t, err)
	for i := range 3 {
		_, _, err := stores.Index.Add(ctx, readyChunk("org_1", "Manual", fmt.Sprintf("section %d", i), i, 3))
		require.NoError(t, err)
	}
	_, _, err = stores.Index.Add(ctx, readyChunk("org_1", "Manual v2", "different document", 0, 1))
	require.NoError(t, err)

	entries, err := stores.Index.DocumentEntries(ctx, doc)
	require.NoError(t, err)
	require.Len(t, entries, 4)
	for i := range 3 {
		assert.Equal(t, i, entries[i].Metadata.ChunkIndex)
	}
	assert.True(t, entries[3].Metadata.Placeholder)

	require.NoError(t, stores.Index.Delete(ctx, entries[0].ID))
	require.NoError(t, stores.Index.Delete(ctx, entries[0].ID), "deleting twice is not an error")

	entries, err = stores.Index.DocumentEntries(ctx, doc)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestDocumentIndex_SetStatus(t *testing.T) {
	stores, _ := newTestStores(t)
	ctx := context.Background()

	_, _, err := stores.Index.Add(ctx, placeholder("org_1", "Report"))
	require.NoError(t, err)

	key := core.PlaceholderKey("Report")
	require.NoError(t, stores.Index.SetStatus(ctx, "org_1", key, core.StatusError, "extraction failed: corrupt pdf"))

	stored, err := stores.Index.Get(ctx, "org_1", key)
	require.NoError(t, err)
	assert.Equal(t, core.StatusError, stored.Status)
	assert.Equal(t, "extraction failed: corrupt pdf", stored.Error)

	err = stores.Index.SetStatus(ctx, "org_1", "missing", core.StatusError, "")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	err = stores.Index.SetStatus(ctx, "org_1", key, core.Status("bogus"), "")
	assert.ErrorIs(t, err, core.ErrInvalidStatus)
}

func TestDocumentIndex_NamespacesAndDrop(t *testing.T) {
	stores, _ := newTestStores(t)
	ctx := context.Background()

	exists, err := stores.Index.GetNamespace(ctx, "org_1_kb_a")
	require.NoError(t, err)
	assert.False(t, exists)

	for i := range 5 {
		_, _, err := stores.Index.Add(ctx, readyChunk("org_1_kb_a", "Doc", strings.Repeat("x", i+1), i, 5))
		require.NoError(t, err)
	}
	_, _, err = stores.Index.Add(ctx, readyChunk("org_1", "Keep", "keep me", 0, 1))
	require.NoError(t, err)

	exists, err = stores.Index.GetNamespace(ctx, "org_1_kb_a")
	require.NoError(t, err)
	assert.True(t, exists)

	namespaces, err := stores.Index.ListNamespaces(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"org_1", "org_1_kb_a"}, namespaces)

	dropped, err := stores.Index.DropNamespace(ctx, "org_1_kb_a")
	require.NoError(t, err)
	assert.Equal(t, 5, dropped)

	exists, err = stores.Index.GetNamespace(ctx, "org_1_kb_a")
	require.NoError(t, err)
	assert.False(t, exists)

	entries, err := stores.Index.DocumentEntries(ctx, core.DocumentID{Namespace: "org_1_kb_a", DisplayName: "Doc"})
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, err = stores.Index.Get(ctx, "org_1", "Keep")
	assert.NoError(t, err)
}

func TestDocumentIndex_NamespaceWithNULIsIsolated(t *testing.T) {
	stores, _ := newTestStores(t)
	ctx := context.Background()

	_, _, err := stores.Index.Add(ctx, readyChunk("acme\x00evil", "Secret", "acme secret plans", 0, 1))
	assert.ErrorIs(t, err, core.ErrInvalidNamespace)

	_, _, err = stores.Index.Add(ctx, readyChunk("acme", "Public", "acme public notes", 0, 1))
	require.NoError(t, err)

	// Write a foreign entry whose key starts with the "acme" prefix.
	foreign := readyChunk("acme\x00evil", "Secret", "acme secret plans", 0, 1)
	foreign.ID = core.EntryID(foreign.Namespace, foreign.Key)
	foreign.Vector = []float32{1, 0}
	err = stores.Backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Set(makeChunkKey(foreign.Namespace, foreign.ID), storage.MarshalChunk(foreign)); err != nil {
			return err
		}
		if err := tx.Set(makeChunkDocKey(foreign.Document(), foreign.ID), storage.MarshalID(foreign.ID)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	require.NoError(t, err)

	hits, err := stores.Index.Search(ctx, "acme", "acme secret plans", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "Public", hits[0].Chunk.Metadata.DisplayName)

	page, err := stores.Index.List(ctx, "acme", "", 10)
	require.NoError(t, err)
	require.Len(t, page.Chunks, 1)
	assert.Equal(t, "acme", page.Chunks[0].Namespace)

	dropped, err := stores.Index.DropNamespace(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, 1, dropped)

	page, err = stores.Index.List(ctx, "acme\x00evil", "", 10)
	require.NoError(t, err)
	assert.Len(t, page.Chunks, 1, "foreign entry survives dropping acme")
}

func TestDocumentIndex_UpdateVectors(t *testing.T) {
	stores, _ := newTestStores(t)
	ctx := context.Background()

	id, _, err := stores.Index.Add(ctx, readyChunk("org_1", "Doc", "some text", 0, 1))
	require.NoError(t, err)

	err = stores.Index.UpdateVectors(ctx,
		&core.Chunk{ID: id, Namespace: "org_1", Vector: []float32{3, 4}},
		&core.Chunk{ID: 999, Namespace: "org_1", Vector: []float32{1}},
	)
	require.NoError(t, err)

	stored, err := stores.Index.Get(ctx, "org_1", "Doc")
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float32{0.6, 0.8}, stored.Vector, 1e-6)
}
