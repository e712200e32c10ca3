package namespace

import (
	"context"
	"strings"
	"testing"

	"github.com/poiesic/docket/ai/mock"
	"github.com/poiesic/docket/core"
	"github.com/poiesic/docket/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestResolver(t *testing.T) (*Resolver, *badger.Stores) {
	t.Helper()
	stores, err := badger.NewMemoryStores(mock.NewMockEmbedder())
	require.NoError(t, err)
	t.Cleanup(func() { stores.Close() })

	r, err := NewResolver(stores.KnowledgeBases, stores.Index)
	require.NoError(t, err)
	return r, stores
}

func TestNewResolver_RequiresDeps(t *testing.T) {
	_, err := NewResolver(nil, nil)
	assert.ErrorIs(t, err, ErrKnowledgeBaseRepositoryRequired)
}

func TestNewKnowledgeBaseID(t *testing.T) {
	id := NewKnowledgeBaseID()
	assert.True(t, strings.HasPrefix(id, "kb_"))
	assert.Len(t, id, 3+16)
	assert.NotEqual(t, id, NewKnowledgeBaseID())
}

func TestResolve(t *testing.T) {
	r, _ := newTestResolver(t)
	ctx := context.Background()

	ns, err := r.Resolve(ctx, "org_1", "")
	require.NoError(t, err)
	assert.Equal(t, "org_1", ns)

	kb, err := r.CreateKnowledgeBase(ctx, "org_1", " Support ", "")
	require.NoError(t, err)
	assert.Equal(t, "Support", kb.Name)
	assert.Equal(t, "org_1_"+kb.ID, kb.Namespace)

	ns, err = r.Resolve(ctx, "org_1", kb.ID)
	require.NoError(t, err)
	assert.Equal(t, kb.Namespace, ns)

	_, err = r.Resolve(ctx, "org_2", kb.ID)
	assert.ErrorIs(t, err, core.ErrPermissionDenied)

	_, err = r.Resolve(ctx, "org_1", "kb_missing")
	assert.ErrorIs(t, err, core.ErrNotFound)

	_, err = r.Resolve(ctx, "org_1\x00evil", "")
	assert.ErrorIs(t, err, core.ErrInvalidNamespace)

	_, err = r.Namespaces(ctx, "org_1\x00evil")
	assert.ErrorIs(t, err, core.ErrInvalidNamespace)

	_, err = r.Resolve(ctx, "", "")
	assert.ErrorIs(t, err, core.ErrEmptyTenant)
}

func TestResolveForRetrieval_Degrades(t *testing.T) {
	r, _ := newTestResolver(t)
	ctx := context.Background()

	ns, ok := r.ResolveForRetrieval(ctx, "org_1", "kb_missing")
	assert.False(t, ok)
	assert.Empty(t, ns)

	ns, ok = r.ResolveForRetrieval(ctx, "org_1", "")
	assert.True(t, ok)
	assert.Equal(t, "org_1", ns)
}

func TestKnowledgeBaseLifecycle(t *testing.T) {
	r, stores := newTestResolver(t)
	ctx := context.Background()

	kb, err := r.CreateKnowledgeBase(ctx, "org_1", "Support", "FAQ")
	require.NoError(t, err)
	other, err := r.CreateKnowledgeBase(ctx, "org_1", "Sales", "")
	require.NoError(t, err)

	namespaces, err := r.Namespaces(ctx, "org_1")
	require.NoError(t, err)
	assert.Equal(t, "org_1", namespaces[0])
	assert.ElementsMatch(t, []string{"org_1", kb.Namespace, other.Namespace}, namespaces)

	updated, err := r.UpdateKnowledgeBase(ctx, "org_1", kb.ID, "Customer Support", "")
	require.NoError(t, err)
	assert.Equal(t, "Customer Support", updated.Name)
	assert.Equal(t, "FAQ", updated.Description)

	_, err = r.UpdateKnowledgeBase(ctx, "org_2", kb.ID, "Stolen", "")
	assert.ErrorIs(t, err, core.ErrPermissionDenied)

	_, _, err = stores.Index.Add(ctx, &core.Chunk{
		Namespace:   kb.Namespace,
		Key:         "Policy",
		Text:        "refund policy",
		ContentHash: core.HashText("refund policy"),
		Status:      core.StatusReady,
		Metadata:    core.ChunkMetadata{DisplayName: "Policy"},
	})
	require.NoError(t, err)

	_, err = r.DeleteKnowledgeBase(ctx, "org_2", kb.ID)
	assert.ErrorIs(t, err, core.ErrPermissionDenied)

	dropped, err := r.DeleteKnowledgeBase(ctx, "org_1", kb.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, dropped)

	_, err = r.GetKnowledgeBase(ctx, "org_1", kb.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)

	kbs, err := r.ListKnowledgeBases(ctx, "org_1")
	require.NoError(t, err)
	require.Len(t, kbs, 1)
	assert.Equal(t, other.ID, kbs[0].ID)
}
