package catalog

import (
	"context"
	"strconv"
	"testing"

	"github.com/poiesic/docket/ai/mock"
	"github.com/poiesic/docket/core"
	"github.com/poiesic/docket/namespace"
	"github.com/poiesic/docket/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tenant = "org_1"

type fixture struct {
	stores   *badger.Stores
	resolver *namespace.Resolver
	catalog  *Catalog
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	stores, err := badger.NewMemoryStores(mock.NewMockEmbedder())
	require.NoError(t, err)
	t.Cleanup(func() { stores.Close() })
	resolver, err := namespace.NewResolver(stores.KnowledgeBases, stores.Index)
	require.NoError(t, err)
	catalog, err := New(stores.Index, resolver, WithBlobStore(stores.Blobs), WithPageSize(2))
	require.NoError(t, err)
	return &fixture{stores: stores, resolver: resolver, catalog: catalog}
}

func (f *fixture) addDocument(t *testing.T, ns, kbID, name, category string, chunks int) {
	t.Helper()
	ctx := context.Background()
	handle, err := f.stores.Blobs.Store(ctx, name, "text/plain", []byte("0123456789"))
	require.NoError(t, err)
	for i := range chunks {
		text := name + " part " + strconv.Itoa(i)
		_, _, err := f.stores.Index.Add(ctx, &core.Chunk{
			Namespace:   ns,
			Key:         core.ChunkKey(name, i, chunks),
			Text:        text,
			ContentHash: core.HashText(text),
			Status:      core.StatusReady,
			Metadata: core.ChunkMetadata{
				DisplayName:      name,
				OriginalFilename: name,
				MimeType:         "text/plain",
				Category:         category,
				KnowledgeBaseID:  kbID,
				SourceType:       core.SourceUploaded,
				TenantID:         tenant,
				BlobHandle:       handle,
				ChunkIndex:       i,
				TotalChunks:      chunks,
			},
		})
		require.NoError(t, err)
	}
}

func (f *fixture) addPlaceholder(t *testing.T, ns, name string, status core.Status, reason string) {
	t.Helper()
	_, _, err := f.stores.Index.Add(context.Background(), &core.Chunk{
		Namespace: ns,
		Key:       core.PlaceholderKey(name),
		Status:    status,
		Error:     reason,
		Metadata:  core.ChunkMetadata{DisplayName: name, TenantID: tenant, Placeholder: true},
	})
	require.NoError(t, err)
}

func byName(files []*File) map[string]*File {
	m := make(map[string]*File, len(files))
	for _, f := range files {
		m[f.DisplayName] = f
	}
	return m
}

func TestNew_RequiresDeps(t *testing.T) {
	f := newFixture(t)
	_, err := New(nil, f.resolver)
	assert.ErrorIs(t, err, ErrIndexRequired)
	_, err = New(f.stores.Index, nil)
	assert.ErrorIs(t, err, ErrResolverRequired)
}

func TestList_AggregatesAcrossNamespaces(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	kb, err := f.resolver.CreateKnowledgeBase(ctx, tenant, "Legal", "")
	require.NoError(t, err)

	f.addDocument(t, tenant, "", "report.txt", "finance", 3)
	f.addDocument(t, kb.Namespace, kb.ID, "contract.txt", "legal", 1)
	f.addPlaceholder(t, tenant, "slides.pdf", core.StatusPending, "")
	f.addPlaceholder(t, tenant, "broken.doc", core.StatusError, "unsupported MIME type")
	f.addDocument(t, "org_2", "", "foreign.txt", "", 1)

	files, err := f.catalog.List(ctx, tenant, Filter{})
	require.NoError(t, err)
	require.Len(t, files, 4)
	got := byName(files)

	report := got["report.txt"]
	require.NotNil(t, report)
	assert.Equal(t, FileReady, report.Status)
	assert.Equal(t, 3, report.Chunks)
	assert.Equal(t, "finance", report.Category)
	assert.Equal(t, int64(10), report.Size)
	assert.Equal(t, "10 B", report.SizeText)
	assert.NotEmpty(t, report.URL)

	assert.Equal(t, kb.ID, got["contract.txt"].KnowledgeBaseID)
	assert.Equal(t, kb.Namespace, got["contract.txt"].Namespace)

	assert.Equal(t, FileProcessing, got["slides.pdf"].Status)
	assert.Zero(t, got["slides.pdf"].Chunks)

	assert.Equal(t, FileError, got["broken.doc"].Status)
	assert.Equal(t, "unsupported MIME type", got["broken.doc"].Error)
}

func TestList_KnowledgeBaseAndCategoryFilters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	kb, err := f.resolver.CreateKnowledgeBase(ctx, tenant, "Legal", "")
	require.NoError(t, err)

	f.addDocument(t, tenant, "", "report.txt", "finance", 1)
	f.addDocument(t, tenant, "", "memo.txt", "ops", 1)
	f.addDocument(t, kb.Namespace, kb.ID, "contract.txt", "legal", 1)

	files, err := f.catalog.List(ctx, tenant, Filter{KnowledgeBaseID: kb.ID})
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "contract.txt", files[0].DisplayName)

	files, err = f.catalog.List(ctx, tenant, Filter{Category: "ops"})
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "memo.txt", files[0].DisplayName)

	files, err = f.catalog.List(ctx, tenant, Filter{KnowledgeBaseID: "kb_doesnotexist0000"})
	require.NoError(t, err)
	assert.NotNil(t, files)
	assert.Empty(t, files)

	_, err = f.catalog.List(ctx, "org_2", Filter{KnowledgeBaseID: kb.ID})
	assert.ErrorIs(t, err, core.ErrPermissionDenied)

	_, err = f.catalog.List(ctx, "", Filter{})
	assert.ErrorIs(t, err, core.ErrEmptyTenant)
}

func TestList_ReadyWinsOverPlaceholder(t *testing.T) {
	f := newFixture(t)
	f.addDocument(t, tenant, "", "report.txt", "", 2)
	f.addPlaceholder(t, tenant, "report.txt", core.StatusPending, "")

	files, err := f.catalog.List(context.Background(), tenant, Filter{})
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, FileReady, files[0].Status)
	assert.Equal(t, 2, files[0].Chunks)
}

func TestGet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addDocument(t, tenant, "", "report.txt", "finance", 2)

	file, err := f.catalog.Get(ctx, tenant, "", "report.txt")
	require.NoError(t, err)
	assert.Equal(t, "report.txt", file.DisplayName)
	assert.Equal(t, 2, file.Chunks)

	_, err = f.catalog.Get(ctx, tenant, "", "missing.txt")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "0 B", FormatSize(-5))
	assert.Equal(t, "512 B", FormatSize(512))
	assert.Equal(t, "0 B", FormatSize(0))
	assert.Equal(t, "1 KB", FormatSize(1024))
	assert.Equal(t, "1.5 KB", FormatSize(1536))
	assert.Equal(t, "2 MB", FormatSize(2*1024*1024))
	assert.Equal(t, "2 KB", FormatSize(2007))
	assert.Equal(t, "3.2 GB", FormatSize(3435973837))
	assert.Equal(t, "2048 GB", FormatSize(2<<40))
}
