package badger

import (
	"context"
	"testing"

	"github.com/poiesic/docket/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlobStore_RoundTrip(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	defer backend.Close()

	blobs, err := NewBlobStore(backend, WithBaseURL("http://localhost:8080/"))
	require.NoError(t, err)
	ctx := context.Background()

	handle, err := blobs.Store(ctx, "notes.txt", "text/plain", []byte("hello world"))
	require.NoError(t, err)
	require.NotEmpty(t, handle)

	data, err := blobs.Get(ctx, handle)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))

	size, err := blobs.Size(ctx, handle)
	require.NoError(t, err)
	assert.Equal(t, int64(11), size)

	filename, mimeType, err := blobs.Describe(ctx, handle)
	require.NoError(t, err)
	assert.Equal(t, "notes.txt", filename)
	assert.Equal(t, "text/plain", mimeType)

	url, err := blobs.URL(ctx, handle)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/blobs/"+string(handle), url)

	require.NoError(t, blobs.Delete(ctx, handle))
	require.NoError(t, blobs.Delete(ctx, handle))

	_, err = blobs.Get(ctx, handle)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestBlobStore_MaxSize(t *testing.T) {
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	defer backend.Close()

	blobs, err := NewBlobStore(backend, WithMaxBlobSize(4))
	require.NoError(t, err)

	_, err = blobs.Store(context.Background(), "big.bin", "application/octet-stream", []byte("12345"))
	assert.ErrorIs(t, err, storage.ErrBlobTooLarge)

	_, err = NewBlobStore(backend, WithMaxBlobSize(0))
	assert.Error(t, err)
}
