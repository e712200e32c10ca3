package extract

import (
	"context"
	"errors"
	"testing"

	"github.com/poiesic/docket/ai/mock"
	"github.com/poiesic/docket/core"
	"github.com/poiesic/docket/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T, opts ...Option) (*Router, *badger.BlobStore) {
	t.Helper()
	stores, err := badger.NewMemoryStores(mock.NewMockEmbedder())
	require.NoError(t, err)
	t.Cleanup(func() { stores.Close() })

	r, err := NewRouter(stores.Blobs, opts...)
	require.NoError(t, err)
	return r, stores.Blobs
}

func TestNewRouter_RequiresBlobStore(t *testing.T) {
	_, err := NewRouter(nil)
	assert.ErrorIs(t, err, ErrBlobStoreRequired)
}

func TestGuessMimeType(t *testing.T) {
	tests := []struct {
		filename string
		data     []byte
		want     string
	}{
		{"report.PDF", nil, "application/pdf"},
		{"notes.md", nil, "text/markdown"},
		{"letter.docx", nil, mimeDOCX},
		{"photo.jpeg", nil, "image/jpeg"},
		{"noext", []byte("%PDF-1.4\n%âãÏÓ\n"), "application/pdf"},
		{"noext", []byte("<!DOCTYPE html><html><body>hi</body></html>"), "text/html"},
		{"noext", []byte("just some words"), "text/plain"},
		{"noext", nil, OctetStream},
	}

	for _, tt := range tests {
		t.Run(tt.filename+"/"+tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, GuessMimeType(tt.filename, tt.data))
		})
	}
}

func TestExtract_Passthrough(t *testing.T) {
	r, blobs := newTestRouter(t)
	ctx := context.Background()

	handle, err := blobs.Store(ctx, "notes.md", "text/markdown", []byte("\xef\xbb\xbf# Notes\n\nShip on Fridays.\n"))
	require.NoError(t, err)

	text, err := r.Extract(ctx, handle, "notes.md", "text/markdown; charset=utf-8")
	require.NoError(t, err)
	assert.Equal(t, "# Notes\n\nShip on Fridays.", text)
}

func TestExtract_HTML(t *testing.T) {
	r, _ := newTestRouter(t)

	html := `<html><head><title>T</title><style>p{}</style></head><body><h1>Refunds</h1><p>Five <span>business</span> days.</p></body></html>`
	text, err := r.ExtractBytes(context.Background(), []byte(html), "page.html", "text/html")
	require.NoError(t, err)
	assert.Contains(t, text, "Refunds")
	assert.Contains(t, text, "Five business days.")
	assert.NotContains(t, text, "<span>")
}

func TestExtract_Image(t *testing.T) {
	describer := mock.NewMockImageDescriber()
	r, _ := newTestRouter(t, WithImageDescriber(describer), WithImageRateLimit(0, 0))

	text, err := r.ExtractBytes(context.Background(), []byte{0x89, 'P', 'N', 'G'}, "chart.png", "image/png")
	require.NoError(t, err)
	assert.Equal(t, "An image of type image/png.", text)
	assert.Equal(t, 1, describer.CallCount())
}

func TestExtract_Errors(t *testing.T) {
	r, _ := newTestRouter(t, WithMaxBytes(16))
	ctx := context.Background()

	_, err := r.ExtractBytes(ctx, []byte("PK\x03\x04zipdata"), "archive.zip", "application/zip")
	assert.ErrorIs(t, err, core.ErrExtractionFailed)
	assert.ErrorIs(t, err, ErrUnsupportedMimeType)

	_, err = r.ExtractBytes(ctx, []byte("x"), "photo.png", "image/png")
	assert.ErrorIs(t, err, ErrUnsupportedMimeType, "images need a describer")

	_, err = r.ExtractBytes(ctx, []byte("this payload is too large"), "big.txt", "text/plain")
	assert.ErrorIs(t, err, ErrPayloadTooLarge)

	_, err = r.ExtractBytes(ctx, []byte("   \n  "), "blank.txt", "text/plain")
	assert.ErrorIs(t, err, ErrNoText)

	_, err = r.Extract(ctx, core.BlobHandle("missing"), "gone.txt", "text/plain")
	assert.ErrorIs(t, err, core.ErrExtractionFailed)
}

func TestExtract_DescriberFailure(t *testing.T) {
	describer := mock.NewMockImageDescriber()
	describer.DescribeImageFunc = func(ctx context.Context, mimeType string, data []byte) (string, error) {
		return "", errors.New("vision model unavailable")
	}
	r, _ := newTestRouter(t, WithImageDescriber(describer))

	_, err := r.ExtractBytes(context.Background(), []byte("img"), "a.png", "image/png")
	assert.ErrorIs(t, err, core.ErrExtractionFailed)
	assert.ErrorContains(t, err, "vision model unavailable")
}
