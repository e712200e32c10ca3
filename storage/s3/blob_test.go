package s3

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/poiesic/docket/core"
	"github.com/poiesic/docket/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 keeps objects in memory. Multipart calls are left to the embedded
// nil interface since test payloads stay below the part size.
type fakeS3 struct {
	manager.UploadAPIClient

	mu          sync.Mutex
	objects     map[string][]byte
	contentType map[string]string
	metadata    map[string]map[string]string
	deleteErr   error
}

func newFakeS3() *fakeS3 {
	return &fakeS3{
		objects:     make(map[string][]byte),
		contentType: make(map[string]string),
		metadata:    make(map[string]map[string]string),
	}
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	key := aws.ToString(in.Key)
	f.objects[key] = body
	f.contentType[key] = aws.ToString(in.ContentType)
	f.metadata[key] = in.Metadata
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	body, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("missing")}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(string(body)))}, nil
}

func (f *fakeS3) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	body, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NotFound{Message: aws.String("missing")}
	}
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(int64(len(body)))}, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	if f.deleteErr != nil {
		return nil, f.deleteErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

type fakePresigner struct {
	expires time.Duration
}

func (p *fakePresigner) PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	var opts s3.PresignOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	p.expires = opts.Expires
	return &v4.PresignedHTTPRequest{
		URL:    "https://signed.example/" + aws.ToString(in.Bucket) + "/" + aws.ToString(in.Key),
		Method: "GET",
	}, nil
}

func TestNewWithClient_Validation(t *testing.T) {
	_, err := NewWithClient(nil, "bucket")
	assert.ErrorIs(t, err, ErrClientRequired)

	_, err = NewWithClient(newFakeS3(), "")
	assert.ErrorIs(t, err, ErrBucketRequired)

	_, err = NewWithClient(newFakeS3(), "bucket", WithMaxBlobSize(0))
	assert.Error(t, err)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(context.Background(), Config{Region: "us-east-1"})
	assert.ErrorIs(t, err, ErrBucketRequired)

	_, err = New(context.Background(), Config{Bucket: "docs"})
	assert.ErrorIs(t, err, ErrRegionRequired)
}

func TestBlobStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	api := newFakeS3()
	store, err := NewWithClient(api, "docs", WithPrefix("uploads/"))
	require.NoError(t, err)

	handle, err := store.Store(ctx, "notes.txt", "text/plain", []byte("hello world"))
	require.NoError(t, err)
	require.NotEmpty(t, handle)

	key := "uploads/" + string(handle)
	assert.Equal(t, "text/plain", api.contentType[key])
	assert.Equal(t, "notes.txt", api.metadata[key]["filename"])

	data, err := store.Get(ctx, handle)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))

	size, err := store.Size(ctx, handle)
	require.NoError(t, err)
	assert.Equal(t, int64(11), size)

	require.NoError(t, store.Delete(ctx, handle))
	_, err = store.Get(ctx, handle)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = store.Size(ctx, handle)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	// Deleting again is fine
	assert.NoError(t, store.Delete(ctx, handle))
}

func TestBlobStore_DefaultContentType(t *testing.T) {
	api := newFakeS3()
	store, err := NewWithClient(api, "docs")
	require.NoError(t, err)

	handle, err := store.Store(context.Background(), "blob", "", []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, "application/octet-stream", api.contentType[string(handle)])
}

func TestBlobStore_TooLarge(t *testing.T) {
	api := newFakeS3()
	store, err := NewWithClient(api, "docs", WithMaxBlobSize(4))
	require.NoError(t, err)

	_, err = store.Store(context.Background(), "big.bin", "", []byte("12345"))
	assert.ErrorIs(t, err, storage.ErrBlobTooLarge)
	assert.Empty(t, api.objects)
}

func TestBlobStore_DeleteError(t *testing.T) {
	api := newFakeS3()
	api.deleteErr = errors.New("access denied")
	store, err := NewWithClient(api, "docs")
	require.NoError(t, err)

	err = store.Delete(context.Background(), core.BlobHandle("abc"))
	assert.ErrorContains(t, err, "access denied")
}

func TestBlobStore_URL(t *testing.T) {
	ctx := context.Background()

	t.Run("public", func(t *testing.T) {
		store, err := NewWithClient(newFakeS3(), "docs", WithRegion("eu-west-1"), WithPrefix("kb/"))
		require.NoError(t, err)

		url, err := store.URL(ctx, "abc")
		require.NoError(t, err)
		assert.Equal(t, "https://docs.s3.eu-west-1.amazonaws.com/kb/abc", url)
	})

	t.Run("presigned", func(t *testing.T) {
		presigner := &fakePresigner{}
		store, err := NewWithClient(newFakeS3(), "docs", WithPresigner(presigner, 5*time.Minute))
		require.NoError(t, err)

		url, err := store.URL(ctx, "abc")
		require.NoError(t, err)
		assert.Equal(t, "https://signed.example/docs/abc", url)
		assert.Equal(t, 5*time.Minute, presigner.expires)
	})
}
