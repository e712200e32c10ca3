package badger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/poiesic/docket/core"
	"github.com/poiesic/docket/storage"
)

// DefaultMaxBlobSize bounds a single blob held in badger.
const DefaultMaxBlobSize = 64 << 20

// BlobStore implements storage.BlobStore on the badger backend.
// Handles are random UUIDs; URLs are baseURL + "/blobs/" + handle.
type BlobStore struct {
	backend *Backend
	baseURL string
	maxSize int
}

var (
	_ storage.BlobStore = (*BlobStore)(nil)
	_ storage.BlobSizer = (*BlobStore)(nil)
)

// BlobOption configures a BlobStore.
type BlobOption func(*BlobStore) error

// WithBaseURL sets the prefix of the URLs handed out for blobs.
func WithBaseURL(baseURL string) BlobOption {
	return func(s *BlobStore) error {
		s.baseURL = strings.TrimRight(baseURL, "/")
		return nil
	}
}

// WithMaxBlobSize sets the largest blob Store accepts.
func WithMaxBlobSize(size int) BlobOption {
	return func(s *BlobStore) error {
		if size <= 0 {
			return fmt.Errorf("max blob size must be positive, got %d", size)
		}
		s.maxSize = size
		return nil
	}
}

// NewBlobStore creates a new BlobStore.
func NewBlobStore(backend *Backend, opts ...BlobOption) (*BlobStore, error) {
	if backend == nil {
		return nil, ErrBackendRequired
	}

	s := &BlobStore{
		backend: backend,
		maxSize: DefaultMaxBlobSize,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Store saves data under a new handle.
func (s *BlobStore) Store(ctx context.Context, filename, mimeType string, data []byte) (core.BlobHandle, error) {
	if len(data) > s.maxSize {
		return "", fmt.Errorf("%w: %s exceeds %s", storage.ErrBlobTooLarge,
			humanize.Bytes(uint64(len(data))), humanize.Bytes(uint64(s.maxSize)))
	}

	handle := core.BlobHandle(uuid.NewString())
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Set(makeBlobKey(handle), data); err != nil {
			return err
		}
		meta := storage.MarshalBlobMeta(filename, mimeType, int64(len(data)))
		if err := tx.Set(makeBlobMetaKey(handle), meta); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return "", err
	}

	return handle, nil
}

// Get returns the bytes behind handle.
func (s *BlobStore) Get(ctx context.Context, handle core.BlobHandle) ([]byte, error) {
	var data []byte
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makeBlobKey(handle))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return storage.ErrNotFound
		}
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	}, false)
	return data, err
}

// Size returns the stored length of a blob.
func (s *BlobStore) Size(ctx context.Context, handle core.BlobHandle) (int64, error) {
	var size int64
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makeBlobMetaKey(handle))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return storage.ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			_, _, size, err = storage.UnmarshalBlobMeta(val)
			return err
		})
	}, false)
	return size, err
}

// Describe returns the filename and MIME type a blob was stored with.
func (s *BlobStore) Describe(ctx context.Context, handle core.BlobHandle) (string, string, error) {
	var filename, mimeType string
	err := s.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(makeBlobMetaKey(handle))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return storage.ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			filename, mimeType, _, err = storage.UnmarshalBlobMeta(val)
			return err
		})
	}, false)
	return filename, mimeType, err
}

// Delete removes a blob and its metadata.
func (s *BlobStore) Delete(ctx context.Context, handle core.BlobHandle) error {
	return s.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Delete(makeBlobKey(handle)); err != nil {
			return err
		}
		if err := tx.Delete(makeBlobMetaKey(handle)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// URL returns the path the HTTP API serves the blob from.
func (s *BlobStore) URL(ctx context.Context, handle core.BlobHandle) (string, error) {
	if handle == "" {
		return "", storage.ErrNotFound
	}
	return s.baseURL + "/blobs/" + string(handle), nil
}
