package badger

import (
	"bytes"
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/docket/ai"
	"github.com/poiesic/docket/core"
	"github.com/poiesic/docket/storage"
)

// DefaultVerbatimBoost is added to the similarity of chunks that contain
// every non-stop word of the query.
const DefaultVerbatimBoost = 0.3

// DocumentIndex implements storage.DocumentIndex for BadgerDB.
//
// Chunks live under their namespace, keyed by the deterministic entry ID of
// (namespace, key). A (namespace, displayName) secondary index is maintained
// alongside so a document's chunks can be found without scanning.
// Search is a brute-force cosine scan over one namespace.
type DocumentIndex struct {
	backend       *Backend
	embedder      ai.Embedder
	verbatimBoost float32
	logger        *slog.Logger
}

var (
	_ storage.DocumentIndex  = (*DocumentIndex)(nil)
	_ storage.DocumentLister = (*DocumentIndex)(nil)
	_ storage.Namespaces     = (*DocumentIndex)(nil)
	_ storage.VectorUpdater  = (*DocumentIndex)(nil)
)

// IndexOption configures a DocumentIndex.
type IndexOption func(*DocumentIndex) error

// WithIndexLogger sets a custom logger.
// Default is slog.Default().
func WithIndexLogger(logger *slog.Logger) IndexOption {
	return func(x *DocumentIndex) error {
		if logger == nil {
			logger = slog.Default()
		}
		x.logger = logger
		return nil
	}
}

// WithVerbatimBoost sets the score bonus for chunks containing every query word.
func WithVerbatimBoost(boost float32) IndexOption {
	return func(x *DocumentIndex) error {
		x.verbatimBoost = boost
		return nil
	}
}

// NewDocumentIndex creates a new DocumentIndex.
func NewDocumentIndex(backend *Backend, embedder ai.Embedder, opts ...IndexOption) (*DocumentIndex, error) {
	if backend == nil {
		return nil, ErrBackendRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	x := &DocumentIndex{
		backend:       backend,
		embedder:      embedder,
		verbatimBoost: DefaultVerbatimBoost,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(x); err != nil {
			return nil, err
		}
	}
	x.logger = x.logger.With("component", "document-index")

	return x, nil
}

// Close releases resources. The index holds none of its own.
func (x *DocumentIndex) Close() error {
	return nil
}

// Add writes a chunk, embedding its text unless it is a placeholder.
func (x *DocumentIndex) Add(ctx context.Context, chunk *core.Chunk) (core.ID, bool, error) {
	if err := core.ValidateChunk(chunk); err != nil {
		return 0, false, err
	}
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}

	id := core.EntryID(chunk.Namespace, chunk.Key)
	key := makeChunkKey(chunk.Namespace, id)

	var existing *core.Chunk
	err := x.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		existing, err = readChunk(tx, key)
		return err
	}, false)
	if err != nil {
		return 0, false, err
	}

	chunk.ID = id
	if existing != nil && chunk.ContentHash != "" && existing.ContentHash == chunk.ContentHash {
		x.logger.Debug("content unchanged, skipping write", "namespace", chunk.Namespace, "key", chunk.Key)
		chunk.Vector = existing.Vector
		chunk.InsertedAt = existing.InsertedAt
		chunk.UpdatedAt = existing.UpdatedAt
		return id, false, nil
	}

	chunk.Vector = nil
	if !chunk.Metadata.Placeholder && chunk.Text != "" {
		vector, err := x.embedder.EmbedText(ctx, chunk.Text)
		if err != nil {
			return 0, false, fmt.Errorf("embed %q: %w", chunk.Key, err)
		}
		chunk.Vector = ai.NormalizeVector(vector)
	}

	now := time.Now().UTC()
	chunk.UpdatedAt = now
	chunk.InsertedAt = now
	if existing != nil {
		chunk.InsertedAt = existing.InsertedAt
	}

	err = x.backend.WithTx(func(tx *badger.Txn) error {
		if existing != nil && existing.Metadata.DisplayName != chunk.Metadata.DisplayName {
			if err := tx.Delete(makeChunkDocKey(existing.Document(), id)); err != nil {
				return err
			}
		}
		if err := tx.Set(key, storage.MarshalChunk(chunk)); err != nil {
			return err
		}
		if err := tx.Set(makeChunkDocKey(chunk.Document(), id), storage.MarshalID(id)); err != nil {
			return err
		}
		if err := tx.Set(makeChunkReverseKey(id), []byte(chunk.Namespace)); err != nil {
			return err
		}
		if err := tx.Set(makeNamespaceKey(chunk.Namespace), []byte{}); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
	if err != nil {
		return 0, false, err
	}

	return id, true, nil
}

// Search ranks ready chunks of namespace by cosine similarity to query,
// boosted when the chunk contains every query word.
func (x *DocumentIndex) Search(ctx context.Context, namespace, query string, limit int) ([]*core.SearchHit, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", storage.ErrInvalidQuery)
	}

	vector, err := x.embedder.EmbedText(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	vector = ai.NormalizeVector(vector)
	terms := newQueryTerms(query)

	var hits []*core.SearchHit
	err = x.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeChunkNamespacePrefix(namespace)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		scanned := 0
		for iter.Rewind(); iter.Valid(); iter.Next() {
			if scanned++; scanned%256 == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}
			if !isChunkKeyOf(iter.Item().Key(), opts.Prefix) {
				continue
			}

			chunk, err := decodeChunkItem(iter.Item())
			if err != nil {
				return err
			}
			if chunk.Metadata.Placeholder || chunk.Status != core.StatusReady || len(chunk.Vector) == 0 {
				continue
			}

			score := ai.DotProduct(vector, chunk.Vector)
			if terms.containedIn(chunk.Text) {
				score += x.verbatimBoost
			}
			hits = append(hits, &core.SearchHit{Chunk: chunk, Score: score})
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}

	slices.SortFunc(hits, func(a, b *core.SearchHit) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.Chunk.ID, b.Chunk.ID)
	})

	if len(hits) > limit {
		hits = hits[:limit]
	}

	return hits, nil
}

// List pages through a namespace in entry ID order. The cursor is the
// decimal ID of the last entry of the previous page.
func (x *DocumentIndex) List(ctx context.Context, namespace, cursor string, limit int) (*core.Page, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", storage.ErrInvalidQuery)
	}

	prefix := makeChunkNamespacePrefix(namespace)
	seek := prefix
	if cursor != "" {
		id, err := core.ParseID(cursor)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", storage.ErrInvalidCursor, cursor)
		}
		seek = makeChunkKey(namespace, id)
	}

	page := &core.Page{}
	err := x.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Seek(seek); iter.Valid(); iter.Next() {
			item := iter.Item()
			if cursor != "" && bytes.Equal(item.Key(), seek) {
				continue
			}
			if !isChunkKeyOf(item.Key(), prefix) {
				continue
			}
			if len(page.Chunks) == limit {
				page.NextCursor = page.Chunks[limit-1].ID.String()
				return nil
			}
			chunk, err := decodeChunkItem(item)
			if err != nil {
				return err
			}
			page.Chunks = append(page.Chunks, chunk)
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}

	return page, ctx.Err()
}

// Delete removes an entry and its index keys.
func (x *DocumentIndex) Delete(ctx context.Context, id core.ID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return x.backend.WithTx(func(tx *badger.Txn) error {
		reverseKey := makeChunkReverseKey(id)
		item, err := tx.Get(reverseKey)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		namespace, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}

		key := makeChunkKey(string(namespace), id)
		chunk, err := readChunk(tx, key)
		if err != nil {
			return err
		}
		if chunk != nil {
			if err := tx.Delete(makeChunkDocKey(chunk.Document(), id)); err != nil {
				return err
			}
			if err := tx.Delete(key); err != nil {
				return err
			}
		}
		if err := tx.Delete(reverseKey); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// GetNamespace reports whether namespace has been written to and not dropped.
func (x *DocumentIndex) GetNamespace(ctx context.Context, namespace string) (bool, error) {
	found := false
	err := x.backend.WithTx(func(tx *badger.Txn) error {
		_, err := tx.Get(makeNamespaceKey(namespace))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	}, false)
	return found, err
}

// ListNamespaces returns every registered namespace in key order.
func (x *DocumentIndex) ListNamespaces(ctx context.Context) ([]string, error) {
	keys, err := x.backend.scanKeys([]byte(namespacePrefix))
	if err != nil {
		return nil, err
	}
	namespaces := make([]string, len(keys))
	for i, k := range keys {
		namespaces[i] = string(k[len(namespacePrefix):])
	}
	return namespaces, nil
}

// Get retrieves a single entry by namespace and key.
func (x *DocumentIndex) Get(ctx context.Context, namespace, key string) (*core.Chunk, error) {
	var chunk *core.Chunk
	err := x.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		chunk, err = readChunk(tx, makeChunkKey(namespace, core.EntryID(namespace, key)))
		if err != nil {
			return err
		}
		if chunk == nil {
			return storage.ErrNotFound
		}
		return nil
	}, false)
	return chunk, err
}

// SetStatus updates an entry's status and failure reason.
func (x *DocumentIndex) SetStatus(ctx context.Context, namespace, key string, status core.Status, reason string) error {
	if err := core.ValidateStatus(status); err != nil {
		return err
	}

	return x.backend.WithTx(func(tx *badger.Txn) error {
		k := makeChunkKey(namespace, core.EntryID(namespace, key))
		chunk, err := readChunk(tx, k)
		if err != nil {
			return err
		}
		if chunk == nil {
			return storage.ErrNotFound
		}

		chunk.Status = status
		chunk.Error = reason
		chunk.UpdatedAt = time.Now().UTC()
		if err := tx.Set(k, storage.MarshalChunk(chunk)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// DocumentEntries returns a document's entries from the secondary index,
// ordered by chunk index with placeholders last.
func (x *DocumentIndex) DocumentEntries(ctx context.Context, doc core.DocumentID) ([]*core.Chunk, error) {
	var chunks []*core.Chunk
	err := x.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeChunkDocPrefix(doc)
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			id := trailingID(iter.Item().Key())
			chunk, err := readChunk(tx, makeChunkKey(doc.Namespace, id))
			if err != nil {
				return err
			}
			if chunk != nil {
				chunks = append(chunks, chunk)
			}
		}
		return nil
	}, false)
	if err != nil {
		return nil, err
	}

	slices.SortFunc(chunks, func(a, b *core.Chunk) int {
		if a.Metadata.Placeholder != b.Metadata.Placeholder {
			if a.Metadata.Placeholder {
				return 1
			}
			return -1
		}
		return cmp.Compare(a.Metadata.ChunkIndex, b.Metadata.ChunkIndex)
	})

	return chunks, nil
}

// DropNamespace deletes every entry of namespace along with its index keys.
func (x *DocumentIndex) DropNamespace(ctx context.Context, namespace string) (int, error) {
	prefix := makeChunkNamespacePrefix(namespace)
	scanned, err := x.backend.scanKeys(prefix)
	if err != nil {
		return 0, err
	}
	entryKeys := scanned[:0]
	ids := make(map[core.ID]struct{}, len(scanned))
	for _, k := range scanned {
		if isChunkKeyOf(k, prefix) {
			entryKeys = append(entryKeys, k)
			ids[trailingID(k)] = struct{}{}
		}
	}
	scanned, err = x.backend.scanKeys(compositeKey(chunkDocPrefix, namespace))
	if err != nil {
		return 0, err
	}
	var docKeys [][]byte
	for _, k := range scanned {
		if _, ok := ids[trailingID(k)]; ok {
			docKeys = append(docKeys, k)
		}
	}

	keys := make([][]byte, 0, 2*len(entryKeys)+len(docKeys)+1)
	keys = append(keys, entryKeys...)
	keys = append(keys, docKeys...)
	for _, k := range entryKeys {
		keys = append(keys, makeChunkReverseKey(trailingID(k)))
	}
	keys = append(keys, makeNamespaceKey(namespace))

	if err := x.backend.DeleteKeys(keys); err != nil {
		return 0, err
	}

	x.logger.Info("dropped namespace", "namespace", namespace, "entries", len(entryKeys))
	return len(entryKeys), nil
}

// UpdateVectors normalizes and stores new vectors for existing entries.
func (x *DocumentIndex) UpdateVectors(ctx context.Context, chunks ...*core.Chunk) error {
	return x.backend.WithTx(func(tx *badger.Txn) error {
		now := time.Now().UTC()
		for _, c := range chunks {
			key := makeChunkKey(c.Namespace, c.ID)
			stored, err := readChunk(tx, key)
			if err != nil {
				return err
			}
			if stored == nil {
				continue
			}
			stored.Vector = ai.NormalizeVector(c.Vector)
			stored.UpdatedAt = now
			if err := tx.Set(key, storage.MarshalChunk(stored)); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

// readChunk reads a chunk by key. Returns nil, nil if it doesn't exist.
func readChunk(tx *badger.Txn, key []byte) (*core.Chunk, error) {
	item, err := tx.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return decodeChunkItem(item)
}

func decodeChunkItem(item *badger.Item) (*core.Chunk, error) {
	var chunk *core.Chunk
	err := item.Value(func(val []byte) error {
		var err error
		chunk, err = storage.UnmarshalChunk(val)
		return err
	})
	return chunk, err
}
