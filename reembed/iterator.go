// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package reembed

import (
	"context"

	"github.com/poiesic/docket/core"
	"github.com/poiesic/docket/storage"
)

const (
	// DefaultBatchSize is the default number of chunks to fetch in each batch
	DefaultBatchSize = 100
)

// Index is the part of a document index re-embedding needs.
type Index interface {
	storage.Namespaces
	storage.VectorUpdater
	List(ctx context.Context, namespace, cursor string, limit int) (*core.Page, error)
}

// ChunkIterator iterates over every embeddable chunk of an index in batches.
// Placeholders carry no text and are skipped.
type ChunkIterator struct {
	index     Index
	batchSize int
}

// NewChunkIterator creates a new chunk iterator.
// batchSize: number of chunks to fetch in each batch (must be > 0)
func NewChunkIterator(index Index, batchSize int) *ChunkIterator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	return &ChunkIterator{
		index:     index,
		batchSize: batchSize,
	}
}

// ForEach iterates over all chunks, calling fn for each non-empty batch.
// Iteration stops on first error from fn or when all chunks are processed.
// Context cancellation is checked between batches.
func (it *ChunkIterator) ForEach(ctx context.Context, fn func([]*core.Chunk) error) error {
	namespaces, err := it.index.ListNamespaces(ctx)
	if err != nil {
		return err
	}

	for _, ns := range namespaces {
		cursor := ""
		for {
			if err := ctx.Err(); err != nil {
				return err
			}

			page, err := it.index.List(ctx, ns, cursor, it.batchSize)
			if err != nil {
				return err
			}

			batch := make([]*core.Chunk, 0, len(page.Chunks))
			for _, c := range page.Chunks {
				if c.Metadata.Placeholder || c.Text == "" {
					continue
				}
				batch = append(batch, c)
			}
			if len(batch) > 0 {
				if err := fn(batch); err != nil {
					return err
				}
			}

			if page.NextCursor == "" {
				break
			}
			cursor = page.NextCursor
		}
	}

	return nil
}

// Count returns how many chunks ForEach would visit.
func (it *ChunkIterator) Count(ctx context.Context) (int, error) {
	total := 0
	err := it.ForEach(ctx, func(chunks []*core.Chunk) error {
		total += len(chunks)
		return nil
	})
	return total, err
}
