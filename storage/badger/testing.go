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

package badger

import (
	"errors"
	"log/slog"

	"github.com/poiesic/docket/ai"
)

// Stores bundles every badger backed store sharing one Backend.
type Stores struct {
	Backend        *Backend
	Index          *DocumentIndex
	KnowledgeBases *KnowledgeBaseRepository
	Notifications  *NotificationRepository
	Jobs           *JobQueue
	Blobs          *BlobStore
}

// OpenStores creates every store on backend. The returned Stores owns the
// backend: Close releases the sequences and closes it.
func OpenStores(backend *Backend, embedder ai.Embedder, logger *slog.Logger, blobOpts ...BlobOption) (*Stores, error) {
	index, err := NewDocumentIndex(backend, embedder, WithIndexLogger(logger))
	if err != nil {
		return nil, err
	}

	kbs, err := NewKnowledgeBaseRepository(backend)
	if err != nil {
		return nil, err
	}

	notifications, err := NewNotificationRepository(backend)
	if err != nil {
		return nil, err
	}

	jobs, err := NewJobQueue(backend)
	if err != nil {
		notifications.Close()
		return nil, err
	}

	blobs, err := NewBlobStore(backend, blobOpts...)
	if err != nil {
		jobs.Close()
		notifications.Close()
		return nil, err
	}

	return &Stores{
		Backend:        backend,
		Index:          index,
		KnowledgeBases: kbs,
		Notifications:  notifications,
		Jobs:           jobs,
		Blobs:          blobs,
	}, nil
}

// Close releases ID sequences and closes the backend.
func (s *Stores) Close() error {
	return errors.Join(
		s.Index.Close(),
		s.Jobs.Close(),
		s.Notifications.Close(),
		s.Backend.Close(),
	)
}

// NewMemoryStores creates in-memory stores for testing.
// Caller must Close the result when done.
func NewMemoryStores(embedder ai.Embedder) (*Stores, error) {
	backend, err := OpenBackend("", true)
	if err != nil {
		return nil, err
	}

	stores, err := OpenStores(backend, embedder, slog.Default())
	if err != nil {
		backend.Close()
		return nil, err
	}

	return stores, nil
}
