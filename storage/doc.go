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

// Package storage provides the storage abstraction layer for docket.
//
// This package defines repository interfaces that decouple storage implementation
// from the ingestion, deletion and retrieval coordinators. The coordinators receive
// these interfaces through their constructors; nothing in docket reaches for a
// package-level index client.
//
// # Architecture
//
//   - DocumentIndex: namespaced chunk store with semantic search
//   - DocumentLister: optional (namespace, displayName) secondary index
//   - KnowledgeBaseRepository: knowledge base records
//   - NotificationRepository: per-tenant notification records
//   - JobQueue: durable work queue with leases
//   - BlobStore: raw uploaded bytes
//
// # Usage
//
// Open every BadgerDB backed store on one backend:
//
//	backend, err := badger.OpenBackend("/path/to/db", false)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer backend.Close()
//
//	index, err := badger.NewDocumentIndex(backend, embedder)
//
// Use in tests with in-memory storage:
//
//	stores, err := badger.NewMemoryStores(embedder)
//
// # Thread Safety
//
// All implementations must be thread-safe and support concurrent access
// from multiple goroutines.
package storage
