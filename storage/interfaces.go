package storage

import (
	"context"
	"time"

	"github.com/poiesic/docket/core"
)

// DocumentIndex stores chunks in namespaces and answers semantic queries over them.
// Implementations must be thread-safe and support concurrent access.
type DocumentIndex interface {
	// Add writes a chunk under (chunk.Namespace, chunk.Key).
	// If an entry with the same key already carries chunk.ContentHash the write is
	// skipped and created is false. A different hash replaces the entry.
	// The chunk's ID, Vector and timestamps are populated on return.
	Add(ctx context.Context, chunk *core.Chunk) (id core.ID, created bool, err error)

	// Search returns up to limit ready chunks of namespace ranked by relevance to query.
	Search(ctx context.Context, namespace, query string, limit int) ([]*core.SearchHit, error)

	// List returns one page of the namespace's entries in key order.
	// Pass an empty cursor for the first page.
	List(ctx context.Context, namespace, cursor string, limit int) (*core.Page, error)

	// Delete removes an entry by ID. Deleting a missing entry is not an error.
	Delete(ctx context.Context, id core.ID) error

	// GetNamespace reports whether namespace has ever been written to.
	GetNamespace(ctx context.Context, namespace string) (bool, error)

	// Get retrieves a single entry. Returns ErrNotFound if it doesn't exist.
	Get(ctx context.Context, namespace, key string) (*core.Chunk, error)

	// SetStatus updates the status and failure reason of an existing entry.
	SetStatus(ctx context.Context, namespace, key string, status core.Status, reason string) error

	// DropNamespace deletes every entry in namespace and forgets the namespace.
	DropNamespace(ctx context.Context, namespace string) (int, error)

	// Close releases resources held by the index.
	Close() error
}

// DocumentLister is implemented by indexes that maintain a
// (namespace, displayName) secondary index.
type DocumentLister interface {
	// DocumentEntries returns every entry belonging to doc, placeholders included.
	DocumentEntries(ctx context.Context, doc core.DocumentID) ([]*core.Chunk, error)
}

// Namespaces is implemented by indexes that can enumerate their namespaces.
type Namespaces interface {
	ListNamespaces(ctx context.Context) ([]string, error)
}

// KnowledgeBaseRepository provides operations for managing knowledge bases.
type KnowledgeBaseRepository interface {
	// AddKnowledgeBase stores a new knowledge base.
	// Sets CreatedAt/UpdatedAt. Returns ErrDuplicateKey if the ID exists.
	AddKnowledgeBase(ctx context.Context, kb *core.KnowledgeBase) (*core.KnowledgeBase, error)

	// UpdateKnowledgeBase replaces an existing knowledge base.
	// Returns ErrNotFound if it doesn't exist.
	UpdateKnowledgeBase(ctx context.Context, kb *core.KnowledgeBase) (*core.KnowledgeBase, error)

	// GetKnowledgeBase retrieves a knowledge base by ID.
	// Returns ErrNotFound if it doesn't exist.
	GetKnowledgeBase(ctx context.Context, id string) (*core.KnowledgeBase, error)

	// GetKnowledgeBasesByTenant lists a tenant's knowledge bases ordered by ID.
	GetKnowledgeBasesByTenant(ctx context.Context, tenantID string) ([]*core.KnowledgeBase, error)

	// DeleteKnowledgeBase removes a knowledge base. Returns ErrNotFound if it doesn't exist.
	DeleteKnowledgeBase(ctx context.Context, id string) error
}

// NotificationRepository provides operations for managing notifications.
type NotificationRepository interface {
	// AddNotification stores a notification, assigning ID and CreatedAt.
	AddNotification(ctx context.Context, n *core.Notification) (*core.Notification, error)

	// GetNotification retrieves a notification by ID.
	// Returns ErrNotFound if it doesn't exist.
	GetNotification(ctx context.Context, id core.ID) (*core.Notification, error)

	// GetNotificationsByTenant returns a tenant's notifications, newest first.
	// A limit <= 0 returns all of them.
	GetNotificationsByTenant(ctx context.Context, tenantID string, limit int) ([]*core.Notification, error)

	// MarkRead sets Read on the given notifications. Missing IDs are ignored.
	MarkRead(ctx context.Context, ids ...core.ID) error

	// DeleteNotifications removes notifications by ID. Missing IDs are ignored.
	DeleteNotifications(ctx context.Context, ids ...core.ID) error
}

// JobQueue is a durable queue of processing jobs with lease based delivery.
type JobQueue interface {
	// Enqueue persists a job and assigns its ID and EnqueuedAt.
	Enqueue(ctx context.Context, job *core.Job) (*core.Job, error)

	// Claim leases the oldest job whose lease is free or expired.
	// Returns nil, nil when no job is available.
	Claim(ctx context.Context, lease time.Duration) (*core.Job, error)

	// Complete removes a job from the queue.
	Complete(ctx context.Context, id core.ID) error

	// Pending returns the number of jobs in the queue, leased or not.
	Pending(ctx context.Context) (int, error)
}

// BlobStore holds the raw bytes of uploaded documents.
type BlobStore interface {
	// Store saves data and returns a handle to it.
	Store(ctx context.Context, filename, mimeType string, data []byte) (core.BlobHandle, error)

	// Get returns the bytes behind handle. Returns ErrNotFound if absent.
	Get(ctx context.Context, handle core.BlobHandle) ([]byte, error)

	// Delete removes the blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, handle core.BlobHandle) error

	// URL returns a location the blob can be fetched from.
	URL(ctx context.Context, handle core.BlobHandle) (string, error)
}

// VectorUpdater is implemented by indexes whose stored vectors can be
// rewritten in place, for example after an embedding model change.
type VectorUpdater interface {
	// UpdateVectors replaces the vectors of existing entries, matched by
	// chunk.Namespace and chunk.ID. Entries that no longer exist are skipped.
	UpdateVectors(ctx context.Context, chunks ...*core.Chunk) error
}

// BlobSizer is implemented by blob stores that can report a blob's size
// without reading it.
type BlobSizer interface {
	Size(ctx context.Context, handle core.BlobHandle) (int64, error)
}

// BlobDescriber is implemented by blob stores that keep the filename and
// MIME type a blob was stored with.
type BlobDescriber interface {
	Describe(ctx context.Context, handle core.BlobHandle) (filename, mimeType string, err error)
}
