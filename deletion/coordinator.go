package deletion

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/docket/core"
	"github.com/poiesic/docket/events"
	"github.com/poiesic/docket/jobs"
	"github.com/poiesic/docket/metrics"
	"github.com/poiesic/docket/notify"
	"github.com/poiesic/docket/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	DefaultPageSize      = 100
	DefaultMaxEmptyPages = 3
)

var tracer = otel.Tracer("github.com/poiesic/docket/deletion")

// JobQueue accepts durable jobs. *jobs.Dispatcher implements it.
type JobQueue interface {
	Enqueue(ctx context.Context, job *core.Job) (*core.Job, error)
}

// Request identifies the document to delete.
type Request struct {
	Document   core.DocumentID
	TenantID   string
	BlobHandle core.BlobHandle // Optional; handles recorded on the chunks are deleted too
}

// Receipt acknowledges a scheduled deletion.
type Receipt struct {
	Document core.DocumentID
	JobID    core.ID // Zero when no durable queue is configured
}

// Coordinator deletes documents.
type Coordinator struct {
	index    storage.DocumentIndex
	blobs    storage.BlobStore
	notifier notify.Sink

	queue     JobQueue
	pool      *ants.Pool
	locker    *jobs.Locker
	publisher events.Publisher
	metrics   *metrics.Metrics

	pageSize      int
	maxEmptyPages int
	logger        *slog.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator) error

// WithQueue routes deletions through a durable queue instead of the in-process pool.
func WithQueue(q JobQueue) Option {
	return func(c *Coordinator) error {
		c.queue = q
		return nil
	}
}

// WithPoolSize sets the in-process worker pool size used without a queue.
func WithPoolSize(size int) Option {
	return func(c *Coordinator) error {
		if size < 1 {
			size = 1
		}
		if c.pool != nil {
			c.pool.Release()
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		c.pool = pool
		return nil
	}
}

// WithLocker shares a per-document lock, normally the ingestion coordinator's.
func WithLocker(l *jobs.Locker) Option {
	return func(c *Coordinator) error {
		if l != nil {
			c.locker = l
		}
		return nil
	}
}

// WithPublisher sets where "files changed" events go.
func WithPublisher(p events.Publisher) Option {
	return func(c *Coordinator) error {
		if p != nil {
			c.publisher = p
		}
		return nil
	}
}

// WithMetrics records deleted chunks on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) error {
		c.metrics = m
		return nil
	}
}

// WithPageSize sets the listing page size of the scan path.
func WithPageSize(n int) Option {
	return func(c *Coordinator) error {
		if n > 0 {
			c.pageSize = n
		}
		return nil
	}
}

// WithMaxEmptyPages sets how many consecutive pages without a match end a
// scan once something was deleted.
func WithMaxEmptyPages(n int) Option {
	return func(c *Coordinator) error {
		if n > 0 {
			c.maxEmptyPages = n
		}
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) error {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger
		return nil
	}
}

// NewCoordinator creates a deletion coordinator.
func NewCoordinator(index storage.DocumentIndex, blobs storage.BlobStore, notifier notify.Sink, opts ...Option) (*Coordinator, error) {
	if index == nil {
		return nil, ErrIndexRequired
	}
	if blobs == nil {
		return nil, ErrBlobStoreRequired
	}
	if notifier == nil {
		return nil, ErrNotifierRequired
	}

	c := &Coordinator{
		index:         index,
		blobs:         blobs,
		notifier:      notifier,
		locker:        jobs.NewLocker(),
		publisher:     events.Nop{},
		pageSize:      DefaultPageSize,
		maxEmptyPages: DefaultMaxEmptyPages,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			c.Release()
			return nil, err
		}
	}

	if c.queue == nil && c.pool == nil {
		pool, err := ants.NewPool(max(runtime.NumCPU()/2, 1))
		if err != nil {
			return nil, err
		}
		c.pool = pool
	}
	c.logger = c.logger.With("component", "deletion")
	return c, nil
}

// Release releases the in-process worker pool.
func (c *Coordinator) Release() {
	if c.pool != nil {
		c.pool.Release()
	}
}

// Delete schedules the deletion of a document.
func (c *Coordinator) Delete(ctx context.Context, req Request) (*Receipt, error) {
	if err := core.ValidateDocumentID(req.Document); err != nil {
		return nil, err
	}
	if req.TenantID == "" {
		return nil, core.ErrEmptyTenant
	}
	job := jobFor(req)
	receipt := &Receipt{Document: req.Document}

	if c.queue != nil {
		queued, err := c.queue.Enqueue(ctx, job)
		if err != nil {
			return nil, err
		}
		receipt.JobID = queued.ID
		return receipt, nil
	}

	err := c.pool.Submit(func() {
		if _, err := c.run(context.Background(), job); err != nil {
			c.logger.Error("error deleting document", "document", job.Document.String(), "err", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("schedule deletion of %s: %w", req.Document, err)
	}
	return receipt, nil
}

// DeleteNow deletes a document synchronously and returns how many index
// entries were removed.
func (c *Coordinator) DeleteNow(ctx context.Context, req Request) (int, error) {
	if err := core.ValidateDocumentID(req.Document); err != nil {
		return 0, err
	}
	if req.TenantID == "" {
		return 0, core.ErrEmptyTenant
	}
	return c.run(ctx, jobFor(req))
}

// HandleJob runs a queued delete job. It is registered with the dispatcher.
func (c *Coordinator) HandleJob(ctx context.Context, job *core.Job) error {
	_, err := c.run(ctx, job)
	return err
}

// HandleAbandoned reports a queued deletion that will not be delivered again.
// It is registered with the dispatcher.
func (c *Coordinator) HandleAbandoned(ctx context.Context, job *core.Job, cause error) error {
	return c.fail(ctx, job, cause)
}

func jobFor(req Request) *core.Job {
	return &core.Job{
		Kind:       core.JobDelete,
		Document:   req.Document,
		TenantID:   req.TenantID,
		BlobHandle: req.BlobHandle,
	}
}

func (c *Coordinator) run(ctx context.Context, job *core.Job) (int, error) {
	doc := job.Document
	ctx, span := tracer.Start(ctx, "deletion.run")
	defer span.End()
	span.SetAttributes(attribute.String("docket.document", doc.String()))

	unlock, err := c.locker.Lock(ctx, doc.String())
	if err != nil {
		return 0, err
	}
	defer unlock()

	logger := c.logger.With("document", doc.String())

	exists, err := c.index.GetNamespace(ctx, doc.Namespace)
	if err != nil {
		return 0, c.fail(ctx, job, err)
	}
	if !exists {
		logger.Debug("namespace not found, nothing to delete")
		return 0, nil
	}

	handles := make(map[core.BlobHandle]struct{})
	if job.BlobHandle != "" {
		handles[job.BlobHandle] = struct{}{}
	}

	var deleted int
	if lister, ok := c.index.(storage.DocumentLister); ok {
		deleted, err = c.deleteIndexed(ctx, lister, doc, handles)
	} else {
		deleted, err = c.deleteScanned(ctx, doc, handles)
	}
	c.metrics.ChunksRemoved(deleted)
	if err != nil {
		if ctx.Err() != nil {
			return deleted, ctx.Err()
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return deleted, c.fail(ctx, job, err)
	}

	if deleted == 0 {
		logger.Debug("no entries found, nothing to delete")
		return 0, nil
	}

	for handle := range handles {
		if err := c.blobs.Delete(ctx, handle); err != nil {
			logger.Warn("error deleting blob", "blob", handle, "err", fmt.Errorf("%w: %w", core.ErrStorageCleanupFailed, err))
		}
	}

	if _, err := c.notifier.Create(ctx, job.TenantID, core.NotificationFileReady, "Deletion complete",
		fmt.Sprintf("%q was successfully removed from your knowledge base", doc.DisplayName), doc.DisplayName); err != nil {
		logger.Warn("error creating notification", "err", err)
	}
	c.publish(ctx, job)

	logger.Info("document deleted", "entries", deleted)
	return deleted, nil
}

// deleteIndexed deletes exactly the entries the document index returns.
func (c *Coordinator) deleteIndexed(ctx context.Context, lister storage.DocumentLister, doc core.DocumentID, handles map[core.BlobHandle]struct{}) (int, error) {
	entries, err := lister.DocumentEntries(ctx, doc)
	if err != nil {
		return 0, err
	}
	deleted := 0
	for _, e := range entries {
		if err := c.index.Delete(ctx, e.ID); err != nil {
			return deleted, fmt.Errorf("delete %s: %w", e.Key, err)
		}
		deleted++
		if e.Metadata.BlobHandle != "" {
			handles[e.Metadata.BlobHandle] = struct{}{}
		}
	}
	return deleted, nil
}

// deleteScanned pages through the namespace deleting exact display name
// matches. Once every chunk the document claims to have was deleted,
// maxEmptyPages consecutive pages without a match end the scan. Listings
// are in entry ID order, which scatters a document's chunks across pages.
func (c *Coordinator) deleteScanned(ctx context.Context, doc core.DocumentID, handles map[core.BlobHandle]struct{}) (int, error) {
	deleted := 0
	chunks := 0
	expected := 0
	empty := 0
	cursor := ""
	for {
		page, err := c.index.List(ctx, doc.Namespace, cursor, c.pageSize)
		if err != nil {
			return deleted, err
		}

		matched := 0
		for _, e := range page.Chunks {
			if e.Metadata.DisplayName != doc.DisplayName {
				continue
			}
			if err := c.index.Delete(ctx, e.ID); err != nil {
				return deleted, fmt.Errorf("delete %s: %w", e.Key, err)
			}
			matched++
			if !e.Metadata.Placeholder {
				chunks++
				expected = max(expected, e.Metadata.TotalChunks)
			}
			if e.Metadata.BlobHandle != "" {
				handles[e.Metadata.BlobHandle] = struct{}{}
			}
		}
		deleted += matched

		if matched == 0 && deleted > 0 && chunks >= expected {
			if empty++; empty >= c.maxEmptyPages {
				return deleted, nil
			}
		} else {
			empty = 0
		}
		if page.NextCursor == "" {
			return deleted, nil
		}
		cursor = page.NextCursor
	}
}

func (c *Coordinator) fail(ctx context.Context, job *core.Job, cause error) error {
	name := job.Document.DisplayName
	c.logger.Error("error deleting document", "document", job.Document.String(), "err", cause)
	if _, err := c.notifier.Create(ctx, job.TenantID, core.NotificationFileFailed, "File deletion failed",
		fmt.Sprintf("Failed to delete %q: %v", name, cause), name); err != nil {
		c.logger.Warn("error creating notification", "document", job.Document.String(), "err", err)
	}
	return cause
}

func (c *Coordinator) publish(ctx context.Context, job *core.Job) {
	err := c.publisher.Publish(ctx, events.Event{
		Kind:        events.FilesChanged,
		TenantID:    job.TenantID,
		Namespace:   job.Document.Namespace,
		DisplayName: job.Document.DisplayName,
		At:          time.Now(),
	})
	if err != nil {
		c.logger.Warn("error publishing event", "document", job.Document.String(), "err", err)
	}
}
