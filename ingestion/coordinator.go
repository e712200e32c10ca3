package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/docket/chunking"
	"github.com/poiesic/docket/core"
	"github.com/poiesic/docket/events"
	"github.com/poiesic/docket/extract"
	"github.com/poiesic/docket/jobs"
	"github.com/poiesic/docket/metrics"
	"github.com/poiesic/docket/notify"
	"github.com/poiesic/docket/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultWriteConcurrency = 4
	DefaultWriteAttempts    = 3
	DefaultWriteBaseDelay   = 200 * time.Millisecond
	// DefaultScanPageSize is the listing page size used to find a document's
	// entries in indexes without a document index.
	DefaultScanPageSize = 100
)

var tracer = otel.Tracer("github.com/poiesic/docket/ingestion")

// NamespaceResolver maps a tenant and optional knowledge base to a namespace.
type NamespaceResolver interface {
	Resolve(ctx context.Context, tenantID, kbID string) (string, error)
}

// JobQueue accepts durable jobs. *jobs.Dispatcher implements it.
type JobQueue interface {
	Enqueue(ctx context.Context, job *core.Job) (*core.Job, error)
}

// Request describes one document submission.
type Request struct {
	Data            []byte
	Filename        string
	DisplayName     string // Defaults to Filename
	MimeType        string // Guessed from Filename and Data when empty
	TenantID        string
	KnowledgeBaseID string
	Category        string
	SourceType      core.SourceType // Defaults to core.SourceUploaded
}

// Receipt acknowledges an accepted submission.
type Receipt struct {
	Document   core.DocumentID
	Status     core.Status
	BlobHandle core.BlobHandle
	URL        string
	JobID      core.ID // Zero when no durable queue is configured
}

// Outcome reports a finished ingestion job.
type Outcome struct {
	Document core.DocumentID
	Status   core.Status
	Chunks   int // Chunks the text was split into
	Created  int // Chunks actually written; the rest were unchanged
	Pruned   int // Stale entries removed
}

// Coordinator orchestrates document ingestion.
type Coordinator struct {
	index     storage.DocumentIndex
	blobs     storage.BlobStore
	resolver  NamespaceResolver
	extractor extract.Extractor
	notifier  notify.Sink

	chunker   *chunking.Chunker
	queue     JobQueue
	pool      *ants.Pool
	locker    *jobs.Locker
	publisher events.Publisher
	metrics   *metrics.Metrics

	writeConcurrency int
	writeAttempts    int
	writeBaseDelay   time.Duration
	scanPageSize     int
	logger           *slog.Logger

	proc processor
}

// Option configures a Coordinator.
type Option func(*Coordinator) error

// WithChunker sets the chunker. Default is chunking.New() with default sizes.
func WithChunker(c *chunking.Chunker) Option {
	return func(co *Coordinator) error {
		if c != nil {
			co.chunker = c
		}
		return nil
	}
}

// WithQueue routes jobs through a durable queue instead of the in-process pool.
func WithQueue(q JobQueue) Option {
	return func(co *Coordinator) error {
		co.queue = q
		return nil
	}
}

// WithPoolSize sets the in-process worker pool size used without a queue.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(co *Coordinator) error {
		if size < 1 {
			size = 1
		}
		if co.pool != nil {
			co.pool.Release()
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		co.pool = pool
		return nil
	}
}

// WithLocker shares a per-document lock with other coordinators.
func WithLocker(l *jobs.Locker) Option {
	return func(co *Coordinator) error {
		if l != nil {
			co.locker = l
		}
		return nil
	}
}

// WithPublisher sets where "files changed" events go. Default discards them.
func WithPublisher(p events.Publisher) Option {
	return func(co *Coordinator) error {
		if p != nil {
			co.publisher = p
		}
		return nil
	}
}

// WithMetrics records chunk writes on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(co *Coordinator) error {
		co.metrics = m
		return nil
	}
}

// WithWriteConcurrency bounds parallel chunk writes within one job.
func WithWriteConcurrency(n int) Option {
	return func(co *Coordinator) error {
		if n > 0 {
			co.writeConcurrency = n
		}
		return nil
	}
}

// WithWriteRetry sets how often a failed chunk write is attempted and the
// initial backoff between attempts.
func WithWriteRetry(attempts int, baseDelay time.Duration) Option {
	return func(co *Coordinator) error {
		if attempts > 0 {
			co.writeAttempts = attempts
		}
		if baseDelay > 0 {
			co.writeBaseDelay = baseDelay
		}
		return nil
	}
}

// WithScanPageSize sets the listing page size for indexes without a document index.
func WithScanPageSize(n int) Option {
	return func(co *Coordinator) error {
		if n > 0 {
			co.scanPageSize = n
		}
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(co *Coordinator) error {
		if logger == nil {
			logger = slog.Default()
		}
		co.logger = logger
		return nil
	}
}

// NewCoordinator creates an ingestion coordinator.
func NewCoordinator(
	index storage.DocumentIndex,
	blobs storage.BlobStore,
	resolver NamespaceResolver,
	extractor extract.Extractor,
	notifier notify.Sink,
	opts ...Option,
) (*Coordinator, error) {
	if index == nil {
		return nil, ErrIndexRequired
	}
	if blobs == nil {
		return nil, ErrBlobStoreRequired
	}
	if resolver == nil {
		return nil, ErrResolverRequired
	}
	if extractor == nil {
		return nil, ErrExtractorRequired
	}
	if notifier == nil {
		return nil, ErrNotifierRequired
	}

	chunker, err := chunking.New()
	if err != nil {
		return nil, err
	}

	co := &Coordinator{
		index:            index,
		blobs:            blobs,
		resolver:         resolver,
		extractor:        extractor,
		notifier:         notifier,
		chunker:          chunker,
		locker:           jobs.NewLocker(),
		publisher:        events.Nop{},
		writeConcurrency: DefaultWriteConcurrency,
		writeAttempts:    DefaultWriteAttempts,
		writeBaseDelay:   DefaultWriteBaseDelay,
		scanPageSize:     DefaultScanPageSize,
		logger:           slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(co); err != nil {
			co.Release()
			return nil, err
		}
	}

	if co.queue == nil && co.pool == nil {
		pool, err := ants.NewPool(max(runtime.NumCPU()/2, 1))
		if err != nil {
			return nil, err
		}
		co.pool = pool
	}

	co.logger = co.logger.With("component", "ingestion")
	co.proc = &jobProcessor{co: co}

	return co, nil
}

// Release releases the in-process worker pool.
// The coordinator should not be used after calling Release.
func (co *Coordinator) Release() {
	if co.pool != nil {
		co.pool.Release()
	}
}

// Ingest stores the document, writes a pending placeholder and schedules
// processing. It returns as soon as the job is scheduled.
func (co *Coordinator) Ingest(ctx context.Context, req Request) (*Receipt, error) {
	job, receipt, err := co.accept(ctx, req)
	if err != nil {
		return nil, err
	}

	if err := co.schedule(ctx, job, receipt); err != nil {
		return nil, err
	}
	return receipt, nil
}

// IngestNow runs a submission to completion and reports its outcome.
// Processing failures are returned along with the outcome.
func (co *Coordinator) IngestNow(ctx context.Context, req Request) (*Outcome, error) {
	job, _, err := co.accept(ctx, req)
	if err != nil {
		return nil, err
	}
	return co.proc.process(ctx, job)
}

// HandleJob runs a queued ingest job. It is registered with the dispatcher.
func (co *Coordinator) HandleJob(ctx context.Context, job *core.Job) error {
	_, err := co.proc.process(ctx, job)
	return err
}

// Retry re-runs ingestion for a document in error, reusing its stored bytes.
func (co *Coordinator) Retry(ctx context.Context, tenantID, kbID, displayName string) (*Receipt, error) {
	job, receipt, err := co.retryJob(ctx, tenantID, kbID, displayName)
	if err != nil {
		return nil, err
	}
	if err := co.schedule(ctx, job, receipt); err != nil {
		return nil, err
	}
	return receipt, nil
}

// RetryNow is Retry run to completion.
func (co *Coordinator) RetryNow(ctx context.Context, tenantID, kbID, displayName string) (*Outcome, error) {
	job, _, err := co.retryJob(ctx, tenantID, kbID, displayName)
	if err != nil {
		return nil, err
	}
	return co.proc.process(ctx, job)
}

// HandleAbandoned settles a queued ingest job that will not be delivered
// again. A document still pending is marked in error so it can be retried.
// It is registered with the dispatcher.
func (co *Coordinator) HandleAbandoned(ctx context.Context, job *core.Job, cause error) error {
	doc := job.Document
	unlock, err := co.locker.Lock(ctx, doc.String())
	if err != nil {
		return err
	}
	defer unlock()

	ph, err := co.index.Get(ctx, doc.Namespace, core.PlaceholderKey(doc.DisplayName))
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if ph.Status != core.StatusPending {
		return nil
	}
	return co.markFailed(ctx, job, cause)
}

// markFailed records a job that never ran to completion as failed.
func (co *Coordinator) markFailed(ctx context.Context, job *core.Job, cause error) error {
	p := &jobProcessor{co: co}
	return p.fail(ctx, job, &Outcome{Document: job.Document}, cause)
}

// accept performs the synchronous part of ingestion: validation, namespace
// resolution, blob storage and the pending placeholder.
func (co *Coordinator) accept(ctx context.Context, req Request) (*core.Job, *Receipt, error) {
	ctx, span := tracer.Start(ctx, "ingestion.accept")
	defer span.End()

	if err := validateRequest(&req); err != nil {
		return nil, nil, err
	}

	// Namespace failures abort before any bytes are stored.
	namespace, err := co.resolver.Resolve(ctx, req.TenantID, req.KnowledgeBaseID)
	if err != nil {
		return nil, nil, err
	}
	doc := core.DocumentID{Namespace: namespace, DisplayName: req.DisplayName}
	span.SetAttributes(attribute.String("docket.namespace", namespace), attribute.String("docket.document", doc.DisplayName))

	handle, err := co.blobs.Store(ctx, req.Filename, req.MimeType, req.Data)
	if err != nil {
		return nil, nil, fmt.Errorf("store %s: %w", req.Filename, err)
	}

	job := &core.Job{
		Kind:            core.JobIngest,
		Document:        doc,
		TenantID:        req.TenantID,
		KnowledgeBaseID: req.KnowledgeBaseID,
		BlobHandle:      handle,
		Filename:        req.Filename,
		MimeType:        req.MimeType,
		Category:        req.Category,
		SourceType:      req.SourceType,
	}

	if _, _, err := co.index.Add(ctx, placeholderFor(job, core.StatusPending, "")); err != nil {
		return nil, nil, fmt.Errorf("write placeholder for %s: %w", doc, err)
	}

	receipt := &Receipt{Document: doc, Status: core.StatusPending, BlobHandle: handle}
	if url, err := co.blobs.URL(ctx, handle); err == nil {
		receipt.URL = url
	}

	co.logger.Info("document accepted", "document", doc.String(), "file", req.Filename,
		"mimeType", req.MimeType, "size", len(req.Data), "source", req.SourceType)
	return job, receipt, nil
}

// retryJob rebuilds the job of a failed document from its error placeholder.
func (co *Coordinator) retryJob(ctx context.Context, tenantID, kbID, displayName string) (*core.Job, *Receipt, error) {
	namespace, err := co.resolver.Resolve(ctx, tenantID, kbID)
	if err != nil {
		return nil, nil, err
	}
	doc := core.DocumentID{Namespace: namespace, DisplayName: displayName}

	ph, err := co.index.Get(ctx, namespace, core.PlaceholderKey(displayName))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil, fmt.Errorf("%w: no failed upload for %s", core.ErrNotFound, doc)
	}
	if err != nil {
		return nil, nil, err
	}
	if ph.Status != core.StatusError {
		return nil, nil, fmt.Errorf("%w: %s is %s", ErrNotRetryable, doc, ph.Status)
	}
	if ph.Metadata.TenantID != tenantID {
		return nil, nil, fmt.Errorf("%w: %s", core.ErrPermissionDenied, doc)
	}

	job := &core.Job{
		Kind:            core.JobIngest,
		Document:        doc,
		TenantID:        tenantID,
		KnowledgeBaseID: ph.Metadata.KnowledgeBaseID,
		BlobHandle:      ph.Metadata.BlobHandle,
		Filename:        ph.Metadata.OriginalFilename,
		MimeType:        ph.Metadata.MimeType,
		Category:        ph.Metadata.Category,
		SourceType:      ph.Metadata.SourceType,
	}

	if err := co.index.SetStatus(ctx, namespace, ph.Key, core.StatusPending, ""); err != nil {
		return nil, nil, err
	}

	co.logger.Info("retrying document", "document", doc.String())
	return job, &Receipt{Document: doc, Status: core.StatusPending, BlobHandle: job.BlobHandle}, nil
}

// schedule hands the job to the durable queue or the worker pool.
func (co *Coordinator) schedule(ctx context.Context, job *core.Job, receipt *Receipt) error {
	if co.queue != nil {
		queued, err := co.queue.Enqueue(ctx, job)
		if err != nil {
			_ = co.markFailed(ctx, job, err)
			return err
		}
		receipt.JobID = queued.ID
		return nil
	}

	// Without a queue the job runs detached from the caller's request.
	spanCtx := trace.SpanContextFromContext(ctx)
	err := co.pool.Submit(func() {
		bg := trace.ContextWithSpanContext(context.Background(), spanCtx)
		if _, err := co.proc.process(bg, job); err != nil {
			co.logger.Error("error processing document", "document", job.Document.String(), "err", err)
		}
	})
	if err != nil {
		_ = co.markFailed(ctx, job, err)
		return fmt.Errorf("schedule %s: %w", job.Document, err)
	}
	return nil
}

func validateRequest(req *Request) error {
	if req.TenantID == "" {
		return fmt.Errorf("%w: %w", core.ErrInvalidDocument, core.ErrEmptyTenant)
	}
	if len(req.Data) == 0 {
		return fmt.Errorf("%w: %w", core.ErrInvalidDocument, core.ErrEmptyContent)
	}

	req.DisplayName = core.TrimDisplayName(req.DisplayName, req.Filename)
	if req.DisplayName == "" {
		return fmt.Errorf("%w: %w", core.ErrInvalidDocument, core.ErrEmptyDisplayName)
	}
	if req.Filename == "" {
		req.Filename = req.DisplayName
	}
	if req.MimeType == "" || req.MimeType == extract.OctetStream {
		req.MimeType = extract.GuessMimeType(req.Filename, req.Data)
	}
	if req.SourceType == "" {
		req.SourceType = core.SourceUploaded
	}
	if err := core.ValidateSourceType(req.SourceType); err != nil {
		return fmt.Errorf("%w: %w", core.ErrInvalidDocument, err)
	}
	return nil
}

// metadataFor builds the chunk metadata shared by every entry of a job.
func metadataFor(job *core.Job) core.ChunkMetadata {
	return core.ChunkMetadata{
		DisplayName:      job.Document.DisplayName,
		OriginalFilename: job.Filename,
		MimeType:         job.MimeType,
		Category:         job.Category,
		KnowledgeBaseID:  job.KnowledgeBaseID,
		SourceType:       job.SourceType,
		TenantID:         job.TenantID,
		BlobHandle:       job.BlobHandle,
	}
}

// placeholderFor builds the transient entry marking an in-flight or failed job.
func placeholderFor(job *core.Job, status core.Status, reason string) *core.Chunk {
	meta := metadataFor(job)
	meta.Placeholder = true
	return &core.Chunk{
		Namespace: job.Document.Namespace,
		Key:       core.PlaceholderKey(job.Document.DisplayName),
		Status:    status,
		Error:     reason,
		Metadata:  meta,
	}
}
