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

// Package docket wires storage, AI services and the ingestion, deletion and
// retrieval components into one System.
package docket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/poiesic/docket/ai"
	"github.com/poiesic/docket/ai/openai"
	"github.com/poiesic/docket/catalog"
	"github.com/poiesic/docket/chunking"
	"github.com/poiesic/docket/config"
	"github.com/poiesic/docket/core"
	"github.com/poiesic/docket/deletion"
	"github.com/poiesic/docket/events"
	"github.com/poiesic/docket/extract"
	"github.com/poiesic/docket/ingestion"
	"github.com/poiesic/docket/jobs"
	"github.com/poiesic/docket/metrics"
	"github.com/poiesic/docket/namespace"
	"github.com/poiesic/docket/notify"
	"github.com/poiesic/docket/retrieval"
	"github.com/poiesic/docket/scrape"
	"github.com/poiesic/docket/storage"
	"github.com/poiesic/docket/storage/badger"
	"github.com/poiesic/docket/storage/s3"
	"github.com/redis/go-redis/v9"
)

// ErrConfigRequired is returned when Open is called without a config.
var ErrConfigRequired = errors.New("config required")

type System struct {
	stores     *badger.Stores
	blobs      storage.BlobStore
	provider   ai.AIProvider
	redis      *redis.Client
	metrics    *metrics.Metrics
	bus        *events.Bus
	resolver   *namespace.Resolver
	notifier   *notify.Service
	dispatcher *jobs.Dispatcher
	ingestion  *ingestion.Coordinator
	deletion   *deletion.Coordinator
	catalog    *catalog.Catalog
	gateway    *retrieval.Gateway
	scraper    *scrape.Scraper
	logger     *slog.Logger
}

// Option configures Open.
type Option func(*systemOptions)

type systemOptions struct {
	provider ai.AIProvider
	blobs    storage.BlobStore
	inMemory bool
	logger   *slog.Logger
}

// WithProvider replaces the OpenAI compatible provider built from config.
func WithProvider(p ai.AIProvider) Option {
	return func(o *systemOptions) {
		o.provider = p
	}
}

// WithBlobStore replaces the blob store selected by config.
func WithBlobStore(b storage.BlobStore) Option {
	return func(o *systemOptions) {
		o.blobs = b
	}
}

// WithInMemory keeps all badger data in memory. DataDir is ignored.
func WithInMemory() Option {
	return func(o *systemOptions) {
		o.inMemory = true
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *systemOptions) {
		o.logger = logger
	}
}

// Open creates every component described by cfg. The caller must Close the
// returned System.
func Open(ctx context.Context, cfg *config.Config, opts ...Option) (*System, error) {
	if cfg == nil {
		return nil, ErrConfigRequired
	}

	options := &systemOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}
	logger := options.logger

	sys := &System{logger: logger, metrics: metrics.New(), bus: events.NewBus(logger)}
	if err := sys.open(ctx, cfg, options); err != nil {
		sys.Close()
		return nil, err
	}
	return sys, nil
}

func (sys *System) open(ctx context.Context, cfg *config.Config, options *systemOptions) error {
	logger := sys.logger

	backend, err := badger.OpenBackend(cfg.DataDir, options.inMemory, badger.WithBackendLogger(logger))
	if err != nil {
		return err
	}

	// Create AI provider with configured settings
	provider := options.provider
	if provider == nil {
		provider, err = openai.NewProvider(cfg.AIConfig())
		if err != nil {
			backend.Close()
			return err
		}
	}
	sys.provider = provider

	sys.stores, err = badger.OpenStores(backend, provider.Embedder(), logger,
		badger.WithBaseURL(cfg.Blobs.BaseURL),
		badger.WithMaxBlobSize(cfg.Blobs.MaxSize),
	)
	if err != nil {
		backend.Close()
		return err
	}

	sys.blobs, err = openBlobs(ctx, cfg, options, sys.stores, logger)
	if err != nil {
		return err
	}

	var publisher events.Publisher = sys.bus
	if cfg.Events.RedisURL != "" {
		sys.redis, err = events.NewRedisClient(ctx, cfg.Events.RedisURL)
		if err != nil {
			return err
		}
		publisher = events.Multi{sys.bus, events.NewRedisPublisher(sys.redis, cfg.Events.ChannelPrefix)}
	}

	sys.resolver, err = namespace.NewResolver(sys.stores.KnowledgeBases, sys.stores.Index, namespace.WithLogger(logger))
	if err != nil {
		return err
	}

	sys.notifier, err = notify.NewService(sys.stores.Notifications, notify.WithLogger(logger))
	if err != nil {
		return err
	}

	chunker, err := chunking.New(
		chunking.WithTargetSize(cfg.Chunking.TargetSize),
		chunking.WithOverlap(cfg.Chunking.Overlap),
	)
	if err != nil {
		return err
	}

	router, err := extract.NewRouter(sys.blobs,
		extract.WithImageDescriber(provider.ImageDescriber()),
		extract.WithImageRateLimit(cfg.Extract.ImageRate, cfg.Extract.ImageBurst),
		extract.WithMaxBytes(cfg.Extract.MaxBytes),
		extract.WithTimeout(cfg.Extract.Timeout),
		extract.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	sys.dispatcher, err = jobs.NewDispatcher(sys.stores.Jobs,
		jobs.WithPoolSize(cfg.Jobs.PoolSize),
		jobs.WithLease(cfg.Jobs.Lease),
		jobs.WithPollInterval(cfg.Jobs.PollInterval),
		jobs.WithMaxAttempts(cfg.Jobs.MaxAttempts),
		jobs.WithMetrics(sys.metrics),
		jobs.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	locker := jobs.NewLocker()

	sys.ingestion, err = ingestion.NewCoordinator(sys.stores.Index, sys.blobs, sys.resolver, router, sys.notifier,
		ingestion.WithChunker(chunker),
		ingestion.WithQueue(sys.dispatcher),
		ingestion.WithLocker(locker),
		ingestion.WithPublisher(publisher),
		ingestion.WithMetrics(sys.metrics),
		ingestion.WithWriteConcurrency(cfg.Ingestion.WriteConcurrency),
		ingestion.WithWriteRetry(cfg.Ingestion.WriteAttempts, cfg.Ingestion.WriteBaseDelay),
		ingestion.WithScanPageSize(cfg.Deletion.PageSize),
		ingestion.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	sys.deletion, err = deletion.NewCoordinator(sys.stores.Index, sys.blobs, sys.notifier,
		deletion.WithQueue(sys.dispatcher),
		deletion.WithLocker(locker),
		deletion.WithPublisher(publisher),
		deletion.WithMetrics(sys.metrics),
		deletion.WithPageSize(cfg.Deletion.PageSize),
		deletion.WithMaxEmptyPages(cfg.Deletion.MaxEmptyPages),
		deletion.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	sys.dispatcher.Handle(core.JobIngest, sys.ingestion.HandleJob)
	sys.dispatcher.Handle(core.JobDelete, sys.deletion.HandleJob)
	sys.dispatcher.OnAbandon(core.JobIngest, sys.ingestion.HandleAbandoned)
	sys.dispatcher.OnAbandon(core.JobDelete, sys.deletion.HandleAbandoned)

	sys.catalog, err = catalog.New(sys.stores.Index, sys.resolver,
		catalog.WithBlobStore(sys.blobs),
		catalog.WithPageSize(cfg.Deletion.PageSize),
		catalog.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	sys.gateway, err = retrieval.NewGateway(sys.stores.Index, sys.resolver, provider.Summarizer(),
		retrieval.WithCandidateLimit(cfg.Retrieval.CandidateLimit),
		retrieval.WithManyThreshold(cfg.Retrieval.ManyThreshold),
		retrieval.WithMaxNames(cfg.Retrieval.MaxNames),
		retrieval.WithMaxContextChars(cfg.Retrieval.MaxContextChars),
		retrieval.WithSummaryTimeout(cfg.Retrieval.SummaryTimeout),
		retrieval.WithMinScore(float32(cfg.Retrieval.MinScore)),
		retrieval.WithMetrics(sys.metrics),
		retrieval.WithLogger(logger),
	)
	if err != nil {
		return err
	}

	sys.scraper, err = scrape.New(
		scrape.WithHTTPClient(&http.Client{Timeout: cfg.Scrape.Timeout}),
		scrape.WithUserAgent(cfg.Scrape.UserAgent),
		scrape.WithMinTextLength(cfg.Scrape.MinTextLength),
		scrape.WithLogger(logger),
	)
	return err
}

func openBlobs(ctx context.Context, cfg *config.Config, options *systemOptions, stores *badger.Stores, logger *slog.Logger) (storage.BlobStore, error) {
	if options.blobs != nil {
		return options.blobs, nil
	}
	if cfg.Blobs.Backend != config.BlobBackendS3 {
		return stores.Blobs, nil
	}
	c := cfg.Blobs.S3
	return s3.New(ctx, s3.Config{
		Bucket:       c.Bucket,
		Region:       c.Region,
		Prefix:       c.Prefix,
		Endpoint:     c.Endpoint,
		UsePathStyle: c.UsePathStyle,
		AccessKey:    c.AccessKey,
		SecretKey:    c.SecretKey,
		PresignTTL:   c.PresignTTL,
	}, s3.WithMaxBlobSize(cfg.Blobs.MaxSize), s3.WithLogger(logger))
}

// Close stops the workers and releases storage and provider resources.
func (sys *System) Close() error {
	if sys.dispatcher != nil {
		sys.dispatcher.Release()
	}
	if sys.ingestion != nil {
		sys.ingestion.Release()
	}
	if sys.deletion != nil {
		sys.deletion.Release()
	}

	var errs []error
	if sys.provider != nil {
		if err := sys.provider.Close(); err != nil {
			sys.logger.Error("error closing AI provider", "err", err)
		}
	}
	if sys.redis != nil {
		if err := sys.redis.Close(); err != nil {
			sys.logger.Error("error closing redis client", "err", err)
		}
	}
	if sys.stores != nil {
		if err := sys.stores.Close(); err != nil {
			sys.logger.Error("error closing storage", "err", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RunWorkers processes queued jobs until ctx is cancelled.
func (sys *System) RunWorkers(ctx context.Context) error {
	return sys.dispatcher.Run(ctx)
}

// ScrapeRequest describes a web page to ingest.
type ScrapeRequest struct {
	URL             string
	TenantID        string
	KnowledgeBaseID string
	Category        string
}

// Scrape fetches a page and submits its text for ingestion.
func (sys *System) Scrape(ctx context.Context, req ScrapeRequest) (*ingestion.Receipt, error) {
	page, err := sys.scraper.Scrape(ctx, req.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrExtractionFailed, err)
	}
	return sys.ingestion.Ingest(ctx, ingestion.Request{
		Data:            []byte(page.Text),
		Filename:        page.URL,
		DisplayName:     page.DisplayName(),
		MimeType:        "text/plain",
		TenantID:        req.TenantID,
		KnowledgeBaseID: req.KnowledgeBaseID,
		Category:        req.Category,
		SourceType:      core.SourceScraped,
	})
}

// DeleteDocument schedules removal of a document the tenant owns.
func (sys *System) DeleteDocument(ctx context.Context, tenantID, kbID, displayName string) (*deletion.Receipt, error) {
	ns, err := sys.resolver.Resolve(ctx, tenantID, kbID)
	if err != nil {
		return nil, err
	}
	return sys.deletion.Delete(ctx, deletion.Request{
		Document: core.DocumentID{Namespace: ns, DisplayName: displayName},
		TenantID: tenantID,
	})
}

func (sys *System) Ingestion() *ingestion.Coordinator {
	return sys.ingestion
}

func (sys *System) Deletion() *deletion.Coordinator {
	return sys.deletion
}

func (sys *System) Retrieval() *retrieval.Gateway {
	return sys.gateway
}

func (sys *System) Catalog() *catalog.Catalog {
	return sys.catalog
}

func (sys *System) KnowledgeBases() *namespace.Resolver {
	return sys.resolver
}

func (sys *System) Notifications() *notify.Service {
	return sys.notifier
}

func (sys *System) Dispatcher() *jobs.Dispatcher {
	return sys.dispatcher
}

func (sys *System) Blobs() storage.BlobStore {
	return sys.blobs
}

func (sys *System) Index() *badger.DocumentIndex {
	return sys.stores.Index
}

func (sys *System) Embedder() ai.Embedder {
	return sys.provider.Embedder()
}

func (sys *System) Metrics() *metrics.Metrics {
	return sys.metrics
}

// Events returns the in-process bus every file change is published on.
func (sys *System) Events() *events.Bus {
	return sys.bus
}
