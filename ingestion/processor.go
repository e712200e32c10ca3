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

package ingestion

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/poiesic/docket/core"
	"github.com/poiesic/docket/events"
	"github.com/poiesic/docket/retry"
	"github.com/poiesic/docket/storage"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// maxEmptyPages stops a document scan after this many consecutive pages
// without a match once at least one match was seen.
const maxEmptyPages = 3

// processor runs the asynchronous part of an ingest job.
type processor interface {
	// process extracts, chunks and indexes the job's document.
	process(ctx context.Context, job *core.Job) (*Outcome, error)
}

type jobProcessor struct {
	co *Coordinator
}

func (p *jobProcessor) process(ctx context.Context, job *core.Job) (*Outcome, error) {
	co := p.co
	doc := job.Document

	ctx, span := tracer.Start(ctx, "ingestion.process")
	defer span.End()
	span.SetAttributes(attribute.String("docket.document", doc.String()))

	unlock, err := co.locker.Lock(ctx, doc.String())
	if err != nil {
		return nil, err
	}
	defer unlock()

	logger := co.logger.With("document", doc.String())
	start := time.Now()

	outcome := &Outcome{Document: doc, Status: core.StatusPending}

	text, err := co.extractor.Extract(ctx, job.BlobHandle, job.Filename, job.MimeType)
	if err != nil {
		return outcome, p.fail(ctx, job, outcome, err)
	}

	parts := co.chunker.Split(text)
	if len(parts) == 0 {
		return outcome, p.fail(ctx, job, outcome, fmt.Errorf("%w: no text to index", core.ErrExtractionFailed))
	}
	outcome.Chunks = len(parts)

	created, err := p.write(ctx, job, parts)
	outcome.Created = created
	if err != nil {
		return outcome, p.fail(ctx, job, outcome, err)
	}

	pruned, err := p.prune(ctx, job, len(parts))
	outcome.Pruned = pruned
	if err != nil {
		// The new chunks are in place, so stale leftovers are logged rather than failing the job.
		logger.Warn("error pruning stale entries", "err", err)
	}

	if err := co.index.Delete(ctx, core.EntryID(doc.Namespace, core.PlaceholderKey(doc.DisplayName))); err != nil {
		logger.Warn("error removing placeholder", "err", err)
	}

	outcome.Status = core.StatusReady
	p.succeed(ctx, job)

	span.SetAttributes(attribute.Int("docket.chunks", outcome.Chunks), attribute.Int("docket.created", outcome.Created))
	logger.Info("document ready", "chunks", outcome.Chunks, "created", outcome.Created,
		"pruned", outcome.Pruned, "elapsed", time.Since(start))
	return outcome, nil
}

// write adds every chunk of the document in parallel and returns how many
// were newly created. Writes that already succeeded stay in place on failure.
func (p *jobProcessor) write(ctx context.Context, job *core.Job, parts []string) (int, error) {
	co := p.co
	var created atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(co.writeConcurrency)

	for i, text := range parts {
		meta := metadataFor(job)
		meta.ChunkIndex = i
		meta.TotalChunks = len(parts)
		chunk := &core.Chunk{
			Namespace:   job.Document.Namespace,
			Key:         core.ChunkKey(job.Document.DisplayName, i, len(parts)),
			Text:        text,
			ContentHash: core.HashText(text),
			Status:      core.StatusReady,
			Metadata:    meta,
		}

		g.Go(func() error {
			var isNew bool
			err := retry.WithBackoff(gctx, func() error {
				_, c, err := co.index.Add(gctx, chunk)
				if errors.Is(err, core.ErrInvalidChunk) {
					return retry.Permanent(err)
				}
				isNew = c
				return err
			}, co.writeAttempts, co.writeBaseDelay)
			if err != nil {
				return fmt.Errorf("%w: %s: %w", core.ErrIndexWriteFailed, chunk.Key, err)
			}
			co.metrics.ChunkWritten(isNew)
			if isNew {
				created.Add(1)
			}
			return nil
		})
	}

	err := g.Wait()
	return int(created.Load()), err
}

// prune removes entries left over from an earlier version of the document,
// then deletes blobs no remaining entry references.
func (p *jobProcessor) prune(ctx context.Context, job *core.Job, total int) (int, error) {
	co := p.co
	doc := job.Document

	current := make(map[string]struct{}, total)
	for i := range total {
		current[core.ChunkKey(doc.DisplayName, i, total)] = struct{}{}
	}

	entries, err := p.entries(ctx, doc)
	if err != nil {
		return 0, err
	}

	referenced := make(map[core.BlobHandle]struct{})
	orphaned := make(map[core.BlobHandle]struct{})
	var errs []error
	pruned := 0
	for _, e := range entries {
		if e.Metadata.Placeholder {
			continue
		}
		if _, ok := current[e.Key]; ok {
			referenced[e.Metadata.BlobHandle] = struct{}{}
			continue
		}
		if err := co.index.Delete(ctx, e.ID); err != nil {
			errs = append(errs, err)
			referenced[e.Metadata.BlobHandle] = struct{}{}
			continue
		}
		pruned++
		orphaned[e.Metadata.BlobHandle] = struct{}{}
	}
	co.metrics.ChunksRemoved(pruned)

	// A job whose chunks were all unchanged leaves its own upload unreferenced.
	orphaned[job.BlobHandle] = struct{}{}
	for handle := range orphaned {
		if _, ok := referenced[handle]; ok || handle == "" {
			continue
		}
		if err := co.blobs.Delete(ctx, handle); err != nil {
			co.logger.Warn("error deleting unreferenced blob", "document", doc.String(), "blob", handle,
				"err", fmt.Errorf("%w: %w", core.ErrStorageCleanupFailed, err))
		}
	}

	return pruned, errors.Join(errs...)
}

// entries returns every index entry of doc, placeholders included.
func (p *jobProcessor) entries(ctx context.Context, doc core.DocumentID) ([]*core.Chunk, error) {
	if lister, ok := p.co.index.(storage.DocumentLister); ok {
		return lister.DocumentEntries(ctx, doc)
	}

	var found []*core.Chunk
	cursor := ""
	empty := 0
	for {
		page, err := p.co.index.List(ctx, doc.Namespace, cursor, p.co.scanPageSize)
		if err != nil {
			return nil, err
		}
		matched := 0
		for _, c := range page.Chunks {
			if c.Metadata.DisplayName == doc.DisplayName {
				found = append(found, c)
				matched++
			}
		}
		if matched == 0 && len(found) > 0 {
			empty++
			if empty >= maxEmptyPages {
				return found, nil
			}
		} else {
			empty = 0
		}
		if page.NextCursor == "" {
			return found, nil
		}
		cursor = page.NextCursor
	}
}

func (p *jobProcessor) succeed(ctx context.Context, job *core.Job) {
	co := p.co
	name := job.Document.DisplayName

	if _, err := co.notifier.DeleteForDocument(ctx, job.TenantID, name); err != nil {
		co.logger.Warn("error clearing old notifications", "document", job.Document.String(), "err", err)
	}
	if _, err := co.notifier.Create(ctx, job.TenantID, core.NotificationFileReady,
		"File ready", fmt.Sprintf("%q is ready to use", name), name); err != nil {
		co.logger.Warn("error creating notification", "document", job.Document.String(), "err", err)
	}
	p.publish(ctx, job)
}

// fail marks the document in error and reports it. The blob is kept so the
// job can be retried. Cancelled jobs are left pending for redelivery.
func (p *jobProcessor) fail(ctx context.Context, job *core.Job, outcome *Outcome, cause error) error {
	co := p.co
	doc := job.Document

	if ctx.Err() != nil {
		return ctx.Err()
	}
	outcome.Status = core.StatusError

	span := trace.SpanFromContext(ctx)
	span.RecordError(cause)
	span.SetStatus(codes.Error, cause.Error())

	co.logger.Error("error processing document", "document", doc.String(), "err", cause)

	ph := placeholderFor(job, core.StatusError, cause.Error())
	if _, _, err := co.index.Add(ctx, ph); err != nil {
		co.logger.Error("error recording failure", "document", doc.String(), "err", err)
	}

	if _, err := co.notifier.Create(ctx, job.TenantID, core.NotificationFileFailed,
		"File processing failed", fmt.Sprintf("Failed to process %q: %v", doc.DisplayName, cause), doc.DisplayName); err != nil {
		co.logger.Warn("error creating notification", "document", doc.String(), "err", err)
	}
	p.publish(ctx, job)
	return cause
}

func (p *jobProcessor) publish(ctx context.Context, job *core.Job) {
	err := p.co.publisher.Publish(ctx, events.Event{
		Kind:        events.FilesChanged,
		TenantID:    job.TenantID,
		Namespace:   job.Document.Namespace,
		DisplayName: job.Document.DisplayName,
		At:          time.Now(),
	})
	if err != nil {
		p.co.logger.Warn("error publishing event", "document", job.Document.String(), "err", err)
	}
}
