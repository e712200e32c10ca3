// Package catalog lists a tenant's documents by aggregating index entries
// into one summary per display name.
package catalog

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/poiesic/docket/core"
	"github.com/poiesic/docket/storage"
)

// DefaultPageSize is the listing page size used to read a namespace.
const DefaultPageSize = 100

var (
	// ErrIndexRequired is returned when a document index is not provided.
	ErrIndexRequired = errors.New("document index required")

	// ErrResolverRequired is returned when a namespace resolver is not provided.
	ErrResolverRequired = errors.New("namespace resolver required")
)

// Resolver maps tenants and knowledge bases to namespaces.
type Resolver interface {
	Resolve(ctx context.Context, tenantID, kbID string) (string, error)
	Namespaces(ctx context.Context, tenantID string) ([]string, error)
}

// FileStatus is the user facing state of a document.
type FileStatus string

const (
	FileReady      FileStatus = "ready"
	FileProcessing FileStatus = "processing"
	FileError      FileStatus = "error"
)

// File summarizes one document.
type File struct {
	DisplayName      string     `json:"displayName"`
	Namespace        string     `json:"namespace"`
	KnowledgeBaseID  string     `json:"knowledgeBaseId,omitempty"`
	OriginalFilename string     `json:"originalFilename,omitempty"`
	MimeType         string     `json:"mimeType,omitempty"`
	Category         string     `json:"category,omitempty"`
	SourceType       string     `json:"sourceType,omitempty"`
	Status           FileStatus `json:"status"`
	Error            string     `json:"error,omitempty"`
	Chunks           int        `json:"chunks"`
	Size             int64      `json:"size,omitempty"`
	SizeText         string     `json:"sizeText,omitempty"`
	BlobHandle       string     `json:"blobHandle,omitempty"`
	URL              string     `json:"url,omitempty"`
	UploadedAt       time.Time  `json:"uploadedAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// Filter narrows a listing.
type Filter struct {
	KnowledgeBaseID string // Empty lists the tenant namespace and every knowledge base
	Category        string // Empty matches every category
}

// Catalog builds file listings.
type Catalog struct {
	index    storage.DocumentIndex
	blobs    storage.BlobStore
	resolver Resolver
	pageSize int
	logger   *slog.Logger
}

// Option configures a Catalog.
type Option func(*Catalog) error

// WithBlobStore enables sizes and download URLs in listings.
func WithBlobStore(blobs storage.BlobStore) Option {
	return func(c *Catalog) error {
		c.blobs = blobs
		return nil
	}
}

// WithPageSize sets the listing page size.
func WithPageSize(n int) Option {
	return func(c *Catalog) error {
		if n > 0 {
			c.pageSize = n
		}
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Catalog) error {
		if logger == nil {
			logger = slog.Default()
		}
		c.logger = logger
		return nil
	}
}

// New creates a Catalog.
func New(index storage.DocumentIndex, resolver Resolver, opts ...Option) (*Catalog, error) {
	if index == nil {
		return nil, ErrIndexRequired
	}
	if resolver == nil {
		return nil, ErrResolverRequired
	}
	c := &Catalog{index: index, resolver: resolver, pageSize: DefaultPageSize, logger: slog.Default()}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	c.logger = c.logger.With("component", "catalog")
	return c, nil
}

// List returns a tenant's documents, most recently uploaded first.
func (c *Catalog) List(ctx context.Context, tenantID string, filter Filter) ([]*File, error) {
	if err := core.ValidateTenant(tenantID); err != nil {
		return nil, err
	}

	var namespaces []string
	if filter.KnowledgeBaseID != "" {
		ns, err := c.resolver.Resolve(ctx, tenantID, filter.KnowledgeBaseID)
		if errors.Is(err, core.ErrNotFound) {
			return []*File{}, nil
		}
		if err != nil {
			return nil, err
		}
		namespaces = []string{ns}
	} else {
		var err error
		namespaces, err = c.resolver.Namespaces(ctx, tenantID)
		if err != nil {
			return nil, err
		}
	}

	var files []*File
	for _, ns := range namespaces {
		found, err := c.listNamespace(ctx, ns)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", ns, err)
		}
		for _, f := range found {
			if filter.Category != "" && f.Category != filter.Category {
				continue
			}
			files = append(files, f)
		}
	}

	slices.SortStableFunc(files, func(a, b *File) int {
		if n := b.UploadedAt.Compare(a.UploadedAt); n != 0 {
			return n
		}
		return cmp.Compare(a.DisplayName, b.DisplayName)
	})
	c.decorate(ctx, files)
	return files, nil
}

// Get returns the summary of one document.
func (c *Catalog) Get(ctx context.Context, tenantID, kbID, displayName string) (*File, error) {
	ns, err := c.resolver.Resolve(ctx, tenantID, kbID)
	if err != nil {
		return nil, err
	}
	doc := core.DocumentID{Namespace: ns, DisplayName: displayName}

	var entries []*core.Chunk
	if lister, ok := c.index.(storage.DocumentLister); ok {
		entries, err = lister.DocumentEntries(ctx, doc)
	} else {
		var files map[string][]*core.Chunk
		files, err = c.group(ctx, ns)
		entries = files[displayName]
	}
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: %s", core.ErrNotFound, doc)
	}

	f := summarize(ns, entries)
	c.decorate(ctx, []*File{f})
	return f, nil
}

func (c *Catalog) listNamespace(ctx context.Context, namespace string) ([]*File, error) {
	groups, err := c.group(ctx, namespace)
	if err != nil {
		return nil, err
	}
	files := make([]*File, 0, len(groups))
	for _, entries := range groups {
		files = append(files, summarize(namespace, entries))
	}
	return files, nil
}

// group reads a namespace and buckets its entries by display name.
func (c *Catalog) group(ctx context.Context, namespace string) (map[string][]*core.Chunk, error) {
	groups := make(map[string][]*core.Chunk)
	cursor := ""
	for {
		page, err := c.index.List(ctx, namespace, cursor, c.pageSize)
		if err != nil {
			return nil, err
		}
		for _, e := range page.Chunks {
			name := e.Metadata.DisplayName
			groups[name] = append(groups[name], e)
		}
		if page.NextCursor == "" {
			return groups, nil
		}
		cursor = page.NextCursor
	}
}

// summarize derives a document summary: ready when any chunk is ready,
// otherwise the placeholder's state.
func summarize(namespace string, entries []*core.Chunk) *File {
	f := &File{Namespace: namespace, Status: FileProcessing}

	var (
		ready       bool
		placeholder *core.Chunk
		first       = entries[0]
	)
	for _, e := range entries {
		if e.Metadata.Placeholder {
			placeholder = e
			continue
		}
		f.Chunks++
		if e.Status == core.StatusReady {
			ready = true
		}
		if first.Metadata.Placeholder || e.Metadata.ChunkIndex < first.Metadata.ChunkIndex {
			first = e
		}
	}

	meta := first.Metadata
	f.DisplayName = meta.DisplayName
	f.KnowledgeBaseID = meta.KnowledgeBaseID
	f.OriginalFilename = meta.OriginalFilename
	f.MimeType = meta.MimeType
	f.Category = meta.Category
	f.SourceType = string(meta.SourceType)
	f.BlobHandle = string(meta.BlobHandle)
	f.UploadedAt = first.InsertedAt
	for _, e := range entries {
		if e.UpdatedAt.After(f.UpdatedAt) {
			f.UpdatedAt = e.UpdatedAt
		}
	}

	switch {
	case ready:
		f.Status = FileReady
	case placeholder != nil && placeholder.Status == core.StatusError:
		f.Status = FileError
		f.Error = placeholder.Error
	case placeholder == nil && first.Status == core.StatusError:
		f.Status = FileError
	}
	return f
}

// decorate adds sizes and URLs from the blob store. Failures leave the
// fields empty.
func (c *Catalog) decorate(ctx context.Context, files []*File) {
	if c.blobs == nil {
		return
	}
	sizer, _ := c.blobs.(storage.BlobSizer)
	for _, f := range files {
		if f.BlobHandle == "" {
			continue
		}
		handle := core.BlobHandle(f.BlobHandle)
		if url, err := c.blobs.URL(ctx, handle); err == nil {
			f.URL = url
		}
		if sizer == nil {
			continue
		}
		size, err := sizer.Size(ctx, handle)
		if err != nil {
			c.logger.Debug("blob size unavailable", "blob", handle, "err", err)
			continue
		}
		f.Size = size
		f.SizeText = FormatSize(size)
	}
}

var sizeUnits = []string{"B", "KB", "MB", "GB"}

// FormatSize renders a byte count in 1024-based units with at most one
// decimal place, e.g. "1.5 KB".
func FormatSize(size int64) string {
	if size <= 0 {
		return "0 B"
	}
	v := float64(size)
	i := 0
	for v >= 1024 && i < len(sizeUnits)-1 {
		v /= 1024
		i++
	}
	return humanize.FtoaWithDigits(math.Round(v*10)/10, 1) + " " + sizeUnits[i]
}
