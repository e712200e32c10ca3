// Package namespace maps tenants and knowledge bases to index namespaces
// and owns the knowledge base lifecycle.
//
// A tenant without a knowledge base writes to the namespace named after the
// tenant. A knowledge base gets its own namespace, tenantID + "_" + kbID,
// computed once at creation and stored on the record.
package namespace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/poiesic/docket/core"
	"github.com/poiesic/docket/storage"
)

var (
	// ErrKnowledgeBaseRepositoryRequired is returned when a knowledge base repository is not provided.
	ErrKnowledgeBaseRepositoryRequired = errors.New("knowledge base repository required")

	// ErrIndexRequired is returned when a document index is not provided.
	ErrIndexRequired = errors.New("document index required")
)

// Resolver resolves namespaces and manages knowledge bases.
type Resolver struct {
	kbs    storage.KnowledgeBaseRepository
	index  storage.DocumentIndex
	logger *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) error {
		if logger == nil {
			logger = slog.Default()
		}
		r.logger = logger
		return nil
	}
}

// NewResolver creates a Resolver.
func NewResolver(kbs storage.KnowledgeBaseRepository, index storage.DocumentIndex, opts ...Option) (*Resolver, error) {
	if kbs == nil {
		return nil, ErrKnowledgeBaseRepositoryRequired
	}
	if index == nil {
		return nil, ErrIndexRequired
	}

	r := &Resolver{kbs: kbs, index: index, logger: slog.Default()}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	r.logger = r.logger.With("component", "namespace")
	return r, nil
}

// Resolve returns the namespace a tenant's request addresses.
// An empty kbID addresses the tenant namespace.
func (r *Resolver) Resolve(ctx context.Context, tenantID, kbID string) (string, error) {
	if err := core.ValidateTenant(tenantID); err != nil {
		return "", err
	}
	if kbID == "" {
		return tenantID, nil
	}

	kb, err := r.owned(ctx, tenantID, kbID)
	if err != nil {
		return "", err
	}
	return kb.Namespace, nil
}

// ResolveForRetrieval is Resolve for the agent path: any failure degrades
// to ("", false) so the caller answers with an empty result.
func (r *Resolver) ResolveForRetrieval(ctx context.Context, tenantID, kbID string) (string, bool) {
	ns, err := r.Resolve(ctx, tenantID, kbID)
	if err != nil {
		r.logger.Warn("namespace unresolved for retrieval", "tenant", tenantID, "kb", kbID, "err", err)
		return "", false
	}
	return ns, true
}

// Namespaces returns the tenant namespace followed by the namespace of every
// knowledge base the tenant owns.
func (r *Resolver) Namespaces(ctx context.Context, tenantID string) ([]string, error) {
	if err := core.ValidateTenant(tenantID); err != nil {
		return nil, err
	}
	kbs, err := r.kbs.GetKnowledgeBasesByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	namespaces := make([]string, 0, len(kbs)+1)
	namespaces = append(namespaces, tenantID)
	for _, kb := range kbs {
		namespaces = append(namespaces, kb.Namespace)
	}
	return namespaces, nil
}

// NewKnowledgeBaseID returns "kb_" followed by 16 random hex characters.
func NewKnowledgeBaseID() string {
	return core.KnowledgeBaseIDPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}

// CreateKnowledgeBase creates a knowledge base for tenantID.
func (r *Resolver) CreateKnowledgeBase(ctx context.Context, tenantID, name, description string) (*core.KnowledgeBase, error) {
	id := NewKnowledgeBaseID()
	kb, err := r.kbs.AddKnowledgeBase(ctx, &core.KnowledgeBase{
		ID:          id,
		TenantID:    tenantID,
		Name:        strings.TrimSpace(name),
		Description: strings.TrimSpace(description),
		Namespace:   core.NamespaceKey(tenantID, id),
	})
	if err != nil {
		return nil, err
	}
	r.logger.Info("knowledge base created", "tenant", tenantID, "kb", kb.ID, "namespace", kb.Namespace)
	return kb, nil
}

// GetKnowledgeBase returns one of tenantID's knowledge bases.
func (r *Resolver) GetKnowledgeBase(ctx context.Context, tenantID, kbID string) (*core.KnowledgeBase, error) {
	return r.owned(ctx, tenantID, kbID)
}

// ListKnowledgeBases returns tenantID's knowledge bases.
func (r *Resolver) ListKnowledgeBases(ctx context.Context, tenantID string) ([]*core.KnowledgeBase, error) {
	return r.kbs.GetKnowledgeBasesByTenant(ctx, tenantID)
}

// UpdateKnowledgeBase renames or redescribes a knowledge base.
// Empty arguments leave the field unchanged.
func (r *Resolver) UpdateKnowledgeBase(ctx context.Context, tenantID, kbID, name, description string) (*core.KnowledgeBase, error) {
	kb, err := r.owned(ctx, tenantID, kbID)
	if err != nil {
		return nil, err
	}
	if n := strings.TrimSpace(name); n != "" {
		kb.Name = n
	}
	if d := strings.TrimSpace(description); d != "" {
		kb.Description = d
	}
	return r.kbs.UpdateKnowledgeBase(ctx, kb)
}

// DeleteKnowledgeBase removes a knowledge base and every chunk in its
// namespace. It returns the number of chunks dropped.
func (r *Resolver) DeleteKnowledgeBase(ctx context.Context, tenantID, kbID string) (int, error) {
	kb, err := r.owned(ctx, tenantID, kbID)
	if err != nil {
		return 0, err
	}

	dropped, err := r.index.DropNamespace(ctx, kb.Namespace)
	if err != nil {
		return 0, fmt.Errorf("drop namespace %s: %w", kb.Namespace, err)
	}
	if err := r.kbs.DeleteKnowledgeBase(ctx, kb.ID); err != nil {
		return dropped, err
	}

	r.logger.Info("knowledge base deleted", "tenant", tenantID, "kb", kbID, "chunks", dropped)
	return dropped, nil
}

// owned loads a knowledge base and checks it belongs to tenantID.
func (r *Resolver) owned(ctx context.Context, tenantID, kbID string) (*core.KnowledgeBase, error) {
	kb, err := r.kbs.GetKnowledgeBase(ctx, kbID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: knowledge base %s", core.ErrNotFound, kbID)
	}
	if err != nil {
		return nil, err
	}
	if kb.TenantID != tenantID {
		return nil, fmt.Errorf("%w: knowledge base %s", core.ErrPermissionDenied, kbID)
	}
	return kb, nil
}
