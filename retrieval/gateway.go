package retrieval

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/poiesic/docket/ai"
	"github.com/poiesic/docket/core"
	"github.com/poiesic/docket/metrics"
	"github.com/poiesic/docket/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultCandidateLimit  = 30
	DefaultManyThreshold   = 3
	DefaultMaxNames        = 5
	DefaultMaxContextChars = 12000
	DefaultSummaryTimeout  = 20 * time.Second
	// DefaultMinScore keeps every candidate the index returns.
	DefaultMinScore float32 = 0
)

var tracer = otel.Tracer("github.com/poiesic/docket/retrieval")

// Resolver maps a tenant and optional knowledge base to a namespace,
// reporting false when the namespace cannot be used.
type Resolver interface {
	ResolveForRetrieval(ctx context.Context, tenantID, kbID string) (string, bool)
}

// Query is a natural-language question scoped to a tenant.
type Query struct {
	Text            string
	TenantID        string
	KnowledgeBaseID string
}

// Answer is the reply to a query.
type Answer struct {
	Payload  *Payload
	Reply    string
	Answered bool // True when the summarizer produced Reply
}

// Gateway classifies search results and produces answers.
type Gateway struct {
	index      storage.DocumentIndex
	resolver   Resolver
	summarizer ai.Summarizer

	candidateLimit  int
	manyThreshold   int
	maxNames        int
	maxContextChars int
	summaryTimeout  time.Duration
	minScore        float32

	metrics *metrics.Metrics
	flight  singleflight.Group
	logger  *slog.Logger
}

// Option configures a Gateway.
type Option func(*Gateway) error

// WithCandidateLimit sets how many chunks are fetched from the index per query.
func WithCandidateLimit(n int) Option {
	return func(g *Gateway) error {
		if n > 0 {
			g.candidateLimit = n
		}
		return nil
	}
}

// WithManyThreshold sets the document count above which the gateway asks
// for disambiguation instead of answering.
func WithManyThreshold(n int) Option {
	return func(g *Gateway) error {
		if n > 0 {
			g.manyThreshold = n
		}
		return nil
	}
}

// WithMaxNames caps the document names offered for disambiguation.
func WithMaxNames(n int) Option {
	return func(g *Gateway) error {
		if n > 0 {
			g.maxNames = n
		}
		return nil
	}
}

// WithMaxContextChars bounds the context handed to the summarizer.
func WithMaxContextChars(n int) Option {
	return func(g *Gateway) error {
		if n > 0 {
			g.maxContextChars = n
		}
		return nil
	}
}

// WithSummaryTimeout bounds the summarizer call.
func WithSummaryTimeout(d time.Duration) Option {
	return func(g *Gateway) error {
		if d > 0 {
			g.summaryTimeout = d
		}
		return nil
	}
}

// WithMinScore sets the relevance floor below which candidates are ignored.
// Zero keeps every candidate.
func WithMinScore(score float32) Option {
	return func(g *Gateway) error {
		if score >= 0 {
			g.minScore = score
		}
		return nil
	}
}

// WithMetrics records retrieval classes and summarizer timeouts on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Gateway) error {
		g.metrics = m
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) error {
		if logger == nil {
			logger = slog.Default()
		}
		g.logger = logger
		return nil
	}
}

// NewGateway creates a retrieval gateway.
func NewGateway(index storage.DocumentIndex, resolver Resolver, summarizer ai.Summarizer, opts ...Option) (*Gateway, error) {
	if index == nil {
		return nil, ErrIndexRequired
	}
	if resolver == nil {
		return nil, ErrResolverRequired
	}
	if summarizer == nil {
		return nil, ErrSummarizerRequired
	}

	g := &Gateway{
		index:           index,
		resolver:        resolver,
		summarizer:      summarizer,
		candidateLimit:  DefaultCandidateLimit,
		manyThreshold:   DefaultManyThreshold,
		maxNames:        DefaultMaxNames,
		maxContextChars: DefaultMaxContextChars,
		summaryTimeout:  DefaultSummaryTimeout,
		minScore:        DefaultMinScore,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(g); err != nil {
			return nil, err
		}
	}
	g.logger = g.logger.With("component", "retrieval")
	return g, nil
}

// Search classifies the documents matching q.
// Resolution and index failures degrade to a ClassNone payload.
func (g *Gateway) Search(ctx context.Context, q Query) (*Payload, error) {
	return g.SearchWithMonitor(ctx, q, nil)
}

// SearchWithMonitor is Search with callbacks at each stage.
func (g *Gateway) SearchWithMonitor(ctx context.Context, q Query, monitor Monitor) (*Payload, error) {
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	if strings.TrimSpace(q.Text) == "" {
		return nil, ErrEmptyQuery
	}

	ctx, span := tracer.Start(ctx, "retrieval.search")
	defer span.End()

	monitor.Start(q)

	payload := &Payload{Class: ClassNone}
	defer func() {
		span.SetAttributes(attribute.String("docket.class", string(payload.Class)))
		g.metrics.Retrieval(string(payload.Class))
		monitor.Finish(payload)
	}()

	namespace, ok := g.resolver.ResolveForRetrieval(ctx, q.TenantID, q.KnowledgeBaseID)
	monitor.AfterResolve(namespace, ok)
	if !ok {
		return payload, nil
	}
	payload.Namespace = namespace

	hits, err := g.index.Search(ctx, namespace, q.Text, g.candidateLimit)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		g.logger.Error("error searching index", "namespace", namespace, "err", err)
		return payload, nil
	}
	if g.minScore > 0 {
		hits = slices.DeleteFunc(hits, func(h *core.SearchHit) bool { return h.Score < g.minScore })
	}
	monitor.AfterSearch(hits)

	sources := group(hits)
	monitor.AfterGrouping(sources)

	payload.Class = classify(len(sources), g.manyThreshold)
	monitor.Classified(payload.Class)

	switch payload.Class {
	case ClassMany:
		names := make([]string, 0, g.maxNames)
		for _, src := range sources[:min(len(sources), g.maxNames)] {
			names = append(names, src.DisplayName)
		}
		payload.Names = names
		payload.Instruction = disambiguation(names)
	case ClassFew:
		payload.Sources = sources
		payload.Instruction = fewInstruction
		payload.Context, payload.Truncated = buildContext(sources, g.maxContextChars)
	case ClassSingle:
		payload.Sources = sources
		payload.Instruction = singleInstruction
		payload.Context, payload.Truncated = buildContext(sources, g.maxContextChars)
	}

	g.logger.Debug("query classified", "namespace", namespace, "hits", len(hits),
		"documents", len(sources), "class", payload.Class)
	return payload, nil
}

// Answer searches and, for one to a few documents, asks the summarizer for a
// short answer. Identical concurrent queries share one execution.
func (g *Gateway) Answer(ctx context.Context, q Query) (*Answer, error) {
	key := q.TenantID + "\x00" + q.KnowledgeBaseID + "\x00" + strings.TrimSpace(q.Text)
	// The shared call must not inherit one caller's cancellation.
	ch := g.flight.DoChan(key, func() (any, error) {
		return g.answer(context.WithoutCancel(ctx), q)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			g.logger.Debug("answer shared with concurrent query", "tenant", q.TenantID)
		}
		return res.Val.(*Answer), nil
	}
}

func (g *Gateway) answer(ctx context.Context, q Query) (*Answer, error) {
	payload, err := g.Search(ctx, q)
	if err != nil {
		return nil, err
	}

	answer := &Answer{Payload: payload, Reply: NoInformationReply}
	switch payload.Class {
	case ClassNone:
		return answer, nil
	case ClassMany:
		answer.Reply = payload.Instruction
		return answer, nil
	}

	ctx, span := tracer.Start(ctx, "retrieval.summarize")
	defer span.End()

	sctx, cancel := context.WithTimeout(ctx, g.summaryTimeout)
	defer cancel()

	reply, err := g.summarizer.Summarize(sctx, payload.Instruction, payload.Context, q.Text)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(sctx.Err(), context.DeadlineExceeded) {
			g.metrics.SummarizerTimeout()
			g.logger.Warn("summarizer timed out", "timeout", g.summaryTimeout)
		} else {
			g.logger.Error("error summarizing", "err", err)
		}
		return answer, nil
	}

	reply = strings.TrimSpace(reply)
	if reply == "" {
		return answer, nil
	}
	answer.Reply = reply
	answer.Answered = true
	return answer, nil
}
