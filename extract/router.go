package extract

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"code.sajari.com/docconv"
	"github.com/dustin/go-humanize"
	"github.com/jaytaylor/html2text"
	"github.com/poiesic/docket/ai"
	"github.com/poiesic/docket/core"
	"github.com/poiesic/docket/storage"
	"golang.org/x/time/rate"
)

const (
	DefaultMaxBytes = 50 << 20
	DefaultTimeout  = 2 * time.Minute
)

// Extractor produces the text of a stored document.
type Extractor interface {
	Extract(ctx context.Context, handle core.BlobHandle, filename, mimeType string) (string, error)
}

// Router is the default Extractor.
type Router struct {
	blobs     storage.BlobStore
	describer ai.ImageDescriber
	limiter   *rate.Limiter
	maxBytes  int
	timeout   time.Duration
	logger    *slog.Logger
}

var _ Extractor = (*Router)(nil)

// Option configures a Router.
type Option func(*Router) error

// WithImageDescriber enables image extraction through a vision model.
func WithImageDescriber(d ai.ImageDescriber) Option {
	return func(r *Router) error {
		r.describer = d
		return nil
	}
}

// WithImageRateLimit bounds image description calls to perSecond with burst.
func WithImageRateLimit(perSecond float64, burst int) Option {
	return func(r *Router) error {
		if perSecond <= 0 {
			r.limiter = rate.NewLimiter(rate.Inf, 0)
			return nil
		}
		r.limiter = rate.NewLimiter(rate.Limit(perSecond), max(burst, 1))
		return nil
	}
}

// WithMaxBytes sets the largest payload Extract accepts.
func WithMaxBytes(n int) Option {
	return func(r *Router) error {
		if n > 0 {
			r.maxBytes = n
		}
		return nil
	}
}

// WithTimeout bounds a single extraction.
func WithTimeout(d time.Duration) Option {
	return func(r *Router) error {
		if d > 0 {
			r.timeout = d
		}
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) error {
		if logger == nil {
			logger = slog.Default()
		}
		r.logger = logger
		return nil
	}
}

// NewRouter creates a Router reading blobs from blobs.
func NewRouter(blobs storage.BlobStore, opts ...Option) (*Router, error) {
	if blobs == nil {
		return nil, ErrBlobStoreRequired
	}

	r := &Router{
		blobs:    blobs,
		limiter:  rate.NewLimiter(rate.Limit(2), 2),
		maxBytes: DefaultMaxBytes,
		timeout:  DefaultTimeout,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	r.logger = r.logger.With("component", "extractor")
	return r, nil
}

// Extract loads the blob behind handle and extracts its text.
func (r *Router) Extract(ctx context.Context, handle core.BlobHandle, filename, mimeType string) (string, error) {
	data, err := r.blobs.Get(ctx, handle)
	if err != nil {
		return "", fmt.Errorf("%w: load %s: %w", core.ErrExtractionFailed, filename, err)
	}
	return r.ExtractBytes(ctx, data, filename, mimeType)
}

// ExtractBytes extracts the text of data.
func (r *Router) ExtractBytes(ctx context.Context, data []byte, filename, mimeType string) (string, error) {
	text, err := r.extract(ctx, data, filename, mimeType)
	if err != nil {
		return "", fmt.Errorf("%w: %w", core.ErrExtractionFailed, err)
	}
	return text, nil
}

func (r *Router) extract(ctx context.Context, data []byte, filename, mimeType string) (string, error) {
	if len(data) > r.maxBytes {
		return "", fmt.Errorf("%w: %s is %s, limit %s", ErrPayloadTooLarge, filename,
			humanize.Bytes(uint64(len(data))), humanize.Bytes(uint64(r.maxBytes)))
	}

	mimeType = baseType(mimeType)
	if mimeType == "" || mimeType == OctetStream {
		mimeType = GuessMimeType(filename, data)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	logger := r.logger.With("file", filename, "mimeType", mimeType, "size", len(data))
	logger.Debug("extracting text")

	var (
		text string
		err  error
	)
	switch strategyFor(mimeType) {
	case passthrough:
		text = decodeText(data)
	case htmlText:
		text, err = html2text.FromString(decodeText(data), html2text.Options{OmitLinks: true})
	case office:
		text, err = r.convert(ctx, data, mimeType)
	case image:
		text, err = r.describe(ctx, data, mimeType)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedMimeType, mimeType)
	}
	if err != nil {
		return "", err
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: %s", ErrNoText, filename)
	}
	logger.Debug("text extracted", "chars", len(text))
	return text, nil
}

// convert runs docconv in the background so the extraction timeout applies
// even though docconv itself takes no context.
func (r *Router) convert(ctx context.Context, data []byte, mimeType string) (string, error) {
	type result struct {
		body string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		res, err := docconv.Convert(bytes.NewReader(data), mimeType, false)
		if err != nil {
			done <- result{err: err}
			return
		}
		done <- result{body: res.Body}
	}()

	select {
	case res := <-done:
		return res.body, res.err
	case <-ctx.Done():
		return "", fmt.Errorf("convert %s: %w", mimeType, ctx.Err())
	}
}

func (r *Router) describe(ctx context.Context, data []byte, mimeType string) (string, error) {
	if r.describer == nil {
		return "", fmt.Errorf("%w: %s (no image describer configured)", ErrUnsupportedMimeType, mimeType)
	}
	if err := r.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return r.describer.DescribeImage(ctx, mimeType, data)
}

// decodeText returns data as a string with invalid UTF-8 sequences and a
// leading byte order mark removed.
func decodeText(data []byte) string {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if utf8.Valid(data) {
		return string(data)
	}
	return strings.ToValidUTF8(string(data), "")
}
