// Package scrape fetches web pages and reduces them to readable text for
// ingestion with source type "scraped".
package scrape

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const (
	DefaultUserAgent     = "Mozilla/5.0 (compatible; docket/1.0; +https://github.com/poiesic/docket)"
	DefaultTimeout       = 10 * time.Second
	DefaultMinTextLength = 50
	DefaultMaxBytes      = 10 << 20
)

var (
	// ErrInvalidURL is returned for URLs that are not absolute http(s) URLs.
	ErrInvalidURL = errors.New("invalid URL")

	// ErrFetchFailed is returned when the page could not be retrieved.
	ErrFetchFailed = errors.New("fetch failed")

	// ErrTooLittleText is returned for pages without enough readable text.
	ErrTooLittleText = errors.New("page has too little text")
)

// Page is the readable content of a scraped page.
type Page struct {
	URL   string
	Title string
	Text  string
}

// DisplayName is the page title, or the URL for untitled pages.
func (p *Page) DisplayName() string {
	if p.Title != "" {
		return p.Title
	}
	return p.URL
}

// Scraper fetches and cleans web pages.
type Scraper struct {
	client        *http.Client
	userAgent     string
	minTextLength int
	maxBytes      int64
	logger        *slog.Logger
}

// Option configures a Scraper.
type Option func(*Scraper) error

// WithHTTPClient replaces the HTTP client. Its Timeout is left as given.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Scraper) error {
		if c != nil {
			s.client = c
		}
		return nil
	}
}

// WithUserAgent sets the User-Agent header sent with every request.
func WithUserAgent(ua string) Option {
	return func(s *Scraper) error {
		if ua != "" {
			s.userAgent = ua
		}
		return nil
	}
}

// WithMinTextLength sets how much text a page needs to be accepted.
func WithMinTextLength(n int) Option {
	return func(s *Scraper) error {
		s.minTextLength = n
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scraper) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// New creates a Scraper.
func New(opts ...Option) (*Scraper, error) {
	s := &Scraper{
		client:        &http.Client{Timeout: DefaultTimeout},
		userAgent:     DefaultUserAgent,
		minTextLength: DefaultMinTextLength,
		maxBytes:      DefaultMaxBytes,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "scraper")
	return s, nil
}

// Scrape fetches rawURL and returns its title and readable text.
func (s *Scraper) Scrape(ctx context.Context, rawURL string) (*Page, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %s returned %s", ErrFetchFailed, u, resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, s.maxBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: parse %s: %w", ErrFetchFailed, u, err)
	}

	page := &Page{
		URL:   u.String(),
		Title: collapseSpaces(doc.Find("title").First().Text()),
		Text:  readableText(doc),
	}

	if len(page.Text) < s.minTextLength {
		return nil, fmt.Errorf("%w: %s has %d characters", ErrTooLittleText, u, len(page.Text))
	}

	s.logger.Info("page scraped", "url", page.URL, "title", page.Title, "chars", len(page.Text))
	return page, nil
}

// blockElements get a line break after them so paragraphs stay apart.
const blockElements = "p, div, br, li, tr, h1, h2, h3, h4, h5, h6, section, article, header, footer, blockquote, pre"

func readableText(doc *goquery.Document) string {
	doc.Find("script, style, noscript, template, svg").Remove()

	body := doc.Find("body")
	if body.Length() == 0 {
		body = doc.Selection
	}
	body.Find(blockElements).Each(func(_ int, sel *goquery.Selection) {
		sel.AppendHtml("\n")
	})

	var lines []string
	for _, line := range strings.Split(body.Text(), "\n") {
		if line = collapseSpaces(line); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
