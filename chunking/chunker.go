package chunking

import (
	"strings"
	"unicode/utf8"
)

const (
	// DefaultTargetSize is the default window size in bytes.
	DefaultTargetSize = 2000
	// DefaultOverlap is the default number of bytes shared by consecutive windows.
	DefaultOverlap = 400
	// DefaultSnapWindow is the trailing fraction of a window searched for a boundary.
	DefaultSnapWindow = 0.3
)

// Chunker splits text into overlapping windows. It is immutable and safe
// for concurrent use.
type Chunker struct {
	targetSize int
	overlap    int
	snapWindow float64
}

// Option configures a Chunker.
type Option func(*Chunker) error

// WithTargetSize sets the maximum window size in bytes.
func WithTargetSize(size int) Option {
	return func(c *Chunker) error {
		if size <= 0 {
			return ErrInvalidTargetSize
		}
		c.targetSize = size
		return nil
	}
}

// WithOverlap sets how many bytes consecutive windows share.
func WithOverlap(overlap int) Option {
	return func(c *Chunker) error {
		if overlap < 0 {
			return ErrInvalidOverlap
		}
		c.overlap = overlap
		return nil
	}
}

// WithSnapWindow sets the trailing fraction of a window in which a sentence
// or line boundary is accepted as the cut point.
func WithSnapWindow(fraction float64) Option {
	return func(c *Chunker) error {
		if fraction < 0 || fraction > 1 {
			return ErrInvalidSnapWindow
		}
		c.snapWindow = fraction
		return nil
	}
}

// New creates a Chunker with defaults of 2000/400/0.3.
func New(opts ...Option) (*Chunker, error) {
	c := &Chunker{
		targetSize: DefaultTargetSize,
		overlap:    DefaultOverlap,
		snapWindow: DefaultSnapWindow,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	if c.overlap >= c.targetSize {
		return nil, ErrInvalidOverlap
	}
	return c, nil
}

// TargetSize returns the configured window size.
func (c *Chunker) TargetSize() int { return c.targetSize }

// Overlap returns the configured overlap.
func (c *Chunker) Overlap() int { return c.overlap }

// Split divides text into trimmed, non-empty chunks.
// Text no longer than the target size is returned as a single chunk.
func (c *Chunker) Split(text string) []string {
	return split(text, c.targetSize, c.overlap, c.snapWindow)
}

// Split divides text using the default snap window.
// Invalid sizes are clamped rather than rejected: a non-positive target
// returns the whole text as one chunk, and overlap is bounded to [0, target).
func Split(text string, targetSize, overlap int) []string {
	if targetSize <= 0 {
		if t := strings.TrimSpace(text); t != "" {
			return []string{t}
		}
		return nil
	}
	overlap = max(0, min(overlap, targetSize-1))
	return split(text, targetSize, overlap, DefaultSnapWindow)
}

func split(text string, targetSize, overlap int, snapWindow float64) []string {
	if len(text) <= targetSize {
		if t := strings.TrimSpace(text); t != "" {
			return []string{t}
		}
		return nil
	}

	threshold := int(float64(targetSize) * (1 - snapWindow))
	var chunks []string
	start := 0

	for start < len(text) {
		end := start + targetSize

		if end < len(text) {
			window := text[start:end]
			lastPeriod := strings.LastIndex(window, ". ")
			lastNewline := strings.LastIndex(window, "\n")

			lastBreak, width := lastNewline, 1
			if lastPeriod > lastNewline {
				lastBreak, width = lastPeriod, 2
			}
			if lastBreak > threshold {
				end = start + lastBreak + width
			}
			end = runeBoundaryBefore(text, end, start)
		} else {
			end = len(text)
		}

		if chunk := strings.TrimSpace(text[start:end]); chunk != "" {
			chunks = append(chunks, chunk)
		}

		if end >= len(text) {
			break
		}

		next := max(end-overlap, start+1)
		start = runeBoundaryAfter(text, next)
	}

	return chunks
}

// runeBoundaryBefore moves i back to the start of the rune it falls in,
// never to or below floor. If no boundary exists above floor it moves forward instead.
func runeBoundaryBefore(text string, i, floor int) int {
	j := i
	for j > floor && j < len(text) && !utf8.RuneStart(text[j]) {
		j--
	}
	if j > floor {
		return j
	}
	return runeBoundaryAfter(text, i)
}

// runeBoundaryAfter moves i forward to the next rune start.
func runeBoundaryAfter(text string, i int) int {
	for i < len(text) && !utf8.RuneStart(text[i]) {
		i++
	}
	return i
}
