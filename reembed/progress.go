package reembed

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

// ProgressTracker writes a single, continually rewritten status line while
// chunks are re-embedded. Counts are cumulative across namespaces.
type ProgressTracker struct {
	mu sync.Mutex

	w         io.Writer
	total     int
	every     int
	done      int
	reported  int
	namespace string
	started   time.Time
	running   bool
}

// NewProgressTracker creates a tracker for total chunks that rewrites its line
// every `every` chunks. Values below one report on every batch.
func NewProgressTracker(w io.Writer, total, every int) *ProgressTracker {
	return &ProgressTracker{
		w:     w,
		total: total,
		every: max(every, 1),
	}
}

// Start resets the counters and starts the clock.
func (p *ProgressTracker) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.started = time.Now()
	p.running = true
	p.done = 0
	p.reported = 0
	p.namespace = ""
}

// Add records n more chunks finished in namespace.
func (p *ProgressTracker) Add(namespace string, n int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}
	p.done = min(p.done+n, p.total)
	p.namespace = namespace
	if p.done-p.reported >= p.every {
		p.writeLine()
		p.reported = p.done
	}
}

// Finish writes the final line and ends it with a newline.
func (p *ProgressTracker) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}
	p.done = p.total
	p.writeLine()
	fmt.Fprintln(p.w)
	p.running = false
}

// Elapsed is the time since Start, or zero before it.
func (p *ProgressTracker) Elapsed() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started.IsZero() {
		return 0
	}
	return time.Since(p.started)
}

// Rate is the number of chunks finished per second so far.
func (p *ProgressTracker) Rate() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rate()
}

func (p *ProgressTracker) rate() float64 {
	secs := time.Since(p.started).Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(p.done) / secs
}

// writeLine is called with mu held.
func (p *ProgressTracker) writeLine() {
	pct := 100.0
	if p.total > 0 {
		pct = float64(p.done) / float64(p.total) * 100
	}
	rate := p.rate()

	line := fmt.Sprintf("\r%s/%s chunks (%.1f%%) %.1f chunks/s",
		humanize.Comma(int64(p.done)), humanize.Comma(int64(p.total)), pct, rate)
	if p.namespace != "" {
		line += " in " + p.namespace
	}
	if left := p.total - p.done; left > 0 && rate > 0 {
		eta := time.Duration(float64(left) / rate * float64(time.Second))
		line += ", " + eta.Round(time.Second).String() + " left"
	}
	fmt.Fprint(p.w, line)
}
