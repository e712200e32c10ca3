package retrieval

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/poiesic/docket/core"
)

// Class is the response strategy picked from the number of matched documents.
type Class string

const (
	ClassNone   Class = "none"
	ClassSingle Class = "single"
	ClassFew    Class = "few"
	ClassMany   Class = "many"
)

const (
	// NoInformationReply is the answer given when nothing usable was found.
	NoInformationReply = "I don't have information about that in the knowledge base."

	singleInstruction = "Answer the question using only the context below. " +
		"Keep the answer to 2-3 sentences regardless of how much context is supplied."

	fewInstruction = "The context below comes from multiple documents. " +
		"Synthesize a single 2-3 sentence answer from all of them using only the context. " +
		"Do not copy any one passage verbatim."
)

// Source is one matched document and its matching chunks in document order.
type Source struct {
	DisplayName string
	Score       float32 // Best chunk score
	Chunks      []*core.Chunk
}

// Payload is the classified, bounded context for a query.
type Payload struct {
	Class       Class
	Namespace   string
	Sources     []*Source
	Names       []string // Document names offered for disambiguation, at most MaxNames
	Instruction string
	Context     string
	Truncated   bool
}

// group buckets hits by display name. Sources are ordered by their best
// hit, chunks by position in the document.
func group(hits []*core.SearchHit) []*Source {
	byName := make(map[string]*Source)
	var sources []*Source
	for _, hit := range hits {
		name := hit.Chunk.Metadata.DisplayName
		src, ok := byName[name]
		if !ok {
			src = &Source{DisplayName: name, Score: hit.Score}
			byName[name] = src
			sources = append(sources, src)
		}
		src.Score = max(src.Score, hit.Score)
		src.Chunks = append(src.Chunks, hit.Chunk)
	}

	slices.SortStableFunc(sources, func(a, b *Source) int {
		return cmp.Compare(b.Score, a.Score)
	})
	for _, src := range sources {
		slices.SortFunc(src.Chunks, func(a, b *core.Chunk) int {
			return cmp.Compare(a.Metadata.ChunkIndex, b.Metadata.ChunkIndex)
		})
	}
	return sources
}

func classify(documents, manyThreshold int) Class {
	switch {
	case documents == 0:
		return ClassNone
	case documents > manyThreshold:
		return ClassMany
	case documents == 1:
		return ClassSingle
	default:
		return ClassFew
	}
}

// disambiguation asks the caller to pick one of names.
func disambiguation(names []string) string {
	return fmt.Sprintf("I found information in several documents: %s. Which one are you asking about?",
		strings.Join(names, ", "))
}

// buildContext renders sources as summarizer context of at most maxChars bytes.
func buildContext(sources []*Source, maxChars int) (string, bool) {
	names := make([]string, len(sources))
	for i, src := range sources {
		names[i] = src.DisplayName
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found results in %s. Here is the context:\n", strings.Join(names, ", "))
	for _, src := range sources {
		fmt.Fprintf(&b, "\n## %s\n", src.DisplayName)
		for _, c := range src.Chunks {
			b.WriteString(c.Text)
			b.WriteString("\n")
		}
	}

	text := b.String()
	if maxChars <= 0 || len(text) <= maxChars {
		return text, false
	}
	return truncate(text, maxChars), true
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
