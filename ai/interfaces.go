package ai

import "context"

// Embedder generates vector embeddings from text for semantic similarity search.
// Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	// The returned vector represents the semantic meaning of the text.
	// Returns an error if the embedding generation fails.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates vector embeddings for multiple text strings in a batch.
	// Batch processing is more efficient than calling EmbedText multiple times.
	// The returned slice contains embeddings in the same order as the input texts.
	// Returns an error if any embedding generation fails.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Summarizer turns retrieved document text into a short answer.
// Implementations must be thread-safe for concurrent use.
type Summarizer interface {
	// Summarize answers question using only contextText, following instruction.
	// The caller bounds the call with ctx; implementations must honor cancellation.
	Summarize(ctx context.Context, instruction, contextText, question string) (string, error)
}

// ImageDescriber produces a searchable text description of an image.
// Implementations must be thread-safe for concurrent use.
type ImageDescriber interface {
	// DescribeImage returns a description of the image bytes.
	DescribeImage(ctx context.Context, mimeType string, data []byte) (string, error)
}

// AIProvider aggregates AI services for convenient initialization and lifecycle management.
// A provider creates and manages the services, ensuring they share configuration
// and resources appropriately.
type AIProvider interface {
	// Embedder returns the text embedding service.
	Embedder() Embedder

	// Summarizer returns the answer synthesis service.
	Summarizer() Summarizer

	// ImageDescriber returns the image description service.
	ImageDescriber() ImageDescriber

	// Close releases resources held by the provider and its services.
	// After Close is called, the provider and its services should not be used.
	Close() error
}
