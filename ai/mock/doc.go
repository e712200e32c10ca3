// Package mock provides test double implementations of AI service interfaces.
//
// This package contains mock implementations of ai.Embedder, ai.Summarizer,
// ai.ImageDescriber and ai.AIProvider for use in unit tests. The mocks allow
// tests to run without external AI service dependencies and enable controlled,
// deterministic behavior.
//
// # Usage in Tests
//
//	// Basic usage with default behavior
//	mockProvider := mock.NewMockProvider()
//	vector, err := mockProvider.Embedder().EmbedText(ctx, "test")
//
//	// Custom behavior injection
//	summarizer := mock.NewMockSummarizer()
//	summarizer.SummarizeFunc = func(ctx context.Context, instruction, contextText, question string) (string, error) {
//	    <-ctx.Done()
//	    return "", ctx.Err()
//	}
//
//	// Check call counts
//	count := summarizer.CallCount()
//
// # Default Behavior
//
//   - MockEmbedder: Returns deterministic bag-of-words vectors, so texts that
//     share words score higher than texts that don't
//   - MockSummarizer: Returns the first sentence of the context
//   - MockImageDescriber: Returns a fixed description naming the MIME type
//   - MockProvider: Aggregates the three mocks
package mock
