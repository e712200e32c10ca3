// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package mock

import "github.com/poiesic/docket/ai"

// MockProvider is a test double for ai.AIProvider.
// It aggregates mock embedder, summarizer and image describer instances.
type MockProvider struct {
	embedder   *MockEmbedder
	summarizer *MockSummarizer
	describer  *MockImageDescriber
}

// NewMockProvider creates a new mock provider with default mock services.
//
// Returns ai.AIProvider interface for consistency with production constructors.
// Use the GetMock accessors to reach concrete types for test assertions.
func NewMockProvider() ai.AIProvider {
	return &MockProvider{
		embedder:   NewMockEmbedder(),
		summarizer: NewMockSummarizer(),
		describer:  NewMockImageDescriber(),
	}
}

// NewMockProviderWithServices creates a mock provider with custom mock services.
// Nil arguments are replaced with default mocks.
func NewMockProviderWithServices(embedder *MockEmbedder, summarizer *MockSummarizer, describer *MockImageDescriber) ai.AIProvider {
	if embedder == nil {
		embedder = NewMockEmbedder()
	}
	if summarizer == nil {
		summarizer = NewMockSummarizer()
	}
	if describer == nil {
		describer = NewMockImageDescriber()
	}
	return &MockProvider{
		embedder:   embedder,
		summarizer: summarizer,
		describer:  describer,
	}
}

// Embedder returns the mock embedder.
func (p *MockProvider) Embedder() ai.Embedder {
	return p.embedder
}

// Summarizer returns the mock summarizer.
func (p *MockProvider) Summarizer() ai.Summarizer {
	return p.summarizer
}

// ImageDescriber returns the mock image describer.
func (p *MockProvider) ImageDescriber() ai.ImageDescriber {
	return p.describer
}

// Close is a no-op for mock provider.
func (p *MockProvider) Close() error {
	return nil
}

// GetMockEmbedder returns the underlying mock embedder for test assertions.
func (p *MockProvider) GetMockEmbedder() *MockEmbedder {
	return p.embedder
}

// GetMockSummarizer returns the underlying mock summarizer for test assertions.
func (p *MockProvider) GetMockSummarizer() *MockSummarizer {
	return p.summarizer
}

// GetMockImageDescriber returns the underlying mock image describer for test assertions.
func (p *MockProvider) GetMockImageDescriber() *MockImageDescriber {
	return p.describer
}
