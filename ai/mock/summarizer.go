package mock

import (
	"context"
	"strings"
	"sync"
)

// MockSummarizer is a test double for ai.Summarizer.
type MockSummarizer struct {
	// SummarizeFunc is called by Summarize if set.
	SummarizeFunc func(ctx context.Context, instruction, contextText, question string) (string, error)

	mu        sync.Mutex
	callCount int
	last      string
}

// NewMockSummarizer creates a mock summarizer that echoes the first sentence of the context.
func NewMockSummarizer() *MockSummarizer {
	return &MockSummarizer{}
}

// Summarize returns the first sentence of contextText unless SummarizeFunc is set.
func (m *MockSummarizer) Summarize(ctx context.Context, instruction, contextText, question string) (string, error) {
	m.mu.Lock()
	m.callCount++
	m.last = instruction
	m.mu.Unlock()

	if m.SummarizeFunc != nil {
		return m.SummarizeFunc(ctx, instruction, contextText, question)
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}
	text := strings.TrimSpace(contextText)
	if i := strings.Index(text, ". "); i >= 0 {
		text = text[:i+1]
	}
	return text, nil
}

// CallCount returns the number of Summarize calls.
func (m *MockSummarizer) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// LastInstruction returns the instruction passed to the most recent call.
func (m *MockSummarizer) LastInstruction() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}
