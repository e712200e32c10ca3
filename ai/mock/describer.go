package mock

import (
	"context"
	"sync"
)

// MockImageDescriber is a test double for ai.ImageDescriber.
type MockImageDescriber struct {
	// DescribeImageFunc is called by DescribeImage if set.
	DescribeImageFunc func(ctx context.Context, mimeType string, data []byte) (string, error)

	mu        sync.Mutex
	callCount int
}

// NewMockImageDescriber creates a mock image describer.
func NewMockImageDescriber() *MockImageDescriber {
	return &MockImageDescriber{}
}

// DescribeImage returns a fixed description unless DescribeImageFunc is set.
func (m *MockImageDescriber) DescribeImage(ctx context.Context, mimeType string, data []byte) (string, error) {
	m.mu.Lock()
	m.callCount++
	m.mu.Unlock()

	if m.DescribeImageFunc != nil {
		return m.DescribeImageFunc(ctx, mimeType, data)
	}
	return "An image of type " + mimeType + ".", nil
}

// CallCount returns the number of DescribeImage calls.
func (m *MockImageDescriber) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}
