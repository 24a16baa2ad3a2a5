package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"
)

const MockClientName = "mock"

// MockClient is an LLMClient for testing.
// Responses holds one canned JSON document per expected call, consumed in
// order; when exhausted, the last entry repeats.
type MockClient struct {
	Latency    time.Duration
	ShouldFail bool
	FailAfter  int // Fail requests after N successes (0 = never)
	Responses  []json.RawMessage

	requestCount atomic.Int64
}

// NewMockClient creates a new mock client with sensible defaults.
func NewMockClient(responses ...json.RawMessage) *MockClient {
	return &MockClient{Responses: responses}
}

// Name returns the client identifier.
func (c *MockClient) Name() string {
	return MockClientName
}

// RequestsPerMinute returns the RPM limit for rate limiting.
func (c *MockClient) RequestsPerMinute() int {
	return 600
}

// RequestCount reports how many Chat calls have been made.
func (c *MockClient) RequestCount() int {
	return int(c.requestCount.Load())
}

// Chat returns the next canned response.
func (c *MockClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	count := c.requestCount.Add(1)

	if c.Latency > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.Latency):
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if c.ShouldFail {
		return nil, fmt.Errorf("mock client configured to fail")
	}
	if c.FailAfter > 0 && int(count) > c.FailAfter {
		return nil, fmt.Errorf("mock client failing after %d requests", c.FailAfter)
	}

	if len(c.Responses) == 0 {
		return nil, fmt.Errorf("mock client has no canned responses")
	}
	idx := int(count) - 1
	if idx >= len(c.Responses) {
		idx = len(c.Responses) - 1
	}
	body := c.Responses[idx]

	result := &ChatResult{
		Content:       string(body),
		PromptTokens:  100,
		TotalTokens:   150,
		ExecutionTime: c.Latency,
		Provider:      MockClientName,
		ModelUsed:     req.Model,
	}
	if err := finalizeStructuredResult(result, req.ResponseFormat); err != nil {
		return nil, err
	}
	return result, nil
}
