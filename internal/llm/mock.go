package llm

import (
	"context"
	"fmt"
	"sync"
)

// MockProvider replays scripted responses, for tests.
type MockProvider struct {
	mu        sync.Mutex
	responses []*ChatResponse
	err       error
	requests  []ChatRequest

	// ChatFunc overrides the scripted responses when set.
	ChatFunc func(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// NewMockProvider returns a provider that answers with responses in order.
func NewMockProvider(responses ...*ChatResponse) *MockProvider {
	return &MockProvider{responses: responses}
}

// SetError makes every call fail with err.
func (p *MockProvider) SetError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// Requests returns the requests received so far.
func (p *MockProvider) Requests() []ChatRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ChatRequest(nil), p.requests...)
}

// CallCount returns the number of Chat calls made.
func (p *MockProvider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

// Chat implements Provider.
func (p *MockProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	p.mu.Lock()
	call := len(p.requests)
	p.requests = append(p.requests, req)
	fn, err := p.ChatFunc, p.err
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	if err != nil {
		return nil, err
	}
	if call >= len(p.responses) {
		return nil, fmt.Errorf("mock provider: no response scripted for call %d", call+1)
	}
	return p.responses[call], nil
}
