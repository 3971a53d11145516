package oracle

import (
	"context"
	"sync"
)

// MockOracle is a scriptable Oracle implementation for testing. Responses
// can be driven by an override func or queued per call order; all calls are
// tracked.
type MockOracle struct {
	GenerateFunc func(ctx context.Context, prompt string, role Role, opts Options) (*Response, error)

	// Track calls for testing
	GenerateCalls []GenerateCall

	queued []queuedResponse
	mu     sync.Mutex // protects all fields above
}

type GenerateCall struct {
	Prompt string
	Role   Role
	Opts   Options
}

type queuedResponse struct {
	resp *Response
	err  error
}

var _ Oracle = (*MockOracle)(nil)

// NewMockOracle creates a new mock oracle.
func NewMockOracle() *MockOracle {
	return &MockOracle{
		GenerateCalls: make([]GenerateCall, 0),
	}
}

// Generate records the call and returns, in order of precedence: the
// override func result, the next queued response, or a generic success.
func (m *MockOracle) Generate(ctx context.Context, prompt string, role Role, opts Options) (*Response, error) {
	m.mu.Lock()
	m.GenerateCalls = append(m.GenerateCalls, GenerateCall{Prompt: prompt, Role: role, Opts: opts})
	fn := m.GenerateFunc
	var next *queuedResponse
	if fn == nil && len(m.queued) > 0 {
		next = &m.queued[0]
		m.queued = m.queued[1:]
	}
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, prompt, role, opts)
	}
	if next != nil {
		return next.resp, next.err
	}
	return &Response{Text: "{}", FinishReason: "stop"}, nil
}

// QueueResponse appends a canned response for the next unscripted call.
func (m *MockOracle) QueueResponse(text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queued = append(m.queued, queuedResponse{resp: &Response{Text: text, FinishReason: "stop"}})
}

// QueueError appends an error result for the next unscripted call.
func (m *MockOracle) QueueError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queued = append(m.queued, queuedResponse{err: err})
}

// SetGenerateError makes every call fail with err.
func (m *MockOracle) SetGenerateError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GenerateFunc = func(ctx context.Context, prompt string, role Role, opts Options) (*Response, error) {
		return nil, err
	}
}

// Calls returns a copy of the tracked calls.
func (m *MockOracle) Calls() []GenerateCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	calls := make([]GenerateCall, len(m.GenerateCalls))
	copy(calls, m.GenerateCalls)
	return calls
}

// Reset clears call tracking and queued responses.
func (m *MockOracle) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GenerateCalls = make([]GenerateCall, 0)
	m.queued = nil
	m.GenerateFunc = nil
}
