// Package testutil provides test doubles for the llm package.
package testutil

import (
	"context"
	"sync"

	"github.com/c360studio/insurekb/internal/llm"
)

// MockCompleter is a thread-safe llm.Completer for testing extraction,
// relationship, and graphrag callers without an HTTP server.
//
// Usage:
//
//	mock := &MockCompleter{
//	    Responses: []*llm.Response{
//	        {Content: `{"policy_number": "POL-001"}`, Model: "test-model"},
//	    },
//	}
type MockCompleter struct {
	mu            sync.Mutex
	Responses     []*llm.Response // returned in sequence
	Err           error           // takes precedence over Responses
	callCount     int
	responseIndex int
	capturedReqs  []llm.Request
}

// Complete implements llm.Completer.
func (m *MockCompleter) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.callCount++
	m.capturedReqs = append(m.capturedReqs, req)

	if m.Err != nil {
		return nil, m.Err
	}

	if m.responseIndex < len(m.Responses) {
		resp := m.Responses[m.responseIndex]
		m.responseIndex++
		return resp, nil
	}

	return &llm.Response{Content: "", Model: "test-model"}, nil
}

// CallCount returns the number of times Complete() was called.
func (m *MockCompleter) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// CapturedRequests returns every request passed to Complete(), in order.
func (m *MockCompleter) CapturedRequests() []llm.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.capturedReqs
}

// Reset clears call count, captured requests, and response index so
// the same mock can be reused across subtests.
func (m *MockCompleter) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount = 0
	m.responseIndex = 0
	m.capturedReqs = nil
}
