// Package mock provides a test double for the llm.Provider interface.
//
// Use Provider in unit tests to verify that the relay sends correct
// CompletionRequests and to feed controlled responses without a live LLM
// backend. All fields are safe to set before calling any method; mutating them
// during a concurrent call is the caller's responsibility.
//
// Example:
//
//	p := &mock.Provider{
//	    Results: []mock.CompleteResult{{Resp: &llm.CompletionResponse{Content: "Hello!"}}},
//	}
//	resp, err := p.Complete(ctx, req)
package mock

import (
	"context"
	"sync"

	"github.com/AnshuAditya03/Anshu-backend/pkg/provider/llm"
)

// CompleteCall records a single invocation of Complete.
type CompleteCall struct {
	// Ctx is the context passed to Complete.
	Ctx context.Context
	// Req is the CompletionRequest passed to Complete.
	Req llm.CompletionRequest
}

// CompleteResult is one scripted outcome for a Complete call.
type CompleteResult struct {
	Resp *llm.CompletionResponse
	Err  error
}

// Provider is a mock implementation of llm.Provider.
//
// Each Complete call consumes the next entry of Results; when Results is
// exhausted the last entry repeats, so a single-entry script behaves like a
// fixed response. A nil/empty Results returns a zero response.
type Provider struct {
	mu sync.Mutex

	// Results is the scripted sequence of outcomes, consumed in order.
	Results []CompleteResult

	// CompleteFunc, when non-nil, overrides Results entirely.
	CompleteFunc func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)

	// Calls records every invocation of Complete in order.
	Calls []CompleteCall

	next int
}

var _ llm.Provider = (*Provider)(nil)

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	p.Calls = append(p.Calls, CompleteCall{Ctx: ctx, Req: req})
	if p.CompleteFunc != nil {
		fn := p.CompleteFunc
		p.mu.Unlock()
		return fn(ctx, req)
	}
	if len(p.Results) == 0 {
		p.mu.Unlock()
		return &llm.CompletionResponse{}, nil
	}
	r := p.Results[p.next]
	if p.next < len(p.Results)-1 {
		p.next++
	}
	p.mu.Unlock()
	return r.Resp, r.Err
}

// CallCount returns the number of Complete invocations so far.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}
