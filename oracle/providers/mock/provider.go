// Package mock provides an oracle.Provider test double, following
// ai/providers/mock/provider.go's canned-response idiom.
package mock

import (
	"context"
	"sync"
)

// Provider returns a fixed queue of responses, recording every prompt
// it was called with for assertions.
type Provider struct {
	mu          sync.Mutex
	Responses   []string
	index       int
	Err         error
	LastPrompt  string
	CallCount   int
	StreamParts []string
}

// Generate returns the next queued response, cycling if exhausted.
func (p *Provider) Generate(ctx context.Context, prompt, systemPrompt string, temperature float64) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.LastPrompt = prompt
	p.CallCount++
	if p.Err != nil {
		return "", p.Err
	}
	if len(p.Responses) == 0 {
		return "", nil
	}
	r := p.Responses[p.index%len(p.Responses)]
	p.index++
	return r, nil
}

// Stream emits StreamParts one at a time then closes.
func (p *Provider) Stream(ctx context.Context, prompt, systemPrompt string) (<-chan string, <-chan error) {
	out := make(chan string, len(p.StreamParts))
	errc := make(chan error, 1)
	for _, part := range p.StreamParts {
		out <- part
	}
	close(out)
	if p.Err != nil {
		errc <- p.Err
	}
	close(errc)
	return out, errc
}
