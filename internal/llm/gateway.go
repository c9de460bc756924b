package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/watershed-arts/basin/internal/agent"
	"github.com/watershed-arts/basin/internal/errclass"
	"github.com/watershed-arts/basin/internal/reliability"
)

// Gateway resolves an AgentId to a concrete Provider and retries
// idempotent transient failures (network, timeout, rate_limit) with
// bounded attempts and exponential backoff, per spec §4.1/§7. Other
// failure classes surface immediately; the Gateway never retries at a
// higher level than this.
type Gateway struct {
	providers map[string]Provider // keyed by agent.Info.Provider ("anthropic", "openai", "mock")
	retries   int
	base      time.Duration
	cap       time.Duration
}

// NewGateway builds a Gateway over the given provider-name -> Provider
// map. retries is the bounded attempt count (default 3 per spec §7).
func NewGateway(providers map[string]Provider, retries int) *Gateway {
	return &Gateway{
		providers: providers,
		retries:   retries,
		base:      200 * time.Millisecond,
		cap:       4 * time.Second,
	}
}

func (g *Gateway) providerFor(id agent.AgentId) (Provider, Params, error) {
	info, ok := agent.Lookup(id)
	if !ok {
		return nil, Params{}, fmt.Errorf("unknown agent id %q", id)
	}
	p, ok := g.providers[info.Provider]
	if !ok {
		return nil, Params{}, fmt.Errorf("no provider registered for %q", info.Provider)
	}
	return p, Params{Model: info.Model}, nil
}

// StructuredComplete resolves id's provider and retries transient
// classes with bounded attempts.
func (g *Gateway) StructuredComplete(ctx context.Context, id agent.AgentId, messages []Message, schemaHint string, temperature float64, maxTokens int) (StructuredResult, errclass.Class, error) {
	provider, params, err := g.providerFor(id)
	if err != nil {
		return StructuredResult{}, errclass.Unknown, err
	}
	params.Temperature = temperature
	params.MaxTokens = maxTokens

	var lastErr error
	var lastClass errclass.Class
	attempts := g.retries
	if attempts < 1 {
		attempts = 1
	}
	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := provider.StructuredComplete(ctx, messages, schemaHint, params)
		if err == nil {
			return result, "", nil
		}
		class := errclass.Classify(err)
		lastErr, lastClass = err, class
		if !reliability.IsRetryableClass(class) || attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return StructuredResult{}, errclass.Timeout, ctx.Err()
		case <-time.After(reliability.ExponentialBackoff(attempt, g.base, g.cap)):
		}
	}
	if lastClass == "" {
		lastClass = errclass.Unknown
	}
	return StructuredResult{}, lastClass, lastErr
}

// StreamTokens resolves id's provider and streams deltas without
// retrying mid-stream (a partially streamed response cannot be safely
// retried; the caller decides whether to fall back).
func (g *Gateway) StreamTokens(ctx context.Context, id agent.AgentId, messages []Message, temperature float64, maxTokens int, onDelta DeltaFunc) (string, errclass.Class, error) {
	provider, params, err := g.providerFor(id)
	if err != nil {
		return "", errclass.Unknown, err
	}
	params.Temperature = temperature
	params.MaxTokens = maxTokens
	text, err := provider.StreamTokens(ctx, messages, params, onDelta)
	if err != nil {
		return "", errclass.Classify(err), err
	}
	return text, "", nil
}
