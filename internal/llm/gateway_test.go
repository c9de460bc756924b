package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/watershed-arts/basin/internal/agent"
	"github.com/watershed-arts/basin/internal/errclass"
)

type flakyProvider struct {
	failuresLeft int
	class        errclass.Class
	calls        int
}

func (p *flakyProvider) StructuredComplete(ctx context.Context, messages []Message, schemaHint string, params Params) (StructuredResult, error) {
	p.calls++
	if p.failuresLeft > 0 {
		p.failuresLeft--
		return StructuredResult{}, NewClassifiedError(p.class, errors.New("transient"))
	}
	return StructuredResult{Text: "ok", VoiceProfile: "friendly_casual"}, nil
}

func (p *flakyProvider) StreamTokens(ctx context.Context, messages []Message, params Params, onDelta DeltaFunc) (string, error) {
	return "", nil
}

func TestGatewayRetriesRetryableClass(t *testing.T) {
	provider := &flakyProvider{failuresLeft: 2, class: errclass.Network}
	g := NewGateway(map[string]Provider{"anthropic": provider}, 3)

	result, class, err := g.StructuredComplete(context.Background(), agent.AgentRiver, nil, "{}", 0.5, 100)
	if err != nil {
		t.Fatalf("StructuredComplete() error = %v", err)
	}
	if class != "" {
		t.Fatalf("class = %q, want empty on eventual success", class)
	}
	if result.Text != "ok" {
		t.Fatalf("Text = %q, want %q", result.Text, "ok")
	}
	if provider.calls != 3 {
		t.Fatalf("calls = %d, want 3 (2 failures + 1 success)", provider.calls)
	}
}

func TestGatewayDoesNotRetryNonRetryableClass(t *testing.T) {
	provider := &flakyProvider{failuresLeft: 1, class: errclass.ServerError}
	g := NewGateway(map[string]Provider{"anthropic": provider}, 3)

	_, class, err := g.StructuredComplete(context.Background(), agent.AgentRiver, nil, "{}", 0.5, 100)
	if err == nil {
		t.Fatalf("expected error, got nil")
	}
	if class != errclass.ServerError {
		t.Fatalf("class = %q, want %q", class, errclass.ServerError)
	}
	if provider.calls != 1 {
		t.Fatalf("calls = %d, want 1 (no retry on non-retryable class)", provider.calls)
	}
}

func TestGatewayStopsAfterBoundedAttempts(t *testing.T) {
	provider := &flakyProvider{failuresLeft: 10, class: errclass.RateLimit}
	g := NewGateway(map[string]Provider{"anthropic": provider}, 2)
	g.base = 0

	_, class, err := g.StructuredComplete(context.Background(), agent.AgentRiver, nil, "{}", 0.5, 100)
	if err == nil {
		t.Fatalf("expected error after exhausting attempts")
	}
	if class != errclass.RateLimit {
		t.Fatalf("class = %q, want %q", class, errclass.RateLimit)
	}
	if provider.calls != 2 {
		t.Fatalf("calls = %d, want 2 (bounded by retries=2)", provider.calls)
	}
}

func TestGatewayUnknownAgentErrors(t *testing.T) {
	g := NewGateway(map[string]Provider{}, 3)
	_, _, err := g.StructuredComplete(context.Background(), agent.AgentId("nope"), nil, "{}", 0.5, 100)
	if err == nil {
		t.Fatalf("expected error for unknown agent id")
	}
}

func TestGatewayMissingProviderErrors(t *testing.T) {
	g := NewGateway(map[string]Provider{}, 3)
	_, _, err := g.StructuredComplete(context.Background(), agent.AgentRiver, nil, "{}", 0.5, 100)
	if err == nil {
		t.Fatalf("expected error for unregistered provider")
	}
}
