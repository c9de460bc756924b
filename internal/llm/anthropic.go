package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/watershed-arts/basin/internal/errclass"
)

// AnthropicProvider implements Provider on top of the Messages API.
// It is one of the two concrete plug-ins behind the Gateway's
// AgentId -> provider/model lookup (spec §4.1, §9).
type AnthropicProvider struct {
	client *sdk.Client
}

func NewAnthropicProvider(apiKey string) *AnthropicProvider {
	c := sdk.NewClient(option.WithAPIKey(apiKey))
	return &AnthropicProvider{client: &c}
}

func (p *AnthropicProvider) StructuredComplete(ctx context.Context, messages []Message, schemaHint string, params Params) (StructuredResult, error) {
	sdkMsgs, system := toAnthropicMessages(messages)
	sdkMsgs = append(sdkMsgs, sdk.NewUserMessage(sdk.NewTextBlock(
		"Respond ONLY with JSON matching this shape: "+schemaHint)))

	req := sdk.MessageNewParams{
		Model:     sdk.Model(params.Model),
		MaxTokens: int64(clampTokens(params.MaxTokens)),
		Messages:  sdkMsgs,
	}
	if system != "" {
		req.System = []sdk.TextBlockParam{{Text: system}}
	}
	if params.Temperature > 0 {
		req.Temperature = sdk.Float(params.Temperature)
	}

	msg, err := p.client.Messages.New(ctx, req)
	if err != nil {
		return StructuredResult{}, classifyAnthropicErr(err)
	}

	text := extractText(msg)
	var result StructuredResult
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &result); err != nil {
		return StructuredResult{}, NewClassifiedError(errclass.Unknown, fmt.Errorf("malformed structured response: %w", err))
	}
	return result, nil
}

func (p *AnthropicProvider) StreamTokens(ctx context.Context, messages []Message, params Params, onDelta DeltaFunc) (string, error) {
	sdkMsgs, system := toAnthropicMessages(messages)
	req := sdk.MessageNewParams{
		Model:     sdk.Model(params.Model),
		MaxTokens: int64(clampTokens(params.MaxTokens)),
		Messages:  sdkMsgs,
	}
	if system != "" {
		req.System = []sdk.TextBlockParam{{Text: system}}
	}
	if params.Temperature > 0 {
		req.Temperature = sdk.Float(params.Temperature)
	}

	stream := p.client.Messages.NewStreaming(ctx, req)
	var full strings.Builder
	for stream.Next() {
		event := stream.Current()
		if delta, ok := event.AsAny().(sdk.ContentBlockDeltaEvent); ok {
			if text := delta.Delta.Text; text != "" {
				full.WriteString(text)
				if onDelta != nil {
					if err := onDelta(text); err != nil {
						return full.String(), err
					}
				}
			}
		}
	}
	if err := stream.Err(); err != nil {
		return full.String(), classifyAnthropicErr(err)
	}
	return full.String(), nil
}

func toAnthropicMessages(messages []Message) ([]sdk.MessageParam, string) {
	var system string
	out := make([]sdk.MessageParam, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "system":
			system = m.Content
		case "user":
			out = append(out, sdk.NewUserMessage(sdk.NewTextBlock(m.Content)))
		case "assistant":
			out = append(out, sdk.NewAssistantMessage(sdk.NewTextBlock(m.Content)))
		}
	}
	return out, system
}

func extractText(msg *sdk.Message) string {
	var b strings.Builder
	for _, block := range msg.Content {
		if text, ok := block.AsAny().(sdk.TextBlock); ok {
			b.WriteString(text.Text)
		}
	}
	return b.String()
}

func clampTokens(n int) int {
	if n <= 0 {
		return 300
	}
	return n
}

func classifyAnthropicErr(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "rate limit") || strings.Contains(msg, "429"):
		return NewClassifiedError(errclass.RateLimit, err)
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline"):
		return NewClassifiedError(errclass.Timeout, err)
	case strings.Contains(msg, "connection") || strings.Contains(msg, "dial"):
		return NewClassifiedError(errclass.Network, err)
	case strings.Contains(msg, "500") || strings.Contains(msg, "502") || strings.Contains(msg, "503"):
		return NewClassifiedError(errclass.ServerError, err)
	default:
		return NewClassifiedError(errclass.Unknown, err)
	}
}
