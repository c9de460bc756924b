package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/watershed-arts/basin/internal/errclass"
)

// OpenAIProvider implements Provider over the Chat Completions API.
// It is the second concrete plug-in behind the Gateway's
// AgentId -> provider/model lookup (spec §4.1, §9).
type OpenAIProvider struct {
	client oai.Client
}

func NewOpenAIProvider(apiKey string) *OpenAIProvider {
	return &OpenAIProvider{client: oai.NewClient(option.WithAPIKey(apiKey))}
}

func (p *OpenAIProvider) StructuredComplete(ctx context.Context, messages []Message, schemaHint string, params Params) (StructuredResult, error) {
	msgs := toOpenAIMessages(messages)
	msgs = append(msgs, oai.UserMessage("Respond ONLY with JSON matching this shape: "+schemaHint))

	req := oai.ChatCompletionNewParams{
		Model:    oai.ChatModel(params.Model),
		Messages: msgs,
	}
	if params.MaxTokens > 0 {
		req.MaxTokens = oai.Int(int64(params.MaxTokens))
	}
	if params.Temperature > 0 {
		req.Temperature = oai.Float(params.Temperature)
	}

	resp, err := p.client.Chat.Completions.New(ctx, req)
	if err != nil {
		return StructuredResult{}, classifyOpenAIErr(err)
	}
	if len(resp.Choices) == 0 {
		return StructuredResult{}, NewClassifiedError(errclass.Unknown, fmt.Errorf("empty choices in response"))
	}

	var result StructuredResult
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		return StructuredResult{}, NewClassifiedError(errclass.Unknown, fmt.Errorf("malformed structured response: %w", err))
	}
	return result, nil
}

func (p *OpenAIProvider) StreamTokens(ctx context.Context, messages []Message, params Params, onDelta DeltaFunc) (string, error) {
	req := oai.ChatCompletionNewParams{
		Model:    oai.ChatModel(params.Model),
		Messages: toOpenAIMessages(messages),
	}
	if params.MaxTokens > 0 {
		req.MaxTokens = oai.Int(int64(params.MaxTokens))
	}
	if params.Temperature > 0 {
		req.Temperature = oai.Float(params.Temperature)
	}

	stream := p.client.Chat.Completions.NewStreaming(ctx, req)
	var full strings.Builder
	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		full.WriteString(delta)
		if onDelta != nil {
			if err := onDelta(delta); err != nil {
				return full.String(), err
			}
		}
	}
	if err := stream.Err(); err != nil {
		return full.String(), classifyOpenAIErr(err)
	}
	return full.String(), nil
}

func toOpenAIMessages(messages []Message) []oai.ChatCompletionMessageParamUnion {
	out := make([]oai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "system":
			out = append(out, oai.SystemMessage(m.Content))
		case "user":
			out = append(out, oai.UserMessage(m.Content))
		case "assistant":
			out = append(out, oai.AssistantMessage(m.Content))
		}
	}
	return out
}

func classifyOpenAIErr(err error) error {
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
