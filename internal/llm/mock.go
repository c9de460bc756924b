package llm

import (
	"context"
	"encoding/json"
	"strings"
)

// MockProvider gives deterministic replies for tests and for local
// development without provider API keys, mirroring the teacher's
// MockAdapter fallback.
type MockProvider struct{}

func NewMockProvider() *MockProvider { return &MockProvider{} }

func (p *MockProvider) StructuredComplete(ctx context.Context, messages []Message, schemaHint string, params Params) (StructuredResult, error) {
	select {
	case <-ctx.Done():
		return StructuredResult{}, ctx.Err()
	default:
	}
	last := lastUserContent(messages)
	text := "the water holds " + last
	result := StructuredResult{Text: text, VoiceProfile: "friendly_casual"}
	if strings.Contains(schemaHint, "target_slot_id") {
		result.TargetSlotId = 1
	}
	return result, nil
}

func (p *MockProvider) StreamTokens(ctx context.Context, messages []Message, params Params, onDelta DeltaFunc) (string, error) {
	last := lastUserContent(messages)
	text := "the water holds " + last
	if onDelta != nil {
		for _, word := range strings.Fields(text) {
			if err := onDelta(word + " "); err != nil {
				return text, err
			}
		}
	}
	return text, nil
}

func lastUserContent(messages []Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return messages[i].Content
		}
	}
	return ""
}

// SchemaHint describes the JSON shape a structured_complete call must
// return, appended to the prompt so providers without native
// structured-output support still produce parseable JSON.
func SchemaHint(v any) string {
	b, _ := json.Marshal(v)
	return string(b)
}
