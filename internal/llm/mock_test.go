package llm

import (
	"context"
	"strings"
	"testing"
)

func TestMockProviderStructuredCompleteEchoesLastUserMessage(t *testing.T) {
	p := NewMockProvider()
	messages := []Message{
		{Role: "system", Content: "you are a speaker"},
		{Role: "user", Content: "hello basin"},
	}
	result, err := p.StructuredComplete(context.Background(), messages, "{}", Params{})
	if err != nil {
		t.Fatalf("StructuredComplete() error = %v", err)
	}
	if !strings.Contains(result.Text, "hello basin") {
		t.Fatalf("Text = %q, want it to contain the last user message", result.Text)
	}
	if result.VoiceProfile != "friendly_casual" {
		t.Fatalf("VoiceProfile = %q, want friendly_casual", result.VoiceProfile)
	}
}

func TestMockProviderSetsTargetSlotIdWhenHintRequestsIt(t *testing.T) {
	p := NewMockProvider()
	messages := []Message{{Role: "user", Content: "hi"}}
	result, err := p.StructuredComplete(context.Background(), messages, commentSchemaHintForTest(), Params{})
	if err != nil {
		t.Fatalf("StructuredComplete() error = %v", err)
	}
	if result.TargetSlotId == 0 {
		t.Fatalf("TargetSlotId = 0, want nonzero when schema hint requests it")
	}
}

func commentSchemaHintForTest() string {
	return SchemaHint(StructuredResult{Text: "...", VoiceProfile: "friendly_casual", TargetSlotId: 1})
}

func TestMockProviderStreamTokensDeliversDeltas(t *testing.T) {
	p := NewMockProvider()
	var chunks []string
	_, err := p.StreamTokens(context.Background(), []Message{{Role: "user", Content: "flow"}}, Params{}, func(delta string) error {
		chunks = append(chunks, delta)
		return nil
	})
	if err != nil {
		t.Fatalf("StreamTokens() error = %v", err)
	}
	if len(chunks) == 0 {
		t.Fatalf("expected at least one streamed delta")
	}
}

func TestSchemaHintRoundTripsStructuredResultShape(t *testing.T) {
	hint := SchemaHint(StructuredResult{Text: "...", VoiceProfile: "friendly_casual"})
	if !strings.Contains(hint, "voice_profile") {
		t.Fatalf("hint = %q, want it to mention voice_profile", hint)
	}
	if strings.Contains(hint, "target_slot_id") {
		t.Fatalf("hint = %q, want target_slot_id omitted at zero value", hint)
	}
}
