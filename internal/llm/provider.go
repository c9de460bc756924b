// Package llm implements the LLM Gateway (spec §4.1): a uniform
// capability set — structured completion and token streaming — over
// multiple model families, selected by a plug-in-by-id map the same
// way the teacher's OpenClaw adapter selects a transport by mode.
package llm

import (
	"context"

	"github.com/watershed-arts/basin/internal/errclass"
)

// Message is one entry of a conversation, matching spec §3's
// {role, content} shape.
type Message struct {
	Role    string // "system", "user", "assistant"
	Content string
}

// StructuredResult is the schema the orchestrator asks every slot to
// fill in during Turn 1/2/3: {text, voice_profile}, with Turn 2 adding
// targetSlotId.
type StructuredResult struct {
	Text         string `json:"text"`
	VoiceProfile string `json:"voice_profile"`
	TargetSlotId int    `json:"target_slot_id,omitempty"`
}

// DeltaFunc receives streamed tokens as they arrive.
type DeltaFunc func(delta string) error

// Provider is a concrete model-family backend: Anthropic, OpenAI, or
// a mock used in tests. Implementations are selected purely by the
// AgentId -> provider/model lookup in internal/agent.
type Provider interface {
	StructuredComplete(ctx context.Context, messages []Message, schemaHint string, params Params) (StructuredResult, error)
	StreamTokens(ctx context.Context, messages []Message, params Params, onDelta DeltaFunc) (string, error)
}

// Params carries the per-call tuning the orchestrator applies
// uniformly across providers.
type Params struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// ClassifiedError wraps a provider failure with its taxonomy class, so
// errclass.Classify can recover it via errors.As.
type ClassifiedError struct {
	class errclass.Class
	err   error
}

func NewClassifiedError(class errclass.Class, err error) *ClassifiedError {
	return &ClassifiedError{class: class, err: err}
}

func (e *ClassifiedError) Error() string       { return e.err.Error() }
func (e *ClassifiedError) Unwrap() error       { return e.err }
func (e *ClassifiedError) Class() errclass.Class { return e.class }
