// Package conversation implements the Conversation Store of spec
// §4.2: a process-wide, per-slot, append-only transcript seeded with
// the shared persona system prompt on first access. Cross-request
// continuity is intentional (see SPEC_FULL.md DECISIONS) — the store
// is reset only by explicit ResetAll.
package conversation

import (
	"sort"
	"sync"

	"github.com/watershed-arts/basin/internal/agent"
	"github.com/watershed-arts/basin/internal/llm"
)

// Store holds one conversation per slot, keyed by SlotId. Like the
// teacher's session.Manager, registration (first access) is guarded
// by a single map-level mutex; per-slot content mutation is not
// locked because the orchestrator serialises writes per slot within a
// request (spec §4.2, §5) and concurrent requests against overlapping
// slots are out of scope (spec §9).
type Store struct {
	mu            sync.RWMutex
	conversations map[agent.SlotId]*[]llm.Message
	systemPrompt  string
}

func NewStore(systemPrompt string) *Store {
	return &Store{
		conversations: make(map[agent.SlotId]*[]llm.Message),
		systemPrompt:  systemPrompt,
	}
}

func (s *Store) get(slot agent.SlotId) *[]llm.Message {
	s.mu.RLock()
	c, ok := s.conversations[slot]
	s.mu.RUnlock()
	if ok {
		return c
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.conversations[slot]; ok {
		return c
	}
	seeded := []llm.Message{{Role: "system", Content: s.systemPrompt}}
	c = &seeded
	s.conversations[slot] = c
	return c
}

// AppendUser appends a user message to slot's conversation.
func (s *Store) AppendUser(slot agent.SlotId, text string) {
	c := s.get(slot)
	*c = append(*c, llm.Message{Role: "user", Content: text})
}

// AppendAssistant appends an assistant message to slot's conversation.
func (s *Store) AppendAssistant(slot agent.SlotId, text string) {
	c := s.get(slot)
	*c = append(*c, llm.Message{Role: "assistant", Content: text})
}

// History returns a snapshot copy of slot's conversation.
func (s *Store) History(slot agent.SlotId) []llm.Message {
	c := s.get(slot)
	out := make([]llm.Message, len(*c))
	copy(out, *c)
	return out
}

// ResetAll clears every conversation, returning the slot ids cleared.
func (s *Store) ResetAll() []agent.SlotId {
	s.mu.Lock()
	defer s.mu.Unlock()
	cleared := make([]agent.SlotId, 0, len(s.conversations))
	for slot := range s.conversations {
		cleared = append(cleared, slot)
	}
	s.conversations = make(map[agent.SlotId]*[]llm.Message)
	sort.Slice(cleared, func(i, j int) bool { return cleared[i] < cleared[j] })
	return cleared
}
