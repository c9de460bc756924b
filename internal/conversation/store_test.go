package conversation

import (
	"testing"

	"github.com/watershed-arts/basin/internal/agent"
)

const (
	slotA agent.SlotId = 1
	slotB agent.SlotId = 2
	slotC agent.SlotId = 3
)

func TestHistorySeedsSystemPromptOnFirstAccess(t *testing.T) {
	s := NewStore("you are the river")
	history := s.History(slotA)
	if len(history) != 1 {
		t.Fatalf("len(History) = %d, want 1", len(history))
	}
	if history[0].Role != "system" || history[0].Content != "you are the river" {
		t.Fatalf("seed message = %+v, want system/you are the river", history[0])
	}
}

func TestAppendUserAndAssistantAccumulate(t *testing.T) {
	s := NewStore("seed")
	s.AppendUser(slotA, "hello")
	s.AppendAssistant(slotA, "hi back")

	history := s.History(slotA)
	if len(history) != 3 {
		t.Fatalf("len(History) = %d, want 3", len(history))
	}
	if history[1].Role != "user" || history[1].Content != "hello" {
		t.Fatalf("history[1] = %+v, want user/hello", history[1])
	}
	if history[2].Role != "assistant" || history[2].Content != "hi back" {
		t.Fatalf("history[2] = %+v, want assistant/hi back", history[2])
	}
}

func TestHistoryIsASnapshotCopy(t *testing.T) {
	s := NewStore("seed")
	s.AppendUser(slotA, "one")
	first := s.History(slotA)
	s.AppendUser(slotA, "two")

	if len(first) != 2 {
		t.Fatalf("first snapshot mutated, len = %d, want 2", len(first))
	}
}

func TestConversationsAreIsolatedPerSlot(t *testing.T) {
	s := NewStore("seed")
	s.AppendUser(slotA, "a says hi")
	s.AppendUser(slotB, "b says hi")

	if got := s.History(slotA); len(got) != 2 || got[1].Content != "a says hi" {
		t.Fatalf("slot A history = %+v, want seed+'a says hi'", got)
	}
	if got := s.History(slotB); len(got) != 2 || got[1].Content != "b says hi" {
		t.Fatalf("slot B history = %+v, want seed+'b says hi'", got)
	}
}

func TestResetAllClearsEveryConversationAndReturnsSortedSlots(t *testing.T) {
	s := NewStore("seed")
	s.AppendUser(slotC, "c")
	s.AppendUser(slotA, "a")

	cleared := s.ResetAll()
	if len(cleared) != 2 || cleared[0] != slotA || cleared[1] != slotC {
		t.Fatalf("ResetAll() = %v, want sorted [SlotA SlotC]", cleared)
	}

	history := s.History(slotA)
	if len(history) != 1 {
		t.Fatalf("after ResetAll, History len = %d, want freshly seeded 1", len(history))
	}
}
