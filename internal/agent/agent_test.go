package agent

import "testing"

func TestLookupKnownAgent(t *testing.T) {
	info, ok := Lookup(AgentRiver)
	if !ok {
		t.Fatalf("Lookup(AgentRiver) ok = false, want true")
	}
	if info.Provider != "anthropic" {
		t.Fatalf("River provider = %q, want anthropic", info.Provider)
	}
}

func TestLookupUnknownAgent(t *testing.T) {
	if _, ok := Lookup(AgentId("nonexistent")); ok {
		t.Fatalf("Lookup(nonexistent) ok = true, want false")
	}
}

func TestAllReturnsStableDeclaredOrder(t *testing.T) {
	all := All()
	if len(all) != 6 {
		t.Fatalf("len(All()) = %d, want 6", len(all))
	}
	want := []AgentId{AgentRiver, AgentStone, AgentReed, AgentEcho, AgentTide, AgentCurrent}
	for i, info := range all {
		if info.ID != want[i] {
			t.Fatalf("All()[%d].ID = %q, want %q", i, info.ID, want[i])
		}
	}
}

func TestResolveVoiceKnownProfile(t *testing.T) {
	settings, resolved, fellBack := ResolveVoice(VoiceCalmSoothing)
	if fellBack {
		t.Fatalf("fellBack = true, want false for known profile")
	}
	if resolved != VoiceCalmSoothing {
		t.Fatalf("resolved = %q, want %q", resolved, VoiceCalmSoothing)
	}
	if settings.ProviderVoiceID == "" {
		t.Fatalf("ProviderVoiceID should not be empty")
	}
}

func TestResolveVoiceUnknownProfileFallsBack(t *testing.T) {
	_, resolved, fellBack := ResolveVoice(VoiceProfile("not_a_real_profile"))
	if !fellBack {
		t.Fatalf("fellBack = false, want true for unknown profile")
	}
	if resolved != FallbackVoiceProfile {
		t.Fatalf("resolved = %q, want fallback %q", resolved, FallbackVoiceProfile)
	}
}
