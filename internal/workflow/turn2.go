package workflow

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/watershed-arts/basin/internal/agent"
	"github.com/watershed-arts/basin/internal/errclass"
	"github.com/watershed-arts/basin/internal/llm"
	"github.com/watershed-arts/basin/internal/protocol"
	"github.com/watershed-arts/basin/internal/stream"
)

// commentOutcome extends slotOutcome with the peer this comment
// targets, carried forward into Turn 3's fan-in grouping.
type commentOutcome struct {
	slotOutcome
	target agent.SlotId
}

// commentSchemaHint is built from a non-zero TargetSlotId, since the
// field carries json:"target_slot_id,omitempty" and would vanish from
// the hint entirely at its zero value.
var commentSchemaHint = llm.SchemaHint(llm.StructuredResult{Text: "...", VoiceProfile: "friendly_casual", TargetSlotId: 1})

// runTurn2 implements spec §4.5 Turn 2 — Comment: every turn-1
// survivor picks one peer (via the deterministic shuffle) to comment
// on, retries once on an invalid target, then falls back to the first
// shuffled peer.
func (o *Orchestrator) runTurn2(ctx context.Context, sid string, slots []agent.SlotAssignment, turn1 map[agent.SlotId]*slotOutcome, successes []agent.SlotId, q *stream.Queue) map[agent.SlotId]*commentOutcome {
	q.Push(protocol.TurnStart{Type: protocol.TypeTurnStart, SessionID: sid, TurnIndex: 2})

	bySlot := make(map[agent.SlotId]agent.SlotAssignment, len(slots))
	for _, sa := range slots {
		bySlot[sa.SlotId] = sa
	}

	results := make(map[agent.SlotId]*commentOutcome, len(successes))
	g, gctx := errgroup.WithContext(ctx)
	for _, slot := range successes {
		slot := slot
		g.Go(func() error {
			peers := make([]agent.SlotId, 0, len(successes)-1)
			for _, p := range successes {
				if p != slot {
					peers = append(peers, p)
				}
			}
			if len(peers) == 0 {
				return nil
			}
			outcome := o.commentOne(gctx, sid, bySlot[slot], peers, turn1, bySlot, q)
			results[slot] = outcome
			return nil
		})
	}
	_ = g.Wait()

	successCount := 0
	for _, c := range results {
		if c != nil && !c.failed {
			successCount++
		}
	}
	q.Push(protocol.TurnDone{Type: protocol.TypeTurnDone, SessionID: sid, TurnIndex: 2, SlotCount: successCount})
	o.Renderer.TurnComplete(ctx, sid, 2)
	return results
}

func (o *Orchestrator) commentOne(ctx context.Context, sid string, sa agent.SlotAssignment, peers []agent.SlotId, turn1 map[agent.SlotId]*slotOutcome, bySlot map[agent.SlotId]agent.SlotAssignment, q *stream.Queue) *commentOutcome {
	outcome := &commentOutcome{slotOutcome: slotOutcome{assignment: sa}}
	q.Push(protocol.SlotStart{Type: protocol.TypeSlotStart, SessionID: sid, TurnIndex: 2, SlotID: sa.SlotId, Kind: "comment"})

	ordered := shufflePeers(sid, sa.SlotId, peers)

	var b strings.Builder
	b.WriteString("Peer pool, pick one slot to comment on:\n")
	for _, p := range ordered {
		fmt.Fprintf(&b, "- slot %d (%s): %s\n", p, bySlot[p].AgentId, turn1[p].text)
	}
	o.Conv.AppendUser(sa.SlotId, b.String())
	history := o.Conv.History(sa.SlotId)

	target, text, voice, failClass, err := o.requestComment(ctx, sa, history, ordered)
	if err != nil {
		outcome.failed = true
		outcome.errClass = classOrUnknown(failClass)
		if o.Metrics != nil {
			o.Metrics.ObserveProviderError("llm", string(outcome.errClass))
		}
		q.Push(protocol.SlotError{Type: protocol.TypeSlotError, SessionID: sid, TurnIndex: 2, SlotID: sa.SlotId, Kind: "comment", Error: string(outcome.errClass)})
		return outcome
	}

	outcome.target = target
	outcome.voice = voice
	comment := fmt.Sprintf("[comment to slot %d] %s", target, text)
	o.Conv.AppendAssistant(sa.SlotId, comment)

	targetCopy := target
	q.Push(protocol.SlotDone{
		Type: protocol.TypeSlotDone, SessionID: sid, TurnIndex: 2, SlotID: sa.SlotId,
		Kind: "comment", Text: text, VoiceProfile: string(voice), TargetSlotID: &targetCopy,
	})
	outcome.text = text

	o.renderAndDecompose(ctx, sid, 2, "comment", sa, &outcome.slotOutcome, &targetCopy, q)
	return outcome
}

// requestComment calls the gateway once, validates targetSlotId is
// one of peers, retries once on an invalid target, then deterministically
// falls back to peers[0] (peers is already shuffle-ordered).
func (o *Orchestrator) requestComment(ctx context.Context, sa agent.SlotAssignment, history []llm.Message, peers []agent.SlotId) (agent.SlotId, string, agent.VoiceProfile, errclass.Class, error) {
	var lastText string
	var lastVoice agent.VoiceProfile
	for attempt := 0; attempt < 2; attempt++ {
		result, class, err := o.Gateway.StructuredComplete(ctx, sa.AgentId, history, commentSchemaHint, o.Temperature, o.MaxTokens)
		if err != nil {
			if attempt == 1 {
				return 0, "", "", class, err
			}
			continue
		}
		lastText, lastVoice = result.Text, agent.VoiceProfile(result.VoiceProfile)
		target := agent.SlotId(result.TargetSlotId)
		if containsSlot(peers, target) {
			return target, lastText, lastVoice, "", nil
		}
	}
	// Both attempts returned a mis-routed target: keep the most recent
	// generated text, fall back to the first shuffled peer (spec §4.5
	// Turn 2 step 2).
	return peers[0], lastText, lastVoice, "", nil
}

func containsSlot(slots []agent.SlotId, s agent.SlotId) bool {
	for _, v := range slots {
		if v == s {
			return true
		}
	}
	return false
}
