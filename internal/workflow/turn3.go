package workflow

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/watershed-arts/basin/internal/agent"
	"github.com/watershed-arts/basin/internal/llm"
	"github.com/watershed-arts/basin/internal/protocol"
	"github.com/watershed-arts/basin/internal/stream"
)

const maxCommentsPerTarget = 3

// groupComments buckets turn-2 comments by target slot, capping each
// bucket at maxCommentsPerTarget entries ordered by ascending fromSlot
// (spec §4.5 Turn 3 step 1). Surplus comments still got their audio
// rendered in Turn 2; they are simply excluded from the reply prompt.
func groupComments(turn2 map[agent.SlotId]*commentOutcome) map[agent.SlotId][]*commentOutcome {
	grouped := make(map[agent.SlotId][]*commentOutcome)
	for _, c := range turn2 {
		if c == nil || c.failed {
			continue
		}
		grouped[c.target] = append(grouped[c.target], c)
	}
	for target, list := range grouped {
		sort.Slice(list, func(i, j int) bool { return list[i].assignment.SlotId < list[j].assignment.SlotId })
		if len(list) > maxCommentsPerTarget {
			list = list[:maxCommentsPerTarget]
		}
		grouped[target] = list
	}
	return grouped
}

// runTurn3 implements spec §4.5 Turn 3 — Reply: every target slot
// that survived Turn 1 and received at least one Turn 2 comment
// replies once, folding in the (capped) set of comments addressed
// to it.
func (o *Orchestrator) runTurn3(ctx context.Context, sid string, turn1 map[agent.SlotId]*slotOutcome, turn2 map[agent.SlotId]*commentOutcome, q *stream.Queue) map[agent.SlotId]*slotOutcome {
	q.Push(protocol.TurnStart{Type: protocol.TypeTurnStart, SessionID: sid, TurnIndex: 3})

	grouped := groupComments(turn2)
	results := make(map[agent.SlotId]*slotOutcome, len(grouped))

	g, gctx := errgroup.WithContext(ctx)
	for target, comments := range grouped {
		target, comments := target, comments
		respondent, ok := turn1[target]
		if !ok || respondent.failed {
			continue
		}
		g.Go(func() error {
			outcome := o.replyOne(gctx, sid, respondent.assignment, comments, q)
			results[target] = outcome
			return nil
		})
	}
	_ = g.Wait()

	successCount := 0
	for _, o := range results {
		if !o.failed {
			successCount++
		}
	}
	q.Push(protocol.TurnDone{Type: protocol.TypeTurnDone, SessionID: sid, TurnIndex: 3, SlotCount: successCount})
	o.Renderer.TurnComplete(ctx, sid, 3)
	return results
}

func (o *Orchestrator) replyOne(ctx context.Context, sid string, sa agent.SlotAssignment, comments []*commentOutcome, q *stream.Queue) *slotOutcome {
	outcome := &slotOutcome{assignment: sa}
	q.Push(protocol.SlotStart{Type: protocol.TypeSlotStart, SessionID: sid, TurnIndex: 3, SlotID: sa.SlotId, Kind: "reply"})

	var b strings.Builder
	b.WriteString("Comments from other speakers addressed to you:\n")
	for _, c := range comments {
		fmt.Fprintf(&b, "- slot %d: %s\n", c.assignment.SlotId, c.text)
	}
	o.Conv.AppendUser(sa.SlotId, b.String())
	history := o.Conv.History(sa.SlotId)

	hint := llm.SchemaHint(llm.StructuredResult{Text: "...", VoiceProfile: "friendly_casual"})
	result, class, err := o.Gateway.StructuredComplete(ctx, sa.AgentId, history, hint, o.Temperature, o.MaxTokens)
	if err != nil {
		outcome.failed = true
		outcome.errClass = classOrUnknown(class)
		if o.Metrics != nil {
			o.Metrics.ObserveProviderError("llm", string(outcome.errClass))
		}
		q.Push(protocol.SlotError{Type: protocol.TypeSlotError, SessionID: sid, TurnIndex: 3, SlotID: sa.SlotId, Kind: "reply", Error: string(outcome.errClass)})
		return outcome
	}

	o.Conv.AppendAssistant(sa.SlotId, result.Text)
	outcome.text = result.Text
	outcome.voice = agent.VoiceProfile(result.VoiceProfile)
	q.Push(protocol.SlotDone{
		Type: protocol.TypeSlotDone, SessionID: sid, TurnIndex: 3, SlotID: sa.SlotId,
		Kind: "reply", Text: outcome.text, VoiceProfile: string(outcome.voice),
	})

	o.renderAndDecompose(ctx, sid, 3, "reply", sa, outcome, nil, q)
	return outcome
}

// fireDialogues builds the per-target dialogue summaries (a
// respondent plus its capped comment set) and publishes them on the
// renderer push channel once Turn 3 settles.
func (o *Orchestrator) fireDialogues(sid string, turn1 map[agent.SlotId]*slotOutcome, turn2 map[agent.SlotId]*commentOutcome, turn3 map[agent.SlotId]*slotOutcome) {
	grouped := groupComments(turn2)

	targets := make([]agent.SlotId, 0, len(grouped))
	for t := range grouped {
		targets = append(targets, t)
	}
	sort.Slice(targets, func(i, j int) bool { return targets[i] < targets[j] })

	dialogues := make([]protocol.DialoguePayload, 0, len(targets))
	for _, target := range targets {
		comments := grouped[target]
		commenters := make([]protocol.CommenterPayload, 0, len(comments))
		for _, c := range comments {
			commenters = append(commenters, protocol.CommenterPayload{
				FromSlot:  c.assignment.SlotId,
				AudioPath: c.audioPath,
				RelPath:   c.audioRel,
			})
		}
		var respondent *protocol.RespondentPayload
		if reply, ok := turn3[target]; ok && !reply.failed {
			respondent = &protocol.RespondentPayload{
				SlotID:    target,
				AudioPath: reply.audioPath,
				RelPath:   reply.audioRel,
			}
		}
		dialogues = append(dialogues, protocol.DialoguePayload{
			TargetSlotID: target,
			Commenters:   commenters,
			Respondent:   respondent,
		})
	}

	o.Renderer.FireDialogue(sid, dialogues)
}
