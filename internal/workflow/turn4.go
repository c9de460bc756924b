package workflow

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/watershed-arts/basin/internal/agent"
	"github.com/watershed-arts/basin/internal/errclass"
	"github.com/watershed-arts/basin/internal/llm"
	"github.com/watershed-arts/basin/internal/protocol"
	"github.com/watershed-arts/basin/internal/session"
	"github.com/watershed-arts/basin/internal/stream"
	"github.com/watershed-arts/basin/internal/tts"
	"github.com/watershed-arts/basin/internal/turn"
)

// runTurn4 implements spec §4.5 Turn 4 — Summary: the lowest-slotId
// survivor of Turn 1 reads the whole transcript and produces one
// closing statement, decomposed into all six wave tracks. The
// returned *turn.Summary is nil if no summary could be produced, and
// is otherwise recorded onto the session manifest.
func (o *Orchestrator) runTurn4(ctx context.Context, sid string, turn1 map[agent.SlotId]*slotOutcome, turn2 map[agent.SlotId]*commentOutcome, turn3 map[agent.SlotId]*slotOutcome, q *stream.Queue) *turn.Summary {
	successes := successfulSlots(turn1)
	if len(successes) == 0 {
		return nil
	}
	sourceSlot := firstAscending(successes)
	sa := turn1[sourceSlot].assignment

	q.Push(protocol.SummaryStart{Type: protocol.TypeSummaryStart, SessionID: sid})

	o.Conv.AppendUser(sourceSlot, buildTranscript(turn1, turn2, turn3))
	history := o.Conv.History(sourceSlot)

	hint := llm.SchemaHint(llm.StructuredResult{Text: "...", VoiceProfile: "friendly_casual"})
	result, class, err := o.Gateway.StructuredComplete(ctx, sa.AgentId, history, hint, o.Temperature, o.MaxTokens)
	if err != nil {
		errCls := classOrUnknown(class)
		if o.Metrics != nil {
			o.Metrics.ObserveProviderError("llm", string(errCls))
		}
		q.Push(protocol.SlotError{Type: protocol.TypeSlotError, SessionID: sid, TurnIndex: 4, SlotID: sourceSlot, Kind: "summary", Error: string(errCls)})
		return nil
	}

	text := truncateHard(result.Text, tts.MaxLenFor(tts.KindSummary))
	voice := agent.VoiceProfile(result.VoiceProfile)
	o.Conv.AppendAssistant(sourceSlot, text)

	q.Push(protocol.SummaryDone{Type: protocol.TypeSummaryDone, SessionID: sid, Text: text, VoiceProfile: string(voice)})

	summary := &turn.Summary{Text: text, VoiceProfile: voice, AgentId: sa.AgentId, SlotId: sourceSlot}

	dir, err := o.Sessions.TurnDir(session.KindTTS, sid, 4)
	if err != nil {
		o.Log.Error("workflow: summary tts dir failed", "error", err)
		return summary
	}
	outPath := filepath.Join(dir, o.Sessions.SummaryTTSFilename(sa.AgentId, voice))

	resolved, err := o.TTS.Render(ctx, text, voice, outPath)
	if err != nil {
		cls := errclass.Classify(err)
		if o.Metrics != nil {
			o.Metrics.ObserveProviderError("tts", string(cls))
		}
		q.Push(protocol.SlotError{Type: protocol.TypeSlotError, SessionID: sid, TurnIndex: 4, SlotID: sourceSlot, Kind: "summary", Error: string(cls)})
		o.Renderer.SetSummaryText(sid, text, string(voice), "", "")
		o.Renderer.TurnComplete(ctx, sid, 4)
		return summary
	}

	relPath := o.Sessions.RelPath(outPath)
	q.Push(protocol.SummaryAudio{Type: protocol.TypeSummaryAudio, SessionID: sid, AudioPath: outPath, RelPath: relPath})
	o.Renderer.SetSummaryText(sid, text, string(resolved), outPath, relPath)
	summary.VoiceProfile = resolved
	summary.AudioPath = outPath
	summary.AudioRelPath = relPath

	o.enqueueWave(sid, 4, "summary", sourceSlot, outPath)
	o.Renderer.TurnComplete(ctx, sid, 4)
	return summary
}

// buildTranscript concatenates every slot's turn-1/2/3 utterances in
// temporal order, ascending by slotId within each turn, for the
// summary agent's context.
func buildTranscript(turn1 map[agent.SlotId]*slotOutcome, turn2 map[agent.SlotId]*commentOutcome, turn3 map[agent.SlotId]*slotOutcome) string {
	var b strings.Builder
	b.WriteString("Full dialogue transcript, for your closing summary:\n")

	writeTurn := func(label string, slots []agent.SlotId, text func(agent.SlotId) (string, bool)) {
		sort.Slice(slots, func(i, j int) bool { return slots[i] < slots[j] })
		for _, s := range slots {
			if t, ok := text(s); ok {
				fmt.Fprintf(&b, "[%s] slot %d: %s\n", label, s, t)
			}
		}
	}

	t1slots := make([]agent.SlotId, 0, len(turn1))
	for s := range turn1 {
		t1slots = append(t1slots, s)
	}
	writeTurn("response", t1slots, func(s agent.SlotId) (string, bool) {
		o := turn1[s]
		if o == nil || o.failed {
			return "", false
		}
		return o.text, true
	})

	t2slots := make([]agent.SlotId, 0, len(turn2))
	for s := range turn2 {
		t2slots = append(t2slots, s)
	}
	writeTurn("comment", t2slots, func(s agent.SlotId) (string, bool) {
		o := turn2[s]
		if o == nil || o.failed {
			return "", false
		}
		return fmt.Sprintf("to slot %d: %s", o.target, o.text), true
	})

	t3slots := make([]agent.SlotId, 0, len(turn3))
	for s := range turn3 {
		t3slots = append(t3slots, s)
	}
	writeTurn("reply", t3slots, func(s agent.SlotId) (string, bool) {
		o := turn3[s]
		if o == nil || o.failed {
			return "", false
		}
		return o.text, true
	})

	return b.String()
}
