// Package workflow implements the Workflow Orchestrator of spec §4.5:
// the four-turn state machine (Respond, Comment, Reply, Summary) that
// drives every /v1/chat request. Grounded structurally on the
// teacher's internal/voice/orchestrator.go turn-sequencing shape
// (per-turn goroutines, emit-then-continue on failure, outbound event
// channel) adapted from a single continuous realtime session to four
// strictly-sequenced, internally-parallel phases over a fixed slot
// set, using golang.org/x/sync/errgroup for per-turn fan-out in place
// of the teacher's hand-rolled goroutine/WaitGroup bookkeeping.
package workflow

import (
	"context"
	"log/slog"
	"path/filepath"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/watershed-arts/basin/internal/agent"
	"github.com/watershed-arts/basin/internal/conversation"
	"github.com/watershed-arts/basin/internal/errclass"
	"github.com/watershed-arts/basin/internal/llm"
	"github.com/watershed-arts/basin/internal/observability"
	"github.com/watershed-arts/basin/internal/protocol"
	"github.com/watershed-arts/basin/internal/renderer"
	"github.com/watershed-arts/basin/internal/session"
	"github.com/watershed-arts/basin/internal/stream"
	"github.com/watershed-arts/basin/internal/tts"
	"github.com/watershed-arts/basin/internal/turn"
	"github.com/watershed-arts/basin/internal/wave"
)

// Orchestrator wires together every component the four-turn state
// machine depends on. One Orchestrator is shared across requests; each
// RunSSE call allocates its own session id and event queue.
type Orchestrator struct {
	Gateway  *llm.Gateway
	Conv     *conversation.Store
	Sessions *session.Store
	TTS      *tts.Renderer
	WavePool *wave.Pool
	Renderer *renderer.Orchestrator
	Metrics  *observability.Metrics
	Log      *slog.Logger

	Temperature  float64
	MaxTokens    int
	WavesEnabled bool
}

// slotOutcome tracks one slot's fate through a turn.
type slotOutcome struct {
	assignment agent.SlotAssignment
	text       string
	voice      agent.VoiceProfile
	audioPath  string
	audioRel   string
	failed     bool
	errClass   errclass.Class
}

// RunSSE starts the workflow in the background and returns the queue
// for the caller (the /v1/chat handler) to drain as the SSE body. The
// queue is closed exactly once, after every turn completes or the
// request fails outright (spec §4.7's sentinel termination; §7's
// "every failure mode ends in a `done` event").
func (o *Orchestrator) RunSSE(ctx context.Context, message string, slots []agent.SlotAssignment) *stream.Queue {
	q := stream.NewQueue()
	go o.run(ctx, message, slots, q)
	return q
}

func (o *Orchestrator) run(ctx context.Context, message string, slots []agent.SlotAssignment, q *stream.Queue) {
	defer q.Close()

	sid, err := o.Sessions.Begin()
	if err != nil {
		o.Log.Error("workflow: failed to begin session", "error", err)
		q.Push(protocol.Done{Type: protocol.TypeDone, CompletedSlots: 0, Turns: 0})
		return
	}

	if o.Metrics != nil {
		o.Metrics.ActiveSessions.Inc()
		defer o.Metrics.ActiveSessions.Dec()
	}

	o.Renderer.BeginSession(sid, slots)
	q.Push(protocol.SessionStart{Type: protocol.TypeSessionStart, SessionID: sid, Slots: slots})

	turn1 := o.runTurn1(ctx, sid, message, slots, q)
	successes := successfulSlots(turn1)
	if len(successes) == 0 {
		q.Push(protocol.Done{Type: protocol.TypeDone, SessionID: sid, CompletedSlots: 0, Turns: 4})
		o.Renderer.SessionComplete(sid)
		return
	}

	turn2 := o.runTurn2(ctx, sid, slots, turn1, successes, q)
	turn3 := o.runTurn3(ctx, sid, turn1, turn2, q)
	o.fireDialogues(sid, turn1, turn2, turn3)
	summary := o.runTurn4(ctx, sid, turn1, turn2, turn3, q)

	q.Push(protocol.Done{Type: protocol.TypeDone, SessionID: sid, CompletedSlots: len(successes), Turns: 4})
	o.Renderer.SessionComplete(sid)

	records := make([]turn.Record, 0, len(turn1)+len(turn2)+len(turn3))
	records = append(records, recordsFromResponses(turn1, turn.IndexRespond, turn.KindResponse)...)
	records = append(records, recordsFromComments(turn2)...)
	records = append(records, recordsFromResponses(turn3, turn.IndexReply, turn.KindReply)...)

	_ = o.Sessions.WriteManifest(sid, session.Manifest{
		Slots:   slots,
		Paths:   map[string][]string{},
		Turns:   records,
		Summary: summary,
	})
}

// recordsFromResponses converts a turn-1/turn-3 outcome map (both
// indexed by agent.SlotId, sharing slotOutcome's shape) into the
// manifest's per-turn record list, ascending by slot id for
// reproducible manifest output.
func recordsFromResponses(outcomes map[agent.SlotId]*slotOutcome, idx turn.Index, kind turn.MessageKind) []turn.Record {
	slots := make([]agent.SlotId, 0, len(outcomes))
	for slot := range outcomes {
		slots = append(slots, slot)
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i] < slots[j] })

	out := make([]turn.Record, 0, len(slots))
	for _, slot := range slots {
		o := outcomes[slot]
		rec := turn.Record{
			SlotId:       o.assignment.SlotId,
			AgentId:      o.assignment.AgentId,
			TurnIndex:    idx,
			Kind:         kind,
			Text:         o.text,
			VoiceProfile: o.voice,
			AudioPath:    o.audioPath,
			AudioRelPath: o.audioRel,
		}
		if o.failed {
			rec.Err = string(o.errClass)
		}
		out = append(out, rec)
	}
	return out
}

// recordsFromComments is recordsFromResponses' turn-2 counterpart,
// additionally carrying each comment's TargetSlotId.
func recordsFromComments(outcomes map[agent.SlotId]*commentOutcome) []turn.Record {
	slots := make([]agent.SlotId, 0, len(outcomes))
	for slot, o := range outcomes {
		if o != nil {
			slots = append(slots, slot)
		}
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i] < slots[j] })

	out := make([]turn.Record, 0, len(slots))
	for _, slot := range slots {
		c := outcomes[slot]
		rec := turn.Record{
			SlotId:       c.assignment.SlotId,
			AgentId:      c.assignment.AgentId,
			TurnIndex:    turn.IndexComment,
			Kind:         turn.KindComment,
			Text:         c.text,
			VoiceProfile: c.voice,
			TargetSlotId: c.target,
			HasTarget:    !c.failed,
			AudioPath:    c.audioPath,
			AudioRelPath: c.audioRel,
		}
		if c.failed {
			rec.Err = string(c.errClass)
		}
		out = append(out, rec)
	}
	return out
}

func successfulSlots(turn1 map[agent.SlotId]*slotOutcome) []agent.SlotId {
	out := make([]agent.SlotId, 0, len(turn1))
	for slot, outcome := range turn1 {
		if !outcome.failed {
			out = append(out, slot)
		}
	}
	return out
}

// runTurn1 implements spec §4.5 Turn 1 — Respond.
func (o *Orchestrator) runTurn1(ctx context.Context, sid, message string, slots []agent.SlotAssignment, q *stream.Queue) map[agent.SlotId]*slotOutcome {
	q.Push(protocol.TurnStart{Type: protocol.TypeTurnStart, SessionID: sid, TurnIndex: 1})

	results := make(map[agent.SlotId]*slotOutcome, len(slots))
	g, gctx := errgroup.WithContext(ctx)
	for _, sa := range slots {
		sa := sa
		g.Go(func() error {
			outcome := o.respondOne(gctx, sid, message, sa, q)
			results[sa.SlotId] = outcome
			return nil
		})
	}
	_ = g.Wait()

	successCount := 0
	for _, outcome := range results {
		if !outcome.failed {
			successCount++
		}
	}
	q.Push(protocol.TurnDone{Type: protocol.TypeTurnDone, SessionID: sid, TurnIndex: 1, SlotCount: successCount})
	o.Renderer.TurnComplete(ctx, sid, 1)
	return results
}

func (o *Orchestrator) respondOne(ctx context.Context, sid, message string, sa agent.SlotAssignment, q *stream.Queue) *slotOutcome {
	outcome := &slotOutcome{assignment: sa}
	q.Push(protocol.SlotStart{Type: protocol.TypeSlotStart, SessionID: sid, TurnIndex: 1, SlotID: sa.SlotId, Kind: "response"})

	o.Conv.AppendUser(sa.SlotId, message)
	history := o.Conv.History(sa.SlotId)

	hint := llm.SchemaHint(llm.StructuredResult{Text: "...", VoiceProfile: "friendly_casual"})
	result, class, err := o.Gateway.StructuredComplete(ctx, sa.AgentId, history, hint, o.Temperature, o.MaxTokens)
	if err != nil {
		outcome.failed = true
		outcome.errClass = classOrUnknown(class)
		if o.Metrics != nil {
			o.Metrics.ObserveProviderError("llm", string(outcome.errClass))
		}
		q.Push(protocol.SlotError{Type: protocol.TypeSlotError, SessionID: sid, TurnIndex: 1, SlotID: sa.SlotId, Kind: "response", Error: string(outcome.errClass)})
		return outcome
	}

	o.Conv.AppendAssistant(sa.SlotId, result.Text)
	outcome.text = result.Text
	outcome.voice = agent.VoiceProfile(result.VoiceProfile)
	q.Push(protocol.SlotDone{
		Type: protocol.TypeSlotDone, SessionID: sid, TurnIndex: 1, SlotID: sa.SlotId,
		Kind: "response", Text: outcome.text, VoiceProfile: string(outcome.voice),
	})

	o.renderAndDecompose(ctx, sid, 1, "response", sa, outcome, nil, q)
	return outcome
}

// renderAndDecompose runs the TTS + wave-decomposition tail shared by
// every turn: synthesise audio, emit slot.audio, enqueue a wave job.
// A TTS failure does not retract the slot.done already emitted (spec
// §7: "TTS errors do not prevent the LLM text from appearing").
func (o *Orchestrator) renderAndDecompose(ctx context.Context, sid string, turnIndex int, kind string, sa agent.SlotAssignment, outcome *slotOutcome, commentTarget *agent.SlotId, q *stream.Queue) {
	maxLen := tts.MaxLenFor(tts.Kind(kind))
	text := outcome.text
	if kind == "comment" {
		text = truncateAtSentence(text, maxLen)
	} else {
		text = truncateHard(text, maxLen)
	}
	outcome.text = text

	dir, err := o.Sessions.TurnDir(session.KindTTS, sid, turnIndex)
	if err != nil {
		o.emitSlotError(sid, turnIndex, sa.SlotId, kind, errclass.Unknown, q)
		return
	}
	filename := o.Sessions.TTSFilename(sa.SlotId, sa.AgentId, outcome.voice, commentTarget)
	outPath := filepath.Join(dir, filename)

	resolved, err := o.TTS.Render(ctx, text, outcome.voice, outPath)
	if err != nil {
		class := errclass.Classify(err)
		if o.Metrics != nil {
			o.Metrics.ObserveProviderError("tts", string(class))
		}
		q.Push(protocol.SlotError{Type: protocol.TypeSlotError, SessionID: sid, TurnIndex: turnIndex, SlotID: sa.SlotId, Kind: kind, Error: string(class)})
		return
	}
	outcome.voice = resolved
	outcome.audioPath = outPath
	outcome.audioRel = o.Sessions.RelPath(outPath)

	q.Push(protocol.SlotAudio{
		Type: protocol.TypeSlotAudio, SessionID: sid, TurnIndex: turnIndex, SlotID: sa.SlotId,
		Kind: kind, AudioPath: outcome.audioPath, RelPath: outcome.audioRel,
	})

	o.enqueueWave(sid, turnIndex, kind, sa.SlotId, outPath)
}

func (o *Orchestrator) enqueueWave(sid string, turnIndex int, kind string, sourceSlot agent.SlotId, sourceAudioPath string) {
	if !o.WavesEnabled {
		return
	}
	waveDir, err := o.Sessions.TurnDir(session.KindWaves, sid, turnIndex)
	if err != nil {
		o.Log.Warn("workflow: wave output dir failed", "error", err)
		return
	}
	targets := wave.TargetsForSource(sourceSlot, turnIndex)
	job := wave.Job{
		SessionID:       sid,
		TurnIndex:       turnIndex,
		Kind:            kind,
		SourceSlotId:    sourceSlot,
		SourceAudioPath: sourceAudioPath,
		OutputDir:       waveDir,
		ArtifactsRoot:   o.Sessions.Root(),
		Targets:         targets,
	}
	o.Renderer.ExpectWave(sid, turnIndex, sourceSlot)
	if !o.WavePool.Submit(job) {
		if o.Metrics != nil {
			o.Metrics.ObserveWaveJob("dropped", 0)
		}
	}
}

func (o *Orchestrator) emitSlotError(sid string, turnIndex int, slot agent.SlotId, kind string, class errclass.Class, q *stream.Queue) {
	q.Push(protocol.SlotError{Type: protocol.TypeSlotError, SessionID: sid, TurnIndex: turnIndex, SlotID: slot, Kind: kind, Error: string(class)})
}

func classOrUnknown(c errclass.Class) errclass.Class {
	if c == "" {
		return errclass.Unknown
	}
	return c
}
