package renderer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/watershed-arts/basin/internal/agent"
	"github.com/watershed-arts/basin/internal/protocol"
	"github.com/watershed-arts/basin/internal/wave"
)

// Orchestrator is the Event Orchestrator of spec §4.8: it subscribes
// to the wave pool's result channel and aggregates per-session,
// per-turn wave readiness into the push-channel messages
// `turn.waves_ready`, `dialogue.ready`, and `final_summary.ready`.
//
// ExpectWave is called concurrently by every slot's goroutine during a
// turn's fan-out (spec §5's errgroup parallelism), and maybeFireTurn
// can run from both the result-consumer path and a turn's soft-timeout
// goroutine at once, so each session's mutable state is guarded by its
// own mutex rather than relying on a single-writer assumption.
type Orchestrator struct {
	hub           *Hub
	turn1Timeout  time.Duration
	dialogTimeout time.Duration
	log           *slog.Logger

	mu       sync.Mutex // guards the sessions map itself (creation/lookup)
	sessions map[string]*sessionState
}

type sessionState struct {
	mu    sync.Mutex // guards every field below
	seq   int64
	slots []agent.SlotId

	turnExpected map[int]map[agent.SlotId]bool
	turnReceived map[int]map[agent.SlotId][]wave.Track
	turnFired    map[int]bool

	dialogueFired  bool
	summaryFired   bool
	pendingSummary protocol.FinalSummaryReadyPayload
}

func NewOrchestrator(hub *Hub, turn1Timeout, dialogTimeout time.Duration, log *slog.Logger) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		hub:           hub,
		turn1Timeout:  turn1Timeout,
		dialogTimeout: dialogTimeout,
		log:           log,
		sessions:      make(map[string]*sessionState),
	}
}

// BeginSession reserves state for a new session, seq = 0 (spec §4.8).
func (o *Orchestrator) BeginSession(sessionID string, slots []agent.SlotAssignment) {
	ids := make([]agent.SlotId, 0, len(slots))
	for _, s := range slots {
		ids = append(ids, s.SlotId)
	}
	st := &sessionState{
		slots:        ids,
		turnExpected: make(map[int]map[agent.SlotId]bool),
		turnReceived: make(map[int]map[agent.SlotId][]wave.Track),
		turnFired:    make(map[int]bool),
	}
	o.mu.Lock()
	o.sessions[sessionID] = st
	o.mu.Unlock()
}

// ExpectWave registers that sourceSlot's wave job was submitted for
// turnIndex, so the turn's readiness aggregation knows to wait for it.
// Called concurrently by each slot's goroutine within a turn's fan-out.
func (o *Orchestrator) ExpectWave(sessionID string, turnIndex int, sourceSlot agent.SlotId) {
	st := o.session(sessionID)
	if st == nil {
		return
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.turnExpected[turnIndex] == nil {
		st.turnExpected[turnIndex] = make(map[agent.SlotId]bool)
	}
	st.turnExpected[turnIndex][sourceSlot] = true
}

// session looks up sessionID's state under the sessions-map lock.
func (o *Orchestrator) session(sessionID string) *sessionState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sessions[sessionID]
}

// TurnComplete is called when a turn's LLM outputs are settled (TTS
// may still be running); it schedules the soft-timeout fallback that
// fires a partial `turn.waves_ready` if waves never fully arrive.
func (o *Orchestrator) TurnComplete(ctx context.Context, sessionID string, turnIndex int) {
	timeout := o.turn1Timeout
	go func() {
		select {
		case <-ctx.Done():
		case <-time.After(timeout):
			o.maybeFireTurn(sessionID, turnIndex, true)
		}
	}()
}

// SessionComplete is called when the workflow finishes.
func (o *Orchestrator) SessionComplete(sessionID string) {
	// Session state is intentionally retained for the lifetime of the
	// process (push messages may still be in flight for it); nothing
	// to do here beyond the hook existing for symmetry with §4.8.
}

// Consume drains the wave pool's result channel until ctx is
// cancelled, recording each result against its session/turn and
// firing aggregated push messages as readiness conditions are met.
func (o *Orchestrator) Consume(ctx context.Context, results <-chan wave.Result) {
	for {
		select {
		case <-ctx.Done():
			return
		case res, ok := <-results:
			if !ok {
				return
			}
			o.recordResult(res)
		}
	}
}

func (o *Orchestrator) recordResult(res wave.Result) {
	st := o.session(res.Job.SessionID)
	if st == nil {
		return
	}

	st.mu.Lock()
	if st.turnReceived[res.Job.TurnIndex] == nil {
		st.turnReceived[res.Job.TurnIndex] = make(map[agent.SlotId][]wave.Track)
	}
	st.turnReceived[res.Job.TurnIndex][res.Job.SourceSlotId] = res.Tracks
	st.mu.Unlock()

	o.maybeFireTurn(res.Job.SessionID, res.Job.TurnIndex, false)
}

func (o *Orchestrator) maybeFireTurn(sessionID string, turnIndex int, timedOut bool) {
	st := o.session(sessionID)
	if st == nil {
		return
	}

	st.mu.Lock()
	if st.turnFired[turnIndex] {
		st.mu.Unlock()
		return
	}

	expected := st.turnExpected[turnIndex]
	received := st.turnReceived[turnIndex]
	if !timedOut && len(received) < len(expected) {
		st.mu.Unlock()
		return
	}
	st.turnFired[turnIndex] = true

	missing := make([]agent.SlotId, 0)
	for slot := range expected {
		if _, ok := received[slot]; !ok {
			missing = append(missing, slot)
		}
	}
	status := "complete"
	if len(missing) > 0 {
		status = "partial"
	}

	if turnIndex == 4 {
		o.fireSummaryLocked(sessionID, st, status, missing, received)
		st.mu.Unlock()
		return
	}

	waves := make(map[agent.SlotId][]protocol.WaveTrackPayload)
	for _, tracks := range received {
		for _, t := range tracks {
			waves[t.TargetSlotId] = append(waves[t.TargetSlotId], toPayload(t))
		}
	}

	o.publishLocked(sessionID, st, protocol.PushTurnWavesReady, protocol.TurnWavesReadyPayload{
		TurnIndex: turnIndex,
		Status:    status,
		Missing:   missing,
		Waves:     waves,
	})
	st.mu.Unlock()
}

// dialoguePollInterval governs how often FireDialogue's background
// wait rechecks turn readiness before o.dialogTimeout elapses.
const dialoguePollInterval = 20 * time.Millisecond

// FireDialogue publishes `dialogue.ready` with the workflow-computed
// dialogue summaries, once turn.waves_ready has fired for turns 1, 2,
// and 3 (spec §4.8 step 3), or once dialogTimeout elapses — whichever
// comes first, so a stuck wave job can never block the push
// permanently. Guarded against double-firing.
func (o *Orchestrator) FireDialogue(sessionID string, dialogues []protocol.DialoguePayload) {
	st := o.session(sessionID)
	if st == nil {
		return
	}
	go o.waitAndFireDialogue(sessionID, st, dialogues)
}

func (o *Orchestrator) waitAndFireDialogue(sessionID string, st *sessionState, dialogues []protocol.DialoguePayload) {
	deadline := time.Now().Add(o.dialogTimeout)
	for {
		st.mu.Lock()
		ready := st.turnFired[1] && st.turnFired[2] && st.turnFired[3]
		st.mu.Unlock()
		if ready || time.Now().After(deadline) {
			break
		}
		time.Sleep(dialoguePollInterval)
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if st.dialogueFired {
		return
	}
	st.dialogueFired = true
	o.publishLocked(sessionID, st, protocol.PushDialogueReady, protocol.DialogueReadyPayload{Dialogues: dialogues})
}

// fireSummaryLocked must be called with st.mu held.
func (o *Orchestrator) fireSummaryLocked(sessionID string, st *sessionState, status string, missing []agent.SlotId, received map[agent.SlotId][]wave.Track) {
	if st.summaryFired {
		return
	}
	st.summaryFired = true

	waves := make(map[agent.SlotId]protocol.WaveTrackPayload)
	for _, tracks := range received {
		for _, t := range tracks {
			waves[t.TargetSlotId] = toPayload(t)
		}
	}

	payload := st.pendingSummary
	payload.Status = status
	payload.Missing = missing
	payload.Waves = waves
	o.publishLocked(sessionID, st, protocol.PushFinalSummary, payload)
}

// SetSummaryText stashes the summary text/voice/audio path computed by
// the workflow, so fireSummaryLocked can merge it with wave readiness once
// all six (or the timed-out subset of) summary waves are recorded.
func (o *Orchestrator) SetSummaryText(sessionID, text, voiceProfile, audioPath, relAudioPath string) {
	st := o.session(sessionID)
	if st == nil {
		return
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	st.pendingSummary = protocol.FinalSummaryReadyPayload{
		Text:         text,
		VoiceProfile: voiceProfile,
		AudioPath:    audioPath,
		RelAudioPath: relAudioPath,
	}
}

// publishLocked must be called with st.mu held; it bumps the
// session's sequence counter and hands the envelope to the hub.
func (o *Orchestrator) publishLocked(sessionID string, st *sessionState, pushType protocol.PushType, payload any) {
	st.seq++
	o.hub.Publish(protocol.PushEnvelope{
		Type:      pushType,
		SessionID: sessionID,
		Seq:       st.seq,
		TSMs:      time.Now().UnixMilli(),
		Payload:   payload,
	})
}

func toPayload(t wave.Track) protocol.WaveTrackPayload {
	return protocol.WaveTrackPayload{
		WaveNum:      t.WaveNum,
		TargetSlotID: t.TargetSlotId,
		AbsPath:      t.AbsPath,
		RelPath:      t.RelPath,
		FreqLowHz:    t.FreqRangeHz.LowHz,
		FreqHighHz:   t.FreqRangeHz.HighHz,
		RMSE:         t.RMSE,
	}
}
