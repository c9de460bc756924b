// Package protocol defines the wire message types for the two
// outbound surfaces of the installation backend: the per-request SSE
// stream of spec §4.7/§6.1 and the single-client renderer push
// channel of spec §4.8/§6.2. Grounded on the teacher's
// protocol/messages.go MessageType+typed-struct pattern.
package protocol

import "github.com/watershed-arts/basin/internal/agent"

// EventType identifies SSE payload variants.
type EventType string

const (
	TypeSessionStart EventType = "session.start"
	TypeTurnStart    EventType = "turn.start"
	TypeSlotStart    EventType = "slot.start"
	TypeSlotDone     EventType = "slot.done"
	TypeSlotAudio    EventType = "slot.audio"
	TypeSlotError    EventType = "slot.error"
	TypeTurnDone     EventType = "turn.done"
	TypeSummaryStart EventType = "summary.start"
	TypeSummaryDone  EventType = "summary.done"
	TypeSummaryAudio EventType = "summary.audio"
	TypeDone         EventType = "done"
)

type SessionStart struct {
	Type      EventType       `json:"type"`
	SessionID string          `json:"sessionId"`
	Slots     []agent.SlotAssignment `json:"slots"`
}

type TurnStart struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"sessionId"`
	TurnIndex int       `json:"turnIndex"`
}

type SlotStart struct {
	Type      EventType    `json:"type"`
	SessionID string       `json:"sessionId"`
	TurnIndex int          `json:"turnIndex"`
	SlotID    agent.SlotId `json:"slotId"`
	Kind      string       `json:"kind"`
}

type SlotDone struct {
	Type          EventType     `json:"type"`
	SessionID     string        `json:"sessionId"`
	TurnIndex     int           `json:"turnIndex"`
	SlotID        agent.SlotId  `json:"slotId"`
	Kind          string        `json:"kind"`
	Text          string        `json:"text"`
	VoiceProfile  string        `json:"voiceProfile"`
	TargetSlotID  *agent.SlotId `json:"targetSlotId,omitempty"`
}

type SlotAudio struct {
	Type      EventType    `json:"type"`
	SessionID string       `json:"sessionId"`
	TurnIndex int          `json:"turnIndex"`
	SlotID    agent.SlotId `json:"slotId"`
	Kind      string       `json:"kind"`
	AudioPath string       `json:"audioPath"`
	RelPath   string       `json:"relPath"`
}

type SlotError struct {
	Type      EventType    `json:"type"`
	SessionID string       `json:"sessionId"`
	TurnIndex int          `json:"turnIndex"`
	SlotID    agent.SlotId `json:"slotId"`
	Kind      string       `json:"kind"`
	Error     string       `json:"error"`
}

type TurnDone struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"sessionId"`
	TurnIndex int       `json:"turnIndex"`
	SlotCount int       `json:"slotCount"`
}

type SummaryStart struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"sessionId"`
}

type SummaryDone struct {
	Type         EventType `json:"type"`
	SessionID    string    `json:"sessionId"`
	Text         string    `json:"text"`
	VoiceProfile string    `json:"voiceProfile"`
}

type SummaryAudio struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"sessionId"`
	AudioPath string    `json:"audioPath"`
	RelPath   string    `json:"relPath"`
}

type Done struct {
	Type           EventType `json:"type"`
	SessionID      string    `json:"sessionId"`
	CompletedSlots int       `json:"completedSlots"`
	Turns          int       `json:"turns"`
}

// PushType identifies renderer push-channel message variants (§4.8).
type PushType string

const (
	PushTurnWavesReady  PushType = "turn.waves_ready"
	PushDialogueReady   PushType = "dialogue.ready"
	PushFinalSummary    PushType = "final_summary.ready"
)

// PushEnvelope is the common envelope wrapping every push message:
// `{type, sessionId, seq, ts, payload}`.
type PushEnvelope struct {
	Type      PushType `json:"type"`
	SessionID string   `json:"sessionId"`
	Seq       int64    `json:"seq"`
	TSMs      int64    `json:"ts"`
	Payload   any      `json:"payload"`
}

// WaveTrackPayload is one synthesised wave track as carried on the
// push channel — both absolute and artifact-relative paths per §4.8.
type WaveTrackPayload struct {
	WaveNum      int          `json:"waveNum"`
	TargetSlotID agent.SlotId `json:"targetSlotId"`
	AbsPath      string       `json:"absPath"`
	RelPath      string       `json:"relPath"`
	FreqLowHz    float64      `json:"freqLowHz"`
	FreqHighHz   float64      `json:"freqHighHz"`
	RMSE         float64      `json:"rmse"`
}

// TurnWavesReadyPayload aggregates all ready per-slot wave arrays for
// one turn (§4.8 step 2).
type TurnWavesReadyPayload struct {
	TurnIndex int                               `json:"turnIndex"`
	Status    string                            `json:"status"` // "complete" | "partial"
	Missing   []agent.SlotId                    `json:"missing"`
	Waves     map[agent.SlotId][]WaveTrackPayload `json:"waves"`
}

// DialogueReadyPayload summarises the whole dialogue after turn 3
// (§4.8 step 3) — optional aggregate view.
type DialogueReadyPayload struct {
	Dialogues []DialoguePayload `json:"dialogues"`
}

type DialoguePayload struct {
	TargetSlotID agent.SlotId         `json:"targetSlotId"`
	Commenters   []CommenterPayload   `json:"commenters"`
	Respondent   *RespondentPayload   `json:"respondent,omitempty"`
}

type CommenterPayload struct {
	FromSlot  agent.SlotId `json:"fromSlot"`
	AudioPath string       `json:"audioPath"`
	RelPath   string       `json:"relPath"`
}

type RespondentPayload struct {
	SlotID    agent.SlotId `json:"slotId"`
	AudioPath string       `json:"audioPath"`
	RelPath   string       `json:"relPath"`
}

// FinalSummaryReadyPayload carries the summary text, voice profile,
// and the six wave paths keyed by slotId (§4.8 step 4).
type FinalSummaryReadyPayload struct {
	Text         string                          `json:"text"`
	VoiceProfile string                          `json:"voiceProfile"`
	AudioPath    string                          `json:"audioPath"`
	RelAudioPath string                          `json:"relAudioPath"`
	Status       string                          `json:"status"`
	Missing      []agent.SlotId                  `json:"missing"`
	Waves        map[agent.SlotId]WaveTrackPayload `json:"waves"`
}
