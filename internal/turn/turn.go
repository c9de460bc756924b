// Package turn holds the data-model types shared between the
// workflow orchestrator and the session store: MessageKind, Index,
// Record, Dialogue (with Commenter and RespondentAudio), and Summary
// (spec §3).
package turn

import "github.com/watershed-arts/basin/internal/agent"

// MessageKind is paired with a TurnIndex as
// (1,response) (2,comment) (3,reply) (4,summary).
type MessageKind string

const (
	KindResponse MessageKind = "response"
	KindComment  MessageKind = "comment"
	KindReply    MessageKind = "reply"
	KindSummary  MessageKind = "summary"
)

// Index is one of the four sequential turns.
type Index int

const (
	IndexRespond Index = 1
	IndexComment Index = 2
	IndexReply   Index = 3
	IndexSummary Index = 4
)

// Record is the per-slot per-turn record of spec §3.
type Record struct {
	SlotId       agent.SlotId
	AgentId      agent.AgentId
	TurnIndex    Index
	Kind         MessageKind
	Text         string
	VoiceProfile agent.VoiceProfile
	TargetSlotId agent.SlotId // only meaningful for Kind == KindComment
	HasTarget    bool
	AudioPath    string
	AudioRelPath string
	Err          string // taxonomy class, empty if no error
}

// Commenter is one inbound comment in a Dialogue.
type Commenter struct {
	FromSlot  agent.SlotId
	AudioPath string
}

// Dialogue is the derived (turn-2 comments, turn-3 reply) triple for
// one target slot, computed after turn 3 settles.
type Dialogue struct {
	TargetSlotId agent.SlotId
	Commenters   []Commenter
	Respondent   *RespondentAudio
}

// RespondentAudio is the reply audio for a Dialogue's target slot, if
// a reply was produced.
type RespondentAudio struct {
	SlotId    agent.SlotId
	AudioPath string
}

// Summary is the turn-4 synthesis record.
type Summary struct {
	Text         string
	VoiceProfile agent.VoiceProfile
	AudioPath    string
	AudioRelPath string
	AgentId      agent.AgentId
	SlotId       agent.SlotId
}
