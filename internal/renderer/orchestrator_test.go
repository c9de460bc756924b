package renderer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/watershed-arts/basin/internal/agent"
	"github.com/watershed-arts/basin/internal/protocol"
	"github.com/watershed-arts/basin/internal/wave"
)

// dialOrchestrator starts an httptest server upgrading to the hub,
// dials it as the renderer client, and returns a reader for decoded
// push envelopes plus a cleanup func.
func dialOrchestrator(t *testing.T, turn1Timeout, dialogTimeout time.Duration) (*Orchestrator, func() protocol.PushEnvelope, func()) {
	t.Helper()
	hub := NewHub(true, nil, nil)
	orch := NewOrchestrator(hub, turn1Timeout, dialogTimeout, nil)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := hub.Accept(w, r); err != nil {
			t.Errorf("hub.Accept() error = %v", err)
		}
	}))

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial renderer ws: %v", err)
	}

	readNext := func() protocol.PushEnvelope {
		t.Helper()
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, payload, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read push message: %v", err)
		}
		var env protocol.PushEnvelope
		if err := json.Unmarshal(payload, &env); err != nil {
			t.Fatalf("unmarshal push envelope: %v", err)
		}
		return env
	}

	cleanup := func() {
		conn.Close()
		srv.Close()
	}
	return orch, readNext, cleanup
}

func TestTurnWavesReadyFiresCompleteWhenAllExpectedWavesArrive(t *testing.T) {
	orch, readNext, cleanup := dialOrchestrator(t, time.Hour, time.Hour)
	defer cleanup()

	sid := "sess-a"
	slots := []agent.SlotAssignment{{SlotId: 1, AgentId: agent.AgentRiver}, {SlotId: 2, AgentId: agent.AgentStone}}
	orch.BeginSession(sid, slots)
	orch.ExpectWave(sid, 1, 1)
	orch.ExpectWave(sid, 1, 2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	orch.TurnComplete(ctx, sid, 1)

	orch.recordResult(wave.Result{
		Job:     wave.Job{SessionID: sid, TurnIndex: 1, SourceSlotId: 1},
		Success: true,
		Tracks: []wave.Track{
			{WaveNum: 1, TargetSlotId: 1, AbsPath: "/a/1.wav", RelPath: "1.wav"},
			{WaveNum: 2, TargetSlotId: 2, AbsPath: "/a/2.wav", RelPath: "2.wav"},
		},
	})
	orch.recordResult(wave.Result{
		Job:     wave.Job{SessionID: sid, TurnIndex: 1, SourceSlotId: 2},
		Success: true,
		Tracks: []wave.Track{
			{WaveNum: 1, TargetSlotId: 2, AbsPath: "/b/1.wav", RelPath: "1b.wav"},
			{WaveNum: 2, TargetSlotId: 1, AbsPath: "/b/2.wav", RelPath: "2b.wav"},
		},
	})

	env := readNext()
	if env.Type != protocol.PushTurnWavesReady {
		t.Fatalf("Type = %q, want %q", env.Type, protocol.PushTurnWavesReady)
	}
	if env.Seq != 1 {
		t.Fatalf("Seq = %d, want 1", env.Seq)
	}

	payloadBytes, _ := json.Marshal(env.Payload)
	var payload protocol.TurnWavesReadyPayload
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.Status != "complete" {
		t.Fatalf("Status = %q, want complete", payload.Status)
	}
	if len(payload.Missing) != 0 {
		t.Fatalf("Missing = %v, want empty", payload.Missing)
	}
}

func TestTurnWavesReadyFiresPartialAfterSoftTimeout(t *testing.T) {
	orch, readNext, cleanup := dialOrchestrator(t, 30*time.Millisecond, time.Hour)
	defer cleanup()

	sid := "sess-b"
	orch.BeginSession(sid, []agent.SlotAssignment{{SlotId: 1, AgentId: agent.AgentRiver}})
	orch.ExpectWave(sid, 1, 1)

	ctx := context.Background()
	orch.TurnComplete(ctx, sid, 1)
	// No wave result ever arrives for slot 1; the soft timeout must
	// still fire the aggregated message as partial (spec §4.8 step 2).

	env := readNext()
	if env.Type != protocol.PushTurnWavesReady {
		t.Fatalf("Type = %q, want %q", env.Type, protocol.PushTurnWavesReady)
	}
	payloadBytes, _ := json.Marshal(env.Payload)
	var payload protocol.TurnWavesReadyPayload
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.Status != "partial" {
		t.Fatalf("Status = %q, want partial", payload.Status)
	}
	if len(payload.Missing) != 1 || payload.Missing[0] != 1 {
		t.Fatalf("Missing = %v, want [1]", payload.Missing)
	}
}

func TestSeqIsMonotonicAcrossMultiplePublishesInOneSession(t *testing.T) {
	orch, readNext, cleanup := dialOrchestrator(t, time.Hour, time.Hour)
	defer cleanup()

	sid := "sess-c"
	orch.BeginSession(sid, []agent.SlotAssignment{{SlotId: 1, AgentId: agent.AgentRiver}})
	orch.ExpectWave(sid, 1, 1)
	orch.ExpectWave(sid, 2, 1)

	ctx := context.Background()
	orch.TurnComplete(ctx, sid, 1)
	orch.recordResult(wave.Result{
		Job:     wave.Job{SessionID: sid, TurnIndex: 1, SourceSlotId: 1},
		Success: true,
		Tracks:  []wave.Track{{WaveNum: 1, TargetSlotId: 1}, {WaveNum: 2, TargetSlotId: 2}},
	})
	first := readNext()

	orch.TurnComplete(ctx, sid, 2)
	orch.recordResult(wave.Result{
		Job:     wave.Job{SessionID: sid, TurnIndex: 2, SourceSlotId: 1},
		Success: true,
		Tracks:  []wave.Track{{WaveNum: 1, TargetSlotId: 1}, {WaveNum: 2, TargetSlotId: 2}},
	})
	second := readNext()

	if !(first.Seq < second.Seq) {
		t.Fatalf("seq did not strictly increase: first=%d second=%d", first.Seq, second.Seq)
	}
}

// TestDialogueReadyFiresOnlyAfterAllThreeTurnsWavesReady checks spec
// §4.8 step 3: `dialogue.ready` must not be published before
// `turn.waves_ready` has fired for turns 1, 2, and 3.
func TestDialogueReadyFiresOnlyAfterAllThreeTurnsWavesReady(t *testing.T) {
	orch, readNext, cleanup := dialOrchestrator(t, time.Hour, 500*time.Millisecond)
	defer cleanup()

	sid := "sess-e"
	orch.BeginSession(sid, []agent.SlotAssignment{{SlotId: 1, AgentId: agent.AgentRiver}})
	for _, turnIdx := range []int{1, 2, 3} {
		orch.ExpectWave(sid, turnIdx, 1)
	}

	// Fire the dialogue before any turn's waves have arrived: it must
	// wait for all three turn.waves_ready events rather than publish
	// immediately.
	orch.FireDialogue(sid, []protocol.DialoguePayload{{TargetSlotID: 1}})

	ctx := context.Background()
	for _, turnIdx := range []int{1, 2, 3} {
		orch.TurnComplete(ctx, sid, turnIdx)
		orch.recordResult(wave.Result{
			Job:     wave.Job{SessionID: sid, TurnIndex: turnIdx, SourceSlotId: 1},
			Success: true,
			Tracks:  []wave.Track{{WaveNum: 1, TargetSlotId: 1}},
		})
		env := readNext()
		if env.Type != protocol.PushTurnWavesReady {
			t.Fatalf("turn %d: Type = %q, want %q (dialogue.ready fired too early)", turnIdx, env.Type, protocol.PushTurnWavesReady)
		}
	}

	env := readNext()
	if env.Type != protocol.PushDialogueReady {
		t.Fatalf("Type = %q, want %q", env.Type, protocol.PushDialogueReady)
	}
}

func TestFinalSummaryReadyCarriesTextAndAllSixWaves(t *testing.T) {
	orch, readNext, cleanup := dialOrchestrator(t, time.Hour, time.Hour)
	defer cleanup()

	sid := "sess-d"
	orch.BeginSession(sid, []agent.SlotAssignment{{SlotId: 1, AgentId: agent.AgentRiver}})
	orch.ExpectWave(sid, 4, 1)
	orch.SetSummaryText(sid, "a closing paragraph", "calm_soothing", "/abs/summary.wav", "summary.wav")

	ctx := context.Background()
	orch.TurnComplete(ctx, sid, 4)

	tracks := make([]wave.Track, 0, 6)
	for slot := agent.SlotId(1); slot <= 6; slot++ {
		tracks = append(tracks, wave.Track{WaveNum: int(slot), TargetSlotId: slot})
	}
	orch.recordResult(wave.Result{
		Job:     wave.Job{SessionID: sid, TurnIndex: 4, SourceSlotId: 1},
		Success: true,
		Tracks:  tracks,
	})

	env := readNext()
	if env.Type != protocol.PushFinalSummary {
		t.Fatalf("Type = %q, want %q", env.Type, protocol.PushFinalSummary)
	}
	payloadBytes, _ := json.Marshal(env.Payload)
	var payload protocol.FinalSummaryReadyPayload
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.Text != "a closing paragraph" {
		t.Fatalf("Text = %q, want %q", payload.Text, "a closing paragraph")
	}
	if payload.Status != "complete" {
		t.Fatalf("Status = %q, want complete", payload.Status)
	}
	if len(payload.Waves) != 6 {
		t.Fatalf("len(Waves) = %d, want 6", len(payload.Waves))
	}
}
