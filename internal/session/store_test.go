package session

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/watershed-arts/basin/internal/agent"
)

func TestBeginCreatesSessionRootsForEveryKind(t *testing.T) {
	root := t.TempDir()
	s := NewStore(root, nil)

	sid, err := s.Begin()
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	for _, kind := range []Kind{KindTTS, KindWaves, KindSTT} {
		dir := filepath.Join(root, string(kind), "sessions", sid)
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("expected directory %s to exist, err = %v", dir, err)
		}
	}
}

func TestTurnDirUsesSummaryNameForTurnFour(t *testing.T) {
	root := t.TempDir()
	s := NewStore(root, nil)
	sid, err := s.Begin()
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}

	dir, err := s.TurnDir(KindTTS, sid, 4)
	if err != nil {
		t.Fatalf("TurnDir() error = %v", err)
	}
	if filepath.Base(dir) != "summary" {
		t.Fatalf("TurnDir(4) base = %q, want summary", filepath.Base(dir))
	}

	dir2, err := s.TurnDir(KindTTS, sid, 2)
	if err != nil {
		t.Fatalf("TurnDir() error = %v", err)
	}
	if filepath.Base(dir2) != "turn_2" {
		t.Fatalf("TurnDir(2) base = %q, want turn_2", filepath.Base(dir2))
	}
}

func TestTTSFilenameSanitizesAndIncludesCommentTarget(t *testing.T) {
	s := NewStore(t.TempDir(), nil)
	target := agent.SlotId(3)
	name := s.TTSFilename(agent.SlotId(1), agent.AgentRiver, agent.VoiceCalmSoothing, &target)
	if filepath.Ext(name) != ".wav" {
		t.Fatalf("filename = %q, want .wav extension", name)
	}
	if !containsAll(name, "1_river_calm_soothing", "comment_to_slot-3") {
		t.Fatalf("filename = %q, want slot/agent/voice/comment-target components", name)
	}
}

func TestTTSFilenameOmitsCommentTargetWhenNil(t *testing.T) {
	s := NewStore(t.TempDir(), nil)
	name := s.TTSFilename(agent.SlotId(2), agent.AgentStone, agent.VoiceFriendlyCasual, nil)
	if containsAll(name, "comment_to_slot") {
		t.Fatalf("filename = %q, want no comment-target component", name)
	}
}

func TestTTSFilenameSuffixesAreUniquePerCall(t *testing.T) {
	s := NewStore(t.TempDir(), nil)
	a := s.TTSFilename(agent.SlotId(1), agent.AgentRiver, agent.VoiceCalmSoothing, nil)
	b := s.TTSFilename(agent.SlotId(1), agent.AgentRiver, agent.VoiceCalmSoothing, nil)
	if a == b {
		t.Fatalf("expected distinct filenames across calls, got %q twice", a)
	}
}

func TestWaveFilenameReplacesExtensionAndTagsWaveNumber(t *testing.T) {
	s := NewStore(t.TempDir(), nil)
	got := s.WaveFilename("1_river_calm_soothing_0001.wav", 2)
	want := "1_river_calm_soothing_0001_v3_wave2.wav"
	if got != want {
		t.Fatalf("WaveFilename() = %q, want %q", got, want)
	}
}

func TestSummaryWaveFilenameIsPrefixedWithSummary(t *testing.T) {
	s := NewStore(t.TempDir(), nil)
	got := s.SummaryWaveFilename("river_calm_soothing.wav", 6)
	want := "summary_river_calm_soothing_v3_wave6.wav"
	if got != want {
		t.Fatalf("SummaryWaveFilename() = %q, want %q", got, want)
	}
}

func TestRelPathIsRelativeToRoot(t *testing.T) {
	root := t.TempDir()
	s := NewStore(root, nil)
	abs := filepath.Join(root, "tts", "sessions", "abc", "turn_1", "clip.wav")
	got := s.RelPath(abs)
	want := filepath.Join("tts", "sessions", "abc", "turn_1", "clip.wav")
	if got != want {
		t.Fatalf("RelPath() = %q, want %q", got, want)
	}
}

type recordingAuditSink struct {
	manifests []Manifest
	closed    bool
}

func (r *recordingAuditSink) RecordManifest(ctx context.Context, m Manifest) error {
	r.manifests = append(r.manifests, m)
	return nil
}

func (r *recordingAuditSink) Close() error {
	r.closed = true
	return nil
}

func TestWriteManifestPersistsJSONAndNotifiesAuditSink(t *testing.T) {
	root := t.TempDir()
	audit := &recordingAuditSink{}
	s := NewStore(root, audit)
	sid, err := s.Begin()
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}

	manifest := Manifest{
		Slots: []agent.SlotAssignment{{SlotId: 1, AgentId: agent.AgentRiver}},
		Paths: map[string][]string{"turn_1": {"1_river_calm_soothing_0001.wav"}},
	}
	if err := s.WriteManifest(sid, manifest); err != nil {
		t.Fatalf("WriteManifest() error = %v", err)
	}

	path := filepath.Join(root, string(KindTTS), "sessions", sid, "session.json")
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile(session.json) error = %v", err)
	}
	var got Manifest
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("Unmarshal(session.json) error = %v", err)
	}
	if got.SessionID != sid {
		t.Fatalf("SessionID = %q, want %q", got.SessionID, sid)
	}

	if len(audit.manifests) != 1 || audit.manifests[0].SessionID != sid {
		t.Fatalf("expected audit sink to record one manifest for %q, got %+v", sid, audit.manifests)
	}
}

func containsAll(s string, parts ...string) bool {
	for _, p := range parts {
		if !strings.Contains(s, p) {
			return false
		}
	}
	return true
}
