// Package session implements the Session Store of spec §4.3: session
// identity allocation, the deterministic artifact directory layout,
// and best-effort manifest writes. Manifest writes never fail the
// request (spec §4.3).
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/watershed-arts/basin/internal/agent"
	"github.com/watershed-arts/basin/internal/turn"
)

// Kind selects which artifact subtree a path belongs to.
type Kind string

const (
	KindTTS   Kind = "tts"
	KindWaves Kind = "waves"
	KindSTT   Kind = "stt"
)

// Manifest is the JSON document written once per session under
// artifacts/tts/sessions/<sid>/session.json.
type Manifest struct {
	SessionID string                 `json:"sessionId"`
	Slots     []agent.SlotAssignment `json:"slots"`
	Paths     map[string][]string    `json:"paths"`
	Turns     []turn.Record          `json:"turns,omitempty"`
	Summary   *turn.Summary          `json:"summary,omitempty"`
}

// Store owns the artifact directory layout and manifest writes. An
// optional AuditSink (pgx-backed) additionally records turn audio
// paths for offline review; its failures are discarded, never surfaced.
type Store struct {
	root     string
	suffixes atomic.Uint64
	audit    AuditSink
}

// AuditSink is the optional Postgres-backed session/turn audit log
// (DOMAIN STACK: jackc/pgx/v5, grounded on the teacher's
// memory.PostgresStore). Filesystem operation never depends on it.
type AuditSink interface {
	RecordManifest(ctx context.Context, m Manifest) error
	Close() error
}

func NewStore(artifactsRoot string, audit AuditSink) *Store {
	return &Store{root: artifactsRoot, audit: audit}
}

// Begin allocates a new session identity and creates its root
// directories.
func (s *Store) Begin() (string, error) {
	sid := uuid.NewString()
	for _, kind := range []Kind{KindTTS, KindWaves, KindSTT} {
		if err := os.MkdirAll(s.sessionRoot(kind, sid), 0o755); err != nil {
			return "", fmt.Errorf("create session root: %w", err)
		}
	}
	return sid, nil
}

func (s *Store) sessionRoot(kind Kind, sid string) string {
	return filepath.Join(s.root, string(kind), "sessions", sid)
}

// TurnDir returns (and creates) the stable directory for a given
// session/turn/kind, e.g. artifacts/tts/sessions/<sid>/turn_2/.
func (s *Store) TurnDir(kind Kind, sid string, turnIndex int) (string, error) {
	var sub string
	if turnIndex == 4 {
		sub = "summary"
	} else {
		sub = fmt.Sprintf("turn_%d", turnIndex)
	}
	dir := filepath.Join(s.sessionRoot(kind, sid), sub)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create turn dir: %w", err)
	}
	return dir, nil
}

// STTDir returns (and creates) the directory for one STT session.
func (s *Store) STTDir(sttSessionID string) (string, error) {
	dir := filepath.Join(s.root, string(KindSTT), "sessions", sttSessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create stt dir: %w", err)
	}
	return dir, nil
}

// TTSFilename builds the sanitised, deterministic filename for a
// turn-1/2/3 TTS clip. Turn 2 additionally carries the comment target.
func (s *Store) TTSFilename(slot agent.SlotId, agentID agent.AgentId, voice agent.VoiceProfile, commentTarget *agent.SlotId) string {
	name := fmt.Sprintf("%d_%s_%s", slot, sanitize(string(agentID)), sanitize(string(voice)))
	if commentTarget != nil {
		name += fmt.Sprintf("_comment_to_slot-%d", *commentTarget)
	}
	name += fmt.Sprintf("_%04d.wav", s.nextSuffix())
	return name
}

// SummaryTTSFilename builds the filename for the turn-4 summary clip.
func (s *Store) SummaryTTSFilename(agentID agent.AgentId, voice agent.VoiceProfile) string {
	return fmt.Sprintf("%s_%s.wav", sanitize(string(agentID)), sanitize(string(voice)))
}

// WaveFilename builds the filename for one synthesised wave track.
func (s *Store) WaveFilename(sourceBasename string, waveNum int) string {
	base := strings.TrimSuffix(sourceBasename, filepath.Ext(sourceBasename))
	return fmt.Sprintf("%s_v3_wave%d.wav", base, waveNum)
}

// SummaryWaveFilename builds the filename for one of the six summary wave tracks.
func (s *Store) SummaryWaveFilename(sourceBasename string, waveNum int) string {
	base := strings.TrimSuffix(sourceBasename, filepath.Ext(sourceBasename))
	return fmt.Sprintf("summary_%s_v3_wave%d.wav", base, waveNum)
}

func (s *Store) nextSuffix() uint64 {
	return s.suffixes.Add(1)
}

func sanitize(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	var b strings.Builder
	for _, r := range v {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

// RelPath returns the path relative to the artifacts root, for
// serving via GET /v1/audio/<relpath> and for push-channel payloads.
func (s *Store) RelPath(absPath string) string {
	rel, err := filepath.Rel(s.root, absPath)
	if err != nil {
		return absPath
	}
	return rel
}

// Root returns the artifacts root directory, used by the HTTP file
// server for /v1/audio/<relpath>.
func (s *Store) Root() string { return s.root }

// WriteManifest writes the session manifest. Best-effort: errors are
// returned to the caller for logging but must never fail the request.
func (s *Store) WriteManifest(sid string, m Manifest) error {
	m.SessionID = sid
	path := filepath.Join(s.sessionRoot(KindTTS, sid), "session.json")
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return err
	}
	if s.audit != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.audit.RecordManifest(ctx, m) // best-effort per spec §4.3
	}
	return nil
}
