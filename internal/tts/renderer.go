// Package tts implements the TTS Renderer of spec §4.4: resolve a
// voice profile, request PCM from the ElevenLabs REST API, and wrap
// it with a WAV header before writing to disk. Adapted from the
// teacher's ElevenLabsProvider, which dials a realtime websocket
// stream — this renderer instead makes one synchronous REST call per
// spec's "Output: file path of a WAV clip on disk" contract.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/watershed-arts/basin/internal/agent"
	"github.com/watershed-arts/basin/internal/errclass"
	"github.com/watershed-arts/basin/internal/tts/audio"
)

const (
	maxLenResponse = 400
	maxLenComment  = 200
	maxLenSummary  = 1200

	defaultProcessingSampleRate = 16000 // PCM output rate requested from the provider
)

// Kind mirrors turn.MessageKind without importing it, to keep tts
// free of a dependency on the workflow's turn package.
type Kind string

const (
	KindResponse Kind = "response"
	KindComment  Kind = "comment"
	KindReply    Kind = "reply"
	KindSummary  Kind = "summary"
)

// MaxLenFor returns the hard text-length cap for a message kind
// (spec §4.4); the orchestrator enforces these before calling Render.
func MaxLenFor(kind Kind) int {
	switch kind {
	case KindComment:
		return maxLenComment
	case KindSummary:
		return maxLenSummary
	default:
		return maxLenResponse
	}
}

// Config carries the ElevenLabs REST endpoint and credential, in the
// same config-struct idiom as the teacher's ElevenLabsConfig.
type Config struct {
	APIKey     string
	BaseURL    string // default https://api.elevenlabs.io
	HTTPClient *http.Client

	// SampleRate is the PCM rate requested from the provider and
	// written into the output WAV header. It is also the rate the
	// wave decomposition pipeline reads back from disk, so raising it
	// trades wave-job CPU time for higher-fidelity harmonic tracks.
	// NewRenderer uses 16000 when it is unset; cmd/basin sets it from
	// WAVES_PROCESSING_SR, whose default is 8000.
	SampleRate int
}

// Renderer renders text to a WAV file on disk.
type Renderer struct {
	cfg Config
	log *slog.Logger
}

func NewRenderer(cfg Config) *Renderer {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://api.elevenlabs.io"
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = defaultProcessingSampleRate
	}
	return &Renderer{cfg: cfg, log: slog.Default()}
}

type ttsRequestBody struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	SpeakerBoost    bool    `json:"use_speaker_boost"`
	Speed           float64 `json:"speed,omitempty"`
}

// Render resolves profile (falling back to agent.FallbackVoiceProfile
// with a warning if unknown), requests PCM from the provider, wraps
// it as a WAV, and writes it to outPath. Empty text is a tts_error.
func (r *Renderer) Render(ctx context.Context, text string, profile agent.VoiceProfile, outPath string) (resolvedProfile agent.VoiceProfile, err error) {
	if strings.TrimSpace(text) == "" {
		return "", newTTSError(fmt.Errorf("empty text"))
	}

	settings, resolved, fellBack := agent.ResolveVoice(profile)
	if fellBack {
		// Unknown profile -> fallback profile with a warning log (spec §4.4).
		r.log.Warn("tts: unknown voice profile, falling back", "profile", profile, "fallback", resolved)
	}

	pcm, err := r.requestPCM(ctx, text, settings)
	if err != nil {
		return resolved, err
	}

	if err := audio.WriteWAVPCM16LEFile(outPath, pcm, r.cfg.SampleRate); err != nil {
		return resolved, newTTSError(fmt.Errorf("write wav: %w", err))
	}
	return resolved, nil
}

func (r *Renderer) requestPCM(ctx context.Context, text string, settings agent.VoiceSettings) ([]byte, error) {
	body := ttsRequestBody{
		Text:    text,
		ModelID: settings.ModelID,
		VoiceSettings: voiceSettings{
			Stability:       clampFloat(settings.Stability, 0, 1),
			SimilarityBoost: clampFloat(settings.SimilarityBoost, 0, 1),
			Style:           clampFloat(settings.Style, 0, 1),
			SpeakerBoost:    settings.SpeakerBoost,
			Speed:           settings.Speed,
		},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, newTTSError(err)
	}

	url := fmt.Sprintf("%s/v1/text-to-speech/%s?output_format=pcm_%d",
		strings.TrimRight(r.cfg.BaseURL, "/"), settings.ProviderVoiceID, r.cfg.SampleRate)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, newTTSError(err)
	}
	req.Header.Set("xi-api-key", r.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, classifyTransport(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, classifyStatus(resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func clampFloat(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

type classifiedErr struct {
	class errclass.Class
	err   error
}

func (e *classifiedErr) Error() string         { return e.err.Error() }
func (e *classifiedErr) Unwrap() error         { return e.err }
func (e *classifiedErr) Class() errclass.Class { return e.class }

func newTTSError(err error) error { return &classifiedErr{class: errclass.TTSError, err: err} }

func classifyStatus(status int) error {
	class := errclass.ClassifyHTTPStatus(status)
	if class == errclass.Unknown {
		class = errclass.TTSError
	}
	return &classifiedErr{class: class, err: fmt.Errorf("tts upstream status %d", status)}
}

func classifyTransport(err error) error {
	return &classifiedErr{class: errclass.Network, err: err}
}
