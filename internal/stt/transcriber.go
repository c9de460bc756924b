// Package stt implements the one-shot transcription call behind
// POST /v1/stt (spec §6.1): accept an uploaded audio clip, forward it
// to ElevenLabs' speech-to-text REST endpoint, and persist the
// transcript alongside the original upload under the session store's
// STT directory. Adapted from the teacher's realtime
// ElevenLabsProvider (internal/voice/elevenlabs.go), which drives the
// streaming "scribe" websocket for live captions — this package
// instead makes one synchronous multipart REST call, matching the
// same one-shot adaptation internal/tts/renderer.go already makes for
// ElevenLabs TTS.
package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/watershed-arts/basin/internal/errclass"
	"github.com/watershed-arts/basin/internal/session"
)

// Config carries the ElevenLabs STT REST endpoint and credential.
type Config struct {
	APIKey     string
	BaseURL    string // default https://api.elevenlabs.io
	ModelID    string // default scribe_v1
	HTTPClient *http.Client
}

// Transcriber turns an uploaded audio file into a persisted
// transcript.
type Transcriber struct {
	cfg      Config
	sessions *session.Store
}

func NewTranscriber(cfg Config, sessions *session.Store) *Transcriber {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://api.elevenlabs.io"
	}
	if strings.TrimSpace(cfg.ModelID) == "" {
		cfg.ModelID = "scribe_v1"
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Transcriber{cfg: cfg, sessions: sessions}
}

// Result is the response shape of spec §6.1's POST /v1/stt.
type Result struct {
	SttSessionID   string `json:"sttSessionId"`
	Transcript     string `json:"transcript"`
	AudioPath      string `json:"audioPath"`
	TranscriptPath string `json:"transcriptPath"`
	DurationMs     int64  `json:"durationMs"`
	MimeType       string `json:"mimeType"`
}

type elevenSTTResponse struct {
	Text            string  `json:"text"`
	LanguageCode    string  `json:"language_code"`
	LanguageProb    float64 `json:"language_probability"`
}

// Transcribe saves the uploaded clip, requests a transcript from
// ElevenLabs, and persists transcript.json/transcript.txt next to the
// input file, per the artifact layout of spec §6.3.
func (t *Transcriber) Transcribe(ctx context.Context, filename, mimeType string, body io.Reader) (Result, error) {
	sttSessionID := uuid.NewString()

	dir, err := t.sessions.STTDir(sttSessionID)
	if err != nil {
		return Result{}, wrap(errclass.Unknown, err)
	}

	ext := filepath.Ext(filename)
	if ext == "" {
		ext = extForMime(mimeType)
	}
	inputPath := filepath.Join(dir, "input"+ext)

	raw, err := io.ReadAll(body)
	if err != nil {
		return Result{}, wrap(errclass.Unknown, err)
	}
	if len(raw) == 0 {
		return Result{}, wrap(errclass.Unknown, fmt.Errorf("empty upload"))
	}
	if err := os.WriteFile(inputPath, raw, 0o644); err != nil {
		return Result{}, wrap(errclass.Unknown, err)
	}

	start := time.Now()
	text, err := t.requestTranscript(ctx, filename, mimeType, raw)
	if err != nil {
		return Result{}, err
	}
	duration := time.Since(start).Milliseconds()

	transcriptTxtPath := filepath.Join(dir, "transcript.txt")
	transcriptJSONPath := filepath.Join(dir, "transcript.json")
	metadataPath := filepath.Join(dir, "metadata.json")

	if err := os.WriteFile(transcriptTxtPath, []byte(text), 0o644); err != nil {
		return Result{}, wrap(errclass.Unknown, err)
	}
	transcriptDoc, _ := json.MarshalIndent(map[string]any{"text": text}, "", "  ")
	if err := os.WriteFile(transcriptJSONPath, transcriptDoc, 0o644); err != nil {
		return Result{}, wrap(errclass.Unknown, err)
	}
	metaDoc, _ := json.MarshalIndent(map[string]any{
		"mimeType":   mimeType,
		"durationMs": duration,
	}, "", "  ")
	_ = os.WriteFile(metadataPath, metaDoc, 0o644)

	return Result{
		SttSessionID:   sttSessionID,
		Transcript:     text,
		AudioPath:      inputPath,
		TranscriptPath: transcriptTxtPath,
		DurationMs:     duration,
		MimeType:       mimeType,
	}, nil
}

func (t *Transcriber) requestTranscript(ctx context.Context, filename, mimeType string, raw []byte) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("model_id", t.cfg.ModelID); err != nil {
		return "", wrap(errclass.Unknown, err)
	}
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", wrap(errclass.Unknown, err)
	}
	if _, err := part.Write(raw); err != nil {
		return "", wrap(errclass.Unknown, err)
	}
	if err := mw.Close(); err != nil {
		return "", wrap(errclass.Unknown, err)
	}

	url := strings.TrimRight(t.cfg.BaseURL, "/") + "/v1/speech-to-text"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return "", wrap(errclass.Unknown, err)
	}
	req.Header.Set("xi-api-key", t.cfg.APIKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := t.cfg.HTTPClient.Do(req)
	if err != nil {
		return "", wrap(errclass.Network, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		class := errclass.ClassifyHTTPStatus(resp.StatusCode)
		if class == errclass.Unknown {
			class = errclass.ServerError
		}
		return "", wrap(class, fmt.Errorf("stt upstream status %d", resp.StatusCode))
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", wrap(errclass.Network, err)
	}
	var parsed elevenSTTResponse
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return "", wrap(errclass.ServerError, fmt.Errorf("decode stt response: %w", err))
	}
	if strings.TrimSpace(parsed.Text) == "" {
		return "", wrap(errclass.ServerError, fmt.Errorf("empty transcript"))
	}
	return parsed.Text, nil
}

func extForMime(mimeType string) string {
	switch mimeType {
	case "audio/wav", "audio/x-wav", "audio/wave":
		return ".wav"
	case "audio/mpeg", "audio/mp3":
		return ".mp3"
	case "audio/ogg":
		return ".ogg"
	case "audio/webm":
		return ".webm"
	default:
		return ".bin"
	}
}

type classifiedErr struct {
	class errclass.Class
	err   error
}

func (e *classifiedErr) Error() string         { return e.err.Error() }
func (e *classifiedErr) Unwrap() error         { return e.err }
func (e *classifiedErr) Class() errclass.Class { return e.class }

func wrap(class errclass.Class, err error) error { return &classifiedErr{class: class, err: err} }
