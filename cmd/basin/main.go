// Command basin runs the installation backend: it wires the
// conversation/session stores, the LLM gateway's provider plug-ins,
// the TTS renderer, the one-shot transcriber, the wave decomposition
// pool, and the renderer push channel behind the /v1/* HTTP surface,
// then serves until a shutdown signal arrives. Grounded on the
// teacher's cmd/samantha/main.go: config load, provider selection,
// signal-handled graceful shutdown.
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/watershed-arts/basin/internal/agent"
	"github.com/watershed-arts/basin/internal/config"
	"github.com/watershed-arts/basin/internal/conversation"
	"github.com/watershed-arts/basin/internal/httpapi"
	"github.com/watershed-arts/basin/internal/llm"
	"github.com/watershed-arts/basin/internal/observability"
	"github.com/watershed-arts/basin/internal/renderer"
	"github.com/watershed-arts/basin/internal/session"
	"github.com/watershed-arts/basin/internal/stt"
	"github.com/watershed-arts/basin/internal/tts"
	"github.com/watershed-arts/basin/internal/wave"
	"github.com/watershed-arts/basin/internal/workflow"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()

	var auditSink session.AuditSink
	if strings.TrimSpace(cfg.DatabaseURL) != "" {
		sink, err := session.NewPostgresAuditSink(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("postgres audit sink init failed: %v", err)
		}
		auditSink = sink
		defer sink.Close()
	}

	sessions := session.NewStore(cfg.ArtifactsRoot, auditSink)
	conv := conversation.NewStore(cfg.DefaultSystemPrompt)

	providers := buildProviders(cfg, logger)
	gateway := llm.NewGateway(providers, cfg.LLMRetries)

	ttsRenderer := tts.NewRenderer(tts.Config{
		APIKey:     cfg.ElevenLabsAPIKey,
		HTTPClient: &http.Client{Timeout: cfg.LLMTimeout},
		SampleRate: cfg.WavesProcessingSR,
	})
	transcriber := stt.NewTranscriber(stt.Config{APIKey: cfg.ElevenLabsAPIKey}, sessions)

	wavePool := wave.NewPool(cfg.WavesMaxWorkers, cfg.WavesQueueMaxSize, cfg.WavesJobTimeout, logger)

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	go wavePool.Run(runCtx)

	hub := renderer.NewHub(cfg.AllowAnyOrigin, metrics, logger)
	renderOrch := renderer.NewOrchestrator(hub, cfg.EventsTurn1Timeout, cfg.EventsDialogueTimeout, logger)
	go renderOrch.Consume(runCtx, wavePool.Results())

	wf := &workflow.Orchestrator{
		Gateway:      gateway,
		Conv:         conv,
		Sessions:     sessions,
		TTS:          ttsRenderer,
		WavePool:     wavePool,
		Renderer:     renderOrch,
		Metrics:      metrics,
		Log:          logger,
		Temperature:  cfg.LLMTemperature,
		MaxTokens:    cfg.LLMMaxTokens,
		WavesEnabled: cfg.WavesEnabled,
	}

	api := httpapi.New(cfg, conv, wf, transcriber, hub, metrics, cfg.ArtifactsRoot)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	go func() {
		logger.Info("server listening", "addr", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutdown signal received")

	runCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", "error", err)
		_ = httpServer.Close()
	}

	logger.Info("shutdown complete")
}

// buildProviders resolves one llm.Provider per agent.Info.Provider
// name referenced by the fixed agent registry. A provider whose API
// key is unset falls back to the mock, mirroring the teacher's "auto"
// voice-provider fallback so the installation still runs end-to-end
// without credentials during development.
func buildProviders(cfg config.Config, logger *slog.Logger) map[string]llm.Provider {
	providers := make(map[string]llm.Provider, 3)
	mock := llm.NewMockProvider()

	needed := make(map[string]bool)
	for _, info := range agent.All() {
		needed[info.Provider] = true
	}

	if needed["anthropic"] {
		if strings.TrimSpace(cfg.AnthropicAPIKey) != "" {
			providers["anthropic"] = llm.NewAnthropicProvider(cfg.AnthropicAPIKey)
			logger.Info("llm provider ready", "provider", "anthropic")
		} else {
			providers["anthropic"] = mock
			logger.Warn("ANTHROPIC_API_KEY unset, falling back to mock provider", "provider", "anthropic")
		}
	}
	if needed["openai"] {
		if strings.TrimSpace(cfg.OpenAIAPIKey) != "" {
			providers["openai"] = llm.NewOpenAIProvider(cfg.OpenAIAPIKey)
			logger.Info("llm provider ready", "provider", "openai")
		} else {
			providers["openai"] = mock
			logger.Warn("OPENAI_API_KEY unset, falling back to mock provider", "provider", "openai")
		}
	}
	providers["mock"] = mock
	return providers
}

func logLevel(v string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
