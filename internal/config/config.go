package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the installation backend.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	AllowAnyOrigin bool
	CORSOrigins    string
	LogLevel       string

	ArtifactsRoot       string
	DefaultSystemPrompt string

	LLMTemperature float64
	LLMMaxTokens   int
	LLMTimeout     time.Duration
	LLMRetries     int

	AnthropicAPIKey string
	OpenAIAPIKey    string
	ElevenLabsAPIKey string

	WavesEnabled       bool
	WavesMaxWorkers    int
	WavesQueueMaxSize  int
	WavesJobTimeout    time.Duration
	WavesProcessingSR  int

	EventsWSEnabled          bool
	EventsTurn1Timeout       time.Duration
	EventsDialogueTimeout    time.Duration

	DatabaseURL string
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:            envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:    envOrDefault("APP_METRICS_NAMESPACE", "basin"),
		AllowAnyOrigin:      false,
		CORSOrigins:         envOrDefault("APP_CORS_ORIGINS", "*"),
		LogLevel:            envOrDefault("APP_LOG_LEVEL", "info"),
		ArtifactsRoot:       envOrDefault("ARTIFACTS_ROOT", "artifacts"),
		DefaultSystemPrompt: envOrDefault("DEFAULT_SYSTEM_PROMPT", "You are one of six voices speaking around a water basin. Speak briefly and evocatively."),
		AnthropicAPIKey:     stringsTrimSpace("ANTHROPIC_API_KEY"),
		OpenAIAPIKey:        stringsTrimSpace("OPENAI_API_KEY"),
		ElevenLabsAPIKey:    stringsTrimSpace("ELEVENLABS_API_KEY"),
		DatabaseURL:         stringsTrimSpace("DATABASE_URL"),

		LLMTemperature: 0.9,
		LLMMaxTokens:   300,
		LLMTimeout:     60 * time.Second,
		LLMRetries:     3,

		WavesEnabled:      true,
		WavesMaxWorkers:   4,
		WavesQueueMaxSize: 256,
		WavesJobTimeout:   60 * time.Second,
		WavesProcessingSR: 8000,

		EventsWSEnabled:       true,
		EventsTurn1Timeout:    15 * time.Second,
		EventsDialogueTimeout: 15 * time.Second,

		ShutdownTimeout: 15 * time.Second,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.LLMTemperature, err = floatFromEnv("LLM_TEMPERATURE", cfg.LLMTemperature)
	if err != nil {
		return Config{}, err
	}
	cfg.LLMMaxTokens, err = intFromEnv("LLM_MAX_TOKENS", cfg.LLMMaxTokens)
	if err != nil {
		return Config{}, err
	}
	cfg.LLMTimeout, err = durationFromEnv("LLM_TIMEOUT_S", cfg.LLMTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.LLMRetries, err = intFromEnv("LLM_RETRIES", cfg.LLMRetries)
	if err != nil {
		return Config{}, err
	}
	cfg.WavesEnabled, err = boolFromEnv("WAVES_ENABLED", cfg.WavesEnabled)
	if err != nil {
		return Config{}, err
	}
	cfg.WavesMaxWorkers, err = intFromEnv("WAVES_MAX_WORKERS", cfg.WavesMaxWorkers)
	if err != nil {
		return Config{}, err
	}
	cfg.WavesQueueMaxSize, err = intFromEnv("WAVES_QUEUE_MAX_SIZE", cfg.WavesQueueMaxSize)
	if err != nil {
		return Config{}, err
	}
	cfg.WavesJobTimeout, err = durationFromEnv("WAVES_JOB_TIMEOUT_S", cfg.WavesJobTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.WavesProcessingSR, err = intFromEnv("WAVES_PROCESSING_SR", cfg.WavesProcessingSR)
	if err != nil {
		return Config{}, err
	}
	cfg.EventsWSEnabled, err = boolFromEnv("EVENTS_WS_ENABLED", cfg.EventsWSEnabled)
	if err != nil {
		return Config{}, err
	}
	cfg.EventsTurn1Timeout, err = durationFromEnv("EVENTS_TURN1_TIMEOUT_S", cfg.EventsTurn1Timeout)
	if err != nil {
		return Config{}, err
	}
	cfg.EventsDialogueTimeout, err = durationFromEnv("EVENTS_DIALOGUE_TIMEOUT_S", cfg.EventsDialogueTimeout)
	if err != nil {
		return Config{}, err
	}

	if cfg.WavesMaxWorkers <= 0 {
		return Config{}, fmt.Errorf("WAVES_MAX_WORKERS must be positive")
	}
	if cfg.WavesQueueMaxSize < 0 {
		return Config{}, fmt.Errorf("WAVES_QUEUE_MAX_SIZE must be >= 0")
	}
	if cfg.WavesProcessingSR <= 0 {
		return Config{}, fmt.Errorf("WAVES_PROCESSING_SR must be positive")
	}
	if cfg.LLMRetries < 0 {
		return Config{}, fmt.Errorf("LLM_RETRIES must be >= 0")
	}
	if cfg.LLMMaxTokens <= 0 {
		return Config{}, fmt.Errorf("LLM_MAX_TOKENS must be positive")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
