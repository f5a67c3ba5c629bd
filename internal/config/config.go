package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the voice session control plane.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string

	AllowAnyOrigin bool

	// Media server (LiveKit-compatible) connection.
	LiveKitURL       string
	LiveKitAPIKey    string
	LiveKitAPISecret string
	DefaultRoomName  string
	TokenTTL         time.Duration

	// Voice capability providers.
	OpenAIAPIKey     string
	AssemblyAIAPIKey string
	RimeAPIKey       string
	LLMModel         string

	// Agent process supervision.
	AgentCommand     string
	AgentSettleDelay time.Duration
	AgentStopTimeout time.Duration

	// Event relay.
	HeartbeatInterval time.Duration
	SubscriberBuffer  int

	// Conversation history persistence. Empty means in-memory only.
	DatabaseURL string

	// Control plane URL the standalone agent posts events back to.
	ControlPlaneURL string
}

// Load reads environment variables and applies safe defaults. Missing
// credentials are left empty rather than failing fast; the dependent call
// surfaces the configuration error when attempted.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("APP_BIND_ADDR", ":5000"),
		MetricsNamespace: envOrDefault("APP_METRICS_NAMESPACE", "voxgate"),
		AllowAnyOrigin:   true,

		LiveKitURL:       envTrimmed("LIVEKIT_URL"),
		LiveKitAPIKey:    envTrimmed("LIVEKIT_API_KEY"),
		LiveKitAPISecret: envTrimmed("LIVEKIT_API_SECRET"),
		DefaultRoomName:  envOrDefault("ROOM_NAME", "multi-agent-voice-room"),

		OpenAIAPIKey:     envTrimmed("OPENAI_API_KEY"),
		AssemblyAIAPIKey: envTrimmed("ASSEMBLYAI_API_KEY"),
		RimeAPIKey:       envTrimmed("RIME_API_KEY"),
		LLMModel:         envOrDefault("LLM_MODEL", "gpt-4o-mini"),

		AgentCommand:    envOrDefault("AGENT_CMD", "voxgate-agent"),
		DatabaseURL:     envTrimmed("DATABASE_URL"),
		ControlPlaneURL: envOrDefault("CONTROL_PLANE_URL", "http://127.0.0.1:5000"),

		TokenTTL:          time.Hour,
		ShutdownTimeout:   15 * time.Second,
		AgentSettleDelay:  2 * time.Second,
		AgentStopTimeout:  10 * time.Second,
		HeartbeatInterval: 30 * time.Second,
		SubscriberBuffer:  64,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.TokenTTL, err = durationFromEnv("TOKEN_TTL", cfg.TokenTTL)
	if err != nil {
		return Config{}, err
	}
	cfg.AgentSettleDelay, err = durationFromEnv("AGENT_SETTLE_DELAY", cfg.AgentSettleDelay)
	if err != nil {
		return Config{}, err
	}
	cfg.AgentStopTimeout, err = durationFromEnv("AGENT_STOP_TIMEOUT", cfg.AgentStopTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.HeartbeatInterval, err = durationFromEnv("SSE_HEARTBEAT_INTERVAL", cfg.HeartbeatInterval)
	if err != nil {
		return Config{}, err
	}
	cfg.SubscriberBuffer, err = intFromEnv("SSE_SUBSCRIBER_BUFFER", cfg.SubscriberBuffer)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}

	if cfg.TokenTTL < time.Minute {
		return Config{}, fmt.Errorf("TOKEN_TTL must be at least 1m")
	}
	if cfg.HeartbeatInterval < time.Second {
		return Config{}, fmt.Errorf("SSE_HEARTBEAT_INTERVAL must be at least 1s")
	}
	if cfg.SubscriberBuffer <= 0 {
		return Config{}, fmt.Errorf("SSE_SUBSCRIBER_BUFFER must be positive")
	}

	return cfg, nil
}

// LiveKitConfigured reports whether the media server credentials are present.
func (c Config) LiveKitConfigured() bool {
	return c.LiveKitURL != "" && c.LiveKitAPIKey != "" && c.LiveKitAPISecret != ""
}

func envOrDefault(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func envTrimmed(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := envTrimmed(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := envTrimmed(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(envTrimmed(key))
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
