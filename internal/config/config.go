// Package config loads and validates the environment-driven
// configuration described in the project's external interface spec.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	// Voice platform
	VoicePlatformToken string
	ServerID           string
	VoiceChannelID     string
	TextChannelID      string
	AllowedUsers       map[string]struct{}

	// Brain client
	BrainURL     string
	BrainToken   string
	BrainModel   string
	SessionUser  string
	BrainTimeout time.Duration

	// STT
	STTProvider   string
	VoskModelPath string
	DeepgramKey   string

	// TTS
	TTSProvider string
	TTSKey      string
	TTSVoice    string

	// Gate
	WakeWordEnabled     bool
	WakeWordPhrases     []string
	ConversationWindow  time.Duration
	StreamingTTSEnabled bool

	// Alerts
	AlertWebhookPort  int
	AlertWebhookToken string
	BindAddress       string

	// Memory bounds
	HistoryCap         int
	ConversationIdleTTL time.Duration

	// Ambient
	LogLevel  string
	LogFormat string
	DataDir   string
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("no .env file found, using environment variables only")
	}

	cfg := &Config{
		VoicePlatformToken: os.Getenv("VOICE_PLATFORM_TOKEN"),
		ServerID:           os.Getenv("SERVER_ID"),
		VoiceChannelID:     os.Getenv("VOICE_CHANNEL_ID"),
		TextChannelID:      os.Getenv("TEXT_CHANNEL_ID"),
		AllowedUsers:       parseAllowList(os.Getenv("ALLOWED_USERS")),

		BrainURL:     os.Getenv("BRAIN_URL"),
		BrainToken:   os.Getenv("BRAIN_TOKEN"),
		BrainModel:   getEnvOrDefault("BRAIN_MODEL", "gpt-4o-mini"),
		SessionUser:  getEnvOrDefault("SESSION_USER", "voicebridge"),
		BrainTimeout: time.Duration(getIntEnvOrDefault("BRAIN_TIMEOUT_MS", 60000)) * time.Millisecond,

		STTProvider:   getEnvOrDefault("STT_PROVIDER", "vosk"),
		VoskModelPath: getEnvOrDefault("VOSK_MODEL_PATH", "./models/vosk/en"),
		DeepgramKey:   os.Getenv("DEEPGRAM_API_KEY"),

		TTSProvider: getEnvOrDefault("TTS_PROVIDER", "elevenlabs"),
		TTSKey:      os.Getenv("TTS_API_KEY"),
		TTSVoice:    os.Getenv("TTS_VOICE"),

		WakeWordEnabled:     getBoolEnvOrDefault("WAKE_WORD_ENABLED", false),
		WakeWordPhrases:     parseList(os.Getenv("WAKE_WORD_PHRASES")),
		ConversationWindow:  time.Duration(getIntEnvOrDefault("CONVERSATION_WINDOW_MS", 60000)) * time.Millisecond,
		StreamingTTSEnabled: getBoolEnvOrDefault("STREAMING_TTS_ENABLED", true),

		AlertWebhookPort:  getIntEnvOrDefault("ALERT_WEBHOOK_PORT", 8089),
		AlertWebhookToken: os.Getenv("ALERT_WEBHOOK_TOKEN"),
		BindAddress:       getEnvOrDefault("BIND_ADDRESS", "127.0.0.1"),

		HistoryCap:           getIntEnvOrDefault("HISTORY_CAP", 40),
		ConversationIdleTTL: time.Duration(getIntEnvOrDefault("CONVERSATION_IDLE_TTL_MS", 1800000)) * time.Millisecond,

		LogLevel:  getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat: getEnvOrDefault("LOG_FORMAT", "console"),
		DataDir:   getEnvOrDefault("DATA_DIR", "./data"),
	}

	return cfg, cfg.validate()
}

func (c *Config) validate() error {
	if c.VoicePlatformToken == "" {
		return fmt.Errorf("VOICE_PLATFORM_TOKEN is required")
	}
	if c.ServerID == "" || c.VoiceChannelID == "" {
		return fmt.Errorf("SERVER_ID and VOICE_CHANNEL_ID are required")
	}
	if c.BrainURL == "" {
		return fmt.Errorf("BRAIN_URL is required")
	}
	if c.STTProvider != "vosk" && c.STTProvider != "deepgram" {
		return fmt.Errorf("STT_PROVIDER must be 'vosk' or 'deepgram'")
	}
	if c.STTProvider == "deepgram" && c.DeepgramKey == "" {
		return fmt.Errorf("DEEPGRAM_API_KEY is required when using deepgram backend")
	}
	if c.WakeWordEnabled && len(c.WakeWordPhrases) == 0 {
		return fmt.Errorf("WAKE_WORD_PHRASES is required when WAKE_WORD_ENABLED is true")
	}
	return nil
}

// IsAllowed reports whether a user is on the configured allow-list. An
// empty allow-list means no one is allowed, which is deliberate: the
// operator must opt users in explicitly.
func (c *Config) IsAllowed(userID string) bool {
	_, ok := c.AllowedUsers[userID]
	return ok
}

func parseAllowList(v string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, id := range parseList(v) {
		out[id] = struct{}{}
	}
	return out
}

func parseList(v string) []string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnvOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getBoolEnvOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
