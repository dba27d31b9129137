package bootstrap

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ChannelURL string
	APIBaseURL string
	SynthURL   string
	UploadURL  string
	APIToken   string

	ControlAddr string

	// StartTimeout bounds how long a start intent may wait for its state
	// acknowledgment before the latch is force-cleared.
	StartTimeout     time.Duration
	RecoveryDebounce time.Duration
	RecoveryTimeout  time.Duration

	ReconnectInitial  time.Duration
	ReconnectMaxDelay time.Duration
	ReconnectAttempts int

	// Fallbacks used when the preferences service is unreachable.
	DefaultHotkey string
	PlayerCommand string
}

func LoadConfig() *Config {
	_ = godotenv.Load()

	return &Config{
		ChannelURL: getEnv("CHANNEL_URL", "ws://localhost:8080/api/voice/ws"),
		APIBaseURL: getEnv("API_BASE_URL", "http://localhost:8080"),
		SynthURL:   getEnv("SYNTH_URL", "http://localhost:8080/api/synthesize"),
		UploadURL:  getEnv("TRANSCRIBE_URL", "http://localhost:8080/api/transcribe"),
		APIToken:   getEnv("API_TOKEN", ""),

		ControlAddr: getEnv("CONTROL_ADDR", "127.0.0.1:8719"),

		StartTimeout:     getEnvDuration("START_TIMEOUT", 5*time.Second),
		RecoveryDebounce: getEnvDuration("RECOVERY_DEBOUNCE", 300*time.Millisecond),
		RecoveryTimeout:  getEnvDuration("RECOVERY_TIMEOUT", 30*time.Second),

		ReconnectInitial:  getEnvDuration("RECONNECT_INITIAL", 500*time.Millisecond),
		ReconnectMaxDelay: getEnvDuration("RECONNECT_MAX_DELAY", 8*time.Second),
		ReconnectAttempts: getEnvInt("RECONNECT_ATTEMPTS", 5),

		DefaultHotkey: getEnv("DEFAULT_HOTKEY", "f8"),
		PlayerCommand: getEnv("PLAYER_CMD", ""),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
