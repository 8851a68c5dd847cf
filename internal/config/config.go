// Package config holds environment-driven configuration for the CLI and
// for tunable Page Room parameters, in the teacher's getEnv/getEnvInt
// defaulting idiom from cmd/server/main.go.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config governs the CLI's HTTP/websocket endpoints and the room's
// tunable behavior: push retry bound, socket timeouts, and reconnect
// backoff bounds. CommitBufferSize is loaded but not passed to any
// component; the room's subscriber buffers have a fixed size.
type Config struct {
	BaseURL            string
	WebsocketURL       string
	PushRetryBound     int
	WSReadTimeout      time.Duration
	WSWriteTimeout     time.Duration
	CommitBufferSize   int
	ReconnectBaseDelay time.Duration
	ReconnectMaxDelay  time.Duration
}

// Load builds a Config from environment variables, defaulting every
// field the way the teacher's cmd/server/main.go does.
func Load() Config {
	return Config{
		BaseURL:            getEnv("SCRAPBOX_BASE_URL", "https://scrapbox.io"),
		WebsocketURL:       getEnv("SCRAPBOX_WS_URL", "wss://scrapbox.io/socket.io/"),
		PushRetryBound:     getEnvInt("PUSH_RETRY_BOUND", 3),
		WSReadTimeout:      getEnvDuration("WS_READ_TIMEOUT_SECONDS", 30*time.Second),
		WSWriteTimeout:     getEnvDuration("WS_WRITE_TIMEOUT_SECONDS", 10*time.Second),
		CommitBufferSize:   getEnvInt("COMMIT_BUFFER_SIZE", 16),
		ReconnectBaseDelay: getEnvDuration("RECONNECT_BASE_DELAY_SECONDS", 1*time.Second),
		ReconnectMaxDelay:  getEnvDuration("RECONNECT_MAX_DELAY_SECONDS", 10*time.Second),
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

// getEnvDuration reads an integer number of seconds from the environment
// and converts it to a time.Duration; defaultValue is itself a Duration
// so callers don't repeat the unit at every call site.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return time.Duration(i) * time.Second
		}
	}
	return defaultValue
}
