package app

import (
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/aussiebroadwan/companion/pkg/chat"
	"github.com/aussiebroadwan/companion/pkg/chat/stompws"
	"github.com/aussiebroadwan/companion/pkg/companionsdk"
	"github.com/aussiebroadwan/companion/pkg/httpx"
)

type Config struct {
	APIURL           string        // Companion API base URL (default: http://localhost:8080)
	WSPath           string        // STOMP endpoint path (default: /ws/chat)
	SockJS           bool          // Use the SockJS websocket transport (default: true)
	RefreshPath      string        // Token refresh endpoint (default: /api/auth/refresh)
	DataDir          string        // Directory for local state (default: $XDG_CONFIG_HOME/companion)
	TokenDB          string        // SQLite file, relative to DataDir unless absolute (default: companion.db)
	VaultPassphrase  string        // Optional: seals stored tokens at rest
	RedisAddr        string        // Optional: keep remembered tokens in Redis instead of SQLite
	RedisKey         string        // Redis key for the token pair (default: companion:token)
	ReconnectBackoff time.Duration // Gap between chat connect attempts (default: 5s)
	HTTPTimeout      time.Duration // Per-request timeout (default: 10s)
	Env              string        // Environment (dev, staging, prod) (default: prod)
	LogLevel         string        // Log level (debug, info, warn, error) (default: warn)
	LogFormat        string        // Log format (json, text) (default: text)
	RateLimit        httpx.RateLimitConfig
}

func LoadConfig() Config {
	return Config{
		APIURL:           getEnvOrDefault("COMPANION_API_URL", "http://localhost:8080"),
		WSPath:           getEnvOrDefault("COMPANION_WS_PATH", stompws.DefaultPath),
		SockJS:           getEnvBoolOrDefault("COMPANION_SOCKJS", true),
		RefreshPath:      getEnvOrDefault("COMPANION_REFRESH_PATH", companionsdk.DefaultRefreshPath),
		DataDir:          getEnvOrDefault("COMPANION_DATA_DIR", defaultDataDir()),
		TokenDB:          getEnvOrDefault("COMPANION_TOKEN_DB", "companion.db"),
		VaultPassphrase:  os.Getenv("COMPANION_VAULT_PASSPHRASE"),
		RedisAddr:        os.Getenv("COMPANION_REDIS_ADDR"),
		RedisKey:         getEnvOrDefault("COMPANION_REDIS_KEY", "companion:token"),
		ReconnectBackoff: getEnvDurationOrDefault("COMPANION_RECONNECT_BACKOFF", chat.DefaultReconnectBackoff),
		HTTPTimeout:      getEnvDurationOrDefault("COMPANION_HTTP_TIMEOUT", companionsdk.DefaultTimeout),
		Env:              getEnvOrDefault("ENV", "prod"),
		LogLevel:         getEnvOrDefault("LOG_LEVEL", "warn"),
		LogFormat:        getEnvOrDefault("LOG_FORMAT", "text"),
		RateLimit:        httpx.ParseRateLimitFromEnv("API", httpx.DefaultAPILimit),
	}
}

// TokenDBPath resolves TokenDB against DataDir.
func (c Config) TokenDBPath() string {
	if filepath.IsAbs(c.TokenDB) {
		return c.TokenDB
	}
	return filepath.Join(c.DataDir, c.TokenDB)
}

func defaultDataDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "."
	}
	return filepath.Join(dir, "companion")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "5s", "1m")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Bare integers are seconds
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}

	return defaultValue
}
