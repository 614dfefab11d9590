package config

import (
	"os"
	"strconv"
	"strings"
)

// Config is the process-wide configuration, assembled entirely from
// environment variables at startup. Every key has a usable default so
// the gateway can boot with nothing set beyond MONGODB_URI.
type Config struct {
	Host     string
	Port     string
	LogLevel string
	BaseURL  string

	RedisURL    string
	RedisActive bool

	TCPPort       int
	BossThreads   int
	WorkerThreads int
	Backlog       int

	IdleTimeoutSeconds        int
	SessionIdleTimeoutSeconds int
	MaxSessions               int
	DefaultProtocol           string

	JWTSecret string

	TestMode bool
}

func LoadConfig() *Config {
	replitSlug := os.Getenv("REPL_SLUG")
	replitOwner := os.Getenv("REPL_OWNER")
	baseURL := ""
	if replitSlug != "" && replitOwner != "" {
		baseURL = "https://" + replitSlug + "." + replitOwner + ".repl.co"
	}

	return &Config{
		Host:     getEnv("HOST", "0.0.0.0"),
		Port:     getEnv("PORT", "8000"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		BaseURL:  baseURL,

		RedisURL:    getEnv("REDIS_URL", ""),
		RedisActive: strings.ToLower(getEnv("REDIS_ACTIVE", "false")) == "true",

		TCPPort:       getEnvInt("LISTEN_PORT", 5023),
		BossThreads:   getEnvInt("BOSS_THREADS", 1),
		WorkerThreads: getEnvInt("WORKER_THREADS", 0),
		Backlog:       getEnvInt("BACKLOG", 1024),

		IdleTimeoutSeconds:        getEnvInt("IDLE_TIMEOUT_SECONDS", 600),
		SessionIdleTimeoutSeconds: getEnvInt("SESSION_IDLE_TIMEOUT_SECONDS", 1800),
		MaxSessions:               getEnvInt("MAX_SESSIONS", 10000),
		DefaultProtocol:           getEnv("DEFAULT_PROTOCOL", "GT06"),

		JWTSecret: getEnv("JWT_SECRET", ""),

		TestMode: strings.ToLower(getEnv("TEST_MODE", "false")) == "true",
	}
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return strings.TrimSpace(value)
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return defaultValue
	}
	return n
}
