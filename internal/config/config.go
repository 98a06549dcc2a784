// Package config provides configuration for the review service.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the service configuration.
type Config struct {
	// Server settings
	HTTPPort int

	// Database
	DatabaseURL string

	// Model API
	LLMBaseURL     string
	LLMAPIKey      string
	LLMModel       string
	LLMTemperature string
	Mode           string

	// Timeouts
	AgentTimeout time.Duration
	RunTimeout   time.Duration

	// Catalog and templates; empty means the embedded defaults.
	CatalogPath string
	PromptDir   string

	// Plan policy
	DisabledAgents []string

	// Websocket
	WSPingInterval time.Duration
	WSWriteTimeout time.Duration

	// Logging
	LogLevel string
}

// Load loads configuration from environment variables.
func Load() *Config {
	cfg := &Config{
		HTTPPort:       getEnvInt("HTTP_PORT", 8080),
		DatabaseURL:    getEnv("DATABASE_URL", "file:settle?mode=memory&cache=shared"),
		LLMBaseURL:     getEnv("LLM_BASE_URL", "https://api.openai.com/v1"),
		LLMAPIKey:      getEnv("LLM_API_KEY", ""),
		LLMModel:       getEnv("LLM_MODEL", ""),
		LLMTemperature: getEnv("LLM_TEMPERATURE", ""),
		Mode:           getEnv("SETTLE_MODE", ""),
		AgentTimeout:   time.Duration(getEnvInt("AGENT_TIMEOUT_MS", 300000)) * time.Millisecond,
		RunTimeout:     time.Duration(getEnvInt("RUN_TIMEOUT_MS", 1800000)) * time.Millisecond,
		CatalogPath:    getEnv("CATALOG_PATH", ""),
		PromptDir:      getEnv("PROMPT_DIR", ""),
		DisabledAgents: getEnvList("DISABLED_AGENTS"),
		WSPingInterval: time.Duration(getEnvInt("WS_PING_INTERVAL_MS", 30000)) * time.Millisecond,
		WSWriteTimeout: time.Duration(getEnvInt("WS_WRITE_TIMEOUT_MS", 10000)) * time.Millisecond,
		LogLevel:       getEnv("LOG_LEVEL", "info"),
	}
	return cfg
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
