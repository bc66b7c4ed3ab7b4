package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type StateBackend string

const (
	BackendMemory   StateBackend = "memory"
	BackendPostgres StateBackend = "postgres"
	BackendRedis    StateBackend = "redis"
)

type ServerConfig struct {
	HTTPAddr    string
	IntentsPath string

	StateBackend  StateBackend
	DBDSN         string
	RedisAddr     string
	RedisPassword string

	ExtractorBaseURL string
	ExtractorTimeout time.Duration
	RendererBaseURL  string
	RendererTimeout  time.Duration

	HistoryLimit       int
	SessionIdleTimeout time.Duration
	ExpiryScanInterval time.Duration

	MinAcceptConfidence  float64
	ReclassifyConfidence float64
}

func LoadServerConfig() (ServerConfig, error) {
	cfg := ServerConfig{
		HTTPAddr:    getenvDefault("HELPDESK_HTTP_ADDR", ":8090"),
		IntentsPath: getenvDefault("HELPDESK_INTENTS_PATH", "config/intents.yaml"),

		StateBackend:  StateBackend(getenvDefault("HELPDESK_STATE_BACKEND", "memory")),
		DBDSN:         os.Getenv("DB_DSN"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		ExtractorBaseURL: os.Getenv("EXTRACTOR_BASE_URL"),
		ExtractorTimeout: time.Duration(getenvIntDefault("EXTRACTOR_TIMEOUT_SECONDS", 5)) * time.Second,
		RendererBaseURL:  os.Getenv("RENDERER_BASE_URL"),
		RendererTimeout:  time.Duration(getenvIntDefault("RENDERER_TIMEOUT_SECONDS", 5)) * time.Second,

		HistoryLimit:       getenvIntDefault("HELPDESK_HISTORY_LIMIT", 20),
		SessionIdleTimeout: time.Duration(getenvIntDefault("SESSION_IDLE_TIMEOUT_MINUTES", 30)) * time.Minute,
		ExpiryScanInterval: time.Duration(getenvIntDefault("EXPIRY_SCAN_INTERVAL_MINUTES", 5)) * time.Minute,

		MinAcceptConfidence:  getenvFloatDefault("MIN_ACCEPT_CONFIDENCE", 0.3),
		ReclassifyConfidence: getenvFloatDefault("RECLASSIFY_CONFIDENCE_THRESHOLD", 0.6),
	}

	switch cfg.StateBackend {
	case BackendMemory:
	case BackendPostgres:
		if cfg.DBDSN == "" {
			return ServerConfig{}, fmt.Errorf("DB_DSN is required when HELPDESK_STATE_BACKEND=postgres")
		}
	case BackendRedis:
		if cfg.RedisAddr == "" {
			return ServerConfig{}, fmt.Errorf("REDIS_ADDR is required when HELPDESK_STATE_BACKEND=redis")
		}
	default:
		return ServerConfig{}, fmt.Errorf("unknown HELPDESK_STATE_BACKEND %q", cfg.StateBackend)
	}

	if cfg.ExtractorBaseURL == "" {
		return ServerConfig{}, fmt.Errorf("EXTRACTOR_BASE_URL is required")
	}
	if cfg.MinAcceptConfidence < 0 || cfg.MinAcceptConfidence > 1 {
		return ServerConfig{}, fmt.Errorf("MIN_ACCEPT_CONFIDENCE must be in [0,1]")
	}
	if cfg.ReclassifyConfidence < cfg.MinAcceptConfidence || cfg.ReclassifyConfidence > 1 {
		return ServerConfig{}, fmt.Errorf("RECLASSIFY_CONFIDENCE_THRESHOLD must be in [MIN_ACCEPT_CONFIDENCE,1]")
	}

	return cfg, nil
}

func getenvDefault(key, val string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return val
}

func getenvIntDefault(key string, val int) int {
	v := os.Getenv(key)
	if v == "" {
		return val
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return val
	}
	return n
}

func getenvFloatDefault(key string, val float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return val
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return val
	}
	return f
}
