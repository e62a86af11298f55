package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTPPort           string `yaml:"http_port"`
	HTTPMaxConnections int    `yaml:"http_max_connections"`
	LogLevel           string `yaml:"log_level"`

	AnalysisAPIURL           string `yaml:"analysis_api_url"`
	AnalysisTextPath         string `yaml:"analysis_text_path"`
	AnalysisFilePath         string `yaml:"analysis_file_path"`
	AnalysisTimeoutSeconds   int    `yaml:"analysis_timeout_seconds"`
	AnalysisRetryMaxAttempts int    `yaml:"analysis_retry_max_attempts"`
	AnalysisBreakerEnabled   bool   `yaml:"analysis_breaker_enabled"`

	StoragePath    string `yaml:"storage_path"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`
	PreviewChars   int    `yaml:"preview_chars"`

	SessionTTLMinutes   int `yaml:"session_ttl_minutes"`
	SessionSweepSeconds int `yaml:"session_sweep_seconds"`

	APIRateLimitRPS       float64 `yaml:"api_rate_limit_rps"`
	APIRateLimitBurst     int     `yaml:"api_rate_limit_burst"`
	APIMaxInFlight        int     `yaml:"api_max_in_flight"`
	APIBackpressureWaitMS int     `yaml:"api_backpressure_wait_ms"`
}

func Defaults() Config {
	return Config{
		HTTPPort:           "8080",
		HTTPMaxConnections: 256,
		LogLevel:           "info",

		AnalysisAPIURL:           "http://localhost:8000",
		AnalysisTextPath:         "/api/process-email",
		AnalysisFilePath:         "/api/upload-file",
		AnalysisTimeoutSeconds:   0,
		AnalysisRetryMaxAttempts: 1,
		AnalysisBreakerEnabled:   false,

		StoragePath:    "./data/uploads",
		MaxUploadBytes: 10 << 20,
		PreviewChars:   280,

		SessionTTLMinutes:   30,
		SessionSweepSeconds: 60,

		APIRateLimitRPS:       0,
		APIRateLimitBurst:     20,
		APIMaxInFlight:        64,
		APIBackpressureWaitMS: 50,
	}
}

// Load reads the environment over the defaults.
func Load() Config {
	return applyEnv(Defaults())
}

// LoadFile reads an optional YAML file over the defaults, then the environment
// over that. An empty path behaves like Load.
func LoadFile(path string) (Config, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Load(), nil
	}
	cfg := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return applyEnv(cfg), nil
}

func applyEnv(cfg Config) Config {
	return Config{
		HTTPPort:           mustEnv("HTTP_PORT", cfg.HTTPPort),
		HTTPMaxConnections: mustEnvInt("HTTP_MAX_CONNECTIONS", cfg.HTTPMaxConnections),
		LogLevel:           mustEnv("LOG_LEVEL", cfg.LogLevel),

		AnalysisAPIURL:           mustEnv("ANALYSIS_API_URL", cfg.AnalysisAPIURL),
		AnalysisTextPath:         mustEnv("ANALYSIS_TEXT_PATH", cfg.AnalysisTextPath),
		AnalysisFilePath:         mustEnv("ANALYSIS_FILE_PATH", cfg.AnalysisFilePath),
		AnalysisTimeoutSeconds:   mustEnvInt("ANALYSIS_TIMEOUT_SECONDS", cfg.AnalysisTimeoutSeconds),
		AnalysisRetryMaxAttempts: mustEnvInt("ANALYSIS_RETRY_MAX_ATTEMPTS", cfg.AnalysisRetryMaxAttempts),
		AnalysisBreakerEnabled:   mustEnvBool("ANALYSIS_BREAKER_ENABLED", cfg.AnalysisBreakerEnabled),

		StoragePath:    mustEnv("STORAGE_PATH", cfg.StoragePath),
		MaxUploadBytes: mustEnvInt64("MAX_UPLOAD_BYTES", cfg.MaxUploadBytes),
		PreviewChars:   mustEnvInt("PREVIEW_CHARS", cfg.PreviewChars),

		SessionTTLMinutes:   mustEnvInt("SESSION_TTL_MINUTES", cfg.SessionTTLMinutes),
		SessionSweepSeconds: mustEnvInt("SESSION_SWEEP_SECONDS", cfg.SessionSweepSeconds),

		APIRateLimitRPS:       mustEnvFloat("API_RATE_LIMIT_RPS", cfg.APIRateLimitRPS),
		APIRateLimitBurst:     mustEnvInt("API_RATE_LIMIT_BURST", cfg.APIRateLimitBurst),
		APIMaxInFlight:        mustEnvInt("API_MAX_IN_FLIGHT", cfg.APIMaxInFlight),
		APIBackpressureWaitMS: mustEnvInt("API_BACKPRESSURE_WAIT_MS", cfg.APIBackpressureWaitMS),
	}
}

func mustEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func mustEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}
