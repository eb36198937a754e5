package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the crowdplay service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	AllowAnyOrigin   bool

	// StateURL selects the persistence backend: empty or a plain path for the
	// JSON file store, sqlite://<path> for SQLite, postgres://... for Postgres.
	StateURL string

	InputCooldown     time.Duration
	ChatCooldown      time.Duration
	RateLimitCapacity int
	RateLimitTTL      time.Duration

	FramePeriod   time.Duration
	BatchFrames   int
	PlaybackDelay time.Duration

	InactivityPause time.Duration
	StatsInterval   time.Duration
	ClickDuration   time.Duration
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:          envOrDefault("APP_BIND_ADDR", ":8080"),
		MetricsNamespace:  envOrDefault("APP_METRICS_NAMESPACE", "crowdplay"),
		AllowAnyOrigin:    false,
		StateURL:          trimSpaceEnv("APP_STATE_URL"),
		ShutdownTimeout:   15 * time.Second,
		InputCooldown:     1500 * time.Millisecond,
		ChatCooldown:      time.Second,
		RateLimitCapacity: 1000,
		RateLimitTTL:      10 * time.Second,
		FramePeriod:       150 * time.Millisecond,
		BatchFrames:       30,
		PlaybackDelay:     220 * time.Millisecond,
		InactivityPause:   2 * time.Minute,
		StatsInterval:     time.Minute,
		ClickDuration:     250 * time.Millisecond,
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.InputCooldown, err = durationFromEnv("APP_INPUT_COOLDOWN", cfg.InputCooldown)
	if err != nil {
		return Config{}, err
	}
	cfg.ChatCooldown, err = durationFromEnv("APP_CHAT_COOLDOWN", cfg.ChatCooldown)
	if err != nil {
		return Config{}, err
	}
	cfg.RateLimitCapacity, err = intFromEnv("APP_RATE_LIMIT_CAPACITY", cfg.RateLimitCapacity)
	if err != nil {
		return Config{}, err
	}
	cfg.RateLimitTTL, err = durationFromEnv("APP_RATE_LIMIT_TTL", cfg.RateLimitTTL)
	if err != nil {
		return Config{}, err
	}
	cfg.FramePeriod, err = durationFromEnv("APP_FRAME_PERIOD", cfg.FramePeriod)
	if err != nil {
		return Config{}, err
	}
	cfg.BatchFrames, err = intFromEnv("APP_BATCH_FRAMES", cfg.BatchFrames)
	if err != nil {
		return Config{}, err
	}
	cfg.PlaybackDelay, err = durationFromEnv("APP_PLAYBACK_DELAY", cfg.PlaybackDelay)
	if err != nil {
		return Config{}, err
	}
	cfg.InactivityPause, err = durationFromEnv("APP_INACTIVITY_PAUSE", cfg.InactivityPause)
	if err != nil {
		return Config{}, err
	}
	cfg.StatsInterval, err = durationFromEnv("APP_STATS_INTERVAL", cfg.StatsInterval)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}

	if cfg.InputCooldown <= 0 {
		return Config{}, fmt.Errorf("APP_INPUT_COOLDOWN must be positive")
	}
	if cfg.RateLimitCapacity <= 0 {
		return Config{}, fmt.Errorf("APP_RATE_LIMIT_CAPACITY must be positive")
	}
	if cfg.FramePeriod < 50*time.Millisecond {
		return Config{}, fmt.Errorf("APP_FRAME_PERIOD must be at least 50ms")
	}
	if cfg.BatchFrames <= 0 {
		return Config{}, fmt.Errorf("APP_BATCH_FRAMES must be positive")
	}
	if cfg.PlaybackDelay < cfg.FramePeriod {
		// Playback is deliberately slower than capture so delivery latency is
		// absorbed instead of stalling on the last frame.
		return Config{}, fmt.Errorf("APP_PLAYBACK_DELAY must not be shorter than APP_FRAME_PERIOD")
	}
	if cfg.InactivityPause < 10*time.Second {
		return Config{}, fmt.Errorf("APP_INACTIVITY_PAUSE must be at least 10s")
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

func trimSpaceEnv(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := trimSpaceEnv(key)
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
	v := trimSpaceEnv(key)
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
	v := strings.ToLower(trimSpaceEnv(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: invalid boolean %q", key, v)
	}
}
