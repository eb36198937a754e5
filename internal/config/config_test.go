package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	setCoreEnvEmpty(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.InputCooldown != 1500*time.Millisecond {
		t.Fatalf("InputCooldown = %v, want 1.5s", cfg.InputCooldown)
	}
	if cfg.BatchFrames != 30 {
		t.Fatalf("BatchFrames = %d, want 30", cfg.BatchFrames)
	}
	if cfg.PlaybackDelay <= cfg.FramePeriod {
		t.Fatalf("PlaybackDelay %v should exceed FramePeriod %v", cfg.PlaybackDelay, cfg.FramePeriod)
	}
	if cfg.StateURL != "" {
		t.Fatalf("StateURL = %q, want empty default", cfg.StateURL)
	}
}

func TestLoadOverrides(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("APP_INPUT_COOLDOWN", "500ms")
	t.Setenv("APP_BATCH_FRAMES", "10")
	t.Setenv("APP_STATE_URL", "sqlite://crowdplay.db")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.InputCooldown != 500*time.Millisecond {
		t.Fatalf("InputCooldown = %v, want 500ms", cfg.InputCooldown)
	}
	if cfg.BatchFrames != 10 {
		t.Fatalf("BatchFrames = %d, want 10", cfg.BatchFrames)
	}
	if cfg.StateURL != "sqlite://crowdplay.db" {
		t.Fatalf("StateURL = %q, want sqlite URL", cfg.StateURL)
	}
}

func TestLoadRejectsSlowCapture(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("APP_FRAME_PERIOD", "300ms")
	t.Setenv("APP_PLAYBACK_DELAY", "200ms")

	if _, err := Load(); err == nil {
		t.Fatalf("Load() should reject playback delay shorter than frame period")
	}
}

func TestLoadRejectsBadBool(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("APP_ALLOW_ANY_ORIGIN", "maybe")

	if _, err := Load(); err == nil {
		t.Fatalf("Load() should reject invalid boolean")
	}
}

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"APP_BIND_ADDR",
		"APP_SHUTDOWN_TIMEOUT",
		"APP_METRICS_NAMESPACE",
		"APP_ALLOW_ANY_ORIGIN",
		"APP_STATE_URL",
		"APP_INPUT_COOLDOWN",
		"APP_CHAT_COOLDOWN",
		"APP_RATE_LIMIT_CAPACITY",
		"APP_RATE_LIMIT_TTL",
		"APP_FRAME_PERIOD",
		"APP_BATCH_FRAMES",
		"APP_PLAYBACK_DELAY",
		"APP_INACTIVITY_PAUSE",
		"APP_STATS_INTERVAL",
	}
	for _, k := range keys {
		t.Setenv(k, "")
	}
}
