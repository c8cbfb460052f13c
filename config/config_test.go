package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	for _, key := range []string{"TRYON_BACKEND", "OBJECT_STORE", "STREAM_DRIVER", "POLL_MAX_ATTEMPTS", "POLL_INTERVAL", "GRADIO_SPACE", "AUTH_ENABLED"} {
		// Setenv restores the original value after the test.
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.GradioSpace != "Kwai-Kolors/Kolors-Virtual-Try-On" || cfg.GradioEndpoint != "/tryon" {
		t.Errorf("space = %q endpoint = %q", cfg.GradioSpace, cfg.GradioEndpoint)
	}
	if cfg.MaxAttempts != 30 || cfg.PollInterval != 2*time.Second {
		t.Errorf("poll = %d / %v", cfg.MaxAttempts, cfg.PollInterval)
	}
	if cfg.IntParam != 0 || !cfg.BoolParam {
		t.Errorf("params = %d / %v", cfg.IntParam, cfg.BoolParam)
	}
	if cfg.StreamURL != "https://dlhd.sx/embed/stream-62.php" {
		t.Errorf("stream url = %q", cfg.StreamURL)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("POLL_MAX_ATTEMPTS", "5")
	t.Setenv("POLL_INTERVAL", "250ms")
	t.Setenv("OBJECT_STORE", "minio")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.MaxAttempts != 5 || cfg.PollInterval != 250*time.Millisecond || cfg.ObjectStore != "minio" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestValidate(t *testing.T) {
	base := Config{Backend: "gradio", ObjectStore: "local", StreamDriver: "chromedp", MaxAttempts: 30}
	if err := base.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown backend", func(c *Config) { c.Backend = "replicate" }},
		{"gemini without key", func(c *Config) { c.Backend = "gemini" }},
		{"s3 without bucket", func(c *Config) { c.ObjectStore = "s3" }},
		{"unknown driver", func(c *Config) { c.StreamDriver = "webkit" }},
		{"no attempts", func(c *Config) { c.MaxAttempts = 0 }},
		{"auth without secret", func(c *Config) { c.AuthEnabled = true }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
