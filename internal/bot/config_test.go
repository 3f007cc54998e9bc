package bot

import (
	"testing"
)

func TestLoadConfig_WithValidToken(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "test-token-123")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.DiscordToken != "test-token-123" {
		t.Errorf("expected token %q, got %q", "test-token-123", cfg.DiscordToken)
	}
}

func TestLoadConfig_WithEmptyToken(t *testing.T) {
	// Clear the environment variable
	t.Setenv("DISCORD_TOKEN", "")

	_, err := LoadConfig()
	if err == nil {
		t.Error("expected error for missing token, got nil")
	}
}

func TestLoadConfig_LogDefaults(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "test-token")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("LOG_FILE", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Log.File != "" {
		t.Errorf("expected no log file, got %q", cfg.Log.File)
	}
	if cfg.Log.MaxSizeMB != 100 {
		t.Errorf("expected max size 100, got %d", cfg.Log.MaxSizeMB)
	}
	if !cfg.Log.Compress {
		t.Error("expected compression to be enabled by default")
	}
}

func TestLoadConfig_LogOverrides(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "test-token")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FILE", "/var/log/sgrlink.log")
	t.Setenv("LOG_MAX_BACKUPS", "2")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("expected level %q, got %q", "debug", cfg.Log.Level)
	}
	if cfg.Log.File != "/var/log/sgrlink.log" {
		t.Errorf("expected file %q, got %q", "/var/log/sgrlink.log", cfg.Log.File)
	}
	if cfg.Log.MaxBackups != 2 {
		t.Errorf("expected 2 backups, got %d", cfg.Log.MaxBackups)
	}
}
