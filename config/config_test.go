package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name: "negative delay",
			mutate: func(cfg *Config) {
				cfg.Delay = -time.Second
			},
			wantErr: "delay",
		},
		{
			name: "zero workers",
			mutate: func(cfg *Config) {
				cfg.Workers = 0
			},
			wantErr: "workers",
		},
		{
			name: "negative timeout",
			mutate: func(cfg *Config) {
				cfg.Timeout = -1 * time.Second
			},
			wantErr: "timeout",
		},
		{
			name: "backoff above max",
			mutate: func(cfg *Config) {
				cfg.RetryBackoff = 3 * time.Second
				cfg.RetryBackoffMax = time.Second
			},
			wantErr: "retry backoff",
		},
		{
			name: "empty output dir",
			mutate: func(cfg *Config) {
				cfg.OutputDir = ""
			},
			wantErr: "output dir",
		},
		{
			name: "no user agents",
			mutate: func(cfg *Config) {
				cfg.UserAgents = nil
			},
			wantErr: "user agents",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate, got %v", err)
	}
	if cfg.Delay != time.Second || cfg.Timeout != 30*time.Second || cfg.MaxRetries != 3 || cfg.OutputDir != "output" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestCloneIsDeep(t *testing.T) {
	cfg := DefaultConfig()
	clone := cfg.Clone()
	clone.Headers["Accept"] = "changed"
	clone.UserAgents[0] = "changed"
	if cfg.Headers["Accept"] == "changed" || cfg.UserAgents[0] == "changed" {
		t.Fatalf("clone shares state with original")
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadFormats(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{
			name:    "json",
			file:    "config.json",
			content: `{"delay": 0.5, "timeout": 10, "output_dir": "results", "custom": "kept"}`,
		},
		{
			name:    "yaml",
			file:    "config.yaml",
			content: "delay: 0.5\ntimeout: 10\noutput_dir: results\ncustom: kept\n",
		},
		{
			name:    "toml",
			file:    "config.toml",
			content: "delay = 0.5\ntimeout = 10\noutput_dir = \"results\"\ncustom = \"kept\"\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeFile(t, tt.file, tt.content))
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if cfg.Delay != 500*time.Millisecond {
				t.Fatalf("delay = %v, want 500ms", cfg.Delay)
			}
			if cfg.Timeout != 10*time.Second {
				t.Fatalf("timeout = %v, want 10s", cfg.Timeout)
			}
			if cfg.OutputDir != "results" {
				t.Fatalf("output dir = %q, want results", cfg.OutputDir)
			}
			if cfg.MaxRetries != 3 {
				t.Fatalf("max retries = %d, want default 3", cfg.MaxRetries)
			}
			if cfg.Extra["custom"] != "kept" {
				t.Fatalf("unknown key not preserved: %v", cfg.Extra)
			}
		})
	}
}

func TestLoadHeadersReplaceDefaults(t *testing.T) {
	path := writeFile(t, "config.json", `{"headers": {"X-Test": "1"}, "user_agents": ["agent/1"]}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.Headers) != 1 || cfg.Headers["X-Test"] != "1" {
		t.Fatalf("headers = %v, want only X-Test", cfg.Headers)
	}
	if len(cfg.UserAgents) != 1 || cfg.UserAgents[0] != "agent/1" {
		t.Fatalf("user agents = %v", cfg.UserAgents)
	}
}

func TestLoadFallsBackToDefaults(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{name: "malformed json", file: "config.json", content: `{"delay": `},
		{name: "wrong type", file: "config.json", content: `{"delay": "fast"}`},
		{name: "invalid value", file: "config.json", content: `{"delay": -2}`},
		{name: "fractional retries", file: "config.yaml", content: "max_retries: 1.5\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeFile(t, tt.file, tt.content))
			if err == nil {
				t.Fatalf("expected warning error")
			}
			if cfg == nil {
				t.Fatalf("expected default config alongside error")
			}
			if cfg.Delay != time.Second {
				t.Fatalf("delay = %v, want default", cfg.Delay)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("missing default file should not error: %v", err)
	}
	if cfg.Delay != time.Second {
		t.Fatalf("expected defaults")
	}

	if _, err := Load("does-not-exist.json"); err == nil {
		t.Fatalf("missing explicit file should be reported")
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("SCRAPER_DELAY", "0.25")
	t.Setenv("SCRAPER_WORKERS", "4")
	t.Setenv("SCRAPER_OUTPUT_DIR", "env-out")

	cfg := DefaultConfig()
	if err := ApplyEnv(cfg); err != nil {
		t.Fatalf("apply env: %v", err)
	}
	if cfg.Delay != 250*time.Millisecond || cfg.Workers != 4 || cfg.OutputDir != "env-out" {
		t.Fatalf("env not applied: %+v", cfg)
	}

	t.Setenv("SCRAPER_MAX_RETRIES", "many")
	if err := ApplyEnv(DefaultConfig()); err == nil || !strings.Contains(err.Error(), "SCRAPER_MAX_RETRIES") {
		t.Fatalf("expected error for invalid SCRAPER_MAX_RETRIES, got %v", err)
	}
}
