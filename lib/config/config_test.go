// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Environment != Development {
		t.Errorf("expected environment=development, got %s", cfg.Environment)
	}
	if cfg.Transport.Compression != "gzip" {
		t.Errorf("expected compression=gzip, got %s", cfg.Transport.Compression)
	}
	want := []time.Duration{10 * time.Second, 5 * time.Minute, 20 * time.Minute}
	if !slices.Equal(cfg.Transport.RetryIntervals, want) {
		t.Errorf("expected retry_intervals=%v, got %v", want, cfg.Transport.RetryIntervals)
	}
	if cfg.Session.Timeout != 20*time.Second || cfg.Session.HistoryCapacity != 10 {
		t.Errorf("unexpected session defaults: %+v", cfg.Session)
	}
	if cfg.Channel.RetryCooldown != 10*time.Minute {
		t.Errorf("expected retry_cooldown=10m, got %s", cfg.Channel.RetryCooldown)
	}
	group, ok := cfg.Group("analytics")
	if !ok || group.MaxLogsPerBatch != 50 || group.BatchInterval != 3*time.Second {
		t.Errorf("unexpected default group: %+v (found=%v)", group, ok)
	}
}

func TestLoad_RequiresConfigVariable(t *testing.T) {
	t.Setenv(EnvConfigPath, "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when LOGSHIP_CONFIG not set, got nil")
	}
	if !strings.HasPrefix(err.Error(), "LOGSHIP_CONFIG environment variable not set") {
		t.Errorf("unexpected error message: %q", err.Error())
	}
}

func TestLoad_WithConfigVariable(t *testing.T) {
	path := writeConfig(t, "logship.yaml", `
environment: staging
app_secret: secret
log_url: https://in.example.net
`)
	t.Setenv(EnvConfigPath, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Environment != Staging {
		t.Errorf("expected environment=staging, got %s", cfg.Environment)
	}
	if cfg.LogURL != "https://in.example.net" {
		t.Errorf("expected log_url from file, got %s", cfg.LogURL)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, "logship.yaml", `
environment: development
app_secret: app-secret
log_url: http://localhost:8080
api_version: "2.0.0"
app:
  version: 1.4.2
  build: "42"
storage:
  path: /var/lib/logship/logs.db
  compress_threshold: -1
transport:
  compression: zstd
  timeout: 5s
  retry_intervals: [1s, 2s]
  connectivity:
    probe_address: in.example.net:443
    probe_interval: 1m
session:
  group: crashes
  timeout: 45s
  history_capacity: 3
channel:
  retry_cooldown: 1m
groups:
  - name: crashes
    max_logs_per_batch: 1
    batch_interval: 0s
    max_parallel_batches: 1
  - name: analytics
    max_persisted_logs: 500
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() failed: %v", err)
	}

	if cfg.APIVersion != "2.0.0" {
		t.Errorf("expected api_version=2.0.0, got %s", cfg.APIVersion)
	}
	if cfg.App.Version != "1.4.2" || cfg.App.Build != "42" {
		t.Errorf("unexpected app config: %+v", cfg.App)
	}
	if cfg.Storage.Path != "/var/lib/logship/logs.db" || cfg.Storage.CompressThreshold != -1 {
		t.Errorf("unexpected storage config: %+v", cfg.Storage)
	}
	if cfg.Transport.Compression != "zstd" || cfg.Transport.Timeout != 5*time.Second {
		t.Errorf("unexpected transport config: %+v", cfg.Transport)
	}
	if want := []time.Duration{time.Second, 2 * time.Second}; !slices.Equal(cfg.Transport.RetryIntervals, want) {
		t.Errorf("expected retry_intervals=%v, got %v", want, cfg.Transport.RetryIntervals)
	}
	if cfg.Transport.Connectivity.ProbeInterval != time.Minute {
		t.Errorf("expected probe_interval=1m, got %s", cfg.Transport.Connectivity.ProbeInterval)
	}
	if cfg.Session.Group != "crashes" || cfg.Session.Timeout != 45*time.Second || cfg.Session.HistoryCapacity != 3 {
		t.Errorf("unexpected session config: %+v", cfg.Session)
	}
	if cfg.Channel.RetryCooldown != time.Minute {
		t.Errorf("expected retry_cooldown=1m, got %s", cfg.Channel.RetryCooldown)
	}

	// The file's group list replaces the defaults.
	if len(cfg.Groups) != 2 || cfg.Groups[0].Name != "crashes" {
		t.Fatalf("unexpected groups: %+v", cfg.Groups)
	}
	analytics, _ := cfg.Group("analytics")
	if analytics.MaxPersistedLogs != 500 || analytics.MaxLogsPerBatch != 0 {
		t.Errorf("unexpected analytics group: %+v", analytics)
	}
}

func TestLoadFile_JSONC(t *testing.T) {
	path := writeConfig(t, "logship.jsonc", `{
  // Local mock ingest.
  "app_secret": "secret",
  "log_url": "http://127.0.0.1:9000",
  "transport": {
    "compression": "none",
    "retry_intervals": [], /* no retries */
  },
  "groups": [
    {"name": "analytics", "batch_interval": "250ms"},
  ],
}`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() failed: %v", err)
	}
	if cfg.Transport.Compression != "none" {
		t.Errorf("expected compression=none, got %s", cfg.Transport.Compression)
	}
	if cfg.Transport.RetryIntervals == nil || len(cfg.Transport.RetryIntervals) != 0 {
		t.Errorf("expected an empty retry list, got %v", cfg.Transport.RetryIntervals)
	}
	if cfg.Groups[0].BatchInterval != 250*time.Millisecond {
		t.Errorf("expected batch_interval=250ms, got %s", cfg.Groups[0].BatchInterval)
	}
}

func TestLoadFile_Errors(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for a missing file")
	}
	path := writeConfig(t, "bad.yaml", "transport:\n  timeout: soon\n")
	if _, err := LoadFile(path); err == nil {
		t.Error("expected error for an unparseable duration")
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, "logship.yaml", `
environment: production
app_secret: base-secret
log_url: http://localhost:8080
development:
  log_url: http://dev.example.net
production:
  log_url: https://in.example.net
  transport:
    compression: zstd
    retry_intervals: []
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() failed: %v", err)
	}
	if cfg.LogURL != "https://in.example.net" {
		t.Errorf("expected production log_url, got %s", cfg.LogURL)
	}
	if cfg.AppSecret != "base-secret" {
		t.Errorf("expected base app_secret to survive, got %s", cfg.AppSecret)
	}
	if cfg.Transport.Compression != "zstd" {
		t.Errorf("expected compression=zstd, got %s", cfg.Transport.Compression)
	}
	if len(cfg.Transport.RetryIntervals) != 0 {
		t.Errorf("expected retries disabled by override, got %v", cfg.Transport.RetryIntervals)
	}
	if cfg.Transport.Timeout != 30*time.Second {
		t.Errorf("expected default timeout to survive, got %s", cfg.Transport.Timeout)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() failed: %v", err)
	}
}

func TestEnvVarsDoNotOverride(t *testing.T) {
	t.Setenv("LOGSHIP_LOG_URL", "http://evil.example.net")
	path := writeConfig(t, "logship.yaml", `
app_secret: secret
log_url: http://localhost:8080
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() failed: %v", err)
	}
	if cfg.LogURL != "http://localhost:8080" {
		t.Errorf("environment overrode log_url: %s", cfg.LogURL)
	}
}

func TestVariableExpansion(t *testing.T) {
	t.Setenv("HOME", "/home/tester")
	t.Setenv("LOGSHIP_TEST_SECRET", "from-env")
	path := writeConfig(t, "logship.yaml", `
app_secret: ${LOGSHIP_TEST_SECRET}
log_url: ${LOGSHIP_TEST_URL:-http://localhost:9000}
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() failed: %v", err)
	}
	if cfg.AppSecret != "from-env" {
		t.Errorf("expected app_secret=from-env, got %s", cfg.AppSecret)
	}
	if cfg.LogURL != "http://localhost:9000" {
		t.Errorf("expected log_url default, got %s", cfg.LogURL)
	}
	if cfg.Storage.Path != "/home/tester/.local/share/logship/logship.db" {
		t.Errorf("expected expanded storage path, got %s", cfg.Storage.Path)
	}
}

func TestExpandVars(t *testing.T) {
	t.Setenv("LOGSHIP_TEST_VAR", "value")
	vars := map[string]string{"HOME": "/home/test"}

	tests := []struct {
		input    string
		expected string
	}{
		{"${HOME}/data", "/home/test/data"},
		{"${LOGSHIP_TEST_VAR}", "value"},
		{"${LOGSHIP_TEST_UNSET:-fallback}", "fallback"},
		{"${LOGSHIP_TEST_UNSET}", ""},
		{"no variables", "no variables"},
		{"${HOME}:${LOGSHIP_TEST_VAR}", "/home/test:value"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := expandVars(tt.input, vars); got != tt.expected {
				t.Errorf("expandVars(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.AppSecret = "secret"
		cfg.LogURL = "http://localhost:8080"
		return cfg
	}

	if err := valid().Validate(); err != nil {
		t.Fatalf("valid config failed validation: %v", err)
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"bad environment", func(c *Config) { c.Environment = "qa" }, "invalid environment"},
		{"missing secret", func(c *Config) { c.AppSecret = "" }, "app_secret is required"},
		{"missing url", func(c *Config) { c.LogURL = "" }, "log_url is required"},
		{"relative url", func(c *Config) { c.LogURL = "in.example.net/logs" }, "absolute http or https"},
		{"ftp url", func(c *Config) { c.LogURL = "ftp://in.example.net" }, "absolute http or https"},
		{"http in production", func(c *Config) { c.Environment = Production }, "https in production"},
		{"missing storage path", func(c *Config) { c.Storage.Path = "" }, "storage.path is required"},
		{"bad compression", func(c *Config) { c.Transport.Compression = "brotli" }, "transport.compression"},
		{"zero retry interval", func(c *Config) { c.Transport.RetryIntervals = []time.Duration{0} }, "retry_intervals[0]"},
		{"negative session timeout", func(c *Config) { c.Session.Timeout = -time.Second }, "session.timeout"},
		{"negative cooldown", func(c *Config) { c.Channel.RetryCooldown = -time.Second }, "retry_cooldown"},
		{"unnamed group", func(c *Config) { c.Groups = append(c.Groups, GroupConfig{}) }, "groups[1].name"},
		{"duplicate group", func(c *Config) { c.Groups = append(c.Groups, GroupConfig{Name: "analytics"}) }, "duplicate group"},
		{"negative group limit", func(c *Config) { c.Groups[0].MaxLogsPerBatch = -1 }, "limits must not be negative"},
		{"unknown session group", func(c *Config) { c.Session.Group = "crashes" }, "not a configured group"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := Default()
	cfg.Transport.Compression = "brotli"
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	for _, want := range []string{"app_secret", "log_url", "transport.compression"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestEnsurePaths(t *testing.T) {
	cfg := Default()
	cfg.Storage.Path = filepath.Join(t.TempDir(), "nested", "dir", "logship.db")

	if err := cfg.EnsurePaths(); err != nil {
		t.Fatalf("EnsurePaths() failed: %v", err)
	}
	info, err := os.Stat(filepath.Dir(cfg.Storage.Path))
	if err != nil {
		t.Fatalf("storage directory not created: %v", err)
	}
	if !info.IsDir() {
		t.Error("storage directory is not a directory")
	}
}
