package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	yaml := `
user:
  id: "1"
  token: abc
realtime:
  url: wss://chat.example.com
  ack_timeout: 3s
  max_reconnect_attempts: 8
api:
  base_url: https://chat.example.com/api
logging:
  level: debug
  format: json
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.User.ID != "1" || cfg.User.Token != "abc" {
		t.Errorf("User = %+v", cfg.User)
	}
	if cfg.Realtime.URL != "wss://chat.example.com" {
		t.Errorf("Realtime.URL = %q, want %q", cfg.Realtime.URL, "wss://chat.example.com")
	}
	if cfg.Realtime.AckTimeout != 3*time.Second {
		t.Errorf("Realtime.AckTimeout = %v, want 3s", cfg.Realtime.AckTimeout)
	}
	if cfg.Realtime.MaxReconnectAttempts != 8 {
		t.Errorf("Realtime.MaxReconnectAttempts = %d, want 8", cfg.Realtime.MaxReconnectAttempts)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q, want json", cfg.Logging.Format)
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_CHAT_TOKEN", "secret123")

	path := writeTempFile(t, `
user:
  id: "1"
  token: ${TEST_CHAT_TOKEN}
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.User.Token != "secret123" {
		t.Errorf("User.Token = %q, want %q", cfg.User.Token, "secret123")
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	t.Setenv("CHAT_REALTIME_URL", "ws://override:4000")
	t.Setenv("CHAT_REALTIME_RECONNECT_MAX_DELAY", "30s")
	t.Setenv("CHAT_USER_ID", "99")
	t.Setenv("CHAT_DB_PASSWORD", "dbpass")
	t.Setenv("CHAT_ARCHIVE_ENABLED", "true")
	t.Setenv("CHAT_LOG_FILE_PATH", "/var/log/chat.log")

	path := writeTempFile(t, `
user:
  id: "1"
realtime:
  url: ws://file:3001
  ack_timeout: 4s
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Realtime.URL != "ws://override:4000" {
		t.Errorf("Realtime.URL = %q, want env override", cfg.Realtime.URL)
	}
	if cfg.Realtime.AckTimeout != 4*time.Second {
		t.Errorf("Realtime.AckTimeout = %v, want file value 4s", cfg.Realtime.AckTimeout)
	}
	if cfg.Realtime.ReconnectMaxDelay != 30*time.Second {
		t.Errorf("Realtime.ReconnectMaxDelay = %v, want 30s", cfg.Realtime.ReconnectMaxDelay)
	}
	if cfg.User.ID != "99" {
		t.Errorf("User.ID = %q, want 99", cfg.User.ID)
	}
	if cfg.Database.Password != "dbpass" {
		t.Errorf("Database.Password = %q, want dbpass", cfg.Database.Password)
	}
	if !cfg.Archive.Enabled {
		t.Error("Archive.Enabled = false, want true")
	}
	if cfg.Logging.File.Path != "/var/log/chat.log" {
		t.Errorf("Logging.File.Path = %q", cfg.Logging.File.Path)
	}
}

func TestLoad_EnvOnly(t *testing.T) {
	t.Setenv("CHAT_USER_TOKEN", "env-token")

	cfg, err := LoadAndValidate("")
	if err != nil {
		t.Fatalf("LoadAndValidate failed: %v", err)
	}
	if cfg.User.Token != "env-token" {
		t.Errorf("User.Token = %q, want env-token", cfg.User.Token)
	}
	if cfg.Realtime.URL != DefaultRealtimeURL {
		t.Errorf("Realtime.URL = %q, want default", cfg.Realtime.URL)
	}
}

func TestLoad_BadEnv(t *testing.T) {
	t.Setenv("CHAT_REALTIME_ACK_TIMEOUT", "soon")

	if _, err := Load(""); err == nil || !strings.Contains(err.Error(), "parse env") {
		t.Errorf("error = %v, want parse env error", err)
	}
}

func TestLoadWithDefaults(t *testing.T) {
	path := writeTempFile(t, `
user:
  id: "1"
`)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	if cfg.Realtime.URL != DefaultRealtimeURL {
		t.Errorf("Realtime.URL = %q, want %q", cfg.Realtime.URL, DefaultRealtimeURL)
	}
	if cfg.Realtime.HandshakeTimeout != DefaultHandshakeTimeout {
		t.Errorf("Realtime.HandshakeTimeout = %v, want %v", cfg.Realtime.HandshakeTimeout, DefaultHandshakeTimeout)
	}
	if cfg.Realtime.AckTimeout != DefaultAckTimeout {
		t.Errorf("Realtime.AckTimeout = %v, want %v", cfg.Realtime.AckTimeout, DefaultAckTimeout)
	}
	if cfg.Realtime.ReconnectBaseDelay != DefaultReconnectBaseDelay {
		t.Errorf("Realtime.ReconnectBaseDelay = %v, want %v", cfg.Realtime.ReconnectBaseDelay, DefaultReconnectBaseDelay)
	}
	if cfg.Realtime.ReconnectMaxDelay != 0 {
		t.Errorf("Realtime.ReconnectMaxDelay = %v, want 0 (no clamp)", cfg.Realtime.ReconnectMaxDelay)
	}
	if cfg.Realtime.MaxReconnectAttempts != DefaultMaxReconnectAttempts {
		t.Errorf("Realtime.MaxReconnectAttempts = %d, want %d", cfg.Realtime.MaxReconnectAttempts, DefaultMaxReconnectAttempts)
	}
	if cfg.API.BaseURL != DefaultAPIBaseURL {
		t.Errorf("API.BaseURL = %q, want %q", cfg.API.BaseURL, DefaultAPIBaseURL)
	}
	if cfg.API.Timeout != DefaultAPITimeout {
		t.Errorf("API.Timeout = %v, want %v", cfg.API.Timeout, DefaultAPITimeout)
	}
	if cfg.Logging.Level != DefaultLogLevel || cfg.Logging.Output != DefaultLogOutput {
		t.Errorf("Logging = %+v", cfg.Logging)
	}
	if cfg.Archive.BatchSize != DefaultArchiveBatchSize {
		t.Errorf("Archive.BatchSize = %d, want %d", cfg.Archive.BatchSize, DefaultArchiveBatchSize)
	}
	if cfg.Archive.BackfillInterval != DefaultBackfillInterval {
		t.Errorf("Archive.BackfillInterval = %v, want %v", cfg.Archive.BackfillInterval, DefaultBackfillInterval)
	}
	if cfg.Database.Port != DefaultDBPort {
		t.Errorf("Database.Port = %d, want %d", cfg.Database.Port, DefaultDBPort)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{
			name:   "valid defaults",
			modify: func(c *Config) {},
		},
		{
			name:    "http realtime url",
			modify:  func(c *Config) { c.Realtime.URL = "http://localhost:3001" },
			wantErr: "realtime.url",
		},
		{
			name:    "realtime url without host",
			modify:  func(c *Config) { c.Realtime.URL = "ws://" },
			wantErr: "realtime.url",
		},
		{
			name:    "max delay below base",
			modify:  func(c *Config) { c.Realtime.ReconnectMaxDelay = 500 * time.Millisecond },
			wantErr: "realtime.reconnect_max_delay",
		},
		{
			name:   "reconnect disabled",
			modify: func(c *Config) { c.Realtime.MaxReconnectAttempts = -1 },
		},
		{
			name:    "reconnect attempts below -1",
			modify:  func(c *Config) { c.Realtime.MaxReconnectAttempts = -2 },
			wantErr: "realtime.max_reconnect_attempts",
		},
		{
			name:    "ws api url",
			modify:  func(c *Config) { c.API.BaseURL = "ws://localhost:3001/api" },
			wantErr: "api.base_url",
		},
		{
			name:    "bad log level",
			modify:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: "logging.level",
		},
		{
			name:    "bad log format",
			modify:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: "logging.format",
		},
		{
			name:    "file output without path",
			modify:  func(c *Config) { c.Logging.Output = "file" },
			wantErr: "logging.file.path",
		},
		{
			name: "file output with path",
			modify: func(c *Config) {
				c.Logging.Output = "file"
				c.Logging.File.Path = "/tmp/chat.log"
			},
		},
		{
			name:    "archive without database",
			modify:  func(c *Config) { c.Archive.Enabled = true },
			wantErr: "database.host",
		},
		{
			name: "archive with database",
			modify: func(c *Config) {
				c.Archive.Enabled = true
				c.Database.Host = "localhost"
				c.Database.Name = "chat"
				c.Database.User = "chat"
			},
		},
		{
			name: "archive min conns above max",
			modify: func(c *Config) {
				c.Archive.Enabled = true
				c.Database.Host = "localhost"
				c.Database.Name = "chat"
				c.Database.User = "chat"
				c.Database.MinConns = 10
			},
			wantErr: "database.min_conns",
		},
		{
			name: "archive negative backfill interval",
			modify: func(c *Config) {
				c.Archive.Enabled = true
				c.Database.Host = "localhost"
				c.Database.Name = "chat"
				c.Database.User = "chat"
				c.Archive.BackfillInterval = -time.Second
			},
			wantErr: "archive.backfill_interval",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			cfg.applyDefaults()
			tt.modify(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeTempFile(t, "realtime: [unclosed")
	if _, err := Load(path); err == nil {
		t.Error("expected error for invalid yaml")
	}
}
