package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sebas/callbridge/services/callbridge/settings"
)

func isolate(t *testing.T) {
	t.Helper()
	// point ENV_FILE at an empty file so a stray .env is never read
	empty := filepath.Join(t.TempDir(), "empty.env")
	if err := os.WriteFile(empty, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ENV_FILE", empty)
}

func TestLoadDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.GRPCAddr != ":50070" || cfg.HTTPAddr != ":8070" {
		t.Errorf("addrs = %q, %q", cfg.GRPCAddr, cfg.HTTPAddr)
	}
	if cfg.ReachabilityTimeout != 2*time.Second || cfg.WakeLease != time.Minute {
		t.Errorf("timeouts = %s, %s", cfg.ReachabilityTimeout, cfg.WakeLease)
	}
	if cfg.SettingsBackend != BackendFile || cfg.Platform.APILevel != 33 {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestEnvAndFlagPrecedence(t *testing.T) {
	isolate(t)
	t.Setenv("CALLBRIDGE_GRPC_ADDR", ":6000")
	t.Setenv("CALLBRIDGE_HTTP_ADDR", ":6001")
	t.Setenv("CALLBRIDGE_REDIS_ADDR", "redis:6379")
	t.Setenv("LOGLEVEL", "debug")

	cfg, err := Load([]string{"-http", ":7001"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.GRPCAddr != ":6000" {
		t.Errorf("GRPCAddr = %q, want env value", cfg.GRPCAddr)
	}
	if cfg.HTTPAddr != ":7001" {
		t.Errorf("HTTPAddr = %q, want flag value", cfg.HTTPAddr)
	}
	if cfg.Redis.Addr != "redis:6379" || cfg.LogLevel != "debug" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(path, []byte("CALLBRIDGE_NODE_ID=from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ENV_FILE", path)
	t.Setenv("CALLBRIDGE_NODE_ID", "")
	os.Unsetenv("CALLBRIDGE_NODE_ID")

	cfg, err := Load(nil)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.NodeID != "from-file" {
		t.Errorf("NodeID = %q, want from-file", cfg.NodeID)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"file ok", func(c *Config) {}, false},
		{"memory", func(c *Config) { c.SettingsBackend = "MEMORY" }, false},
		{"redis without addr", func(c *Config) { c.SettingsBackend = BackendRedis }, true},
		{"redis with addr", func(c *Config) { c.SettingsBackend = BackendRedis; c.Redis.Addr = "r:1" }, false},
		{"unknown backend", func(c *Config) { c.SettingsBackend = "etcd" }, true},
		{"zero timeout", func(c *Config) { c.ReachabilityTimeout = 0 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Config{SettingsBackend: BackendFile, SettingsPath: "s.json", ReachabilityTimeout: time.Second}
			tt.mutate(c)
			if err := c.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadSetup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "setup.yaml")
	doc := `appName: Dialer
supportsHolding: true
handleSchema: sip
additionalPermissions:
  - CAMERA
foregroundService:
  channelId: calls
  channelName: Calls
  notificationTitle: On a call
  notificationId: 7
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}

	s, err := LoadSetup(path)
	if err != nil {
		t.Fatalf("LoadSetup() error = %v", err)
	}
	if s.String(settings.KeyAppName) != "Dialer" || !s.SupportsHolding() || s.HandleScheme() != "sip" {
		t.Errorf("setup = %v", s)
	}
	if perms := s.Strings(settings.KeyAdditionalPermissions); len(perms) != 1 {
		t.Errorf("additional permissions = %v", perms)
	}
	fg, ok := s.Foreground()
	if !ok || fg.ChannelID != "calls" || fg.NotificationID != 7 {
		t.Errorf("foreground = %+v, %v", fg, ok)
	}

	empty, err := LoadSetup("")
	if err != nil || len(empty) != 0 {
		t.Errorf("LoadSetup(\"\") = %v, %v", empty, err)
	}
	if _, err := LoadSetup(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("LoadSetup() of a missing file should fail")
	}
}
