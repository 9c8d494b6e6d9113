package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr() != "127.0.0.1:4000" {
		t.Fatalf("listen addr: got %s", cfg.ListenAddr())
	}
	if cfg.DataPath() != "kv_4000.db" {
		t.Fatalf("data path: got %s", cfg.DataPath())
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
}

func TestLoadTOML(t *testing.T) {
	path := writeFile(t, "replkv.toml", `
[server]
port = 4001
role = "follower"
leader_addr = "127.0.0.1:4000"

[log]
level = "debug"

[replication]
dial_timeout = "500ms"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 4001 || cfg.Server.Role != "follower" || cfg.Server.LeaderAddr != "127.0.0.1:4000" {
		t.Fatalf("server section: %+v", cfg.Server)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "text" {
		t.Fatalf("log section: %+v", cfg.Log)
	}
	if cfg.Replication.DialTimeout != 500*time.Millisecond || cfg.Replication.WriteTimeout != 2*time.Second {
		t.Fatalf("replication section: %+v", cfg.Replication)
	}
	if cfg.DataPath() != "kv_4001.db" {
		t.Fatalf("data path: got %s", cfg.DataPath())
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "replkv.yaml", `
server:
  addr: 0.0.0.0
  follower_addr: 127.0.0.1:4001
  data: /tmp/leader.db
log:
  format: json
replication:
  write_timeout: 3s
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr() != "0.0.0.0:4000" || cfg.Server.FollowerAddr != "127.0.0.1:4001" {
		t.Fatalf("server section: %+v", cfg.Server)
	}
	if cfg.DataPath() != "/tmp/leader.db" || cfg.Log.Format != "json" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.Replication.WriteTimeout != 3*time.Second {
		t.Fatalf("write timeout: got %s", cfg.Replication.WriteTimeout)
	}
}

func TestLoadRejectsUnknownYAMLField(t *testing.T) {
	path := writeFile(t, "bad.yml", "server:\n  prot: 1\n")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for unknown field")
	}
}

func TestLoadUnsupportedExtension(t *testing.T) {
	path := writeFile(t, "replkv.json", "{}")
	if _, err := Load(path); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeFile(t, "replkv.toml", "[server]\nport = 4001\n")
	t.Setenv("REPLKV_PORT", "4100")
	t.Setenv("REPLKV_ROLE", "follower")
	t.Setenv("REPLKV_LEADER_ADDR", "10.0.0.1:4000")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 4100 || cfg.Server.Role != "follower" || cfg.Server.LeaderAddr != "10.0.0.1:4000" {
		t.Fatalf("env not applied: %+v", cfg.Server)
	}

	t.Setenv("REPLKV_PORT", "not-a-port")
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for bad REPLKV_PORT")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"port zero", func(c *Config) { c.Server.Port = 0 }, true},
		{"port too large", func(c *Config) { c.Server.Port = 70000 }, true},
		{"unknown role", func(c *Config) { c.Server.Role = "observer" }, true},
		{"follower without leader", func(c *Config) { c.Server.Role = "follower" }, true},
		{"follower with leader", func(c *Config) {
			c.Server.Role = "Follower"
			c.Server.LeaderAddr = "127.0.0.1:4000"
		}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			if err := cfg.Validate(); (err != nil) != tc.wantErr {
				t.Fatalf("validate: got %v wantErr %v", err, tc.wantErr)
			}
		})
	}
}
