package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ZentaChain/zsock-node/pkg/protocol"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "zauthd.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaultsAndOverrides(t *testing.T) {
	path := writeConfig(t, `
listen = "tcp://127.0.0.1:9200"
domain = "global"
store_path = "/var/lib/zauthd/creds.db"
log_level = "debug"
allow = ["10.0.0.0", "10.0.0.1"]
deny = ["192.168.1.55"]

[users]
alice = "wonder"
bob = "builder"

[api]
enabled = true
addr = "127.0.0.1:8090"
rate_limit = 50
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Listen != "tcp://127.0.0.1:9200" {
		t.Fatalf("unexpected listen: %q", cfg.Listen)
	}
	if cfg.Domain != "global" {
		t.Fatalf("unexpected domain: %q", cfg.Domain)
	}
	if cfg.StorePath != "/var/lib/zauthd/creds.db" {
		t.Fatalf("unexpected store path: %q", cfg.StorePath)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("unexpected log level: %q", cfg.LogLevel)
	}
	if cfg.Users["alice"] != "wonder" || cfg.Users["bob"] != "builder" {
		t.Fatalf("unexpected users: %v", cfg.Users)
	}
	if len(cfg.Allow) != 2 || len(cfg.Deny) != 1 {
		t.Fatalf("unexpected rules: allow=%v deny=%v", cfg.Allow, cfg.Deny)
	}
	if !cfg.API.Enabled || cfg.API.Addr != "127.0.0.1:8090" || cfg.API.RateLimit != 50 {
		t.Fatalf("unexpected api config: %+v", cfg.API)
	}
}

func TestLoadKeepsDefaultsForOmittedKeys(t *testing.T) {
	path := writeConfig(t, `domain = "test"`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Listen != protocol.WellKnownEndpoint {
		t.Fatalf("unexpected default listen: %q", cfg.Listen)
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("unexpected default log level: %q", cfg.LogLevel)
	}
	if cfg.API.Enabled {
		t.Fatal("api enabled by default")
	}
	if cfg.API.RateLimit != 100 {
		t.Fatalf("unexpected default rate limit: %d", cfg.API.RateLimit)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"malformed listen", `listen = "no-scheme"`},
		{"unknown scheme", `listen = "udp://127.0.0.1:9000"`},
		{"unknown log level", `log_level = "chatty"`},
		{"empty password", "[users]\nalice = \"\""},
		{"bad curve key", `curve_keys = ["not-a-key"]`},
		{"api without addr", "[api]\nenabled = true\naddr = \"\""},
		{"negative rate limit", "[api]\nrate_limit = -1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.content)
			if _, err := Load(path); err == nil {
				t.Fatal("expected a load error")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Fatal("expected a load error")
	}
}
