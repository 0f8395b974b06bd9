package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadParsesAllSections(t *testing.T) {
	raw := `
app:
  name: messenger-backend
  log_level: debug

server:
  addr: ":4433"
  health_addr: ":8081"
  node_id: "chat-test"
  heartbeat_timeout: 90s
  heartbeat_check_interval: 30s

quic:
  max_idle_timeout: 60s
  cert_file: "cert.pem"
  key_file: "key.pem"

nats:
  url: "nats://localhost:4222"

database:
  host: localhost
  port: 5432
  tx_timeout: 5s

redis:
  host: localhost
  port: 6379

auth:
  token_secret: "test-secret"
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(raw), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.App.Name != "messenger-backend" || cfg.App.LogLevel != "debug" {
		t.Errorf("app section wrong: %+v", cfg.App)
	}
	if cfg.Server.Addr != ":4433" {
		t.Errorf("server addr = %q, want :4433", cfg.Server.Addr)
	}
	if cfg.Server.HealthAddr != ":8081" {
		t.Errorf("health addr = %q, want :8081", cfg.Server.HealthAddr)
	}
	if cfg.Server.HeartbeatTimeout != 90*time.Second {
		t.Errorf("heartbeat timeout = %s, want 90s", cfg.Server.HeartbeatTimeout)
	}
	if cfg.QUIC.MaxIdleTimeout != 60*time.Second || cfg.QUIC.CertFile != "cert.pem" {
		t.Errorf("quic section wrong: %+v", cfg.QUIC)
	}
	if cfg.Database.TxTimeout != 5*time.Second {
		t.Errorf("tx timeout = %s, want 5s", cfg.Database.TxTimeout)
	}
	if cfg.Auth.TokenSecret != "test-secret" {
		t.Errorf("token secret = %q", cfg.Auth.TokenSecret)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
