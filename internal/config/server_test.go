package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadServerConfig_ExampleFile(t *testing.T) {
	cfgPath := filepath.Join("..", "..", "configs", "server.example.yaml")
	cfg, err := LoadServerConfig(cfgPath)
	if err != nil {
		t.Fatalf("failed to load server example config: %v", err)
	}

	if cfg.Server.Listen != "0.0.0.0:6380" {
		t.Errorf("expected listen '0.0.0.0:6380', got %q", cfg.Server.Listen)
	}
	if cfg.Scheduler.SweepInterval != 100*time.Millisecond {
		t.Errorf("expected 100ms sweep interval, got %v", cfg.Scheduler.SweepInterval)
	}
	if cfg.Snapshot.Backend != "bbolt" {
		t.Errorf("expected bbolt snapshot backend, got %q", cfg.Snapshot.Backend)
	}
	if cfg.Snapshot.Schedule != "@every 5m" {
		t.Errorf("expected '@every 5m' schedule, got %q", cfg.Snapshot.Schedule)
	}
	if cfg.Replication.ListenPort != 6380 {
		t.Errorf("expected replication listen_port 6380, got %d", cfg.Replication.ListenPort)
	}
}

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "server.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing temp config: %v", err)
	}
	return path
}

func TestLoadServerConfig_Defaults(t *testing.T) {
	cfg, err := LoadServerConfig(writeTempConfig(t, "server:\n  listen: \"127.0.0.1:7000\"\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Scheduler.SweepInterval != 100*time.Millisecond {
		t.Errorf("expected default 100ms sweep, got %v", cfg.Scheduler.SweepInterval)
	}
	if cfg.Snapshot.Backend != "none" {
		t.Errorf("expected default snapshot backend none, got %q", cfg.Snapshot.Backend)
	}
	if cfg.Replication.ListenPort != 7000 {
		t.Errorf("expected listen_port derived from listen address, got %d", cfg.Replication.ListenPort)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("expected info/json logging defaults, got %q/%q", cfg.Logging.Level, cfg.Logging.Format)
	}
}

func TestLoadServerConfig_SecretIsHashedAndCleared(t *testing.T) {
	cfg, err := LoadServerConfig(writeTempConfig(t, "auth:\n  secret: \"hunter2\"\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Auth.Secret != "" {
		t.Errorf("expected plaintext secret to be cleared after validation")
	}
	if cfg.Auth.SecretHash == "" {
		t.Errorf("expected bcrypt hash to be derived")
	}
	if cfg.Auth.SecretHash == "hunter2" {
		t.Errorf("hash must not equal the plaintext secret")
	}
}

func TestLoadServerConfig_S3RequiresBucketAndRegion(t *testing.T) {
	_, err := LoadServerConfig(writeTempConfig(t, "snapshot:\n  backend: s3\n"))
	if err == nil {
		t.Fatal("expected validation error for s3 backend without bucket")
	}
}

func TestLoadServerConfig_UnknownSnapshotBackend(t *testing.T) {
	_, err := LoadServerConfig(writeTempConfig(t, "snapshot:\n  backend: floppy\n"))
	if err == nil {
		t.Fatal("expected validation error for unknown snapshot backend")
	}
}

func TestLoadServerConfig_TLSRequiresCertAndKey(t *testing.T) {
	_, err := LoadServerConfig(writeTempConfig(t, "tls:\n  ca_cert: /tmp/ca.crt\n"))
	if err == nil {
		t.Fatal("expected validation error for TLS without server cert/key")
	}
}
