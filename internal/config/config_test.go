package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	// Point the search path at an empty directory so no stray glimpse.yaml
	// is picked up.
	dir := t.TempDir()
	cwd, _ := os.Getwd()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir failed: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(cwd) })

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Socket.Port != 3000 || cfg.Socket.Path != "/ws" {
		t.Errorf("unexpected socket defaults: %+v", cfg.Socket)
	}
	if cfg.Auth.TokenTTL != 24*time.Hour {
		t.Errorf("unexpected token ttl: %v", cfg.Auth.TokenTTL)
	}
	if cfg.Kafka.Topic != "glimpse.tasks" {
		t.Errorf("unexpected kafka topic: %q", cfg.Kafka.Topic)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "glimpse.yaml")
	yaml := `
socket:
  port: 8080
database:
  url: postgres://localhost/glimpse
auth:
  secret: hunter2
  credentials:
    alice: s3cret
kafka:
  brokers:
    - localhost:9092
`
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Socket.Port != 8080 {
		t.Errorf("expected port 8080, got %d", cfg.Socket.Port)
	}
	if cfg.Database.URL != "postgres://localhost/glimpse" {
		t.Errorf("unexpected database url: %q", cfg.Database.URL)
	}
	if cfg.Auth.Credentials["alice"] != "s3cret" {
		t.Errorf("unexpected credentials: %v", cfg.Auth.Credentials)
	}
	if len(cfg.Kafka.Brokers) != 1 {
		t.Errorf("unexpected brokers: %v", cfg.Kafka.Brokers)
	}

	// File values merge over defaults rather than replacing them.
	if cfg.Socket.Path != "/ws" {
		t.Errorf("expected default socket path, got %q", cfg.Socket.Path)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected an error for a missing explicit config file")
	}
}
